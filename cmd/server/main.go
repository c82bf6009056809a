package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"leads-dashboard/internal/auth"
	"leads-dashboard/internal/cache"
	"leads-dashboard/internal/config"
	"leads-dashboard/internal/engine"
	"leads-dashboard/internal/fieldconfig"
	"leads-dashboard/internal/format"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/records"
	"leads-dashboard/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s, cache: %s)", cfg.Server.Port, cfg.Database.Driver, cfg.Cache.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap tables: %v", err)
	}
	log.Println("Tables ready")

	// 4. Snapshot cache
	snapCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to create cache: %v", err)
	}
	defer closeCache(snapCache)

	// 5. Instrumentation
	var eventBuffer *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		eventBuffer = instrument.NewEventBuffer(db.DB, db.Dialect, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
		defer eventBuffer.Stop()
		go instrument.RunCleanup(ctx, db.DB, db.Dialect, cfg.Instrumentation.RetentionDays, time.Hour)
	}

	// 6. Services
	display := format.New(cfg.Display.Location())
	fields := fieldconfig.New(db)
	repo := records.NewRepository(db)
	snapshots := records.NewSnapshotLoader(repo, fields, snapCache, cfg.Cache.TTL())
	hub := auth.NewHub()

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.MetricsMiddleware())
	app.Use(instrument.Middleware(cfg.Instrumentation, eventBuffer))

	// 8. Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", instrument.MetricsHandler())

	// 9. Auth routes
	authMW := auth.AuthMiddleware(cfg.JWTSecret, db)
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(db, cfg.JWTSecret, hub), authMW)

	// 10. Dashboard routes
	handler := engine.NewHandler(db, fields, repo, snapshots, display)
	engine.RegisterRoutes(app, handler, instrument.NewEventHandler(db.DB, db.Dialect), authMW)

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		<-ctx.Done()
		log.Println("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
	}()
	log.Printf("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("ERROR: server: %v", err)
	}
}

func closeCache(c cache.Cache) {
	switch v := c.(type) {
	case *cache.Memory:
		v.Close()
	case *cache.Redis:
		if err := v.Close(); err != nil {
			log.Printf("ERROR: close redis: %v", err)
		}
	}
}
