package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"leads-dashboard/internal/cache"
	"leads-dashboard/internal/config"
	"leads-dashboard/internal/records"
	"leads-dashboard/internal/store"
)

var (
	dbDriver string
	dbPath   string
)

var rootCmd = &cobra.Command{
	Use:   "leadsctl",
	Short: "Operator tooling for the leads dashboard",
	Long: `leadsctl prepares the dashboard database: schema bootstrap, companies,
users and custom lead fields. Connection settings come from app.yaml and the
environment, as for the server.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "Override database.driver (postgres or sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "path", "", "Override database.path for sqlite")
}

// openStore loads configuration, applies flag overrides and opens a
// bootstrapped store.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.LoadOptional()
	if err != nil {
		return nil, err
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := st.Bootstrap(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return st, nil
}

// invalidateSnapshots bumps the company's snapshot generation in the shared
// cache so running servers drop snapshots taken before this write. The
// memory driver lives inside each server; its entries expire after
// cache.ttl_seconds.
func invalidateSnapshots(ctx context.Context, companyID string) error {
	cfg, err := config.LoadOptional()
	if err != nil {
		return err
	}
	if cfg.Cache.Driver != "redis" {
		return nil
	}
	c, err := cache.New(cfg.Cache)
	if err != nil {
		return err
	}
	defer c.(*cache.Redis).Close()
	return records.NewSnapshotLoader(nil, nil, c, 0).Invalidate(ctx, companyID)
}
