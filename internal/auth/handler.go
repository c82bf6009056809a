package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"leads-dashboard/internal/engine"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/store"
)

const invalidCredentials = "Invalid email or password"

// SSEKeepAlive is how often an idle session stream sends a comment line.
var SSEKeepAlive = 25 * time.Second

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	store     *store.Store
	jwtSecret string
	hub       *Hub
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(s *store.Store, jwtSecret string, hub *Hub) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret, hub: hub}
}

// Login handles POST /api/auth/login. Every failure reports the same
// message.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		return engine.UnauthorizedError(invalidCredentials)
	}

	ctx := c.UserContext()

	user, err := store.SelectOne(ctx, h.store.DB, h.store.Dialect, "_users", store.Eq("email", email))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("ERROR: login lookup: %v", err)
		}
		return engine.UnauthorizedError(invalidCredentials)
	}
	if !store.AsBool(user["active"]) || !CheckPassword(body.Password, store.AsString(user["password_hash"])) {
		return engine.UnauthorizedError(invalidCredentials)
	}

	userID := store.AsString(user["id"])
	pair, err := h.generateTokenPair(ctx, userID, email)
	if err != nil {
		log.Printf("ERROR: login tokens: %v", err)
		return engine.UnauthorizedError(invalidCredentials)
	}

	h.hub.Publish(SessionEvent{Type: EventSignedIn, UserID: userID})
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh. Refresh tokens are single use.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.UserContext()
	d := h.store.Dialect

	row, err := store.SelectOne(ctx, h.store.DB, d, "_refresh_tokens", store.Eq("token", body.RefreshToken))
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}
	// rotation: the presented token is spent either way
	_, _ = store.Delete(ctx, h.store.DB, d, "_refresh_tokens", []store.Filter{store.Eq("id", row["id"])})

	expiresAt, ok := store.ParseTime(row["expires_at"])
	if !ok || time.Now().After(expiresAt) {
		return engine.UnauthorizedError("Refresh token expired")
	}

	userID := store.AsString(row["user_id"])
	user, err := store.SelectOne(ctx, h.store.DB, d, "_users", store.Eq("id", userID))
	if err != nil || !store.AsBool(user["active"]) {
		return engine.UnauthorizedError("Account is disabled")
	}

	pair, err := h.generateTokenPair(ctx, userID, store.AsString(user["email"]))
	if err != nil {
		return err
	}

	h.hub.Publish(SessionEvent{Type: EventTokenRefreshed, UserID: userID})
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout. The theme preference is kept on the
// profile and survives.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.UserContext()
	row, err := store.SelectOne(ctx, h.store.DB, h.store.Dialect, "_refresh_tokens", store.Eq("token", body.RefreshToken))
	if err == nil {
		_, _ = store.Delete(ctx, h.store.DB, h.store.Dialect, "_refresh_tokens", []store.Filter{store.Eq("id", row["id"])})
		h.hub.Publish(SessionEvent{Type: EventSignedOut, UserID: store.AsString(row["user_id"])})
	}

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Session handles GET /api/auth/session.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	company, err := store.SelectOne(c.UserContext(), h.store.DB, h.store.Dialect, "companies", store.Eq("id", user.CompanyID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.ForbiddenError("Company not found")
		}
		return err
	}
	company["flow_active"] = store.AsBool(company["flow_active"])
	return c.JSON(fiber.Map{"data": fiber.Map{"user": user, "company": company}})
}

// Events handles GET /api/auth/events, a server-sent event stream of the
// user's session changes.
func (h *AuthHandler) Events(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe(user.ID)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(SSEKeepAlive)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, b)
				if ev.Type == EventSignedOut {
					_ = w.Flush()
					return
				}
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// GetPreferences handles GET /api/preferences.
func (h *AuthHandler) GetPreferences(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	theme := user.Theme
	if theme == "" {
		theme = "light"
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"theme": theme}})
}

// UpdatePreferences handles PUT /api/preferences.
func (h *AuthHandler) UpdatePreferences(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}
	var body struct {
		Theme string `json:"theme"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.InvalidPayloadError("Invalid request body")
	}
	if body.Theme != "light" && body.Theme != "dark" {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "theme", Rule: "enum", Message: "theme must be light or dark"}})
	}

	ctx := c.UserContext()
	if _, err := store.Update(ctx, h.store.DB, h.store.Dialect, "profiles",
		map[string]any{"theme": body.Theme}, []store.Filter{store.Eq("id", user.ID)}); err != nil {
		log.Printf("ERROR: update theme: %v", err)
		return engine.SaveError("save preferences")
	}
	instrument.GetInstrumenter(ctx).EmitBusinessEvent(ctx, "preferences.updated", "profiles", user.ID, map[string]any{"theme": body.Theme})
	return c.JSON(fiber.Map{"data": fiber.Map{"theme": body.Theme}})
}

// RegisterAuthRoutes registers auth and preference routes. authMW guards
// everything except login, refresh and logout; the session event stream
// also takes its token from the query string.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler, authMW fiber.Handler) {
	auth := app.Group("/api/auth")
	auth.Post("/login", h.Login)
	auth.Post("/refresh", h.Refresh)
	auth.Post("/logout", h.Logout)
	auth.Get("/session", authMW, h.Session)
	auth.Get("/events", StreamAuthMiddleware(h.jwtSecret, h.store), h.Events)

	prefs := app.Group("/api/preferences", authMW)
	prefs.Get("/", h.GetPreferences)
	prefs.Put("/", h.UpdatePreferences)
}

// --- helpers ---

func (h *AuthHandler) generateTokenPair(ctx context.Context, userID, email string) (*TokenPair, error) {
	accessToken, expires, err := GenerateAccessToken(userID, email, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	_, err = store.Insert(ctx, h.store.DB, h.store.Dialect, "_refresh_tokens", map[string]any{
		"id":         uuid.New().String(),
		"user_id":    userID,
		"token":      refreshToken,
		"expires_at": time.Now().Add(RefreshTokenTTL).UTC(),
	})
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expires,
	}, nil
}
