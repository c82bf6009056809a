package auth

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/engine"
	"leads-dashboard/internal/instrument"
	"leads-dashboard/internal/store"
)

// User is the authenticated user and the company their profile belongs to.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CompanyID string `json:"company_id"`
	Theme     string `json:"theme"`
}

// AuthMiddleware validates the bearer token, loads the user's profile and
// scopes the request to the profile's company.
func AuthMiddleware(secret string, st *store.Store) fiber.Handler {
	return authenticate(secret, st, false)
}

// StreamAuthMiddleware is AuthMiddleware for EventSource streams, which
// cannot send headers: an access_token query parameter is accepted too.
func StreamAuthMiddleware(secret string, st *store.Store) fiber.Handler {
	return authenticate(secret, st, true)
}

func authenticate(secret string, st *store.Store, queryToken bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string
		if queryToken {
			token = c.Query("access_token")
		}
		if header := c.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return engine.UnauthorizedError("Invalid auth header format")
			}
			token = parts[1]
		}
		if token == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		ctx := c.UserContext()
		profile, err := store.SelectOne(ctx, st.DB, st.Dialect, "profiles", store.Eq("id", claims.Subject))
		if errors.Is(err, store.ErrNotFound) {
			return engine.ForbiddenError("No company is linked to this user")
		}
		if err != nil {
			log.Printf("ERROR: load profile %s: %v", claims.Subject, err)
			return engine.FetchError("profile")
		}

		user := &User{
			ID:        claims.Subject,
			Email:     claims.Email,
			Name:      store.AsString(profile["name"]),
			CompanyID: store.AsString(profile["company_id"]),
			Theme:     store.AsString(profile["theme"]),
		}
		c.Locals("user", user)
		c.Locals(instrument.LocalUserID, user.ID)
		c.Locals(instrument.LocalCompanyID, user.CompanyID)
		ctx = instrument.WithUserID(ctx, user.ID)
		ctx = instrument.WithCompanyID(ctx, user.CompanyID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// GetUser extracts the User from a Fiber context.
func GetUser(c *fiber.Ctx) *User {
	user, _ := c.Locals("user").(*User)
	return user
}
