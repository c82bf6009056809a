package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates every table the dashboard uses and seeds a default
// company with an admin user when the database is empty.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range splitStatements(s.Dialect.SchemaSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func splitStatements(ddl string) []string {
	var out []string
	for _, part := range strings.Split(ddl, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	row, err := QueryRow(ctx, s.DB, "SELECT COUNT(*) AS n FROM _users")
	if err != nil {
		return err
	}
	if AsInt(row["n"]) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	companyID := uuid.New().String()
	userID := uuid.New().String()

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := Insert(ctx, tx, s.Dialect, "companies", map[string]any{
			"id":   companyID,
			"name": "Default",
		}); err != nil {
			return err
		}
		if _, err := Insert(ctx, tx, s.Dialect, "_users", map[string]any{
			"id":            userID,
			"email":         "admin@localhost",
			"password_hash": string(hash),
		}); err != nil {
			return err
		}
		if _, err := Insert(ctx, tx, s.Dialect, "profiles", map[string]any{
			"id":         userID,
			"name":       "Admin",
			"company_id": companyID,
		}); err != nil {
			return err
		}
		log.Println("WARNING: Default admin user created (admin@localhost / changeme). Change the password immediately.")
		return nil
	})
}
