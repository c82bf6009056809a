package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leads-dashboard/internal/auth"
	"leads-dashboard/internal/store"
)

var (
	userCompany  string
	userName     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage dashboard users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create a user with a profile in a company",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userCompany == "" || userPassword == "" {
			return errors.New("--company and --password are required")
		}
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := store.SelectOne(ctx, st.DB, st.Dialect, "companies", store.Eq("id", userCompany)); err != nil {
			return fmt.Errorf("company %s: %w", userCompany, err)
		}
		hash, err := auth.HashPassword(userPassword)
		if err != nil {
			return err
		}

		id := uuid.New().String()
		err = st.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := store.Insert(ctx, tx, st.Dialect, "_users", map[string]any{
				"id":            id,
				"email":         strings.ToLower(strings.TrimSpace(args[0])),
				"password_hash": hash,
			}); err != nil {
				return err
			}
			_, err := store.Insert(ctx, tx, st.Dialect, "profiles", map[string]any{
				"id":         id,
				"name":       userName,
				"company_id": userCompany,
			})
			return err
		})
		if errors.Is(err, store.ErrUniqueViolation) {
			return fmt.Errorf("a user with email %s already exists", args[0])
		}
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userCompany, "company", "", "Company id")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Initial password")
	userCmd.AddCommand(userCreateCmd)
	rootCmd.AddCommand(userCmd)
}
