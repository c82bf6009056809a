package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"leads-dashboard/internal/store"
)

var (
	companyLegalName   string
	companyMaxUsers    int
	companyMaxContacts int
)

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage companies",
}

var companyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a company and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		row := map[string]any{
			"id":           uuid.New().String(),
			"name":         args[0],
			"max_users":    companyMaxUsers,
			"max_contacts": companyMaxContacts,
		}
		if companyLegalName != "" {
			row["legal_name"] = companyLegalName
		}
		saved, err := store.Insert(ctx, st.DB, st.Dialect, "companies", row)
		if err != nil {
			return fmt.Errorf("create company: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), store.AsString(saved["id"]))
		return nil
	},
}

var companyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := store.Select(ctx, st.DB, st.Dialect, "companies", nil, store.Order{Column: "name"})
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", store.AsString(r["id"]), store.AsString(r["name"]))
		}
		return nil
	},
}

func init() {
	companyCreateCmd.Flags().StringVar(&companyLegalName, "legal-name", "", "Registered company name")
	companyCreateCmd.Flags().IntVar(&companyMaxUsers, "max-users", 0, "User limit (0 for none)")
	companyCreateCmd.Flags().IntVar(&companyMaxContacts, "max-contacts", 0, "Contact limit (0 for none)")
	companyCmd.AddCommand(companyCreateCmd, companyListCmd)
	rootCmd.AddCommand(companyCmd)
}
