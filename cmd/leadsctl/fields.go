package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"leads-dashboard/internal/fieldconfig"
)

var fieldsCompany string

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Manage custom lead fields",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if fieldsCompany == "" {
			return errors.New("--company is required")
		}
		return nil
	},
}

var fieldsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a company's fields in column order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		defs, err := fieldconfig.New(st).List(ctx, fieldsCompany)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tKEY\tLABEL\tTYPE\tREQUIRED")
		for _, d := range defs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", d.Order, d.Key, d.Label, d.Type, d.Required)
		}
		return w.Flush()
	},
}

var fieldsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create fields from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		defs, err := fieldconfig.ParseImport(f)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		failed := 0
		results := fieldconfig.New(st).Import(ctx, fieldsCompany, defs)
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "skip %s: %v\n", r.Key, r.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", r.Key)
		}
		if failed < len(results) {
			if err := invalidateSnapshots(ctx, fieldsCompany); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: dashboards may show the old fields until the cache expires: %v\n", err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d fields not imported", failed, len(defs))
		}
		return nil
	},
}

func init() {
	fieldsCmd.PersistentFlags().StringVar(&fieldsCompany, "company", "", "Company id")
	fieldsCmd.AddCommand(fieldsListCmd, fieldsImportCmd)
	rootCmd.AddCommand(fieldsCmd)
}
