package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/fieldflow/internal/form"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Inspect stored form definitions",
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored forms",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, _, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		records, err := store.ListForms(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FORM\tENTRIES\tETAG\tUPDATED\tBY")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.Name, r.EntryCount, r.ETag, r.UpdatedAt.Format(time.RFC3339), r.UpdatedBy)
		}
		return w.Flush()
	},
}

var formsExportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Print a stored form definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, _, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		def, _, err := store.LoadDefinition(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := form.MarshalDefinition(def)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var formsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a stored form with its entries and messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, _, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		return store.DeleteForm(ctx, args[0])
	},
}

func init() {
	formsCmd.AddCommand(formsListCmd, formsExportCmd, formsDeleteCmd)
	rootCmd.AddCommand(formsCmd)
}
