package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/fieldflow/internal/core/config"
	"github.com/solatis/fieldflow/internal/form"
)

var importCmd = &cobra.Command{
	Use:   "import FILE...",
	Short: "Validate YAML form definitions and store them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("updated-by", "cli", "name recorded as the author of the import")
	importCmd.Flags().Bool("dry-run", false, "validate only, do not store")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	updatedBy, _ := cmd.Flags().GetString("updated-by")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	type compiled struct {
		path string
		def  *form.Definition
	}
	var batch []compiled
	for _, path := range args {
		def, err := form.LoadCompiled(path, cfg.Engine.CompileOptions())
		if err != nil {
			return err
		}
		batch = append(batch, compiled{path: path, def: def})
	}
	if dryRun {
		for _, c := range batch {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: form %q ok (%d entries)\n", c.path, c.def.Name, len(c.def.Entries))
		}
		return nil
	}

	database, _, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	for _, c := range batch {
		rec, changed, err := store.SaveDefinition(ctx, c.def.FormDefinition, c.def.Entries, updatedBy)
		if err != nil {
			return fmt.Errorf("%s: %w", c.path, err)
		}
		state := "unchanged"
		if changed {
			state = "stored"
		}
		slog.Info("form imported", "file", c.path, "form", rec.Name, "etag", rec.ETag, "changed", changed)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: form %q %s (etag %s, %d entries)\n", c.path, rec.Name, state, rec.ETag, rec.EntryCount)
	}
	return nil
}
