package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/solatis/fieldflow/internal/core/config"
	"github.com/solatis/fieldflow/internal/derivation"
	"github.com/solatis/fieldflow/internal/form"
	"github.com/solatis/fieldflow/internal/types"
)

var affectedCmd = &cobra.Command{
	Use:   "affected FIELD...",
	Short: "List the derivation entries a change to the given fields would schedule",
	Long: `Looks up the entries affected by the changed fields, from a YAML
definition (--definition) or a stored form (--form), and prints them as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAffected,
}

func init() {
	rootCmd.AddCommand(affectedCmd)
	affectedCmd.Flags().String("definition", "", "YAML form definition file")
	affectedCmd.Flags().String("form", "", "name of a stored form")
	affectedCmd.MarkFlagsMutuallyExclusive("definition", "form")
	affectedCmd.MarkFlagsOneRequired("definition", "form")
}

type affectedEntry struct {
	ID         string   `json:"id"`
	Target     string   `json:"target"`
	DependsOn  []string `json:"dependsOn"`
	Trigger    string   `json:"trigger"`
	DebounceMs int      `json:"debounceMs,omitempty"`
}

type affectedOutput struct {
	Changed         []string        `json:"changed"`
	Entries         []affectedEntry `json:"entries"`
	DebouncePeriods []int           `json:"debouncePeriods"`
}

func runAffected(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	definitionPath, _ := cmd.Flags().GetString("definition")
	formName, _ := cmd.Flags().GetString("form")

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var entries []*types.DerivationEntry
	if definitionPath != "" {
		def, err := form.LoadCompiled(definitionPath, cfg.Engine.CompileOptions())
		if err != nil {
			return err
		}
		entries = def.Entries
	} else {
		entries, err = storedEntries(ctx, formName)
		if err != nil {
			return err
		}
	}

	index := derivation.NewCollection(derivation.StaticEntries(entries))
	return writeAffected(cmd.OutOrStdout(), index, args)
}

func storedEntries(ctx context.Context, name string) ([]*types.DerivationEntry, error) {
	database, _, store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	_, rec, err := store.LoadDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	return store.LoadEntries(ctx, rec.FormID)
}

// writeAffected prints the entries affected by changed as indented JSON.
func writeAffected(w io.Writer, index *derivation.Collection, changed []string) error {
	out := affectedOutput{
		Changed:         changed,
		Entries:         []affectedEntry{},
		DebouncePeriods: []int{},
	}
	periods := make(map[int]bool)
	for _, e := range index.EntriesForChangedFields(derivation.NewFieldSet(changed...)) {
		out.Entries = append(out.Entries, affectedEntry{
			ID:         string(e.ID),
			Target:     e.TargetFieldKey,
			DependsOn:  e.DependsOn,
			Trigger:    string(e.Trigger),
			DebounceMs: e.DebounceMs,
		})
		if e.IsDebounced() {
			periods[e.EffectiveDebounceMs()] = true
		}
	}
	for _, ms := range index.DebouncePeriods() {
		if periods[ms] {
			out.DebouncePeriods = append(out.DebouncePeriods, ms)
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
