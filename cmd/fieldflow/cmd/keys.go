package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/fieldflow/internal/core/auth"
	"github.com/solatis/fieldflow/internal/core/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys for the derivation service",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		secretID, _ := cmd.Flags().GetString("secret-id")

		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		secretID, err = pickSecret(secrets, secretID)
		if err != nil {
			return err
		}

		key, hash, err := auth.GenerateAPIKey(secretID, secrets[secretID])
		if err != nil {
			return err
		}

		database, _, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		id, err := store.CreateAPIKey(ctx, name, hash)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key id: %s\napi key: %s\n", id, key)
		return nil
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke KEY_ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, _, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		return store.RevokeAPIKey(ctx, args[0])
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		database, _, store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer database.Close()

		keys, err := store.ListAPIKeys(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY ID\tNAME\tCREATED\tLAST USED\tREVOKED")
		for _, k := range keys {
			lastUsed, revoked := "-", "-"
			if k.LastUsedAt.Valid {
				lastUsed = k.LastUsedAt.Time.Format(time.RFC3339)
			}
			if k.RevokedAt.Valid {
				revoked = k.RevokedAt.Time.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.APIKeyID, k.Name, k.CreatedAt.Format(time.RFC3339), lastUsed, revoked)
		}
		return w.Flush()
	},
}

// pickSecret returns want when configured, or the only configured secret.
func pickSecret(secrets map[string][]byte, want string) (string, error) {
	if want != "" {
		if _, ok := secrets[want]; !ok {
			return "", fmt.Errorf("secret_id %s is not configured", want)
		}
		return want, nil
	}
	switch len(secrets) {
	case 0:
		return "", fmt.Errorf("no HMAC secrets configured (set FF_HMAC_SECRET environment variable)")
	case 1:
		for id := range secrets {
			return id, nil
		}
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return "", fmt.Errorf("several HMAC secrets configured, choose one with --secret-id (%v)", ids)
}

func init() {
	keysCreateCmd.Flags().String("name", "", "name recorded for the key, e.g. the calling service")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to bind the key to; required when several are configured")
	_ = keysCreateCmd.MarkFlagRequired("name")

	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd, keysListCmd)
	rootCmd.AddCommand(keysCmd)
}
