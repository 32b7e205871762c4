package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/linkside/gateway/adapters/clock"
	"github.com/linkside/gateway/adapters/memory"
	"github.com/linkside/gateway/adapters/mongo"
	"github.com/linkside/gateway/adapters/sqlite"
	"github.com/linkside/gateway/app"
	"github.com/linkside/gateway/config"
	"github.com/linkside/gateway/domain/tier"
	"github.com/linkside/gateway/ports"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage gateway API keys.

Each user can have multiple API keys. The key prefix encodes the tier,
so a key's tier is visible without a store lookup.

Examples:
  gateway keys list
  gateway keys list --user=user_123
  gateway keys create --user=user_123 --tier=premium
  gateway keys revoke prem_abc123...`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <raw-key>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var (
	keyUserID  string
	keyTier    string
	keyExpires time.Duration
	keyQuota   int64
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysListCmd.Flags().StringVar(&keyUserID, "user", "", "filter by user ID")
	keysCreateCmd.Flags().StringVar(&keyUserID, "user", "", "user ID (required)")
	keysCreateCmd.Flags().StringVar(&keyTier, "tier", "free", "tier: free, premium, business, or enterprise")
	keysCreateCmd.Flags().DurationVar(&keyExpires, "expires", 0, "key lifetime (0 = never expires)")
	keysCreateCmd.Flags().Int64Var(&keyQuota, "quota", 0, "lifetime request quota (0 = unmetered)")
	keysCreateCmd.MarkFlagRequired("user")
}

func runKeysList(cmd *cobra.Command, args []string) error {
	store, cleanup, err := openStore()
	if err != nil {
		return err
	}
	defer cleanup()

	filter := ports.Filter{}
	if keyUserID != "" {
		filter["user_id"] = keyUserID
	}

	docs, err := store.Find(context.Background(), ports.CollectionAPIKeys, filter)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(docs) == 0 {
		if keyUserID != "" {
			fmt.Printf("No keys found for user %s.\n", keyUserID)
		} else {
			fmt.Println("No API keys found.")
		}
		fmt.Println()
		fmt.Println("Create a key with: gateway keys create --user=<user-id>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tUSER\tTIER\tSTATUS\tCREATED")
	fmt.Fprintln(w, "---\t----\t----\t------\t-------")

	for _, doc := range docs {
		rawKey, _ := doc["api_key"].(string)
		userID, _ := doc["user_id"].(string)
		tierName, _ := doc["tier"].(string)
		status := "revoked"
		if active, _ := doc["is_active"].(bool); active {
			status = "active"
		}
		created, _ := doc["created_at"].(string)
		if len(created) > 10 {
			created = created[:10]
		}
		fmt.Fprintf(w, "%s...\t%s\t%s\t%s\t%s\n", truncateKey(rawKey), userID, tierName, status, created)
	}

	w.Flush()
	return nil
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	t, ok := tier.FromName(keyTier)
	if !ok {
		return fmt.Errorf("unknown tier: %s", keyTier)
	}

	store, cleanup, err := openStore()
	if err != nil {
		return err
	}
	defer cleanup()

	creds := newCredentialService(store)
	defer creds.Close()

	var quota *int64
	if keyQuota > 0 {
		quota = &keyQuota
	}

	rawKey, err := creds.IssueKey(context.Background(), keyUserID, t, keyExpires, quota)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("Created %s API key for user %s\n", t, keyUserID)
	fmt.Println()
	fmt.Println("API Key (save this, shown once):")
	fmt.Printf("  %s\n", rawKey)

	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	rawKey := args[0]

	store, cleanup, err := openStore()
	if err != nil {
		return err
	}
	defer cleanup()

	creds := newCredentialService(store)
	defer creds.Close()

	if err := creds.RevokeKey(context.Background(), rawKey); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}

	fmt.Printf("Revoked key %s...\n", truncateKey(rawKey))
	return nil
}

// openStore opens the configured document store for CLI use.
func openStore() (ports.DocumentStore, func(), error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	switch cfg.Store.Driver {
	case "memory":
		return memory.NewDocStore(), func() {}, nil

	case "sqlite":
		db, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening store: %w", err)
		}
		return sqlite.NewDocStore(db), func() { db.Close() }, nil

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := mongo.Open(ctx, cfg.Store.DSN, cfg.Store.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("error opening store: %w", err)
		}
		return store, func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			store.Close(closeCtx)
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newCredentialService(store ports.DocumentStore) *app.CredentialService {
	return app.NewCredentialService(app.CredentialDeps{
		Store:  store,
		Clock:  clock.Real{},
		Logger: zerolog.Nop(),
	}, app.CredentialConfig{})
}

func truncateKey(raw string) string {
	if len(raw) <= 12 {
		return raw
	}
	return raw[:12]
}
