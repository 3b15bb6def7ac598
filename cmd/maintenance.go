package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront-catalog/internal/config"
	"storefront-catalog/internal/domain"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, false, false, func(a *app) error {
			applied, err := a.store.Migrate(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Bulk upsert products from a JSON array",
	Long: `Reads a JSON array of product objects and upserts them by SKU in a single
transaction. Rows that fail are reported by their position in the file; the
rest of the batch is still applied.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read import file: %w", err)
		}
		raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
		var inputs []domain.ProductInput
		if err := json.Unmarshal(raw, &inputs); err != nil {
			return fmt.Errorf("import file must hold a JSON array of product objects: %w", err)
		}

		return withApp(cmd, true, false, func(a *app) error {
			result, err := a.service.ImportProducts(cmd.Context(), inputs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total=%d inserted=%d updated=%d failed=%d\n",
				len(inputs), result.Inserted, result.Updated, len(result.Errors))
			for _, rowErr := range result.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  row %d (%s): %s\n", rowErr.Index, rowErr.SKU, rowErr.Error)
			}
			return nil
		})
	},
}

var refreshHomeCmd = &cobra.Command{
	Use:   "refresh-home",
	Short: "Regenerate the cached home bundle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, false, true, func(a *app) error {
			bundle, stored, err := a.service.RefreshHome(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "popular=%d specialPrices=%d stored=%t generated_at=%s\n",
				len(bundle.Popular), len(bundle.SpecialPrices), stored, bundle.GeneratedAt.Format(time.RFC3339))
			return nil
		})
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, false, true, func(a *app) error {
			n, err := a.service.ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files_cleared=%d\n", n)
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(migrateCmd, importCmd, refreshHomeCmd, cacheCmd)
}

// withApp loads configuration, wires the app for a one-shot command and
// closes it afterwards. Commands that act on the cache a running server reads
// set sharedCache; they refuse the in-memory driver, whose entries die with
// this process.
func withApp(cmd *cobra.Command, migrate, sharedCache bool, run func(*app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if sharedCache && cfg.Cache.Enabled && cfg.Cache.Driver == "memory" {
		return fmt.Errorf("%s: CACHE_DRIVER=memory is private to each process; use the admin API of the running server or a file or redis cache", cmd.CommandPath())
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg.LogLevel), migrate)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(a)
}
