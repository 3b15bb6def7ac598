package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultAppName = "StorefrontCatalog" // App name for logger
)

var rootCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Storefront catalog API",
	Long: `Serves the storefront product catalog: product search and listing,
categories, tags and the home bundle, plus the admin API for product upserts,
bulk import and cache management.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// newLogger returns the service logger. Lines tagged below level (LOG_LEVEL)
// are dropped.
func newLogger(level string) *log.Logger {
	return log.New(newLevelFilter(os.Stdout, level), fmt.Sprintf("[%s] ", defaultAppName), log.LstdFlags|log.Lshortfile|log.Lmicroseconds)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
