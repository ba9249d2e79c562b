package main

import (
	"fmt"
	"os"

	"github.com/agentuity/storefront/store"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Restaurant menu storefront with WhatsApp ordering",
		Version:       store.Version + " (" + store.Commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.String("env-file", ".env", "environment file loaded before parsing the configuration")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json, auto)")
	flags.String("cache-dir", "", "directory for the menu snapshot files")
	flags.Duration("cache-ttl", 0, "how long a menu snapshot is served before it is refreshed")
	flags.String("sqlite", "", "use a local SQLite database instead of the hosted store")

	root.AddCommand(newServeCommand(), newCacheCommand(), newSeedCommand(), newTokenCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
