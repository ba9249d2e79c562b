package main

import (
	"fmt"
	"time"

	"github.com/agentuity/storefront/seed"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func newSeedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import categories, items and settings from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, _ := cmd.Flags().GetString("file")
			doc, err := seed.Load(file)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := seed.Apply(cmd.Context(), a.catalog, a.settings, doc)
			a.drain(time.Minute)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "categories created: %d, items created: %d, items updated: %d\n",
				sum.CategoriesCreated, sum.ItemsCreated, sum.ItemsUpdated)
			if failed := len(a.mirror.Failed()); failed > 0 {
				return errors.Newf("%d changes were saved locally but not synced to the remote store", failed)
			}
			return nil
		},
	}
	cmd.Flags().String("file", "menu.yaml", "seed file")
	return cmd
}
