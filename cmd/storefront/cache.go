package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/agentuity/storefront/catalog"
	"github.com/agentuity/storefront/menu"
	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and refresh the local menu snapshots",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "refresh [categories|items]",
		Short:     "Reload snapshots from the remote store",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(catalog.KindCategories), string(catalog.KindItems)},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			var kind catalog.Kind
			if len(args) == 1 {
				kind = catalog.Kind(args[0])
			}
			if err := a.catalog.Refresh(cmd.Context(), kind); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), a.catalog.Status())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the snapshot state and the menu it serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			sections := a.catalog.Menu(cmd.Context())
			out := cmd.OutOrStdout()
			printStatus(out, a.catalog.Status())
			fmt.Fprintln(out)
			printMenu(out, sections)
			return nil
		},
	})
	return cmd
}

func printStatus(w io.Writer, status []catalog.SnapshotStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tSTATE\tLOADED\tRECORDS\tPENDING")
	for _, s := range status {
		loaded := "never"
		if !s.LoadedAt.IsZero() {
			loaded = s.LoadedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", s.Kind, s.State, loaded, s.Records, s.Pending)
	}
	tw.Flush()
}

func printMenu(w io.Writer, sections []catalog.Section) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, section := range sections {
		fmt.Fprintf(tw, "%s\n", section.Category.Name)
		for _, item := range section.Items {
			price := "-"
			if item.Price != nil {
				price = menu.FormatPrice(*item.Price)
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\tqty %d\n", item.ID, item.Name, price, item.Quantity)
		}
	}
	tw.Flush()
}
