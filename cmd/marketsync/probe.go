package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/marketsync/internal/config"
	"github.com/rickgao/marketsync/internal/worlds"
)

var (
	probeWorld string
	probeItem  int32
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Exercise the snapshot API and print what comes back",
	Long: `Calls every snapshot API endpoint the engine depends on (hierarchy,
marketable items, recently updated, market data) and prints a short summary
of each. Nothing is written to the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
		defer cancel()
		return probe(ctx, cmd.OutOrStdout())
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeWorld, "world", "", "world to query (default: first world in the hierarchy)")
	probeCmd.Flags().Int32Var(&probeItem, "item", 0, "item to fetch market data for (default: first marketable item)")
	rootCmd.AddCommand(probeCmd)
}

func probe(ctx context.Context, out io.Writer) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}
	client := newAPIClient(cfg, newLogger(cfg.Logging))

	// Test 1: Hierarchy
	fmt.Fprintln(out, "=== Hierarchy ===")
	cache, err := worlds.Load(ctx, client)
	if err != nil {
		return fmt.Errorf("hierarchy: %w", err)
	}
	fmt.Fprintf(out, "Regions: %d, worlds: %d\n", len(cache.Regions()), len(cache.Worlds()))

	world := probeWorld
	if world == "" {
		all := cache.Worlds()
		if len(all) == 0 {
			return fmt.Errorf("hierarchy has no worlds")
		}
		world = all[0].Name
	}

	// Test 2: Marketable items
	fmt.Fprintln(out, "\n=== Marketable ===")
	items, err := client.Marketable(ctx)
	if err != nil {
		return fmt.Errorf("marketable: %w", err)
	}
	fmt.Fprintf(out, "Marketable items: %d\n", len(items))

	// Test 3: Recently updated
	ref, err := cache.Resolve(world)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n=== Recently updated (%s %s) ===\n", ref.Level, world)
	recent, err := client.RecentlyUpdated(ctx, world, ref.Level, 5)
	if err != nil {
		return fmt.Errorf("recently updated: %w", err)
	}
	for i, r := range recent {
		fmt.Fprintf(out, "  %d. item=%d world=%d updated=%s\n",
			i+1, r.ItemID, r.WorldID, time.UnixMicro(r.UploadedAt).UTC().Format(time.RFC3339))
	}

	// Test 4: Market data
	item := probeItem
	if item == 0 && len(items) > 0 {
		item = items[0]
	}
	if item == 0 {
		fmt.Fprintln(out, "\nNo item to fetch market data for.")
		return nil
	}
	fmt.Fprintf(out, "\n=== Market data (%s, item %d) ===\n", world, item)
	view, err := client.MarketData(ctx, world, []int32{item})
	if err != nil {
		return fmt.Errorf("market data: %w", err)
	}
	if m, ok := view.Items[item]; ok {
		fmt.Fprintf(out, "Listings: %d, recent sales: %d\n", len(m.Listings), len(m.RecentHistory))
		for i, l := range m.Listings {
			if i >= 3 {
				break
			}
			fmt.Fprintf(out, "  %d x%d hq=%v retainer=%s\n", l.PricePerUnit, l.Quantity, l.HQ, l.RetainerName)
		}
	}

	fmt.Fprintln(out, "\n=== All API checks passed ===")
	return nil
}
