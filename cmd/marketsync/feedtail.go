package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/marketsync/internal/config"
	"github.com/rickgao/marketsync/internal/connection"
	"github.com/rickgao/marketsync/internal/feed"
	"github.com/rickgao/marketsync/internal/router"
)

var (
	tailVerbose  bool
	tailChannels []string
)

var feedtailCmd = &cobra.Command{
	Use:   "feedtail",
	Short: "Stream decoded push feed messages to the console",
	Long: `Connects to the push feed without touching the store and prints every
decoded message. Useful for checking connectivity and channel filters.`,
	Example: `  marketsync feedtail --channel 'listings/add{world=73}' --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return feedtail(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	feedtailCmd.Flags().BoolVar(&tailVerbose, "verbose", false, "print full message JSON")
	feedtailCmd.Flags().StringSliceVar(&tailChannels, "channel", nil, "channel in wire form (repeatable; default from config)")
	rootCmd.AddCommand(feedtailCmd)
}

func feedtail(parent context.Context, out io.Writer) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	// Only feed settings matter here, so the store section is not validated.
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	channels := feed.ChannelsFor(cfg.Feed.Worlds)
	if len(tailChannels) > 0 {
		channels = channels[:0]
		for _, s := range tailChannels {
			ch, err := feed.ParseChannel(s)
			if err != nil {
				return err
			}
			channels = append(channels, ch)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := connection.NewManager(managerConfig(cfg), logger)
	for _, ch := range channels {
		if err := mgr.Subscribe(ch); err != nil {
			return err
		}
	}

	rtr := router.NewRouter(mgr.Messages(), router.HandlerFunc(func(_ context.Context, msg feed.Message) {
		printMessage(out, msg, tailVerbose)
	}), logger)

	if err := rtr.Start(ctx); err != nil {
		return err
	}
	logger.Info("starting connection manager", "url", cfg.Feed.URL, "channels", len(channels))
	if err := mgr.Start(ctx); err != nil {
		return err
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				routerStats := rtr.Stats()
				connStats := mgr.Stats()
				logger.Info("stats",
					"connected", connStats.Connected,
					"subscriptions", connStats.Subscriptions,
					"reconnects", connStats.Reconnects,
					"router_received", routerStats.MessagesReceived,
					"router_routed", routerStats.MessagesRouted,
					"parse_errors", routerStats.ParseErrors,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down...")
	mgr.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)
	logger.Info("shutdown complete")
	return nil
}

func printMessage(out io.Writer, msg feed.Message, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Fprintf(out, "[%s] %s\n", msg.Event, data)
		return
	}

	switch msg.Event {
	case feed.EventListingsAdd, feed.EventListingsRemove:
		low := int32(0)
		for i, l := range msg.Listings {
			if i == 0 || l.PricePerUnit < low {
				low = l.PricePerUnit
			}
		}
		fmt.Fprintf(out, "[%s] world=%d item=%d listings=%d low=%d\n",
			msg.Event, msg.WorldID, msg.ItemID, len(msg.Listings), low)
	default:
		fmt.Fprintf(out, "[%s] world=%d item=%d sales=%d\n",
			msg.Event, msg.WorldID, msg.ItemID, len(msg.Sales))
	}
}
