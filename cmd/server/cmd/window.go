package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lowc1012/flight-change-api/internal/config"
	"github.com/lowc1012/flight-change-api/internal/ratelimiter"
	"github.com/lowc1012/flight-change-api/internal/store"
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Inspect or reset the rate limit window of a client",
	Long: `Operate on the sliding window the gate keeps in Redis for one client
identity (its address as seen by the gate, e.g. 203.0.113.7).

  window inspect <identity>   list the admission records and their expiry
  window prune <identity>     drop the records older than the window
  window reset <identity>     delete the whole window`,
}

var windowInspectCmd = &cobra.Command{
	Use:   "inspect <identity>",
	Short: "List the admission records of a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runWindowInspect,
}

var windowPruneCmd = &cobra.Command{
	Use:   "prune <identity>",
	Short: "Drop the admission records older than the window",
	Args:  cobra.ExactArgs(1),
	RunE:  runWindowPrune,
}

var windowResetCmd = &cobra.Command{
	Use:   "reset <identity>",
	Short: "Delete the window of a client",
	Args:  cobra.ExactArgs(1),
	RunE:  runWindowReset,
}

func init() {
	windowCmd.AddCommand(windowInspectCmd, windowPruneCmd, windowResetCmd)
	rootCmd.AddCommand(windowCmd)
}

// openWindow loads the configuration and connects to the window store.
func openWindow(ctx context.Context) (*config.Config, *store.RedisStore, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	s, err := store.NewRedisStore(store.Options{
		URL:               cfg.Store.URL,
		Timeout:           cfg.Store.Timeout,
		ReconnectInterval: cfg.Store.ReconnectInterval,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := s.Connect(ctx); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return cfg, s, nil
}

func runWindowInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := openWindow(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	key := ratelimiter.WindowKey(cfg.RateLimit.Prefix, args[0])
	records, err := s.Records(ctx, key)
	if err != nil {
		return err
	}
	ttl, err := s.TTL(ctx, key)
	if err != nil {
		return err
	}

	start := time.Now().Add(-cfg.RateLimit.Window)
	var live int
	for _, rec := range records {
		if rec.At.After(start) {
			live++
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "key:       %s\n", key)
	fmt.Fprintf(out, "records:   %d (%d within the last %s)\n", len(records), live, cfg.RateLimit.Window)
	fmt.Fprintf(out, "limit:     %d\n", cfg.RateLimit.Requests)
	if ttl > 0 {
		fmt.Fprintf(out, "expires:   %s\n", ttl.Round(time.Millisecond))
	} else {
		fmt.Fprintln(out, "expires:   never")
	}
	for _, rec := range records {
		fmt.Fprintf(out, "  %s  %s\n", rec.At.UTC().Format(time.RFC3339Nano), rec.Member)
	}
	return nil
}

func runWindowPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := openWindow(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	key := ratelimiter.WindowKey(cfg.RateLimit.Prefix, args[0])
	cutoff := time.Now().Add(-cfg.RateLimit.Window).UnixMilli()
	removed, err := s.RemoveRangeByScore(ctx, key, 0, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d records from %s\n", removed, key)
	return nil
}

func runWindowReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, s, err := openWindow(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	key := ratelimiter.WindowKey(cfg.RateLimit.Prefix, args[0])
	if err := s.Reset(ctx, key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", key)
	return nil
}
