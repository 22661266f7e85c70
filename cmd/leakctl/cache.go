package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leakctl/leakctl/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the response cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache contents and configuration",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached response",
	RunE:  runCacheClear,
}

var cacheSetTTLCmd = &cobra.Command{
	Use:   "set-ttl <duration>",
	Short: "Change the lifetime applied to new entries",
	Long: `Change how long cached responses stay valid.

Accepts a Go duration ("90s", "15m", "1h") or a bare number of
seconds. Entries already cached keep the lifetime they were stored
with.`,
	Args: cobra.ExactArgs(1),
	RunE: runCacheSetTTL,
}

var cacheShowTTLCmd = &cobra.Command{
	Use:   "show-ttl",
	Short: "Show the lifetime applied to new entries",
	RunE:  runCacheShowTTL,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheSetTTLCmd, cacheShowTTLCmd)
}

func openCache(ctx context.Context) (*cache.Cache, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	return cache.New(ctx, store, log), nil
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	st, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("location: %s\n", st.Location)
	fmt.Printf("entries:  %d (%d active)\n", st.Entries, st.Active)
	fmt.Printf("size:     %s\n", humanBytes(st.Bytes))
	fmt.Printf("ttl:      %s\n", st.TTL)
	if st.Entries > 0 {
		fmt.Printf("oldest:   %s\n", st.OldestAge.Round(time.Second))
		fmt.Printf("newest:   %s\n", st.NewestAge.Round(time.Second))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	removed := -1
	if st, err := c.Stats(cmd.Context()); err == nil {
		removed = st.Entries
	}
	if err := c.Clear(cmd.Context()); err != nil {
		return err
	}
	if removed >= 0 {
		fmt.Printf("cleared %d entries\n", removed)
	} else {
		fmt.Println("cache cleared")
	}
	return nil
}

func runCacheSetTTL(cmd *cobra.Command, args []string) error {
	ttl, err := parseTTL(args[0])
	if err != nil {
		return fmt.Errorf("bad ttl %q: %w", args[0], err)
	}
	c, err := openCache(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.SetTTL(cmd.Context(), ttl); err != nil {
		return err
	}
	fmt.Printf("ttl set to %s\n", ttl)
	return nil
}

func runCacheShowTTL(cmd *cobra.Command, args []string) error {
	c, err := openCache(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println(c.TTL())
	return nil
}

// parseTTL reads a Go duration, or a bare integer as seconds.
func parseTTL(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
