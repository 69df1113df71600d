package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"serial2epub/extractor"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or empty the chapter cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the number and size of cached chapters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(h *CacheHandle) error {
			stats, err := h.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "directory:    %s\n", cfg.Cache.Dir)
			fmt.Fprintf(out, "chapters:     %d\n", stats.EntryCount)
			fmt.Fprintf(out, "size:         %s\n", humanize.Bytes(uint64(stats.TotalBytes)))
			if stats.EntryCount > 0 {
				fmt.Fprintf(out, "oldest entry: %s\n", humanize.Time(time.Now().Add(-stats.OldestEntryAge)))
			}
			if !stats.LastCleanup.IsZero() {
				fmt.Fprintf(out, "last cleanup: %s\n", humanize.Time(stats.LastCleanup))
			}
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached chapter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(h *CacheHandle) error {
			if err := h.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "chapter cache cleared")
			return nil
		})
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict chapters older than --cache-max-age now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCache(func(h *CacheHandle) error {
			evicted, err := h.EvictOlderThan(cmd.Context(), cfg.Cache.MaxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d chapters\n", evicted)
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheCleanupCmd)
	RootCmd.AddCommand(cacheCmd)
}

func withCache(fn func(*CacheHandle) error) error {
	if cfg.Cache.Disabled {
		return fmt.Errorf("chapter cache is disabled")
	}
	injector := newContainer(cfg, log, extractor.BuiltinOptions{}, "")
	defer shutdown(injector)
	return fn(do.MustInvoke[*CacheHandle](injector))
}
