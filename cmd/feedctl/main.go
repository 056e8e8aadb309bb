package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"feedctl"
	"feedctl/internal/output"
	"feedctl/internal/reconcile"
	"feedctl/internal/storage"
	"feedctl/internal/unionid"
)

var (
	configPath string
	cfg        *storage.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedctl",
		Short: "Reconcile and repair denormalized feed data",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(fixTotalStorysCmd())
	rootCmd.AddCommand(updateMonthlyStoryCountCmd())
	rootCmd.AddCommand(updateDrynessCmd())
	rootCmd.AddCommand(updateFirstPublishedCmd())
	rootCmd.AddCommand(fixOffsetsCmd())
	rootCmd.AddCommand(deleteInvalidFeedsCmd())
	rootCmd.AddCommand(updateUseProxyCmd())
	rootCmd.AddCommand(refreshFeedsCmd())
	rootCmd.AddCommand(updateMathjaxCmd())
	rootCmd.AddCommand(processLinksCmd())
	rootCmd.AddCommand(sanitizeContentCmd())
	rootCmd.AddCommand(updateUserMarkedCmd())
	rootCmd.AddCommand(updateReverseURLCmd())
	rootCmd.AddCommand(decodeIDCmd())
	rootCmd.AddCommand(deleteFeedCmd())
	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg = storage.DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// withEngine opens the engine, runs fn, and closes it. Every subcommand
// goes through here so database lifetime stays uniform.
func withEngine(fn func(ctx context.Context, engine *feedctl.Engine) error) error {
	engine, err := feedctl.NewEngine(cfg, newLogger())
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(context.Background(), engine)
}

// resolveFeedIDs turns the --feeds flag value into feed ids: "all" selects
// every feed, otherwise a comma-separated id list.
func resolveFeedIDs(ctx context.Context, engine *feedctl.Engine, feeds string) ([]int64, error) {
	if feeds == "" {
		return nil, fmt.Errorf("--feeds is required (use \"all\" for every feed)")
	}
	if feeds == "all" {
		return engine.Store().GetAllFeedIDs(ctx)
	}
	return reconcile.ParseIDList(feeds)
}

// resolveStoryIDs does the same for the --storys flag.
func resolveStoryIDs(ctx context.Context, engine *feedctl.Engine, storys string) ([]int64, error) {
	if storys == "" {
		return nil, fmt.Errorf("--storys is required (use \"all\" for every story)")
	}
	if storys == "all" {
		return engine.Store().GetAllStoryIDs(ctx)
	}
	return reconcile.ParseIDList(storys)
}

func fixTotalStorysCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "fix-total-storys",
		Short: "Recount story totals and correct drifted feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				formatter := output.NewFormatter()
				items, err := engine.Aggregates().ListIncorrectTotals(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, len(items))
				for i, it := range items {
					rows[i] = []string{
						strconv.FormatInt(it.FeedID, 10),
						strconv.Itoa(it.TotalStorys),
						strconv.Itoa(it.CorrectTotal),
					}
				}
				if err := formatter.Table([]string{"FEED", "STORED", "CORRECT"}, rows); err != nil {
					return err
				}
				formatter.Printf("found %d feeds with incorrect total storys", len(items))
				if dryRun {
					return nil
				}
				fixed, err := engine.Aggregates().FixTotalStorys(ctx, items)
				if err != nil {
					return err
				}
				formatter.Printf("fixed %d feeds", fixed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drifted feeds without fixing them")
	return cmd
}

func updateMonthlyStoryCountCmd() *cobra.Command {
	var feeds string
	cmd := &cobra.Command{
		Use:   "update-monthly-story-count",
		Short: "Rebuild the monthly story histogram for feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				feedIDs, err := resolveFeedIDs(ctx, engine, feeds)
				if err != nil {
					return err
				}
				if err := engine.Aggregates().RefreshMonthlyStoryCounts(ctx, feedIDs); err != nil {
					return err
				}
				output.NewFormatter().Printf("updated monthly story count for %d feeds", len(feedIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", "all", `feed ids, comma-separated, or "all"`)
	return cmd
}

func updateDrynessCmd() *cobra.Command {
	var feeds string
	cmd := &cobra.Command{
		Use:   "update-dryness",
		Short: "Recompute the dryness score for feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				feedIDs, err := resolveFeedIDs(ctx, engine, feeds)
				if err != nil {
					return err
				}
				if err := engine.Aggregates().RefreshDryness(ctx, feedIDs); err != nil {
					return err
				}
				output.NewFormatter().Printf("updated dryness for %d feeds", len(feedIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", "all", `feed ids, comma-separated, or "all"`)
	return cmd
}

func updateFirstPublishedCmd() *cobra.Command {
	var feeds string
	cmd := &cobra.Command{
		Use:   "update-first-published",
		Short: "Backfill the first-story publication time for feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				feedIDs, err := resolveFeedIDs(ctx, engine, feeds)
				if err != nil {
					return err
				}
				if err := engine.Aggregates().BackfillFirstPublished(ctx, feedIDs); err != nil {
					return err
				}
				output.NewFormatter().Printf("backfilled first published for %d feeds", len(feedIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", "all", `feed ids, comma-separated, or "all"`)
	return cmd
}

func fixOffsetsCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "fix-offsets",
		Short: "Repair user story offsets that drifted from their story",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				formatter := output.NewFormatter()
				items, err := engine.Offsets().Mismatches(ctx)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					formatter.Printf("no offset mismatches found")
					return nil
				}
				rows := make([][]string, len(items))
				for i, m := range items {
					rows[i] = []string{
						strconv.FormatInt(m.UserStoryID, 10),
						strconv.Itoa(m.UserStoryOffset),
						strconv.Itoa(m.StoryOffset),
					}
				}
				if err := formatter.Table([]string{"USER_STORY", "OFFSET", "CORRECT"}, rows); err != nil {
					return err
				}
				if !yes {
					ok, err := formatter.Confirm(fmt.Sprintf("repair %d user story offsets?", len(items)))
					if err != nil {
						return err
					}
					if !ok {
						formatter.Printf("aborted")
						return nil
					}
				}
				if err := engine.Offsets().Repair(ctx, items); err != nil {
					return err
				}
				formatter.Printf("repaired %d user story offsets", len(items))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func deleteInvalidFeedsCmd() *cobra.Command {
	var days, limit, threshold int
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-invalid-feeds",
		Short: "Delete feeds whose fetch history is almost entirely errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				formatter := output.NewFormatter()
				report, err := engine.Health().ErrorReport(ctx, days, limit)
				if err != nil {
					return err
				}
				for _, feed := range report {
					if err := formatter.JSON(feed); err != nil {
						return err
					}
				}
				candidates := reconcile.DeleteCandidates(report, threshold)
				formatter.Printf("%d feeds at or above %d%% error rate", len(candidates), threshold)
				if len(candidates) == 0 {
					return nil
				}
				if !yes {
					ok, err := formatter.Confirm(fmt.Sprintf("delete %d feeds?", len(candidates)))
					if err != nil {
						return err
					}
					if !ok {
						formatter.Printf("aborted")
						return nil
					}
				}
				if err := engine.Health().DeleteFeeds(ctx, candidates); err != nil {
					return err
				}
				formatter.Printf("deleted %d feeds", len(candidates))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", storage.DefaultConfig().Health.Days, "trailing window in days")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultConfig().Health.Limit, "maximum error groups to inspect")
	cmd.Flags().IntVar(&threshold, "threshold", storage.DefaultConfig().Health.Threshold, "error percent at or above which a feed is deleted")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func updateUseProxyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-use-proxy",
		Short: "Probe suspect feeds and route proxy-requiring ones through the proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				if !engine.ProxyConfigured() {
					return fmt.Errorf("no proxy configured; set proxy.enabled and proxy.url")
				}
				formatter := output.NewFormatter()
				candidates, err := engine.Health().ProxyCandidates(ctx)
				if err != nil {
					return err
				}
				formatter.Printf("probing %d candidate feeds", len(candidates))
				needProxy, err := engine.Health().ClassifyProxyNeed(ctx, candidates)
				if err != nil {
					return err
				}
				updated, err := engine.Health().EnableProxy(ctx, needProxy)
				if err != nil {
					return err
				}
				formatter.Printf("enabled proxy for %d feeds", updated)
				return nil
			})
		},
	}
}

func refreshFeedsCmd() *cobra.Command {
	var feeds, unionFeeds, key string
	var expireHours int
	cmd := &cobra.Command{
		Use:   "refresh-feeds",
		Short: "Schedule refresh tasks for the selected feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				formatter := output.NewFormatter()
				feedIDs, err := engine.Refresh().CollectFeedIDs(ctx, feeds, unionFeeds, key)
				if err != nil {
					return err
				}
				if len(feedIDs) == 0 {
					formatter.Printf("no feeds selected")
					return nil
				}
				tasks, err := engine.Refresh().Schedule(ctx, feedIDs, expireHours)
				if err != nil {
					return err
				}
				formatter.Printf("scheduled %d refresh tasks", len(tasks))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", "", `feed ids, comma-separated, or "all"`)
	cmd.Flags().StringVar(&unionFeeds, "union-feeds", "", "encoded union feed ids, comma-separated")
	cmd.Flags().StringVar(&key, "key", "", "url/title keyword to match feeds")
	cmd.Flags().IntVar(&expireHours, "expire", storage.DefaultConfig().Refresh.ExpireHours, "task expiry in hours")
	return cmd
}

func updateMathjaxCmd() *cobra.Command {
	var storys string
	cmd := &cobra.Command{
		Use:   "update-mathjax",
		Short: "Flag storys whose content contains math notation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				storyIDs, err := resolveStoryIDs(ctx, engine, storys)
				if err != nil {
					return err
				}
				flagged, err := engine.Bookkeeper().UpdateStoryMathjax(ctx, storyIDs)
				if err != nil {
					return err
				}
				output.NewFormatter().Printf("flagged %d of %d storys", flagged, len(storyIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storys, "storys", "all", `story ids, comma-separated, or "all"`)
	return cmd
}

func processLinksCmd() *cobra.Command {
	var storys string
	cmd := &cobra.Command{
		Use:   "process-links",
		Short: "Rewrite relative links in story content",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				storyIDs, err := resolveStoryIDs(ctx, engine, storys)
				if err != nil {
					return err
				}
				rewritten, err := engine.Bookkeeper().ProcessStoryLinks(ctx, storyIDs)
				if err != nil {
					return err
				}
				output.NewFormatter().Printf("rewrote links in %d of %d storys", rewritten, len(storyIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storys, "storys", "all", `story ids, comma-separated, or "all"`)
	return cmd
}

func sanitizeContentCmd() *cobra.Command {
	var storys string
	cmd := &cobra.Command{
		Use:   "sanitize-content",
		Short: "Strip dangerous markup from story content",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				storyIDs, err := resolveStoryIDs(ctx, engine, storys)
				if err != nil {
					return err
				}
				cleaned, err := engine.Bookkeeper().SanitizeStoryContent(ctx, storyIDs)
				if err != nil {
					return err
				}
				output.NewFormatter().Printf("sanitized %d of %d storys", cleaned, len(storyIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storys, "storys", "all", `story ids, comma-separated, or "all"`)
	return cmd
}

func updateUserMarkedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-user-marked",
		Short: "Flag storys with watch or favorite activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				flagged, err := engine.Bookkeeper().UpdateUserMarked(ctx)
				if err != nil {
					return err
				}
				output.NewFormatter().Printf("marked %d storys", flagged)
				return nil
			})
		},
	}
}

func updateReverseURLCmd() *cobra.Command {
	var feeds string
	cmd := &cobra.Command{
		Use:   "update-reverse-url",
		Short: "Recompute the canonical reverse url for feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				feedIDs, err := resolveFeedIDs(ctx, engine, feeds)
				if err != nil {
					return err
				}
				if err := engine.Bookkeeper().UpdateReverseURL(ctx, feedIDs); err != nil {
					return err
				}
				output.NewFormatter().Printf("updated reverse url for %d feeds", len(feedIDs))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&feeds, "feeds", "all", `feed ids, comma-separated, or "all"`)
	return cmd
}

func decodeIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-id <union-id>",
		Short: "Decode an encoded union id into its numbers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := unionid.Decode(args[0])
			if err != nil {
				return fmt.Errorf("decode %q: %w", args[0], err)
			}
			output.NewFormatter().Printf("%v", numbers)
			return nil
		},
	}
}

func deleteFeedCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-feed <id-or-keyword>",
		Short: "Delete one feed by id or url/title keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				formatter := output.NewFormatter()
				feed, err := engine.Store().FindFeedByKey(ctx, args[0])
				if err != nil {
					return err
				}
				formatter.Printf("feed %d: %s (%s)", feed.ID, feed.Title, feed.URL)
				if !yes {
					ok, err := formatter.Confirm("delete this feed?")
					if err != nil {
						return err
					}
					if !ok {
						formatter.Printf("aborted")
						return nil
					}
				}
				if err := engine.Store().DeleteFeed(ctx, feed.ID); err != nil {
					return err
				}
				formatter.Printf("deleted feed %d", feed.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "./config/config.yaml"
			}

			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
