package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"newsfromai/internal/app"
	"newsfromai/internal/usecase/ingest"
)

// runSummary is the printed form of a run's statistics.
type runSummary struct {
	RunID          string   `json:"run_id"`
	Status         string   `json:"status"`
	Keywords       []string `json:"keywords"`
	UniqueResults  int      `json:"unique_results"`
	FeedsProcessed int      `json:"feeds_processed"`
	FeedsFailed    int      `json:"feeds_failed"`
	Generated      int      `json:"generated"`
	Inserted       int      `json:"inserted"`
	Duplicated     int      `json:"duplicated"`
	Fallbacks      int      `json:"fallbacks"`
	Deferred       int      `json:"deferred"`
	BreakerSkipped int      `json:"breaker_skipped"`
	FailedSteps    []string `json:"failed_steps"`
	DurationMS     int64    `json:"duration_ms"`
}

func summarize(stats *ingest.RunStats, canceled bool) runSummary {
	status := stats.Status()
	if canceled {
		status = "canceled"
	}
	keywords := stats.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	failed := stats.FailedSteps
	if failed == nil {
		failed = []string{}
	}
	return runSummary{
		RunID:          stats.RunID,
		Status:         status,
		Keywords:       keywords,
		UniqueResults:  stats.UniqueResults,
		FeedsProcessed: stats.FeedsProcessed,
		FeedsFailed:    stats.FeedsFailed,
		Generated:      stats.Generated,
		Inserted:       stats.Inserted,
		Duplicated:     stats.Duplicated,
		Fallbacks:      stats.Fallbacks,
		Deferred:       stats.Deferred,
		BreakerSkipped: stats.BreakerSkipped,
		FailedSteps:    failed,
		DurationMS:     stats.Duration.Milliseconds(),
	}
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
		noSync  bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion pass",
		Long: `Run one ingestion pass: keyword generation, search and analysis, then
feed summarization. The schema is created if missing and configured feeds are
synchronized first unless --no-sync is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			database, driver, err := c.openDB(ctx, true)
			if err != nil {
				return err
			}
			defer database.Close()

			repos, err := app.NewRepositories(database, driver)
			if err != nil {
				return err
			}
			if !noSync {
				if _, err := app.SyncFeeds(ctx, repos.Feeds, cfg.Feeds); err != nil {
					return err
				}
			}
			a, err := app.Build(cfg, repos, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, runErr := a.Orchestrator.Run(ctx)
			if stats != nil {
				if err := printSummary(cmd.OutOrStdout(), summarize(stats, runErr != nil), asJSON); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statistics as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "upper bound for the run (0 disables)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "do not upsert configured feeds before running")
	return cmd
}

func printSummary(w io.Writer, s runSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	fmt.Fprintf(w, "run %s: %s in %s\n", s.RunID, s.Status, time.Duration(s.DurationMS)*time.Millisecond)
	if len(s.Keywords) > 0 {
		fmt.Fprintf(w, "  keywords:   %s\n", strings.Join(s.Keywords, ", "))
	}
	fmt.Fprintf(w, "  search:     %d unique results\n", s.UniqueResults)
	fmt.Fprintf(w, "  feeds:      %d processed, %d failed\n", s.FeedsProcessed, s.FeedsFailed)
	fmt.Fprintf(w, "  records:    %d generated, %d inserted, %d duplicate, %d fallback\n",
		s.Generated, s.Inserted, s.Duplicated, s.Fallbacks)
	if s.Deferred > 0 || s.BreakerSkipped > 0 {
		fmt.Fprintf(w, "  breaker:    %d deferred, %d skipped\n", s.Deferred, s.BreakerSkipped)
	}
	for _, f := range s.FailedSteps {
		fmt.Fprintf(w, "  failed:     %s\n", f)
	}
	return nil
}
