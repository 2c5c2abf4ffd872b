package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"newsfromai/internal/app"
	"newsfromai/internal/domain/entity"
)

type feedView struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Category      string     `json:"category"`
	MaxItems      int        `json:"max_items"`
	Active        bool       `json:"active"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

func newFeedView(f *entity.Feed) feedView {
	return feedView{
		ID:            f.ID,
		Name:          f.Name,
		URL:           f.URL,
		Category:      f.Category,
		MaxItems:      f.Limit(),
		Active:        f.Active,
		LastFetchedAt: f.LastFetchedAt,
		LastError:     f.LastError,
	}
}

func newFeedsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage stored feeds",
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Store the feeds listed in the config file",
		Long: `Upsert every feed from the config file by URL. Feeds marked disabled are
stored inactive. Feeds removed from the file are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			database, driver, err := c.openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer database.Close()
			repos, err := app.NewRepositories(database, driver)
			if err != nil {
				return err
			}
			n, err := app.SyncFeeds(cmd.Context(), repos.Feeds, cfg.Feeds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d feeds synchronized\n", n)
			return nil
		},
	}

	var (
		asJSON     bool
		activeOnly bool
	)
	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored feeds with their last fetch outcome",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, driver, err := c.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer database.Close()
			repos, err := app.NewRepositories(database, driver)
			if err != nil {
				return err
			}
			var feeds []*entity.Feed
			if activeOnly {
				feeds, err = repos.Feeds.ListActive(cmd.Context())
			} else {
				feeds, err = repos.Feeds.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			views := make([]feedView, len(feeds))
			for i, f := range feeds {
				views[i] = newFeedView(f)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tMAX\tACTIVE\tLAST FETCHED\tURL\tLAST ERROR")
			for _, v := range views {
				fetched := "-"
				if v.LastFetchedAt != nil {
					fetched = entity.FormatTimestamp(*v.LastFetchedAt)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%t\t%s\t%s\t%s\n",
					v.ID, v.Name, v.Category, v.MaxItems, v.Active, fetched, v.URL, v.LastError)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	list.Flags().BoolVar(&activeOnly, "active", false, "only active feeds")

	cmd.AddCommand(sync, list)
	return cmd
}
