package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"newsfromai/internal/app"
	"newsfromai/internal/domain/entity"
	"newsfromai/internal/repository"
)

type newsView struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Format      string   `json:"format"`
	Category    string   `json:"category"`
	Kind        string   `json:"kind"`
	SourceURL   string   `json:"source_url"`
	SourceURLs  []string `json:"source_urls"`
	SourceName  string   `json:"source_name,omitempty"`
	Fallback    bool     `json:"fallback"`
	Comment     string   `json:"comment,omitempty"`
	Content     string   `json:"content"`
	ContentHTML string   `json:"content_html,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

func newNewsView(r *entity.NewsRecord, withHTML bool) newsView {
	v := newsView{
		ID:         r.ID,
		Title:      r.Title,
		Format:     string(r.Format),
		Category:   r.Category,
		Kind:       string(r.Kind),
		SourceURL:  r.SourceURL,
		SourceURLs: r.SourceURLs,
		SourceName: r.SourceName,
		Fallback:   r.Fallback,
		Comment:    r.Comment,
		Content:    r.Content,
		CreatedAt:  entity.FormatTimestamp(r.CreatedAt),
	}
	if withHTML {
		v.ContentHTML = r.ContentHTML
	}
	if r.PublishedAt != nil {
		v.PublishedAt = entity.FormatTimestamp(*r.PublishedAt)
	}
	return v
}

func newListCmd(c *cli) *cobra.Command {
	var (
		q        repository.RecentQuery
		format   string
		asJSON   bool
		withHTML bool
		full     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored news, newest first",
		Long: `List stored news ordered by publication time (creation time when unknown),
newest first.

Examples:
  newsctl list                           # 20 newest records
  newsctl list --limit 5 --offset 5      # second page of five
  newsctl list --format timeline --full  # print content too
  newsctl list --json --html             # include sanitized HTML`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if q.Limit < 0 || q.Offset < 0 {
				return fmt.Errorf("--limit and --offset must not be negative")
			}
			q.Format = entity.Format(format)

			database, driver, err := c.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer database.Close()
			repos, err := app.NewRepositories(database, driver)
			if err != nil {
				return err
			}
			recs, err := repos.News.ListRecent(cmd.Context(), q)
			if err != nil {
				return err
			}

			views := make([]newsView, len(recs))
			for i, r := range recs {
				views[i] = newNewsView(r, withHTML)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			if full {
				printFull(cmd.OutOrStdout(), views)
				return nil
			}
			return printTable(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().IntVar(&q.Limit, "limit", repository.DefaultRecentLimit, "maximum records")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "records to skip")
	cmd.Flags().StringVar(&q.Category, "category", "", "only this category (search keyword or feed category)")
	cmd.Flags().StringVar(&format, "format", "", "only this format, e.g. timeline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&withHTML, "html", false, "include rendered HTML in JSON output")
	cmd.Flags().BoolVar(&full, "full", false, "print content under each record")
	return cmd
}

func printTable(w io.Writer, views []newsView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFORMAT\tCATEGORY\tTITLE")
	for _, v := range views {
		date := v.PublishedAt
		if date == "" {
			date = v.CreatedAt
		}
		title := v.Title
		if v.Fallback {
			title += " [fallback]"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, date, v.Format, v.Category, clip(title, 80))
	}
	return tw.Flush()
}

func printFull(w io.Writer, views []newsView) {
	for i, v := range views {
		if i > 0 {
			fmt.Fprintln(w, strings.Repeat("-", 72))
		}
		fmt.Fprintf(w, "#%d %s\n", v.ID, v.Title)
		fmt.Fprintf(w, "format: %s  category: %s  source: %s\n\n", v.Format, v.Category, v.SourceURL)
		fmt.Fprintln(w, strings.TrimSpace(v.Content))
		if v.Comment != "" {
			fmt.Fprintf(w, "\n> %s\n", v.Comment)
		}
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
