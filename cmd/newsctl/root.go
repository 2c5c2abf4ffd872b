package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"newsfromai/internal/config"
	"newsfromai/internal/infra/db"
	"newsfromai/internal/observability/logging"
)

// cli carries the global flags shared by every subcommand.
type cli struct {
	configPath string
	dbDriver   string
	dbURL      string
	verbose    bool
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "newsctl",
		Short: "Run and inspect the newsfromai pipeline",
		Long: `newsctl drives the news ingestion pipeline outside the scheduled worker.

Example usage:
  newsctl migrate up               # create the schema
  newsctl feeds sync               # store the feeds listed in the config file
  newsctl run                      # one ingestion pass
  newsctl list --limit 5           # newest stored records
  newsctl list --category tech --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			c.logger = c.newLogger(cmd.ErrOrStderr())
			slog.SetDefault(c.logger)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", config.PathFromEnv(), "pipeline config file (env NEWSFROMAI_CONFIG)")
	pf.StringVar(&c.dbDriver, "db-driver", "", "postgres or sqlite (default from DATABASE_DRIVER)")
	pf.StringVar(&c.dbURL, "db-url", "", "database DSN or SQLite path (default from DATABASE_URL)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newRunCmd(c),
		newMigrateCmd(c),
		newFeedsCmd(c),
		newListCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logging.RedactSecrets,
	}))
}

func (c *cli) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

func (c *cli) dbOptions() db.Options {
	opts := db.OptionsFromEnv()
	if c.dbDriver != "" {
		opts.Driver = db.ParseDriver(c.dbDriver)
	}
	if c.dbURL != "" {
		opts.DSN = c.dbURL
	}
	return opts
}

// openDB opens the database and, when migrate is set, applies the schema.
func (c *cli) openDB(ctx context.Context, migrate bool) (*sql.DB, string, error) {
	opts := c.dbOptions()
	database, err := db.Open(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	if migrate {
		if err := db.MigrateUp(database, opts.Driver); err != nil {
			_ = database.Close()
			return nil, "", fmt.Errorf("migrate: %w", err)
		}
	}
	return database, opts.Driver, nil
}
