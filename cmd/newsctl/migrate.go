package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"newsfromai/internal/infra/db"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, driver, err := c.openDB(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer database.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", driver)
			return nil
		},
	}

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Drop every pipeline table (destroys stored news)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to drop tables without --yes")
			}
			database, _, err := c.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer database.Close()
			if err := db.MigrateDown(database); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
			return nil
		},
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm dropping all tables")

	cmd.AddCommand(up, down)
	return cmd
}
