package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/database"
)

func migrateCommand(rt *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(rt, func(mg *database.Migrator) error {
				version, err := mg.Up()
				if err != nil {
					return err
				}
				rt.logger.Info(fmt.Sprintf("Schema at version %d", version))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down STEPS",
		Short: "Roll back the given number of migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return withMigrator(rt, func(mg *database.Migrator) error {
				version, err := mg.Down(steps)
				if err != nil {
					return err
				}
				rt.logger.Info(fmt.Sprintf("Schema rolled back to version %d", version))
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(rt, func(mg *database.Migrator) error {
				version, err := mg.Version()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(rt *cli, fn func(*database.Migrator) error) (err error) {
	mg, err := database.NewMigrator(rt.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := mg.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(mg)
}
