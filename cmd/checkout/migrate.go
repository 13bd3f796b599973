package main

import (
	"fmt"

	"github.com/safar/checkout-lifecycle/internal/database"
	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or roll back the SQL migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{database.MigrateUp, database.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.NewConnection(cmd.Context(), &root.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := database.RunMigrations(cmd.Context(), db, dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d %s migration(s) from %s\n", n, args[0], dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory containing *.up.sql and *.down.sql files")
	return cmd
}
