package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  `Applies the embedded schema over DATABASE_URL. Statements are idempotent and safe to rerun.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			if err := a.Migrate(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Schema is up to date")
			return nil
		},
	}
}
