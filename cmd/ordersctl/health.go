package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check storage, the LLM budget and the export directory",
		Long:  `Pings every configured storage backend without changing the routing mode and exits non-zero when a component fails.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			report := a.Health.Check(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), report.Format())
			if !report.Healthy() {
				return fmt.Errorf("health check failed: %s", report.Overall())
			}
			return nil
		},
	}
}
