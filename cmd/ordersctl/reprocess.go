package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/ingest"
	"github.com/Viphunter83/userbot-orders/internal/scheduler"
)

func newReprocessCmd(s *state) *cobra.Command {
	var (
		limit  int
		minAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Classify stored messages left unprocessed",
		Long: `Resumes classification of messages whose processing was interrupted.
Messages younger than --min-age are skipped while the live userbot may still own them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			counts, err := a.Coordinator.ReprocessPending(cmd.Context(), limit, minAge)
			if err != nil {
				return err
			}
			cmd.Printf("Matched: %d, no match: %d, ignored: %d, failed: %d\n",
				counts[ingest.StatusMatched], counts[ingest.StatusNoMatch], counts[ingest.StatusIgnored], counts[ingest.StatusFailed])
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", scheduler.ReprocessBatch, "Maximum number of messages")
	cmd.Flags().DurationVar(&minAge, "min-age", scheduler.ReprocessMinAge, "Skip messages stored more recently than this")
	return cmd
}
