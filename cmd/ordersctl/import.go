package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/importer"
	"github.com/Viphunter83/userbot-orders/internal/ingest"
)

func newImportCmd(s *state) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a Telegram Desktop chat export",
		Long: `Reads result.json from a Telegram Desktop export and runs every text message
through the detection pipeline. Already imported messages are skipped, so an
interrupted import can be rerun.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			export, err := importer.ReadFile(file)
			if err != nil {
				return err
			}

			cmd.Printf("Chat: %s (%s, %s)\n", export.Name, export.ChatID(), export.ChatKind())
			if dryRun {
				cmd.Printf("Text messages: %d (dry run, nothing stored)\n", len(export.Inbound()))
				return nil
			}

			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			summary, err := importer.NewImporter(a.Coordinator, a.Logger()).Import(cmd.Context(), export)
			cmd.Printf("Total: %d, matched: %d, no match: %d, ignored: %d, duplicate: %d, failed: %d\n",
				summary.Total,
				summary.Counts[ingest.StatusMatched],
				summary.Counts[ingest.StatusNoMatch],
				summary.Counts[ingest.StatusIgnored],
				summary.Counts[ingest.StatusDuplicate],
				summary.Counts[ingest.StatusFailed])
			if err != nil {
				return err
			}
			if failed := summary.Counts[ingest.StatusFailed]; failed > 0 {
				return fmt.Errorf("%d messages failed to import", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to result.json")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only parse the export")
	return cmd
}
