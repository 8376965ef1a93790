package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/export"
)

func newExportCmd(s *state) *cobra.Command {
	var (
		period     string
		categories []string
		minRel     float64
		maxRel     float64
		methods    string
		search     string
		sortBy     string
		desc       bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export unexported orders to CSV",
		Long: `Writes the unexported orders matching the filters to a CSV file in EXPORT_DIR
and marks them exported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			f, err := export.ForPeriod(period, time.Now(), a.Location)
			if err != nil {
				return err
			}
			if f.Methods, err = export.ParseMethods(methods); err != nil {
				return err
			}
			f.Categories = categories
			f.MinRelevance = minRel
			f.MaxRelevance = maxRel
			f.Search = search
			f.SortBy = export.SortField(sortBy)
			f.Ascending = !desc

			path, n, err := a.Exporter.ExportPending(cmd.Context(), a.Orders, f)
			if n == 0 && err == nil {
				cmd.Println("No orders to export")
				return nil
			}
			if path != "" {
				cmd.Printf("Exported %d orders to %s\n", n, path)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "all", "today, week, month or all")
	cmd.Flags().StringSliceVarP(&categories, "category", "c", nil, "Only these categories (repeatable)")
	cmd.Flags().Float64Var(&minRel, "min-relevance", 0, "Minimum relevance score (0-1)")
	cmd.Flags().Float64Var(&maxRel, "max-relevance", 0, "Maximum relevance score (0-1), 0 means no limit")
	cmd.Flags().StringVar(&methods, "method", "", "Detection methods, comma separated: regex, llm")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Case-insensitive text search")
	cmd.Flags().StringVar(&sortBy, "sort", string(export.SortByCreatedAt), "created_at, relevance_score or category")
	cmd.Flags().BoolVar(&desc, "desc", false, "Sort descending")
	return cmd
}
