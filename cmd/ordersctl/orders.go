package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

const previewRunes = 60

func newOrdersCmd(s *state) *cobra.Command {
	var (
		category   string
		limit      int
		unexported bool
	)

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List recent orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			q := models.OrderQuery{Category: category, Limit: limit}
			if unexported {
				no := false
				q.Exported = &no
			}
			orders, err := a.Orders.Query(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("failed to list orders: %w", err)
			}
			if len(orders) == 0 {
				cmd.Println("No orders found")
				return nil
			}
			printOrders(cmd.OutOrStdout(), orders, a.Location)
			cmd.Printf("\nTotal: %d orders\n", len(orders))
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only orders of this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of orders")
	cmd.Flags().BoolVar(&unexported, "unexported", false, "Only orders not exported yet")
	return cmd
}

func printOrders(out io.Writer, orders []models.Order, loc *time.Location) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tCATEGORY\tRELEVANCE\tBY\tFEEDBACK\tTEXT")
	for _, o := range orders {
		feedback := "-"
		if o.Feedback != nil {
			feedback = string(*o.Feedback)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
			o.ID, o.CreatedAt.In(loc).Format("2006-01-02 15:04"), o.Category, o.RelevanceScore*100,
			o.DetectedBy, feedback, preview(o.Text))
	}
	_ = w.Flush()
}

// preview flattens text to one line of at most previewRunes runes
func preview(text string) string {
	r := []rune(text)
	for i, c := range r {
		if c == '\n' || c == '\t' || c == '\r' {
			r[i] = ' '
		}
	}
	if len(r) > previewRunes {
		return string(r[:previewRunes-1]) + "…"
	}
	return string(r)
}
