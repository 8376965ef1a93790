package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Viphunter83/userbot-orders/internal/repository"
	"github.com/Viphunter83/userbot-orders/internal/stats"
)

func newStatsCmd(s *state) *cobra.Command {
	var period, fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show detection statistics",
		Long:  `Shows daily metrics for a named period or an explicit --from/--to date range (YYYY-MM-DD, inclusive).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.open(cmd)
			if err != nil {
				return err
			}
			from, to, err := statsRange(period, fromStr, toStr, time.Now().In(a.Location), a.Location)
			if err != nil {
				return err
			}
			pm, err := a.Reporter.Period(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			printMetrics(cmd.OutOrStdout(), pm)
			if a.Limiter != nil {
				cmd.Printf("\nLLM budget: spent $%.4f", a.Limiter.Spent())
				if rem := a.Limiter.Remaining(); rem >= 0 {
					cmd.Printf(", remaining $%.4f", rem)
				}
				cmd.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "today", "today, yesterday, week or month")
	cmd.Flags().StringVar(&fromStr, "from", "", "First day of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "Last day of the range (YYYY-MM-DD), defaults to today")
	return cmd
}

// statsRange resolves the inclusive day range of a stats invocation
func statsRange(period, fromStr, toStr string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if fromStr != "" || toStr != "" {
		from, to := now, now
		var err error
		if fromStr != "" {
			if from, err = time.ParseInLocation(repository.DateLayout, fromStr, loc); err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
			}
		}
		if toStr != "" {
			if to, err = time.ParseInLocation(repository.DateLayout, toStr, loc); err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
			}
		}
		return from, to, nil
	}

	switch strings.ToLower(period) {
	case "today", "":
		return now, now, nil
	case "yesterday":
		y := now.AddDate(0, 0, -1)
		return y, y, nil
	case "week":
		return now.AddDate(0, 0, -6), now, nil
	case "month":
		return now.AddDate(0, 0, -29), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q, expected today, yesterday, week or month", period)
	}
}

func printMetrics(out io.Writer, pm *stats.PeriodMetrics) {
	t := pm.Totals()
	fmt.Fprintf(out, "Period: %s .. %s\n", pm.From, pm.To)
	if t.TotalMessages == 0 {
		fmt.Fprintln(out, "No messages in this period")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Messages\t%d\n", t.TotalMessages)
	fmt.Fprintf(w, "Orders\t%d (%.1f%%)\n", t.DetectedOrders, t.DetectionRate())
	fmt.Fprintf(w, "Regex / LLM\t%d / %d\n", t.RegexDetections, t.LLMDetections)
	fmt.Fprintf(w, "LLM requests\t%d (%d tokens, $%.4f, avg %d ms)\n",
		t.LLMRequests, t.LLMTokensUsed, t.LLMCost, t.AvgResponseTimeMs)
	fmt.Fprintf(w, "Precision\t%.1f%% (%d rejected)\n", t.Precision(), t.FalsePositiveCount)
	fmt.Fprintf(w, "Avg per day\t%.1f orders, $%.4f\n", pm.AvgDailyOrders(), pm.AvgDailyCost())
	_ = w.Flush()

	if len(pm.Categories) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tORDERS\tREGEX\tLLM\tAVG RELEVANCE")
		for _, c := range pm.Categories {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.0f%%\n", c.Category, c.Orders, c.Regex, c.LLM, c.AvgRelevance()*100)
		}
		_ = w.Flush()
	}

	if len(pm.TopChats) > 0 {
		fmt.Fprintln(out, "\nTop chats:")
		for _, c := range pm.TopChats {
			fmt.Fprintf(out, "  %s: %d orders of %d messages\n", c.ChatID, c.OrdersCount, c.MessagesCount)
		}
	}
}
