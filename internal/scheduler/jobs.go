package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Viphunter83/userbot-orders/internal/export"
	"github.com/Viphunter83/userbot-orders/internal/ingest"
	"github.com/Viphunter83/userbot-orders/internal/repository"
	"github.com/Viphunter83/userbot-orders/internal/stats"
)

// ReportCallback is a function that delivers a report to the operator
type ReportCallback func(text string) error

// Job names
const (
	JobDailyReport  = "daily_report"
	JobReprocess    = "reprocess"
	JobExport       = "export"
	JobBudgetReset  = "budget_reset"
	JobCacheCleanup = "cache_cleanup"
)

const (
	// ReprocessBatch bounds one reprocessing run
	ReprocessBatch = 200
	// ReprocessMinAge leaves recent messages to the live ingestion path
	ReprocessMinAge = 5 * time.Minute
)

// DailyReportJob sends yesterday's metrics to the operator
func DailyReportJob(spec string, reporter *stats.Reporter, send ReportCallback) Job {
	return Job{
		Name: JobDailyReport,
		Spec: spec,
		Run: func(ctx context.Context) error {
			pm, err := reporter.Yesterday(ctx)
			if err != nil {
				return fmt.Errorf("failed to collect metrics: %w", err)
			}
			if err := send(stats.FormatDaily(pm)); err != nil {
				return fmt.Errorf("failed to send report: %w", err)
			}
			return nil
		},
	}
}

// ReprocessJob classifies messages that were recorded but never processed
func ReprocessJob(spec string, coordinator *ingest.Coordinator) Job {
	return Job{
		Name: JobReprocess,
		Spec: spec,
		Run: func(ctx context.Context) error {
			counts, err := coordinator.ReprocessPending(ctx, ReprocessBatch, ReprocessMinAge)
			if err != nil {
				return fmt.Errorf("failed to reprocess messages: %w", err)
			}
			if n := counts[ingest.StatusFailed]; n > 0 {
				return fmt.Errorf("%d messages failed to reprocess", n)
			}
			return nil
		},
	}
}

// ExportJob writes every unexported order to CSV and, when notify is set,
// tells the operator where the file is
func ExportJob(spec string, exporter *export.Exporter, orders *repository.Orders, notify ReportCallback) Job {
	return Job{
		Name: JobExport,
		Spec: spec,
		Run: func(ctx context.Context) error {
			no := false
			path, n, err := exporter.ExportPending(ctx, orders, export.Filter{Exported: &no, Ascending: true})
			if err != nil {
				return err
			}
			if n > 0 && notify != nil {
				return notify(fmt.Sprintf("📁 Выгружено %d %s: `%s`", n,
					stats.Plural(int64(n), "заказ", "заказа", "заказов"), path))
			}
			return nil
		},
	}
}

// Resetter is reset at the start of each day
type Resetter interface {
	Reset()
}

// BudgetResetJob clears the LLM spend counter at local midnight
func BudgetResetJob(limiter Resetter) Job {
	return Job{
		Name: JobBudgetReset,
		Spec: "0 0 * * *",
		Run: func(context.Context) error {
			limiter.Reset()
			return nil
		},
	}
}

// Cleaner drops expired entries and reports how many were removed
type Cleaner interface {
	Cleanup() int
}

// CacheCleanupJob evicts expired verdicts from an in-process cache
func CacheCleanupJob(cache Cleaner) Job {
	return Job{
		Name: JobCacheCleanup,
		Spec: "@hourly",
		Run: func(context.Context) error {
			cache.Cleanup()
			return nil
		},
	}
}
