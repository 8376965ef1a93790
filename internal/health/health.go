// Package health reports the state of storage, the LLM tier, Telegram and the
// export directory
package health

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/storage"
)

// Status of one component
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

func (s Status) icon() string {
	switch s {
	case StatusOK:
		return "✅"
	case StatusWarning:
		return "⚠️"
	}
	return "❌"
}

// Component is the result of one check
type Component struct {
	Name   string
	Status Status
	Detail string
}

// Report is the result of a full check
type Report struct {
	Components []Component
	CheckedAt  time.Time
}

// Overall is "unhealthy" when any component failed, "degraded" when any
// warned, "healthy" otherwise
func (r Report) Overall() string {
	overall := "healthy"
	for _, c := range r.Components {
		switch c.Status {
		case StatusError:
			return "unhealthy"
		case StatusWarning:
			overall = "degraded"
		}
	}
	return overall
}

// Healthy reports whether no component failed
func (r Report) Healthy() bool {
	return r.Overall() != "unhealthy"
}

// Format renders the report as plain text, one line per component
func (r Report) Format() string {
	var sb strings.Builder
	status := StatusOK
	switch r.Overall() {
	case "unhealthy":
		status = StatusError
	case "degraded":
		status = StatusWarning
	}
	fmt.Fprintf(&sb, "%s Health: %s (%s)\n", status.icon(), r.Overall(), r.CheckedAt.Format("2006-01-02 15:04:05 MST"))
	for _, c := range r.Components {
		fmt.Fprintf(&sb, "\n%s %s: %s", c.Status.icon(), c.Name, c.Detail)
	}
	return sb.String()
}

// Storage is the part of the storage gateway the checker reads
type Storage interface {
	Mode() storage.Mode
	Transitions() int
	Backends(ctx context.Context) []storage.BackendHealth
}

// Budget reports today's LLM spend
type Budget interface {
	Spent() float64
	Remaining() float64
}

// Checker runs the health checks
type Checker struct {
	storage   Storage
	exportDir string
	loc       *time.Location

	provider string
	budget   Budget
	telegram func(ctx context.Context) error
	monitor  *ErrorMonitor

	now    func() time.Time
	logger zerolog.Logger
}

// NewChecker creates a checker for storage and the export directory
func NewChecker(store Storage, exportDir string, loc *time.Location, logger zerolog.Logger) *Checker {
	if loc == nil {
		loc = time.UTC
	}
	return &Checker{
		storage:   store,
		exportDir: exportDir,
		loc:       loc,
		now:       time.Now,
		logger:    logger.With().Str("component", "health").Logger(),
	}
}

// WithLLM adds the LLM tier check; budget may be nil
func (c *Checker) WithLLM(provider string, budget Budget) *Checker {
	c.provider = provider
	c.budget = budget
	return c
}

// WithTelegram adds a Bot API connectivity check
func (c *Checker) WithTelegram(ping func(ctx context.Context) error) *Checker {
	c.telegram = ping
	return c
}

// WithMonitor adds the recent error count
func (c *Checker) WithMonitor(m *ErrorMonitor) *Checker {
	c.monitor = m
	return c
}

// Check runs every configured check
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{CheckedAt: c.now().In(c.loc)}
	report.Components = append(report.Components, c.checkStorage(ctx), c.checkLLM(), c.checkExportDir())
	if c.telegram != nil {
		report.Components = append(report.Components, c.checkTelegram(ctx))
	}
	if c.monitor != nil {
		report.Components = append(report.Components, c.checkErrors())
	}

	c.logger.Debug().Str("overall", report.Overall()).Msg("Health check completed")
	return report
}

func (c *Checker) checkStorage(ctx context.Context) Component {
	mode := c.storage.Mode()
	comp := Component{Name: "storage", Status: StatusOK}

	parts := []string{fmt.Sprintf("mode %s", mode)}
	if n := c.storage.Transitions(); n > 0 {
		parts = append(parts, fmt.Sprintf("fallbacks %d", n))
	}
	if mode == storage.ModeRestFallback {
		comp.Status = StatusWarning
	}

	for _, b := range c.storage.Backends(ctx) {
		label := fmt.Sprintf("%s (%s", b.Name, b.Role)
		if b.Active {
			label += ", active"
		}
		label += ")"

		if b.Err != nil {
			parts = append(parts, fmt.Sprintf("%s unreachable: %v", label, b.Err))
			if b.Active {
				comp.Status = StatusError
			} else if comp.Status == StatusOK {
				comp.Status = StatusWarning
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %dms", label, b.Latency.Milliseconds()))
	}

	comp.Detail = strings.Join(parts, ", ")
	return comp
}

func (c *Checker) checkLLM() Component {
	comp := Component{Name: "llm", Status: StatusOK}
	if c.provider == "" {
		comp.Detail = "disabled, regex only"
		return comp
	}
	if c.budget == nil {
		comp.Detail = c.provider
		return comp
	}

	spent, remaining := c.budget.Spent(), c.budget.Remaining()
	switch {
	case remaining < 0:
		comp.Detail = fmt.Sprintf("%s, spent $%.4f today, no daily limit", c.provider, spent)
	case remaining == 0:
		comp.Status = StatusWarning
		comp.Detail = fmt.Sprintf("%s, daily budget exhausted ($%.4f spent), regex only until midnight", c.provider, spent)
	default:
		comp.Detail = fmt.Sprintf("%s, spent $%.4f today, $%.4f remaining", c.provider, spent, remaining)
	}
	return comp
}

func (c *Checker) checkExportDir() Component {
	comp := Component{Name: "exports", Status: StatusOK, Detail: c.exportDir + " writable"}

	if err := os.MkdirAll(c.exportDir, 0o755); err != nil {
		comp.Status = StatusError
		comp.Detail = fmt.Sprintf("cannot create %s: %v", c.exportDir, err)
		return comp
	}
	f, err := os.CreateTemp(c.exportDir, ".health-*")
	if err != nil {
		comp.Status = StatusError
		comp.Detail = fmt.Sprintf("%s not writable: %v", c.exportDir, err)
		return comp
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return comp
}

func (c *Checker) checkTelegram(ctx context.Context) Component {
	if err := c.telegram(ctx); err != nil {
		return Component{Name: "telegram", Status: StatusError, Detail: err.Error()}
	}
	return Component{Name: "telegram", Status: StatusOK, Detail: "Bot API reachable"}
}

func (c *Checker) checkErrors() Component {
	count := c.monitor.Count()
	comp := Component{
		Name:   "errors",
		Status: StatusOK,
		Detail: fmt.Sprintf("%d in the last %s", count, c.monitor.Window()),
	}
	if c.monitor.Exceeded() {
		comp.Status = StatusWarning
	}
	return comp
}
