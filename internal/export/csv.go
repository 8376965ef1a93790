package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/repository"
)

var headers = []string{
	"ID",
	"Дата обнаружения",
	"Категория",
	"Релевантность",
	"Метод детекции",
	"Текст заказа",
	"Автор",
	"Чат/Канал",
	"Ссылка на сообщение",
	"Статус",
	"Примечания",
}

// utf8BOM prefixes every export file
const utf8BOM = "\ufeff"

// Exporter writes orders to CSV files under a directory
type Exporter struct {
	dir    string
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger
}

func NewExporter(dir string, loc *time.Location, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		dir:    dir,
		loc:    loc,
		now:    time.Now,
		logger: logger.With().Str("component", "exporter").Logger(),
	}
}

// Export writes orders to a new timestamped file and returns its path
func (e *Exporter) Export(orders []models.Order) (string, error) {
	name := fmt.Sprintf("orders_%s.csv", e.now().In(e.loc).Format("20060102_150405"))
	return e.ExportAs(orders, name)
}

// ExportAs writes orders to dir/name, replacing it atomically
func (e *Exporter) ExportAs(orders []models.Order, name string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(e.dir, ".export-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := e.write(tmp, orders); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}

	path := filepath.Join(e.dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move export file: %w", err)
	}

	e.logger.Info().
		Str("path", path).
		Int("orders_count", len(orders)).
		Msg("CSV export completed")
	return path, nil
}

func (e *Exporter) write(f *os.File, orders []models.Order) error {
	if _, err := f.WriteString(utf8BOM); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, o := range orders {
		if err := w.Write(e.row(o)); err != nil {
			return fmt.Errorf("failed to write order %d: %w", o.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush export file: %w", err)
	}
	return nil
}

func (e *Exporter) row(o models.Order) []string {
	author := "Unknown"
	if o.AuthorName != nil && *o.AuthorName != "" {
		author = *o.AuthorName
	}
	link := "N/A"
	if o.TelegramLink != nil {
		link = *o.TelegramLink
	}
	status := "○ Pending"
	if o.Exported {
		status = "✓ Exported"
	}
	notes := ""
	if o.Notes != nil {
		notes = *o.Notes
	}

	return []string{
		strconv.FormatInt(o.ID, 10),
		o.CreatedAt.In(e.loc).Format("2006-01-02 15:04:05"),
		o.Category,
		strconv.FormatFloat(o.RelevanceScore*100, 'f', 2, 64) + "%",
		string(o.DetectedBy),
		o.Text,
		author,
		o.ChatID,
		link,
		status,
		notes,
	}
}

// ExportPending writes the unexported orders matching f and marks them
// exported once the file is in place. It returns an empty path when nothing matched.
func (e *Exporter) ExportPending(ctx context.Context, orders *repository.Orders, f Filter) (string, int, error) {
	pending, err := orders.GetUnexported(ctx, 0)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get unexported orders: %w", err)
	}

	selected := f.Apply(pending)
	if len(selected) == 0 {
		e.logger.Info().Msg("No orders to export")
		return "", 0, nil
	}

	path, err := e.Export(selected)
	if err != nil {
		return "", 0, err
	}

	ids := make([]int64, len(selected))
	for i, o := range selected {
		ids[i] = o.ID
	}
	if err := orders.MarkExported(ctx, ids); err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("Export written but orders not marked exported")
		return path, len(selected), fmt.Errorf("failed to mark orders exported: %w", err)
	}
	return path, len(selected), nil
}
