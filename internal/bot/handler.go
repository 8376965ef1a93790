package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Viphunter83/userbot-orders/internal/export"
	"github.com/Viphunter83/userbot-orders/internal/ingest"
	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/stats"
)

const recentOrdersLimit = 10

// handleUpdate processes incoming update
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message == nil {
		message = update.ChannelPost
	}
	if message == nil || message.Chat == nil {
		return
	}

	// Operator commands run concurrently; feed messages keep their order
	if message.Chat.ID == b.config.OperatorChatID {
		if message.IsCommand() {
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.recoverMiddleware(func() {
					b.handleCommand(ctx, message)
				})
			}()
		}
		return
	}

	b.recoverMiddleware(func() {
		b.handleFeedMessage(ctx, message)
	})
}

// handleFeedMessage forwards a monitored chat message to ingestion
func (b *Bot) handleFeedMessage(ctx context.Context, message *tgbotapi.Message) {
	if !b.config.IsMonitoredChat(message.Chat.ID) {
		b.logger.Debug().
			Int64("chat_id", message.Chat.ID).
			Msg("Ignoring message from unmonitored chat")
		return
	}

	if message.IsCommand() {
		return
	}

	in, ok := toInbound(message)
	if !ok {
		return
	}

	if err := b.deps.Feed.Submit(ctx, in); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, ingest.ErrDispatcherClosed) {
			b.logger.Debug().Err(err).Str("chat_id", in.ChatID).Msg("Message dropped during shutdown")
			return
		}
		b.logger.Error().
			Err(err).
			Str("chat_id", in.ChatID).
			Str("message_id", in.ExternalMessageID).
			Msg("Failed to submit message")
	}
}

// handleCommand processes operator commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()
	args := strings.Fields(message.CommandArguments())

	logger := b.logger.With().Str("command", command).Logger()
	if message.From != nil {
		logger = logger.With().
			Int64("user_id", message.From.ID).
			Str("username", message.From.UserName).
			Logger()
	}
	logger.Info().Msg("Received command")

	chatID := message.Chat.ID
	switch command {
	case "stats":
		b.handleStatsCommand(ctx, chatID, args)
	case "orders":
		b.handleOrdersCommand(ctx, chatID, args)
	case "accept":
		b.handleReviewCommand(ctx, chatID, models.FeedbackAccept, args)
	case "reject":
		b.handleReviewCommand(ctx, chatID, models.FeedbackReject, args)
	case "export":
		b.handleExportCommand(ctx, chatID)
	case "health":
		b.handleHealthCommand(ctx, chatID)
	case "start", "help":
		_ = b.sendMessage(chatID, helpText)
	default:
		_ = b.sendMessage(chatID, "❓ Неизвестная команда. Используйте /help для списка команд.")
	}
}

// handleStatsCommand handles /stats [today|yesterday|week|month]
func (b *Bot) handleStatsCommand(ctx context.Context, chatID int64, args []string) {
	period := "today"
	if len(args) > 0 {
		period = strings.ToLower(args[0])
	}

	now := time.Now()
	from, to := now, now
	switch period {
	case "today":
	case "yesterday":
		from, to = now.AddDate(0, 0, -1), now.AddDate(0, 0, -1)
	case "week":
		from = now.AddDate(0, 0, -6)
	case "month":
		from = now.AddDate(0, 0, -29)
	default:
		_ = b.sendMessage(chatID, "❓ Период: today, yesterday, week или month")
		return
	}

	pm, err := b.deps.Reporter.Period(ctx, from, to)
	if err != nil {
		b.logger.Error().Err(err).Str("period", period).Msg("Failed to get stats")
		b.sendErrorMessage(chatID, "❌ Ошибка при получении статистики")
		return
	}

	text := stats.FormatDaily(pm)
	if b.deps.Budget != nil {
		text += formatBudget(b.deps.Budget.Spent(), b.deps.Budget.Remaining())
	}
	_ = b.sendMessage(chatID, text)
}

// handleOrdersCommand handles /orders [category]
func (b *Bot) handleOrdersCommand(ctx context.Context, chatID int64, args []string) {
	category := ""
	if len(args) > 0 {
		category = strings.Join(args, " ")
	}

	orders, err := b.deps.Orders.GetRecent(ctx, category, recentOrdersLimit)
	if err != nil {
		b.logger.Error().Err(err).Str("category", category).Msg("Failed to get orders")
		b.sendErrorMessage(chatID, "❌ Ошибка при получении заказов")
		return
	}
	_ = b.sendMessage(chatID, formatOrderList(orders, category))
}

// handleReviewCommand handles /accept <id> and /reject <id> [reason]
func (b *Bot) handleReviewCommand(ctx context.Context, chatID int64, feedback models.FeedbackType, args []string) {
	if len(args) == 0 {
		_ = b.sendMessage(chatID, fmt.Sprintf("❓ Использование: /%s <id> [причина]", feedback))
		return
	}
	orderID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || orderID <= 0 {
		_ = b.sendMessage(chatID, "❓ Номер заказа должен быть положительным числом")
		return
	}

	var reason *string
	if len(args) > 1 {
		r := strings.Join(args[1:], " ")
		reason = &r
	}

	err = b.deps.Reviewer.Review(ctx, orderID, feedback, reason)
	switch {
	case err == nil:
		verdict := "✅ принят"
		if feedback == models.FeedbackReject {
			verdict = "🚫 отклонён"
		}
		_ = b.sendMessage(chatID, fmt.Sprintf("Заказ #%d %s", orderID, verdict))
	case models.IsKind(err, models.KindNotFound):
		_ = b.sendMessage(chatID, fmt.Sprintf("❓ Заказ #%d не найден", orderID))
	case models.IsKind(err, models.KindValidationRejected):
		_ = b.sendMessage(chatID, "❌ Некорректный отзыв: причина не длиннее 500 символов")
	default:
		b.logger.Error().Err(err).Int64("order_id", orderID).Msg("Failed to record feedback")
		b.sendErrorMessage(chatID, "❌ Ошибка при сохранении отзыва")
	}
}

// handleExportCommand handles /export: unexported orders as a CSV document
func (b *Bot) handleExportCommand(ctx context.Context, chatID int64) {
	no := false
	path, n, err := b.deps.Exporter.ExportPending(ctx, b.deps.Orders, export.Filter{Exported: &no, Ascending: true})
	if err != nil && path == "" {
		b.logger.Error().Err(err).Msg("Export failed")
		b.sendErrorMessage(chatID, "❌ Ошибка при экспорте")
		return
	}
	if n == 0 {
		_ = b.sendMessage(chatID, "📭 Новых заказов для экспорта нет")
		return
	}

	if err := b.sendDocument(chatID, path, fmt.Sprintf("Заказов: %d", n)); err != nil {
		b.sendErrorMessage(chatID, "❌ Файл создан, но не отправлен: "+path)
	}
}

// handleHealthCommand handles /health
func (b *Bot) handleHealthCommand(ctx context.Context, chatID int64) {
	if b.deps.Health == nil {
		_ = b.sendMessage(chatID, "❓ Проверка состояния не настроена")
		return
	}
	report := b.deps.Health.Check(ctx)
	if !report.Healthy() {
		b.logger.Warn().Str("overall", report.Overall()).Msg("Health check reported failures")
	}
	_ = b.sendMessage(chatID, stats.EscapeMarkdown(report.Format()))
}
