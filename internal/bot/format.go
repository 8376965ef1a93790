package bot

import (
	"fmt"
	"strings"

	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/stats"
)

const previewLength = 700

const helpText = "👋 *Бот поиска заказов*\n\n" +
	"Я читаю отслеживаемые чаты и присылаю сюда найденные заказы.\n\n" +
	"*Доступные команды:*\n" +
	"/stats [today|yesterday|week|month] - Статистика за период\n" +
	"/orders [категория] - Последние заказы\n" +
	"/accept <id> - Отметить заказ как верный\n" +
	"/reject <id> [причина] - Отметить ложное срабатывание\n" +
	"/export - Выгрузить новые заказы в CSV\n" +
	"/health - Состояние хранилища, LLM и бота\n" +
	"/help - Показать это сообщение"

func formatBudget(spent, remaining float64) string {
	if remaining < 0 {
		return fmt.Sprintf("\n💰 LLM сегодня: $%.4f (без лимита)", spent)
	}
	return fmt.Sprintf("\n💰 LLM сегодня: $%.4f, осталось $%.4f", spent, remaining)
}

func preview(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}

func authorOf(o *models.Order) string {
	if o.AuthorName != nil && *o.AuthorName != "" {
		return *o.AuthorName
	}
	return o.AuthorID
}

// formatOrderNotification renders a new order for the operator
func formatOrderNotification(o *models.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🆕 *Новый заказ #%d*\n", o.ID)
	fmt.Fprintf(&sb, "📂 %s · %.0f%% · %s\n", stats.EscapeMarkdown(o.Category), o.RelevanceScore*100, o.DetectedBy)
	fmt.Fprintf(&sb, "👤 %s\n\n", stats.EscapeMarkdown(authorOf(o)))
	sb.WriteString(stats.EscapeMarkdown(preview(o.Text, previewLength)))
	sb.WriteString("\n\n")
	if o.TelegramLink != nil {
		fmt.Fprintf(&sb, "[Открыть сообщение](%s)\n", *o.TelegramLink)
	}
	fmt.Fprintf(&sb, "/accept %d · /reject %d", o.ID, o.ID)
	return sb.String()
}

// formatOrderList renders recent orders as a compact list
func formatOrderList(orders []models.Order, category string) string {
	if len(orders) == 0 {
		if category != "" {
			return fmt.Sprintf("📭 Заказов в категории %s нет", stats.EscapeMarkdown(category))
		}
		return "📭 Заказов пока нет"
	}

	var sb strings.Builder
	if category != "" {
		fmt.Fprintf(&sb, "📋 *Последние заказы: %s*\n\n", stats.EscapeMarkdown(category))
	} else {
		sb.WriteString("📋 *Последние заказы*\n\n")
	}
	for i := range orders {
		o := &orders[i]
		mark := ""
		if o.Feedback != nil {
			switch *o.Feedback {
			case models.FeedbackAccept:
				mark = " ✅"
			case models.FeedbackReject:
				mark = " 🚫"
			}
		}
		fmt.Fprintf(&sb, "#%d %s %.0f%%%s\n%s\n\n", o.ID, stats.EscapeMarkdown(o.Category),
			o.RelevanceScore*100, mark, stats.EscapeMarkdown(preview(o.Text, 120)))
	}
	return strings.TrimRight(sb.String(), "\n")
}
