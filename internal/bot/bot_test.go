package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viphunter83/userbot-orders/internal/export"
	"github.com/Viphunter83/userbot-orders/internal/health"
	"github.com/Viphunter83/userbot-orders/internal/models"
	"github.com/Viphunter83/userbot-orders/internal/repository"
	"github.com/Viphunter83/userbot-orders/internal/stats"
	"github.com/Viphunter83/userbot-orders/internal/storage"
)

const operatorID int64 = 555

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

type fakeFeed struct {
	mu  sync.Mutex
	got []models.InboundMessage
}

func (f *fakeFeed) Submit(_ context.Context, in models.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, in)
	return nil
}

type fakeReviewer struct {
	mu       sync.Mutex
	orderID  int64
	feedback models.FeedbackType
	reason   *string
	err      error
}

func (f *fakeReviewer) Review(_ context.Context, id int64, fb models.FeedbackType, reason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderID, f.feedback, f.reason = id, fb, reason
	return f.err
}

type fixture struct {
	bot      *Bot
	sender   *fakeSender
	feed     *fakeFeed
	reviewer *fakeReviewer
	orders   *repository.Orders
}

func newFixture(t *testing.T, monitored ...int64) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	gw, err := storage.NewGateway(nil, store, time.Second, zerolog.Nop())
	require.NoError(t, err)

	statsRepo := repository.NewStats(gw, time.UTC, zerolog.Nop())
	orders := repository.NewOrders(gw, zerolog.Nop())

	f := &fixture{
		sender:   &fakeSender{},
		feed:     &fakeFeed{},
		reviewer: &fakeReviewer{},
		orders:   orders,
	}
	f.bot = &Bot{
		sender: f.sender,
		config: &models.Config{OperatorChatID: operatorID, MonitoredChatIDs: monitored},
		deps: Deps{
			Feed:     f.feed,
			Reviewer: f.reviewer,
			Reporter: stats.NewReporter(statsRepo, orders, zerolog.Nop()),
			Orders:   orders,
			Exporter: export.NewExporter(t.TempDir(), time.UTC, zerolog.Nop()),
		},
		logger: zerolog.Nop(),
	}
	return f
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "private"},
		From:      &tgbotapi.User{ID: 7, UserName: "operator"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func groupMessage(chatID int64, id int, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: id,
		Date:      1767225600,
		Chat:      &tgbotapi.Chat{ID: chatID, Type: "supergroup", Title: "Фриланс", UserName: "freelance_jobs"},
		From:      &tgbotapi.User{ID: 42, FirstName: "Ivan", LastName: "Petrov"},
		Text:      text,
	}}
}

func (f *fixture) run(update tgbotapi.Update) {
	f.bot.handleUpdate(context.Background(), update)
	f.bot.wg.Wait()
}

func TestToInbound(t *testing.T) {
	in, ok := toInbound(groupMessage(-1001, 10, "Нужен бот").Message)
	require.True(t, ok)
	assert.Equal(t, "10", in.ExternalMessageID)
	assert.Equal(t, "-1001", in.ChatID)
	assert.Equal(t, "Фриланс", in.ChatName)
	assert.Equal(t, models.ChatKindGroup, in.ChatKind)
	assert.Equal(t, "freelance_jobs", in.ChatUsername)
	assert.Equal(t, "42", in.AuthorID)
	require.NotNil(t, in.AuthorName)
	assert.Equal(t, "Ivan Petrov", *in.AuthorName)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), in.Timestamp)

	post := &tgbotapi.Message{
		MessageID:  3,
		Chat:       &tgbotapi.Chat{ID: -1002, Type: "channel", Title: "Jobs"},
		SenderChat: &tgbotapi.Chat{ID: -1002, Type: "channel", Title: "Jobs"},
		Caption:    "Ищем дизайнера",
	}
	in, ok = toInbound(post)
	require.True(t, ok)
	assert.Equal(t, models.ChatKindChannel, in.ChatKind)
	assert.Equal(t, "-1002", in.AuthorID)
	assert.Equal(t, "Ищем дизайнера", in.Text)

	private := &tgbotapi.Message{
		MessageID: 4,
		Chat:      &tgbotapi.Chat{ID: 9, Type: "private", FirstName: "Anna"},
		From:      &tgbotapi.User{ID: 9, UserName: "anna"},
		Text:      "привет",
	}
	in, ok = toInbound(private)
	require.True(t, ok)
	assert.Equal(t, models.ChatKindDirect, in.ChatKind)
	assert.Equal(t, "Anna", in.ChatName)
	assert.Equal(t, "anna", *in.AuthorName)

	_, ok = toInbound(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "  "})
	assert.False(t, ok)
	_, ok = toInbound(nil)
	assert.False(t, ok)
}

func TestHandleUpdate_FeedFiltering(t *testing.T) {
	f := newFixture(t, -1001)

	f.run(groupMessage(-1001, 1, "Нужен разработчик"))
	f.run(groupMessage(-1009, 2, "Нужен разработчик"))
	f.run(tgbotapi.Update{ChannelPost: &tgbotapi.Message{
		MessageID: 3, Chat: &tgbotapi.Chat{ID: -1001, Type: "channel"}, Text: "Пост",
	}})
	// Operator chatter is never classified
	f.run(tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 4, Chat: &tgbotapi.Chat{ID: operatorID, Type: "private"}, Text: "заметка",
	}})

	require.Len(t, f.feed.got, 2)
	assert.Equal(t, "1", f.feed.got[0].ExternalMessageID)
	assert.Equal(t, "3", f.feed.got[1].ExternalMessageID)
	assert.Empty(t, f.sender.texts())
}

func TestHandleUpdate_CommandsOnlyFromOperator(t *testing.T) {
	f := newFixture(t)

	f.run(command(-1001, "/help"))
	assert.Empty(t, f.sender.texts())
	assert.Empty(t, f.feed.got, "commands are not classified")

	f.run(command(operatorID, "/help"))
	require.Len(t, f.sender.texts(), 1)
	assert.Contains(t, f.sender.texts()[0], "/reject")
}

func TestReviewCommands(t *testing.T) {
	f := newFixture(t)

	f.run(command(operatorID, "/reject #12 не заказ, реклама"))
	assert.EqualValues(t, 12, f.reviewer.orderID)
	assert.Equal(t, models.FeedbackReject, f.reviewer.feedback)
	require.NotNil(t, f.reviewer.reason)
	assert.Equal(t, "не заказ, реклама", *f.reviewer.reason)

	f.run(command(operatorID, "/accept 7"))
	assert.EqualValues(t, 7, f.reviewer.orderID)
	assert.Nil(t, f.reviewer.reason)

	f.reviewer.err = models.NewError(models.KindNotFound, "order.get", nil)
	f.run(command(operatorID, "/accept 99"))
	f.run(command(operatorID, "/accept abc"))

	texts := f.sender.texts()
	require.Len(t, texts, 4)
	assert.Contains(t, texts[0], "отклонён")
	assert.Contains(t, texts[1], "принят")
	assert.Contains(t, texts[2], "не найден")
	assert.Contains(t, texts[3], "положительным")
}

func TestOrdersAndExportCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.run(command(operatorID, "/orders"))
	f.run(command(operatorID, "/export"))

	require.NoError(t, f.orders.Create(ctx, &models.Order{
		MessageID: "1", ChatID: "c", AuthorID: "u", Text: "Нужен *срочно* бот",
		Category: "Backend", RelevanceScore: 0.85, DetectedBy: models.DetectedByRegex,
	}))
	f.run(command(operatorID, "/orders Backend"))
	f.run(command(operatorID, "/export"))

	texts := f.sender.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0], "Заказов пока нет")
	assert.Contains(t, texts[1], "Новых заказов для экспорта нет")
	assert.Contains(t, texts[2], "Последние заказы: Backend")
	assert.Contains(t, texts[2], `Нужен \*срочно\* бот`)

	f.sender.mu.Lock()
	last := f.sender.sent[len(f.sender.sent)-1]
	f.sender.mu.Unlock()
	doc, ok := last.(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Заказов: 1", doc.Caption)

	left, err := f.orders.GetUnexported(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestStatsCommand(t *testing.T) {
	f := newFixture(t)
	f.bot.deps.Budget = fixedBudget{spent: 0.5, remaining: 1.5}

	f.run(command(operatorID, "/stats week"))
	f.run(command(operatorID, "/stats decade"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Отчёт за")
	assert.Contains(t, texts[0], "осталось $1.5000")
	assert.Contains(t, texts[1], "Период")
}

type fixedBudget struct{ spent, remaining float64 }

func (b fixedBudget) Spent() float64     { return b.spent }
func (b fixedBudget) Remaining() float64 { return b.remaining }

func TestHealthCommand(t *testing.T) {
	f := newFixture(t)

	f.run(command(operatorID, "/health"))

	gw, err := storage.NewGateway(nil, storage.NewMemoryStore(), time.Second, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, gw.Init(context.Background()))
	f.bot.deps.Health = health.NewChecker(gw, t.TempDir(), time.UTC, zerolog.Nop()).
		WithLLM("gemini", fixedBudget{spent: 2, remaining: 0})

	f.run(command(operatorID, "/health"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "не настроена")
	assert.Contains(t, texts[1], "Health: degraded")
	assert.Contains(t, texts[1], `mode rest\_only`)
	assert.Contains(t, texts[1], "daily budget exhausted")
}

func TestNotifyOrder(t *testing.T) {
	f := newFixture(t)
	link := "https://t.me/freelance_jobs/10"
	author := "dev_lead"

	f.bot.NotifyOrder(context.Background(), &models.Order{
		ID: 5, Category: "AI/ML", RelevanceScore: 0.92, DetectedBy: models.DetectedByLLM,
		AuthorName: &author, Text: "Нужен ML инженер", TelegramLink: &link,
	})

	f.sender.mu.Lock()
	msg, ok := f.sender.sent[0].(tgbotapi.MessageConfig)
	f.sender.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, operatorID, msg.ChatID)
	assert.Equal(t, tgbotapi.ModeMarkdown, msg.ParseMode)
	assert.Contains(t, msg.Text, "Новый заказ #5")
	assert.Contains(t, msg.Text, "AI/ML · 92% · llm")
	assert.Contains(t, msg.Text, `dev\_lead`)
	assert.Contains(t, msg.Text, "(https://t.me/freelance_jobs/10)")
	assert.Contains(t, msg.Text, "/reject 5")
}

func TestRecoverMiddleware(t *testing.T) {
	f := newFixture(t)
	assert.NotPanics(t, func() {
		f.bot.recoverMiddleware(func() { panic("boom") })
	})
}
