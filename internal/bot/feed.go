package bot

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// toInbound converts a Telegram message into a feed event. ok is false for
// messages without text.
func toInbound(message *tgbotapi.Message) (models.InboundMessage, bool) {
	if message == nil || message.Chat == nil {
		return models.InboundMessage{}, false
	}
	text := message.Text
	if text == "" {
		text = message.Caption
	}
	if strings.TrimSpace(text) == "" {
		return models.InboundMessage{}, false
	}

	in := models.InboundMessage{
		ExternalMessageID: strconv.Itoa(message.MessageID),
		ChatID:            strconv.FormatInt(message.Chat.ID, 10),
		ChatName:          chatName(message.Chat),
		ChatKind:          chatKind(message.Chat),
		ChatUsername:      message.Chat.UserName,
		Text:              text,
		Timestamp:         message.Time().UTC(),
	}

	switch {
	case message.From != nil:
		in.AuthorID = strconv.FormatInt(message.From.ID, 10)
		if name := userName(message.From); name != "" {
			in.AuthorName = &name
		}
	case message.SenderChat != nil:
		in.AuthorID = strconv.FormatInt(message.SenderChat.ID, 10)
		if name := chatName(message.SenderChat); name != "" {
			in.AuthorName = &name
		}
	}
	return in, true
}

func chatKind(chat *tgbotapi.Chat) models.ChatKind {
	switch {
	case chat.IsPrivate():
		return models.ChatKindDirect
	case chat.IsChannel():
		return models.ChatKindChannel
	default:
		return models.ChatKindGroup
	}
}

func chatName(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if name := strings.TrimSpace(chat.FirstName + " " + chat.LastName); name != "" {
		return name
	}
	return chat.UserName
}

// userName prefers @username and falls back to the display name
func userName(user *tgbotapi.User) string {
	if user.UserName != "" {
		return user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
