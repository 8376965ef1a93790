package ingest

import (
	"strings"
)

const maxLinkLength = 500

// MessageLink builds a t.me deep link to a message. Public chats link by
// username; supergroups and channels (ids starting with -100) use the
// /c/<internal id>/ form. Other chats have no shareable link and return nil.
func MessageLink(chatID, username, messageID string) *string {
	if messageID == "" {
		return nil
	}

	var link string
	switch {
	case username != "":
		link = "https://t.me/" + strings.TrimPrefix(username, "@") + "/" + messageID
	case strings.HasPrefix(chatID, "-100") && len(chatID) > 4:
		link = "https://t.me/c/" + chatID[4:] + "/" + messageID
	default:
		return nil
	}

	if len(link) > maxLinkLength {
		return nil
	}
	return &link
}
