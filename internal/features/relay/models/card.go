package models

import (
	"fmt"
	"strings"
	"time"

	usermodels "support-bot-backend/internal/features/user/models"
	"support-bot-backend/internal/platform/telegram"
)

// Telegram caps forum topic names at 128 characters.
const maxTopicNameLen = 128

// UserMeta is the display card for a user, built from the stored record plus
// the live sender info.
type UserMeta struct {
	UserID    int64
	Name      string
	Username  string
	TopicName string
	Card      string
}

// EscapeHTML escapes text for Telegram HTML parse mode.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// BuildUserMeta produces the profile card and topic name for a user.
// date is the unix timestamp shown on the card (first-contact time).
func BuildUserMeta(from *telegram.User, u *usermodels.User, date int64) UserMeta {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = "Unnamed user"
	}

	handle := "no username"
	if from.Username != "" {
		handle = "@" + from.Username
	}

	note := ""
	if u.Info.Note != "" {
		note = fmt.Sprintf("\n📝 <b>Note:</b> %s", EscapeHTML(u.Info.Note))
	}

	if date == 0 {
		date = time.Now().Unix()
	}
	timeStr := time.Unix(date, 0).UTC().Format("2006-01-02 15:04:05 MST")

	topicName := name
	if runes := []rune(topicName); len(runes) > maxTopicNameLen {
		topicName = string(runes[:maxTopicNameLen])
	}

	return UserMeta{
		UserID:    from.ID,
		Name:      name,
		Username:  from.Username,
		TopicName: topicName,
		Card: fmt.Sprintf("<b>🪪 User Profile</b>\n---\n👤: <code>%s</code>\n🏷️: %s\n🆔: <code>%d</code>%s\n🕒: <code>%s</code>",
			EscapeHTML(name), handle, from.ID, note, timeStr),
	}
}

// CardKeyboard is the inline keyboard attached to a profile card.
func CardKeyboard(userID int64, blocked bool) *telegram.InlineKeyboardMarkup {
	blockBtn := telegram.InlineKeyboardButton{Text: "🚫 Block", CallbackData: fmt.Sprintf("block:%d", userID)}
	if blocked {
		blockBtn = telegram.InlineKeyboardButton{Text: "✅ Unblock", CallbackData: fmt.Sprintf("unblock:%d", userID)}
	}
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "👤 Open profile", URL: fmt.Sprintf("tg://user?id=%d", userID)}},
			{blockBtn},
			{
				{Text: "✏️ Note", CallbackData: fmt.Sprintf("note:set:%d", userID)},
				{Text: "📌 Pin", CallbackData: fmt.Sprintf("pin_card:%d", userID)},
			},
		},
	}
}
