package service

import (
	"context"
	"fmt"

	settingssvc "support-bot-backend/internal/features/settings/service"
	"support-bot-backend/internal/platform/telegram"
)

var backButton = telegram.InlineKeyboardButton{Text: "🔙 Back", CallbackData: "config:menu"}

func btn(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

func rootMenuKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{btn("📝 Basics", "config:menu:base"), btn("🤖 Auto-replies", "config:menu:ar")},
		{btn("🚫 Block keywords", "config:menu:kw"), btn("🛠 Filters", "config:menu:fl")},
		{btn("👮 Co-admins", "config:menu:auth"), btn("💾 Backup", "config:menu:bak")},
		{btn("🌙 Availability", "config:menu:busy")},
	}}
}

// filterKeyboard renders one toggle per content-type flag plus the
// admin-receipt flag, each showing its current state.
func (s *Service) filterKeyboard(ctx context.Context) *telegram.InlineKeyboardMarkup {
	toggle := func(label, key string) telegram.InlineKeyboardButton {
		on := s.settings.Bool(ctx, key)
		mark := "❌"
		if on {
			mark = "✅"
		}
		return btn(fmt.Sprintf("%s %s", label, mark), fmt.Sprintf("config:toggle:%s:%t", key, !on))
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{toggle("Receipts", "enable_admin_receipt"), toggle("Forwards", "enable_forward_forwarding")},
		{toggle("Media", "enable_image_forwarding"), toggle("Voice", "enable_audio_forwarding")},
		{toggle("Stickers", "enable_sticker_forwarding"), toggle("Links", "enable_link_forwarding")},
		{toggle("Channels", "enable_channel_forwarding"), toggle("Text", "enable_text_forwarding")},
		{backButton},
	}}
}

// listKeyboard renders a deletable entry per list item plus an add button.
func (s *Service) listKeyboard(ctx context.Context, listType string) *telegram.InlineKeyboardMarkup {
	var rows [][]telegram.InlineKeyboardButton

	switch listType {
	case "ar":
		for _, rule := range s.settings.AutoReplyRules(ctx) {
			rows = append(rows, []telegram.InlineKeyboardButton{
				btn("🗑 "+rule.Keywords, fmt.Sprintf("config:del:ar:%s", rule.ID)),
			})
		}
	default:
		key := listConfigKey(listType)
		for _, item := range s.settings.StringList(ctx, key) {
			rows = append(rows, []telegram.InlineKeyboardButton{
				btn("🗑 "+item, fmt.Sprintf("config:del:%s:%s", listType, item)),
			})
		}
	}

	rows = append(rows,
		[]telegram.InlineKeyboardButton{btn("➕ Add", "config:add:"+listType)},
		[]telegram.InlineKeyboardButton{backButton},
	)
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// listConfigKey maps the short list type from callback data to its config key.
func listConfigKey(listType string) string {
	switch listType {
	case "ar":
		return "keyword_responses"
	case "kw":
		return "block_keywords"
	default:
		return "authorized_admins"
	}
}

func captchaStatus(ctx context.Context, settings *settingssvc.Service) string {
	if !settings.Bool(ctx, "enable_verify") {
		return "❌ off"
	}
	if settings.Get(ctx, "captcha_mode") == "recaptcha" {
		return "Google"
	}
	return "Cloudflare"
}
