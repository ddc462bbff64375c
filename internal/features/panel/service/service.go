package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"support-bot-backend/internal/common/logger"
	relaymodels "support-bot-backend/internal/features/relay/models"
	settingssvc "support-bot-backend/internal/features/settings/service"
	"support-bot-backend/internal/platform/telegram"
)

// Service renders the inline admin configuration panel and applies the
// actions coming back through callback queries and free-text input.
type Service struct {
	gw       *telegram.Client
	settings *settingssvc.Service
}

func NewService(gw *telegram.Client, settings *settingssvc.Service) *Service {
	return &Service{gw: gw, settings: settings}
}

// render sends a new panel message, or edits in place when messageID is set.
func (s *Service) render(ctx context.Context, chatID, messageID int64, text string, kb *telegram.InlineKeyboardMarkup) {
	var err error
	if messageID != 0 {
		err = s.gw.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID: chatID, MessageID: messageID, Text: text, ParseMode: "HTML", ReplyMarkup: kb,
		})
	} else {
		_, err = s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: chatID, Text: text, ParseMode: "HTML", ReplyMarkup: kb,
		})
	}
	if err != nil {
		logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to render panel")
	}
}

// HandleConfig routes a config:* callback action. messageID is zero when the
// panel is opened fresh via /start.
func (s *Service) HandleConfig(ctx context.Context, chatID, messageID int64, action, key, val string) {
	switch action {
	case "", "menu":
		s.renderMenu(ctx, chatID, messageID, key)

	case "toggle":
		if err := s.settings.Set(ctx, key, val); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to toggle setting")
		}
		switch key {
		case "busy_mode":
			s.renderMenu(ctx, chatID, messageID, "busy")
		case "enable_qa_verify":
			s.renderMenu(ctx, chatID, messageID, "base")
		default:
			s.render(ctx, chatID, messageID, "🛠 <b>Filters</b>", s.filterKeyboard(ctx))
		}

	case "cl":
		empty := ""
		if key == "authorized_admins" {
			empty = "[]"
		}
		if err := s.settings.Set(ctx, key, empty); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to clear setting")
		}
		target := "bak"
		if key == "authorized_admins" {
			target = "auth"
		}
		s.renderMenu(ctx, chatID, messageID, target)

	case "del":
		s.deleteListItem(ctx, key, val)
		s.render(ctx, chatID, messageID, listTitle(key), s.listKeyboard(ctx, key))

	case "edit", "add":
		s.promptInput(ctx, chatID, messageID, action, key)
	}
}

// RotateCaptchaMode cycles turnstile -> recaptcha -> off -> turnstile and
// returns the toast text for the callback answer.
func (s *Service) RotateCaptchaMode(ctx context.Context) string {
	mode := s.settings.Get(ctx, "captcha_mode")
	enabled := s.settings.Bool(ctx, "enable_verify")

	nextMode, nextEnable, toast := "turnstile", "true", "Switched to Cloudflare"
	if enabled {
		if mode == "turnstile" {
			nextMode = "recaptcha"
			toast = "Switched to Google Recaptcha"
		} else {
			nextMode, nextEnable, toast = mode, "false", "Captcha disabled"
		}
	}

	if err := s.settings.Set(ctx, "captcha_mode", nextMode); err != nil {
		logger.Error().Err(err).Msg("Failed to set captcha mode")
	}
	if err := s.settings.Set(ctx, "enable_verify", nextEnable); err != nil {
		logger.Error().Err(err).Msg("Failed to set captcha flag")
	}
	return toast
}

func (s *Service) renderMenu(ctx context.Context, chatID, messageID int64, key string) {
	switch key {
	case "":
		s.render(ctx, chatID, messageID, "⚙️ <b>Control panel</b>", rootMenuKeyboard())

	case "base":
		status := captchaStatus(ctx, s.settings)
		qaOn := s.settings.Bool(ctx, "enable_qa_verify")
		qaMark := "❌"
		if qaOn {
			qaMark = "✅"
		}
		text := fmt.Sprintf("Basic settings\nCaptcha mode: %s\nQuestion verification: %s", status, qaMark)
		kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{btn("Welcome", "config:edit:welcome_msg"), btn("Question", "config:edit:verif_q"), btn("Answer", "config:edit:verif_a")},
			{btn(fmt.Sprintf("Captcha: %s (tap to switch)", status), "config:rotate_mode")},
			{btn(fmt.Sprintf("Question verification: %s", qaMark), fmt.Sprintf("config:toggle:enable_qa_verify:%t", !qaOn))},
			{backButton},
		}}
		s.render(ctx, chatID, messageID, text, kb)

	case "fl":
		s.render(ctx, chatID, messageID, "🛠 <b>Filters</b>", s.filterKeyboard(ctx))

	case "ar", "kw", "auth":
		s.render(ctx, chatID, messageID, listTitle(key), s.listKeyboard(ctx, key))

	case "bak":
		backupID := s.settings.Get(ctx, "backup_group_id")
		if backupID == "" {
			backupID = "none"
		}
		blocked := s.settings.Get(ctx, "blocked_topic_id")
		blockedStatus := "⏳"
		if blocked != "" {
			blockedStatus = fmt.Sprintf("✅ (%s)", blocked)
		}
		text := fmt.Sprintf("💾 <b>Backup</b>\nBackup chat: %s\nBlacklist topic: %s", backupID, blockedStatus)
		kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{btn("Set backup chat", "config:edit:backup_group_id"), btn("Clear backup", "config:cl:backup_group_id")},
			{btn("Reset blacklist topic", "config:cl:blocked_topic_id")},
			{backButton},
		}}
		s.render(ctx, chatID, messageID, text, kb)

	case "busy":
		on := s.settings.Bool(ctx, "busy_mode")
		state, next := "🟢 open", "🔴 closed"
		if on {
			state, next = "🔴 closed", "🟢 open"
		}
		text := fmt.Sprintf("🌙 <b>Availability</b>\nCurrent: %s\nAuto-reply: %s",
			state, relaymodels.EscapeHTML(s.settings.Get(ctx, "busy_msg")))
		kb := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{btn(fmt.Sprintf("Switch to %s", next), fmt.Sprintf("config:toggle:busy_mode:%t", !on))},
			{btn("✏️ Edit auto-reply", "config:edit:busy_msg")},
			{backButton},
		}}
		s.render(ctx, chatID, messageID, text, kb)
	}
}

func listTitle(listType string) string {
	switch listType {
	case "ar":
		return "🤖 <b>Auto-replies</b>"
	case "kw":
		return "🚫 <b>Block keywords</b>"
	default:
		return "👮 <b>Co-admins</b>"
	}
}

func (s *Service) deleteListItem(ctx context.Context, listType, id string) {
	key := listConfigKey(listType)
	var value string

	if listType == "ar" {
		rules := s.settings.AutoReplyRules(ctx)
		kept := rules[:0]
		for _, r := range rules {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		data, _ := json.Marshal(kept)
		value = string(data)
	} else {
		items := s.settings.StringList(ctx, key)
		kept := items[:0]
		for _, item := range items {
			if item != id {
				kept = append(kept, item)
			}
		}
		data, _ := json.Marshal(kept)
		value = string(data)
	}

	if err := s.settings.Set(ctx, key, value); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Failed to delete list item")
	}
}

// promptInput stores the pending input state and asks the admin for a value.
func (s *Service) promptInput(ctx context.Context, chatID, messageID int64, action, key string) {
	stateKey := key
	if action == "add" {
		stateKey = key + "_add"
	}
	if err := s.SetState(ctx, chatID, AdminState{Action: "input", Key: stateKey}); err != nil {
		logger.Error().Err(err).Msg("Failed to store admin input state")
		return
	}

	prompt := fmt.Sprintf("Enter a value for %s (/cancel to abort):", key)
	if key == "ar" && action == "add" {
		prompt = "Enter an auto-reply rule in the form:\n<b>keywords===response</b>\n\nFor example: pricing===Please contact a human agent\n(/cancel to abort)"
	}
	if key == "welcome_msg" {
		prompt = "Send the new welcome message (/cancel to abort):\n\n• Supports <b>text</b> or <b>photo/video/GIF</b>\n• Supports the {name} placeholder\n• Just send the media directly"
	}

	if err := s.gw.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID: chatID, MessageID: messageID, Text: prompt, ParseMode: "HTML",
	}); err != nil {
		logger.Debug().Err(err).Msg("Failed to show input prompt")
	}
}

// HandleInput consumes one free-text (or media) message from an admin who
// has a pending panel input state.
func (s *Service) HandleInput(ctx context.Context, adminID int64, msg *telegram.Message, state *AdminState) {
	if msg.Text == "/cancel" {
		if err := s.ClearState(ctx, adminID); err != nil {
			logger.Error().Err(err).Msg("Failed to clear admin state")
		}
		s.renderMenu(ctx, adminID, 0, "")
		return
	}

	key, value, err := s.resolveInput(ctx, state.Key, msg)
	if err != nil {
		s.sendText(ctx, adminID, "❌ "+err.Error())
		return
	}

	if err := s.settings.Set(ctx, key, value); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Failed to store setting")
		s.sendText(ctx, adminID, "❌ Failed to save, please try again")
		return
	}
	if err := s.ClearState(ctx, adminID); err != nil {
		logger.Error().Err(err).Msg("Failed to clear admin state")
	}

	display := value
	if key == "welcome_msg" && strings.HasPrefix(value, "{") {
		display = "[media config]"
	} else if len(display) > 100 {
		display = display[:100]
	}
	s.sendText(ctx, adminID, fmt.Sprintf("✅ %s updated:\n%s", key, display))
	s.renderMenu(ctx, adminID, 0, "")
}

// resolveInput turns the raw admin message into the config key/value pair to
// store, handling media welcome messages and list additions.
func (s *Service) resolveInput(ctx context.Context, stateKey string, msg *telegram.Message) (string, string, error) {
	if stateKey == "welcome_msg" {
		if cfg := mediaWelcomeConfig(msg); cfg != "" {
			return "welcome_msg", cfg, nil
		}
		return "welcome_msg", msg.Text, nil
	}

	if listType, ok := strings.CutSuffix(stateKey, "_add"); ok {
		key := listConfigKey(listType)
		if listType == "ar" {
			parts := strings.SplitN(msg.Text, "===", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return "", "", fmt.Errorf("bad format, use: keywords===response")
			}
			rules := append(s.settings.AutoReplyRules(ctx), settingssvc.AutoReplyRule{
				ID: uuid.NewString(), Keywords: parts[0], Response: parts[1],
			})
			data, err := json.Marshal(rules)
			return key, string(data), err
		}
		items := append(s.settings.StringList(ctx, key), msg.Text)
		data, err := json.Marshal(items)
		return key, string(data), err
	}

	if stateKey == "authorized_admins" {
		var ids []string
		for _, part := range strings.Split(msg.Text, ",") {
			if id := strings.TrimSpace(part); id != "" {
				ids = append(ids, id)
			}
		}
		data, err := json.Marshal(ids)
		return stateKey, string(data), err
	}

	return stateKey, msg.Text, nil
}

// mediaWelcomeConfig serializes an attached photo/video/animation into the
// JSON media-welcome config, or returns empty for plain text.
func mediaWelcomeConfig(msg *telegram.Message) string {
	var mediaType, fileID string
	switch {
	case len(msg.Photo) > 0:
		mediaType, fileID = "photo", msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		mediaType, fileID = "video", msg.Video.FileID
	case msg.Animation != nil:
		mediaType, fileID = "animation", msg.Animation.FileID
	default:
		return ""
	}
	data, _ := json.Marshal(map[string]string{
		"type": mediaType, "file_id": fileID, "caption": msg.Caption,
	})
	return string(data)
}

func (s *Service) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to send panel message")
	}
}
