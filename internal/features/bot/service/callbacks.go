package service

import (
	"context"
	"strconv"
	"strings"

	"support-bot-backend/internal/common/logger"
	panelsvc "support-bot-backend/internal/features/panel/service"
	"support-bot-backend/internal/platform/telegram"
)

// handleCallback routes inline keyboard presses: profile card actions and
// the config panel. Every press gets an answer so the client spinner stops.
func (d *Dispatcher) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.From == nil || cb.Message == nil {
		return
	}

	if !d.isAuthorizedAdmin(ctx, cb.From.ID) {
		d.answer(ctx, cb.ID, "Not allowed", true)
		return
	}

	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID

	switch {
	case strings.HasPrefix(cb.Data, "block:"):
		d.setBlocked(ctx, cb, strings.TrimPrefix(cb.Data, "block:"), true)

	case strings.HasPrefix(cb.Data, "unblock:"):
		d.setBlocked(ctx, cb, strings.TrimPrefix(cb.Data, "unblock:"), false)

	case strings.HasPrefix(cb.Data, "note:set:"):
		userID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "note:set:"), 10, 64)
		if err != nil {
			d.answer(ctx, cb.ID, "", false)
			return
		}
		if err := d.panel.SetState(ctx, cb.From.ID, panelsvc.AdminState{Action: "input_note", Target: userID}); err != nil {
			logger.Error().Err(err).Msg("Failed to store note input state")
			d.answer(ctx, cb.ID, "Try again", false)
			return
		}
		d.replyInTopic(ctx, cb.Message, "📝 Reply in this topic with the note text (/clear to remove it).")
		d.answer(ctx, cb.ID, "", false)

	case strings.HasPrefix(cb.Data, "pin_card:"):
		d.pinCard(ctx, cb, strings.TrimPrefix(cb.Data, "pin_card:"))

	case cb.Data == "config:rotate_mode":
		if !d.cfg.IsRootAdmin(cb.From.ID) {
			d.answer(ctx, cb.ID, "Only the root admin can switch captcha providers", true)
			return
		}
		toast := d.panel.RotateCaptchaMode(ctx)
		d.panel.HandleConfig(ctx, chatID, messageID, "menu", "base", "")
		d.answer(ctx, cb.ID, toast, false)

	case strings.HasPrefix(cb.Data, "config:"):
		action, key, val := splitConfigData(strings.TrimPrefix(cb.Data, "config:"))
		d.panel.HandleConfig(ctx, chatID, messageID, action, key, val)
		d.answer(ctx, cb.ID, "", false)

	default:
		d.answer(ctx, cb.ID, "", false)
	}
}

// splitConfigData splits "action[:key[:val]]". The value may itself contain
// colons (list item ids), so only the first two separators count.
func splitConfigData(data string) (action, key, val string) {
	parts := strings.SplitN(data, ":", 3)
	action = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}
	if len(parts) > 2 {
		val = parts[2]
	}
	return action, key, val
}

func (d *Dispatcher) setBlocked(ctx context.Context, cb *telegram.CallbackQuery, rawID string, blocked bool) {
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		d.answer(ctx, cb.ID, "", false)
		return
	}

	if _, err := d.moderation.SetBlocked(ctx, userID, blocked); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Bool("blocked", blocked).Msg("Failed to change block state")
		d.answer(ctx, cb.ID, "Failed, try again", true)
		return
	}

	toast := "✅ Unblocked"
	if blocked {
		toast = "🚫 Blocked"
	}
	d.answer(ctx, cb.ID, toast, false)
}

func (d *Dispatcher) pinCard(ctx context.Context, cb *telegram.CallbackQuery, rawID string) {
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		d.answer(ctx, cb.ID, "", false)
		return
	}

	u, err := d.users.GetOrCreate(ctx, userID)
	if err != nil || u.Info.CardMessageID == 0 {
		d.answer(ctx, cb.ID, "No card to pin", false)
		return
	}

	if err := d.gw.PinChatMessage(ctx, d.cfg.Telegram.AdminGroupID, u.Info.CardMessageID, u.TopicID); err != nil {
		logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to pin card")
		d.answer(ctx, cb.ID, "Pin failed", true)
		return
	}
	d.answer(ctx, cb.ID, "📌 Pinned", false)
}

func (d *Dispatcher) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := d.gw.AnswerCallbackQuery(ctx, callbackID, text, alert); err != nil {
		logger.Debug().Err(err).Msg("Failed to answer callback query")
	}
}
