package service

import (
	"context"
	"regexp"
	"time"

	"support-bot-backend/internal/common/logger"
	relaymodels "support-bot-backend/internal/features/relay/models"
	usermodels "support-bot-backend/internal/features/user/models"
	"support-bot-backend/internal/platform/telegram"
)

// busyReplyCooldown throttles the out-of-office auto reply per user.
const busyReplyCooldown = 5 * time.Minute

const helpText = `📄 <b>How this works</b>
Send me a message and I will relay it to the support team inside their group. Their replies come back here.

/start - restart, or re-run verification`

// handlePrivate runs the inbound pipeline for a direct message: commands,
// verification gating, moderation, content filtering, busy mode, auto
// replies, and finally the relay into the admin group.
func (d *Dispatcher) handlePrivate(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	u, err := d.users.GetOrCreate(ctx, msg.From.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", msg.From.ID).Msg("Failed to load user")
		return
	}

	isAdmin := d.isAuthorizedAdmin(ctx, msg.From.ID)
	if isAdmin && u.State != usermodels.StateVerified {
		u.State = usermodels.StateVerified
		if err := d.users.Save(ctx, u); err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to save user")
		}
	}

	switch msg.Text {
	case "/start":
		if isAdmin {
			d.panel.HandleConfig(ctx, msg.Chat.ID, 0, "menu", "", "")
			return
		}
		if u.IsBlocked {
			d.sendText(ctx, msg.Chat.ID, "🚫 You are blocked. Your appeal has been noted and an admin will review it.")
			return
		}
		// /start always restarts verification from scratch.
		if u.State != usermodels.StateNew {
			u.State = usermodels.StateNew
			if err := d.users.Save(ctx, u); err != nil {
				logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to save user")
			}
		}
		d.verification.SendStart(ctx, msg, u)
		return
	case "/help":
		d.sendText(ctx, msg.Chat.ID, helpText)
		return
	}

	// Admins answering a pending panel prompt send plain text here.
	if isAdmin {
		if state, ok := d.panel.State(ctx, msg.From.ID); ok && state.Action == "input" {
			d.panel.HandleInput(ctx, msg.From.ID, msg, state)
			return
		}
	}

	if u.IsBlocked {
		return
	}

	// Verification gate. Admins skip it via the auto-verify above.
	switch u.State {
	case usermodels.StatePendingVerification:
		d.verification.VerifyAnswer(ctx, u, msg.Text)
		return
	case usermodels.StateNew:
		if d.settings.Bool(ctx, "enable_verify") || d.settings.Bool(ctx, "enable_qa_verify") {
			if d.shouldWarn(u.ID) {
				d.sendText(ctx, msg.Chat.ID, "🛡️ Please send /start and complete verification first.")
			}
			return
		}
		// Verification disabled entirely, let the user straight through.
		u.State = usermodels.StateVerified
		if err := d.users.Save(ctx, u); err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to save user")
		}
	}

	if !isAdmin && d.moderation.CheckKeywords(ctx, u, msg.From, msg.Text+" "+msg.Caption) {
		return
	}

	if content, ok := relaymodels.Classify(msg); ok {
		if !isAdmin && !d.settings.Bool(ctx, content.SettingKey) {
			d.sendText(ctx, msg.Chat.ID, "⚠️ Not accepting "+content.Label+" at the moment.")
			return
		}
	}

	if !isAdmin && d.settings.Bool(ctx, "busy_mode") {
		now := time.Now().UnixMilli()
		if now-u.Info.LastBusyReply > busyReplyCooldown.Milliseconds() {
			d.sendText(ctx, msg.Chat.ID, "🌙 "+d.settings.Get(ctx, "busy_msg"))
			u.Info.LastBusyReply = now
			if err := d.users.Save(ctx, u); err != nil {
				logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to save user")
			}
		}
	}

	d.sendAutoReply(ctx, msg)

	d.relay.Relay(ctx, msg, u)
}

// sendAutoReply answers the first matching keyword rule. The message is
// still relayed so the admins see the exchange.
func (d *Dispatcher) sendAutoReply(ctx context.Context, msg *telegram.Message) {
	if msg.Text == "" {
		return
	}
	for _, rule := range d.settings.AutoReplyRules(ctx) {
		re, err := regexp.Compile("(?i)" + rule.Keywords)
		if err != nil {
			logger.Warn().Str("keywords", rule.Keywords).Err(err).Msg("Bad auto-reply pattern")
			continue
		}
		if re.MatchString(msg.Text) {
			d.sendText(ctx, msg.Chat.ID, "🤖 "+rule.Response)
			return
		}
	}
}
