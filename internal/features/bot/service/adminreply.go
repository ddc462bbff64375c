package service

import (
	"context"
	"errors"

	"support-bot-backend/internal/common/logger"
	relaymodels "support-bot-backend/internal/features/relay/models"
	msgrepo "support-bot-backend/internal/features/relay/repository"
	usermodels "support-bot-backend/internal/features/user/models"
	userrepo "support-bot-backend/internal/features/user/repository"
	"support-bot-backend/internal/platform/telegram"
)

// handleAdminReply delivers a message written inside a user's topic back to
// that user, preserving reply threading where a correlation record exists.
func (d *Dispatcher) handleAdminReply(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	// Only authorized admins relay; other group members are ignored.
	if !d.isAuthorizedAdmin(ctx, msg.From.ID) {
		return
	}

	if state, ok := d.panel.State(ctx, msg.From.ID); ok && state.Action == "input_note" {
		d.applyNote(ctx, msg, state.Target)
		return
	}

	u, err := d.users.FindByTopicID(ctx, msg.MessageThreadID)
	if err != nil {
		if !errors.Is(err, userrepo.ErrNotFound) {
			logger.Error().Err(err).Int64("topic_id", msg.MessageThreadID).Msg("Failed to resolve topic owner")
		}
		return
	}

	var replyTo int64
	if msg.ReplyToMessage != nil {
		if rec, err := d.messages.GetByTopicMessage(ctx, msg.ReplyToMessage.MessageID); err == nil {
			replyTo = rec.MessageID
		} else if !errors.Is(err, msgrepo.ErrNotFound) {
			logger.Warn().Err(err).Int64("topic_message_id", msg.ReplyToMessage.MessageID).Msg("Failed to look up reply target")
		}
	}

	_, err = d.gw.CopyMessage(ctx, telegram.CopyMessageRequest{
		ChatID:           u.ID,
		FromChatID:       msg.Chat.ID,
		MessageID:        msg.MessageID,
		ReplyToMessageID: replyTo,
	})
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", u.ID).Msg("Failed to deliver admin reply")
		d.replyInTopic(ctx, msg, "❌ Delivery failed. The user may have blocked the bot or deleted the chat.")
		return
	}

	if d.settings.Bool(ctx, "enable_admin_receipt") {
		d.replyInTopic(ctx, msg, "✅ Delivered")
	}
}

// applyNote consumes an input_note state: the admin's next message in the
// topic becomes the user's note, /clear removes it.
func (d *Dispatcher) applyNote(ctx context.Context, msg *telegram.Message, userID int64) {
	defer func() {
		if err := d.panel.ClearState(ctx, msg.From.ID); err != nil {
			logger.Error().Err(err).Msg("Failed to clear note input state")
		}
	}()

	u, err := d.users.GetOrCreate(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for note")
		return
	}

	note := msg.Text
	if note == "/clear" {
		note = ""
	}
	u.Info.Note = note
	if err := d.users.Save(ctx, u); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to save note")
		d.replyInTopic(ctx, msg, "❌ Failed to save the note, please try again.")
		return
	}

	d.refreshCard(ctx, u)

	confirmation := "📝 Note saved."
	if note == "" {
		confirmation = "📝 Note removed."
	}
	d.replyInTopic(ctx, msg, confirmation)
}

// refreshCard re-renders the pinned profile card from the cached identity.
// The card may be a photo (caption edit) or plain text, so try both.
func (d *Dispatcher) refreshCard(ctx context.Context, u *usermodels.User) {
	if u.Info.CardMessageID == 0 {
		return
	}
	from := &telegram.User{ID: u.ID, FirstName: u.Info.Name, Username: u.Info.Username}
	meta := relaymodels.BuildUserMeta(from, u, u.Info.JoinDate)
	kb := relaymodels.CardKeyboard(u.ID, u.IsBlocked)

	err := d.gw.EditMessageCaption(ctx, telegram.EditMessageCaptionRequest{
		ChatID: d.cfg.Telegram.AdminGroupID, MessageID: u.Info.CardMessageID,
		Caption: meta.Card, ParseMode: "HTML", ReplyMarkup: kb,
	})
	if err != nil {
		err = d.gw.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID: d.cfg.Telegram.AdminGroupID, MessageID: u.Info.CardMessageID,
			Text: meta.Card, ParseMode: "HTML", ReplyMarkup: kb,
		})
	}
	if err != nil {
		logger.Debug().Err(err).Int64("user_id", u.ID).Msg("Failed to refresh profile card")
	}
}

// handleUserEdit mirrors a user's message edit into the topic as an edit
// notice, since the forwarded copy cannot be rewritten.
func (d *Dispatcher) handleUserEdit(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}

	rec, err := d.messages.GetByUserMessage(ctx, msg.From.ID, msg.MessageID)
	if err != nil {
		if !errors.Is(err, msgrepo.ErrNotFound) {
			logger.Warn().Err(err).Int64("user_id", msg.From.ID).Msg("Failed to look up edited message")
		}
		return
	}

	u, err := d.users.GetOrCreate(ctx, msg.From.ID)
	if err != nil || u.TopicID == 0 {
		return
	}

	notice := "✏️ <b>Edited</b>\n<s>" + relaymodels.EscapeHTML(rec.Text) + "</s>\n" + relaymodels.EscapeHTML(msg.Text)
	_, err = d.gw.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:           d.cfg.Telegram.AdminGroupID,
		MessageThreadID:  u.TopicID,
		Text:             notice,
		ParseMode:        "HTML",
		ReplyToMessageID: rec.TopicMessageID,
	})
	if err != nil {
		logger.Debug().Err(err).Int64("user_id", u.ID).Msg("Failed to post edit notice")
		return
	}

	if err := d.messages.UpdateText(ctx, msg.From.ID, msg.MessageID, msg.Text); err != nil {
		logger.Warn().Err(err).Int64("user_id", u.ID).Msg("Failed to update stored message text")
	}
}

// handleAdminEdit notifies the user when an admin edits an earlier reply.
// The copy already sent to the user cannot be edited in place.
func (d *Dispatcher) handleAdminEdit(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Text == "" {
		return
	}

	u, err := d.users.FindByTopicID(ctx, msg.MessageThreadID)
	if err != nil {
		return
	}

	d.sendText(ctx, u.ID, "✏️ An earlier reply was updated:\n"+relaymodels.EscapeHTML(msg.Text))
}

func (d *Dispatcher) replyInTopic(ctx context.Context, msg *telegram.Message, text string) {
	_, err := d.gw.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:              msg.Chat.ID,
		MessageThreadID:     msg.MessageThreadID,
		Text:                text,
		ReplyToMessageID:    msg.MessageID,
		DisableNotification: true,
	})
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to reply in topic")
	}
}
