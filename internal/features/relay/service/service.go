package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/features/relay/models"
	"support-bot-backend/internal/features/relay/repository"
	usermodels "support-bot-backend/internal/features/user/models"
	userrepo "support-bot-backend/internal/features/user/repository"
	"support-bot-backend/internal/platform/telegram"
)

// A relay attempt that hits a stale topic is retried exactly once after
// clearing the stored reference; a second failure is reported, not retried.
const maxTopicRetries = 1

const (
	msgDelivered      = "✅ Delivered"
	msgSystemBusy     = "System busy, please try again later"
	msgDeliveryFailed = "❌ Delivery failed, please try again later"
)

var quotePrefix = regexp.MustCompile(`^(?:>|》|&gt;)\s?`)

// Service relays verified user messages into per-user topics inside the
// admin supergroup, creating topics lazily and recovering from topics
// deleted out-of-band.
type Service struct {
	gw           Gateway
	users        userrepo.UserRepository
	messages     repository.MessageRepository
	settings     Settings
	adminGroupID int64
	locks        *lockTable
}

func NewService(gw Gateway, users userrepo.UserRepository, messages repository.MessageRepository, settings Settings, adminGroupID int64) *Service {
	return &Service{
		gw:           gw,
		users:        users,
		messages:     messages,
		settings:     settings,
		adminGroupID: adminGroupID,
		locks:        newLockTable(),
	}
}

// Relay mirrors msg into the user's topic. It is fire-and-forget: every
// failure mode ends in at most one user-facing notice, never an error.
func (s *Service) Relay(ctx context.Context, msg *telegram.Message, u *usermodels.User) {
	for attempt := 0; ; attempt++ {
		err := s.relayOnce(ctx, msg, u)
		switch {
		case err == nil:
			return
		case errors.Is(err, ErrLockContended):
			// The in-flight creator finishes the topic; this message is
			// abandoned silently and a later one will retry.
			return
		case errors.Is(err, ErrTopicCreateFailed):
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Topic creation failed")
			s.notifyUser(ctx, u.ID, msgSystemBusy)
			return
		case telegram.IsTopicInvalid(err) && attempt < maxTopicRetries:
			logger.Warn().Err(err).Int64("user_id", u.ID).Int64("topic_id", u.TopicID).
				Msg("Stored topic is stale, clearing and retrying")
			s.invalidateTopic(ctx, u)
		default:
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Relay failed")
			s.notifyUser(ctx, u.ID, msgDeliveryFailed)
			return
		}
	}
}

func (s *Service) relayOnce(ctx context.Context, msg *telegram.Message, u *usermodels.User) error {
	meta := models.BuildUserMeta(msg.From, u, msg.Date)
	s.syncUserIdentity(ctx, u, meta)

	topicID, err := s.resolveTopic(ctx, u, meta)
	if err != nil {
		return err
	}

	forwardedID, err := s.forwardContent(ctx, msg, u, topicID)
	if err != nil {
		return fmt.Errorf("forward content: %w", err)
	}

	if err := s.finishCard(ctx, msg, u, topicID); err != nil {
		return fmt.Errorf("ensure card: %w", err)
	}

	s.sendReceipt(ctx, msg, u)
	s.storeCorrelation(ctx, msg, u, forwardedID)
	s.backup(ctx, msg, meta)
	return nil
}

// syncUserIdentity refreshes the cached display name/handle and best-effort
// renames the topic after a user rename.
func (s *Service) syncUserIdentity(ctx context.Context, u *usermodels.User, meta models.UserMeta) {
	if u.Info.Name == meta.Name && u.Info.Username == meta.Username {
		return
	}
	u.Info.Name = meta.Name
	u.Info.Username = meta.Username
	if err := s.users.Save(ctx, u); err != nil {
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to persist identity change")
	}
	if u.TopicID != 0 {
		if err := s.gw.EditForumTopic(ctx, s.adminGroupID, u.TopicID, meta.TopicName); err != nil {
			logger.Debug().Err(err).Int64("user_id", u.ID).Msg("Failed to rename topic")
		}
	}
}

// forwardContent moves the message into the topic and returns the id of the
// message created on the admin side. Quoted text bypasses native forwarding
// because forwards cannot carry synthetic formatting; anything else is
// forwarded natively with a copy fallback.
func (s *Service) forwardContent(ctx context.Context, msg *telegram.Message, u *usermodels.User, topicID int64) (int64, error) {
	if msg.Text != "" && quotePrefix.MatchString(msg.Text) {
		quoted := models.EscapeHTML(quotePrefix.ReplaceAllString(msg.Text, ""))
		sent, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:          s.adminGroupID,
			MessageThreadID: topicID,
			Text:            "<blockquote>" + quoted + "</blockquote>",
			ParseMode:       "HTML",
		})
		if err != nil {
			return 0, err
		}
		return sent.MessageID, nil
	}

	forwarded, err := s.gw.ForwardMessage(ctx, s.adminGroupID, u.ID, msg.MessageID, topicID)
	if err == nil {
		return forwarded.MessageID, nil
	}

	// Forward restrictions and deleted sources reject the native forward;
	// a copy loses the "forwarded from" header but preserves content.
	copied, err := s.gw.CopyMessage(ctx, telegram.CopyMessageRequest{
		ChatID:          s.adminGroupID,
		FromChatID:      u.ID,
		MessageID:       msg.MessageID,
		MessageThreadID: topicID,
	})
	if err != nil {
		return 0, err
	}
	return copied.MessageID, nil
}

// finishCard delivers the profile card if the record has none, then cleans
// up the placeholder, persisting both changes in one update.
func (s *Service) finishCard(ctx context.Context, msg *telegram.Message, u *usermodels.User, topicID int64) error {
	dirty := false

	if u.Info.CardMessageID == 0 {
		cardID, err := s.ensureCard(ctx, u, msg.From, topicID, msg.Date)
		if err != nil {
			return err
		}
		if cardID != 0 {
			u.Info.CardMessageID = cardID
			u.Info.JoinDate = msg.Date
			dirty = true
		}
	}

	if u.Info.DummyMessageID != 0 {
		if err := s.gw.DeleteMessage(ctx, s.adminGroupID, u.Info.DummyMessageID); err != nil {
			logger.Debug().Err(err).Int64("user_id", u.ID).Msg("Failed to delete placeholder")
		}
		u.Info.DummyMessageID = 0
		dirty = true
	}

	if dirty {
		if err := s.users.Save(ctx, u); err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to persist card state")
		}
	}
	return nil
}

func (s *Service) invalidateTopic(ctx context.Context, u *usermodels.User) {
	u.TopicID = 0
	if err := s.users.Save(ctx, u); err != nil {
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to clear stale topic")
	}
}

// sendReceipt is a best-effort delivery acknowledgment to the user.
func (s *Service) sendReceipt(ctx context.Context, msg *telegram.Message, u *usermodels.User) {
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:              u.ID,
		Text:                msgDelivered,
		ReplyToMessageID:    msg.MessageID,
		DisableNotification: true,
	})
	if err != nil {
		logger.Debug().Err(err).Int64("user_id", u.ID).Msg("Failed to send receipt")
	}
}

func (s *Service) storeCorrelation(ctx context.Context, msg *telegram.Message, u *usermodels.User, forwardedID int64) {
	if forwardedID == 0 {
		return
	}
	text := msg.Text
	if text == "" {
		text = "[Media]"
	}
	err := s.messages.Save(ctx, &models.MessageRecord{
		UserID:         u.ID,
		MessageID:      msg.MessageID,
		Text:           text,
		Date:           msg.Date,
		TopicMessageID: forwardedID,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to store message correlation")
	}
}

// backup copies the message to the configured backup chat, if any.
func (s *Service) backup(ctx context.Context, msg *telegram.Message, meta models.UserMeta) {
	raw := s.settings.Get(ctx, "backup_group_id")
	backupID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if raw == "" || err != nil {
		return
	}

	header := fmt.Sprintf("<b>📨 Backup</b> %s (%d)", models.EscapeHTML(meta.Name), meta.UserID)
	if msg.Text != "" {
		_, err = s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: backupID, Text: header + "\n" + models.EscapeHTML(msg.Text), ParseMode: "HTML",
		})
	} else {
		if _, err = s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: backupID, Text: header, ParseMode: "HTML",
		}); err == nil {
			_, err = s.gw.CopyMessage(ctx, telegram.CopyMessageRequest{
				ChatID: backupID, FromChatID: msg.Chat.ID, MessageID: msg.MessageID,
			})
		}
	}
	if err != nil {
		logger.Debug().Err(err).Msg("Backup forward failed")
	}
}

func (s *Service) notifyUser(ctx context.Context, userID int64, text string) {
	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{ChatID: userID, Text: text}); err != nil {
		logger.Debug().Err(err).Int64("user_id", userID).Msg("Failed to notify user")
	}
}
