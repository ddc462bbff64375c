package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"support-bot-backend/internal/common/logger"
	relaymodels "support-bot-backend/internal/features/relay/models"
	settingssvc "support-bot-backend/internal/features/settings/service"
	usermodels "support-bot-backend/internal/features/user/models"
	userrepo "support-bot-backend/internal/features/user/repository"
	"support-bot-backend/internal/platform/telegram"
)

const defaultBlockThreshold = 5

// Gateway is the slice of the Bot API the moderation flow consumes.
// *telegram.Client satisfies it; tests substitute a fake.
type Gateway interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*telegram.ForumTopic, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
}

// Service enforces the block-keyword strike policy and maintains the
// blacklist topic inside the admin group.
type Service struct {
	gw           Gateway
	users        userrepo.UserRepository
	settings     *settingssvc.Service
	adminGroupID int64
}

func NewService(gw Gateway, users userrepo.UserRepository, settings *settingssvc.Service, adminGroupID int64) *Service {
	return &Service{gw: gw, users: users, settings: settings, adminGroupID: adminGroupID}
}

// CheckKeywords matches text against the configured block keywords. On a hit
// it increments the strike counter, blocks the user at the threshold, and
// notifies them. Returns true when the message was consumed.
func (s *Service) CheckKeywords(ctx context.Context, u *usermodels.User, from *telegram.User, text string) bool {
	if text == "" {
		return false
	}

	matched := false
	for _, kw := range s.settings.StringList(ctx, "block_keywords") {
		re, err := regexp.Compile("(?i)" + kw)
		if err != nil {
			logger.Warn().Str("keyword", kw).Err(err).Msg("Bad block keyword pattern")
			continue
		}
		if re.MatchString(text) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	threshold, err := strconv.Atoi(s.settings.Get(ctx, "block_threshold"))
	if err != nil || threshold <= 0 {
		threshold = defaultBlockThreshold
	}

	u.BlockCount++
	u.IsBlocked = u.BlockCount >= threshold
	if err := s.users.Save(ctx, u); err != nil {
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to persist strike")
	}

	if u.IsBlocked {
		s.updateBlacklist(ctx, u, from, true)
		s.send(ctx, u.ID, "❌ You have been blocked (send /start to appeal)")
	} else {
		s.send(ctx, u.ID, fmt.Sprintf("⚠️ Blocked keyword (%d/%d)", u.BlockCount, threshold))
	}
	return true
}

// SetBlocked flips the block flag from an admin action, resets the strike
// counter, refreshes the card keyboard and the blacklist notice.
func (s *Service) SetBlocked(ctx context.Context, userID int64, blocked bool) (*usermodels.User, error) {
	u, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	u.IsBlocked = blocked
	u.BlockCount = 0
	if err := s.users.Save(ctx, u); err != nil {
		return nil, err
	}

	if u.Info.CardMessageID != 0 {
		if err := s.gw.EditMessageReplyMarkup(ctx, s.adminGroupID, u.Info.CardMessageID,
			relaymodels.CardKeyboard(userID, blocked)); err != nil {
			logger.Debug().Err(err).Int64("user_id", userID).Msg("Failed to refresh card keyboard")
		}
	}

	from := &telegram.User{ID: userID, Username: u.Info.Username, FirstName: u.Info.Name}
	s.updateBlacklist(ctx, u, from, blocked)
	return u, nil
}

// updateBlacklist posts or removes the blacklist notice for the user. The
// blacklist topic is created lazily and its id cached in the config table.
func (s *Service) updateBlacklist(ctx context.Context, u *usermodels.User, from *telegram.User, blocking bool) {
	blockedTopic, _ := strconv.ParseInt(s.settings.Get(ctx, "blocked_topic_id"), 10, 64)
	if blockedTopic == 0 && blocking {
		topic, err := s.gw.CreateForumTopic(ctx, s.adminGroupID, "🚫 Blacklist")
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create blacklist topic")
			return
		}
		blockedTopic = topic.MessageThreadID
		if err := s.settings.Set(ctx, "blocked_topic_id", strconv.FormatInt(blockedTopic, 10)); err != nil {
			logger.Error().Err(err).Msg("Failed to store blacklist topic id")
		}
	}
	if blockedTopic == 0 {
		return
	}

	if blocking {
		meta := relaymodels.BuildUserMeta(from, u, u.Info.JoinDate)
		notice, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:          s.adminGroupID,
			MessageThreadID: blockedTopic,
			Text:            "<b>🚫 User blocked</b>\n" + meta.Card,
			ParseMode:       "HTML",
			ReplyMarkup: &telegram.InlineKeyboardMarkup{
				InlineKeyboard: [][]telegram.InlineKeyboardButton{
					{{Text: "✅ Unblock", CallbackData: fmt.Sprintf("unblock:%d", u.ID)}},
				},
			},
		})
		if err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to post blacklist notice")
			return
		}
		u.Info.BlacklistMessageID = notice.MessageID
		if err := s.users.Save(ctx, u); err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to persist blacklist notice id")
		}
		return
	}

	if u.Info.BlacklistMessageID != 0 {
		if err := s.gw.DeleteMessage(ctx, s.adminGroupID, u.Info.BlacklistMessageID); err != nil {
			// A dead blacklist topic means the cached id is stale.
			if telegram.IsThreadNotFound(err) {
				if cfgErr := s.settings.Set(ctx, "blocked_topic_id", ""); cfgErr != nil {
					logger.Error().Err(cfgErr).Msg("Failed to reset blacklist topic id")
				}
			}
		}
		u.Info.BlacklistMessageID = 0
		if err := s.users.Save(ctx, u); err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to clear blacklist notice id")
		}
	}
}

func (s *Service) send(ctx context.Context, chatID int64, text string) {
	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to send moderation notice")
	}
}
