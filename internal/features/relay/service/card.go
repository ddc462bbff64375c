package service

import (
	"context"
	"unicode/utf8"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/features/relay/models"
	usermodels "support-bot-backend/internal/features/user/models"
	"support-bot-backend/internal/platform/telegram"
)

// Photo captions are hard-capped at 1024 characters; stay under a safe
// threshold and fall back to a plain text card beyond it.
const captionSafeLimit = 1000

// ensureCard sends the profile card into the topic and returns its message
// id. A zero id with nil error means card delivery failed non-fatally and
// will be retried on the next relay. A thread-not-found rejection is
// returned as-is so the caller can invalidate the topic.
func (s *Service) ensureCard(ctx context.Context, u *usermodels.User, from *telegram.User, topicID, date int64) (int64, error) {
	meta := models.BuildUserMeta(from, u, date)

	// The photo fetch is independent: privacy settings make it fail for
	// some users, and that must never abort card delivery.
	var photoID string
	if photos, err := s.gw.GetUserProfilePhotos(ctx, u.ID, 1); err == nil && len(photos.Photos) > 0 {
		sizes := photos.Photos[0]
		photoID = sizes[len(sizes)-1].FileID
	}

	var (
		card *telegram.Message
		err  error
	)
	if photoID != "" && utf8.RuneCountInString(meta.Card) <= captionSafeLimit {
		card, err = s.gw.SendPhoto(ctx, telegram.SendPhotoRequest{
			ChatID:          s.adminGroupID,
			MessageThreadID: topicID,
			Photo:           photoID,
			Caption:         meta.Card,
			ParseMode:       "HTML",
			ReplyMarkup:     models.CardKeyboard(u.ID, u.IsBlocked),
		})
		if telegram.IsContentRejected(err) {
			// Formatting or media rejection: degrade to a text card.
			card, err = s.sendTextCard(ctx, u, topicID, meta.Card)
		}
	} else {
		card, err = s.sendTextCard(ctx, u, topicID, meta.Card)
	}

	if err != nil {
		if telegram.IsThreadNotFound(err) {
			return 0, err
		}
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to send profile card")
		return 0, nil
	}

	// Best effort: the card is useful even unpinned.
	if err := s.gw.PinChatMessage(ctx, s.adminGroupID, card.MessageID, topicID); err != nil {
		logger.Debug().Err(err).Int64("user_id", u.ID).Msg("Failed to pin profile card")
	}
	return card.MessageID, nil
}

func (s *Service) sendTextCard(ctx context.Context, u *usermodels.User, topicID int64, text string) (*telegram.Message, error) {
	return s.gw.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:          s.adminGroupID,
		MessageThreadID: topicID,
		Text:            text,
		ParseMode:       "HTML",
		ReplyMarkup:     models.CardKeyboard(u.ID, u.IsBlocked),
	})
}

// ResendCard redelivers the profile card into the user's existing topic,
// used on /start to surface the conversation again. A failed delivery is
// taken as evidence the stored topic is stale and clears it.
func (s *Service) ResendCard(ctx context.Context, u *usermodels.User, from *telegram.User) {
	if u.TopicID == 0 {
		return
	}
	cardID, err := s.ensureCard(ctx, u, from, u.TopicID, u.Info.JoinDate)
	if err != nil || cardID == 0 {
		u.TopicID = 0
		if saveErr := s.users.Save(ctx, u); saveErr != nil {
			logger.Error().Err(saveErr).Int64("user_id", u.ID).Msg("Failed to clear stale topic")
		}
		return
	}
	u.Info.CardMessageID = cardID
	if err := s.users.Save(ctx, u); err != nil {
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to persist card reference")
	}
}
