package service

import (
	"context"
	"errors"
	"fmt"

	"support-bot-backend/internal/features/relay/models"
	usermodels "support-bot-backend/internal/features/user/models"
	"support-bot-backend/internal/platform/telegram"
)

var (
	// ErrLockContended means another in-flight relay for the same user is
	// creating the topic; the caller abandons silently.
	ErrLockContended = errors.New("topic creation lock contended")
	// ErrTopicCreateFailed is a transient creation failure; the user is told
	// to retry later.
	ErrTopicCreateFailed = errors.New("topic creation failed")
)

const placeholderText = "✨ Loading user profile..."

// resolveTopic returns the user's topic id, lazily creating the topic under
// a per-user advisory lock. On creation it also sends the placeholder
// message and clears any stale card reference before persisting.
func (s *Service) resolveTopic(ctx context.Context, u *usermodels.User, meta models.UserMeta) (int64, error) {
	if u.TopicID != 0 {
		return u.TopicID, nil
	}

	if !s.locks.TryAcquire(u.ID) {
		return 0, ErrLockContended
	}
	defer s.locks.Release(u.ID)

	// Re-read under the lock: a concurrent message may have finished the
	// creation between the first check and lock acquisition.
	fresh, err := s.users.GetOrCreate(ctx, u.ID)
	if err == nil && fresh.TopicID != 0 {
		u.TopicID = fresh.TopicID
		u.Info = fresh.Info
		return u.TopicID, nil
	}

	topic, err := s.gw.CreateForumTopic(ctx, s.adminGroupID, meta.TopicName)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTopicCreateFailed, err)
	}

	// A previous card reference belongs to the dead topic, if any.
	u.Info.CardMessageID = 0

	dummy, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:              s.adminGroupID,
		MessageThreadID:     topic.MessageThreadID,
		Text:                placeholderText,
		DisableNotification: true,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTopicCreateFailed, err)
	}

	u.TopicID = topic.MessageThreadID
	u.Info.DummyMessageID = dummy.MessageID
	if err := s.users.Save(ctx, u); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTopicCreateFailed, err)
	}
	return u.TopicID, nil
}
