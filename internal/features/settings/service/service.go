package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/features/settings/repository"
)

const cacheTTL = 60 * time.Second

// defaults mirror the values the bot assumes for config keys that were
// never written by an admin.
var defaults = map[string]string{
	"welcome_msg": "Welcome {name}! Please complete verification before messaging.",

	"enable_verify":    "true",
	"enable_qa_verify": "true",
	"captcha_mode":     "turnstile",
	"verif_q":          "1+1=?\nHint: the answer is in the bio.",
	"verif_a":          "3",

	"block_threshold":      "5",
	"enable_admin_receipt": "true",

	"enable_image_forwarding":   "true",
	"enable_link_forwarding":    "true",
	"enable_text_forwarding":    "true",
	"enable_channel_forwarding": "true",
	"enable_forward_forwarding": "true",
	"enable_audio_forwarding":   "true",
	"enable_sticker_forwarding": "true",

	"backup_group_id":   "",
	"blocked_topic_id":  "",
	"busy_mode":         "false",
	"busy_msg":          "We are currently offline. Your message has been received; an admin will reply later.",
	"block_keywords":    "[]",
	"keyword_responses": "[]",
	"authorized_admins": "[]",
}

// AutoReplyRule is a keyword->response rule stored under keyword_responses.
type AutoReplyRule struct {
	ID       string `json:"id"`
	Keywords string `json:"keywords"`
	Response string `json:"response"`
}

// Service is a process-wide read-through cache over the config table.
// Reads load the whole table at most once per TTL window; any write resets
// the cache so subsequent reads within this process see the latest value.
type Service struct {
	repo repository.SettingsRepository

	mu   sync.Mutex
	data map[string]string
	ts   time.Time
}

func NewService(repo repository.SettingsRepository) *Service {
	return &Service{repo: repo}
}

// Get returns the config value for key, falling back to the built-in default.
// Store failures degrade to defaults rather than failing the caller.
func (s *Service) Get(ctx context.Context, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil || time.Since(s.ts) >= cacheTTL {
		values, err := s.repo.GetAll(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to load config table")
		} else {
			s.data = values
			s.ts = time.Now()
		}
	}

	if v, ok := s.data[key]; ok {
		return v
	}
	return defaults[key]
}

// Bool interprets the value as the string flag "true".
func (s *Service) Bool(ctx context.Context, key string) bool {
	return s.Get(ctx, key) == "true"
}

// StringList decodes a JSON array of strings, returning nil on bad data.
func (s *Service) StringList(ctx context.Context, key string) []string {
	var list []string
	raw := s.Get(ctx, key)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Bad JSON config value")
		return nil
	}
	return list
}

// AutoReplyRules decodes the keyword_responses rule list.
func (s *Service) AutoReplyRules(ctx context.Context) []AutoReplyRule {
	var rules []AutoReplyRule
	raw := s.Get(ctx, "keyword_responses")
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		logger.Error().Err(err).Msg("Bad keyword_responses config value")
		return nil
	}
	return rules
}

// Set writes the value and invalidates the cache immediately.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.repo.Set(ctx, key, value); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// Delete removes the key, reverting reads to the default.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

func (s *Service) invalidate() {
	s.mu.Lock()
	s.data = nil
	s.ts = time.Time{}
	s.mu.Unlock()
}
