package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/config"
	relaymodels "support-bot-backend/internal/features/relay/models"
	relaysvc "support-bot-backend/internal/features/relay/service"
	settingssvc "support-bot-backend/internal/features/settings/service"
	usermodels "support-bot-backend/internal/features/user/models"
	userrepo "support-bot-backend/internal/features/user/repository"
	"support-bot-backend/internal/platform/telegram"
)

const (
	turnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
)

var ErrInvalidToken = errors.New("captcha token rejected")

// Service owns the verification flows: the /start welcome, the captcha
// web-app handoff and the question/answer fallback.
type Service struct {
	gw         *telegram.Client
	users      userrepo.UserRepository
	settings   *settingssvc.Service
	relay      *relaysvc.Service
	cfg        *config.Config
	httpClient *http.Client
}

func NewService(gw *telegram.Client, users userrepo.UserRepository, settings *settingssvc.Service, relay *relaysvc.Service, cfg *config.Config) *Service {
	return &Service{
		gw:         gw,
		users:      users,
		settings:   settings,
		relay:      relay,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// mediaWelcome is the JSON shape of a media welcome_msg config value.
type mediaWelcome struct {
	Type    string `json:"type"`
	FileID  string `json:"file_id"`
	Caption string `json:"caption"`
}

// SendStart runs the /start flow: resurface the topic card if one exists,
// send the welcome message and the applicable verification prompt.
func (s *Service) SendStart(ctx context.Context, msg *telegram.Message, u *usermodels.User) {
	s.relay.ResendCard(ctx, u, msg.From)

	s.sendWelcome(ctx, msg)

	captchaOn := s.settings.Bool(ctx, "enable_verify")
	qaOn := s.settings.Bool(ctx, "enable_qa_verify")
	publicURL := strings.TrimRight(s.cfg.Server.PublicURL, "/")

	switch {
	case captchaOn && publicURL != "" && s.SiteKey(ctx) != "":
		verifyURL := fmt.Sprintf("%s/verify?user_id=%d", publicURL, u.ID)
		_, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:    u.ID,
			Text:      "🛡️ <b>Security check</b>\nTap the button below to pass the human verification.",
			ParseMode: "HTML",
			ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
				{{Text: "Verify", WebApp: &telegram.WebAppInfo{URL: verifyURL}}},
			}},
		})
		if err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to send captcha prompt")
		}

	case !captchaOn && qaOn:
		u.State = usermodels.StatePendingVerification
		if err := s.users.Save(ctx, u); err != nil {
			logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to store pending state")
		}
		s.askQuestion(ctx, u.ID, "❓ <b>Security question</b>\nPlease answer:\n")
	}
}

func (s *Service) sendWelcome(ctx context.Context, msg *telegram.Message) {
	raw := s.settings.Get(ctx, "welcome_msg")
	name := relaymodels.EscapeHTML(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	var media *mediaWelcome
	text := raw
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		var m mediaWelcome
		if err := json.Unmarshal([]byte(raw), &m); err == nil && m.Type != "" {
			media = &m
			text = m.Caption
		}
	}
	text = strings.NewReplacer("{name}", name, "{user}", name).Replace(text)

	var err error
	if media != nil {
		_, err = s.gw.SendMedia(ctx, msg.Chat.ID, media.Type, media.FileID, text)
	} else {
		_, err = s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: msg.Chat.ID, Text: text, ParseMode: "HTML",
		})
	}
	if err != nil {
		// A broken configured welcome must not break /start.
		if _, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID: msg.Chat.ID, Text: "Welcome!",
		}); err != nil {
			logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("Failed to send welcome")
		}
	}
}

func (s *Service) askQuestion(ctx context.Context, chatID int64, prefix string) {
	_, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:    chatID,
		Text:      prefix + s.settings.Get(ctx, "verif_q"),
		ParseMode: "HTML",
	})
	if err != nil {
		logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send question")
	}
}

// VerifyAnswer checks a pending user's answer to the security question.
func (s *Service) VerifyAnswer(ctx context.Context, u *usermodels.User, answer string) {
	if strings.TrimSpace(answer) != strings.TrimSpace(s.settings.Get(ctx, "verif_a")) {
		s.sendText(ctx, u.ID, "❌ Wrong answer")
		return
	}
	u.State = usermodels.StateVerified
	if err := s.users.Save(ctx, u); err != nil {
		logger.Error().Err(err).Int64("user_id", u.ID).Msg("Failed to store verified state")
	}
	s.sendText(ctx, u.ID, "✅ Verified!\nYou can now send messages and I will relay them to the admins.")
}

// Mode returns the active captcha provider.
func (s *Service) Mode(ctx context.Context) string {
	return s.settings.Get(ctx, "captcha_mode")
}

// SiteKey returns the public site key for the active captcha provider.
func (s *Service) SiteKey(ctx context.Context) string {
	if s.Mode(ctx) == "recaptcha" {
		return s.cfg.Captcha.RecaptchaSiteKey
	}
	return s.cfg.Captcha.TurnstileSiteKey
}

// SubmitToken validates a captcha token posted back from the web-app and
// advances the user's verification state. initData, when present, must be a
// valid Telegram WebApp init-data signature matching the claimed user.
func (s *Service) SubmitToken(ctx context.Context, userID int64, token, initData string) error {
	if initData != "" {
		if err := initdata.Validate(initData, s.cfg.Telegram.BotToken, 0); err != nil {
			return fmt.Errorf("invalid init data: %w", err)
		}
		parsed, err := initdata.Parse(initData)
		if err != nil {
			return fmt.Errorf("unparsable init data: %w", err)
		}
		if parsed.User.ID != userID {
			return fmt.Errorf("init data user mismatch")
		}
	}

	if err := s.verifyCaptcha(ctx, token); err != nil {
		return err
	}

	u, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}

	if s.settings.Bool(ctx, "enable_qa_verify") {
		u.State = usermodels.StatePendingVerification
		if err := s.users.Save(ctx, u); err != nil {
			return err
		}
		s.askQuestion(ctx, userID, "✅ Captcha passed!\nPlease answer:\n")
		return nil
	}

	u.State = usermodels.StateVerified
	if err := s.users.Save(ctx, u); err != nil {
		return err
	}
	s.sendText(ctx, userID, "✅ Verified!\nYou can now send messages and I will relay them to the admins.")
	return nil
}

func (s *Service) verifyCaptcha(ctx context.Context, token string) error {
	var (
		req *http.Request
		err error
	)
	if s.Mode(ctx) == "recaptcha" {
		form := url.Values{"secret": {s.cfg.Captcha.RecaptchaSecretKey}, "response": {token}}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, recaptchaVerifyURL, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		body, merr := json.Marshal(map[string]string{
			"secret": s.cfg.Captcha.TurnstileSecretKey, "response": token,
		})
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, turnstileVerifyURL, strings.NewReader(string(body)))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if !result.Success {
		return ErrInvalidToken
	}
	return nil
}

func (s *Service) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := s.gw.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to send verification message")
	}
}

// ParseUserID parses the user id string the web page carries around.
func ParseUserID(raw string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
}
