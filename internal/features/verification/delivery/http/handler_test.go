package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-bot-backend/internal/config"
	settingssvc "support-bot-backend/internal/features/settings/service"
	"support-bot-backend/internal/features/verification/service"
	"support-bot-backend/internal/platform/telegram"
)

type memSettingsRepo struct {
	values map[string]string
}

func (r *memSettingsRepo) GetAll(_ context.Context) (map[string]string, error) {
	return r.values, nil
}

func (r *memSettingsRepo) Set(_ context.Context, key, value string) error {
	r.values[key] = value
	return nil
}

func (r *memSettingsRepo) Delete(_ context.Context, key string) error {
	delete(r.values, key)
	return nil
}

func newTestRouter(conf map[string]string, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	settings := settingssvc.NewService(&memSettingsRepo{values: conf})
	svc := service.NewService(telegram.NewClient("test-token"), nil, settings, nil, cfg)

	r := gin.New()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func turnstileConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Captcha.TurnstileSiteKey = "site-key-ts"
	cfg.Captcha.RecaptchaSiteKey = "site-key-rc"
	return cfg
}

func TestVerifyPageRequiresUserID(t *testing.T) {
	r := newTestRouter(map[string]string{}, turnstileConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify?user_id=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyPageRendersTurnstile(t *testing.T) {
	r := newTestRouter(map[string]string{}, turnstileConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify?user_id=42", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "cf-turnstile")
	assert.Contains(t, body, "site-key-ts")
	assert.Contains(t, body, "challenges.cloudflare.com")
	assert.Contains(t, body, "telegram-web-app.js")
	assert.NotContains(t, body, "g-recaptcha")
}

func TestVerifyPageRendersRecaptcha(t *testing.T) {
	r := newTestRouter(map[string]string{"captcha_mode": "recaptcha"}, turnstileConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify?user_id=42", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "g-recaptcha")
	assert.Contains(t, body, "site-key-rc")
	assert.NotContains(t, body, "cf-turnstile")
}

func TestVerifyPageUnavailableWithoutSiteKey(t *testing.T) {
	r := newTestRouter(map[string]string{}, &config.Config{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify?user_id=42", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubmitTokenRejectsBadBody(t *testing.T) {
	r := newTestRouter(map[string]string{}, turnstileConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submit_token", strings.NewReader(`{"user_id":"42"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "token is required")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/submit_token", strings.NewReader(`{"user_id":"nope","token":"t"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "user id must be numeric")
}

func TestParseUserID(t *testing.T) {
	id, err := service.ParseUserID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = service.ParseUserID("")
	assert.Error(t, err)
}
