package http

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/features/verification/service"
)

type Handler struct {
	svc  *service.Service
	page *template.Template
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		svc:  svc,
		page: template.Must(template.New("verify").Parse(verifyPage)),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/verify", h.verifyPage)
	r.POST("/submit_token", h.submitToken)
}

type pageData struct {
	UserID    string
	Mode      string
	SiteKey   string
	ScriptURL string
}

func (h *Handler) verifyPage(c *gin.Context) {
	userID := c.Query("user_id")
	if _, err := service.ParseUserID(userID); err != nil {
		c.String(http.StatusBadRequest, "missing or invalid user_id")
		return
	}

	ctx := c.Request.Context()
	data := pageData{
		UserID:  userID,
		Mode:    h.svc.Mode(ctx),
		SiteKey: h.svc.SiteKey(ctx),
	}
	if data.SiteKey == "" {
		c.String(http.StatusServiceUnavailable, "verification is not configured")
		return
	}
	if data.Mode == "recaptcha" {
		data.ScriptURL = "https://www.google.com/recaptcha/api.js"
	} else {
		data.Mode = "turnstile"
		data.ScriptURL = "https://challenges.cloudflare.com/turnstile/v0/api.js"
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(c.Writer, data); err != nil {
		logger.Error().Err(err).Msg("Failed to render verify page")
	}
}

type submitTokenRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Token    string `json:"token" binding:"required"`
	InitData string `json:"init_data"`
}

func (h *Handler) submitToken(c *gin.Context) {
	var req submitTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	userID, err := service.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	if err := h.svc.SubmitToken(c.Request.Context(), userID, req.Token, req.InitData); err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			c.JSON(http.StatusForbidden, gin.H{"error": "captcha verification failed"})
			return
		}
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to submit token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

const verifyPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Verification</title>
<script src="https://telegram.org/js/telegram-web-app.js"></script>
<script src="{{.ScriptURL}}" async defer></script>
<style>
body { font-family: sans-serif; display: flex; flex-direction: column; align-items: center; padding-top: 3rem; background: var(--tg-theme-bg-color, #fff); color: var(--tg-theme-text-color, #000); }
#status { margin-top: 1.5rem; }
</style>
</head>
<body>
<h3>🛡️ Human verification</h3>
{{if eq .Mode "recaptcha"}}
<div class="g-recaptcha" data-sitekey="{{.SiteKey}}" data-callback="onToken"></div>
{{else}}
<div class="cf-turnstile" data-sitekey="{{.SiteKey}}" data-callback="onToken"></div>
{{end}}
<p id="status"></p>
<script>
function onToken(token) {
  var status = document.getElementById("status");
  status.textContent = "Checking...";
  fetch("/submit_token", {
    method: "POST",
    headers: {"Content-Type": "application/json"},
    body: JSON.stringify({
      user_id: {{.UserID}},
      token: token,
      init_data: window.Telegram && window.Telegram.WebApp ? window.Telegram.WebApp.initData : ""
    })
  }).then(function(r) {
    if (r.ok) {
      status.textContent = "✅ Verified, you can close this window.";
      if (window.Telegram && window.Telegram.WebApp) { window.Telegram.WebApp.close(); }
    } else {
      status.textContent = "❌ Verification failed, please retry.";
    }
  }).catch(function() {
    status.textContent = "❌ Network error, please retry.";
  });
}
</script>
</body>
</html>
`
