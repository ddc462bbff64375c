package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"support-bot-backend/internal/common/logger"
	botsvc "support-bot-backend/internal/features/bot/service"
	"support-bot-backend/internal/platform/telegram"
)

// updateTimeout bounds the work done for one webhook delivery once it has
// been acked and detached from the request.
const updateTimeout = 50 * time.Second

type Handler struct {
	dispatcher *botsvc.Dispatcher
}

func NewHandler(dispatcher *botsvc.Dispatcher) *Handler {
	return &Handler{dispatcher: dispatcher}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhook", h.webhook)
	r.GET("/", h.health)
}

// webhook acks immediately and handles the update on its own goroutine, so
// slow Bot API calls never make Telegram re-deliver the update.
func (h *Handler) webhook(c *gin.Context) {
	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		logger.Warn().Err(err).Msg("Bad webhook payload")
		c.String(http.StatusBadRequest, "bad update")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
		defer cancel()
		h.dispatcher.HandleUpdate(ctx, &upd)
	}()

	c.String(http.StatusOK, "OK")
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "support bot is running")
}
