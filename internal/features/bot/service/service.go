package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"support-bot-backend/internal/common/logger"
	"support-bot-backend/internal/config"
	modsvc "support-bot-backend/internal/features/moderation/service"
	panelsvc "support-bot-backend/internal/features/panel/service"
	msgrepo "support-bot-backend/internal/features/relay/repository"
	relaysvc "support-bot-backend/internal/features/relay/service"
	settingssvc "support-bot-backend/internal/features/settings/service"
	userrepo "support-bot-backend/internal/features/user/repository"
	verifsvc "support-bot-backend/internal/features/verification/service"
	"support-bot-backend/internal/platform/telegram"
)

// verifyWarnCooldown throttles the "please verify first" reminder so a burst
// of messages from an unverified user produces a single warning.
const verifyWarnCooldown = 3 * time.Second

// Dispatcher routes incoming Telegram updates to the feature services.
type Dispatcher struct {
	cfg          *config.Config
	gw           *telegram.Client
	users        userrepo.UserRepository
	messages     msgrepo.MessageRepository
	settings     *settingssvc.Service
	relay        *relaysvc.Service
	moderation   *modsvc.Service
	panel        *panelsvc.Service
	verification *verifsvc.Service

	warnMu   sync.Mutex
	lastWarn map[int64]time.Time
}

func NewDispatcher(
	cfg *config.Config,
	gw *telegram.Client,
	users userrepo.UserRepository,
	messages msgrepo.MessageRepository,
	settings *settingssvc.Service,
	relay *relaysvc.Service,
	moderation *modsvc.Service,
	panel *panelsvc.Service,
	verification *verifsvc.Service,
) *Dispatcher {
	return &Dispatcher{
		cfg:          cfg,
		gw:           gw,
		users:        users,
		messages:     messages,
		settings:     settings,
		relay:        relay,
		moderation:   moderation,
		panel:        panel,
		verification: verification,
		lastWarn:     make(map[int64]time.Time),
	}
}

// HandleUpdate routes one update. It is called on its own goroutine per
// webhook delivery, so it must never panic the process.
func (d *Dispatcher) HandleUpdate(ctx context.Context, upd *telegram.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int64("update_id", upd.UpdateID).Msg("Recovered from update handler panic")
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		d.handleCallback(ctx, upd.CallbackQuery)

	case upd.EditedMessage != nil:
		msg := upd.EditedMessage
		switch {
		case msg.Chat.ID == d.cfg.Telegram.AdminGroupID && msg.MessageThreadID != 0:
			d.handleAdminEdit(ctx, msg)
		case msg.Chat.Type == "private":
			d.handleUserEdit(ctx, msg)
		}

	case upd.Message != nil:
		msg := upd.Message
		switch {
		case msg.Chat.Type == "private":
			d.handlePrivate(ctx, msg)
		case msg.Chat.ID == d.cfg.Telegram.AdminGroupID && msg.MessageThreadID != 0:
			d.handleAdminReply(ctx, msg)
		}
	}
}

// isAuthorizedAdmin reports whether id is the root admin or one of the
// configured co-admins.
func (d *Dispatcher) isAuthorizedAdmin(ctx context.Context, id int64) bool {
	if d.cfg.IsRootAdmin(id) {
		return true
	}
	idStr := strconv.FormatInt(id, 10)
	for _, admin := range d.settings.StringList(ctx, "authorized_admins") {
		if admin == idStr {
			return true
		}
	}
	return false
}

func (d *Dispatcher) shouldWarn(userID int64) bool {
	d.warnMu.Lock()
	defer d.warnMu.Unlock()
	now := time.Now()
	if last, ok := d.lastWarn[userID]; ok && now.Sub(last) < verifyWarnCooldown {
		return false
	}
	d.lastWarn[userID] = now
	return true
}

// RegisterCommands publishes the command menus: a bare /start for everyone
// and the admin commands scoped to each admin's private chat.
func (d *Dispatcher) RegisterCommands(ctx context.Context) {
	if err := d.gw.DeleteMyCommands(ctx, telegram.BotCommandScope{Type: "default"}); err != nil {
		logger.Debug().Err(err).Msg("Failed to reset commands")
	}
	if err := d.gw.SetMyCommands(ctx, []telegram.BotCommand{
		{Command: "start", Description: "Start / verify"},
	}, telegram.BotCommandScope{Type: "default"}); err != nil {
		logger.Warn().Err(err).Msg("Failed to register default commands")
	}

	adminCommands := []telegram.BotCommand{
		{Command: "start", Description: "⚙️ Open control panel"},
		{Command: "help", Description: "📄 Usage"},
	}
	for _, adminID := range d.cfg.Telegram.AdminIDs {
		scope := telegram.BotCommandScope{Type: "chat", ChatID: adminID}
		if err := d.gw.SetMyCommands(ctx, adminCommands, scope); err != nil {
			logger.Warn().Err(err).Int64("admin_id", adminID).Msg("Failed to register admin commands")
		}
	}
}

func (d *Dispatcher) sendText(ctx context.Context, chatID int64, text string) {
	if _, err := d.gw.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"}); err != nil {
		logger.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
