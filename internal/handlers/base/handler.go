package base

import (
	"context"
	"errors"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/bot"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	service bot.Service
	logger  *log.Entry
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(service bot.Service, handlerName string) *BaseHandler {
	return &BaseHandler{
		service: service,
		logger:  log.WithField("handler", handlerName),
	}
}

// GetService returns the bot service
func (h *BaseHandler) GetService() bot.Service {
	return h.service
}

// GetLogger returns the handler's logger
func (h *BaseHandler) GetLogger() *log.Entry {
	return h.logger
}

// ValidateUpdate performs common update validation
func (h *BaseHandler) ValidateUpdate(u *api.Update, chat *api.Chat, user *api.User) error {
	if u == nil {
		return ErrNilUpdate
	}
	if chat == nil || user == nil {
		return ErrNilChatOrUser
	}
	return nil
}

// Reply sends text and logs a failed delivery instead of returning it, a lost reply must not fail the update
func (h *BaseHandler) Reply(ctx context.Context, chatID int64, text string, keyboard [][]bot.Button) int {
	id, err := h.service.GetMessenger().SendText(ctx, chatID, text, keyboard)
	if err != nil {
		h.logger.WithFields(log.Fields{"chat_id": chatID, "error": err.Error()}).Warn("cant send reply")
		return 0
	}
	return id
}

// AnswerCallback acknowledges a button press, failures are logged only
func (h *BaseHandler) AnswerCallback(ctx context.Context, callbackID string, text string) {
	if callbackID == "" {
		return
	}
	if err := h.service.GetMessenger().AnswerCallback(ctx, callbackID, text); err != nil {
		h.logger.WithError(err).Debug("cant answer callback")
	}
}

var (
	ErrNilUpdate     = errors.New("nil update")
	ErrNilChatOrUser = errors.New("nil chat or user")
)
