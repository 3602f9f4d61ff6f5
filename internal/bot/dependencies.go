package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/memequiz/internal/db"
)

// ServiceBot defines bot-specific operations
type ServiceBot interface {
	GetBot() *api.BotAPI
}

// ServiceDB defines database-specific operations
type ServiceDB interface {
	GetDB() db.Client
}

// Service is the process-wide object owning the chat client and the storage handle
type Service interface {
	ServiceBot
	ServiceDB
	GetMessenger() Messenger
}

// Handler defines the interface for all update handlers in the system
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

// Button is one inline keyboard button, Data is the callback payload
type Button struct {
	Text string
	Data string
}

// Messenger is the outbound side of the chat transport
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, keyboard [][]Button) (messageID int, err error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]Button) error
	SendPhoto(ctx context.Context, chatID int64, path string, caption string) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	DownloadFile(ctx context.Context, fileID string, dst string) error
}
