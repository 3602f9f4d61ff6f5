package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/memequiz/internal/bot"
	errs "github.com/iamwavecut/memequiz/internal/errors"
)

// Sender is the part of *api.BotAPI the operations need
type Sender interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Operations implements bot.Messenger on top of the Bot API client
type Operations struct {
	bot     Sender
	http    *http.Client
	timeout time.Duration
}

var _ bot.Messenger = (*Operations)(nil)

// NewOperations creates a new Operations instance, every call is bounded by timeout
func NewOperations(sender Sender, httpClient *http.Client, timeout time.Duration) *Operations {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Operations{bot: sender, http: httpClient, timeout: timeout}
}

// SendText sends a message with an optional inline keyboard and returns its id
func (o *Operations) SendText(ctx context.Context, chatID int64, text string, keyboard [][]bot.Button) (int, error) {
	msg := api.NewMessage(chatID, text)
	if markup := buildMarkup(keyboard); markup != nil {
		msg.ReplyMarkup = *markup
	}
	var sent api.Message
	err := o.call(ctx, "send text", func() error {
		var err error
		sent, err = o.bot.Send(msg)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditText replaces the text and keyboard of a sent message, a nil keyboard removes the buttons
func (o *Operations) EditText(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]bot.Button) error {
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = buildMarkup(keyboard)
	return o.call(ctx, "edit text", func() error {
		_, err := o.bot.Request(edit)
		return err
	})
}

// SendPhoto uploads a local image file
func (o *Operations) SendPhoto(ctx context.Context, chatID int64, path string, caption string) error {
	photo := api.NewPhoto(chatID, api.FilePath(path))
	photo.Caption = caption
	return o.call(ctx, "send photo", func() error {
		_, err := o.bot.Send(photo)
		return err
	})
}

// AnswerCallback stops the client side loading indicator, text is shown as a toast when set
func (o *Operations) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return o.call(ctx, "answer callback", func() error {
		_, err := o.bot.Request(api.NewCallback(callbackID, text))
		return err
	})
}

// DownloadFile stores a file uploaded by a user at dst
func (o *Operations) DownloadFile(ctx context.Context, fileID string, dst string) error {
	var url string
	if err := o.call(ctx, "resolve file", func() error {
		var err error
		url, err = o.bot.GetFileDirectURL(fileID)
		return err
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download file: %w: %w", errs.ErrTransport, err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w: %w", errs.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: %w: status %d", errs.ErrTransport, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("download file: %w: %w", errs.ErrStorage, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download file: %w: %w", errs.ErrTransport, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("download file: %w: %w", errs.ErrStorage, err)
	}
	return nil
}

// call runs a blocking client call, giving up when ctx or the operation timeout expires first
func (o *Operations) call(ctx context.Context, op string, fn func() error) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, errs.ErrTransport, err)
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w: %w", op, errs.ErrTransport, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w: %w", op, errs.ErrTransport, ctx.Err())
	}
}

func buildMarkup(keyboard [][]bot.Button) *api.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]api.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]api.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, api.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, api.NewInlineKeyboardRow(buttons...))
	}
	markup := api.NewInlineKeyboardMarkup(rows...)
	return &markup
}
