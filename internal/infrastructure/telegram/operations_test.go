package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/memequiz/internal/bot"
	errs "github.com/iamwavecut/memequiz/internal/errors"
)

type senderStub struct {
	sent     []api.Chattable
	requests []api.Chattable
	err      error
	delay    time.Duration
	fileURL  string
}

func (s *senderStub) Send(c api.Chattable) (api.Message, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.sent = append(s.sent, c)
	return api.Message{MessageID: 77}, s.err
}

func (s *senderStub) Request(c api.Chattable) (*api.APIResponse, error) {
	s.requests = append(s.requests, c)
	return &api.APIResponse{Ok: s.err == nil}, s.err
}

func (s *senderStub) GetFileDirectURL(_ string) (string, error) {
	return s.fileURL, s.err
}

func TestSendTextBuildsKeyboard(t *testing.T) {
	t.Parallel()

	sender := &senderStub{}
	ops := NewOperations(sender, nil, time.Second)
	id, err := ops.SendText(context.Background(), 10, "pick", [][]bot.Button{
		{{Text: "A", Data: "answer:AQ:0"}, {Text: "B", Data: "answer:AQ:1"}},
	})
	if err != nil {
		t.Fatalf("send text: %v", err)
	}
	if id != 77 {
		t.Fatalf("unexpected message id: %d", id)
	}
	msg, ok := sender.sent[0].(api.MessageConfig)
	if !ok {
		t.Fatalf("unexpected chattable: %T", sender.sent[0])
	}
	markup, ok := msg.ReplyMarkup.(api.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("unexpected markup: %T", msg.ReplyMarkup)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("unexpected keyboard: %+v", markup.InlineKeyboard)
	}
	if data := markup.InlineKeyboard[0][1].CallbackData; data == nil || *data != "answer:AQ:1" {
		t.Fatalf("unexpected callback data: %v", data)
	}
}

func TestSendTextWithoutKeyboard(t *testing.T) {
	t.Parallel()

	sender := &senderStub{}
	ops := NewOperations(sender, nil, time.Second)
	if _, err := ops.SendText(context.Background(), 10, "hi", nil); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if msg := sender.sent[0].(api.MessageConfig); msg.ReplyMarkup != nil {
		t.Fatalf("unexpected markup: %v", msg.ReplyMarkup)
	}
}

func TestCallErrorsAreTransportFailures(t *testing.T) {
	t.Parallel()

	ops := NewOperations(&senderStub{err: errors.New("forbidden")}, nil, time.Second)
	if err := ops.SendPhoto(context.Background(), 1, "x.jpg", ""); !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := ops.AnswerCallback(context.Background(), "cb", ""); !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCallTimesOut(t *testing.T) {
	t.Parallel()

	ops := NewOperations(&senderStub{delay: 200 * time.Millisecond}, nil, 20*time.Millisecond)
	start := time.Now()
	err := ops.SendPhoto(context.Background(), 1, "x.jpg", "")
	if !errors.Is(err, errs.ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline transport error, got %v", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Fatalf("call was not bounded by the timeout")
	}
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)

	dst := filepath.Join(t.TempDir(), "photo.jpg")
	ops := NewOperations(&senderStub{fileURL: srv.URL + "/file.jpg"}, srv.Client(), time.Second)
	if err := ops.DownloadFile(context.Background(), "file-id", dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected file content %q: %v", data, err)
	}

	missing := NewOperations(&senderStub{fileURL: srv.URL + "/gone.jpg"}, srv.Client(), time.Second)
	if err := missing.DownloadFile(context.Background(), "file-id", dst); !errors.Is(err, errs.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
