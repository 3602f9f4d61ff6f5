package dialog

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/memequiz/internal/bot"
	"github.com/iamwavecut/memequiz/internal/broadcast"
	"github.com/iamwavecut/memequiz/internal/db"
	"github.com/iamwavecut/memequiz/internal/db/sqlite"
	errs "github.com/iamwavecut/memequiz/internal/errors"
	"github.com/iamwavecut/memequiz/internal/meme"
	"github.com/iamwavecut/memequiz/internal/quiz"
	"github.com/iamwavecut/memequiz/internal/session"
)

type sentText struct {
	chatID   int64
	text     string
	keyboard [][]bot.Button
}

type messengerStub struct {
	mu        sync.Mutex
	texts     []sentText
	photos    []string
	toasts    []string
	edits     []string
	photoData []byte
	photoErr  error
}

func (m *messengerStub) SendText(_ context.Context, chatID int64, text string, keyboard [][]bot.Button) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentText{chatID: chatID, text: text, keyboard: keyboard})
	return len(m.texts), nil
}

func (m *messengerStub) EditText(_ context.Context, _ int64, _ int, text string, _ [][]bot.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, text)
	return nil
}

func (m *messengerStub) SendPhoto(_ context.Context, _ int64, path string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.photoErr != nil {
		return m.photoErr
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	m.photos = append(m.photos, path)
	return nil
}

func (m *messengerStub) AnswerCallback(_ context.Context, _ string, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = append(m.toasts, text)
	return nil
}

func (m *messengerStub) DownloadFile(_ context.Context, _ string, dst string) error {
	return os.WriteFile(dst, m.photoData, 0o644)
}

func (m *messengerStub) lastText(t *testing.T) sentText {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		t.Fatalf("no text was sent")
	}
	return m.texts[len(m.texts)-1]
}

func (m *messengerStub) lastToast(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.toasts) == 0 {
		t.Fatalf("callback was not answered")
	}
	return m.toasts[len(m.toasts)-1]
}

type serviceStub struct {
	db        db.Client
	messenger bot.Messenger
}

func (s *serviceStub) GetBot() *api.BotAPI { return nil }
func (s *serviceStub) GetDB() db.Client { return s.db }
func (s *serviceStub) GetMessenger() bot.Messenger { return s.messenger }

type fixture struct {
	router    *Router
	db        db.Client
	sessions  *session.Store
	messenger *messengerStub
	memeDir   string
	chat      *api.Chat
	user      *api.User
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newFixture(t *testing.T, contentDir string) *fixture {
	t.Helper()
	ctx := context.Background()
	client, err := sqlite.NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	messenger := &messengerStub{photoData: testPNG(t)}
	sessions := session.NewStore()
	memeDir := t.TempDir()
	if contentDir == "" {
		contentDir = filepath.Join(t.TempDir(), "empty")
	}

	router := NewRouter(Config{
		Service:  &serviceStub{db: client, messenger: messenger},
		Sessions: sessions,
		Quiz: quiz.NewEngine(quiz.Config{
			Bank:     client,
			Ledger:   client,
			Sessions: sessions,
			Points:   10,
			Rand:     rand.New(rand.NewSource(1)),
		}),
		Studio:            meme.NewStudio(memeDir, messenger),
		Content:           broadcast.NewDirSource(contentDir),
		TopSize:           5,
		RandomMemeEnabled: true,
		Rand:              rand.New(rand.NewSource(1)),
	})
	return &fixture{
		router:    router,
		db:        client,
		sessions:  sessions,
		messenger: messenger,
		memeDir:   memeDir,
		chat:      &api.Chat{ID: 100, Type: "private"},
		user:      &api.User{ID: 100, FirstName: "Ann"},
	}
}

func (f *fixture) addQuestion(t *testing.T) *db.Question {
	t.Helper()
	q, err := db.NewQuestion("What is the capital of Oregon?", []string{"Portland", "Salem", "Eugene", "Bend"}, "Salem")
	if err != nil {
		t.Fatalf("new question: %v", err)
	}
	stored, err := f.db.InsertQuestion(context.Background(), q)
	if err != nil {
		t.Fatalf("insert question: %v", err)
	}
	return stored
}

func (f *fixture) command(t *testing.T, name string) {
	t.Helper()
	text := "/" + name
	f.handle(t, &api.Update{Message: &api.Message{
		Date:     int(time.Now().Unix()),
		Text:     text,
		Entities: []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}})
}

func (f *fixture) text(t *testing.T, text string) {
	t.Helper()
	f.handle(t, &api.Update{Message: &api.Message{Date: int(time.Now().Unix()), Text: text}})
}

func (f *fixture) photo(t *testing.T) {
	t.Helper()
	f.handle(t, &api.Update{Message: &api.Message{
		Date:  int(time.Now().Unix()),
		Photo: []api.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}})
}

func (f *fixture) press(t *testing.T, data string) {
	t.Helper()
	f.handle(t, &api.Update{CallbackQuery: &api.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &api.Message{MessageID: 1, Text: "question"},
	}})
}

func (f *fixture) handle(t *testing.T, u *api.Update) {
	t.Helper()
	proceed, err := f.router.Handle(context.Background(), u, f.chat, f.user)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if proceed {
		t.Fatalf("router should consume the update")
	}
}

func hasButton(keyboard [][]bot.Button, data string) bool {
	for _, row := range keyboard {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

func TestScenarioStartMenuQuizAnswer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()
	q := f.addQuestion(t)

	f.command(t, "start")
	subs, err := f.db.GetSubscribers(ctx)
	if err != nil || len(subs) != 1 || subs[0] != f.user.ID {
		t.Fatalf("user not subscribed: %v %v", subs, err)
	}
	if !strings.Contains(f.messenger.lastText(t).text, "Ann") {
		t.Fatalf("welcome should greet by name: %q", f.messenger.lastText(t).text)
	}

	f.command(t, "menu")
	menu := f.messenger.lastText(t)
	for _, kind := range []CallbackKind{KindCreateMeme, KindQuiz, KindTop, KindRandomMeme} {
		if !hasButton(menu.keyboard, string(kind)) {
			t.Fatalf("menu misses %s: %+v", kind, menu.keyboard)
		}
	}

	f.press(t, string(KindQuiz))
	state := f.sessions.Get(f.user.ID)
	if state.Phase != session.PhaseAwaitingQuizAnswer || state.PendingQuestionID != q.ID {
		t.Fatalf("unexpected session after quiz: %+v", state)
	}
	prompt := f.messenger.lastText(t)
	correct := AnswerCallback(q.ID, 1).Encode()
	if !hasButton(prompt.keyboard, correct) {
		t.Fatalf("prompt misses the answer button %q: %+v", correct, prompt.keyboard)
	}

	f.press(t, correct)
	if got := f.messenger.lastText(t).text; !strings.HasPrefix(got, "✅ Correct") {
		t.Fatalf("unexpected verdict: %q", got)
	}
	record, err := f.db.GetScore(ctx, f.user.ID)
	if err != nil || record == nil || record.Score != 10 {
		t.Fatalf("unexpected score: %+v %v", record, err)
	}
	if f.sessions.Get(f.user.ID).Phase != session.PhaseIdle {
		t.Fatalf("session should be idle after grading")
	}
	if len(f.messenger.edits) != 1 {
		t.Fatalf("prompt buttons should be removed once, got %d edits", len(f.messenger.edits))
	}

	f.press(t, correct)
	if toast := f.messenger.lastToast(t); toast != textStaleAnswer {
		t.Fatalf("second press should be stale, got %q", toast)
	}
	record, _ = f.db.GetScore(ctx, f.user.ID)
	if record.Score != 10 {
		t.Fatalf("stale press must not award, score %d", record.Score)
	}
}

func TestWrongAnswerRevealsCorrectOne(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	q := f.addQuestion(t)
	f.press(t, string(KindQuiz))
	f.press(t, AnswerCallback(q.ID, 0).Encode())

	if got := f.messenger.lastText(t).text; !strings.Contains(got, "Salem") || !strings.HasPrefix(got, "❌") {
		t.Fatalf("unexpected verdict: %q", got)
	}
	if record, _ := f.db.GetScore(context.Background(), f.user.ID); record != nil {
		t.Fatalf("wrong answer must not create a score")
	}
}

func TestTypedAnswerIsGraded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.addQuestion(t)
	f.press(t, string(KindQuiz))

	f.text(t, "somewhere")
	if got := f.messenger.lastText(t).text; got != textPickButton {
		t.Fatalf("unexpected reply: %q", got)
	}
	if f.sessions.Get(f.user.ID).Phase != session.PhaseAwaitingQuizAnswer {
		t.Fatalf("non option text must keep the question pending")
	}

	f.text(t, "Salem")
	if got := f.messenger.lastText(t).text; !strings.HasPrefix(got, "✅ Correct") {
		t.Fatalf("unexpected verdict: %q", got)
	}
}

func TestQuizWithEmptyBank(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.press(t, string(KindQuiz))
	if got := f.messenger.lastText(t).text; got != textNoQuestions {
		t.Fatalf("unexpected reply: %q", got)
	}
	if f.sessions.Get(f.user.ID).Phase != session.PhaseIdle {
		t.Fatalf("session should stay idle")
	}
}

func TestTopCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()
	f.command(t, "top")
	if got := f.messenger.lastText(t).text; got != textNoScores {
		t.Fatalf("unexpected empty top: %q", got)
	}

	for _, award := range []struct {
		id     int64
		name   string
		points int
	}{{1, "Bob", 10}, {2, "Eve", 30}, {3, "Zed", 10}} {
		if _, err := f.db.AwardScore(ctx, award.id, award.name, award.points); err != nil {
			t.Fatalf("award: %v", err)
		}
	}
	f.press(t, string(KindTop))
	want := "🏆 Top players:\n🥇 Eve: 30\n🥈 Bob: 10\n🥉 Zed: 10"
	if got := f.messenger.lastText(t).text; got != want {
		t.Fatalf("unexpected top:\n%s\nwant:\n%s", got, want)
	}
}

func TestMemeFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.text(t, "hello there")
	if got := f.messenger.lastText(t).text; !strings.HasPrefix(got, "Hello, Ann") {
		t.Fatalf("unexpected greeting: %q", got)
	}

	f.press(t, string(KindCreateMeme))
	if f.sessions.Get(f.user.ID).Phase != session.PhaseAwaitingMemePhoto {
		t.Fatalf("expected awaiting photo")
	}
	f.text(t, "where is my meme")
	if got := f.messenger.lastText(t).text; got != textRemindPhoto {
		t.Fatalf("unexpected reminder: %q", got)
	}

	f.photo(t)
	state := f.sessions.Get(f.user.ID)
	if state.Phase != session.PhaseAwaitingMemeText || state.PendingPhotoPath == "" {
		t.Fatalf("unexpected state after photo: %+v", state)
	}
	if filepath.Dir(state.PendingPhotoPath) != filepath.Join(f.memeDir, "100") {
		t.Fatalf("photo stored outside the user folder: %s", state.PendingPhotoPath)
	}

	f.text(t, "  ")
	f.text(t, "top text")
	if len(f.messenger.photos) != 1 {
		t.Fatalf("meme was not sent: %v", f.messenger.photos)
	}
	if f.sessions.Get(f.user.ID).Phase != session.PhaseIdle {
		t.Fatalf("session should be idle after the meme")
	}
	for _, p := range []string{state.PendingPhotoPath, f.messenger.photos[0]} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("temporary file %s was kept", p)
		}
	}

	f.text(t, "just words")
	if got := f.messenger.lastText(t).text; got != "just words" {
		t.Fatalf("idle text should be echoed, got %q", got)
	}
}

func TestMemeSendFailureStillResetsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.messenger.photoErr = errs.ErrTransport
	f.press(t, string(KindCreateMeme))
	f.photo(t)
	f.text(t, "caption")

	if got := f.messenger.lastText(t).text; got != textFailure {
		t.Fatalf("expected failure notice, got %q", got)
	}
	if f.sessions.Get(f.user.ID).Phase != session.PhaseIdle {
		t.Fatalf("session should be idle")
	}
}

func TestQuizDuringMemeDiscardsPhoto(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.addQuestion(t)
	f.press(t, string(KindCreateMeme))
	f.photo(t)
	photo := f.sessions.Get(f.user.ID).PendingPhotoPath

	f.press(t, string(KindQuiz))
	if f.sessions.Get(f.user.ID).Phase != session.PhaseAwaitingQuizAnswer {
		t.Fatalf("quiz should replace the meme flow")
	}
	if _, err := os.Stat(photo); !os.IsNotExist(err) {
		t.Fatalf("abandoned photo was kept")
	}
}

func TestUnexpectedPhoto(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.photo(t)
	if got := f.messenger.lastText(t).text; got != textPhotoUnexpected {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestMalformedAndLegacyCallbacks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	f.press(t, "dance")
	if toast := f.messenger.lastToast(t); toast != "" {
		t.Fatalf("unmatched payload should be answered silently, got %q", toast)
	}
	f.press(t, "answer_New_York")
	if toast := f.messenger.lastToast(t); toast != textStaleAnswer {
		t.Fatalf("legacy payload should be stale, got %q", toast)
	}
	if len(f.messenger.texts) != 0 {
		t.Fatalf("no messages expected, got %+v", f.messenger.texts)
	}
}

func TestRandomMeme(t *testing.T) {
	t.Parallel()

	empty := newFixture(t, "")
	empty.press(t, string(KindRandomMeme))
	if got := empty.messenger.lastText(t).text; got != textNoMemes {
		t.Fatalf("unexpected reply: %q", got)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cat.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write content: %v", err)
	}
	f := newFixture(t, dir)
	f.press(t, string(KindRandomMeme))
	if len(f.messenger.photos) != 1 || f.messenger.photos[0] != filepath.Join(dir, "cat.jpg") {
		t.Fatalf("unexpected photos: %v", f.messenger.photos)
	}
}

func TestStopAndUnknownCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()
	f.command(t, "start")
	f.command(t, "start")
	f.command(t, "stop")
	subs, err := f.db.GetSubscribers(ctx)
	if err != nil || len(subs) != 0 {
		t.Fatalf("user should be unsubscribed: %v %v", subs, err)
	}
	if got := f.messenger.lastText(t).text; got != textUnsubscribed {
		t.Fatalf("unexpected reply: %q", got)
	}

	f.command(t, "dance")
	if got := f.messenger.lastText(t).text; got != textUnknownCommand {
		t.Fatalf("unexpected reply: %q", got)
	}
	f.command(t, "help")
	if got := f.messenger.lastText(t).text; got != textHelp {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestPersistenceFailureDegradesGracefully(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	if err := f.db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f.command(t, "top")
	if got := f.messenger.lastText(t).text; got != textFailure {
		t.Fatalf("unexpected reply: %q", got)
	}
	f.command(t, "start")
	if got := f.messenger.lastText(t).text; !strings.Contains(got, textWelcomeSubscribeFailed) {
		t.Fatalf("start should still greet and explain: %q", got)
	}
	f.press(t, string(KindQuiz))
	if got := f.messenger.lastText(t).text; got != textFailure {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestCorrectAnswerSurvivesLedgerFailure(t *testing.T) {
	t.Parallel()

	want := correctUnsavedText(10)
	t.Run("button", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		q := f.addQuestion(t)
		f.press(t, string(KindQuiz))
		if err := f.db.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		f.press(t, AnswerCallback(q.ID, 1).Encode())
		if got := f.messenger.lastText(t).text; got != want {
			t.Fatalf("unexpected reply: %q", got)
		}
		if len(f.messenger.edits) != 1 {
			t.Fatalf("prompt buttons should be removed, got %d edits", len(f.messenger.edits))
		}
		if f.sessions.Get(f.user.ID).Phase != session.PhaseIdle {
			t.Fatalf("session should be idle after grading")
		}
	})
	t.Run("typed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, "")
		f.addQuestion(t)
		f.press(t, string(KindQuiz))
		if err := f.db.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		f.text(t, "Salem")
		if got := f.messenger.lastText(t).text; got != want {
			t.Fatalf("unexpected reply: %q", got)
		}
	})
}

func TestHandleSkipsUpdatesWithoutUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	proceed, err := f.router.Handle(context.Background(), &api.Update{}, nil, nil)
	if err != nil || !proceed {
		t.Fatalf("expected pass-through, got %v %v", proceed, err)
	}
}
