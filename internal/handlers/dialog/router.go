package dialog

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/bot"
	"github.com/iamwavecut/memequiz/internal/broadcast"
	"github.com/iamwavecut/memequiz/internal/handlers/base"
	"github.com/iamwavecut/memequiz/internal/meme"
	"github.com/iamwavecut/memequiz/internal/quiz"
	"github.com/iamwavecut/memequiz/internal/session"
)

type Config struct {
	Service           bot.Service
	Sessions          *session.Store
	Quiz              *quiz.Engine
	Studio            *meme.Studio
	Content           broadcast.ContentSource
	TopSize           int
	RandomMemeEnabled bool
	Rand              *rand.Rand
}

// Router drives the per-user conversation: commands, menu buttons, quiz answers and the meme flow.
type Router struct {
	*base.BaseHandler

	sessions      *session.Store
	quiz          *quiz.Engine
	studio        *meme.Studio
	content       broadcast.ContentSource
	topSize       int
	randomEnabled bool

	rndMu sync.Mutex
	rnd   *rand.Rand
}

var _ bot.Handler = (*Router)(nil)

func NewRouter(c Config) *Router {
	r := &Router{
		BaseHandler:   base.NewBaseHandler(c.Service, "dialog"),
		sessions:      c.Sessions,
		quiz:          c.Quiz,
		studio:        c.Studio,
		content:       c.Content,
		topSize:       c.TopSize,
		randomEnabled: c.RandomMemeEnabled,
		rnd:           c.Rand,
	}
	if r.topSize <= 0 {
		r.topSize = 5
	}
	if r.rnd == nil {
		r.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r
}

// Handle is the last handler in the chain, it consumes every update it understands.
func (r *Router) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if err := r.ValidateUpdate(u, chat, user); err != nil {
		r.GetLogger().WithError(err).Trace("skip update")
		return true, nil
	}

	switch {
	case u.CallbackQuery != nil:
		r.handleCallback(ctx, u.CallbackQuery, chat, user)
	case u.Message != nil:
		msg := u.Message
		switch {
		case msg.IsCommand():
			r.handleCommand(ctx, msg.Command(), chat, user)
		case len(msg.Photo) > 0:
			r.handlePhoto(ctx, msg, chat, user)
		case strings.TrimSpace(msg.Text) != "":
			r.handleText(ctx, msg.Text, chat, user)
		default:
			r.GetLogger().WithField("user_id", user.ID).Debug("unsupported message kind")
		}
	default:
		return true, nil
	}
	return false, nil
}

func (r *Router) handleCommand(ctx context.Context, command string, chat *api.Chat, user *api.User) {
	entry := r.GetLogger().WithFields(log.Fields{"method": "handleCommand", "command": command, "user_id": user.ID})
	db := r.GetService().GetDB()

	switch command {
	case "start":
		if err := db.AddSubscriber(ctx, user.ID); err != nil {
			entry.WithError(err).Error("cant subscribe")
			r.Reply(ctx, chat.ID, welcomeText(displayName(user))+"\n\n"+textWelcomeSubscribeFailed, nil)
			return
		}
		r.Reply(ctx, chat.ID, welcomeText(displayName(user)), nil)
	case "help":
		r.Reply(ctx, chat.ID, textHelp, nil)
	case "menu":
		r.Reply(ctx, chat.ID, textMenu, menuKeyboard(r.randomEnabled))
	case "top":
		r.sendTop(ctx, chat.ID)
	case "stop":
		if err := db.RemoveSubscriber(ctx, user.ID); err != nil {
			entry.WithError(err).Error("cant unsubscribe")
			r.Reply(ctx, chat.ID, textFailure, nil)
			return
		}
		r.Reply(ctx, chat.ID, textUnsubscribed, nil)
	default:
		entry.Debug("unknown command")
		r.Reply(ctx, chat.ID, textUnknownCommand, nil)
	}
}

func (r *Router) handleCallback(ctx context.Context, cq *api.CallbackQuery, chat *api.Chat, user *api.User) {
	entry := r.GetLogger().WithFields(log.Fields{"method": "handleCallback", "user_id": user.ID})
	toast := ""
	defer func() { r.AnswerCallback(ctx, cq.ID, toast) }()

	cb, err := ParseCallback(cq.Data)
	if err != nil {
		entry.WithField("data", cq.Data).WithError(err).Warn("unmatched callback payload")
		return
	}

	switch cb.Kind {
	case KindCreateMeme:
		r.resetSession(user.ID)
		r.sessions.Set(user.ID, session.State{Phase: session.PhaseAwaitingMemePhoto})
		r.Reply(ctx, chat.ID, textAskPhoto, nil)
	case KindQuiz:
		r.startQuiz(ctx, chat, user)
	case KindTop:
		r.sendTop(ctx, chat.ID)
	case KindRandomMeme:
		toast = r.sendRandomMeme(ctx, chat.ID)
	case KindAnswer:
		if cb.Legacy {
			entry.Debug("legacy answer payload")
			toast = textStaleAnswer
			return
		}
		toast = r.gradeOption(ctx, cq, chat, user, cb)
	}
}

func (r *Router) startQuiz(ctx context.Context, chat *api.Chat, user *api.User) {
	r.resetSession(user.ID)
	prompt, err := r.quiz.StartQuiz(ctx, user.ID)
	switch {
	case errors.Is(err, quiz.ErrNoQuestionsAvailable):
		r.Reply(ctx, chat.ID, textNoQuestions, nil)
		return
	case err != nil:
		r.GetLogger().WithField("user_id", user.ID).WithError(err).Error("cant start quiz")
		r.Reply(ctx, chat.ID, textFailure, nil)
		return
	}
	r.Reply(ctx, chat.ID, "❓ "+prompt.Text, answerKeyboard(prompt.QuestionID, prompt.Options))
}

func (r *Router) gradeOption(ctx context.Context, cq *api.CallbackQuery, chat *api.Chat, user *api.User, cb Callback) string {
	grade, err := r.quiz.GradeOption(ctx, user.ID, displayName(user), cb.QuestionID, cb.Option)
	if err != nil {
		r.GetLogger().WithFields(log.Fields{
			"user_id":     user.ID,
			"question_id": cb.QuestionID,
		}).WithError(err).Error("cant grade answer")
		if grade.Verdict != quiz.VerdictCorrect {
			r.Reply(ctx, chat.ID, textFailure, nil)
			return ""
		}
	}
	if grade.Verdict == quiz.VerdictNoPendingQuestion {
		return textStaleAnswer
	}
	r.closePrompt(ctx, cq, chat, grade.Submitted)
	r.replyGrade(ctx, chat.ID, grade, err)
	return ""
}

// replyGrade reports the verdict. A correct answer whose points failed to persist still gets its verdict.
func (r *Router) replyGrade(ctx context.Context, chatID int64, grade quiz.Grade, awardErr error) {
	switch grade.Verdict {
	case quiz.VerdictCorrect:
		if awardErr != nil {
			r.Reply(ctx, chatID, correctUnsavedText(grade.Points), menuKeyboard(r.randomEnabled))
			return
		}
		r.Reply(ctx, chatID, correctText(grade.Points, grade.Total), menuKeyboard(r.randomEnabled))
	case quiz.VerdictIncorrect:
		r.Reply(ctx, chatID, incorrectText(grade.CorrectAnswer), menuKeyboard(r.randomEnabled))
	}
}

// closePrompt removes the answer buttons from the question message.
func (r *Router) closePrompt(ctx context.Context, cq *api.CallbackQuery, chat *api.Chat, submitted string) {
	if cq.Message == nil {
		return
	}
	text := cq.Message.Text + "\n\nYour answer: " + submitted
	if err := r.GetService().GetMessenger().EditText(ctx, chat.ID, cq.Message.MessageID, text, nil); err != nil {
		r.GetLogger().WithError(err).Debug("cant close quiz prompt")
	}
}

func (r *Router) sendTop(ctx context.Context, chatID int64) {
	records, err := r.GetService().GetDB().GetTopScores(ctx, r.topSize)
	if err != nil {
		r.GetLogger().WithError(err).Error("cant load top scores")
		r.Reply(ctx, chatID, textFailure, nil)
		return
	}
	r.Reply(ctx, chatID, topText(records), nil)
}

// sendRandomMeme returns a toast for the button press when nothing was sent.
func (r *Router) sendRandomMeme(ctx context.Context, chatID int64) string {
	if !r.randomEnabled || r.content == nil {
		return textRandomDisabled
	}
	items, err := r.content.List(ctx)
	if err != nil {
		r.GetLogger().WithError(err).Error("cant list memes")
		r.Reply(ctx, chatID, textFailure, nil)
		return ""
	}
	if len(items) == 0 {
		r.Reply(ctx, chatID, textNoMemes, nil)
		return ""
	}
	item := items[r.intn(len(items))]
	if err := r.GetService().GetMessenger().SendPhoto(ctx, chatID, item, ""); err != nil {
		r.GetLogger().WithField("item", item).WithError(err).Warn("cant send random meme")
		r.Reply(ctx, chatID, textFailure, nil)
	}
	return ""
}

func (r *Router) handlePhoto(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) {
	entry := r.GetLogger().WithFields(log.Fields{"method": "handlePhoto", "user_id": user.ID})
	if r.sessions.Get(user.ID).Phase != session.PhaseAwaitingMemePhoto {
		r.Reply(ctx, chat.ID, textPhotoUnexpected, nil)
		return
	}

	largest := msg.Photo[len(msg.Photo)-1]
	path, err := r.studio.SavePhoto(ctx, user.ID, largest.FileID)
	if err != nil {
		entry.WithError(err).Error("cant store photo")
		r.Reply(ctx, chat.ID, textFailure, nil)
		return
	}

	stored := false
	r.sessions.Update(user.ID, func(cur session.State) session.State {
		if cur.Phase != session.PhaseAwaitingMemePhoto {
			return cur
		}
		stored = true
		return session.State{Phase: session.PhaseAwaitingMemeText, PendingPhotoPath: path}
	})
	if !stored {
		entry.Debug("session moved on while the photo was downloading")
		r.studio.Discard(path)
		return
	}
	r.Reply(ctx, chat.ID, textAskCaption, nil)
}

func (r *Router) handleText(ctx context.Context, text string, chat *api.Chat, user *api.User) {
	state := r.sessions.Get(user.ID)
	switch state.Phase {
	case session.PhaseAwaitingMemeText:
		r.composeMeme(ctx, text, chat, user)
	case session.PhaseAwaitingMemePhoto:
		r.Reply(ctx, chat.ID, textRemindPhoto, nil)
	case session.PhaseAwaitingQuizAnswer:
		if !containsOption(state.PendingOptions, text) {
			r.Reply(ctx, chat.ID, textPickButton, nil)
			return
		}
		grade, err := r.quiz.GradeAnswer(ctx, user.ID, displayName(user), text)
		if err != nil {
			r.GetLogger().WithField("user_id", user.ID).WithError(err).Error("cant grade answer")
			if grade.Verdict != quiz.VerdictCorrect {
				r.Reply(ctx, chat.ID, textFailure, nil)
				return
			}
		}
		if grade.Verdict == quiz.VerdictNoPendingQuestion {
			r.Reply(ctx, chat.ID, textStaleAnswer, nil)
			return
		}
		r.replyGrade(ctx, chat.ID, grade, err)
	default:
		if isGreeting(text) {
			r.Reply(ctx, chat.ID, greetingText(displayName(user)), nil)
			return
		}
		r.Reply(ctx, chat.ID, text, nil)
	}
}

func (r *Router) composeMeme(ctx context.Context, text string, chat *api.Chat, user *api.User) {
	entry := r.GetLogger().WithFields(log.Fields{"method": "composeMeme", "user_id": user.ID})
	caption := strings.TrimSpace(text)
	if caption == "" {
		r.Reply(ctx, chat.ID, textAskCaptionAgain, nil)
		return
	}

	prev, _ := r.sessions.Update(user.ID, func(cur session.State) session.State {
		if cur.Phase != session.PhaseAwaitingMemeText {
			return cur
		}
		return session.State{}
	})
	if prev.Phase != session.PhaseAwaitingMemeText {
		return
	}
	defer r.studio.Discard(prev.PendingPhotoPath)

	result, err := r.studio.Compose(ctx, prev.PendingPhotoPath, caption)
	if err != nil {
		entry.WithError(err).Error("cant compose meme")
		r.Reply(ctx, chat.ID, textFailure, nil)
		return
	}
	defer r.studio.Discard(result)

	if err := r.GetService().GetMessenger().SendPhoto(ctx, chat.ID, result, ""); err != nil {
		entry.WithError(err).Warn("cant send meme")
		r.Reply(ctx, chat.ID, textFailure, nil)
	}
}

// resetSession drops whatever the user was doing, including a stored photo.
func (r *Router) resetSession(userID int64) {
	prev := r.sessions.Clear(userID)
	if prev.PendingPhotoPath != "" {
		r.studio.Discard(prev.PendingPhotoPath)
	}
}

func (r *Router) intn(n int) int {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.rnd.Intn(n)
}

func containsOption(options []string, text string) bool {
	for _, o := range options {
		if o == text {
			return true
		}
	}
	return false
}

func displayName(user *api.User) string {
	if name := bot.GetFullName(user); name != "" {
		return name
	}
	return "user " + strconv.FormatInt(user.ID, 10)
}
