package quiz

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/memequiz/internal/db"
	"github.com/iamwavecut/memequiz/internal/observability"
	"github.com/iamwavecut/memequiz/internal/session"
)

const DefaultPoints = 10

var ErrNoQuestionsAvailable = errors.New("no questions available")

type QuestionBank interface {
	CountQuestions(ctx context.Context) (int, error)
	GetQuestionAt(ctx context.Context, offset int) (*db.Question, error)
}

type Ledger interface {
	AwardScore(ctx context.Context, userID int64, name string, points int) (*db.ScoreRecord, error)
}

type Config struct {
	Bank     QuestionBank
	Ledger   Ledger
	Sessions *session.Store
	Points   int
	Rand     *rand.Rand
}

type Engine struct {
	bank     QuestionBank
	ledger   Ledger
	sessions *session.Store
	points   int

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewEngine(c Config) *Engine {
	e := &Engine{
		bank:     c.Bank,
		ledger:   c.Ledger,
		sessions: c.Sessions,
		points:   c.Points,
		rnd:      c.Rand,
	}
	if e.points <= 0 {
		e.points = DefaultPoints
	}
	if e.rnd == nil {
		e.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

type Prompt struct {
	QuestionID int64
	Text       string
	Options    []string
}

type Verdict int

const (
	VerdictNoPendingQuestion Verdict = iota
	VerdictCorrect
	VerdictIncorrect
)

func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictIncorrect:
		return "incorrect"
	default:
		return "no_pending_question"
	}
}

type Grade struct {
	Verdict       Verdict
	Submitted     string
	CorrectAnswer string
	Points        int
	Total         int
}

// StartQuiz picks a question uniformly at random and makes it the user's pending question.
func (e *Engine) StartQuiz(ctx context.Context, userID int64) (*Prompt, error) {
	entry := e.getLogEntry().WithFields(log.Fields{"method": "StartQuiz", "user_id": userID})

	count, err := e.bank.CountQuestions(ctx)
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "count questions")
	}
	if count == 0 {
		return nil, ErrNoQuestionsAvailable
	}

	q, err := e.bank.GetQuestionAt(ctx, e.intn(count))
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "pick question")
	}
	if q == nil {
		entry.Debug("question bank shrank during pick")
		return nil, ErrNoQuestionsAvailable
	}

	e.sessions.Set(userID, session.State{
		Phase:                session.PhaseAwaitingQuizAnswer,
		PendingQuestionID:    q.ID,
		PendingOptions:       q.Options(),
		PendingCorrectAnswer: q.Answer,
	})
	entry.WithField("question_id", q.ID).Debug("quiz started")

	return &Prompt{
		QuestionID: q.ID,
		Text:       q.Question,
		Options:    q.Options(),
	}, nil
}

// GradeAnswer consumes the pending question and compares the submission with exact string equality.
func (e *Engine) GradeAnswer(ctx context.Context, userID int64, displayName string, submitted string) (Grade, error) {
	prev, _ := e.sessions.Update(userID, func(cur session.State) session.State {
		if cur.Phase != session.PhaseAwaitingQuizAnswer {
			return cur
		}
		return session.State{}
	})
	if prev.Phase != session.PhaseAwaitingQuizAnswer {
		return e.stale(), nil
	}
	return e.grade(ctx, userID, displayName, submitted, prev.PendingCorrectAnswer)
}

// GradeOption grades a button press. A press for another question than the pending one is stale and leaves the session untouched.
func (e *Engine) GradeOption(ctx context.Context, userID int64, displayName string, questionID int64, index int) (Grade, error) {
	var submitted string
	prev, _ := e.sessions.Update(userID, func(cur session.State) session.State {
		if cur.Phase != session.PhaseAwaitingQuizAnswer || cur.PendingQuestionID != questionID {
			return cur
		}
		if index < 0 || index >= len(cur.PendingOptions) {
			return cur
		}
		submitted = cur.PendingOptions[index]
		return session.State{}
	})
	if submitted == "" {
		e.getLogEntry().WithFields(log.Fields{
			"method":      "GradeOption",
			"user_id":     userID,
			"question_id": questionID,
			"pending_id":  prev.PendingQuestionID,
			"index":       index,
		}).Debug("stale answer")
		return e.stale(), nil
	}
	return e.grade(ctx, userID, displayName, submitted, prev.PendingCorrectAnswer)
}

func (e *Engine) grade(ctx context.Context, userID int64, displayName, submitted, correct string) (Grade, error) {
	g := Grade{
		Verdict:       VerdictIncorrect,
		Submitted:     submitted,
		CorrectAnswer: correct,
	}
	if submitted == correct {
		g.Verdict = VerdictCorrect
		g.Points = e.points
	}
	observability.ObserveQuizVerdict(g.Verdict.String())

	if g.Verdict != VerdictCorrect {
		return g, nil
	}
	record, err := e.ledger.AwardScore(ctx, userID, displayName, e.points)
	if err != nil {
		return g, pkgerrors.WithMessage(err, "award points")
	}
	g.Total = record.Score
	return g, nil
}

func (e *Engine) stale() Grade {
	observability.ObserveQuizVerdict(VerdictNoPendingQuestion.String())
	return Grade{Verdict: VerdictNoPendingQuestion}
}

func (e *Engine) intn(n int) int {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return e.rnd.Intn(n)
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("object", "QuizEngine")
}
