package db

import (
	"fmt"
	"strings"
)

const OptionsCount = 4

type (
	ScoreRecord struct {
		ID     int64  `db:"id"`
		UserID int64  `db:"user_id"`
		Name   string `db:"name"`
		Score  int    `db:"score"`
	}

	Question struct {
		ID       int64  `db:"id"`
		Question string `db:"question"`
		Option1  string `db:"option1"`
		Option2  string `db:"option2"`
		Option3  string `db:"option3"`
		Option4  string `db:"option4"`
		Answer   string `db:"answer"`
	}
)

func NewQuestion(text string, options []string, answer string) (*Question, error) {
	q := &Question{Question: strings.TrimSpace(text), Answer: answer}
	if len(options) != OptionsCount {
		return nil, fmt.Errorf("question %q: want %d options, got %d", q.Question, OptionsCount, len(options))
	}
	q.Option1, q.Option2, q.Option3, q.Option4 = options[0], options[1], options[2], options[3]
	return q, q.Validate()
}

// Options returns the four options in stored order.
func (q *Question) Options() []string {
	return []string{q.Option1, q.Option2, q.Option3, q.Option4}
}

func (q *Question) Validate() error {
	if q.Question == "" {
		return fmt.Errorf("question text is empty")
	}
	seen := make(map[string]struct{}, OptionsCount)
	answerFound := false
	for _, opt := range q.Options() {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("question %q: empty option", q.Question)
		}
		if _, dup := seen[opt]; dup {
			return fmt.Errorf("question %q: duplicate option %q", q.Question, opt)
		}
		seen[opt] = struct{}{}
		if opt == q.Answer {
			answerFound = true
		}
	}
	if !answerFound {
		return fmt.Errorf("question %q: answer %q is not among options", q.Question, q.Answer)
	}
	return nil
}
