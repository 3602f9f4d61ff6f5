package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iamwavecut/memequiz/internal/db"
	errs "github.com/iamwavecut/memequiz/internal/errors"
)

func (c *sqliteClient) CountQuestions(ctx context.Context) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	if err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM questions"); err != nil {
		return 0, storageErr("count questions", err)
	}
	return count, nil
}

// GetQuestionAt returns the question at offset in id order, nil when offset is past the end.
func (c *sqliteClient) GetQuestionAt(ctx context.Context, offset int) (*db.Question, error) {
	if offset < 0 {
		return nil, fmt.Errorf("question offset %d: %w", offset, errs.ErrInvalidInput)
	}
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	q := &db.Question{}
	err := c.db.GetContext(ctx, q, `
		SELECT id, question, option1, option2, option3, option4, answer
		FROM questions
		ORDER BY id
		LIMIT 1 OFFSET ?
	`, offset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("get question", err)
	}
	return q, nil
}

func (c *sqliteClient) InsertQuestion(ctx context.Context, q *db.Question) (*db.Question, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrInvalidInput, err)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.NamedExecContext(ctx, `
		INSERT INTO questions (question, option1, option2, option3, option4, answer)
		VALUES (:question, :option1, :option2, :option3, :option4, :answer)
	`, q)
	if err != nil {
		return nil, storageErr("insert question", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, storageErr("insert question id", err)
	}
	stored := *q
	stored.ID = id
	return &stored, nil
}
