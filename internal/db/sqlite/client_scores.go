package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iamwavecut/memequiz/internal/db"
	errs "github.com/iamwavecut/memequiz/internal/errors"
)

// AwardScore creates the record with points or adds points to the existing one in a single statement.
func (c *sqliteClient) AwardScore(ctx context.Context, userID int64, name string, points int) (*db.ScoreRecord, error) {
	if points <= 0 {
		return nil, fmt.Errorf("award %d points: %w", points, errs.ErrInvalidInput)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO users (user_id, name, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		score = users.score + excluded.score,
		name = excluded.name,
		updated_at = excluded.updated_at
		RETURNING id, user_id, name, score
	`
	record := &db.ScoreRecord{}
	err := c.db.QueryRowxContext(ctx, query, userID, name, points, time.Now().UTC()).StructScan(record)
	if err != nil {
		return nil, storageErr("award score", err)
	}
	return record, nil
}

func (c *sqliteClient) GetScore(ctx context.Context, userID int64) (*db.ScoreRecord, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	record := &db.ScoreRecord{}
	err := c.db.GetContext(ctx, record, `SELECT id, user_id, name, score FROM users WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("get score", err)
	}
	return record, nil
}

// GetTopScores orders by score and then by first insertion, so equal scores keep a stable order.
func (c *sqliteClient) GetTopScores(ctx context.Context, limit int) ([]*db.ScoreRecord, error) {
	if limit <= 0 {
		return []*db.ScoreRecord{}, nil
	}
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	records := []*db.ScoreRecord{}
	err := c.db.SelectContext(ctx, &records, `
		SELECT id, user_id, name, score
		FROM users
		ORDER BY score DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, storageErr("get top scores", err)
	}
	return records, nil
}
