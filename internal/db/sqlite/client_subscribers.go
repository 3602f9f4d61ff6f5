package sqlite

import (
	"context"
	"time"

	"github.com/iamwavecut/tool"
)

func (c *sqliteClient) AddSubscriber(ctx context.Context, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, "INSERT OR IGNORE INTO subscribers (user_id, created_at) VALUES (?, ?)", userID, time.Now().UTC())
	if err != nil {
		return storageErr("add subscriber", err)
	}
	return nil
}

func (c *sqliteClient) RemoveSubscriber(ctx context.Context, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := tool.Err(c.db.ExecContext(ctx, "DELETE FROM subscribers WHERE user_id = ?", userID)); err != nil {
		return storageErr("remove subscriber", err)
	}
	return nil
}

func (c *sqliteClient) GetSubscribers(ctx context.Context) ([]int64, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	userIDs := []int64{}
	if err := c.db.SelectContext(ctx, &userIDs, "SELECT user_id FROM subscribers ORDER BY user_id"); err != nil {
		return nil, storageErr("get subscribers", err)
	}
	return userIDs, nil
}
