package db

import "context"

type Client interface {
	Close() error

	AwardScore(ctx context.Context, userID int64, name string, points int) (*ScoreRecord, error)
	GetScore(ctx context.Context, userID int64) (*ScoreRecord, error)
	GetTopScores(ctx context.Context, limit int) ([]*ScoreRecord, error)

	AddSubscriber(ctx context.Context, userID int64) error
	RemoveSubscriber(ctx context.Context, userID int64) error
	GetSubscribers(ctx context.Context) ([]int64, error)

	CountQuestions(ctx context.Context) (int, error)
	GetQuestionAt(ctx context.Context, offset int) (*Question, error)
	InsertQuestion(ctx context.Context, q *Question) (*Question, error)

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}
