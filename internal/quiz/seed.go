package quiz

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/memequiz/internal/db"
	"github.com/iamwavecut/memequiz/resources"
)

const embeddedSeed = "questions.yml"

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
}

type seedQuestion struct {
	Question string   `yaml:"question"`
	Options  []string `yaml:"options"`
	Answer   string   `yaml:"answer"`
}

type SeedTarget interface {
	CountQuestions(ctx context.Context) (int, error)
	InsertQuestion(ctx context.Context, q *db.Question) (*db.Question, error)
}

// ParseSeed decodes and validates a YAML question list, one bad entry rejects the whole file.
func ParseSeed(data []byte) ([]*db.Question, error) {
	var file seedFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	questions := make([]*db.Question, 0, len(file.Questions))
	for i, sq := range file.Questions {
		q, err := db.NewQuestion(sq.Question, sq.Options, sq.Answer)
		if err != nil {
			return nil, fmt.Errorf("seed entry %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// LoadSeed reads the seed from path, or the embedded question list when path is empty.
func LoadSeed(path string) ([]*db.Question, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = fs.ReadFile(resources.FS, embeddedSeed)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

// Seed fills an empty bank and reports how many questions were inserted.
func Seed(ctx context.Context, target SeedTarget, questions []*db.Question) (int, error) {
	count, err := target.CountQuestions(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	inserted := 0
	for _, q := range questions {
		if _, err := target.InsertQuestion(ctx, q); err != nil {
			return inserted, fmt.Errorf("insert %q: %w", q.Question, err)
		}
		inserted++
	}
	log.WithField("count", inserted).Info("seeded question bank")
	return inserted, nil
}
