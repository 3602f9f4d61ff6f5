package dialog

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/iamwavecut/memequiz/internal/db"
)

type CallbackKind string

const (
	KindCreateMeme CallbackKind = "create_meme"
	KindQuiz       CallbackKind = "quiz"
	KindTop        CallbackKind = "top"
	KindRandomMeme CallbackKind = "random_meme"
	KindAnswer     CallbackKind = "answer"

	legacyAnswerPrefix = "answer_"
	payloadSeparator   = ":"
)

// Callback is a decoded button payload. Answers carry the question id and the option index, never the option text.
type Callback struct {
	Kind       CallbackKind
	QuestionID int64
	Option     int
	// Legacy marks an old text-carrying answer payload, always treated as stale.
	Legacy bool
}

func AnswerCallback(questionID int64, option int) Callback {
	return Callback{Kind: KindAnswer, QuestionID: questionID, Option: option}
}

func (c Callback) Encode() string {
	if c.Kind != KindAnswer {
		return string(c.Kind)
	}
	return strings.Join([]string{
		string(KindAnswer),
		encodeUint64Min(uint64(c.QuestionID)),
		strconv.Itoa(c.Option),
	}, payloadSeparator)
}

func ParseCallback(data string) (Callback, error) {
	switch CallbackKind(data) {
	case KindCreateMeme, KindQuiz, KindTop, KindRandomMeme:
		return Callback{Kind: CallbackKind(data)}, nil
	}
	if strings.HasPrefix(data, legacyAnswerPrefix) {
		return Callback{Kind: KindAnswer, Legacy: true}, nil
	}

	parts := strings.Split(data, payloadSeparator)
	if len(parts) != 3 || CallbackKind(parts[0]) != KindAnswer {
		return Callback{}, fmt.Errorf("unknown callback payload %q", data)
	}
	id, err := decodeUint64Min(parts[1])
	if err != nil {
		return Callback{}, err
	}
	option, err := strconv.Atoi(parts[2])
	if err != nil || option < 0 || option >= db.OptionsCount {
		return Callback{}, fmt.Errorf("invalid option index %q", parts[2])
	}
	return AnswerCallback(int64(id), option), nil
}

func encodeUint64Min(value uint64) string {
	if value == 0 {
		return base64.RawURLEncoding.EncodeToString([]byte{0})
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	i := 0
	for i < len(buf) && buf[i] == 0 {
		i++
	}
	return base64.RawURLEncoding.EncodeToString(buf[i:])
}

func decodeUint64Min(value string) (uint64, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	if len(data) == 0 || len(data) > 8 {
		return 0, fmt.Errorf("invalid id length")
	}
	if len(data) < 8 {
		padded := make([]byte, 8-len(data))
		data = append(padded, data...)
	}
	return binary.BigEndian.Uint64(data), nil
}
