package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/memequiz/internal/observability"
)

const (
	UpdateTimeout = 5 * time.Minute
)

type (
	UpdateProcessor struct {
		s              Service
		updateHandlers []Handler
		now            func() time.Time
	}

	MessageType string
)

const (
	MessageTypeText     MessageType = "text"
	MessageTypePhoto    MessageType = "photo"
	MessageTypeCallback MessageType = "callback"
	MessageTypeOther    MessageType = "other"
)

func NewUpdateProcessor(s Service, handlers ...Handler) *UpdateProcessor {
	enabledHandlers := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			enabledHandlers = append(enabledHandlers, h)
		}
	}
	return &UpdateProcessor{
		s:              s,
		updateHandlers: enabledHandlers,
		now:            time.Now,
	}
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var updateTime time.Time
	switch {
	case u.Message != nil:
		updateTime = time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		updateTime = time.Unix(int64(u.EditedMessage.Date), 0)
	default:
		updateTime = up.now()
	}

	if age := up.now().Sub(updateTime); age > UpdateTimeout {
		log.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         age,
		}).Debug("Skipping outdated update")
		return nil
	}

	chat := u.FromChat()
	user := u.SentFrom()

	finish := observability.StartUpdate()
	ctx, span := observability.Tracer().Start(ctx, "update",
		trace.WithAttributes(
			attribute.Int("update.id", u.UpdateID),
			attribute.String("update.kind", string(GetUpdateType(u))),
		))
	defer span.End()

	for _, handler := range up.updateHandlers {
		select {
		case <-ctx.Done():
			finish("cancelled")
			return ctx.Err()
		default:
		}
		proceed, err := handler.Handle(ctx, u, chat, user)
		if err != nil {
			span.RecordError(err)
			finish("error")
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			log.Trace("not proceeding")
			break
		}
	}
	finish("ok")
	return nil
}

// UpdateKey is the ordering key of an update, the sender id, or the chat id when there is no sender.
func UpdateKey(u *api.Update) int64 {
	if user := u.SentFrom(); user != nil {
		return user.ID
	}
	if chat := u.FromChat(); chat != nil {
		return chat.ID
	}
	return 0
}

func GetUpdatesChans(ctx context.Context, bot *api.BotAPI, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, bot.Buffer)
	chErr := make(chan error)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := bot.GetUpdates(config)
				if err != nil {
					chErr <- err
					return
				}

				for _, update := range updates {
					if update.UpdateID >= config.Offset {
						config.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = user.FirstName + " " + user.LastName
		userName = strings.TrimSpace(userName)
	}
	return userName
}

func GetFullName(user *api.User) string {
	if user == nil {
		return ""
	}
	fullName := user.FirstName + " " + user.LastName
	fullName = strings.TrimSpace(fullName)
	if len(fullName) == 0 {
		fullName = user.UserName
	}
	return fullName
}

func GetUpdateType(u *api.Update) MessageType {
	switch {
	case u.CallbackQuery != nil:
		return MessageTypeCallback
	case u.Message != nil:
		return GetMessageType(u.Message)
	default:
		return MessageTypeOther
	}
}

func GetMessageType(msg *api.Message) MessageType {
	switch {
	case len(msg.Photo) > 0:
		return MessageTypePhoto
	case msg.Text != "":
		return MessageTypeText
	default:
		return MessageTypeOther
	}
}
