package dialog

import (
	"fmt"
	"strings"

	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/memequiz/internal/bot"
	"github.com/iamwavecut/memequiz/internal/db"
)

const (
	textHelp = `I can do a few things:
/menu shows the buttons
/top shows the best quiz players
/stop unsubscribes you from the meme of the day

Create meme: send a photo, then the caption, and I will glue them together.
Quiz: answer a question and earn points for the leaderboard.`

	textWelcomeSubscribeFailed = "I could not subscribe you to the meme of the day right now, send /start again later."
	textUnsubscribed           = "You will not receive the meme of the day anymore. Send /start to come back."
	textUnknownCommand         = "I don't know this command, try /help"
	textMenu                   = "What do you want to do?"
	textAskPhoto               = "Send me a photo 📸"
	textAskCaption             = "Nice! Now send me the caption text ✍️"
	textAskCaptionAgain        = "The caption can't be empty, send me some text ✍️"
	textRemindPhoto            = "I'm waiting for a photo 📸 Send one, or pick something else in /menu"
	textPhotoUnexpected        = "Nice picture! Press Create meme in /menu if you want a meme out of it."
	textPickButton             = "Pick one of the answer buttons above 👆"
	textNoQuestions            = "There are no quiz questions yet 🤷"
	textNoScores               = "Nobody has scored yet 😢"
	textNoMemes                = "My meme folder is empty right now 🤷"
	textRandomDisabled         = "Random memes are turned off"
	textStaleAnswer            = "This question is no longer active, press Quiz for a new one"
	textFailure                = "⚠️ Sorry, I couldn't complete that right now. Please try again later."
)

var greetingWords = []string{"hi", "hello", "hey", "hola", "yo", "sup", "привет", "hallo"}

func welcomeText(name string) string {
	return tool.ExecTemplate(`Hi, {{ .name }}! 👋
I make memes, run a quiz and send a meme of the day every morning.
Open /menu to start or /help to learn more.`, map[string]any{
		"name": name,
	})
}

func greetingText(name string) string {
	return tool.ExecTemplate(`Hello, {{ .name }}! 👋 Open /menu to see what I can do.`, map[string]any{
		"name": name,
	})
}

func correctText(points, total int) string {
	return tool.ExecTemplate(`✅ Correct! +{{ .points }} points. Your score: {{ .total }}`, map[string]any{
		"points": points,
		"total":  total,
	})
}

func correctUnsavedText(points int) string {
	return tool.ExecTemplate(`✅ Correct! But I couldn't save your +{{ .points }} points right now, sorry.`, map[string]any{
		"points": points,
	})
}

func incorrectText(correct string) string {
	return tool.ExecTemplate(`❌ Wrong! The correct answer was: {{ .answer }}`, map[string]any{
		"answer": correct,
	})
}

var medals = []string{"🥇", "🥈", "🥉"}

func topText(records []*db.ScoreRecord) string {
	if len(records) == 0 {
		return textNoScores
	}
	lines := make([]string, 0, len(records)+1)
	lines = append(lines, "🏆 Top players:")
	for i, r := range records {
		place := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			place = medals[i]
		}
		lines = append(lines, tool.ExecTemplate(`{{ .place }} {{ .name }}: {{ .score }}`, map[string]any{
			"place": place,
			"name":  r.Name,
			"score": r.Score,
		}))
	}
	return strings.Join(lines, "\n")
}

func menuKeyboard(randomEnabled bool) [][]bot.Button {
	rows := [][]bot.Button{
		{{Text: "🖼 Create meme", Data: string(KindCreateMeme)}},
		{{Text: "❓ Quiz", Data: string(KindQuiz)}, {Text: "🏆 Top", Data: string(KindTop)}},
	}
	if randomEnabled {
		rows = append(rows, []bot.Button{{Text: "🎲 Random meme", Data: string(KindRandomMeme)}})
	}
	return rows
}

func answerKeyboard(questionID int64, options []string) [][]bot.Button {
	rows := make([][]bot.Button, 0, len(options))
	for i, option := range options {
		rows = append(rows, []bot.Button{{Text: option, Data: AnswerCallback(questionID, i).Encode()}})
	}
	return rows
}

func isGreeting(text string) bool {
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == ',' || r == '!' || r == '.' || r == '?'
	}) {
		if tool.In(word, greetingWords...) {
			return true
		}
	}
	return false
}
