package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport names message references created by this package.
const Transport = "telegram"

// Sender is the subset of *tgbotapi.BotAPI the presenter needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Presenter renders engine output as Telegram messages. Rich text is sent
// as Markdown and retried as plain text when Telegram rejects the markup.
type Presenter struct {
	api Sender
}

func NewPresenter(api Sender) *Presenter {
	return &Presenter{api: api}
}

// Name implements transport.Endpoint.
func (p *Presenter) Name() string { return Transport }

// Reaches implements transport.Endpoint. Telegram user ids double as private
// chat ids, so every user is reachable.
func (p *Presenter) Reaches(int64) bool { return true }

func (p *Presenter) SendQuestion(_ context.Context, userID int64, q app.QuestionView) (domain.MessageRef, error) {
	kb := answerKeyboard(q)
	msg, err := p.send(func(mode string) tgbotapi.Chattable {
		m := tgbotapi.NewMessage(userID, questionText(q, mode))
		m.ParseMode = mode
		m.ReplyMarkup = kb
		return m
	})
	if err != nil {
		return domain.MessageRef{}, fmt.Errorf("send question: %w", err)
	}
	return domain.MessageRef{Transport: Transport, ChatID: userID, MessageID: msg.MessageID}, nil
}

func (p *Presenter) EditToTimerState(_ context.Context, ref domain.MessageRef, q app.QuestionView, secondsRemaining int) error {
	kb := answerKeyboard(q)
	_, err := p.send(func(mode string) tgbotapi.Chattable {
		text := questionText(q, mode) + "\n\n⏱ " + TimerBar(secondsRemaining)
		e := tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, text, kb)
		e.ParseMode = mode
		return e
	})
	return err
}

// EditToTimeUp replaces the countdown with the expired bar and removes the
// answer buttons.
func (p *Presenter) EditToTimeUp(_ context.Context, ref domain.MessageRef, q app.QuestionView) error {
	_, err := p.send(func(mode string) tgbotapi.Chattable {
		text := questionText(q, mode) + "\n\n⏱ " + TimeUpBar
		e := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
		e.ParseMode = mode
		return e
	})
	return err
}

func (p *Presenter) SendFeedback(_ context.Context, userID int64, fb app.Feedback) error {
	_, err := p.send(func(mode string) tgbotapi.Chattable {
		text := escape(fb.Headline(), mode) + "\n\n💡 " + escape(fb.Explanation(), mode)
		if fb.Outcome == domain.OutcomeCorrect {
			text += fmt.Sprintf("\n\n+%d points (score %d)", fb.Awarded, fb.Score)
		}
		m := tgbotapi.NewMessage(userID, text)
		m.ParseMode = mode
		return m
	})
	return err
}

func (p *Presenter) SendBatchSummary(_ context.Context, userID int64, s app.Summary) error {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(s.NextBatchLabel(), CallbackStartQuiz)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", CallbackSettings)),
	)
	_, err := p.send(func(mode string) tgbotapi.Chattable {
		m := tgbotapi.NewMessage(userID, summaryText(s, mode))
		m.ParseMode = mode
		m.ReplyMarkup = kb
		return m
	})
	return err
}

func (p *Presenter) SendNotice(_ context.Context, userID int64, n app.Notice) error {
	m := tgbotapi.NewMessage(userID, n.Text())
	if n.Kind == app.NoticeLimitReached || n.Kind == app.NoticeNoSession || n.Kind == app.NoticeStaleSession {
		m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", CallbackSettings)),
		)
	}
	_, err := p.api.Send(m)
	return err
}

// send tries Markdown first and falls back to plain text.
func (p *Presenter) send(build func(mode string) tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, err := p.api.Send(build(tgbotapi.ModeMarkdown))
	if err == nil {
		return msg, nil
	}
	if isNotModified(err) {
		return msg, nil
	}
	log.Printf("markdown rejected, retrying as plain text: %v", err)
	msg, err = p.api.Send(build(""))
	if err != nil && isNotModified(err) {
		return msg, nil
	}
	return msg, err
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// Countdown renders keyed by seconds remaining.
var timerBars = map[int]string{
	30: "30s Left 🟨🟨🟨⬜⬜",
	15: "15s Left 🟧🟧⬜⬜⬜",
	5:  "5s Left 🟥⬜⬜⬜⬜ HURRY",
}

// TimeUpBar is the final countdown render.
const TimeUpBar = "TIME UP ⬛⬛⬛⬛⬛"

// TimerBar renders the countdown for secondsRemaining.
func TimerBar(secondsRemaining int) string {
	if bar, ok := timerBars[secondsRemaining]; ok {
		return bar
	}
	return fmt.Sprintf("%ds Left", secondsRemaining)
}

func questionText(q app.QuestionView, mode string) string {
	header := fmt.Sprintf("Q%d/%d", q.Index+1, q.Total)
	if mode != "" {
		header = "*" + header + "*"
	}
	text := "❓ " + header + "\n\n" + escape(q.Question.Prompt, mode)
	if q.Question.Topic != "" {
		text += "\n\n🏷 " + escape(q.Question.Topic, mode)
	}
	return text
}

func summaryText(s app.Summary, mode string) string {
	title := "🏁 Batch Complete!"
	if mode != "" {
		title = "🏁 *Batch Complete!*"
	}
	return fmt.Sprintf("%s\n\n✅ Score: %d/%d (%d%%)\n👥 Competitor average: %d%%\n%s\n\n📅 Today: %d/%d",
		title, s.Correct, s.Total, s.Percentage, s.CompetitorAverage, escape(s.Verdict, mode), s.Answered, s.Limit)
}

func answerKeyboard(q app.QuestionView) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(q.Question.Options)+1)
	for i, option := range q.Question.Options {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(option, AnswerData(q.SessionID, q.Index, i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🚪 Stop quiz", CallbackStopQuiz),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func escape(text, mode string) string {
	if mode == "" {
		return text
	}
	return tgbotapi.EscapeText(mode, text)
}
