package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Quiz is the engine surface the bot drives.
type Quiz interface {
	Register(ctx context.Context, userID int64, username, fullName string) error
	SetPreferences(ctx context.Context, userID int64, language, category string) error
	Profile(ctx context.Context, userID int64) (domain.UserRecord, error)
	StartBatch(ctx context.Context, userID int64, language, category string) (domain.Session, error)
	SubmitAnswer(ctx context.Context, userID int64, sessionID string, index, selected int) (app.AnswerResult, error)
	Abandon(ctx context.Context, userID int64) error
}

// API is the subset of *tgbotapi.BotAPI the poller needs.
type API interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot long-polls Telegram and routes commands and button taps to the quiz.
// Every update is handled on its own goroutine; per-user ordering is the
// engine's job.
type Bot struct {
	api        API
	quiz       Quiz
	languages  []string
	categories []string
	wg         sync.WaitGroup
}

func NewBot(api API, quiz Quiz, languages, categories []string) *Bot {
	return &Bot{api: api, quiz: quiz, languages: languages, categories: categories}
}

// Run polls until ctx is cancelled and waits for in-flight handlers.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handle(ctx, update)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	switch msg.Command() {
	case "start":
		if err := b.quiz.Register(ctx, userID, msg.From.UserName, fullName(msg.From)); err != nil {
			log.Printf("register %d: %v", userID, err)
		}
		b.sendMainMenu(userID, msg.From.FirstName)
	case "quiz":
		b.startBatch(ctx, userID)
	case "stop":
		b.abandon(ctx, userID)
	case "settings":
		b.sendSettings(userID)
	case "stats":
		b.sendStats(ctx, userID)
	default:
		b.sendText(userID, "Use /quiz to start today's batch, /settings to pick a topic or /stats for your progress.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("answer callback: %v", err)
	}
	if cb.From == nil {
		return
	}
	userID := cb.From.ID
	data := cb.Data

	switch {
	case data == CallbackStartQuiz:
		b.startBatch(ctx, userID)
	case data == CallbackSettings:
		b.sendSettings(userID)
	case data == CallbackStopQuiz:
		b.abandon(ctx, userID)
	case strings.HasPrefix(data, prefLanguagePrefix):
		lang := strings.TrimPrefix(data, prefLanguagePrefix)
		b.setPreference(ctx, userID, lang, "")
	case strings.HasPrefix(data, prefCategoryPrefix):
		cat := strings.TrimPrefix(data, prefCategoryPrefix)
		b.setPreference(ctx, userID, "", cat)
	case strings.HasPrefix(data, answerPrefix):
		sessionID, index, option, ok := parseAnswer(data)
		if !ok {
			log.Printf("malformed answer callback %q from %d", data, userID)
			return
		}
		if _, err := b.quiz.SubmitAnswer(ctx, userID, sessionID, index, option); err != nil && !expectedAnswerError(err) {
			log.Printf("submit answer for %d: %v", userID, err)
		}
	default:
		log.Printf("unknown callback %q from %d", data, userID)
	}
}

func (b *Bot) startBatch(ctx context.Context, userID int64) {
	_, err := b.quiz.StartBatch(ctx, userID, "", "")
	if err != nil && !errors.Is(err, domain.ErrDailyLimitReached) && !errors.Is(err, domain.ErrNoQuestions) {
		log.Printf("start batch for %d: %v", userID, err)
	}
}

func (b *Bot) abandon(ctx context.Context, userID int64) {
	if err := b.quiz.Abandon(ctx, userID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		log.Printf("abandon for %d: %v", userID, err)
	}
}

func (b *Bot) setPreference(ctx context.Context, userID int64, language, category string) {
	if err := b.quiz.SetPreferences(ctx, userID, language, category); err != nil {
		log.Printf("preferences for %d: %v", userID, err)
		b.sendText(userID, "⚠️ Could not save your preference, please try again.")
		return
	}
	choice := language
	if choice == "" {
		choice = category
	}
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf("✅ Saved: %s", choice))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🚀 Start Quiz", CallbackStartQuiz)),
	)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("send preference ack: %v", err)
	}
}

func (b *Bot) sendMainMenu(userID int64, firstName string) {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf(
		"👋 Hi %s!\n\nPractice up to 60 questions a day in batches of 10. Every question has 45 seconds on the clock.", name))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚀 Start Quiz", CallbackStartQuiz),
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", CallbackSettings),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("send main menu: %v", err)
	}
}

func (b *Bot) sendSettings(userID int64) {
	var langRow, catRow []tgbotapi.InlineKeyboardButton
	for _, l := range b.languages {
		langRow = append(langRow, tgbotapi.NewInlineKeyboardButtonData(label(l), prefLanguagePrefix+l))
	}
	for _, c := range b.categories {
		catRow = append(catRow, tgbotapi.NewInlineKeyboardButtonData(label(c), prefCategoryPrefix+c))
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(langRow) > 0 {
		rows = append(rows, langRow)
	}
	if len(catRow) > 0 {
		rows = append(rows, catRow)
	}
	msg := tgbotapi.NewMessage(userID, "⚙️ Pick your language and exam category:")
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("send settings: %v", err)
	}
}

func (b *Bot) sendStats(ctx context.Context, userID int64) {
	rec, err := b.quiz.Profile(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		b.sendText(userID, "No progress yet. Start with /quiz.")
		return
	}
	if err != nil {
		log.Printf("profile for %d: %v", userID, err)
		return
	}
	s := rec.Stats
	b.sendText(userID, fmt.Sprintf("📊 Today (%s)\nAnswered: %d\nScore: %d\nAverage pace: %.1fs\nMissed: %d\n\nAll time: %d answered, %d points",
		s.LastActiveDate, s.QuestionsAnsweredToday, s.DailyScore, s.AveragePace, s.Misses(), s.TotalAnswered, s.TotalScore))
}

func (b *Bot) sendText(userID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		log.Printf("send message to %d: %v", userID, err)
	}
}

// expectedAnswerError reports errors the engine already surfaced to the user
// or that drop a duplicate tap.
func expectedAnswerError(err error) bool {
	for _, target := range []error{
		domain.ErrBusy,
		domain.ErrInvalidOption,
		domain.ErrStaleSession,
		domain.ErrSessionNotFound,
		domain.ErrTimeExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func label(s string) string {
	if s == "gk" {
		return "GK"
	}
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
