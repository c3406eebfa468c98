package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestSendQuestionReturnsRef(t *testing.T) {
	api := newFakeAPI()
	p := NewPresenter(api)

	ref, err := p.SendQuestion(context.Background(), 42, sampleView())
	if err != nil {
		t.Fatalf("send question: %v", err)
	}
	if ref.Transport != Transport || ref.ChatID != 42 || ref.MessageID != 1 {
		t.Fatalf("unexpected ref %+v", ref)
	}

	msg, ok := api.last().(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("expected message config, got %T", api.last())
	}
	if msg.ParseMode != tgbotapi.ModeMarkdown || !strings.Contains(msg.Text, "*Q3/10*") {
		t.Fatalf("unexpected question render %q (%s)", msg.Text, msg.ParseMode)
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 3 {
		t.Fatalf("expected two options plus stop button, got %+v", msg.ReplyMarkup)
	}
	if data := *kb.InlineKeyboard[1][0].CallbackData; data != "a:s-1:2:1" {
		t.Fatalf("unexpected callback data %q", data)
	}
}

func TestTimerRendersKeepButtonsUntilTimeUp(t *testing.T) {
	api := newFakeAPI()
	p := NewPresenter(api)
	ref := domain.MessageRef{Transport: Transport, ChatID: 42, MessageID: 9}

	for secs, want := range map[int]string{30: "30s Left 🟨🟨🟨⬜⬜", 15: "15s Left 🟧🟧⬜⬜⬜", 5: "5s Left 🟥⬜⬜⬜⬜ HURRY"} {
		if err := p.EditToTimerState(context.Background(), ref, sampleView(), secs); err != nil {
			t.Fatalf("edit: %v", err)
		}
		edit := api.last().(tgbotapi.EditMessageTextConfig)
		if !strings.Contains(edit.Text, want) || edit.ReplyMarkup == nil || edit.MessageID != 9 {
			t.Fatalf("unexpected timer render for %ds: %+v", secs, edit)
		}
	}

	if err := p.EditToTimeUp(context.Background(), ref, sampleView()); err != nil {
		t.Fatalf("time up: %v", err)
	}
	edit := api.last().(tgbotapi.EditMessageTextConfig)
	if !strings.Contains(edit.Text, TimeUpBar) || edit.ReplyMarkup != nil {
		t.Fatalf("expected buttons removed on time up: %+v", edit)
	}
}

func TestMarkdownFallsBackToPlainText(t *testing.T) {
	api := newFakeAPI()
	api.rejectMarkdown = true
	p := NewPresenter(api)

	fb := app.Feedback{
		Question: domain.Question{Options: []string{"a_b", "c"}, AnswerIndex: 0},
		Outcome:  domain.OutcomeWrong,
	}
	if err := p.SendFeedback(context.Background(), 42, fb); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	sent := api.all()
	if len(sent) != 2 {
		t.Fatalf("expected markdown attempt and plain retry, got %d sends", len(sent))
	}
	plain := sent[1].(tgbotapi.MessageConfig)
	if plain.ParseMode != "" || !strings.Contains(plain.Text, "Correct: a_b") || !strings.Contains(plain.Text, app.ExplanationUnavailable) {
		t.Fatalf("unexpected plain render %q", plain.Text)
	}
}

func TestSummaryCarriesNextBatchButton(t *testing.T) {
	api := newFakeAPI()
	p := NewPresenter(api)

	s := app.Summary{Score: 70, Percentage: 70, Correct: 7, Total: 10, CompetitorAverage: 62, Verdict: "🌟 Exceptional!", Answered: 20, Limit: 60, NextFrom: 21, NextTo: 30}
	if err := p.SendBatchSummary(context.Background(), 42, s); err != nil {
		t.Fatalf("summary: %v", err)
	}
	msg := api.last().(tgbotapi.MessageConfig)
	kb := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if kb.InlineKeyboard[0][0].Text != "🔄 Next: Q21-30 / 60" || *kb.InlineKeyboard[0][0].CallbackData != CallbackStartQuiz {
		t.Fatalf("unexpected next button %+v", kb.InlineKeyboard[0][0])
	}
	if !strings.Contains(msg.Text, "7/10 (70%)") || !strings.Contains(msg.Text, "62%") {
		t.Fatalf("unexpected summary %q", msg.Text)
	}
}

func TestParseAnswer(t *testing.T) {
	data := AnswerData("5f0c2d8e-4b1a-4f7e-9a51-2b8c7d6e1f00", 9, 3)
	if len(data) > 64 {
		t.Fatalf("callback data exceeds telegram limit: %d bytes", len(data))
	}
	sid, idx, opt, ok := parseAnswer(data)
	if !ok || sid != "5f0c2d8e-4b1a-4f7e-9a51-2b8c7d6e1f00" || idx != 9 || opt != 3 {
		t.Fatalf("round trip failed: %s %d %d %v", sid, idx, opt, ok)
	}
	for _, bad := range []string{"a:", "a:s:x:1", "a::1:1", "quiz_1_2", "a:s:1"} {
		if _, _, _, ok := parseAnswer(bad); ok {
			t.Fatalf("expected %q rejected", bad)
		}
	}
}

func TestBotRoutesAnswerCallback(t *testing.T) {
	api := newFakeAPI()
	quiz := &fakeQuiz{}
	bot := NewBot(api, quiz, []string{"english", "hindi"}, []string{"aptitude", "gk"})

	bot.handle(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: 42},
		Data: "a:s-1:2:1",
	}})

	calls := quiz.log()
	if len(calls) != 1 || calls[0] != "submit 42 s-1 2 1" {
		t.Fatalf("unexpected calls %v", calls)
	}
	if api.requests() != 1 {
		t.Fatalf("expected callback acknowledged")
	}
}

func TestBotCommandsAndPreferences(t *testing.T) {
	api := newFakeAPI()
	quiz := &fakeQuiz{}
	bot := NewBot(api, quiz, []string{"english", "hindi"}, []string{"aptitude", "gk"})
	ctx := context.Background()

	bot.handle(ctx, commandUpdate(42, "/start"))
	bot.handle(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "1", From: &tgbotapi.User{ID: 42}, Data: "pref_lang_hindi"}})
	bot.handle(ctx, tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "2", From: &tgbotapi.User{ID: 42}, Data: "pref_cat_gk"}})
	bot.handle(ctx, commandUpdate(42, "/quiz"))
	bot.handle(ctx, commandUpdate(42, "/stop"))

	want := []string{
		"register 42 asha Asha Rao",
		"prefs 42 hindi ",
		"prefs 42  gk",
		"start 42",
		"abandon 42",
	}
	if got := quiz.log(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected calls\n got %v\nwant %v", got, want)
	}
}

func TestBotRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI()
	quiz := &fakeQuiz{}
	bot := NewBot(api, quiz, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	api.updates <- commandUpdate(7, "/quiz")
	deadline := time.Now().Add(2 * time.Second)
	for len(quiz.log()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bot did not stop")
	}
	if got := quiz.log(); len(got) != 1 || got[0] != "start 7" {
		t.Fatalf("unexpected calls %v", got)
	}
}

func sampleView() app.QuestionView {
	return app.QuestionView{
		SessionID: "s-1",
		Index:     2,
		Total:     10,
		Question:  domain.Question{ID: "q1", Prompt: "What is 20% of 500?", Options: []string{"50", "100"}, AnswerIndex: 1},
	}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, FirstName: "Asha", LastName: "Rao", UserName: "asha"},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

type fakeAPI struct {
	mu             sync.Mutex
	sent           []tgbotapi.Chattable
	acks           int
	rejectMarkdown bool
	updates        chan tgbotapi.Update
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	if f.rejectMarkdown {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ParseMode != "" {
			return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
		}
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) last() tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) all() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

func (f *fakeAPI) requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acks
}

type fakeQuiz struct {
	mu    sync.Mutex
	calls []string
}

func (q *fakeQuiz) record(format string, args ...any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, fmt.Sprintf(format, args...))
}

func (q *fakeQuiz) log() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.calls...)
}

func (q *fakeQuiz) Register(_ context.Context, userID int64, username, fullName string) error {
	q.record("register %d %s %s", userID, username, fullName)
	return nil
}

func (q *fakeQuiz) SetPreferences(_ context.Context, userID int64, language, category string) error {
	q.record("prefs %d %s %s", userID, language, category)
	return nil
}

func (q *fakeQuiz) Profile(context.Context, int64) (domain.UserRecord, error) {
	return domain.UserRecord{}, domain.ErrUserNotFound
}

func (q *fakeQuiz) StartBatch(_ context.Context, userID int64, _, _ string) (domain.Session, error) {
	q.record("start %d", userID)
	return domain.Session{}, nil
}

func (q *fakeQuiz) SubmitAnswer(_ context.Context, userID int64, sessionID string, index, selected int) (app.AnswerResult, error) {
	q.record("submit %d %s %d %d", userID, sessionID, index, selected)
	return app.AnswerResult{}, nil
}

func (q *fakeQuiz) Abandon(_ context.Context, userID int64) error {
	q.record("abandon %d", userID)
	return nil
}
