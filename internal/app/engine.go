package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"daily-quiz-bot/internal/domain"
	"github.com/google/uuid"
)

// Engine runs per-user quiz batches: it owns the session state machine, the
// per-question countdown tasks and the per-user critical sections.
//
// Every mutation of a user's session or stats happens while holding that
// user's lock. Countdown tasks only observe state and, at expiry, take the
// lock before resolving a timeout.
type Engine struct {
	users       UserStore
	sessions    *SessionStore
	questions   QuestionSupplier
	presenter   Presenter
	competitors CompetitorModel
	rules       Rules
	now         func() time.Time
	newToken    func() string

	locks  *userLocks
	timers *timerRegistry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRules overrides the quiz constants.
func WithRules(r Rules) Option {
	return func(e *Engine) { e.rules = r }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTokenSource overrides session token generation.
func WithTokenSource(next func() string) Option {
	return func(e *Engine) { e.newToken = next }
}

func NewEngine(users UserStore, questions QuestionSupplier, presenter Presenter, competitors CompetitorModel, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		users:       users,
		sessions:    NewSessionStore(users),
		questions:   questions,
		presenter:   presenter,
		competitors: competitors,
		rules:       DefaultRules(),
		now:         time.Now,
		newToken:    uuid.NewString,
		locks:       newUserLocks(),
		timers:      newTimerRegistry(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the constants the engine runs with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// Close cancels every countdown and waits for background work to stop.
func (e *Engine) Close() {
	e.cancel()
	e.timers.close()
	e.wg.Wait()
}

// AnswerResult describes how a submission was resolved.
type AnswerResult struct {
	SessionID string
	Index     int
	Outcome   domain.Outcome
	Awarded   int
	Score     int
	Completed bool
}

// Register records profile details without touching stats.
func (e *Engine) Register(ctx context.Context, userID int64, username, fullName string) error {
	return e.users.UpsertUser(ctx, domain.UserPatch{
		UserID:   userID,
		Username: domain.StringPtr(username),
		FullName: domain.StringPtr(fullName),
	})
}

// SetPreferences stores the user's language and/or category. Empty values
// are left unchanged.
func (e *Engine) SetPreferences(ctx context.Context, userID int64, language, category string) error {
	patch := domain.UserPatch{UserID: userID}
	if l := strings.ToLower(strings.TrimSpace(language)); l != "" {
		patch.Language = &l
	}
	if c := strings.ToLower(strings.TrimSpace(category)); c != "" {
		patch.Category = &c
	}
	return e.users.UpsertUser(ctx, patch)
}

// Profile returns the stored user record.
func (e *Engine) Profile(ctx context.Context, userID int64) (domain.UserRecord, error) {
	record, ok, err := e.users.GetUser(ctx, userID)
	if err != nil {
		return domain.UserRecord{}, err
	}
	if !ok {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}
	return record, nil
}

// StartBatch opens a new batch for the user, replacing any active one, and
// presents its first question.
func (e *Engine) StartBatch(ctx context.Context, userID int64, language, category string) (domain.Session, error) {
	unlock, err := e.locks.acquire(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	defer unlock()

	now := e.now()
	day := e.rules.Day(now)

	// Without the stored counters the daily quota cannot be enforced.
	record, _, err := e.users.GetUser(ctx, userID)
	if err != nil {
		log.Printf("start batch: load user %d: %v", userID, err)
		e.notify(ctx, userID, Notice{Kind: NoticeUnavailable})
		return domain.Session{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	lang, cat := e.rules.resolveTopic(language, category, record)

	answered := record.Stats.AnsweredOn(day)
	if answered >= e.rules.DailyLimit {
		e.notify(ctx, userID, Notice{Kind: NoticeLimitReached, Limit: e.rules.DailyLimit})
		return domain.Session{}, domain.ErrDailyLimitReached
	}
	remaining := e.rules.DailyLimit - answered

	questions := e.sample(ctx, min(e.rules.BatchSize, remaining), lang, cat)
	if len(questions) == 0 {
		e.notify(ctx, userID, Notice{Kind: NoticeFallback, Language: lang, Category: cat})
		lang, cat = e.rules.DefaultLanguage, e.rules.DefaultCategory
		questions = e.sample(ctx, min(e.rules.FallbackBatchSize, remaining), lang, cat)
	}
	if len(questions) == 0 {
		e.notify(ctx, userID, Notice{Kind: NoticeNoQuestions})
		return domain.Session{}, domain.ErrNoQuestions
	}

	stats := record.Stats.Clone()
	session := domain.Session{
		ID:               e.newToken(),
		Language:         lang,
		Category:         cat,
		Questions:        questions,
		AnsweredBaseline: answered,
		BaselineDay:      day,
		Outcomes:         []domain.Outcome{},
		Stats:            &stats,
	}
	if err := e.sessions.Replace(ctx, userID, session); err != nil {
		e.notify(ctx, userID, Notice{Kind: NoticeUnavailable})
		return domain.Session{}, err
	}
	e.timers.cancel(userID)

	e.notify(ctx, userID, Notice{
		Kind:     NoticeBatchStarted,
		Language: lang,
		Category: cat,
		Count:    len(questions),
		From:     answered + 1,
		To:       answered + len(questions),
		Limit:    e.rules.DailyLimit,
	})

	return e.presentQuestion(context.WithoutCancel(ctx), userID, session), nil
}

// sample asks the supplier for questions and drops any malformed records.
func (e *Engine) sample(ctx context.Context, count int, lang, cat string) []domain.Question {
	if count <= 0 {
		return nil
	}
	raw, err := e.questions.GetQuestions(ctx, count, lang, cat)
	if err != nil {
		log.Printf("question supplier %s/%s: %v", lang, cat, err)
		return nil
	}
	out := make([]domain.Question, 0, len(raw))
	for _, q := range raw {
		if q.Valid() {
			out = append(out, q)
		}
	}
	if len(out) > count {
		out = out[:count]
	}
	return out
}

// SubmitAnswer scores the user's selection for question index of sessionID.
// A second submission while one is in flight is dropped with ErrBusy.
func (e *Engine) SubmitAnswer(ctx context.Context, userID int64, sessionID string, index, selected int) (AnswerResult, error) {
	unlock, ok := e.locks.tryAcquire(userID)
	if !ok {
		return AnswerResult{}, domain.ErrBusy
	}
	defer unlock()

	// Rejected taps leave the countdown running.
	session, found := e.sessions.Load(ctx, userID)
	if !found {
		e.notify(ctx, userID, Notice{Kind: NoticeNoSession})
		return AnswerResult{}, domain.ErrSessionNotFound
	}
	if session.ID != sessionID || session.CurrentIndex != index || session.Complete() {
		e.notify(ctx, userID, Notice{Kind: NoticeStaleSession})
		return AnswerResult{}, domain.ErrStaleSession
	}

	q, _ := session.Current()
	if selected < 0 || selected >= len(q.Options) {
		return AnswerResult{}, domain.ErrInvalidOption
	}

	// Stop the countdown before anything is scored.
	e.timers.cancelIf(userID, timerKey{sessionID: sessionID, index: index})

	work := context.WithoutCancel(ctx)
	if e.now().Sub(session.QuestionStartedAt) > e.rules.AnswerWindow+e.rules.Grace {
		e.notify(work, userID, Notice{Kind: NoticeTimeExceeded})
		session, result := e.resolve(work, userID, session, -1, true)
		e.advance(work, userID, session)
		return result, domain.ErrTimeExceeded
	}

	session, result := e.resolve(work, userID, session, selected, false)
	e.advance(work, userID, session)
	return result, nil
}

// ResolveTimeout records question index of sessionID as timed out. It is a
// no-op returning ErrStaleSession when the question was already resolved.
func (e *Engine) ResolveTimeout(ctx context.Context, userID int64, sessionID string, index int) error {
	unlock, err := e.locks.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()
	return e.expireLocked(ctx, userID, sessionID, index)
}

func (e *Engine) expireLocked(ctx context.Context, userID int64, sessionID string, index int) error {
	session, found := e.sessions.Load(ctx, userID)
	if !found || session.ID != sessionID || session.CurrentIndex != index || session.Complete() {
		return domain.ErrStaleSession
	}
	session, _ = e.resolve(ctx, userID, session, -1, true)
	e.advance(ctx, userID, session)
	return nil
}

// Abandon destroys the user's session, keeping stats.
func (e *Engine) Abandon(ctx context.Context, userID int64) error {
	unlock, err := e.locks.acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	e.timers.cancel(userID)
	session, found := e.sessions.Load(ctx, userID)
	if !found {
		e.notify(ctx, userID, Notice{Kind: NoticeNoSession})
		return domain.ErrSessionNotFound
	}
	if err := e.sessions.Delete(ctx, userID, session.Stats); err != nil {
		return err
	}
	e.notify(ctx, userID, Notice{Kind: NoticeAbandoned})
	return nil
}

// Recover re-arms countdowns for sessions persisted by a previous process.
// Questions whose window already elapsed are resolved as timeouts.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	lister, ok := e.users.(SessionLister)
	if !ok {
		return 0, nil
	}
	ids, err := lister.ActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		e.wg.Add(1)
		go func(userID int64) {
			defer e.wg.Done()
			e.recoverUser(userID)
		}(id)
	}
	return len(ids), nil
}

func (e *Engine) recoverUser(userID int64) {
	ctx := e.ctx
	unlock, err := e.locks.acquire(ctx, userID)
	if err != nil {
		return
	}
	defer unlock()

	if _, armed := e.timers.current(userID); armed {
		return
	}
	session, found := e.sessions.Load(ctx, userID)
	if !found {
		return
	}

	switch {
	case session.Complete():
		e.finish(ctx, userID, session)
	case session.QuestionStartedAt.IsZero() || session.Message.IsZero():
		e.presentQuestion(ctx, userID, session)
	case e.now().Sub(session.QuestionStartedAt) >= e.rules.AnswerWindow:
		view := e.view(session)
		if err := e.presenter.EditToTimeUp(ctx, session.Message, view); err != nil {
			log.Printf("recover %d: time up render: %v", userID, err)
		}
		session, _ = e.resolve(ctx, userID, session, -1, true)
		e.advance(ctx, userID, session)
	default:
		e.armTimer(userID, session)
	}
}

func (e *Engine) notify(ctx context.Context, userID int64, n Notice) {
	if err := e.presenter.SendNotice(ctx, userID, n); err != nil {
		log.Printf("notice %s for %d: %v", n.Kind, userID, err)
	}
}

// sleep waits for d unless the engine is closing.
func (e *Engine) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.ctx.Done():
	}
}

func isStale(err error) bool {
	return errors.Is(err, domain.ErrStaleSession)
}
