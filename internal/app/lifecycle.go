package app

import (
	"context"
	"log"
	"time"

	"daily-quiz-bot/internal/domain"
)

// resolve records the outcome of the current question: it advances the
// index, writes stats with the session-derived sequence number, persists the
// session and renders feedback. selected < 0 with timedOut means no answer.
// Callers hold the user's lock.
func (e *Engine) resolve(ctx context.Context, userID int64, session domain.Session, selected int, timedOut bool) (domain.Session, AnswerResult) {
	index := session.CurrentIndex
	q, _ := session.Current()
	e.timers.cancelIf(userID, timerKey{sessionID: session.ID, index: index})

	now := e.now()
	taken := now.Sub(session.QuestionStartedAt)
	if session.QuestionStartedAt.IsZero() || taken < 0 {
		taken = 0
	}

	outcome := domain.OutcomeWrong
	awarded := 0
	switch {
	case timedOut:
		outcome = domain.OutcomeTimeout
		taken = e.rules.AnswerWindow
	case selected == q.AnswerIndex:
		outcome = domain.OutcomeCorrect
		awarded = e.rules.PointsPerCorrect
	}

	session.CurrentIndex++
	session.Score += awarded
	session.Outcomes = append(session.Outcomes, outcome)

	stats, err := e.users.UpdateStats(ctx, userID, domain.StatsUpdate{
		Correct:     outcome == domain.OutcomeCorrect,
		Points:      awarded,
		TimeTaken:   taken,
		Topic:       q.TopicOrDefault(),
		Sequence:    session.Sequence(),
		SequenceDay: session.BaselineDay,
		Day:         e.rules.Day(now),
	})
	if err != nil {
		log.Printf("update stats for %d failed: %v", userID, err)
	} else {
		session.Stats = &stats
	}

	// The next question has not been shown yet; presentQuestion stamps both.
	session.QuestionStartedAt = time.Time{}
	session.Message = domain.MessageRef{}
	e.sessions.Save(ctx, userID, domain.SessionPatch{
		CurrentIndex:      &session.CurrentIndex,
		Score:             &session.Score,
		Outcomes:          session.Outcomes,
		Stats:             session.Stats,
		QuestionStartedAt: &session.QuestionStartedAt,
		Message:           &session.Message,
	})

	fb := Feedback{
		SessionID: session.ID,
		Index:     index,
		Total:     len(session.Questions),
		Question:  q,
		Outcome:   outcome,
		Awarded:   awarded,
		Score:     session.Score,
	}
	if err := e.presenter.SendFeedback(ctx, userID, fb); err != nil {
		log.Printf("feedback for %d: %v", userID, err)
	}

	return session, AnswerResult{
		SessionID: session.ID,
		Index:     index,
		Outcome:   outcome,
		Awarded:   awarded,
		Score:     session.Score,
		Completed: session.Complete(),
	}
}

// advance pauses so feedback can be read, then moves to the next question
// or finishes the batch.
func (e *Engine) advance(ctx context.Context, userID int64, session domain.Session) {
	e.sleep(e.rules.FeedbackDelay)
	if e.ctx.Err() != nil {
		return
	}
	e.presentQuestion(ctx, userID, session)
}

// presentQuestion starts the countdown of the current question, or finishes
// the batch when none is left.
func (e *Engine) presentQuestion(ctx context.Context, userID int64, session domain.Session) domain.Session {
	if session.Complete() {
		e.finish(ctx, userID, session)
		return session
	}

	started := e.now()
	session.QuestionStartedAt = started
	e.sessions.Save(ctx, userID, domain.SessionPatch{QuestionStartedAt: &started})

	ref, err := e.presenter.SendQuestion(ctx, userID, e.view(session))
	if err != nil {
		log.Printf("send question %d to %d: %v", session.CurrentIndex, userID, err)
	} else {
		session.Message = ref
		e.sessions.Save(ctx, userID, domain.SessionPatch{Message: &ref})
	}

	e.armTimer(userID, session)
	return session
}

// finish closes a completed batch: stats are persisted as authoritative, the
// session is cleared and the summary rendered.
func (e *Engine) finish(ctx context.Context, userID int64, session domain.Session) Summary {
	e.timers.cancel(userID)

	now := e.now()
	day := e.rules.Day(now)

	var keep domain.DailyStats
	if session.Stats != nil {
		keep = session.Stats.Clone()
	}
	answered := keep.AnsweredOn(day)
	if session.BaselineDay == day {
		answered = max(answered, session.AnsweredBaseline+len(session.Questions))
	}
	if keep.LastActiveDate != day {
		keep.DailyScore = 0
		keep.AveragePace = 0
		keep.WeakSpots = nil
		keep.LastActiveDate = day
	}
	keep.QuestionsAnsweredToday = answered

	_ = e.sessions.Delete(ctx, userID, &keep)

	percent := min(max(session.Score, 0), 100)
	average, verdict := e.competitors.Compare(day, userID, percent)

	correct := 0
	for _, o := range session.Outcomes {
		if o == domain.OutcomeCorrect {
			correct++
		}
	}
	summary := Summary{
		SessionID:         session.ID,
		Score:             session.Score,
		Percentage:        percent,
		Correct:           correct,
		Total:             len(session.Questions),
		CompetitorAverage: average,
		Verdict:           verdict,
		Answered:          answered,
		Limit:             e.rules.DailyLimit,
		NextFrom:          answered + 1,
		NextTo:            min(answered+e.rules.BatchSize, e.rules.DailyLimit),
		GoalCompleted:     answered >= e.rules.DailyLimit,
	}
	if err := e.presenter.SendBatchSummary(ctx, userID, summary); err != nil {
		log.Printf("summary for %d: %v", userID, err)
	}
	return summary
}

func (e *Engine) view(session domain.Session) QuestionView {
	q, _ := session.Current()
	return QuestionView{
		SessionID: session.ID,
		Index:     session.CurrentIndex,
		Total:     len(session.Questions),
		Question:  q,
	}
}

// armTimer registers the countdown for the session's current question,
// replacing any other countdown of the user.
func (e *Engine) armTimer(userID int64, session domain.Session) {
	key := timerKey{sessionID: session.ID, index: session.CurrentIndex}
	view := e.view(session)
	ref := session.Message
	started := session.QuestionStartedAt
	e.timers.start(e.ctx, userID, key, func(ctx context.Context) {
		e.runTimer(ctx, userID, key, view, ref, started)
	})
}

// runTimer renders the escalating countdown and resolves a timeout at the
// end of the window. Before every render it re-reads the persisted session
// and stops silently once the question is no longer current.
func (e *Engine) runTimer(ctx context.Context, userID int64, key timerKey, view QuestionView, ref domain.MessageRef, started time.Time) {
	for _, cp := range e.rules.Checkpoints {
		if !e.waitUntil(ctx, started.Add(cp.At)) || !e.stillCurrent(ctx, userID, key) {
			return
		}
		if ref.IsZero() {
			continue
		}
		if err := e.presenter.EditToTimerState(ctx, ref, view, cp.Remaining); err != nil {
			log.Printf("timer render for %d: %v", userID, err)
		}
	}

	if !e.waitUntil(ctx, started.Add(e.rules.AnswerWindow)) || !e.stillCurrent(ctx, userID, key) {
		return
	}
	if !ref.IsZero() {
		if err := e.presenter.EditToTimeUp(ctx, ref, view); err != nil {
			log.Printf("time up render for %d: %v", userID, err)
		}
	}
	e.expire(ctx, userID, key)
}

// expire takes the user's lock on behalf of a countdown. A countdown that
// was cancelled while waiting never resolves anything.
func (e *Engine) expire(ctx context.Context, userID int64, key timerKey) {
	unlock, err := e.locks.acquire(ctx, userID)
	if err != nil {
		return
	}
	defer unlock()
	if ctx.Err() != nil {
		return
	}
	// Resolution outlives this countdown: resolving cancels it and arms the
	// next question's countdown.
	if err := e.expireLocked(e.ctx, userID, key.sessionID, key.index); err != nil && !isStale(err) {
		log.Printf("timeout for %d: %v", userID, err)
	}
}

func (e *Engine) stillCurrent(ctx context.Context, userID int64, key timerKey) bool {
	if ctx.Err() != nil {
		return false
	}
	session, found := e.sessions.Load(ctx, userID)
	return found && session.ID == key.sessionID && session.CurrentIndex == key.index
}

func (e *Engine) waitUntil(ctx context.Context, deadline time.Time) bool {
	d := deadline.Sub(e.now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
