package app

import (
	"context"

	"daily-quiz-bot/internal/domain"
)

// UserStore is the persistence store: one record per user holding durable
// stats and the ephemeral session. Implementations are not required to be
// transactional across calls.
type UserStore interface {
	GetUser(ctx context.Context, userID int64) (domain.UserRecord, bool, error)
	UpsertUser(ctx context.Context, patch domain.UserPatch) error
	// UpdateStats performs a read-modify-write of the user's daily stats and
	// returns the new snapshot.
	UpdateStats(ctx context.Context, userID int64, update domain.StatsUpdate) (domain.DailyStats, error)
	// SaveSession merges patch into the stored session.
	SaveSession(ctx context.Context, userID int64, patch domain.SessionPatch) error
	GetSession(ctx context.Context, userID int64) (domain.Session, bool, error)
	// ClearSession removes the session fields. Stats are kept; when keep is
	// set it is reconciled into the stored stats first.
	ClearSession(ctx context.Context, userID int64, keep *domain.DailyStats) error
}

// SessionLister is implemented by stores that can enumerate users with an
// active session. It is used to re-arm timers after a restart.
type SessionLister interface {
	ActiveSessions(ctx context.Context) ([]int64, error)
}

// QuestionSupplier returns a random unique sample of up to count questions.
// An unknown language or category yields an empty slice, not an error.
type QuestionSupplier interface {
	GetQuestions(ctx context.Context, count int, language, category string) ([]domain.Question, error)
}

// Presenter renders engine output to a chat transport. Implementations own
// their formatting fallbacks; the engine only logs returned errors.
type Presenter interface {
	SendQuestion(ctx context.Context, userID int64, q QuestionView) (domain.MessageRef, error)
	EditToTimerState(ctx context.Context, ref domain.MessageRef, q QuestionView, secondsRemaining int) error
	EditToTimeUp(ctx context.Context, ref domain.MessageRef, q QuestionView) error
	SendFeedback(ctx context.Context, userID int64, fb Feedback) error
	SendBatchSummary(ctx context.Context, userID int64, s Summary) error
	SendNotice(ctx context.Context, userID int64, n Notice) error
}

// CompetitorModel compares a finished batch against the synthetic cohort.
type CompetitorModel interface {
	Compare(day string, userID int64, percent int) (average int, verdict string)
}
