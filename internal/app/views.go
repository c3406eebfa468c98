package app

import (
	"fmt"
	"strings"

	"daily-quiz-bot/internal/domain"
)

// ExplanationUnavailable is rendered when a question has no full explanation.
const ExplanationUnavailable = "Explanation unavailable for this question."

// QuestionView is what a presenter needs to render or re-render a question.
type QuestionView struct {
	SessionID string
	Index     int
	Total     int
	Question  domain.Question
}

// Feedback is the outcome of one resolved question.
type Feedback struct {
	SessionID string
	Index     int
	Total     int
	Question  domain.Question
	Outcome   domain.Outcome
	Awarded   int
	Score     int
}

// Headline is the verdict line, e.g. "Correct!" or the right option.
func (f Feedback) Headline() string {
	switch f.Outcome {
	case domain.OutcomeCorrect:
		return "✅ Correct!"
	case domain.OutcomeTimeout:
		return "❌ Time Up!\nCorrect: " + f.Question.CorrectOption()
	default:
		return "❌ Wrong!\nCorrect: " + f.Question.CorrectOption()
	}
}

// Explanation is always the full explanation, or an explicit placeholder.
func (f Feedback) Explanation() string {
	if strings.TrimSpace(f.Question.FullExplanation) == "" {
		return ExplanationUnavailable
	}
	return f.Question.FullExplanation
}

// Summary is rendered when a batch completes.
type Summary struct {
	SessionID         string
	Score             int
	Percentage        int
	Correct           int
	Total             int
	CompetitorAverage int
	Verdict           string
	Answered          int
	Limit             int
	NextFrom          int
	NextTo            int
	GoalCompleted     bool
}

// NextBatchLabel describes when the next batch is available.
func (s Summary) NextBatchLabel() string {
	if s.GoalCompleted {
		return "✅ Daily Goal Completed"
	}
	return fmt.Sprintf("🔄 Next: Q%d-%d / %d", s.NextFrom, s.NextTo, s.Limit)
}

// NoticeKind enumerates the informational messages the engine emits.
type NoticeKind string

const (
	NoticeBatchStarted NoticeKind = "batch_started"
	NoticeFallback     NoticeKind = "fallback"
	NoticeLimitReached NoticeKind = "limit_reached"
	NoticeNoQuestions  NoticeKind = "no_questions"
	NoticeNoSession    NoticeKind = "no_session"
	NoticeStaleSession NoticeKind = "stale_session"
	NoticeTimeExceeded NoticeKind = "time_exceeded"
	NoticeAbandoned    NoticeKind = "abandoned"
	NoticeUnavailable  NoticeKind = "unavailable"
)

// Notice is a user-visible signal that is not a question, feedback or summary.
type Notice struct {
	Kind     NoticeKind
	Language string
	Category string
	Count    int
	From     int
	To       int
	Limit    int
}

// Text renders the notice as plain text.
func (n Notice) Text() string {
	switch n.Kind {
	case NoticeBatchStarted:
		return fmt.Sprintf("🚀 Starting Daily Quiz!\n\n📝 Topic: %s (%s)\n⏱️ Questions: %d (Progress: %d-%d / %d)",
			title(n.Category), title(n.Language), n.Count, n.From, n.To, n.Limit)
	case NoticeFallback:
		return fmt.Sprintf("⚠️ No questions found for %s %s. Switching to the default topic.", title(n.Language), title(n.Category))
	case NoticeLimitReached:
		return fmt.Sprintf("🛑 Daily Limit Reached!\n\nYou have completed your %d questions for today. Come back tomorrow for a fresh challenge!", n.Limit)
	case NoticeNoQuestions:
		return "⚠️ No questions are available right now. Please try again later."
	case NoticeNoSession:
		return "No active quiz found. Start a new batch with /quiz."
	case NoticeStaleSession:
		return "This question belongs to an earlier batch. Start a new batch with /quiz."
	case NoticeTimeExceeded:
		return "⏱️ Time limit exceeded!"
	case NoticeAbandoned:
		return "🚪 Quiz stopped. Your progress for today is saved."
	case NoticeUnavailable:
		return "⚠️ Your progress could not be loaded. Please try again in a moment."
	default:
		return string(n.Kind)
	}
}

func title(s string) string {
	if s == "" {
		return s
	}
	if len(s) <= 3 {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
