package app

import (
	"slices"
	"strings"
	"time"

	"daily-quiz-bot/internal/domain"
)

// Checkpoint is one escalation of the question countdown.
type Checkpoint struct {
	At        time.Duration
	Remaining int
}

// Rules holds the quiz constants.
type Rules struct {
	DailyLimit        int
	BatchSize         int
	FallbackBatchSize int
	PointsPerCorrect  int
	AnswerWindow      time.Duration
	Grace             time.Duration
	Checkpoints       []Checkpoint
	FeedbackDelay     time.Duration
	DefaultLanguage   string
	DefaultCategory   string
	Categories        []string
	Location          *time.Location
}

// DefaultRules returns the production constants: 60 questions a day in
// batches of 10, a 45s window with 2s grace, days counted in UTC+5:30.
func DefaultRules() Rules {
	return Rules{
		DailyLimit:        60,
		BatchSize:         10,
		FallbackBatchSize: 5,
		PointsPerCorrect:  10,
		AnswerWindow:      45 * time.Second,
		Grace:             2 * time.Second,
		Checkpoints: []Checkpoint{
			{At: 15 * time.Second, Remaining: 30},
			{At: 30 * time.Second, Remaining: 15},
			{At: 40 * time.Second, Remaining: 5},
		},
		FeedbackDelay:   1500 * time.Millisecond,
		DefaultLanguage: "english",
		DefaultCategory: "aptitude",
		Categories:      []string{"aptitude", "reasoning", "gk"},
		Location:        time.FixedZone("IST", 5*3600+30*60),
	}
}

// Day returns the quota day of t as YYYY-MM-DD.
func (r Rules) Day(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02")
}

// resolveTopic picks the language and category for a batch: explicit
// arguments first, then stored preferences, then defaults.
func (r Rules) resolveTopic(language, category string, record domain.UserRecord) (string, string) {
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" {
		lang = strings.ToLower(record.Language)
	}
	if lang == "" {
		lang = r.DefaultLanguage
	}

	cat := strings.ToLower(strings.TrimSpace(category))
	if cat == "" {
		cat = strings.ToLower(record.Category)
	}
	if !slices.Contains(r.Categories, cat) {
		cat = r.DefaultCategory
	}
	return lang, cat
}
