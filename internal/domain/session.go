package domain

import (
	"fmt"
	"time"
)

// Session tracks one user's progress through a batch.
type Session struct {
	ID                string      `json:"session_id"`
	Language          string      `json:"language"`
	Category          string      `json:"category"`
	Questions         []Question  `json:"questions"`
	CurrentIndex      int         `json:"current_index"`
	Score             int         `json:"score"`
	QuestionStartedAt time.Time   `json:"question_started_at"`
	AnsweredBaseline  int         `json:"answered_baseline"`
	BaselineDay       string      `json:"baseline_day"`
	Outcomes          []Outcome   `json:"outcomes,omitempty"`
	Message           MessageRef  `json:"message"`
	Stats             *DailyStats `json:"stats,omitempty"`
}

// Complete reports whether every question has been resolved.
func (s Session) Complete() bool {
	return s.CurrentIndex >= len(s.Questions)
}

// Current returns the question awaiting an answer.
func (s Session) Current() (Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// Sequence is the "Nth question answered today" number of the last resolved
// question, derived from the baseline snapshot.
func (s Session) Sequence() int {
	return s.AnsweredBaseline + s.CurrentIndex
}

// Validate checks the invariants a decoded session must hold.
func (s Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidSession)
	}
	if len(s.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidSession)
	}
	if s.CurrentIndex < 0 || s.CurrentIndex > len(s.Questions) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidSession, s.CurrentIndex)
	}
	if len(s.Outcomes) > s.CurrentIndex {
		return fmt.Errorf("%w: %d outcomes for index %d", ErrInvalidSession, len(s.Outcomes), s.CurrentIndex)
	}
	for i, q := range s.Questions {
		if !q.Valid() {
			return fmt.Errorf("%w: question %d malformed", ErrInvalidSession, i)
		}
	}
	if s.Score < 0 || s.AnsweredBaseline < 0 {
		return fmt.Errorf("%w: negative counters", ErrInvalidSession)
	}
	return nil
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.Questions != nil {
		out.Questions = make([]Question, len(s.Questions))
		for i, q := range s.Questions {
			q.Options = append([]string(nil), q.Options...)
			out.Questions[i] = q
		}
	}
	if s.Outcomes != nil {
		out.Outcomes = append([]Outcome(nil), s.Outcomes...)
	}
	if s.Stats != nil {
		st := s.Stats.Clone()
		out.Stats = &st
	}
	return out
}

// SessionPatch is a partial session update. A set field replaces the stored
// value; a nil field keeps it.
type SessionPatch struct {
	ID                *string
	Language          *string
	Category          *string
	Questions         []Question
	CurrentIndex      *int
	Score             *int
	QuestionStartedAt *time.Time
	AnsweredBaseline  *int
	BaselineDay       *string
	Outcomes          []Outcome
	Message           *MessageRef
	Stats             *DailyStats
}

// NewSessionPatch builds a patch that sets every field of s.
func NewSessionPatch(s Session) SessionPatch {
	p := SessionPatch{
		ID:                &s.ID,
		Language:          &s.Language,
		Category:          &s.Category,
		Questions:         s.Questions,
		CurrentIndex:      &s.CurrentIndex,
		Score:             &s.Score,
		QuestionStartedAt: &s.QuestionStartedAt,
		AnsweredBaseline:  &s.AnsweredBaseline,
		BaselineDay:       &s.BaselineDay,
		Outcomes:          s.Outcomes,
		Message:           &s.Message,
		Stats:             s.Stats,
	}
	if p.Outcomes == nil {
		p.Outcomes = []Outcome{}
	}
	return p
}

// Merge applies the patch on top of s and returns the result. s is not
// modified.
func (s Session) Merge(p SessionPatch) Session {
	out := s.Clone()
	if p.ID != nil {
		out.ID = *p.ID
	}
	if p.Language != nil {
		out.Language = *p.Language
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Questions != nil {
		out.Questions = Session{Questions: p.Questions}.Clone().Questions
	}
	if p.CurrentIndex != nil {
		out.CurrentIndex = *p.CurrentIndex
	}
	if p.Score != nil {
		out.Score = *p.Score
	}
	if p.QuestionStartedAt != nil {
		out.QuestionStartedAt = *p.QuestionStartedAt
	}
	if p.AnsweredBaseline != nil {
		out.AnsweredBaseline = *p.AnsweredBaseline
	}
	if p.BaselineDay != nil {
		out.BaselineDay = *p.BaselineDay
	}
	if p.Outcomes != nil {
		out.Outcomes = append([]Outcome{}, p.Outcomes...)
	}
	if p.Message != nil {
		out.Message = *p.Message
	}
	if p.Stats != nil {
		st := p.Stats.Clone()
		out.Stats = &st
	}
	return out
}
