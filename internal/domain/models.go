package domain

import "time"

// Question models an MCQ question sourced from the catalog.
type Question struct {
	ID              string   `json:"id"`
	Prompt          string   `json:"question"`
	Options         []string `json:"options"`
	AnswerIndex     int      `json:"answer_index"`
	Explanation     string   `json:"explanation,omitempty"`
	FullExplanation string   `json:"full_explanation,omitempty"`
	Topic           string   `json:"topic,omitempty"`
}

// Valid reports whether the question can be presented and scored.
// Duplicate option texts are tolerated.
func (q Question) Valid() bool {
	return q.ID != "" && len(q.Options) > 0 && q.AnswerIndex >= 0 && q.AnswerIndex < len(q.Options)
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
		return ""
	}
	return q.Options[q.AnswerIndex]
}

// TopicOrDefault is the key used for weak spot counters.
func (q Question) TopicOrDefault() string {
	if q.Topic == "" {
		return "General"
	}
	return q.Topic
}

// MessageRef points at a rendered question so it can be edited in place.
type MessageRef struct {
	Transport string `json:"transport"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
}

// IsZero reports whether the reference was never set.
func (r MessageRef) IsZero() bool {
	return r.Transport == "" && r.MessageID == 0
}

// Outcome is the single recorded resolution of a question.
type Outcome string

const (
	OutcomeCorrect Outcome = "correct"
	OutcomeWrong   Outcome = "wrong"
	OutcomeTimeout Outcome = "timeout"
)

// UserRecord is the per-user record held by the persistence store: profile,
// durable stats and the optional active session.
type UserRecord struct {
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	FullName  string     `json:"full_name,omitempty"`
	Language  string     `json:"language_pref,omitempty"`
	Category  string     `json:"exam_category,omitempty"`
	Stats     DailyStats `json:"stats"`
	Session   *Session   `json:"session,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// UserPatch carries profile fields to upsert. Nil fields are left untouched.
type UserPatch struct {
	UserID   int64
	Username *string
	FullName *string
	Language *string
	Category *string
}

// Apply merges the patch into the record.
func (r *UserRecord) Apply(p UserPatch) {
	r.UserID = p.UserID
	if p.Username != nil {
		r.Username = *p.Username
	}
	if p.FullName != nil {
		r.FullName = *p.FullName
	}
	if p.Language != nil {
		r.Language = *p.Language
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
}

// Clone returns a deep copy of the record.
func (r UserRecord) Clone() UserRecord {
	out := r
	out.Stats = r.Stats.Clone()
	if r.Session != nil {
		s := r.Session.Clone()
		out.Session = &s
	}
	return out
}

// StringPtr is a small helper for building patches.
func StringPtr(s string) *string { return &s }

// IntPtr is a small helper for building patches.
func IntPtr(i int) *int { return &i }

// TimePtr is a small helper for building patches.
func TimePtr(t time.Time) *time.Time { return &t }
