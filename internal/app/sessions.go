package app

import (
	"context"
	"fmt"
	"log"

	"daily-quiz-bot/internal/domain"
)

// SessionStore loads and saves the ephemeral session part of a user record.
// Read failures and malformed records read as "no session"; write failures
// are logged.
type SessionStore struct {
	users UserStore
}

func NewSessionStore(users UserStore) *SessionStore {
	return &SessionStore{users: users}
}

// Load returns the validated session of a user.
func (s *SessionStore) Load(ctx context.Context, userID int64) (domain.Session, bool) {
	session, ok, err := s.users.GetSession(ctx, userID)
	if err != nil {
		log.Printf("session lookup for %d failed: %v", userID, err)
		return domain.Session{}, false
	}
	if !ok {
		return domain.Session{}, false
	}
	if err := session.Validate(); err != nil {
		log.Printf("discarding session for %d: %v", userID, err)
		return domain.Session{}, false
	}
	return session, true
}

// Save merges patch into the stored session. Failures are logged only.
func (s *SessionStore) Save(ctx context.Context, userID int64, patch domain.SessionPatch) {
	if err := s.users.SaveSession(ctx, userID, patch); err != nil {
		log.Printf("session save for %d failed: %v", userID, err)
	}
}

// Replace overwrites every session field with session.
func (s *SessionStore) Replace(ctx context.Context, userID int64, session domain.Session) error {
	if err := s.users.SaveSession(ctx, userID, domain.NewSessionPatch(session)); err != nil {
		log.Printf("session replace for %d failed: %v", userID, err)
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Delete clears the session and keeps the stats, reconciling keep into them.
func (s *SessionStore) Delete(ctx context.Context, userID int64, keep *domain.DailyStats) error {
	if err := s.users.ClearSession(ctx, userID, keep); err != nil {
		log.Printf("session clear for %d failed: %v", userID, err)
		return err
	}
	return nil
}
