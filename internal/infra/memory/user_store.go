package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"daily-quiz-bot/internal/domain"
)

// UserStore is an in-memory implementation of app.UserStore. Records are
// deep-copied on the way in and out.
type UserStore struct {
	mu    sync.Mutex
	users map[int64]*domain.UserRecord
	clock func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[int64]*domain.UserRecord),
		clock: time.Now,
	}
}

func (s *UserStore) record(userID int64) *domain.UserRecord {
	rec, ok := s.users[userID]
	if !ok {
		rec = &domain.UserRecord{UserID: userID}
		s.users[userID] = rec
	}
	return rec
}

func (s *UserStore) GetUser(_ context.Context, userID int64) (domain.UserRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		return domain.UserRecord{UserID: userID}, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *UserStore) UpsertUser(_ context.Context, patch domain.UserPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(patch.UserID)
	rec.Apply(patch)
	rec.UpdatedAt = s.clock()
	return nil
}

func (s *UserStore) UpdateStats(_ context.Context, userID int64, update domain.StatsUpdate) (domain.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(userID)
	rec.Stats = rec.Stats.Record(update)
	rec.UpdatedAt = s.clock()
	return rec.Stats.Clone(), nil
}

func (s *UserStore) SaveSession(_ context.Context, userID int64, patch domain.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(userID)
	var base domain.Session
	if rec.Session != nil {
		base = *rec.Session
	}
	merged := base.Merge(patch)
	rec.Session = &merged
	rec.UpdatedAt = s.clock()
	return nil
}

func (s *UserStore) GetSession(_ context.Context, userID int64) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok || rec.Session == nil {
		return domain.Session{}, false, nil
	}
	return rec.Session.Clone(), true, nil
}

func (s *UserStore) ClearSession(_ context.Context, userID int64, keep *domain.DailyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[userID]
	if !ok {
		if keep == nil {
			return nil
		}
		rec = s.record(userID)
	}
	if keep != nil {
		rec.Stats = rec.Stats.Reconcile(*keep)
	}
	rec.Session = nil
	rec.UpdatedAt = s.clock()
	return nil
}

// ActiveSessions lists users that currently have a session.
func (s *UserStore) ActiveSessions(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0)
	for id, rec := range s.users {
		if rec.Session != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
