package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"daily-quiz-bot/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const selectUser = `SELECT user_id, username, full_name, language_pref, exam_category, stats, session, updated_at
	FROM quiz_users WHERE user_id=$1`

// UserStore persists user records in the quiz_users table. Stats and the
// session are JSONB columns; every write locks the row (SELECT ... FOR
// UPDATE) for its read-modify-write.
type UserStore struct {
	pool  *pgxpool.Pool
	clock func() time.Time
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool, clock: time.Now}
}

func (s *UserStore) GetUser(ctx context.Context, userID int64) (domain.UserRecord, bool, error) {
	rec, err := scanUser(s.pool.QueryRow(ctx, selectUser, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserRecord{UserID: userID}, false, nil
	}
	if err != nil {
		return domain.UserRecord{}, false, fmt.Errorf("get user %d: %w", userID, err)
	}
	return rec, true, nil
}

func (s *UserStore) UpsertUser(ctx context.Context, patch domain.UserPatch) error {
	return s.update(ctx, patch.UserID, func(rec *domain.UserRecord) {
		rec.Apply(patch)
	})
}

func (s *UserStore) UpdateStats(ctx context.Context, userID int64, update domain.StatsUpdate) (domain.DailyStats, error) {
	var out domain.DailyStats
	err := s.update(ctx, userID, func(rec *domain.UserRecord) {
		rec.Stats = rec.Stats.Record(update)
		out = rec.Stats.Clone()
	})
	return out, err
}

func (s *UserStore) SaveSession(ctx context.Context, userID int64, patch domain.SessionPatch) error {
	return s.update(ctx, userID, func(rec *domain.UserRecord) {
		var base domain.Session
		if rec.Session != nil {
			base = *rec.Session
		}
		merged := base.Merge(patch)
		rec.Session = &merged
	})
}

func (s *UserStore) GetSession(ctx context.Context, userID int64) (domain.Session, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT session FROM quiz_users WHERE user_id=$1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("get session %d: %w", userID, err)
	}
	if raw == nil {
		return domain.Session{}, false, nil
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session %d: %w", userID, err)
	}
	return session, true, nil
}

func (s *UserStore) ClearSession(ctx context.Context, userID int64, keep *domain.DailyStats) error {
	return s.update(ctx, userID, func(rec *domain.UserRecord) {
		if keep != nil {
			rec.Stats = rec.Stats.Reconcile(*keep)
		}
		rec.Session = nil
	})
}

// ActiveSessions lists users that currently have a session.
func (s *UserStore) ActiveSessions(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM quiz_users WHERE session IS NOT NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan active session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *UserStore) update(ctx context.Context, userID int64, fn func(rec *domain.UserRecord)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO quiz_users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	rec, err := scanUser(tx.QueryRow(ctx, selectUser+` FOR UPDATE`, userID))
	if err != nil {
		return fmt.Errorf("lock user %d: %w", userID, err)
	}

	fn(&rec)
	rec.UpdatedAt = s.clock()

	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return err
	}
	var session []byte
	if rec.Session != nil {
		if session, err = json.Marshal(rec.Session); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `UPDATE quiz_users
		SET username=$2, full_name=$3, language_pref=$4, exam_category=$5, stats=$6, session=$7, updated_at=$8
		WHERE user_id=$1`,
		userID, rec.Username, rec.FullName, rec.Language, rec.Category, stats, session, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("write user %d: %w", userID, err)
	}
	return tx.Commit(ctx)
}

// scanUser decodes a quiz_users row. A malformed session is dropped so the
// next write overwrites it; GetSession reports it as an error instead.
func scanUser(row pgx.Row) (domain.UserRecord, error) {
	var rec domain.UserRecord
	var stats, session []byte
	if err := row.Scan(&rec.UserID, &rec.Username, &rec.FullName, &rec.Language, &rec.Category, &stats, &session, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &rec.Stats); err != nil {
			return rec, fmt.Errorf("decode stats: %w", err)
		}
	}
	if session != nil {
		var s domain.Session
		if err := json.Unmarshal(session, &s); err != nil {
			log.Printf("dropping malformed session for %d: %v", rec.UserID, err)
		} else {
			rec.Session = &s
		}
	}
	return rec, nil
}
