package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"daily-quiz-bot/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const selectUser = `SELECT user_id, username, full_name, language_pref, exam_category, stats, session, updated_at
	FROM quiz_users WHERE user_id = ?`

// UserStore persists user records in a local SQLite file. The pool is
// limited to one connection, so every read-modify-write transaction runs
// alone.
type UserStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewUserStore(path string) (*UserStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &UserStore{db: db, clock: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *UserStore) Close() error {
	return s.db.Close()
}

func (s *UserStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS quiz_users (
		user_id       INTEGER PRIMARY KEY,
		username      TEXT NOT NULL DEFAULT '',
		full_name     TEXT NOT NULL DEFAULT '',
		language_pref TEXT NOT NULL DEFAULT '',
		exam_category TEXT NOT NULL DEFAULT '',
		stats         TEXT NOT NULL DEFAULT '{}',
		session       TEXT,
		updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

func (s *UserStore) GetUser(ctx context.Context, userID int64) (domain.UserRecord, bool, error) {
	rec, err := scanUser(s.db.QueryRowContext(ctx, selectUser, userID))
	if errors.Is(err, sql.ErrNoRows) {
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
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT session FROM quiz_users WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("get session %d: %w", userID, err)
	}
	if !raw.Valid {
		return domain.Session{}, false, nil
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(raw.String), &session); err != nil {
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
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM quiz_users WHERE session IS NOT NULL ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *UserStore) update(ctx context.Context, userID int64, fn func(rec *domain.UserRecord)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO quiz_users (user_id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("ensure user %d: %w", userID, err)
	}
	rec, err := scanUser(tx.QueryRowContext(ctx, selectUser, userID))
	if err != nil {
		return fmt.Errorf("read user %d: %w", userID, err)
	}

	fn(&rec)
	rec.UpdatedAt = s.clock().UTC()

	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return err
	}
	var session sql.NullString
	if rec.Session != nil {
		raw, err := json.Marshal(rec.Session)
		if err != nil {
			return err
		}
		session = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `UPDATE quiz_users
		SET username = ?, full_name = ?, language_pref = ?, exam_category = ?, stats = ?, session = ?, updated_at = ?
		WHERE user_id = ?`,
		rec.Username, rec.FullName, rec.Language, rec.Category, string(stats), session, rec.UpdatedAt, userID)
	if err != nil {
		return fmt.Errorf("write user %d: %w", userID, err)
	}
	return tx.Commit()
}

// scanUser decodes a quiz_users row. A malformed session is dropped so the
// next write overwrites it.
func scanUser(row *sql.Row) (domain.UserRecord, error) {
	var rec domain.UserRecord
	var stats string
	var session sql.NullString
	if err := row.Scan(&rec.UserID, &rec.Username, &rec.FullName, &rec.Language, &rec.Category, &stats, &session, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if stats != "" {
		if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
			return rec, fmt.Errorf("decode stats: %w", err)
		}
	}
	if session.Valid {
		var s domain.Session
		if err := json.Unmarshal([]byte(session.String), &s); err != nil {
			log.Printf("dropping malformed session for %d: %v", rec.UserID, err)
		} else {
			rec.Session = &s
		}
	}
	return rec, nil
}
