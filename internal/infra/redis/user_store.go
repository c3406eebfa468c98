package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"daily-quiz-bot/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldProfile = "profile"
	fieldStats   = "stats"
	fieldSession = "session"

	activeSessionsKey = "quiz:sessions:active"
	maxTxRetries      = 16
)

// UserStore keeps one hash per user:
// HSET quiz:user:{id} profile {json} stats {json} session {json}
// Writes are optimistic read-modify-write transactions (WATCH/MULTI) so
// concurrent processes never lose a stats increment.
type UserStore struct {
	client *redis.Client
	clock  func() time.Time
}

func NewUserStore(client *redis.Client) *UserStore {
	return &UserStore{client: client, clock: time.Now}
}

type profile struct {
	Username  string    `json:"username,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Language  string    `json:"language_pref,omitempty"`
	Category  string    `json:"exam_category,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *UserStore) GetUser(ctx context.Context, userID int64) (domain.UserRecord, bool, error) {
	rec, found, err := s.read(ctx, s.client, userID)
	if err != nil {
		return domain.UserRecord{}, false, err
	}
	return rec, found, nil
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
	raw, err := s.client.HGet(ctx, s.userKey(userID), fieldSession).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("get session %d: %w", userID, err)
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
	members, err := s.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// update runs fn against the stored record inside a WATCH transaction and
// retries when another writer got there first.
func (s *UserStore) update(ctx context.Context, userID int64, fn func(rec *domain.UserRecord)) error {
	key := s.userKey(userID)
	txf := func(tx *redis.Tx) error {
		rec, _, err := s.read(ctx, tx, userID)
		if err != nil {
			return err
		}
		fn(&rec)
		rec.UpdatedAt = s.clock()

		values, err := encode(rec)
		if err != nil {
			return err
		}
		member := strconv.FormatInt(userID, 10)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, values...)
			if rec.Session == nil {
				pipe.HDel(ctx, key, fieldSession)
				pipe.SRem(ctx, activeSessionsKey, member)
			} else {
				pipe.SAdd(ctx, activeSessionsKey, member)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update user %d: %w", userID, err)
		}
		return nil
	}
	return fmt.Errorf("update user %d: %w", userID, redis.TxFailedErr)
}

// read loads a user hash. A malformed session is dropped so the next write
// overwrites it; GetSession reports it as an error instead.
func (s *UserStore) read(ctx context.Context, c redis.Cmdable, userID int64) (domain.UserRecord, bool, error) {
	rec := domain.UserRecord{UserID: userID}
	fields, err := c.HGetAll(ctx, s.userKey(userID)).Result()
	if err != nil {
		return rec, false, fmt.Errorf("read user %d: %w", userID, err)
	}
	if len(fields) == 0 {
		return rec, false, nil
	}

	if raw, ok := fields[fieldProfile]; ok {
		var p profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return rec, false, fmt.Errorf("decode profile %d: %w", userID, err)
		}
		rec.Username, rec.FullName = p.Username, p.FullName
		rec.Language, rec.Category = p.Language, p.Category
		rec.UpdatedAt = p.UpdatedAt
	}
	if raw, ok := fields[fieldStats]; ok {
		if err := json.Unmarshal([]byte(raw), &rec.Stats); err != nil {
			return rec, false, fmt.Errorf("decode stats %d: %w", userID, err)
		}
	}
	if raw, ok := fields[fieldSession]; ok {
		var session domain.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			log.Printf("dropping malformed session for %d: %v", userID, err)
		} else {
			rec.Session = &session
		}
	}
	return rec, true, nil
}

func encode(rec domain.UserRecord) ([]interface{}, error) {
	p, err := json.Marshal(profile{
		Username:  rec.Username,
		FullName:  rec.FullName,
		Language:  rec.Language,
		Category:  rec.Category,
		UpdatedAt: rec.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return nil, err
	}
	values := []interface{}{fieldProfile, p, fieldStats, stats}
	if rec.Session != nil {
		session, err := json.Marshal(rec.Session)
		if err != nil {
			return nil, err
		}
		values = append(values, fieldSession, session)
	}
	return values, nil
}

func (s *UserStore) userKey(userID int64) string {
	return "quiz:user:" + strconv.FormatInt(userID, 10)
}
