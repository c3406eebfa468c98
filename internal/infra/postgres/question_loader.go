package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"daily-quiz-bot/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads question pools stored as JSONB rows.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

// LoadPool returns every valid question of a language/category. An unknown
// pair yields an empty slice.
func (l *QuestionLoader) LoadPool(ctx context.Context, language, category string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, data FROM questions WHERE language=$1 AND category=$2 ORDER BY id`,
		strings.ToLower(language), strings.ToLower(category))
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Printf("skipping question %s: %v", id, err)
			continue
		}
		if q.ID == "" {
			q.ID = id
		}
		if !q.Valid() {
			log.Printf("skipping malformed question %s", id)
			continue
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

// UpsertQuestions writes a pool, replacing rows with the same id.
func (l *QuestionLoader) UpsertQuestions(ctx context.Context, language, category string, questions []domain.Question) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			return 0, fmt.Errorf("marshal question %s: %w", q.ID, err)
		}
		batch.Queue(`INSERT INTO questions (id, language, category, data) VALUES ($1, $2, $3, $4)
			ON CONFLICT (language, category, id) DO UPDATE SET data=EXCLUDED.data`,
			q.ID, strings.ToLower(language), strings.ToLower(category), data)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := l.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("upsert questions: %w", err)
		}
	}
	return batch.Len(), nil
}
