package domain

import "math/rand"

// Sample returns up to count distinct questions drawn at random from pool.
func Sample(pool []Question, count int, rnd *rand.Rand) []Question {
	if count <= 0 || len(pool) == 0 {
		return nil
	}
	if count > len(pool) {
		count = len(pool)
	}
	out := make([]Question, 0, count)
	for _, i := range rnd.Perm(len(pool))[:count] {
		out = append(out, pool[i])
	}
	return out
}

// Dedupe keeps the last record for each question id and drops invalid ones,
// preserving first-seen order.
func Dedupe(raw []Question) (kept []Question, dropped int) {
	index := make(map[string]int, len(raw))
	for _, q := range raw {
		if !q.Valid() {
			dropped++
			continue
		}
		if i, ok := index[q.ID]; ok {
			kept[i] = q
			continue
		}
		index[q.ID] = len(kept)
		kept = append(kept, q)
	}
	return kept, dropped
}
