package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"daily-quiz-bot/internal/domain"
)

func TestUserStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()

	err := store.SaveSession(ctx, 7, domain.NewSessionPatch(domain.Session{
		ID:        "s1",
		Questions: samplePool(),
	}))
	if err != nil {
		t.Fatalf("save session: %v", err)
	}
	if err := store.SaveSession(ctx, 7, domain.SessionPatch{CurrentIndex: domain.IntPtr(1)}); err != nil {
		t.Fatalf("patch session: %v", err)
	}

	session, ok, err := store.GetSession(ctx, 7)
	if err != nil || !ok {
		t.Fatalf("expected session, ok=%v err=%v", ok, err)
	}
	if session.ID != "s1" || session.CurrentIndex != 1 || len(session.Questions) != 3 {
		t.Fatalf("merge lost fields: %+v", session)
	}

	ids, _ := store.ActiveSessions(ctx)
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("expected active session for 7, got %v", ids)
	}

	day := "2026-10-18"
	if _, err := store.UpdateStats(ctx, 7, domain.StatsUpdate{Correct: true, Points: 10, Day: day}); err != nil {
		t.Fatalf("update stats: %v", err)
	}
	keep := domain.DailyStats{QuestionsAnsweredToday: 10, DailyScore: 10, LastActiveDate: day}
	if err := store.ClearSession(ctx, 7, &keep); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, ok, _ := store.GetSession(ctx, 7); ok {
		t.Fatalf("expected session cleared")
	}
	rec, ok, _ := store.GetUser(ctx, 7)
	if !ok {
		t.Fatalf("expected user record kept")
	}
	if rec.Stats.QuestionsAnsweredToday != 10 || rec.Stats.DailyScore != 10 {
		t.Fatalf("expected stats preserved, got %+v", rec.Stats)
	}
}

func TestUserStoreUpsertKeepsStats(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()

	_, _ = store.UpdateStats(ctx, 1, domain.StatsUpdate{Correct: true, Points: 10, Day: "2026-10-18"})
	if err := store.UpsertUser(ctx, domain.UserPatch{UserID: 1, FullName: domain.StringPtr("Asha")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.UpsertUser(ctx, domain.UserPatch{UserID: 1, Language: domain.StringPtr("hindi")}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rec, _, _ := store.GetUser(ctx, 1)
	if rec.FullName != "Asha" || rec.Language != "hindi" {
		t.Fatalf("profile not merged: %+v", rec)
	}
	if rec.Stats.DailyScore != 10 {
		t.Fatalf("upsert clobbered stats: %+v", rec.Stats)
	}
}

func TestUserStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewUserStore()
	_ = store.SaveSession(ctx, 1, domain.NewSessionPatch(domain.Session{ID: "s1", Questions: samplePool()}))

	session, _, _ := store.GetSession(ctx, 1)
	session.Questions[0].Options[0] = "mutated"

	again, _, _ := store.GetSession(ctx, 1)
	if again.Questions[0].Options[0] == "mutated" {
		t.Fatalf("store leaked internal state")
	}
}

func TestLoadCatalogDir(t *testing.T) {
	dir := t.TempDir()
	content := `[
		{"id": "q1", "question": "2+2?", "options": ["3", "4"], "answer_index": 1, "topic": "Arithmetic"},
		{"id": "q1", "question": "2+2?", "options": ["3", "4"], "answer_index": 1, "full_explanation": "Two and two."},
		{"id": "q2", "question": "broken", "options": [], "answer_index": 0}
	]`
	if err := os.WriteFile(filepath.Join(dir, "english_aptitude.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`[]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	catalog, err := LoadCatalogDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pool, _ := catalog.LoadPool(context.Background(), "English", "Aptitude")
	if len(pool) != 1 {
		t.Fatalf("expected 1 unique valid question, got %d", len(pool))
	}
	if pool[0].FullExplanation != "Two and two." {
		t.Fatalf("expected last duplicate to win, got %+v", pool[0])
	}
	if keys := catalog.Keys(); len(keys) != 1 || keys[0] != "english/aptitude" {
		t.Fatalf("unexpected keys %v", keys)
	}
}
