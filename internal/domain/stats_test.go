package domain

import (
	"testing"
	"time"
)

func TestRecordRollsOverOnNewDay(t *testing.T) {
	stats := DailyStats{
		QuestionsAnsweredToday: 42,
		DailyScore:             300,
		AveragePace:            20,
		LastActiveDate:         "2026-10-17",
		WeakSpots:              map[string]int{"Algebra": 3},
		TotalAnswered:          100,
		TotalScore:             700,
	}

	next := stats.Record(StatsUpdate{Correct: true, Points: 10, TimeTaken: 8 * time.Second, Day: "2026-10-18"})

	if next.QuestionsAnsweredToday != 1 {
		t.Fatalf("expected counter reset to 1, got %d", next.QuestionsAnsweredToday)
	}
	if next.DailyScore != 10 {
		t.Fatalf("expected daily score 10, got %d", next.DailyScore)
	}
	if len(next.WeakSpots) != 0 {
		t.Fatalf("expected weak spots reset, got %v", next.WeakSpots)
	}
	if next.AveragePace != 8 {
		t.Fatalf("expected pace 8, got %v", next.AveragePace)
	}
	if next.TotalAnswered != 101 || next.TotalScore != 710 {
		t.Fatalf("lifetime counters wrong: %+v", next)
	}
	if stats.QuestionsAnsweredToday != 42 {
		t.Fatalf("receiver mutated")
	}
}

func TestRecordForcedSequenceNeverDecreases(t *testing.T) {
	day := "2026-10-18"
	stats := DailyStats{QuestionsAnsweredToday: 15, LastActiveDate: day}

	next := stats.Record(StatsUpdate{Sequence: 12, SequenceDay: day, Day: day})
	if next.QuestionsAnsweredToday != 15 {
		t.Fatalf("expected counter to stay at 15, got %d", next.QuestionsAnsweredToday)
	}

	next = next.Record(StatsUpdate{Sequence: 21, SequenceDay: day, Day: day})
	if next.QuestionsAnsweredToday != 21 {
		t.Fatalf("expected forced sequence 21, got %d", next.QuestionsAnsweredToday)
	}
}

func TestRecordIgnoresSequenceFromPreviousDay(t *testing.T) {
	stats := DailyStats{QuestionsAnsweredToday: 55, LastActiveDate: "2026-10-17"}

	next := stats.Record(StatsUpdate{Sequence: 56, SequenceDay: "2026-10-17", Day: "2026-10-18"})
	if next.QuestionsAnsweredToday != 1 {
		t.Fatalf("expected fresh count 1, got %d", next.QuestionsAnsweredToday)
	}
}

func TestRecordWeakSpotsOnlyOnMisses(t *testing.T) {
	day := "2026-10-18"
	var stats DailyStats
	stats = stats.Record(StatsUpdate{Correct: true, Points: 10, Topic: "Algebra", Day: day})
	stats = stats.Record(StatsUpdate{Topic: "Geometry", Day: day})
	stats = stats.Record(StatsUpdate{Topic: "Geometry", Day: day})
	stats = stats.Record(StatsUpdate{Topic: "Percentages", Day: day})

	if stats.DailyScore != 10 {
		t.Fatalf("expected daily score 10, got %d", stats.DailyScore)
	}
	if stats.WeakSpots["Algebra"] != 0 || stats.WeakSpots["Geometry"] != 2 || stats.WeakSpots["Percentages"] != 1 {
		t.Fatalf("unexpected weak spots %v", stats.WeakSpots)
	}
	if stats.Misses() != 3 {
		t.Fatalf("expected 3 misses, got %d", stats.Misses())
	}
}

func TestRecordRollingPace(t *testing.T) {
	day := "2026-10-18"
	var stats DailyStats
	stats = stats.Record(StatsUpdate{TimeTaken: 10 * time.Second, Day: day})
	stats = stats.Record(StatsUpdate{TimeTaken: 20 * time.Second, Day: day})
	if stats.AveragePace != 15 {
		t.Fatalf("expected pace 15, got %v", stats.AveragePace)
	}
}

func TestReconcileKeepsHigherSameDayCounters(t *testing.T) {
	day := "2026-10-18"
	stored := DailyStats{QuestionsAnsweredToday: 12, DailyScore: 90, LastActiveDate: day, TotalAnswered: 40}
	keep := DailyStats{QuestionsAnsweredToday: 10, DailyScore: 80, LastActiveDate: day, TotalAnswered: 38}

	out := stored.Reconcile(keep)
	if out.QuestionsAnsweredToday != 12 || out.DailyScore != 90 || out.TotalAnswered != 40 {
		t.Fatalf("reconcile went backwards: %+v", out)
	}

	keep.QuestionsAnsweredToday = 20
	out = stored.Reconcile(keep)
	if out.QuestionsAnsweredToday != 20 {
		t.Fatalf("expected authoritative 20, got %d", out.QuestionsAnsweredToday)
	}
}

func TestReconcileIgnoresOlderDay(t *testing.T) {
	stored := DailyStats{QuestionsAnsweredToday: 3, LastActiveDate: "2026-10-18"}
	keep := DailyStats{QuestionsAnsweredToday: 50, LastActiveDate: "2026-10-17"}

	out := stored.Reconcile(keep)
	if out.QuestionsAnsweredToday != 3 || out.LastActiveDate != "2026-10-18" {
		t.Fatalf("expected newer stored stats kept, got %+v", out)
	}
}

func TestAnsweredOn(t *testing.T) {
	stats := DailyStats{QuestionsAnsweredToday: 30, LastActiveDate: "2026-10-17"}
	if stats.AnsweredOn("2026-10-18") != 0 {
		t.Fatalf("expected stale counter to read as 0")
	}
	if stats.AnsweredOn("2026-10-17") != 30 {
		t.Fatalf("expected 30")
	}
}
