package domain

import "time"

// DailyStats are the durable per-user counters. The per-day fields roll over
// on the first write after the calendar day changes.
type DailyStats struct {
	QuestionsAnsweredToday int            `json:"questions_answered"`
	DailyScore             int            `json:"daily_score"`
	AveragePace            float64        `json:"average_pace"`
	LastActiveDate         string         `json:"last_active_date"`
	WeakSpots              map[string]int `json:"weak_spots,omitempty"`
	TotalAnswered          int            `json:"total_answered"`
	TotalScore             int            `json:"total_score"`
}

// StatsUpdate describes one scoring event.
type StatsUpdate struct {
	Correct   bool
	Points    int
	TimeTaken time.Duration
	Topic     string
	// Sequence is the session-derived "Nth answered today" number. It is only
	// trusted when SequenceDay matches the day being written.
	Sequence    int
	SequenceDay string
	Day         string
}

// Clone returns a deep copy.
func (s DailyStats) Clone() DailyStats {
	out := s
	if s.WeakSpots != nil {
		out.WeakSpots = make(map[string]int, len(s.WeakSpots))
		for k, v := range s.WeakSpots {
			out.WeakSpots[k] = v
		}
	}
	return out
}

// AnsweredOn returns the questions answered on day; stale counters read as 0.
func (s DailyStats) AnsweredOn(day string) int {
	if s.LastActiveDate != day {
		return 0
	}
	return s.QuestionsAnsweredToday
}

// rollover resets the per-day fields when day differs from the last write.
func (s *DailyStats) rollover(day string) {
	if s.LastActiveDate == day {
		return
	}
	s.QuestionsAnsweredToday = 0
	s.DailyScore = 0
	s.AveragePace = 0
	s.WeakSpots = nil
	s.LastActiveDate = day
}

// Record applies one scoring event and returns the new snapshot. The
// answered-today counter never decreases within a day.
func (s DailyStats) Record(u StatsUpdate) DailyStats {
	out := s.Clone()
	out.rollover(u.Day)

	prev := out.QuestionsAnsweredToday
	next := prev + 1
	if u.Sequence > 0 && u.SequenceDay == u.Day {
		next = max(prev, u.Sequence)
	}
	out.QuestionsAnsweredToday = next

	seconds := u.TimeTaken.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	if next > 0 {
		out.AveragePace = (out.AveragePace*float64(next-1) + seconds) / float64(next)
	}

	if u.Correct {
		out.DailyScore += u.Points
		out.TotalScore += u.Points
	} else {
		if out.WeakSpots == nil {
			out.WeakSpots = make(map[string]int)
		}
		topic := u.Topic
		if topic == "" {
			topic = "General"
		}
		out.WeakSpots[topic]++
	}
	out.TotalAnswered++
	return out
}

// Reconcile merges an authoritative snapshot from a finished session into the
// stored stats. Same-day counters never go backwards.
func (s DailyStats) Reconcile(keep DailyStats) DailyStats {
	if keep.LastActiveDate == "" {
		return s.Clone()
	}
	if s.LastActiveDate != keep.LastActiveDate {
		if s.LastActiveDate > keep.LastActiveDate {
			return s.Clone()
		}
		out := keep.Clone()
		out.TotalAnswered = max(s.TotalAnswered, keep.TotalAnswered)
		out.TotalScore = max(s.TotalScore, keep.TotalScore)
		return out
	}
	out := keep.Clone()
	out.QuestionsAnsweredToday = max(s.QuestionsAnsweredToday, keep.QuestionsAnsweredToday)
	out.DailyScore = max(s.DailyScore, keep.DailyScore)
	out.TotalAnswered = max(s.TotalAnswered, keep.TotalAnswered)
	out.TotalScore = max(s.TotalScore, keep.TotalScore)
	if len(s.WeakSpots) > 0 {
		if out.WeakSpots == nil {
			out.WeakSpots = make(map[string]int)
		}
		for topic, n := range s.WeakSpots {
			out.WeakSpots[topic] = max(out.WeakSpots[topic], n)
		}
	}
	return out
}

// Misses is the total number of wrong or timed-out answers today.
func (s DailyStats) Misses() int {
	n := 0
	for _, v := range s.WeakSpots {
		n += v
	}
	return n
}
