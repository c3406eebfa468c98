package rank

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"
)

// Profile is a synthetic cohort member.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Competitor is a cohort member's generated standing for one day.
type Competitor struct {
	ID                string `json:"user_id"`
	Name              string `json:"full_name"`
	Score             int    `json:"total_score"`
	QuestionsAnswered int    `json:"questions_answered"`
	AveragePace       int    `json:"average_pace"`
	Ghost             bool   `json:"is_ghost"`
}

// Model produces deterministic competitor data: the same (day, cohort, user
// score) always yields the same output.
type Model struct {
	cohort   []Profile
	loc      *time.Location
	avgLow   int
	avgHigh  int
	maxTests int
}

func NewModel(cohort []Profile, loc *time.Location) *Model {
	if loc == nil {
		loc = time.UTC
	}
	return &Model{
		cohort:   cohort,
		loc:      loc,
		avgLow:   55,
		avgHigh:  75,
		maxTests: 6,
	}
}

// Compare returns the cohort average for the day and a verdict band for
// percent.
func (m *Model) Compare(day string, userID int64, percent int) (int, string) {
	rng := seeded(fmt.Sprintf("%d_%s", userID, day))
	average := m.avgLow + rng.Intn(m.avgHigh-m.avgLow+1)
	switch {
	case percent > average:
		beats := 80 + rng.Intn(20)
		return average, fmt.Sprintf("🌟 Exceptional! You beat %d%% of peers, top %d%% of students.", beats, 100-beats)
	case percent == average:
		return average, "📊 Good job! You are at the community average."
	default:
		return average, "📉 Below Average. The competition is tough today."
	}
}

// slotProgress is how many tests an active cohort member could have
// finished by this hour.
func slotProgress(hour int) float64 {
	switch {
	case hour < 6:
		return 0.5
	case hour < 9:
		return 1.5
	case hour < 13:
		return 2.5
	case hour < 18:
		return 4.5
	default:
		return 6.0
	}
}

var testWeights = []struct {
	correct int
	weight  int
}{
	{3, 5}, {4, 10}, {5, 15}, {6, 20}, {7, 20}, {8, 15}, {9, 10}, {10, 5},
}

// Leaderboard generates the cohort's standings at time at, adjusted around
// userScore so the user always has someone to chase and someone behind.
func (m *Model) Leaderboard(at time.Time, userScore int) []Competitor {
	local := at.In(m.loc)
	progress := slotProgress(local.Hour())
	day := local.Format("20060102")

	out := make([]Competitor, 0, len(m.cohort))
	for i, p := range m.cohort {
		rng := seeded(p.ID + "_" + day)

		activity := 0.8 + rng.Float64()*0.4
		if float64(i) >= float64(len(m.cohort))*0.8 {
			activity = 0.1
		}
		tests := min(max(int(progress*activity), 0), m.maxTests)

		score := 0
		for t := 0; t < tests; t++ {
			score += weightedCorrect(rng) * 10
		}
		out = append(out, Competitor{
			ID:                p.ID,
			Name:              p.Name,
			Score:             score,
			QuestionsAnswered: score / 10,
			AveragePace:       pace(rng, score),
			Ghost:             true,
		})
	}

	if userScore > 0 && len(out) > 0 {
		sortByScore(out)
		const rabbit, hunter = 3, 8
		if rabbit < len(out) && userScore+30 <= int(progress*100)+50 {
			setScore(&out[rabbit], userScore+30)
		}
		if hunter < len(out) {
			setScore(&out[hunter], userScore-20)
		}
		if out[0].Score < userScore {
			setScore(&out[0], userScore+10)
		}
	}
	sortByScore(out)
	return out
}

func weightedCorrect(rng *rand.Rand) int {
	total := 0
	for _, w := range testWeights {
		total += w.weight
	}
	n := rng.Intn(total)
	for _, w := range testWeights {
		if n < w.weight {
			return w.correct
		}
		n -= w.weight
	}
	return testWeights[len(testWeights)-1].correct
}

func pace(rng *rand.Rand, score int) int {
	p := 32 + rng.Intn(17)
	if score > 300 {
		p = 22 + rng.Intn(14)
	}
	if score > 500 {
		p = 18 + rng.Intn(11)
	}
	if score > 0 && score < 100 {
		if rng.Float64() > 0.5 {
			p = 50 + rng.Intn(31)
		} else {
			p = 12 + rng.Intn(7)
		}
	}
	return p
}

// setScore clamps to [0,600] in multiples of 10 and derives a plausible
// attempt count.
func setScore(c *Competitor, target int) {
	score := min(max(target, 0), 600) / 10 * 10
	c.Score = score
	attempts := min(60, int(float64(score)/8.5))
	if attempts < score/10 {
		attempts = score / 10
	}
	c.QuestionsAnswered = attempts
}

func sortByScore(cs []Competitor) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].ID < cs[j].ID
	})
}

func seeded(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
