package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
	"daily-quiz-bot/internal/rank"
)

// Leaderboard generates the synthetic cohort standings.
type Leaderboard interface {
	Leaderboard(at time.Time, userScore int) []rank.Competitor
}

// APIHandler serves the read-only dashboard endpoints.
type APIHandler struct {
	quiz  Quiz
	board Leaderboard
	rules app.Rules
	now   func() time.Time
}

func NewAPIHandler(quiz Quiz, board Leaderboard, rules app.Rules) *APIHandler {
	return &APIHandler{quiz: quiz, board: board, rules: rules, now: time.Now}
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/user_data", h.UserData)
	mux.HandleFunc("/api/leaderboard", h.Leaderboard)
}

type userDataResponse struct {
	UserID            int64          `json:"user_id"`
	FullName          string         `json:"full_name"`
	Language          string         `json:"language_pref"`
	Category          string         `json:"exam_category"`
	Day               string         `json:"day"`
	QuestionsAnswered int            `json:"questions_answered"`
	DailyLimit        int            `json:"daily_limit"`
	DailyScore        int            `json:"daily_score"`
	PotentialScore    int            `json:"potential_score"`
	AveragePace       float64        `json:"average_pace"`
	WeakSpots         map[string]int `json:"weak_spots"`
	TotalAnswered     int            `json:"total_answered"`
	TotalScore        int            `json:"total_score"`
	ActiveSession     bool           `json:"active_session"`
}

type leaderboardEntry struct {
	rank.Competitor
	Rank int  `json:"rank"`
	You  bool `json:"is_you,omitempty"`
}

type leaderboardResponse struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Entries     []leaderboardEntry `json:"entries"`
}

// UserData returns the user's profile and today's progress. Daily counters
// from a previous day read as zero.
func (h *APIHandler) UserData(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	day := h.rules.Day(h.now())
	s := rec.Stats
	resp := userDataResponse{
		UserID:        rec.UserID,
		FullName:      rec.FullName,
		Language:      rec.Language,
		Category:      rec.Category,
		Day:           day,
		DailyLimit:    h.rules.DailyLimit,
		WeakSpots:     map[string]int{},
		TotalAnswered: s.TotalAnswered,
		TotalScore:    s.TotalScore,
		ActiveSession: rec.Session != nil,
	}
	if s.LastActiveDate == day {
		resp.QuestionsAnswered = s.QuestionsAnsweredToday
		resp.DailyScore = s.DailyScore
		resp.AveragePace = s.AveragePace
		if s.WeakSpots != nil {
			resp.WeakSpots = s.WeakSpots
		}
		resp.PotentialScore = s.DailyScore + h.rules.PointsPerCorrect*s.Misses()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Leaderboard returns the cohort standings with the user ranked among them.
func (h *APIHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookup(w, r)
	if !ok {
		return
	}
	now := h.now()
	score := 0
	if rec.Stats.LastActiveDate == h.rules.Day(now) {
		score = rec.Stats.DailyScore
	}

	entries := make([]leaderboardEntry, 0, 32)
	for _, c := range h.board.Leaderboard(now, score) {
		entries = append(entries, leaderboardEntry{Competitor: c})
	}
	name := rec.FullName
	if name == "" {
		name = "You"
	}
	entries = append(entries, leaderboardEntry{
		Competitor: rank.Competitor{
			ID:                strconv.FormatInt(rec.UserID, 10),
			Name:              name,
			Score:             score,
			QuestionsAnswered: rec.Stats.AnsweredOn(h.rules.Day(now)),
			AveragePace:       int(rec.Stats.AveragePace),
		},
		You: true,
	})
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].You && !entries[j].You
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{GeneratedAt: now, Entries: entries})
}

func (h *APIHandler) lookup(w http.ResponseWriter, r *http.Request) (domain.UserRecord, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return domain.UserRecord{}, false
	}
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid user_id", http.StatusBadRequest)
		return domain.UserRecord{}, false
	}
	rec, err := h.quiz.Profile(r.Context(), userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return domain.UserRecord{}, false
	}
	if err != nil {
		log.Printf("profile %d: %v", userID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return domain.UserRecord{}, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}
