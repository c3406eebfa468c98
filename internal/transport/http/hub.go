package http

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
)

// Transport names message references created by the hub.
const Transport = "ws"

var (
	// ErrNotConnected is returned when the user has no open socket.
	ErrNotConnected = errors.New("user not connected")
	// ErrSlowClient is returned when a socket's outbound buffer is full.
	ErrSlowClient = errors.New("client outbound buffer full")
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type client struct {
	send chan outboundMessage[any]
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub tracks one websocket per user and renders engine output onto it.
// A question's message id is a per-hub counter so clients can match timer
// updates to the question they belong to.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*client
	nextID  atomic.Int64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]*client)}
}

// Name implements transport.Endpoint.
func (h *Hub) Name() string { return Transport }

// Reaches implements transport.Endpoint.
func (h *Hub) Reaches(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// connect registers a socket for the user, closing any previous one.
func (h *Hub) connect(userID int64) *client {
	c := &client{
		send: make(chan outboundMessage[any], 32),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.close()
	}
	h.clients[userID] = c
	h.mu.Unlock()
	return c
}

func (h *Hub) disconnect(userID int64, c *client) {
	h.mu.Lock()
	if h.clients[userID] == c {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) push(userID int64, typ string, payload any) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	return c.push(typ, payload)
}

func (c *client) push(typ string, payload any) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSlowClient
	}
}

type questionPayload struct {
	MessageID int      `json:"messageId"`
	SessionID string   `json:"sessionId"`
	Index     int      `json:"index"`
	Total     int      `json:"total"`
	Prompt    string   `json:"question"`
	Options   []string `json:"options"`
	Topic     string   `json:"topic,omitempty"`
}

type timerPayload struct {
	MessageID        int    `json:"messageId"`
	SessionID        string `json:"sessionId"`
	Index            int    `json:"index"`
	SecondsRemaining int    `json:"secondsRemaining"`
}

type feedbackPayload struct {
	SessionID     string `json:"sessionId"`
	Index         int    `json:"index"`
	Outcome       string `json:"outcome"`
	Headline      string `json:"headline"`
	Explanation   string `json:"explanation"`
	CorrectOption string `json:"correctOption"`
	Awarded       int    `json:"awarded"`
	TotalScore    int    `json:"totalScore"`
}

type summaryPayload struct {
	SessionID         string `json:"sessionId"`
	Score             int    `json:"score"`
	Percentage        int    `json:"percentage"`
	Correct           int    `json:"correct"`
	Total             int    `json:"total"`
	CompetitorAverage int    `json:"competitorAverage"`
	Verdict           string `json:"verdict"`
	Answered          int    `json:"answered"`
	Limit             int    `json:"limit"`
	NextBatch         string `json:"nextBatch"`
	GoalCompleted     bool   `json:"goalCompleted"`
}

type noticePayload struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func (h *Hub) SendQuestion(_ context.Context, userID int64, q app.QuestionView) (domain.MessageRef, error) {
	id := int(h.nextID.Add(1))
	err := h.push(userID, "question", questionPayload{
		MessageID: id,
		SessionID: q.SessionID,
		Index:     q.Index,
		Total:     q.Total,
		Prompt:    q.Question.Prompt,
		Options:   q.Question.Options,
		Topic:     q.Question.Topic,
	})
	if err != nil {
		return domain.MessageRef{}, err
	}
	return domain.MessageRef{Transport: Transport, ChatID: userID, MessageID: id}, nil
}

func (h *Hub) EditToTimerState(_ context.Context, ref domain.MessageRef, q app.QuestionView, secondsRemaining int) error {
	return h.push(ref.ChatID, "timer", timerPayload{
		MessageID:        ref.MessageID,
		SessionID:        q.SessionID,
		Index:            q.Index,
		SecondsRemaining: secondsRemaining,
	})
}

func (h *Hub) EditToTimeUp(_ context.Context, ref domain.MessageRef, q app.QuestionView) error {
	return h.push(ref.ChatID, "timeUp", timerPayload{
		MessageID: ref.MessageID,
		SessionID: q.SessionID,
		Index:     q.Index,
	})
}

func (h *Hub) SendFeedback(_ context.Context, userID int64, fb app.Feedback) error {
	return h.push(userID, "feedback", feedbackPayload{
		SessionID:     fb.SessionID,
		Index:         fb.Index,
		Outcome:       string(fb.Outcome),
		Headline:      fb.Headline(),
		Explanation:   fb.Explanation(),
		CorrectOption: fb.Question.CorrectOption(),
		Awarded:       fb.Awarded,
		TotalScore:    fb.Score,
	})
}

func (h *Hub) SendBatchSummary(_ context.Context, userID int64, s app.Summary) error {
	return h.push(userID, "summary", summaryPayload{
		SessionID:         s.SessionID,
		Score:             s.Score,
		Percentage:        s.Percentage,
		Correct:           s.Correct,
		Total:             s.Total,
		CompetitorAverage: s.CompetitorAverage,
		Verdict:           s.Verdict,
		Answered:          s.Answered,
		Limit:             s.Limit,
		NextBatch:         s.NextBatchLabel(),
		GoalCompleted:     s.GoalCompleted,
	})
}

func (h *Hub) SendNotice(_ context.Context, userID int64, n app.Notice) error {
	return h.push(userID, "notice", noticePayload{Kind: string(n.Kind), Text: n.Text()})
}
