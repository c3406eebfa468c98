package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
	"github.com/gorilla/websocket"
)

// Quiz is the engine surface driven over websockets and the JSON API.
type Quiz interface {
	Register(ctx context.Context, userID int64, username, fullName string) error
	SetPreferences(ctx context.Context, userID int64, language, category string) error
	Profile(ctx context.Context, userID int64) (domain.UserRecord, error)
	StartBatch(ctx context.Context, userID int64, language, category string) (domain.Session, error)
	SubmitAnswer(ctx context.Context, userID int64, sessionID string, index, selected int) (app.AnswerResult, error)
	Abandon(ctx context.Context, userID int64) error
}

type WSHandler struct {
	hub      *Hub
	quiz     Quiz
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, quiz Quiz) *WSHandler {
	return &WSHandler{
		hub:  hub,
		quiz: quiz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type topicPayload struct {
	Language string `json:"language"`
	Category string `json:"category"`
}

type answerPayload struct {
	SessionID string `json:"sessionId"`
	Index     int    `json:"index"`
	Option    int    `json:"option"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type connectedPayload struct {
	UserID int64 `json:"userId"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz
// engine. Inbound messages are handled concurrently so a double tap reaches
// the engine while the first answer is still being resolved.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	displayName := r.URL.Query().Get("name")
	if err != nil || displayName == "" {
		http.Error(w, "missing userId or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Engine calls outlive a dropped socket; their output is discarded by
	// the hub once the client is gone.
	ctx := context.WithoutCancel(r.Context())
	if err := h.quiz.Register(ctx, userID, "", displayName); err != nil {
		log.Printf("register %d: %v", userID, err)
	}

	c := h.hub.connect(userID)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-c.send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					h.hub.disconnect(userID, c)
					return
				}
			case <-c.done:
				return
			}
		}
	}()

	_ = c.push("connected", connectedPayload{UserID: userID})

	var handlers sync.WaitGroup
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		handlers.Add(1)
		go func(in inboundMessage) {
			defer handlers.Done()
			h.dispatch(ctx, userID, c, in)
		}(inbound)
	}

	h.hub.disconnect(userID, c)
	<-writerDone
	handlers.Wait()
}

func (h *WSHandler) dispatch(ctx context.Context, userID int64, c *client, in inboundMessage) {
	switch in.Type {
	case "start":
		var p topicPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				_ = c.push("error", errorPayload{Message: "invalid start payload"})
				return
			}
		}
		if _, err := h.quiz.StartBatch(ctx, userID, p.Language, p.Category); err != nil &&
			!errors.Is(err, domain.ErrDailyLimitReached) && !errors.Is(err, domain.ErrNoQuestions) {
			_ = c.push("error", errorPayload{Message: err.Error()})
		}
	case "answer":
		var p answerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			_ = c.push("error", errorPayload{Message: "invalid answer payload"})
			return
		}
		_, err := h.quiz.SubmitAnswer(ctx, userID, p.SessionID, p.Index, p.Option)
		if errors.Is(err, domain.ErrBusy) || errors.Is(err, domain.ErrInvalidOption) {
			_ = c.push("error", errorPayload{Message: err.Error()})
		}
	case "abandon":
		_ = h.quiz.Abandon(ctx, userID)
	case "preferences":
		var p topicPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			_ = c.push("error", errorPayload{Message: "invalid preferences payload"})
			return
		}
		if err := h.quiz.SetPreferences(ctx, userID, p.Language, p.Category); err != nil {
			_ = c.push("error", errorPayload{Message: err.Error()})
			return
		}
		_ = c.push("preferences", p)
	default:
		_ = c.push("error", errorPayload{Message: "unsupported message type"})
	}
}
