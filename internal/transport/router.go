package transport

import (
	"context"
	"errors"

	"daily-quiz-bot/internal/app"
	"daily-quiz-bot/internal/domain"
)

// ErrNoEndpoint is returned when no endpoint can reach the user.
var ErrNoEndpoint = errors.New("no endpoint reaches user")

// Endpoint is a Presenter bound to one transport.
type Endpoint interface {
	app.Presenter
	// Name tags the message references the endpoint creates.
	Name() string
	// Reaches reports whether the endpoint can deliver to userID right now.
	Reaches(userID int64) bool
}

// Router fans engine output out to the first endpoint that reaches the user.
// Edits go back to the endpoint that created the message.
type Router struct {
	endpoints []Endpoint
}

// NewRouter builds a router trying endpoints in order.
func NewRouter(endpoints ...Endpoint) *Router {
	return &Router{endpoints: endpoints}
}

func (r *Router) pick(userID int64) (Endpoint, error) {
	for _, e := range r.endpoints {
		if e.Reaches(userID) {
			return e, nil
		}
	}
	return nil, ErrNoEndpoint
}

func (r *Router) owner(ref domain.MessageRef) (Endpoint, error) {
	for _, e := range r.endpoints {
		if e.Name() == ref.Transport {
			return e, nil
		}
	}
	return nil, ErrNoEndpoint
}

func (r *Router) SendQuestion(ctx context.Context, userID int64, q app.QuestionView) (domain.MessageRef, error) {
	e, err := r.pick(userID)
	if err != nil {
		return domain.MessageRef{}, err
	}
	return e.SendQuestion(ctx, userID, q)
}

func (r *Router) EditToTimerState(ctx context.Context, ref domain.MessageRef, q app.QuestionView, secondsRemaining int) error {
	e, err := r.owner(ref)
	if err != nil {
		return err
	}
	return e.EditToTimerState(ctx, ref, q, secondsRemaining)
}

func (r *Router) EditToTimeUp(ctx context.Context, ref domain.MessageRef, q app.QuestionView) error {
	e, err := r.owner(ref)
	if err != nil {
		return err
	}
	return e.EditToTimeUp(ctx, ref, q)
}

func (r *Router) SendFeedback(ctx context.Context, userID int64, fb app.Feedback) error {
	e, err := r.pick(userID)
	if err != nil {
		return err
	}
	return e.SendFeedback(ctx, userID, fb)
}

func (r *Router) SendBatchSummary(ctx context.Context, userID int64, s app.Summary) error {
	e, err := r.pick(userID)
	if err != nil {
		return err
	}
	return e.SendBatchSummary(ctx, userID, s)
}

func (r *Router) SendNotice(ctx context.Context, userID int64, n app.Notice) error {
	e, err := r.pick(userID)
	if err != nil {
		return err
	}
	return e.SendNotice(ctx, userID, n)
}
