// Package turn wires one chat turn together: persistence events around
// the completion stream, fragment relay to the client, and session
// history upkeep.
package turn

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vesperchat/vesper/internal/bridge"
	"github.com/vesperchat/vesper/internal/chat"
	"github.com/vesperchat/vesper/internal/store"
)

// Sink receives completion fragments as they arrive. Implementations are
// transport-specific (SSE writer, websocket connection).
type Sink interface {
	SendFragment(ctx context.Context, content string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, content string) error

func (f SinkFunc) SendFragment(ctx context.Context, content string) error {
	return f(ctx, content)
}

// Request is one user turn.
type Request struct {
	ThreadID    string
	Provider    chat.Provider
	Model       string
	Message     string
	Temperature float64
}

// Result reports what the turn produced.
type Result struct {
	Content         string
	UserStepID      string
	AssistantStepID string
}

// Orchestrator runs turns. It holds no per-turn state; sessions are
// passed in by the transport that owns the connection.
type Orchestrator struct {
	dispatcher *chat.Dispatcher
	events     bridge.StepEvents
	logger     *slog.Logger
}

func New(log *slog.Logger, d *chat.Dispatcher, ev bridge.StepEvents) *Orchestrator {
	return &Orchestrator{
		dispatcher: d,
		events:     ev,
		logger:     log.With(slog.String("service", "turn")),
	}
}

// Run executes one turn: the user step is persisted, an empty assistant
// placeholder opens, fragments stream to the sink while being
// accumulated, and the placeholder is finalized with the full text. The
// session window is updated last. Persistence failures are logged but do
// not abort the stream; the user still gets their answer.
func (o *Orchestrator) Run(ctx context.Context, sess *chat.Session, req Request, sink Sink) (Result, error) {
	res := Result{
		UserStepID:      uuid.NewString(),
		AssistantStepID: uuid.NewString(),
	}

	if err := o.events.OnStepOpen(ctx, bridge.StepRecord{
		ID:       res.UserStepID,
		ThreadID: req.ThreadID,
		Type:     bridge.StepTypeUser,
		Output:   req.Message,
	}); err != nil {
		o.logger.Warn("user step not persisted", slog.Any("error", err))
	}
	if err := o.events.OnStepOpen(ctx, bridge.StepRecord{
		ID:       res.AssistantStepID,
		ThreadID: req.ThreadID,
		Type:     bridge.StepTypeAssistant,
	}); err != nil {
		o.logger.Warn("assistant placeholder not persisted", slog.Any("error", err))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	frags, err := o.dispatcher.StreamCompletion(streamCtx, chat.Request{
		Provider:    req.Provider,
		Model:       req.Model,
		Message:     req.Message,
		History:     sess.History(),
		Temperature: req.Temperature,
	})
	if err != nil {
		return Result{}, err
	}

	var full strings.Builder
	for f := range frags {
		full.WriteString(f.Content)
		if serr := sink.SendFragment(ctx, f.Content); serr != nil {
			// Client gone; cancel the upstream stream so the drain ends
			// immediately instead of consuming the rest of the completion.
			o.logger.Debug("fragment sink closed", slog.Any("error", serr))
			cancel()
			for range frags {
			}
			break
		}
	}
	res.Content = full.String()

	if err := o.events.OnStepClose(ctx, bridge.StepRecord{
		ID:       res.AssistantStepID,
		ThreadID: req.ThreadID,
		Type:     bridge.StepTypeAssistant,
		Output:   res.Content,
	}); err != nil {
		o.logger.Warn("assistant step not finalized", slog.Any("error", err))
	}

	sess.Append(store.RoleUser, req.Message)
	sess.Append(store.RoleAssistant, res.Content)
	return res, nil
}
