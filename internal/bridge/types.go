package bridge

import (
	"context"
	"time"
)

// Step types understood by the chat transport. The transport has no native
// system step, so system-role content is exposed as an assistant step.
const (
	StepTypeUser      = "user_message"
	StepTypeAssistant = "assistant_message"
	StepTypeRun       = "run"
)

// StepRecord is one step event from the transport. Output is authoritative
// content; Input is only consulted when Output is empty. ThreadID names the
// owning thread; on finalize events it enables fallback resolution when the
// in-process step mapping was lost.
type StepRecord struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Type     string `json:"type"`
	Input    string `json:"input,omitempty"`
	Output   string `json:"output,omitempty"`
}

// Content returns the authoritative step content.
func (s StepRecord) Content() string {
	if s.Output != "" {
		return s.Output
	}
	return s.Input
}

// StepView is one persisted message rendered in step shape for the
// transport.
type StepView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"createdAt"`
}

// Thread is a full thread snapshot: conversation metadata plus every
// message as a step, in creation order.
type Thread struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    int64      `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	Steps     []StepView `json:"steps"`
}

// ThreadSummary is a listing row; message bodies are deliberately omitted.
type ThreadSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    int64     `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ThreadPage is one page of newest-first thread summaries.
type ThreadPage struct {
	Items      []ThreadSummary `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}

// StepEvents is the callback surface the turn orchestrator drives,
// synchronously relative to the transport. It decouples persistence from
// any particular event-delivery mechanism.
type StepEvents interface {
	OnStepOpen(ctx context.Context, step StepRecord) error
	OnStepClose(ctx context.Context, step StepRecord) error
	OnThreadQuery(ctx context.Context, threadID string) (Thread, error)
}
