// Package bridge reconciles the chat transport's step/thread event model
// with the relational message store. Steps map one-to-one to message rows;
// threads map to conversations.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/vesperchat/vesper/internal/store"
)

// Bridge translates step events into message rows and serves thread
// queries. A single Bridge is shared by all sessions; its step map is the
// only mutable state and is guarded by mu. The mutex is never held across
// store calls.
type Bridge struct {
	store  store.Store
	logger *slog.Logger

	mu sync.Mutex
	// steps maps external step ids to message row ids. An entry of 0 is a
	// reservation: a create for that step is in flight.
	steps map[string]int64
}

func New(log *slog.Logger, st store.Store) *Bridge {
	return &Bridge{
		store:  st,
		logger: log.With(slog.String("service", "bridge")),
		steps:  make(map[string]int64),
	}
}

var _ StepEvents = (*Bridge)(nil)

// ResolveConversation finds the conversation behind an external thread
// identifier. The stored thread id wins; a purely numeric identifier is
// then tried as a conversation row id, which covers threads created before
// external ids were recorded.
func (b *Bridge) ResolveConversation(ctx context.Context, threadID string) (store.Conversation, error) {
	conv, err := b.store.GetConversationByThreadID(ctx, threadID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Conversation{}, err
	}
	id, perr := strconv.ParseInt(threadID, 10, 64)
	if perr != nil {
		return store.Conversation{}, fmt.Errorf("resolve thread %q: %w", threadID, store.ErrNotFound)
	}
	return b.store.GetConversationByID(ctx, id)
}

// GetThread returns the full thread snapshot: conversation metadata plus
// every message rendered as a step, oldest first.
func (b *Bridge) GetThread(ctx context.Context, threadID string) (Thread, error) {
	conv, err := b.ResolveConversation(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	msgs, err := b.store.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		return Thread{}, err
	}
	th := Thread{
		ID:        externalID(conv),
		Name:      conv.Title,
		UserID:    conv.UserID,
		CreatedAt: conv.CreatedAt,
		Steps:     make([]StepView, 0, len(msgs)),
	}
	for _, m := range msgs {
		th.Steps = append(th.Steps, StepView{
			ID:        strconv.FormatInt(m.ID, 10),
			Name:      m.Role,
			Type:      stepType(m.Role),
			Output:    m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return th, nil
}

// ListThreads returns one newest-first page of thread summaries for a
// user. Summaries never include message bodies.
func (b *Bridge) ListThreads(ctx context.Context, userID int64, pageSize int, cursor string) (ThreadPage, error) {
	page, err := b.store.ListConversations(ctx, userID, pageSize, cursor)
	if err != nil {
		return ThreadPage{}, err
	}
	out := ThreadPage{
		Items:      make([]ThreadSummary, 0, len(page.Items)),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
	for _, conv := range page.Items {
		out.Items = append(out.Items, ThreadSummary{
			ID:        externalID(conv),
			Name:      conv.Title,
			UserID:    conv.UserID,
			CreatedAt: conv.CreatedAt,
		})
	}
	return out, nil
}

// CreateStep persists a step as a new message row and records the step→row
// mapping. A step whose thread does not resolve is dropped without error;
// transports may replay events for threads that were deleted meanwhile.
// Duplicate creates for the same step id are also dropped, so at most one
// row ever results from one step.
func (b *Bridge) CreateStep(ctx context.Context, step StepRecord) error {
	if step.ID == "" {
		return fmt.Errorf("create step: missing id: %w", store.ErrInvalidArgument)
	}
	role := stepRole(step.Type)
	content := step.Content()
	if content == "" && role != store.RoleAssistant {
		return fmt.Errorf("create step %s: empty %s content: %w", step.ID, role, store.ErrInvalidArgument)
	}

	b.mu.Lock()
	if _, seen := b.steps[step.ID]; seen {
		b.mu.Unlock()
		b.logger.Debug("duplicate step create ignored", slog.String("step_id", step.ID))
		return nil
	}
	b.steps[step.ID] = 0
	b.mu.Unlock()

	conv, err := b.ResolveConversation(ctx, step.ThreadID)
	if err != nil {
		b.forget(step.ID)
		if errors.Is(err, store.ErrNotFound) {
			b.logger.Debug("step for unknown thread dropped",
				slog.String("step_id", step.ID), slog.String("thread_id", step.ThreadID))
			return nil
		}
		return err
	}
	msg, err := b.store.CreateMessage(ctx, conv.ID, role, content)
	if err != nil {
		b.forget(step.ID)
		return err
	}
	b.mu.Lock()
	b.steps[step.ID] = msg.ID
	b.mu.Unlock()
	return nil
}

// UpdateStep finalizes a step's content. The recorded mapping names the row
// directly; when it is absent (process restart, or the create raced the
// update) the newest message with the same role in the same conversation is
// updated instead. An update that resolves nothing is a silent no-op.
func (b *Bridge) UpdateStep(ctx context.Context, step StepRecord) error {
	content := step.Content()

	b.mu.Lock()
	msgID, ok := b.steps[step.ID]
	b.mu.Unlock()
	if ok && msgID > 0 {
		return b.store.UpdateMessageContent(ctx, msgID, content)
	}

	if step.ThreadID == "" {
		b.logger.Debug("step update with no mapping dropped", slog.String("step_id", step.ID))
		return nil
	}
	conv, err := b.ResolveConversation(ctx, step.ThreadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	msg, err := b.store.LatestMessageByRole(ctx, conv.ID, stepRole(step.Type))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			b.logger.Debug("step update matched no message",
				slog.String("step_id", step.ID), slog.String("thread_id", step.ThreadID))
			return nil
		}
		return err
	}
	return b.store.UpdateMessageContent(ctx, msg.ID, content)
}

// DeleteStep removes the message behind a step. Unknown steps are ignored.
func (b *Bridge) DeleteStep(ctx context.Context, stepID string) error {
	b.mu.Lock()
	msgID, ok := b.steps[stepID]
	delete(b.steps, stepID)
	b.mu.Unlock()
	if !ok || msgID <= 0 {
		return nil
	}
	if err := b.store.DeleteMessage(ctx, msgID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// DeleteThread removes a conversation and all of its messages. Deleting a
// thread that does not resolve is not an error.
func (b *Bridge) DeleteThread(ctx context.Context, threadID string) error {
	conv, err := b.ResolveConversation(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if _, err := b.store.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}
	return nil
}

// RenameThread updates the conversation title.
func (b *Bridge) RenameThread(ctx context.Context, threadID, name string) error {
	conv, err := b.ResolveConversation(ctx, threadID)
	if err != nil {
		return err
	}
	return b.store.RenameConversation(ctx, conv.ID, name)
}

// ThreadOwner returns the owning user's email, or empty when the thread or
// user cannot be found.
func (b *Bridge) ThreadOwner(ctx context.Context, threadID string) (string, error) {
	conv, err := b.ResolveConversation(ctx, threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	user, err := b.store.GetUserByID(ctx, conv.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return user.Email, nil
}

// OnStepOpen implements StepEvents.
func (b *Bridge) OnStepOpen(ctx context.Context, step StepRecord) error {
	return b.CreateStep(ctx, step)
}

// OnStepClose implements StepEvents.
func (b *Bridge) OnStepClose(ctx context.Context, step StepRecord) error {
	return b.UpdateStep(ctx, step)
}

// OnThreadQuery implements StepEvents.
func (b *Bridge) OnThreadQuery(ctx context.Context, threadID string) (Thread, error) {
	return b.GetThread(ctx, threadID)
}

func (b *Bridge) forget(stepID string) {
	b.mu.Lock()
	delete(b.steps, stepID)
	b.mu.Unlock()
}

// externalID prefers the recorded thread id; rows created without one are
// addressed by their numeric id.
func externalID(conv store.Conversation) string {
	if conv.ThreadID != "" {
		return conv.ThreadID
	}
	return strconv.FormatInt(conv.ID, 10)
}

func stepType(role string) string {
	if role == store.RoleUser {
		return StepTypeUser
	}
	return StepTypeAssistant
}

func stepRole(stepType string) string {
	switch {
	case strings.HasPrefix(stepType, "user"):
		return store.RoleUser
	case stepType == StepTypeRun, strings.HasPrefix(stepType, "assistant"):
		return store.RoleAssistant
	default:
		return store.RoleAssistant
	}
}
