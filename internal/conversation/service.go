// Package conversation provides CRUD-level operations over the message
// store: the long-term memory behind each chat turn.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vesperchat/vesper/internal/store"
)

const DefaultTitle = "New Conversation"

type Service struct {
	store  store.Store
	logger *slog.Logger
}

func NewService(log *slog.Logger, st store.Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  st,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// Create starts a conversation owned by userID. threadID may be empty for
// rows created before the transport assigns external identity.
func (s *Service) Create(ctx context.Context, userID int64, title, threadID string) (store.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	conv, err := s.store.CreateConversation(ctx, userID, title, threadID)
	if err != nil {
		return store.Conversation{}, err
	}
	s.logger.Info("conversation created",
		slog.Int64("conversation_id", conv.ID),
		slog.Int64("user_id", userID),
	)
	return conv, nil
}

// AddMessage appends one message. The role must be user, assistant or
// system; assistant content may be empty (streaming placeholder), any other
// role requires content.
func (s *Service) AddMessage(ctx context.Context, conversationID int64, role, content string) (store.Message, error) {
	if !store.ValidRole(role) {
		return store.Message{}, fmt.Errorf("%w: role %q", store.ErrInvalidArgument, role)
	}
	return s.store.CreateMessage(ctx, conversationID, role, content)
}

// History returns the conversation's messages as {role, content} pairs in
// ascending creation order. limit > 0 keeps the oldest limit entries; this
// is deliberately the opposite end from the session window, which keeps
// the newest.
func (s *Service) History(ctx context.Context, conversationID int64, limit int) ([]HistoryEntry, error) {
	msgs, err := s.store.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	history := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		history = append(history, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// Rename updates the conversation title.
func (s *Service) Rename(ctx context.Context, conversationID int64, title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", store.ErrInvalidArgument)
	}
	return s.store.RenameConversation(ctx, conversationID, title)
}

// Delete removes the conversation and, by cascade, its messages. It
// reports false when the id does not exist; that is not an error.
func (s *Service) Delete(ctx context.Context, conversationID int64) (bool, error) {
	deleted, err := s.store.DeleteConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("conversation deleted", slog.Int64("conversation_id", conversationID))
	}
	return deleted, nil
}
