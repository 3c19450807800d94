// Package memory provides a mutex-guarded in-memory Store. It backs local
// development without a database and is the substrate for service tests.
// Semantics mirror the postgres implementation, including cascade deletes
// and insertion-order tie breaks for same-instant writes.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vesperchat/vesper/internal/store"
)

type Store struct {
	mu sync.Mutex

	users         map[int64]store.User
	usersByEmail  map[string]int64
	conversations map[int64]store.Conversation
	byThreadID    map[string]int64
	messages      map[int64]store.Message
	settings      map[int64]store.UserSettings

	// seq orders messages within a conversation even when the clock is too
	// coarse to, mirroring the bigserial tie break in postgres.
	seq map[int64][]int64

	nextUserID int64
	nextConvID int64
	nextMsgID  int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:         map[int64]store.User{},
		usersByEmail:  map[string]int64{},
		conversations: map[int64]store.Conversation{},
		byThreadID:    map[string]int64{},
		messages:      map[int64]store.Message{},
		settings:      map[int64]store.UserSettings{},
		seq:           map[int64][]int64{},
		now:           time.Now,
	}
}

// SetClock overrides the timestamp source. Tests use it to force
// same-millisecond writes.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return store.User{}, fmt.Errorf("%w: email is required", store.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[email]; ok {
		return store.User{}, fmt.Errorf("%w: user %s", store.ErrDuplicate, email)
	}
	s.nextUserID++
	u := store.User{
		ID:           s.nextUserID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByEmail[email]
	if !ok {
		return store.User{}, fmt.Errorf("%w: user %s", store.ErrNotFound, email)
	}
	return s.users[id], nil
}

func (s *Store) CreateConversation(ctx context.Context, userID int64, title, threadID string) (store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return store.Conversation{}, fmt.Errorf("%w: user %d", store.ErrNotFound, userID)
	}
	threadID = strings.TrimSpace(threadID)
	if threadID != "" {
		if _, ok := s.byThreadID[threadID]; ok {
			return store.Conversation{}, fmt.Errorf("%w: thread %s", store.ErrDuplicate, threadID)
		}
	}
	s.nextConvID++
	c := store.Conversation{
		ID:        s.nextConvID,
		ThreadID:  threadID,
		Title:     title,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	s.conversations[c.ID] = c
	if threadID != "" {
		s.byThreadID[threadID] = c.ID
	}
	return c, nil
}

func (s *Store) GetConversationByID(ctx context.Context, id int64) (store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return store.Conversation{}, fmt.Errorf("%w: conversation %d", store.ErrNotFound, id)
	}
	return c, nil
}

func (s *Store) GetConversationByThreadID(ctx context.Context, threadID string) (store.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byThreadID[strings.TrimSpace(threadID)]
	if !ok {
		return store.Conversation{}, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return s.conversations[id], nil
}

func (s *Store) RenameConversation(ctx context.Context, id int64, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: conversation %d", store.ErrNotFound, id)
	}
	c.Title = title
	s.conversations[id] = c
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return false, nil
	}
	for _, msgID := range s.seq[id] {
		delete(s.messages, msgID)
	}
	delete(s.seq, id)
	if c.ThreadID != "" {
		delete(s.byThreadID, c.ThreadID)
	}
	delete(s.conversations, id)
	return true, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64, pageSize int, cursor string) (store.ConversationPage, error) {
	after, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.ConversationPage{}, err
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	s.mu.Lock()
	all := make([]store.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.UserID == userID {
			all = append(all, c)
		}
	}
	s.mu.Unlock()

	// Newest-created first; id breaks same-instant ties.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if after.ID > 0 {
		idx := len(all)
		for i, c := range all {
			us := c.CreatedAt.UnixMicro()
			if us < after.CreatedAtUnixMicro || (us == after.CreatedAtUnixMicro && c.ID < after.ID) {
				idx = i
				break
			}
		}
		all = all[idx:]
	}

	page := store.ConversationPage{}
	if len(all) > pageSize {
		page.Items = all[:pageSize]
		page.HasMore = true
	} else {
		page.Items = all
	}
	if n := len(page.Items); n > 0 && page.HasMore {
		last := page.Items[n-1]
		page.NextCursor = store.EncodeCursor(store.Cursor{
			CreatedAtUnixMicro: last.CreatedAt.UnixMicro(),
			ID:                 last.ID,
		})
	}
	return page, nil
}

func (s *Store) CreateMessage(ctx context.Context, conversationID int64, role, content string) (store.Message, error) {
	if !store.ValidRole(role) {
		return store.Message{}, fmt.Errorf("%w: role %q", store.ErrInvalidArgument, role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return store.Message{}, fmt.Errorf("%w: conversation %d", store.ErrNotFound, conversationID)
	}
	s.nextMsgID++
	m := store.Message{
		ID:             s.nextMsgID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	s.messages[m.ID] = m
	s.seq[conversationID] = append(s.seq[conversationID], m.ID)
	return m, nil
}

func (s *Store) GetMessageByID(ctx context.Context, id int64) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return store.Message{}, fmt.Errorf("%w: message %d", store.ErrNotFound, id)
	}
	return m, nil
}

func (s *Store) UpdateMessageContent(ctx context.Context, id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %d", store.ErrNotFound, id)
	}
	m.Content = content
	s.messages[id] = m
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %d", store.ErrNotFound, id)
	}
	ids := s.seq[m.ConversationID]
	for i, msgID := range ids {
		if msgID == id {
			s.seq[m.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(s.messages, id)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("%w: conversation %d", store.ErrNotFound, conversationID)
	}
	ids := s.seq[conversationID]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]store.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	return out, nil
}

func (s *Store) LatestMessageByRole(ctx context.Context, conversationID int64, role string) (store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.seq[conversationID]
	for i := len(ids) - 1; i >= 0; i-- {
		if m := s.messages[ids[i]]; m.Role == role {
			return m, nil
		}
	}
	return store.Message{}, fmt.Errorf("%w: no %s message in conversation %d", store.ErrNotFound, role, conversationID)
}

func (s *Store) GetSettings(ctx context.Context, userID int64) (store.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settings[userID]
	if !ok {
		return store.UserSettings{}, fmt.Errorf("%w: settings for user %d", store.ErrNotFound, userID)
	}
	return st, nil
}

func (s *Store) SaveSettings(ctx context.Context, in store.UserSettings) (store.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[in.UserID]; !ok {
		return store.UserSettings{}, fmt.Errorf("%w: user %d", store.ErrNotFound, in.UserID)
	}
	in.UpdatedAt = s.now().UTC()
	if in.FavoriteModels == nil {
		in.FavoriteModels = []string{}
	}
	s.settings[in.UserID] = in
	return in, nil
}

var _ store.Store = (*Store)(nil)
