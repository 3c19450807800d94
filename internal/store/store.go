package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned for malformed input (bad role, bad cursor).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("already exists")
)

// User is a registered account. Immutable after creation except for
// credential rotation, which is out of scope here.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Conversation owns an ordered set of messages. ThreadID is the external
// identity assigned by the chat transport; it is empty for rows created
// before external identity assignment existed, which must stay reachable
// through the numeric ID.
type Conversation struct {
	ID        int64     `json:"id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Title     string    `json:"title"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one turn side inside a conversation. Assistant content may be
// created empty as a streaming placeholder and filled once on finalize.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserSettings holds per-user model preferences, one row per user.
type UserSettings struct {
	UserID         int64     `json:"user_id"`
	DefaultModel   string    `json:"default_model"`
	Temperature    float64   `json:"temperature"`
	FavoriteModels []string  `json:"favorite_models"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationPage is one keyset page of conversations, newest-created first.
type ConversationPage struct {
	Items      []Conversation
	NextCursor string
	HasMore    bool
}

// Store is the durable relational layer behind the conversation service and
// the persistence bridge. Implementations must enforce referential
// integrity: deleting a conversation removes its messages, deleting a user
// removes its settings.
type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	CreateConversation(ctx context.Context, userID int64, title, threadID string) (Conversation, error)
	GetConversationByID(ctx context.Context, id int64) (Conversation, error)
	GetConversationByThreadID(ctx context.Context, threadID string) (Conversation, error)
	RenameConversation(ctx context.Context, id int64, title string) error
	// DeleteConversation reports whether a row was removed. Messages cascade.
	DeleteConversation(ctx context.Context, id int64) (bool, error)
	// ListConversations pages a user's conversations newest-created first.
	// cursor is opaque; empty means first page.
	ListConversations(ctx context.Context, userID int64, pageSize int, cursor string) (ConversationPage, error)

	CreateMessage(ctx context.Context, conversationID int64, role, content string) (Message, error)
	GetMessageByID(ctx context.Context, id int64) (Message, error)
	UpdateMessageContent(ctx context.Context, id int64, content string) error
	DeleteMessage(ctx context.Context, id int64) error
	// ListMessages returns a conversation's messages in creation order,
	// ties broken by insertion order. limit <= 0 means all, otherwise the
	// oldest limit messages.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
	// LatestMessageByRole returns the most recently created message with
	// the given role inside one conversation.
	LatestMessageByRole(ctx context.Context, conversationID int64, role string) (Message, error)

	GetSettings(ctx context.Context, userID int64) (UserSettings, error)
	SaveSettings(ctx context.Context, s UserSettings) (UserSettings, error)
}
