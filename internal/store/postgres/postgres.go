// Package postgres implements the durable Store on pgx. Ordering inside a
// conversation relies on (created_at, id): bigserial ids disambiguate
// same-instant inserts, so history reconstruction never depends on clock
// resolution alone.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vesperchat/vesper/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return store.User{}, fmt.Errorf("%w: email is required", store.ErrInvalidArgument)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2)
		 RETURNING id, email, password_hash, created_at`,
		email, passwordHash)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.User{}, fmt.Errorf("%w: user %s", store.ErrDuplicate, email)
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (store.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, fmt.Errorf("%w: user %s", store.ErrNotFound, email)
	}
	return u, err
}

func (s *Store) CreateConversation(ctx context.Context, userID int64, title, threadID string) (store.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id, title, thread_id)
		 VALUES ($1, $2, NULLIF($3, ''))
		 RETURNING id, COALESCE(thread_id, ''), title, user_id, created_at`,
		userID, title, strings.TrimSpace(threadID))
	c, err := scanConversation(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				return store.Conversation{}, fmt.Errorf("%w: thread %s", store.ErrDuplicate, threadID)
			case "23503": // foreign key violation
				return store.Conversation{}, fmt.Errorf("%w: user %d", store.ErrNotFound, userID)
			}
		}
		return store.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *Store) GetConversationByID(ctx context.Context, id int64) (store.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(thread_id, ''), title, user_id, created_at
		 FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Conversation{}, fmt.Errorf("%w: conversation %d", store.ErrNotFound, id)
	}
	return c, err
}

func (s *Store) GetConversationByThreadID(ctx context.Context, threadID string) (store.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(thread_id, ''), title, user_id, created_at
		 FROM conversations WHERE thread_id = $1`, strings.TrimSpace(threadID))
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Conversation{}, fmt.Errorf("%w: thread %s", store.ErrNotFound, threadID)
	}
	return c, err
}

func (s *Store) RenameConversation(ctx context.Context, id int64, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: conversation %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) DeleteConversation(ctx context.Context, id int64) (bool, error) {
	// Messages go with the conversation via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64, pageSize int, cursor string) (store.ConversationPage, error) {
	after, err := store.DecodeCursor(cursor)
	if err != nil {
		return store.ConversationPage{}, err
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var rows pgx.Rows
	if after.ID > 0 {
		rows, err = s.pool.Query(ctx,
			`SELECT id, COALESCE(thread_id, ''), title, user_id, created_at
			 FROM conversations
			 WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $4`,
			userID, time.UnixMicro(after.CreatedAtUnixMicro).UTC(), after.ID, pageSize+1)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, COALESCE(thread_id, ''), title, user_id, created_at
			 FROM conversations
			 WHERE user_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			userID, pageSize+1)
	}
	if err != nil {
		return store.ConversationPage{}, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var items []store.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return store.ConversationPage{}, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return store.ConversationPage{}, fmt.Errorf("list conversations: %w", err)
	}

	page := store.ConversationPage{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		page.HasMore = true
		last := page.Items[pageSize-1]
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
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content) VALUES ($1, $2, $3)
		 RETURNING id, conversation_id, role, content, created_at`,
		conversationID, role, content)
	m, err := scanMessage(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.Message{}, fmt.Errorf("%w: conversation %d", store.ErrNotFound, conversationID)
		}
		return store.Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *Store) GetMessageByID(ctx context.Context, id int64) (store.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages WHERE id = $1`, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Message{}, fmt.Errorf("%w: message %d", store.ErrNotFound, id)
	}
	return m, err
}

func (s *Store) UpdateMessageContent(ctx context.Context, id int64, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET content = $2 WHERE id = $1`, id, content)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: message %d", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID int64, limit int) ([]store.Message, error) {
	if _, err := s.GetConversationByID(ctx, conversationID); err != nil {
		return nil, err
	}
	query := `SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at ASC, id ASC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) LatestMessageByRole(ctx context.Context, conversationID int64, role string) (store.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = $1 AND role = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		conversationID, role)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Message{}, fmt.Errorf("%w: no %s message in conversation %d", store.ErrNotFound, role, conversationID)
	}
	return m, err
}

func (s *Store) GetSettings(ctx context.Context, userID int64) (store.UserSettings, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, default_model, temperature, favorite_models, updated_at
		 FROM user_settings WHERE user_id = $1`, userID)
	st, err := scanSettings(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.UserSettings{}, fmt.Errorf("%w: settings for user %d", store.ErrNotFound, userID)
	}
	return st, err
}

func (s *Store) SaveSettings(ctx context.Context, in store.UserSettings) (store.UserSettings, error) {
	if in.FavoriteModels == nil {
		in.FavoriteModels = []string{}
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO user_settings (user_id, default_model, temperature, favorite_models, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   default_model = EXCLUDED.default_model,
		   temperature = EXCLUDED.temperature,
		   favorite_models = EXCLUDED.favorite_models,
		   updated_at = now()
		 RETURNING user_id, default_model, temperature, favorite_models, updated_at`,
		in.UserID, in.DefaultModel, in.Temperature, in.FavoriteModels)
	st, err := scanSettings(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return store.UserSettings{}, fmt.Errorf("%w: user %d", store.ErrNotFound, in.UserID)
		}
		return store.UserSettings{}, fmt.Errorf("save settings: %w", err)
	}
	return st, nil
}

func scanUser(row pgx.Row) (store.User, error) {
	var (
		u         store.User
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		return store.User{}, err
	}
	u.CreatedAt = createdAt.Time
	return u, nil
}

func scanConversation(row pgx.Row) (store.Conversation, error) {
	var (
		c         store.Conversation
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&c.ID, &c.ThreadID, &c.Title, &c.UserID, &createdAt); err != nil {
		return store.Conversation{}, err
	}
	c.CreatedAt = createdAt.Time
	return c, nil
}

func scanMessage(row pgx.Row) (store.Message, error) {
	var (
		m         store.Message
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
		return store.Message{}, err
	}
	m.CreatedAt = createdAt.Time
	return m, nil
}

func scanSettings(row pgx.Row) (store.UserSettings, error) {
	var (
		st        store.UserSettings
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&st.UserID, &st.DefaultModel, &st.Temperature, &st.FavoriteModels, &updatedAt); err != nil {
		return store.UserSettings{}, err
	}
	st.UpdatedAt = updatedAt.Time
	return st, nil
}

var _ store.Store = (*Store)(nil)
