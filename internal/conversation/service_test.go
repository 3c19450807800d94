package conversation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperchat/vesper/internal/conversation"
	"github.com/vesperchat/vesper/internal/store"
	"github.com/vesperchat/vesper/internal/store/memory"
)

func newFixture(t *testing.T) (*conversation.Service, *memory.Store, store.User) {
	t.Helper()
	st := memory.New()
	u, err := st.CreateUser(context.Background(), "owner@example.com", "hash")
	require.NoError(t, err)
	return conversation.NewService(nil, st), st, u
}

func TestCreateRequiresExistingUser(t *testing.T) {
	ctx := context.Background()
	svc, _, u := newFixture(t)

	conv, err := svc.Create(ctx, u.ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, conversation.DefaultTitle, conv.Title)
	assert.Equal(t, u.ID, conv.UserID)

	_, err = svc.Create(ctx, u.ID+99, "t", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddMessageValidatesRole(t *testing.T) {
	ctx := context.Background()
	svc, _, u := newFixture(t)
	conv, err := svc.Create(ctx, u.ID, "t", "")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, conv.ID, "moderator", "hi")
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	_, err = svc.AddMessage(ctx, conv.ID+99, store.RoleUser, "hi")
	assert.ErrorIs(t, err, store.ErrNotFound)

	msg, err := svc.AddMessage(ctx, conv.ID, store.RoleUser, "hi")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
}

func TestHistoryOrderAndOldestFirstLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, u := newFixture(t)
	conv, err := svc.Create(ctx, u.ID, "t", "")
	require.NoError(t, err)

	for _, pair := range [][2]string{
		{store.RoleUser, "one"},
		{store.RoleAssistant, "two"},
		{store.RoleUser, "three"},
		{store.RoleAssistant, "four"},
	} {
		_, err := svc.AddMessage(ctx, conv.ID, pair[0], pair[1])
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "one", history[0].Content)
	assert.Equal(t, "four", history[3].Content)

	// limit keeps the oldest entries, not the newest.
	limited, err := svc.History(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, []conversation.HistoryEntry{
		{Role: store.RoleUser, Content: "one"},
		{Role: store.RoleAssistant, Content: "two"},
	}, limited)
}

func TestStreamingPlaceholderScenario(t *testing.T) {
	ctx := context.Background()
	svc, st, u := newFixture(t)
	conv, err := svc.Create(ctx, u.ID, "t", "")
	require.NoError(t, err)

	_, err = svc.AddMessage(ctx, conv.ID, store.RoleUser, "hi")
	require.NoError(t, err)
	placeholder, err := svc.AddMessage(ctx, conv.ID, store.RoleAssistant, "")
	require.NoError(t, err)

	require.NoError(t, st.UpdateMessageContent(ctx, placeholder.ID, "hello"))

	history, err := svc.History(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []conversation.HistoryEntry{
		{Role: store.RoleUser, Content: "hi"},
		{Role: store.RoleAssistant, Content: "hello"},
	}, history)
}

func TestDeleteCascadesAndReportsMissing(t *testing.T) {
	ctx := context.Background()
	svc, st, u := newFixture(t)
	conv, err := svc.Create(ctx, u.ID, "t", "")
	require.NoError(t, err)
	msg, err := svc.AddMessage(ctx, conv.ID, store.RoleUser, "hi")
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Conversation and owned messages are gone.
	_, err = st.GetConversationByID(ctx, conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetMessageByID(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Unknown id reports false, not an error.
	deleted, err = svc.Delete(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}
