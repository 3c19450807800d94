package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperchat/vesper/internal/store"
	"github.com/vesperchat/vesper/internal/store/memory"
)

func newFixture(t *testing.T) (*Bridge, *memory.Store, store.User) {
	t.Helper()
	st := memory.New()
	b := New(slog.Default(), st)
	user, err := st.CreateUser(context.Background(), "owner@example.com", "hash")
	require.NoError(t, err)
	return b, st, user
}

func TestResolveConversationBothPaths(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()

	withThread, err := st.CreateConversation(ctx, user.ID, "a", "thread-abc")
	require.NoError(t, err)
	withoutThread, err := st.CreateConversation(ctx, user.ID, "b", "")
	require.NoError(t, err)

	got, err := b.ResolveConversation(ctx, "thread-abc")
	require.NoError(t, err)
	assert.Equal(t, withThread.ID, got.ID)

	got, err = b.ResolveConversation(ctx, strconv.FormatInt(withoutThread.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, withoutThread.ID, got.ID)

	_, err = b.ResolveConversation(ctx, "no-such-thread")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStreamingStepReconciliation(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)

	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "s-user", ThreadID: "t1", Type: StepTypeUser, Output: "hi",
	}))
	// Streaming placeholder: assistant step opens empty, finalizes later.
	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "s-asst", ThreadID: "t1", Type: StepTypeAssistant,
	}))
	require.NoError(t, b.UpdateStep(ctx, StepRecord{
		ID: "s-asst", ThreadID: "t1", Type: StepTypeAssistant, Output: "hello there",
	}))

	msgs, err := st.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "finalize must update in place, not insert")
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hello there", msgs[1].Content)
}

func TestUpdateStepFallbackAfterRestart(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)

	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "s1", ThreadID: "t1", Type: StepTypeAssistant,
	}))
	// A restart loses the in-process step map; the update must still land
	// on the newest assistant message in the thread.
	fresh := New(slog.Default(), st)
	require.NoError(t, fresh.UpdateStep(ctx, StepRecord{
		ID: "s1", ThreadID: "t1", Type: StepTypeAssistant, Output: "recovered",
	}))

	msgs, err := st.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "recovered", msgs[0].Content)
}

func TestUpdateStepSilentWhenUnresolvable(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)

	// No mapping, no thread id: dropped.
	require.NoError(t, b.UpdateStep(ctx, StepRecord{ID: "ghost", Output: "x"}))
	// No mapping, thread has no assistant message: dropped.
	require.NoError(t, b.UpdateStep(ctx, StepRecord{
		ID: "ghost2", ThreadID: "t1", Type: StepTypeAssistant, Output: "x",
	}))

	msgs, err := st.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestCreateStepDropsUnknownThreadAndDuplicates(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)

	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "orphan", ThreadID: "gone", Type: StepTypeUser, Output: "hi",
	}))
	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "once", ThreadID: "t1", Type: StepTypeUser, Output: "hi",
	}))
	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "once", ThreadID: "t1", Type: StepTypeUser, Output: "hi again",
	}))

	msgs, err := st.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	err = b.CreateStep(ctx, StepRecord{ID: "bad", ThreadID: "t1", Type: StepTypeUser})
	assert.ErrorIs(t, err, store.ErrInvalidArgument, "empty user content is rejected")
}

func TestGetThreadOrdering(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	_, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)

	const turns = 5
	for i := 0; i < turns; i++ {
		require.NoError(t, b.CreateStep(ctx, StepRecord{
			ID: fmt.Sprintf("u%d", i), ThreadID: "t1", Type: StepTypeUser,
			Output: fmt.Sprintf("q%d", i),
		}))
		require.NoError(t, b.CreateStep(ctx, StepRecord{
			ID: fmt.Sprintf("a%d", i), ThreadID: "t1", Type: StepTypeAssistant,
			Output: fmt.Sprintf("r%d", i),
		}))
	}

	th, err := b.GetThread(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, th.Steps, 2*turns)
	for i := 0; i < turns; i++ {
		assert.Equal(t, fmt.Sprintf("q%d", i), th.Steps[2*i].Output)
		assert.Equal(t, StepTypeUser, th.Steps[2*i].Type)
		assert.Equal(t, fmt.Sprintf("r%d", i), th.Steps[2*i+1].Output)
		assert.Equal(t, StepTypeAssistant, th.Steps[2*i+1].Type)
	}
}

func TestListThreadsPagination(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	const total, pageSize = 7, 3
	for i := 0; i < total; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		st.SetClock(func() time.Time { return ts })
		_, err := st.CreateConversation(ctx, user.ID, fmt.Sprintf("conv %d", i), fmt.Sprintf("t%d", i))
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		page, err := b.ListThreads(ctx, user.ID, pageSize, cursor)
		require.NoError(t, err)
		pages++
		for _, item := range page.Items {
			assert.False(t, seen[item.ID], "thread %s seen twice", item.ID)
			seen[item.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, total)

	// First page is newest-first.
	first, err := b.ListThreads(ctx, user.ID, pageSize, "")
	require.NoError(t, err)
	require.Len(t, first.Items, pageSize)
	assert.Equal(t, "t6", first.Items[0].ID)
	assert.Equal(t, "t5", first.Items[1].ID)
}

func TestDeleteThreadCascades(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)
	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "s1", ThreadID: "t1", Type: StepTypeUser, Output: "hi",
	}))
	msg, err := st.LatestMessageByRole(ctx, conv.ID, store.RoleUser)
	require.NoError(t, err)

	require.NoError(t, b.DeleteThread(ctx, "t1"))

	_, err = b.GetThread(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetMessageByID(ctx, msg.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	// Deleting again is a no-op.
	require.NoError(t, b.DeleteThread(ctx, "t1"))
}

func TestDeleteStep(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)
	require.NoError(t, b.CreateStep(ctx, StepRecord{
		ID: "s1", ThreadID: "t1", Type: StepTypeUser, Output: "hi",
	}))

	require.NoError(t, b.DeleteStep(ctx, "s1"))
	msgs, err := st.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, b.DeleteStep(ctx, "never-existed"))
}

func TestThreadOwner(t *testing.T) {
	b, st, user := newFixture(t)
	ctx := context.Background()
	_, err := st.CreateConversation(ctx, user.ID, "chat", "t1")
	require.NoError(t, err)

	owner, err := b.ThreadOwner(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", owner)

	owner, err = b.ThreadOwner(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, owner)
}
