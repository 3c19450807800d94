package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperchat/vesper/internal/settings"
	"github.com/vesperchat/vesper/internal/store"
	"github.com/vesperchat/vesper/internal/store/memory"
)

func newService(t *testing.T) (*settings.Service, int64) {
	t.Helper()
	st := memory.New()
	u, err := st.CreateUser(context.Background(), "owner@example.com", "hash")
	require.NoError(t, err)
	return settings.NewService(nil, st), u.ID
}

func TestGetCreatesDefaultsLazily(t *testing.T) {
	ctx := context.Background()
	svc, userID := newService(t)

	got, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultModel, got.DefaultModel)
	assert.InDelta(t, settings.DefaultTemperature, got.Temperature, 1e-9)
	assert.Empty(t, got.FavoriteModels)
}

func TestUpsertPartialUpdate(t *testing.T) {
	ctx := context.Background()
	svc, userID := newService(t)

	model := "mistral"
	got, err := svc.Upsert(ctx, userID, settings.UpsertRequest{DefaultModel: &model})
	require.NoError(t, err)
	assert.Equal(t, "mistral", got.DefaultModel)
	// Untouched fields keep defaults.
	assert.InDelta(t, settings.DefaultTemperature, got.Temperature, 1e-9)

	temp := 0.2
	got, err = svc.Upsert(ctx, userID, settings.UpsertRequest{Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "mistral", got.DefaultModel)
	assert.InDelta(t, 0.2, got.Temperature, 1e-9)

	got, err = svc.Upsert(ctx, userID, settings.UpsertRequest{
		FavoriteModels: []string{"mistral", "llama2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mistral", "llama2"}, got.FavoriteModels)
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	svc, userID := newService(t)

	tooHot := 1.5
	_, err := svc.Upsert(ctx, userID, settings.UpsertRequest{Temperature: &tooHot})
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	_, err = svc.Upsert(ctx, userID, settings.UpsertRequest{
		FavoriteModels: []string{"llama2", "llama2"},
	})
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	empty := "  "
	_, err = svc.Upsert(ctx, userID, settings.UpsertRequest{DefaultModel: &empty})
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc, userID := newService(t)

	_, err := svc.Get(ctx, userID+99)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
