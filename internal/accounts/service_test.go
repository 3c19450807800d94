package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperchat/vesper/internal/accounts"
	"github.com/vesperchat/vesper/internal/store"
	"github.com/vesperchat/vesper/internal/store/memory"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := accounts.NewService(nil, memory.New())

	acc, err := svc.Register(ctx, accounts.RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Positive(t, acc.ID)

	identity, err := svc.Authenticate(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, identity.UserID)
	assert.Equal(t, acc.Email, identity.Email)

	_, err = svc.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := accounts.NewService(nil, memory.New())

	_, err := svc.Register(ctx, accounts.RegisterRequest{Email: "a@b.com", Password: "secret-pass"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, accounts.RegisterRequest{Email: "a@b.com", Password: "other-pass"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}
