package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/vesperchat/vesper/internal/auth"
	"github.com/vesperchat/vesper/internal/store"
)

// ErrInvalidCredentials is returned when the email/password pair does not
// verify. It deliberately does not distinguish unknown email from wrong
// password.
var ErrInvalidCredentials = errors.New("invalid credentials")

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
		logger: log.With(slog.String("service", "accounts")),
	}
}

// Register creates a user with a bcrypt credential hash.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.store.CreateUser(ctx, email, string(hash))
	if err != nil {
		return Account{}, err
	}
	s.logger.Info("user registered", slog.Int64("user_id", u.ID))
	return toAccount(u), nil
}

// Authenticate verifies (identifier, plaintext secret) and returns the
// verified identity carrying the numeric id used as the user_id foreign key.
func (s *Service) Authenticate(ctx context.Context, email, password string) (auth.Identity, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Identity{}, ErrInvalidCredentials
		}
		return auth.Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return auth.Identity{}, ErrInvalidCredentials
	}
	return auth.Identity{UserID: u.ID, Email: u.Email}, nil
}

// Get returns the account for a user id.
func (s *Service) Get(ctx context.Context, userID int64) (Account, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	return toAccount(u), nil
}

func toAccount(u store.User) Account {
	return Account{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}
