package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vesperchat/vesper/internal/store"
)

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
		logger: log.With(slog.String("service", "settings")),
	}
}

// Get returns the user's settings, lazily creating the default record on
// first read.
func (s *Service) Get(ctx context.Context, userID int64) (Settings, error) {
	row, err := s.store.GetSettings(ctx, userID)
	if err == nil {
		return toSettings(row), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Settings{}, err
	}
	row, err = s.store.SaveSettings(ctx, store.UserSettings{
		UserID:         userID,
		DefaultModel:   DefaultModel,
		Temperature:    DefaultTemperature,
		FavoriteModels: []string{},
	})
	if err != nil {
		return Settings{}, err
	}
	s.logger.Info("default settings created", slog.Int64("user_id", userID))
	return toSettings(row), nil
}

// Upsert applies a partial update in place, creating the record with
// defaults first when absent. Temperature must stay in [0, 1]; the
// favorites list is an ordered set, duplicates rejected.
func (s *Service) Upsert(ctx context.Context, userID int64, req UpsertRequest) (Settings, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return Settings{}, err
	}

	if req.DefaultModel != nil {
		model := strings.TrimSpace(*req.DefaultModel)
		if model == "" {
			return Settings{}, fmt.Errorf("%w: default_model cannot be empty", store.ErrInvalidArgument)
		}
		current.DefaultModel = model
	}
	if req.Temperature != nil {
		if *req.Temperature < 0 || *req.Temperature > 1 {
			return Settings{}, fmt.Errorf("%w: temperature %v outside [0, 1]", store.ErrInvalidArgument, *req.Temperature)
		}
		current.Temperature = *req.Temperature
	}
	if req.FavoriteModels != nil {
		favorites, err := validateFavorites(req.FavoriteModels)
		if err != nil {
			return Settings{}, err
		}
		current.FavoriteModels = favorites
	}

	row, err := s.store.SaveSettings(ctx, store.UserSettings{
		UserID:         userID,
		DefaultModel:   current.DefaultModel,
		Temperature:    current.Temperature,
		FavoriteModels: current.FavoriteModels,
	})
	if err != nil {
		return Settings{}, err
	}
	return toSettings(row), nil
}

func validateFavorites(models []string) ([]string, error) {
	out := make([]string, 0, len(models))
	seen := map[string]struct{}{}
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, fmt.Errorf("%w: favorite model name cannot be empty", store.ErrInvalidArgument)
		}
		if _, ok := seen[m]; ok {
			return nil, fmt.Errorf("%w: duplicate favorite model %q", store.ErrInvalidArgument, m)
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

func toSettings(row store.UserSettings) Settings {
	favorites := row.FavoriteModels
	if favorites == nil {
		favorites = []string{}
	}
	return Settings{
		DefaultModel:   row.DefaultModel,
		Temperature:    row.Temperature,
		FavoriteModels: favorites,
	}
}
