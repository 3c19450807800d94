package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/vesperchat/vesper/internal/accounts"
	"github.com/vesperchat/vesper/internal/bridge"
	"github.com/vesperchat/vesper/internal/chat"
	"github.com/vesperchat/vesper/internal/config"
	"github.com/vesperchat/vesper/internal/conversation"
	"github.com/vesperchat/vesper/internal/db"
	"github.com/vesperchat/vesper/internal/handlers"
	"github.com/vesperchat/vesper/internal/logger"
	"github.com/vesperchat/vesper/internal/server"
	"github.com/vesperchat/vesper/internal/settings"
	"github.com/vesperchat/vesper/internal/store"
	"github.com/vesperchat/vesper/internal/store/memory"
	"github.com/vesperchat/vesper/internal/store/postgres"
	"github.com/vesperchat/vesper/internal/turn"
	"github.com/vesperchat/vesper/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideStore,
			provideDispatcher,
			accounts.NewService,
			conversation.NewService,
			settings.NewService,
			bridge.New,
			provideOrchestrator,
			handlers.NewPingHandler,
			provideAuthHandler,
			handlers.NewUsersHandler,
			handlers.NewThreadsHandler,
			handlers.NewSettingsHandler,
			handlers.NewModelsHandler,
			provideChatHandler,
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (store.Store, error) {
	if cfg.Storage.Backend == "memory" {
		log.Warn("using in-memory storage; data will not survive restarts")
		return memory.New(), nil
	}

	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return postgres.New(pool), nil
}

func provideDispatcher(log *slog.Logger, cfg config.Config) *chat.Dispatcher {
	d := chat.NewDispatcher(log, cfg.Providers)
	d.SetSystemPrompt(cfg.Chat.SystemPrompt)
	return d
}

func provideOrchestrator(log *slog.Logger, d *chat.Dispatcher, b *bridge.Bridge) *turn.Orchestrator {
	return turn.New(log, d, b)
}

func provideAuthHandler(log *slog.Logger, svc *accounts.Service, cfg config.Config) (*handlers.AuthHandler, error) {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("parse jwt_expires_in: %w", err)
	}
	return handlers.NewAuthHandler(log, svc, cfg.Auth.JWTSecret, expiresIn), nil
}

func provideChatHandler(log *slog.Logger, orch *turn.Orchestrator, b *bridge.Bridge, convs *conversation.Service, set *settings.Service, cfg config.Config) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, orch, b, convs, set, cfg.Chat)
}

func provideServer(
	cfg config.Config,
	ping *handlers.PingHandler,
	authH *handlers.AuthHandler,
	users *handlers.UsersHandler,
	threads *handlers.ThreadsHandler,
	set *handlers.SettingsHandler,
	models *handlers.ModelsHandler,
	chatH *handlers.ChatHandler,
) *server.Server {
	return server.NewServer(cfg.Server.Addr, cfg.Auth.JWTSecret, []server.Handler{
		ping, authH, users, threads, set, models, chatH,
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, cfg config.Config) {
	fmt.Printf("Starting Vesper %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("server listening", slog.String("addr", cfg.Server.Addr))
				if err := srv.Start(); err != nil {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Stop(ctx)
		},
	})
}
