package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BuzzLyutic/taskboard/internal/auth"
	"github.com/BuzzLyutic/taskboard/internal/config"
	"github.com/BuzzLyutic/taskboard/internal/gateway"
	"github.com/BuzzLyutic/taskboard/internal/handler"
	"github.com/BuzzLyutic/taskboard/internal/objectstore"
	"github.com/BuzzLyutic/taskboard/internal/realtime"
	"github.com/BuzzLyutic/taskboard/internal/store"
	"github.com/BuzzLyutic/taskboard/internal/suggest"
	"github.com/BuzzLyutic/taskboard/internal/worker"
)

func main() {
	// Подключаем логгер
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped successfully!")
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	files, closeFiles, err := openFiles(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFiles()

	broker := realtime.NewBroker()
	g, gctx := errgroup.WithContext(ctx)

	var gw *gateway.Gateway
	if cfg.InMemory() {
		logger.Warn("DATABASE_URL is memory, data will not survive a restart")
		gw = gateway.NewMemory(broker).Gateway(files)
	} else {
		// Подключаем БД
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close() // Запланированное закрытие соединения

		if err := pool.Ping(ctx); err != nil {
			return err
		}
		logger.Info("Successfully connected to the Database!")

		gw = gateway.NewPostgres(pool, files, broker)
		listener := realtime.NewPgListener(pool, broker, logger)
		g.Go(func() error { return listener.Run(gctx) })
	}

	mock := suggest.NewMock()
	registry := store.NewRegistry(gw, logger, store.WithPrioritizer(mock))
	defer registry.Close()
	if cfg.StoreIdleTimeout > 0 {
		g.Go(func() error { return registry.RunEviction(gctx, cfg.StoreIdleTimeout/2, cfg.StoreIdleTimeout) })
	}

	authSvc := auth.NewService(gw.Profiles, auth.Config{
		Tokens:            auth.DefaultTokenConfig(cfg.JWTSecret),
		BaseURL:           cfg.BaseURL,
		BcryptCost:        cfg.BcryptCost,
		RedirectAllowlist: cfg.OAuthRedirectAllowlist,
		Providers: map[string]auth.OAuthProvider{
			"google": {
				AuthURL:  cfg.OAuthGoogleURL,
				ClientID: cfg.OAuthGoogleClient,
				Scopes:   []string{"openid", "email", "profile"},
			},
		},
	}, nil, logger)

	// после выхода пользователя его store больше не нужен
	authSub := authSvc.OnAuthStateChange(func(c auth.StateChange) {
		if c.Event == auth.EventSignedOut {
			registry.Drop(c.UserID)
		}
	})
	defer authSub.Unsubscribe()

	router := handler.NewRouter(
		handler.NewAuthHandler(authSvc, logger),
		handler.NewTaskHandler(registry, mock, suggest.NewMockTranscriber(), logger),
	)

	srv := &http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	workers := worker.NewPool(gw.Tasks, mock, logger, cfg.WorkerCount, cfg.PrioritizeInterval)
	workers.Start(gctx)

	g.Go(func() error { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		workers.Stop()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openFiles picks NATS object storage when NATS_URL is set, memory otherwise.
func openFiles(ctx context.Context, cfg config.Config, logger *zap.Logger) (objectstore.Store, func(), error) {
	if cfg.NATSURL == "" {
		logger.Warn("NATS_URL is empty, attachments are kept in memory")
		return objectstore.NewMemory(), func() {}, nil
	}
	js, err := objectstore.NewJetStreamStore(ctx, cfg.NATSURL, cfg.AttachmentBucket)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to NATS object store", zap.String("bucket", cfg.AttachmentBucket))
	return js, func() { js.Close() }, nil
}
