package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/staykit/pms/internal/authclient"
	"github.com/staykit/pms/internal/config"
	"github.com/staykit/pms/internal/directory"
	"github.com/staykit/pms/internal/enum"
	"github.com/staykit/pms/internal/logger"
	"github.com/staykit/pms/internal/maintenance"
	mw "github.com/staykit/pms/internal/middleware"
	"github.com/staykit/pms/internal/persist"
	"github.com/staykit/pms/internal/router"
	"github.com/staykit/pms/internal/session"
	"github.com/staykit/pms/internal/tracking"
	"github.com/staykit/pms/internal/workspace"
	"github.com/staykit/pms/internal/ws"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	zap.ReplaceGlobals(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	storage, users, cleanup, err := openBackend(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer cleanup()

	dir := directory.New(users, cfg.JWTSecret, zl.Named("directory"))
	if err := seedAdmin(ctx, cfg, users, zl); err != nil {
		return err
	}

	newAuth := func() session.AuthService { return directory.NewClient(dir) }
	if cfg.AuthMode == enum.AuthModeRemote {
		newAuth = func() session.AuthService {
			return authclient.New(cfg.AuthBaseURL, nil, cfg.AuthTimeout)
		}
	}

	hub := ws.NewHub(zl.Named("ws"))
	go hub.Run(ctx)

	tracker := tracking.NewTracker(hub, zl.Named("tracking"))
	manager := workspace.NewManager(storage, newAuth, zl.Named("workspace"))
	limiter := mw.NewRateLimiter(cfg.LoginRatePerMin, zl.Named("ratelimit"))

	tasks := []maintenance.Task{
		{Name: "workspaces", Run: func(context.Context) (int, error) {
			n := manager.Evict(cfg.SessionTTL)
			zl.Debug("workspaces in memory", zap.Int("live", manager.Len()))
			return n, nil
		}},
		{Name: "revoked-tokens", Run: func(context.Context) (int, error) { return dir.PruneRevoked(time.Now()), nil }},
		{Name: "rate-limiters", Run: func(context.Context) (int, error) { return limiter.Prune(time.Hour), nil }},
	}
	if sw, ok := storage.(persist.Sweeper); ok {
		tasks = append(tasks, maintenance.Task{Name: "storage", Run: sw.Sweep})
	}
	janitor := maintenance.New(time.Minute, zl.Named("maintenance"), tasks...)
	if err := janitor.Start(cfg.SweepSchedule); err != nil {
		return err
	}

	r := router.New(cfg, router.Deps{
		Directory:  dir,
		Workspaces: manager,
		Orders:     tracker,
		Hub:        hub,
		Limiter:    limiter,
		Logger:     zl,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("storage", cfg.StorageBackend),
			zap.String("auth_mode", cfg.AuthMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	janitor.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	zl.Info("server stopped")
	return nil
}

// openBackend connects the configured storage backend. The user directory
// lives in Postgres when the console state does; otherwise it is in memory.
func openBackend(ctx context.Context, cfg *config.Config, zl *zap.Logger) (persist.Storage, directory.UserStore, func(), error) {
	switch cfg.StorageBackend {
	case enum.StorageBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ping database: %w", err)
		}
		storage := persist.NewPostgresStorage(pool, cfg.SessionTTL)
		users := directory.NewPostgresUsers(pool)
		if err := storage.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate console_state: %w", err)
		}
		if err := users.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("migrate staff_users: %w", err)
		}
		zl.Info("connected to database")
		return storage, users, pool.Close, nil

	case enum.StorageBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		zl.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		cleanup := func() {
			if err := client.Close(); err != nil {
				zl.Warn("close redis", zap.Error(err))
			}
		}
		return persist.NewRedisStorage(client, "pms:", cfg.SessionTTL), directory.NewMemoryUsers(), cleanup, nil
	}

	return persist.NewMemoryStorage(cfg.SessionTTL), directory.NewMemoryUsers(), func() {}, nil
}

// seedAdmin creates the SEED_EMAIL superadmin when it is configured and
// missing. Postgres deployments normally run cmd/seed instead.
func seedAdmin(ctx context.Context, cfg *config.Config, users directory.UserStore, zl *zap.Logger) error {
	if cfg.SeedEmail == "" || cfg.SeedPassword == "" {
		if cfg.StorageBackend != enum.StorageBackendPostgres {
			zl.Warn("no SEED_EMAIL/SEED_PASSWORD set; the in-memory directory starts empty")
		}
		return nil
	}
	if _, err := users.GetUserByEmail(ctx, cfg.SeedEmail); err == nil {
		return nil
	} else if !errors.Is(err, directory.ErrUserNotFound) {
		return fmt.Errorf("check seed user: %w", err)
	}

	hashed, err := directory.HashPassword(cfg.SeedPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}
	acct, err := users.CreateUser(ctx, directory.Account{
		User: session.User{
			Email:       cfg.SeedEmail,
			DisplayName: cfg.SeedName,
			Role:        enum.RoleSuperadmin,
		},
		PasswordHash: hashed,
	})
	if err != nil {
		return fmt.Errorf("create seed user: %w", err)
	}
	zl.Info("seeded superadmin", zap.String("email", acct.Email), zap.String("user_id", acct.ID.String()))
	return nil
}
