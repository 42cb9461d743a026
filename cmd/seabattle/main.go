package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"seabattle/internal/api"
	"seabattle/internal/archive"
	"seabattle/internal/auth"
	appcfg "seabattle/internal/config"
	"seabattle/internal/game"
	"seabattle/internal/matchmaking"
	"seabattle/internal/obslog"
	"seabattle/internal/store"
	"seabattle/internal/users"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	pflag.Parse()

	cfg, err := appcfg.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	st, err := store.New(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("redis init error", zap.Error(err))
	}

	registry := game.NewRegistry(st)
	queue := matchmaking.NewQueue(registry, cfg.Game.PairInterval.Std())
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration.Std())

	// Postgres is optional: without it the server runs matchmaking and
	// games, but accounts and the archive answer 503.
	var userRepo *users.Repository
	var archiveRepo *archive.Repository
	if cfg.Database.URL != "" {
		userRepo, err = users.NewRepository(cfg.Database.URL)
		if err != nil {
			logger.Fatal("users repo init error", zap.Error(err))
		}
		archiveRepo, err = archive.NewRepository(cfg.Database.URL)
		if err != nil {
			logger.Fatal("archive repo init error", zap.Error(err))
		}
		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := userRepo.EnsureSchema(schemaCtx); err != nil {
			cancel()
			logger.Fatal("users schema error", zap.Error(err))
		}
		if err := archiveRepo.EnsureSchema(schemaCtx); err != nil {
			cancel()
			logger.Fatal("archive schema error", zap.Error(err))
		}
		cancel()
	} else {
		logger.Warn("DATABASE_URL not set, accounts and archive disabled")
	}

	// Finished games leave Redis for the archive. DropIndex makes the
	// participants pairable again even when archiving is off.
	registry.SetEvictHook(func(rec *game.Record) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if archiveRepo != nil {
			if err := archiveRepo.SaveResult(ctx, rec); err != nil {
				logger.Error("archive save error", zap.String("game_id", rec.ID), zap.Error(err))
			}
		}
		if err := st.DropIndex(ctx, rec); err != nil {
			logger.Error("index drop error", zap.String("game_id", rec.ID), zap.Error(err))
		}
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go queue.Run(runCtx)

	router := api.NewRouter(authService, userRepo, archiveRepo, registry, queue)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if userRepo != nil {
		_ = userRepo.Close()
	}
	if archiveRepo != nil {
		_ = archiveRepo.Close()
	}
	_ = st.Close()
}
