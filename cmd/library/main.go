// Package main запускает HTTP-сервер сервиса выдачи книг.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/library-circulation/internal/config"
	"github.com/mmeshcher/library-circulation/internal/handler"
	"github.com/mmeshcher/library-circulation/internal/middleware"
	"github.com/mmeshcher/library-circulation/internal/notifier"
	"github.com/mmeshcher/library-circulation/internal/repository"
	"github.com/mmeshcher/library-circulation/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := openRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	var n service.Notifier
	if cfg.NotifierAddress != "" {
		n = notifier.NewClient(cfg.NotifierAddress)
	}

	svc := service.NewService(repo, n, service.WithLogger(logger))
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая отправка напоминаний о сроках возврата
	g.Go(func() error {
		svc.StartReminderDispatch(ctx, cfg.ReminderInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting library server", "addr", cfg.RunAddress, "postgres", cfg.DatabaseURI != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// openRepository выбирает хранилище: PostgreSQL, если задан dsn, иначе в памяти.
func openRepository(dsn string) (service.Repository, error) {
	if dsn == "" {
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(dsn)
	if err != nil {
		return nil, err
	}
	return repo, nil
}
