// Package main запускает HTTP-сервер сервиса крафтмаркет.
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

	"github.com/kstarkov/craftmarket-system/internal/broadcast"
	"github.com/kstarkov/craftmarket-system/internal/config"
	"github.com/kstarkov/craftmarket-system/internal/handler"
	"github.com/kstarkov/craftmarket-system/internal/middleware"
	"github.com/kstarkov/craftmarket-system/internal/repository"
	"github.com/kstarkov/craftmarket-system/internal/service"
	"github.com/kstarkov/craftmarket-system/internal/settings"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var publisher broadcast.Publisher = broadcast.NopPublisher{}
	if cfg.BroadcastURL != "" {
		publisher = broadcast.LoggingPublisher{
			Next:   broadcast.NewWebhookPublisher(cfg.BroadcastURL),
			Logger: logger,
		}
	}

	settingsCache := settings.NewCache(repo)

	svc := service.NewService(repo, publisher, settingsCache, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фонового обхода аукционов: активация, завершение, расчёты
	g.Go(func() error {
		svc.StartAuctionSweep(ctx, cfg.SweepInterval())
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting craftmarket server", "addr", cfg.RunAddress)
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
