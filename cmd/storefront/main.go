// Package main запускает консоль клиента витрины.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront-client/internal/cart"
	"github.com/mmeshcher/storefront-client/internal/config"
	"github.com/mmeshcher/storefront-client/internal/gateway"
	"github.com/mmeshcher/storefront-client/internal/handler"
	"github.com/mmeshcher/storefront-client/internal/order"
	"github.com/mmeshcher/storefront-client/internal/repository"
	"github.com/mmeshcher/storefront-client/internal/service"
	"github.com/mmeshcher/storefront-client/internal/session"
)

func main() {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.Open(ctx, cfg.GuestStorageDSN, repository.Options{TTL: cfg.GuestCartTTL})
	if err != nil {
		sugar.Fatalw("guest storage initialization error", "error", err.Error())
	}

	provider := session.NewProvider(store, cfg.SessionSecret, logger)
	if err := provider.Restore(ctx); err != nil {
		sugar.Warnw("failed to restore session, continuing as guest", "error", err.Error())
	}

	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithTimeout(cfg.RemoteTimeout),
	}
	if cfg.BreakerEnabled() {
		opts = append(opts, gateway.WithBreaker(gateway.DefaultBreakerConfig()))
	}
	remote := gateway.NewClient(cfg.RemoteStoreAddress, provider, opts...)

	carts := cart.NewSynchronizer(store, remote, provider, logger)
	orders := order.NewTracker(remote, provider, logger)

	svc := service.NewService(provider, carts, orders, store, logger)
	defer svc.Close()

	svc.Start(ctx)

	h := handler.NewHandler(svc, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting storefront console",
			"addr", cfg.RunAddress,
			"remote", cfg.RemoteStoreAddress,
			"breaker", cfg.BreakerEnabled(),
		)
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
