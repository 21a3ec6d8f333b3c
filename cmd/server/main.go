package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/sumire/fleetdesk/internal/config"
	"github.com/sumire/fleetdesk/internal/handler"
	"github.com/sumire/fleetdesk/internal/repository"
	"github.com/sumire/fleetdesk/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.Default()

	var (
		requestStore      service.RequestStore      = repository.NewMemoryRequestStore()
		notificationStore service.NotificationStore = repository.NewMemoryNotificationStore()
		messageStore      service.MessageStore      = repository.NewMemoryMessageStore()
	)

	if cfg.StoreDriver == config.DriverPostgres {
		db, err := sqlx.Connect("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		slog.Info("database connected")

		requestStore = repository.NewRequestRepository(db)
		notificationStore = repository.NewNotificationRepository(db)
	}

	if cfg.MessageStore == config.DriverRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}

		slog.Info("redis connected", "addr", cfg.RedisAddr)

		messageStore = repository.NewRedisMessageStore(rdb)
	}

	if len(cfg.AdminIDs) == 0 {
		slog.Warn("ADMIN_IDS is empty; creation and customer message notifications have no recipients")
	}

	tokens := service.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	lifecycle := service.NewLifecycleService(requestStore, logger)
	notifications := service.NewNotificationService(notificationStore, service.StaticAdminDirectory(cfg.AdminIDs), logger)
	tracking := service.NewTrackingService(requestStore, cfg.TrackingIdleTimeout, logger)
	messages := service.NewMessageService(messageStore, notifications, logger)

	lifecycle.Subscribe("notifications", notifications)
	lifecycle.Subscribe("tracking", tracking)

	if cfg.TrackingSimulate {
		sim := service.NewSimulator(tracking, service.SimulatorConfig{
			Interval: cfg.TrackingSimulateInterval,
			DepotLat: cfg.DepotLat,
			DepotLng: cfg.DepotLng,
		}, logger)
		defer sim.Stop()
		lifecycle.Subscribe("simulator", sim)
	}

	e := handler.NewRouter(handler.Services{
		Tokens:        tokens,
		Lifecycle:     lifecycle,
		Notifications: notifications,
		Tracking:      tracking,
		Messages:      messages,
	}, cfg.FrontendURL)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Port, "store", cfg.StoreDriver, "messages", cfg.MessageStore)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
