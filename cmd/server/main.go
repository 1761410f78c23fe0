package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/events"
	"github.com/JeffZl/frontenduas/internal/httpserver"
	"github.com/JeffZl/frontenduas/internal/logger"
	"github.com/JeffZl/frontenduas/internal/security"
	"github.com/JeffZl/frontenduas/internal/store"
	"github.com/JeffZl/frontenduas/internal/ws"
)

// @title           Direct Messages API
// @version         1.0
// @description     Conversations, messages and read state between two users.

// @host            localhost:8000
// @BasePath        /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Development: cfg.IsDevelopment(), Level: cfg.LogLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer st.Close()

	bus, err := events.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to connect event broker", zap.String("broker", cfg.EventBroker), zap.Error(err))
	}
	defer bus.Close()

	tokenSvc := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())

	hub := ws.NewHub(log)
	if err := hub.Run(ctx, bus); err != nil {
		log.Fatal("failed to subscribe websocket hub", zap.Error(err))
	}

	router := httpserver.NewRouter(cfg, st, bus, hub, tokenSvc, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server",
			zap.String("addr", cfg.HTTPAddr()),
			zap.String("db_driver", cfg.DBDriver),
			zap.String("event_broker", cfg.EventBroker))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
