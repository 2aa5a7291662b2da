package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	handler "github.com/kavelin/sona/internal/adapter/driving/http"
	"github.com/kavelin/sona/internal/config"
	"github.com/kavelin/sona/internal/relay"
)

func main() {
	_ = godotenv.Load()

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zlog.Logger = l

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("load config")
	}

	hub := relay.NewHub()
	go hub.Run()

	h := handler.NewHandler(hub, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.Server.Addr).Msg("starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("server exited")
}
