// Command peer runs a headless call participant: it connects to the
// signaling server, answers incoming calls after a short delay and, when
// SONA_CALLEE is set, places an outgoing call itself. Media is fed from
// synthetic sample generators.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/kavelin/sona/internal/adapter/driven/gateway/ws"
	"github.com/kavelin/sona/internal/adapter/driven/media/sample"
	"github.com/kavelin/sona/internal/adapter/driven/transport/pion"
	"github.com/kavelin/sona/internal/config"
	"github.com/kavelin/sona/internal/core/domain"
	"github.com/kavelin/sona/internal/core/port"
	"github.com/kavelin/sona/internal/core/service"
)

func main() {
	_ = godotenv.Load()

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Logger()
	zlog.Logger = l

	cfg, err := config.Load()
	if err != nil {
		l.Fatal().Err(err).Msg("load config")
	}

	self := domain.Participant{
		ID:          domain.UserID(envOr("SONA_USER_ID", domain.NewUserID().String())),
		DisplayName: envOr("SONA_DISPLAY_NAME", "headless peer"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gateway, err := ws.Dial(ctx, cfg.Server.URL, self.ID)
	cancel()
	if err != nil {
		l.Fatal().Err(err).Msg("connect signaling")
	}
	defer gateway.Close()

	source := sample.NewSource(sample.WithCameras(
		sample.Camera{ID: "front", Label: "synthetic front", Gen: sample.Blank},
		sample.Camera{ID: "rear", Label: "synthetic rear", Gen: sample.Blank},
	))

	var ctrl *service.Controller
	answerDelay := durationOr("SONA_ANSWER_DELAY", 2*time.Second)

	cb := service.Callbacks{
		OnStateChange: func(st service.CallState) {
			l.Info().
				Str("call_id", st.ID.String()).
				Str("status", string(st.Status)).
				Dur("duration", st.Duration).
				Msg("call state")
			if st.Status == domain.StatusRinging && st.Direction == domain.DirectionIncoming {
				time.AfterFunc(answerDelay, func() { ctrl.Answer() })
			}
		},
		OnRemoteStream: func(rs port.RemoteStream) {
			l.Info().Str("stream", rs.ID()).Str("kind", string(rs.Kind())).Msg("remote media")
		},
		OnError: func(err error) {
			l.Warn().Err(err).Msg("call warning")
		},
	}

	ctrl, err = service.NewController(
		self,
		gateway,
		pion.NewFactory(cfg.ICE.Servers),
		source,
		clock.New(),
		service.Config{
			RingingTimeout:    cfg.Call.RingingTimeout,
			ConnectingTimeout: cfg.Call.ConnectingTimeout,
			TerminalGrace:     cfg.Call.TerminalGrace,
		},
		cb,
		l,
	)
	if err != nil {
		l.Fatal().Err(err).Msg("create controller")
	}
	defer ctrl.Close()

	if callee := os.Getenv("SONA_CALLEE"); callee != "" {
		callType := domain.CallType(envOr("SONA_CALL_TYPE", string(domain.CallTypeVoice)))
		if err := ctrl.Start(context.Background(), domain.Participant{ID: domain.UserID(callee)}, callType); err != nil {
			l.Fatal().Err(err).Msg("start call")
		}
	}

	l.Info().Str("user_id", self.ID.String()).Msg("peer ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctrl.End()
	l.Info().Msg("peer exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
