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

	"github.com/divinesarathi/voice/internal/api"
	"github.com/divinesarathi/voice/internal/audio"
	"github.com/divinesarathi/voice/internal/auth"
	"github.com/divinesarathi/voice/internal/config"
	"github.com/divinesarathi/voice/internal/control"
	"github.com/divinesarathi/voice/internal/observe"
	"github.com/divinesarathi/voice/internal/protocol"
	"github.com/divinesarathi/voice/internal/session"
	"github.com/divinesarathi/voice/internal/webrtc"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const helpText = `sarathi - Realtime voice conversation with Divine Sarathi

Usage:
  sarathi [options]

Serves a local control surface for one voice session. The microphone is an
Ogg/Opus file and the assistant's voice is written to another.

Endpoints:
  GET /healthz    Liveness
  GET /api/state  Current session snapshot
  GET /api/ws     Control WebSocket (connect, start, stop, mute, disconnect)
  GET /metrics    Prometheus metrics

Environment Variables:
  SARATHI_AUTH_TOKEN    Bearer token for the Divine Sarathi API (stored on first use)
  SARATHI_STORY_ID      Default story for the conversation
  SARATHI_STORY_TYPE    Category of the default story
  SARATHI_MIC_PATH      Ogg/Opus input file (default mic.ogg)
  SARATHI_SPEAKER_PATH  Ogg/Opus output file (default speaker.ogg)
  SARATHI_LISTEN_ADDR   Control address (default 127.0.0.1:8787)
  SARATHI_CONFIG        Optional YAML config file

Options:
  -h, --help  Show this help message
`

const shutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownMetrics, err := observe.InitProvider(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("init metrics")
	}

	tokens := auth.NewFileStore(cfg.TokenPath)
	if cfg.AuthToken != "" {
		if err := tokens.Save(cfg.AuthToken); err != nil {
			log.Fatal().Err(err).Str("module", "main").Msg("store auth token")
		}
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	backend := api.NewClient(cfg.APIBaseURL, httpClient, tokens)
	speaker := audio.NewSpeaker(cfg.SpeakerPath)

	sess := session.New(session.Config{
		Mic:         audio.NewGate(audio.OggDevice{Path: cfg.MicPath, Simulator: cfg.Simulator}),
		Credentials: backend,
		Negotiator:  api.NewNegotiator(cfg.RealtimeURL, cfg.RealtimeModel, httpClient),
		Correlator:  backend,
		NewPeer:     webrtc.Factory(webrtc.Config{STUNServers: cfg.STUNServers, Speaker: speaker}),
		Router:      speaker,
		Protocol: protocol.SessionConfig{
			TranscriptionModel: cfg.TranscriptionModel,
			VADThreshold:       cfg.VADThreshold,
			PrefixPadding:      cfg.VADPrefixPadding,
			Silence:            cfg.VADSilence,
		},
		Metrics: observe.DefaultMetrics(),
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: control.SetupRouter(ctx, cfg, sess),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", cfg.ListenAddr).Msg("control server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
		}
		sess.Close()
		return shutdownMetrics(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Str("module", "main").Msg("exited with error")
	}
	log.Info().Str("module", "main").Msg("done")
}
