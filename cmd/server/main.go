package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/config"
	"github.com/obiente/warmup/voicecapture/internal/engine"
	serverhttp "github.com/obiente/warmup/voicecapture/internal/http"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	cfg, err := config.Load(os.Getenv("VOICE_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		lvl = l
	}
	log.Logger = log.Level(lvl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	eng, err := engine.New(cfg.Voice, audio.Device{}, metrics.New(reg))
	if err != nil {
		log.Fatal().Err(err).Str("model_type", cfg.Voice.ModelType).Msg("model load failed")
	}
	defer eng.Close()

	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     serverhttp.NewRouter(eng, reg),
		ReadTimeout: 30 * time.Second,
	}

	log.Info().Str("addr", cfg.Addr).Str("model", cfg.Voice.Kind().String()).Msg("voice capture server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
