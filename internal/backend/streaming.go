package backend

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
)

const kindStreaming = "streaming"

// Streaming feeds every frame to a stateful decoder.
type Streaming struct {
	dec      Decoder
	channels int
	metrics  *metrics.Metrics
}

func NewStreaming(dec Decoder, channels int, m *metrics.Metrics) *Streaming {
	return &Streaming{dec: dec, channels: channels, metrics: m}
}

func (s *Streaming) Feed(frame audio.Frame) (string, bool) {
	start := time.Now()
	defer func() { s.metrics.ObserveInference(kindStreaming, time.Since(start)) }()

	ready, err := s.dec.AcceptWaveform(frame.PCM16LE(s.channels))
	if err != nil {
		s.fail("accept waveform", err)
		return "", false
	}
	if !ready {
		return "", false
	}
	text, err := s.dec.Result()
	if err != nil {
		s.fail("read result", err)
		return "", false
	}
	return segment(text)
}

func (s *Streaming) Flush() (string, bool) {
	text, err := s.dec.FinalResult()
	if err != nil {
		s.fail("read final result", err)
		return "", false
	}
	return segment(text)
}

func (s *Streaming) Close() error { return s.dec.Close() }

func (s *Streaming) fail(op string, err error) {
	s.metrics.BackendFailure(kindStreaming)
	log.Error().Err(err).Str("backend", kindStreaming).Str("op", op).Msg("frame recognition failed")
}
