// Package engine is the entry point the rest of the application uses to
// record one spoken answer: TranscribeAudio blocks until the speaker says
// the stop phrase and returns the cleaned transcript.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/backend"
	"github.com/obiente/warmup/voicecapture/internal/config"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
	"github.com/obiente/warmup/voicecapture/internal/session"
	"github.com/obiente/warmup/voicecapture/internal/vosk"
	"github.com/obiente/warmup/voicecapture/internal/whisper"
)

// ErrBusy is returned when a session is already capturing from the device.
var ErrBusy = errors.New("engine: a recording session is already running")

type Engine struct {
	cfg     config.Recognizer
	model   *backend.Model
	source  audio.Source
	metrics *metrics.Metrics

	mu sync.Mutex // held for the duration of a session; the device is exclusive
}

// New loads the configured model. Load failures are returned before any
// capture begins.
func New(cfg config.Recognizer, source audio.Source, m *metrics.Metrics) (*Engine, error) {
	model, err := LoadModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModel(cfg, model, source, m), nil
}

// NewWithModel wraps an already loaded model.
func NewWithModel(cfg config.Recognizer, model *backend.Model, source audio.Source, m *metrics.Metrics) *Engine {
	return &Engine{cfg: cfg, model: model, source: source, metrics: m}
}

// LoadModel loads the recognizer for cfg's model kind.
func LoadModel(cfg config.Recognizer) (*backend.Model, error) {
	kind, err := config.ParseModelKind(cfg.ModelType)
	if err != nil {
		return nil, err
	}
	switch kind {
	case config.KindStreaming:
		m, err := vosk.Load(cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("load streaming model: %w", err)
		}
		return backend.NewStreamingModel(m), nil
	case config.KindWindowed:
		e, err := whisper.NewEngine(cfg)
		if err != nil {
			return nil, fmt.Errorf("load windowed model: %w", err)
		}
		return backend.NewWindowedModel(e), nil
	default:
		return nil, fmt.Errorf("%w: %v", config.ErrUnsupportedModel, kind)
	}
}

func (e *Engine) Config() config.Recognizer { return e.cfg }

// NewSession prepares a session that publishes every appended segment to
// onUpdate. It acquires nothing until Run.
func (e *Engine) NewSession(onUpdate func(session.Update)) *session.Session {
	return session.New(session.Options{
		Config:   e.cfg,
		Metrics:  e.metrics,
		OnUpdate: onUpdate,
	})
}

// Run captures with s on a fresh backend. It returns ErrBusy if another
// session holds the device.
func (e *Engine) Run(s *session.Session) (string, error) {
	if !e.mu.TryLock() {
		return "", ErrBusy
	}
	defer e.mu.Unlock()

	be, err := e.model.NewBackend(e.cfg, e.metrics)
	if err != nil {
		return "", fmt.Errorf("create backend: %w", err)
	}
	log.Info().Str("session", s.ID()).Str("kind", e.model.Kind().String()).Msg("recording started")
	return s.Run(e.source, be)
}

// TranscribeAudio records until the stop phrase and returns the transcript.
func (e *Engine) TranscribeAudio() (string, error) {
	return e.Run(e.NewSession(nil))
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Close()
}
