// Package backend adapts the two recognizer families to one capability:
// consume a frame, optionally produce a finalized text segment.
//
// A streaming backend owns a stateful decoder that decides on its own when
// a segment is final. A windowed backend buffers frames until a window is
// full and transcribes the whole span in one model call, trading up to one
// window of latency for amortized per-call overhead.
package backend

import (
	"fmt"
	"strings"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/config"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
)

// Backend is owned by exactly one session and is not safe for concurrent use.
type Backend interface {
	// Feed consumes one frame. It reports a segment (text plus a trailing
	// space) when recognition finalized one. Recognition failures are
	// logged and reported as no segment.
	Feed(frame audio.Frame) (string, bool)
	// Flush finalizes whatever audio is pending at end of input.
	Flush() (string, bool)
	Close() error
}

// Decoder is an incremental recognizer with internal state.
type Decoder interface {
	// AcceptWaveform consumes mono PCM16LE and reports whether a segment
	// is ready to be read with Result.
	AcceptWaveform(pcm []byte) (bool, error)
	Result() (string, error)
	FinalResult() (string, error)
	Close() error
}

// StreamingModel is a loaded acoustic model; each session gets its own Decoder.
type StreamingModel interface {
	NewDecoder(sampleRate int) (Decoder, error)
	Close() error
}

// WindowedModel transcribes a whole mono span per call.
type WindowedModel interface {
	Transcribe(samples []float32, sampleRate int) (string, error)
	Close() error
}

// Model is the loaded recognizer: exactly one of the two variants,
// selected by kind.
type Model struct {
	kind      config.ModelKind
	streaming StreamingModel
	windowed  WindowedModel
}

func NewStreamingModel(m StreamingModel) *Model {
	return &Model{kind: config.KindStreaming, streaming: m}
}

func NewWindowedModel(m WindowedModel) *Model {
	return &Model{kind: config.KindWindowed, windowed: m}
}

func (m *Model) Kind() config.ModelKind { return m.kind }

// NewBackend creates fresh per-session recognizer state on top of the
// shared model.
func (m *Model) NewBackend(cfg config.Recognizer, met *metrics.Metrics) (Backend, error) {
	switch m.kind {
	case config.KindStreaming:
		dec, err := m.streaming.NewDecoder(cfg.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("new decoder: %w", err)
		}
		return NewStreaming(dec, cfg.Channels, met), nil
	case config.KindWindowed:
		return NewWindowed(m.windowed, cfg.WindowLength(), cfg.Channels, cfg.SampleRate, met), nil
	default:
		return nil, fmt.Errorf("%w: %v", config.ErrUnsupportedModel, m.kind)
	}
}

func (m *Model) Close() error {
	switch m.kind {
	case config.KindStreaming:
		return m.streaming.Close()
	case config.KindWindowed:
		return m.windowed.Close()
	default:
		return nil
	}
}

func segment(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text + " ", true
}
