package backend

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
)

const kindWindowed = "windowed"

// Windowed buffers frames and transcribes them a window at a time.
type Windowed struct {
	model      WindowedModel
	window     int
	channels   int
	sampleRate int
	metrics    *metrics.Metrics

	buf []audio.Frame
}

func NewWindowed(model WindowedModel, window, channels, sampleRate int, m *metrics.Metrics) *Windowed {
	if window < 1 {
		window = 1
	}
	return &Windowed{
		model:      model,
		window:     window,
		channels:   channels,
		sampleRate: sampleRate,
		metrics:    m,
		buf:        make([]audio.Frame, 0, window),
	}
}

func (w *Windowed) Feed(frame audio.Frame) (string, bool) {
	w.buf = append(w.buf, frame)
	if len(w.buf) < w.window {
		return "", false
	}
	return w.transcribe()
}

// Flush transcribes a partially filled window.
func (w *Windowed) Flush() (string, bool) {
	if len(w.buf) == 0 {
		return "", false
	}
	return w.transcribe()
}

// Pending is the number of frames waiting for the next pass.
func (w *Windowed) Pending() int { return len(w.buf) }

func (w *Windowed) Close() error {
	w.reset()
	return nil
}

// transcribe empties the buffer before calling the model, so a failed pass
// drops its window instead of transcribing it again.
func (w *Windowed) transcribe() (string, bool) {
	frames := len(w.buf)
	span := audio.Concat(w.buf, w.channels)
	w.reset()

	start := time.Now()
	text, err := w.model.Transcribe(span, w.sampleRate)
	elapsed := time.Since(start)
	w.metrics.ObserveInference(kindWindowed, elapsed)
	w.metrics.WindowTranscribed()
	if err != nil {
		w.metrics.BackendFailure(kindWindowed)
		log.Error().Err(err).Str("backend", kindWindowed).Int("frames", frames).Msg("window transcription failed")
		return "", false
	}
	log.Debug().Int("frames", frames).Int("samples", len(span)).Dur("elapsed", elapsed).Msg("window transcribed")
	return segment(text)
}

func (w *Windowed) reset() {
	clear(w.buf)
	w.buf = w.buf[:0]
}
