package audio

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/config"
)

// WAVFile replays a recorded WAV file as if it were a live input device.
// After the last frame Read returns io.EOF.
type WAVFile struct {
	Path string
}

func (w WAVFile) Open(cfg config.Recognizer) (Stream, error) {
	b, err := os.ReadFile(w.Path)
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	pcm, err := DecodeWAVToFloat32(b)
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	samples := pcm.Samples
	if pcm.Channels != cfg.Channels {
		if cfg.Channels != 1 {
			return nil, fmt.Errorf("wav has %d channels, cannot map onto %d", pcm.Channels, cfg.Channels)
		}
		samples = Frame(samples).Mono(pcm.Channels)
	}
	if pcm.SampleRate != cfg.SampleRate {
		if cfg.Channels != 1 {
			return nil, fmt.Errorf("wav sample rate %d does not match %d", pcm.SampleRate, cfg.SampleRate)
		}
		before := len(samples)
		samples = ResampleLinear(samples, pcm.SampleRate, cfg.SampleRate)
		log.Debug().Int("before", before).Int("after", len(samples)).Int("sr", pcm.SampleRate).Msg("resampled wav input")
	}

	log.Info().
		Str("path", w.Path).
		Int("samples", len(samples)).
		Float64("seconds", float64(len(samples)/cfg.Channels)/float64(cfg.SampleRate)).
		Msg("wav replay opened")
	return &wavStream{samples: samples, size: cfg.FrameSize * cfg.Channels}, nil
}

type wavStream struct {
	mu      sync.Mutex
	samples []float32
	pos     int
	size    int
	closed  bool
}

func (s *wavStream) Read() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, os.ErrClosed
	}
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}
	f := make(Frame, s.size)
	n := copy(f, s.samples[s.pos:])
	s.pos += n
	return f, nil
}

func (s *wavStream) Interrupt() error { return s.Close() }

func (s *wavStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
