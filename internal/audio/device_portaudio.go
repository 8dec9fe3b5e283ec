//go:build portaudio

package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/config"
)

// Device is the default microphone, opened through PortAudio's blocking API.
type Device struct{}

func (Device) Open(cfg config.Recognizer) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	// frames_per_buffer bounds how much capture-to-inference latency the
	// driver can absorb before it reports an overflow.
	latency := time.Duration(float64(cfg.BufferDepth) / float64(cfg.SampleRate) * float64(time.Second))
	if latency < dev.DefaultHighInputLatency {
		latency = dev.DefaultHighInputLatency
	}
	buf := make([]float32, cfg.FrameSize*cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: cfg.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	log.Info().
		Str("device", dev.Name).
		Int("sample_rate", cfg.SampleRate).
		Int("channels", cfg.Channels).
		Int("frame_size", cfg.FrameSize).
		Dur("latency", latency).
		Msg("input stream opened")
	return &deviceStream{stream: stream, buf: buf}, nil
}

type deviceStream struct {
	stream *portaudio.Stream
	buf    []float32

	interrupted atomic.Bool

	mu      sync.Mutex // guards stopped against a concurrent Interrupt and Close
	stopped bool

	once sync.Once
	err  error
}

func (s *deviceStream) Read() (Frame, error) {
	if s.interrupted.Load() {
		return nil, os.ErrClosed
	}
	if err := s.stream.Read(); err != nil {
		if s.interrupted.Load() {
			return nil, os.ErrClosed
		}
		if errors.Is(err, portaudio.InputOverflowed) {
			return nil, fmt.Errorf("read: %w", ErrInputOverflow)
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	f := make(Frame, len(s.buf))
	copy(f, s.buf)
	return f, nil
}

// Interrupt aborts the running stream so a blocked Pa_ReadStream returns.
// The stream handle stays allocated until Close.
func (s *deviceStream) Interrupt() error {
	if !s.interrupted.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	err := s.stream.Abort()
	log.Debug().Err(err).Msg("input stream interrupted")
	return err
}

func (s *deviceStream) Close() error {
	s.once.Do(func() {
		s.interrupted.Store(true)
		s.mu.Lock()
		var stopErr error
		if !s.stopped {
			s.stopped = true
			stopErr = s.stream.Stop()
		}
		s.mu.Unlock()
		s.err = errors.Join(stopErr, s.stream.Close(), portaudio.Terminate())
		log.Debug().Err(s.err).Msg("input stream closed")
	})
	return s.err
}
