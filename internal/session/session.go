// Package session runs one recording session: read a frame, hand it to the
// backend, accumulate any finalized segment, and stop once the stop phrase
// has been spoken.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/backend"
	"github.com/obiente/warmup/voicecapture/internal/config"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
	"github.com/obiente/warmup/voicecapture/internal/transcript"
)

var (
	ErrAborted    = errors.New("session: aborted")
	ErrAlreadyRun = errors.New("session: already run")
)

// Update is published after every appended segment.
type Update struct {
	Segment string
	Text    string
}

type Options struct {
	ID       string
	Config   config.Recognizer
	Metrics  *metrics.Metrics
	OnUpdate func(Update)
}

// Session owns the transcript state for a single recording. Run is
// synchronous; Abort may be called from any goroutine.
type Session struct {
	id       string
	cfg      config.Recognizer
	stop     *transcript.StopPhrase
	metrics  *metrics.Metrics
	onUpdate func(Update)
	log      zerolog.Logger

	acc transcript.Accumulator
	rec Recovery

	mu      sync.Mutex
	stream  audio.Stream
	started bool
	aborted bool
}

func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:       id,
		cfg:      opts.Config,
		stop:     transcript.NewStopPhrase(opts.Config.StopPhrase),
		metrics:  opts.Metrics,
		onUpdate: opts.OnUpdate,
		log:      log.With().Str("session", id).Logger(),
	}
}

func (s *Session) ID() string { return s.id }

// Run opens src, captures until the stop phrase is heard, and returns the
// transcript with the phrase removed. be is closed before Run returns. The
// device is closed on every exit path.
func (s *Session) Run(src audio.Source, be backend.Backend) (string, error) {
	defer func() {
		if err := be.Close(); err != nil {
			s.log.Warn().Err(err).Msg("backend close failed")
		}
	}()

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return "", ErrAlreadyRun
	}
	s.started = true
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return "", ErrAborted
	}

	s.metrics.SessionStarted()
	outcome := "fatal"
	defer func() { s.metrics.SessionFinished(outcome) }()

	stream, err := src.Open(s.cfg)
	if err != nil {
		s.log.Error().Err(err).Msg("open audio source failed")
		return "", fmt.Errorf("open audio source: %w", err)
	}
	if !s.attach(stream) {
		outcome = "aborted"
		s.teardown(stream)
		return "", ErrAborted
	}
	defer s.teardown(stream)

	s.log.Info().Str("stop_phrase", s.stop.String()).Msg("listening")
	for {
		if s.isAborted() {
			outcome = "aborted"
			s.log.Info().Msg("session aborted")
			return "", ErrAborted
		}
		frame, err := stream.Read()
		prev := s.rec.State()
		switch s.rec.OnRead(err) {
		case Recovering:
			s.metrics.Overflow()
			s.log.Warn().Err(err).Int("overflows", s.rec.Overflows()).Msg("input overflowed, retrying read")
			continue
		case Fatal:
			if s.isAborted() {
				outcome = "aborted"
				s.log.Info().Msg("session aborted")
				return "", ErrAborted
			}
			s.metrics.FatalRead()
			s.log.Error().Err(err).Msg("audio read failed")
			return "", fmt.Errorf("read audio: %w", err)
		case Stopped:
			s.log.Info().Msg("end of input")
			if seg, ok := be.Flush(); ok {
				s.append(seg)
			}
			outcome = "eof"
			return s.finish(), nil
		}
		if prev == Recovering {
			s.log.Debug().Msg("read recovered")
		}

		s.metrics.FrameRead()
		seg, ok := be.Feed(frame)
		if !ok {
			continue
		}
		if s.append(seg) {
			s.log.Info().Msg("termination keyword detected, stopping")
			s.rec.Stop()
			outcome = "stopped"
			return s.finish(), nil
		}
	}
}

// Abort interrupts the device, unblocking a pending read. Run stops before
// its next read, releases the device and returns ErrAborted with no
// transcript.
func (s *Session) Abort() {
	s.mu.Lock()
	s.aborted = true
	stream := s.stream
	s.mu.Unlock()
	if stream != nil {
		if err := stream.Interrupt(); err != nil {
			s.log.Warn().Err(err).Msg("abort: interrupt stream failed")
		}
	}
}

// append records seg and reports whether the stop phrase is now present.
func (s *Session) append(seg string) bool {
	s.acc.Append(seg)
	s.metrics.Segment()
	text := s.acc.Text()
	s.log.Info().Str("text", text).Msg("recognized")
	if s.onUpdate != nil {
		s.onUpdate(Update{Segment: seg, Text: text})
	}
	return s.stop.Check(text)
}

func (s *Session) finish() string {
	text := s.stop.Strip(s.acc.Text())
	s.log.Info().Int("segments", s.acc.Segments()).Int("overflows", s.rec.Overflows()).Msg("session finished")
	return text
}

func (s *Session) attach(stream audio.Stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return false
	}
	s.stream = stream
	return true
}

func (s *Session) teardown(stream audio.Stream) {
	s.mu.Lock()
	s.stream = nil
	s.mu.Unlock()
	if err := stream.Close(); err != nil {
		s.log.Warn().Err(err).Msg("close stream failed")
	}
}

func (s *Session) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}
