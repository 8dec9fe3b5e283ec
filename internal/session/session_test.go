package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/backend"
	"github.com/obiente/warmup/voicecapture/internal/config"
	"github.com/obiente/warmup/voicecapture/internal/metrics"
)

type read struct {
	frame audio.Frame
	err   error
}

// scriptSource hands out a stream that replays reads in order.
type scriptSource struct {
	reads   []read
	openErr error
	stream  *scriptStream
	opened  int
}

func (s *scriptSource) Open(config.Recognizer) (audio.Stream, error) {
	s.opened++
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.stream = &scriptStream{reads: s.reads}
	return s.stream, nil
}

type scriptStream struct {
	reads      []read
	calls      int
	closes     int
	interrupts int
	// reads attempted after Interrupt or Close
	lateReads int
}

func (s *scriptStream) Read() (audio.Frame, error) {
	s.calls++
	if s.interrupts > 0 || s.closes > 0 {
		s.lateReads++
		return nil, os.ErrClosed
	}
	if len(s.reads) == 0 {
		return nil, errors.New("script exhausted")
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	return r.frame, r.err
}

func (s *scriptStream) Interrupt() error {
	s.interrupts++
	return nil
}

func (s *scriptStream) Close() error {
	s.closes++
	return nil
}

// recordingBackend returns scripted segments keyed by 1-based feed number.
type recordingBackend struct {
	segments map[int]string
	flush    string
	fed      []audio.Frame
	closed   int
}

func (b *recordingBackend) Feed(f audio.Frame) (string, bool) {
	b.fed = append(b.fed, f)
	s, ok := b.segments[len(b.fed)]
	return s, ok
}

func (b *recordingBackend) Flush() (string, bool) {
	return b.flush, b.flush != ""
}

func (b *recordingBackend) Close() error {
	b.closed++
	return nil
}

type windowModel struct {
	texts []string
	calls [][]float32
}

func (m *windowModel) Transcribe(samples []float32, _ int) (string, error) {
	m.calls = append(m.calls, samples)
	t := m.texts[0]
	m.texts = m.texts[1:]
	return t, nil
}

func (m *windowModel) Close() error { return nil }

type scriptedDecoder struct {
	finals map[int]string
	fed    int
}

func (d *scriptedDecoder) AcceptWaveform([]byte) (bool, error) {
	d.fed++
	_, ok := d.finals[d.fed]
	return ok, nil
}

func (d *scriptedDecoder) Result() (string, error)      { return d.finals[d.fed], nil }
func (d *scriptedDecoder) FinalResult() (string, error) { return "", nil }
func (d *scriptedDecoder) Close() error                 { return nil }

func testConfig() config.Recognizer {
	cfg := config.Default().Voice
	cfg.FrameSize = 2
	cfg.BufferDepth = 4
	return cfg
}

func frames(vals ...float32) []read {
	out := make([]read, len(vals))
	for i, v := range vals {
		out[i] = read{frame: audio.Frame{v, v}}
	}
	return out
}

func TestWindowedEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.ModelType = "windowed"
	cfg.WindowFrames = 2

	model := &windowModel{texts: []string{"hello ", "world stop now "}}
	be := backend.NewWindowed(model, cfg.WindowLength(), cfg.Channels, cfg.SampleRate, nil)
	src := &scriptSource{reads: frames(1, 2, 3, 4)}

	var updates []Update
	s := New(Options{Config: cfg, OnUpdate: func(u Update) { updates = append(updates, u) }})
	got, err := s.Run(src, be)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("Run() = %q, want %q", got, "hello world")
	}
	if len(model.calls) != 2 {
		t.Fatalf("model called %d times, want 2", len(model.calls))
	}
	if c := model.calls[0]; len(c) != 4 || c[0] != 1 || c[3] != 2 {
		t.Fatalf("first window covered %v, want frames A,B", c)
	}
	if len(updates) != 2 || updates[1].Text != "hello world stop now " {
		t.Fatalf("unexpected updates %+v", updates)
	}
	if src.stream.closes != 1 {
		t.Fatalf("stream closed %d times, want 1", src.stream.closes)
	}
}

func TestStreamingStopPhraseOnly(t *testing.T) {
	cfg := testConfig()
	dec := &scriptedDecoder{finals: map[int]string{1: "stop", 2: "now"}}
	be := backend.NewStreaming(dec, cfg.Channels, nil)
	src := &scriptSource{reads: frames(1, 2, 3, 4)}

	got, err := New(Options{Config: cfg}).Run(src, be)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Fatalf("Run() = %q, want empty", got)
	}
	if src.stream.calls != 2 {
		t.Fatalf("read %d frames, want termination after frame 2", src.stream.calls)
	}
}

func TestStreamingSegmentsInOrder(t *testing.T) {
	cfg := testConfig()
	be := &recordingBackend{segments: map[int]string{2: "one ", 5: "two ", 9: "three stop now "}}
	src := &scriptSource{reads: frames(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)}

	got, err := New(Options{Config: cfg}).Run(src, be)
	if err != nil {
		t.Fatal(err)
	}
	if got != "one two three" {
		t.Fatalf("Run() = %q", got)
	}
	if len(be.fed) != 9 {
		t.Fatalf("fed %d frames, want 9", len(be.fed))
	}
	if be.closed != 1 {
		t.Fatalf("backend closed %d times", be.closed)
	}
}

func TestOverflowIsRetriedAndNotFed(t *testing.T) {
	cfg := testConfig()
	m := metrics.New(prometheus.NewRegistry())
	overflow := fmt.Errorf("read: %w", audio.ErrInputOverflow)

	reads := []read{
		{frame: audio.Frame{1, 1}},
		{err: overflow},
		{err: overflow},
		{frame: audio.Frame{2, 2}},
	}
	be := &recordingBackend{segments: map[int]string{2: "stop now "}}
	src := &scriptSource{reads: reads}

	s := New(Options{Config: cfg, Metrics: m})
	got, err := s.Run(src, be)
	if err != nil {
		t.Fatalf("overflow must not abort: %v", err)
	}
	if got != "" {
		t.Fatalf("Run() = %q", got)
	}
	if len(be.fed) != 2 || be.fed[1][0] != 2 {
		t.Fatalf("overflowed reads were fed: %v", be.fed)
	}
	if src.stream.calls != 4 {
		t.Fatalf("expected 4 read attempts, got %d", src.stream.calls)
	}
	if v := testutil.ToFloat64(m.Overflows); v != 2 {
		t.Fatalf("overflows = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.FatalReadErrors); v != 0 {
		t.Fatalf("fatal read errors = %v, want 0", v)
	}
	if v := testutil.ToFloat64(m.FramesRead); v != 2 {
		t.Fatalf("frames read = %v, want 2", v)
	}
	if s.rec.Overflows() != 2 || s.rec.State() != Stopped {
		t.Fatalf("recovery = %+v", s.rec)
	}
}

func TestOverflowDoesNotAdvanceTranscript(t *testing.T) {
	cfg := testConfig()
	be := &recordingBackend{segments: map[int]string{1: "a ", 2: "b ", 3: "stop now "}}
	var texts []string
	src := &scriptSource{reads: []read{
		{frame: audio.Frame{1, 1}},
		{err: audio.ErrInputOverflow},
		{frame: audio.Frame{2, 2}},
		{frame: audio.Frame{3, 3}},
	}}
	s := New(Options{Config: cfg, OnUpdate: func(u Update) { texts = append(texts, u.Text) }})
	got, err := s.Run(src, be)
	if err != nil {
		t.Fatal(err)
	}
	if got != "a b" {
		t.Fatalf("Run() = %q", got)
	}
	want := []string{"a ", "a b ", "a b stop now "}
	if len(texts) != len(want) {
		t.Fatalf("updates %v, want %v", texts, want)
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("update %d = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestFatalReadTearsDownOnce(t *testing.T) {
	for _, at := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("after %d frames", at), func(t *testing.T) {
			cfg := testConfig()
			m := metrics.New(prometheus.NewRegistry())
			reads := make([]read, 0, at+2)
			for i := 0; i < at; i++ {
				reads = append(reads, read{frame: audio.Frame{0, 0}})
			}
			if at > 0 {
				reads = append(reads, read{err: audio.ErrInputOverflow})
			}
			deviceErr := errors.New("device unplugged")
			reads = append(reads, read{err: deviceErr})

			be := &recordingBackend{segments: map[int]string{1: "partial "}}
			src := &scriptSource{reads: reads}
			got, err := New(Options{Config: cfg, Metrics: m}).Run(src, be)
			if !errors.Is(err, deviceErr) {
				t.Fatalf("expected device error, got %v", err)
			}
			if got != "" {
				t.Fatalf("fatal error must not return partial text, got %q", got)
			}
			if src.stream.closes != 1 {
				t.Fatalf("stream closed %d times, want 1", src.stream.closes)
			}
			if be.closed != 1 {
				t.Fatalf("backend closed %d times, want 1", be.closed)
			}
			if v := testutil.ToFloat64(m.FatalReadErrors); v != 1 {
				t.Fatalf("fatal read errors = %v, want 1", v)
			}
			if v := testutil.ToFloat64(m.Sessions.WithLabelValues("fatal")); v != 1 {
				t.Fatalf("fatal sessions = %v, want 1", v)
			}
		})
	}
}

func TestOpenFailure(t *testing.T) {
	be := &recordingBackend{}
	src := &scriptSource{openErr: audio.ErrNoDevice}
	_, err := New(Options{Config: testConfig()}).Run(src, be)
	if !errors.Is(err, audio.ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if be.closed != 1 {
		t.Fatal("backend must be closed on open failure")
	}
}

func TestEndOfInputFlushes(t *testing.T) {
	be := &recordingBackend{segments: map[int]string{1: "first "}, flush: "last "}
	src := &scriptSource{reads: append(frames(1, 2), read{err: io.EOF})}
	got, err := New(Options{Config: testConfig()}).Run(src, be)
	if err != nil {
		t.Fatal(err)
	}
	if got != "first last" {
		t.Fatalf("Run() = %q", got)
	}
	if src.stream.closes != 1 {
		t.Fatalf("stream closed %d times", src.stream.closes)
	}
}

func TestRunTwice(t *testing.T) {
	s := New(Options{Config: testConfig()})
	src := &scriptSource{reads: []read{{err: io.EOF}}}
	if _, err := s.Run(src, &recordingBackend{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(src, &recordingBackend{}); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun, got %v", err)
	}
}

// blockingStream blocks reads until closed, like a device read that never
// receives audio.
type blockingStream struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	closes int
}

func (s *blockingStream) Read() (audio.Frame, error) {
	<-s.done
	return nil, os.ErrClosed
}

func (s *blockingStream) Interrupt() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *blockingStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

type blockingSource struct {
	stream *blockingStream
	opened chan struct{}
}

func (s *blockingSource) Open(config.Recognizer) (audio.Stream, error) {
	close(s.opened)
	return s.stream, nil
}

func TestAbortUnblocksRead(t *testing.T) {
	src := &blockingSource{stream: &blockingStream{done: make(chan struct{})}, opened: make(chan struct{})}
	s := New(Options{Config: testConfig()})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Run(src, &recordingBackend{})
		errCh <- err
	}()

	<-src.opened
	// Open has returned to Run once the stream is attached
	for {
		s.mu.Lock()
		attached := s.stream != nil
		s.mu.Unlock()
		if attached {
			break
		}
		time.Sleep(time.Millisecond)
	}
	s.Abort()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrAborted) {
			t.Fatalf("expected ErrAborted, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after abort")
	}
	src.stream.mu.Lock()
	defer src.stream.mu.Unlock()
	if src.stream.closes != 1 {
		t.Fatalf("stream closed %d times, want 1", src.stream.closes)
	}
}

// abortingBackend aborts its session from inside Feed, the way a websocket
// stop lands while a window is being transcribed.
type abortingBackend struct {
	recordingBackend
	sess *Session
	at   int
}

func (b *abortingBackend) Feed(f audio.Frame) (string, bool) {
	seg, ok := b.recordingBackend.Feed(f)
	if len(b.fed) == b.at {
		b.sess.Abort()
	}
	return seg, ok
}

func TestAbortDuringFeedStopsReading(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	src := &scriptSource{reads: frames(1, 2, 3, 4)}
	s := New(Options{Config: testConfig(), Metrics: m})
	be := &abortingBackend{sess: s, at: 2}

	got, err := s.Run(src, be)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if got != "" {
		t.Fatalf("aborted session returned %q", got)
	}
	st := src.stream
	if st.lateReads != 0 {
		t.Fatalf("stream read %d times after abort", st.lateReads)
	}
	if st.calls != 2 {
		t.Fatalf("read %d frames, want 2", st.calls)
	}
	if st.interrupts != 1 || st.closes != 1 {
		t.Fatalf("interrupts=%d closes=%d, want 1 each", st.interrupts, st.closes)
	}
	if be.closed != 1 {
		t.Fatalf("backend closed %d times, want 1", be.closed)
	}
	if v := testutil.ToFloat64(m.Sessions.WithLabelValues("aborted")); v != 1 {
		t.Fatalf("aborted sessions = %v, want 1", v)
	}
}

func TestAbortBeforeRun(t *testing.T) {
	s := New(Options{Config: testConfig()})
	s.Abort()
	src := &scriptSource{}
	if _, err := s.Run(src, &recordingBackend{}); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if src.opened != 0 {
		t.Fatal("aborted session must not open the device")
	}
}

func TestRecoveryTransitions(t *testing.T) {
	var r Recovery
	if r.State() != Running {
		t.Fatalf("initial state %v", r.State())
	}
	if r.OnRead(audio.ErrInputOverflow) != Recovering {
		t.Fatal("overflow must move to recovering")
	}
	if r.OnRead(nil) != Running {
		t.Fatal("successful read must return to running")
	}
	if r.OnRead(errors.New("io")) != Fatal {
		t.Fatal("other errors are fatal")
	}
	if r.OnRead(nil) != Fatal {
		t.Fatal("fatal is terminal")
	}

	var s Recovery
	s.Stop()
	if s.OnRead(audio.ErrInputOverflow) != Stopped || s.Overflows() != 0 {
		t.Fatal("stopped is terminal")
	}

	var e Recovery
	if e.OnRead(fmt.Errorf("wrapped: %w", io.EOF)) != Stopped {
		t.Fatal("end of input stops")
	}
}
