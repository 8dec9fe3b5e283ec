//go:build whisper_cpp

package whisper

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/audio"
	"github.com/obiente/warmup/voicecapture/internal/config"
)

// EngineCPP is the whisper.cpp-backed implementation of Engine.
type EngineCPP struct {
	model    whisperpkg.Model
	threads  uint
	language string
	mu       sync.Mutex // whisper.cpp contexts must not run concurrently on one model
}

func NewEngine(cfg config.Recognizer) (Engine, error) {
	threads := uint(runtime.NumCPU())
	if cfg.Threads > 0 {
		threads = uint(cfg.Threads)
	} else if v := os.Getenv("WHISPER_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			threads = uint(n)
		}
	}
	log.Info().Uint("threads", threads).Msg("whisper: thread count")

	m, err := whisperpkg.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = "auto"
	}
	log.Info().Str("model", cfg.ModelPath).Str("language", lang).Msg("whisper: model loaded successfully")
	return &EngineCPP{model: m, threads: threads, language: lang}, nil
}

func (e *EngineCPP) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// SetLanguage configures the language for transcription. Use "auto" for auto-detection.
func (e *EngineCPP) SetLanguage(lang string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lang == "" {
		lang = "auto"
	}
	e.language = lang
	log.Info().Str("language", lang).Msg("whisper: language configured")
}

// Transcribe implements Engine with a fresh context per call.
func (e *EngineCPP) Transcribe(samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if sampleRate != SampleRate {
		samples = audio.ResampleLinear(samples, sampleRate, SampleRate)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// whisper.cpp rejects clips under ~100ms
	if len(samples) < SampleRate/10 {
		log.Debug().Int("samples", len(samples)).Msg("whisper: skipping too-short audio")
		return "", nil
	}

	pieces := splitSpan(samples, MaxSpan)
	if len(pieces) > 1 {
		log.Debug().Int("samples", len(samples)).Int("pieces", len(pieces)).Msg("whisper: splitting long audio")
	}
	var segments []string
	for _, piece := range pieces {
		texts, err := e.process(piece)
		if err != nil {
			return "", err
		}
		segments = append(segments, texts...)
	}

	full := strings.TrimSpace(strings.Join(segments, " "))
	log.Debug().
		Str("text", full).
		Int("segments", len(segments)).
		Int("samples", len(samples)).
		Msg("whisper: transcription complete")
	return full, nil
}

func (e *EngineCPP) process(samples []float32) ([]string, error) {
	ctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	ctx.SetThreads(e.threads)
	if err := ctx.SetLanguage(e.language); err != nil {
		log.Warn().Err(err).Str("language", e.language).Msg("whisper: language rejected, using model default")
	}
	ctx.SetSplitOnWord(true)
	ctx.SetMaxSegmentLength(0)
	ctx.SetMaxTokensPerSegment(0)
	ctx.SetAudioCtx(0)

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("process audio: %w", err)
	}

	var segments []string
	for {
		seg, err := ctx.NextSegment()
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("whisper: error reading segment")
			}
			break
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}
