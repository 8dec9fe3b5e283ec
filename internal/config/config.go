package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelKind selects which recognizer backend drives a capture session.
type ModelKind int

const (
	KindStreaming ModelKind = iota + 1
	KindWindowed
)

func (k ModelKind) String() string {
	switch k {
	case KindStreaming:
		return "streaming"
	case KindWindowed:
		return "windowed"
	default:
		return "unknown"
	}
}

var ErrUnsupportedModel = errors.New("unsupported model type")

// ParseModelKind maps a configured model_type onto a ModelKind.
func ParseModelKind(s string) (ModelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "streaming", "vosk":
		return KindStreaming, nil
	case "windowed", "whisper":
		return KindWindowed, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
	}
}

type Config struct {
	Addr     string     `yaml:"addr"`
	LogLevel string     `yaml:"log_level"`
	Voice    Recognizer `yaml:"voice_model"`
}

// Recognizer is read once at startup and never mutated by a session.
type Recognizer struct {
	ModelType      string        `yaml:"model_type"`
	ModelPath      string        `yaml:"model_path"`
	Language       string        `yaml:"language"`
	Threads        int           `yaml:"threads"`
	SampleRate     int           `yaml:"sample_rate"`
	Channels       int           `yaml:"channels"`
	FrameSize      int           `yaml:"chunk_size"`
	BufferDepth    int           `yaml:"frames_per_buffer"`
	WindowDuration time.Duration `yaml:"window_duration"`
	WindowFrames   int           `yaml:"window_frames"`
	StopPhrase     string        `yaml:"stop_phrase"`
}

// Kind returns the parsed model kind. Load has already validated it.
func (r Recognizer) Kind() ModelKind {
	k, _ := ParseModelKind(r.ModelType)
	return k
}

// WindowLength is the number of frames a windowed backend buffers before
// running one transcription pass.
func (r Recognizer) WindowLength() int {
	if r.WindowFrames > 0 {
		return r.WindowFrames
	}
	if r.FrameSize <= 0 || r.SampleRate <= 0 || r.WindowDuration <= 0 {
		return 1
	}
	n := int(math.Ceil(r.WindowDuration.Seconds() * float64(r.SampleRate) / float64(r.FrameSize)))
	if n < 1 {
		n = 1
	}
	return n
}

// FrameDuration is the wall-clock span covered by one frame.
func (r Recognizer) FrameDuration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(r.FrameSize) / float64(r.SampleRate) * float64(time.Second))
}

func Default() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		Voice: Recognizer{
			ModelType:      "vosk",
			ModelPath:      "./models/vosk-model-small-en-us-0.15",
			Language:       "en",
			SampleRate:     16000,
			Channels:       1,
			FrameSize:      4096,
			BufferDepth:    8192,
			WindowDuration: 3 * time.Second,
			StopPhrase:     "stop now",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies VOICE_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Addr = getenv("VOICE_ADDR", cfg.Addr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	v := &cfg.Voice
	v.ModelType = getenv("VOICE_MODEL_TYPE", v.ModelType)
	v.ModelPath = getenv("VOICE_MODEL_PATH", v.ModelPath)
	v.Language = getenv("VOICE_LANGUAGE", v.Language)
	v.Threads = getenvInt("VOICE_THREADS", v.Threads)
	v.SampleRate = getenvInt("VOICE_SAMPLE_RATE", v.SampleRate)
	v.Channels = getenvInt("VOICE_CHANNELS", v.Channels)
	v.FrameSize = getenvInt("VOICE_CHUNK_SIZE", v.FrameSize)
	v.BufferDepth = getenvInt("VOICE_FRAMES_PER_BUFFER", v.BufferDepth)
	v.WindowDuration = getenvDuration("VOICE_WINDOW_DURATION", v.WindowDuration)
	v.WindowFrames = getenvInt("VOICE_WINDOW_FRAMES", v.WindowFrames)
	v.StopPhrase = getenv("VOICE_STOP_PHRASE", v.StopPhrase)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func validate(cfg Config) error {
	v := cfg.Voice
	if _, err := ParseModelKind(v.ModelType); err != nil {
		return fmt.Errorf("voice_model.model_type: %w", err)
	}
	if strings.TrimSpace(v.ModelPath) == "" {
		return errors.New("voice_model.model_path must not be empty")
	}
	if v.SampleRate <= 0 {
		return errors.New("voice_model.sample_rate must be positive")
	}
	if v.Channels <= 0 {
		return errors.New("voice_model.channels must be positive")
	}
	if v.FrameSize <= 0 {
		return errors.New("voice_model.chunk_size must be positive")
	}
	if v.BufferDepth < v.FrameSize {
		return errors.New("voice_model.frames_per_buffer must be >= chunk_size")
	}
	if v.WindowFrames < 0 {
		return errors.New("voice_model.window_frames must be >= 0")
	}
	if v.WindowFrames == 0 && v.WindowDuration <= 0 {
		return errors.New("voice_model.window_duration must be positive when window_frames is unset")
	}
	if strings.TrimSpace(v.StopPhrase) == "" {
		return errors.New("voice_model.stop_phrase must not be empty")
	}
	return nil
}
