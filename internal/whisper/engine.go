package whisper

import "errors"

// ErrUnavailable is returned by NewEngine when the binary was built without
// whisper.cpp support.
var ErrUnavailable = errors.New("whisper: built without whisper_cpp tag")

// SampleRate is the rate whisper models expect; callers may pass any rate
// and the engine resamples.
const SampleRate = 16000

// Engine is a small interface for whisper transcription.
// Implementations may be backed by whisper.cpp (build tag: whisper_cpp) or
// the stub, which refuses to load.
type Engine interface {
	// Transcribe runs one full-context pass over mono PCM32F samples.
	Transcribe(samples []float32, sampleRate int) (string, error)
	// SetLanguage configures the language for transcription. Use "auto" for auto-detection.
	SetLanguage(lang string)
	Close() error
}

// MaxSpan is the longest span whisper attends to in one pass.
const MaxSpan = 30 * SampleRate

// splitSpan cuts samples into the fewest pieces of at most limit samples,
// sized evenly so no piece is a short tail.
func splitSpan(samples []float32, limit int) [][]float32 {
	if limit <= 0 || len(samples) <= limit {
		return [][]float32{samples}
	}
	n := (len(samples) + limit - 1) / limit
	out := make([][]float32, 0, n)
	for i := 0; i < n; i++ {
		lo := i * len(samples) / n
		hi := (i + 1) * len(samples) / n
		out = append(out, samples[lo:hi])
	}
	return out
}
