//go:build !vosk

package vosk

import "github.com/obiente/warmup/voicecapture/internal/backend"

// Load fails without the vosk tag so model-load problems surface before capture.
func Load(string) (backend.StreamingModel, error) { return nil, ErrUnavailable }
