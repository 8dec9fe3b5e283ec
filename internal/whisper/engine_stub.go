//go:build !whisper_cpp

package whisper

import "github.com/obiente/warmup/voicecapture/internal/config"

func NewEngine(config.Recognizer) (Engine, error) { return nil, ErrUnavailable }
