//go:build !portaudio

package audio

import "github.com/obiente/warmup/voicecapture/internal/config"

// Device is the default microphone. Built without the portaudio tag there
// is no capture backend.
type Device struct{}

func (Device) Open(config.Recognizer) (Stream, error) { return nil, ErrNoDevice }
