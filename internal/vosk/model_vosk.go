//go:build vosk

package vosk

import (
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/rs/zerolog/log"

	"github.com/obiente/warmup/voicecapture/internal/backend"
)

// Model is a loaded acoustic model shared by every session's decoder.
type Model struct {
	model *vosk.VoskModel
	once  sync.Once
}

func Load(path string) (backend.StreamingModel, error) {
	vosk.SetLogLevel(-1)
	m, err := vosk.NewModel(path)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %s: %w", path, err)
	}
	log.Info().Str("model", path).Msg("vosk: model loaded successfully")
	return &Model{model: m}, nil
}

func (m *Model) NewDecoder(sampleRate int) (backend.Decoder, error) {
	rec, err := vosk.NewRecognizer(m.model, float64(sampleRate))
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	return &decoder{rec: rec}, nil
}

func (m *Model) Close() error {
	m.once.Do(m.model.Free)
	return nil
}

type decoder struct {
	rec  *vosk.VoskRecognizer
	once sync.Once
}

func (d *decoder) AcceptWaveform(pcm []byte) (bool, error) {
	switch d.rec.AcceptWaveform(pcm) {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("vosk: accept waveform failed")
	}
}

func (d *decoder) Result() (string, error) {
	return parseResult(d.rec.Result())
}

func (d *decoder) FinalResult() (string, error) {
	return parseResult(d.rec.FinalResult())
}

func (d *decoder) Close() error {
	d.once.Do(d.rec.Free)
	return nil
}
