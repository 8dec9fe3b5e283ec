// Package vosk binds the Kaldi/Vosk streaming recognizer. The cgo
// implementation is compiled with the vosk build tag.
package vosk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrUnavailable = errors.New("vosk: built without vosk tag")

type result struct {
	Text string `json:"text"`
}

// parseResult extracts the text from a recognizer result document.
func parseResult(doc string) (string, error) {
	var r result
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return "", fmt.Errorf("decode vosk result: %w", err)
	}
	return strings.TrimSpace(r.Text), nil
}
