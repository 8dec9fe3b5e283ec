package audio

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/obiente/warmup/voicecapture/internal/config"
)

var (
	// ErrInputOverflow is returned by Stream.Read when the device buffer
	// overran before the read. The failed read yields no frame.
	ErrInputOverflow = errors.New("audio: input overflowed")
	ErrNoDevice      = errors.New("audio: no input device available")
)

// Frame is one read's worth of interleaved 32-bit float samples.
type Frame []float32

// Source acquires an input stream for one capture session.
type Source interface {
	Open(cfg config.Recognizer) (Stream, error)
}

// Stream is an open input handle. Read blocks until a full frame is
// available.
//
// Interrupt may be called from another goroutine while Read is blocked: it
// unblocks the read and makes every later Read fail with os.ErrClosed, but
// keeps the handle allocated. Close releases the handle and must only be
// called once no Read is in flight; calling it again is a no-op.
type Stream interface {
	Read() (Frame, error)
	Interrupt() error
	Close() error
}

// Mono averages interleaved channels into a single channel.
func (f Frame) Mono(channels int) []float32 {
	if channels <= 1 {
		return f
	}
	out := make([]float32, len(f)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += f[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// PCM16LE converts the frame to mono little-endian signed 16-bit PCM.
func (f Frame) PCM16LE(channels int) []byte {
	return EncodeFloat32ToPCM16LE(f.Mono(channels))
}

// EncodeFloat32ToPCM16LE clamps samples to [-1,1] and packs them as PCM16.
func EncodeFloat32ToPCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(v*32767))))
	}
	return out
}

// Concat joins frames into one mono span.
func Concat(frames []Frame, channels int) []float32 {
	n := 0
	for _, f := range frames {
		n += len(f)
	}
	if channels > 1 {
		n /= channels
	}
	out := make([]float32, 0, n)
	for _, f := range frames {
		out = append(out, f.Mono(channels)...)
	}
	return out
}
