package session

import (
	"errors"
	"io"

	"github.com/obiente/warmup/voicecapture/internal/audio"
)

// State is the capture loop's read state.
type State int

const (
	Running State = iota
	Recovering
	Fatal
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Recovering:
		return "recovering"
	case Fatal:
		return "fatal"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Recovery classifies read errors. Input overflows are recoverable and
// retried; end of input stops the session; anything else is fatal.
// Fatal and Stopped are terminal.
type Recovery struct {
	state     State
	overflows int
}

func (r *Recovery) State() State { return r.state }

// Overflows counts recovered overflow reads.
func (r *Recovery) Overflows() int { return r.overflows }

// OnRead advances the machine for the outcome of one read attempt.
func (r *Recovery) OnRead(err error) State {
	if r.terminal() {
		return r.state
	}
	switch {
	case err == nil:
		r.state = Running
	case errors.Is(err, audio.ErrInputOverflow):
		r.state = Recovering
		r.overflows++
	case errors.Is(err, io.EOF):
		r.state = Stopped
	default:
		r.state = Fatal
	}
	return r.state
}

// Stop moves a live machine to Stopped.
func (r *Recovery) Stop() {
	if !r.terminal() {
		r.state = Stopped
	}
}

func (r *Recovery) terminal() bool { return r.state == Fatal || r.state == Stopped }
