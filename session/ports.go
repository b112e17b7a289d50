package session

import (
	"context"
	"errors"

	"github.com/citmax/maxxi-live/audio"
)

// ErrMicrophoneDenied is returned by Start when capture cannot be acquired
var ErrMicrophoneDenied = errors.New("permissão de microfone negada")

// Microphone grants exclusive capture of 16kHz mono input
type Microphone interface {
	Open(ctx context.Context) (Capture, error)
}

// Capture delivers captured frames in order until closed. Closing it
// releases the device.
type Capture interface {
	Frames() <-chan []float32
	Close() error
}

// OutputFactory creates the playback output owned by one session
type OutputFactory func() (audio.Output, error)
