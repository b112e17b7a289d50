package audio

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when the framer exceeds its maximum size
var ErrBufferFull = errors.New("audio buffer full")

// Framer accumulates captured samples and hands them out in fixed-size frames
type Framer struct {
	pending   []float32
	frameSize int
	maxSize   int
	mu        sync.Mutex
}

// NewFramer creates a framer emitting frames of frameSize samples.
// maxSize bounds the number of samples held between reads.
func NewFramer(frameSize, maxSize int) *Framer {
	if frameSize <= 0 {
		frameSize = FrameSize
	}
	if maxSize < frameSize {
		maxSize = frameSize
	}
	return &Framer{
		pending:   make([]float32, 0, frameSize),
		frameSize: frameSize,
		maxSize:   maxSize,
	}
}

// MaxSize returns the maximum number of pending samples
func (f *Framer) MaxSize() int {
	return f.maxSize
}

// Append adds captured samples.
// Returns ErrBufferFull if adding them would exceed maxSize
func (f *Framer) Append(samples []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending)+len(samples) > f.maxSize {
		return ErrBufferFull
	}
	f.pending = append(f.pending, samples...)
	return nil
}

// Next removes and returns the oldest complete frame, if any
func (f *Framer) Next() ([]float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) < f.frameSize {
		return nil, false
	}

	frame := make([]float32, f.frameSize)
	copy(frame, f.pending)
	f.pending = append(f.pending[:0], f.pending[f.frameSize:]...)
	return frame, true
}

// Clear drops all pending samples
func (f *Framer) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = f.pending[:0]
}

// Size returns the number of pending samples
func (f *Framer) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// FrameCount returns the number of complete frames ready
func (f *Framer) FrameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) / f.frameSize
}
