package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrOutputClosed is returned when playing on a closed output
var ErrOutputClosed = errors.New("audio output closed")

// Sink receives the buffers a VirtualOutput plays so a remote player can
// render them on its own timeline.
type Sink interface {
	PlayAt(id uint64, buf *Buffer, at time.Duration)
	StopVoice(id uint64)
}

// VirtualOutput is an Output whose clock is wall time since creation. It
// forwards every buffer to a sink and completes voices when they would have
// finished playing.
type VirtualOutput struct {
	sink      Sink
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer
	origin    time.Time

	mu     sync.Mutex
	seq    uint64
	timers map[uint64]*time.Timer
	closed bool
}

// NewVirtualOutput creates a virtual output forwarding to sink
func NewVirtualOutput(sink Sink) *VirtualOutput {
	return newVirtualOutput(sink, time.Now, time.AfterFunc)
}

func newVirtualOutput(sink Sink, now func() time.Time, afterFunc func(time.Duration, func()) *time.Timer) *VirtualOutput {
	return &VirtualOutput{
		sink:      sink,
		now:       now,
		afterFunc: afterFunc,
		origin:    now(),
		timers:    make(map[uint64]*time.Timer),
	}
}

// Now returns the time elapsed on the output clock
func (o *VirtualOutput) Now() time.Duration {
	return o.now().Sub(o.origin)
}

// Play forwards buf to the sink and arms a completion timer
func (o *VirtualOutput) Play(buf *Buffer, at time.Duration, done func()) (Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrOutputClosed
	}

	o.seq++
	id := o.seq
	o.sink.PlayAt(id, buf, at)

	remaining := at + buf.Duration() - o.Now()
	if remaining < 0 {
		remaining = 0
	}
	o.timers[id] = o.afterFunc(remaining, func() {
		o.mu.Lock()
		_, live := o.timers[id]
		delete(o.timers, id)
		o.mu.Unlock()
		if live {
			done()
		}
	})

	return &virtualVoice{out: o, id: id}, nil
}

func (o *VirtualOutput) stop(id uint64) {
	o.mu.Lock()
	t, ok := o.timers[id]
	delete(o.timers, id)
	closed := o.closed
	o.mu.Unlock()

	if !ok {
		return
	}
	t.Stop()
	if !closed {
		o.sink.StopVoice(id)
	}
}

// Active returns the number of voices not yet finished
func (o *VirtualOutput) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}

// Close cancels all pending completions
func (o *VirtualOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	o.closed = true
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	return nil
}

type virtualVoice struct {
	out *VirtualOutput
	id  uint64
}

func (v *virtualVoice) Stop() {
	v.out.stop(v.id)
}
