package audio

import (
	"fmt"
	"sync"
	"time"
)

// Voice is one buffer scheduled on an output
type Voice interface {
	Stop()
}

// Output is a playback device with its own monotonic clock.
// Play schedules buf to start at the given clock offset and calls done once
// it has finished playing. done must not be invoked from within Play.
type Output interface {
	Now() time.Duration
	Play(buf *Buffer, at time.Duration, done func()) (Voice, error)
	Close() error
}

// Scheduler queues decoded buffers back to back on an output so consecutive
// chunks play gaplessly, and cancels everything on barge-in.
type Scheduler struct {
	out    Output
	onIdle func()

	mu        sync.Mutex
	nextStart time.Duration
	voices    map[uint64]Voice
	seq       uint64
}

// NewScheduler creates a scheduler for out. onIdle is invoked whenever the
// last scheduled buffer finishes naturally.
func NewScheduler(out Output, onIdle func()) *Scheduler {
	return &Scheduler{
		out:    out,
		onIdle: onIdle,
		voices: make(map[uint64]Voice),
	}
}

// Enqueue schedules buf at max(nextStart, now) and returns the start time.
func (s *Scheduler) Enqueue(buf *Buffer) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startAt := s.nextStart
	if now := s.out.Now(); now > startAt {
		startAt = now
	}

	s.seq++
	id := s.seq
	voice, err := s.out.Play(buf, startAt, func() { s.finished(id) })
	if err != nil {
		return 0, fmt.Errorf("failed to schedule buffer: %w", err)
	}

	s.voices[id] = voice
	s.nextStart = startAt + buf.Duration()
	return startAt, nil
}

func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	if _, ok := s.voices[id]; !ok {
		// Already cancelled by Flush
		s.mu.Unlock()
		return
	}
	delete(s.voices, id)
	idle := len(s.voices) == 0
	s.mu.Unlock()

	if idle && s.onIdle != nil {
		s.onIdle()
	}
}

// Flush stops every scheduled buffer and rewinds the timeline to the current
// output time. Safe to call with nothing scheduled.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	voices := s.voices
	s.voices = make(map[uint64]Voice)
	s.nextStart = s.out.Now()
	s.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
}

// Pending returns the number of buffers scheduled or playing
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

// NextStart returns the time the next enqueued buffer would start at
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
