package device

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/citmax/maxxi-live/audio"

	"github.com/ebitengine/oto/v3"
)

// segment is one scheduled buffer, in absolute sample positions
type segment struct {
	id         uint64
	start, end int64
	done       func()
}

// stream is the timeline oto pulls from. Its clock is the number of samples
// handed to the player, silence included, so it only moves while the
// sound card consumes audio.
type stream struct {
	rate int

	mu       sync.Mutex
	queue    []float32 // samples [read, written)
	read     int64
	written  int64
	segments []*segment
	seq      uint64
	closed   bool
}

func newStream(rate int) *stream {
	return &stream{rate: rate}
}

func (s *stream) position(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * float64(s.rate)))
}

func (s *stream) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.read) * time.Second / time.Duration(s.rate)
}

func (s *stream) Play(buf *audio.Buffer, at time.Duration, done func()) (audio.Voice, error) {
	if buf.SampleRate != s.rate {
		return nil, fmt.Errorf("speaker plays %dHz, got %dHz", s.rate, buf.SampleRate)
	}
	var samples []float32
	if len(buf.Channels) > 0 {
		samples = buf.Channels[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, audio.ErrOutputClosed
	}

	if gap := s.position(at) - s.written; gap > 0 {
		s.queue = append(s.queue, make([]float32, gap)...)
		s.written += gap
	}

	s.seq++
	seg := &segment{id: s.seq, start: s.written, done: done}
	s.queue = append(s.queue, samples...)
	s.written += int64(len(samples))
	seg.end = s.written
	s.segments = append(s.segments, seg)

	return &speakerVoice{stream: s, id: seg.id}, nil
}

// Read fills p with 16-bit PCM, padding with silence when nothing is queued
func (s *stream) Read(p []byte) (int, error) {
	n := len(p) / 2
	out := make([]float32, n)

	s.mu.Lock()
	copied := copy(out, s.queue)
	s.queue = s.queue[copied:]
	s.read += int64(n)
	if s.read > s.written {
		s.written = s.read
	}

	var finished []func()
	kept := s.segments[:0]
	for _, seg := range s.segments {
		if seg.end <= s.read {
			finished = append(finished, seg.done)
			continue
		}
		kept = append(kept, seg)
	}
	s.segments = kept
	s.mu.Unlock()

	copy(p, audio.EncodePCM(out))
	for _, done := range finished {
		done()
	}
	return n * 2, nil
}

func (s *stream) stop(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, seg := range s.segments {
		if seg.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	seg := s.segments[idx]
	s.segments = append(s.segments[:idx], s.segments[idx+1:]...)

	tail := s.read
	for _, other := range s.segments {
		if other.end > tail {
			tail = other.end
		}
	}
	if tail < s.written {
		s.queue = s.queue[:tail-s.read]
		s.written = tail
	}

	// Silence what remains of a segment stopped in the middle of the queue
	from := max(seg.start, s.read)
	to := min(seg.end, s.written)
	for i := from; i < to; i++ {
		s.queue[i-s.read] = 0
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.queue = nil
	s.segments = nil
}

type speakerVoice struct {
	stream *stream
	id     uint64
}

func (v *speakerVoice) Stop() {
	v.stream.stop(v.id)
}

// speaker plays a stream through an oto player
type speaker struct {
	*stream
	player *oto.Player
}

func newSpeaker(ctx *oto.Context) *speaker {
	s := &speaker{stream: newStream(audio.OutputSampleRate)}
	s.player = ctx.NewPlayer(s.stream)
	s.player.Play()
	return s
}

func (s *speaker) Close() error {
	s.stream.close()
	return s.player.Close()
}
