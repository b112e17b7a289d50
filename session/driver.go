package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citmax/maxxi-live/audio"
	"github.com/citmax/maxxi-live/billing"
	"github.com/citmax/maxxi-live/deezer"
	"github.com/citmax/maxxi-live/functions"
	"github.com/citmax/maxxi-live/live"
	"github.com/citmax/maxxi-live/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ToolDispatcher resolves the agent's tool calls
type ToolDispatcher interface {
	Dispatch(ctx context.Context, sess functions.Session, calls []live.ToolCall) []live.ToolResult
}

// StatusFunc receives every phase change of a session
type StatusFunc func(Status)

// VisualFunc receives visual content requested by the agent
type VisualFunc func(functions.Visual)

// DriverOptions wires a Driver to its collaborators
type DriverOptions struct {
	Dialer     live.Dialer
	Microphone Microphone
	NewOutput  OutputFactory
	Tools      ToolDispatcher
	Media      MediaSession
	Metrics    *metrics.Metrics
	Voice      string
	Location   *time.Location
	// ID tags log lines of the driver's sessions
	ID string
}

// Driver runs at most one live voice session at a time: it connects the
// microphone to the agent, plays the agent's speech and resolves its tool
// calls until stopped.
type Driver struct {
	opts DriverOptions
	log  zerolog.Logger
	now  func() time.Time

	startMu sync.Mutex

	mu       sync.Mutex
	current  *run
	starting context.CancelFunc
}

// NewDriver creates a driver
func NewDriver(opts DriverOptions) *Driver {
	if opts.Media == nil {
		opts.Media = NoMediaSession{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Driver{
		opts: opts,
		log:  log.With().Str("session", shortID(opts.ID)).Logger(),
		now:  time.Now,
	}
}

// Status returns the phase of the active session, idle when there is none
func (d *Driver) Status() Status {
	d.mu.Lock()
	r := d.current
	d.mu.Unlock()
	if r == nil {
		return StatusIdle
	}
	return r.getStatus()
}

// Start opens a new session, tearing down any active one first. It returns
// once the agent connection is established; ErrMicrophoneDenied is returned
// before any connection is attempted when capture is refused.
func (d *Driver) Start(ctx context.Context, contextText string, creds billing.Credentials, onStatus StatusFunc, onVisual VisualFunc) error {
	d.Stop()

	d.startMu.Lock()
	defer d.startMu.Unlock()

	// A start queued behind another one finds that run installed here
	d.mu.Lock()
	prev := d.current
	d.current = nil
	d.mu.Unlock()
	if prev != nil {
		prev.close(StatusIdle, "replaced", true)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopFollowing := context.AfterFunc(ctx, cancel)
	defer stopFollowing()

	d.mu.Lock()
	d.starting = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.starting = nil
		d.mu.Unlock()
	}()

	if onStatus == nil {
		onStatus = func(Status) {}
	}
	media := d.opts.Media

	onStatus(StatusConnecting)
	media.Update(NowPlayingFor(StatusIdle))
	media.SetStopHandler(d.Stop)

	abort := func(reason string, status Status) {
		cancel()
		media.Reset()
		d.opts.Metrics.SessionRejected(reason)
		onStatus(status)
	}

	capture, err := d.opts.Microphone.Open(runCtx)
	if err != nil {
		abort("mic_denied", StatusIdle)
		d.log.Warn().Err(err).Msg("🎤 Microphone unavailable")
		return fmt.Errorf("%w: %w", ErrMicrophoneDenied, err)
	}

	output, err := d.opts.NewOutput()
	if err != nil {
		_ = capture.Close()
		abort("output_failed", StatusError)
		return fmt.Errorf("failed to open audio output: %w", err)
	}

	r := &run{
		driver:   d,
		ctx:      runCtx,
		cancel:   cancel,
		capture:  capture,
		output:   output,
		status:   StatusConnecting,
		onStatus: onStatus,
		onVisual: onVisual,
		idle:     make(chan struct{}, 1),
		results:  make(chan []live.ToolResult),
		done:     make(chan struct{}),
		released: make(chan struct{}),
		log:      d.log,
	}
	r.tools = functions.Session{
		Credentials: creds,
		Context:     contextText,
		OnVisual:    r.visual,
		OnTrack:     r.track,
	}
	r.sched = audio.NewScheduler(output, r.playbackIdle)

	greeting := Greeting(contextText, d.now().In(d.opts.Location))
	conn, err := d.opts.Dialer.Dial(runCtx, live.Config{
		SystemInstruction: BuildSystemPrompt(contextText, greeting),
		Voice:             d.opts.Voice,
		Tools:             functions.Tools(),
	})
	if err != nil {
		_ = capture.Close()
		_ = output.Close()
		if runCtx.Err() != nil {
			abort("cancelled", StatusIdle)
			return fmt.Errorf("session start cancelled: %w", context.Cause(runCtx))
		}
		abort("dial_failed", StatusError)
		d.log.Error().Err(err).Msg("❌ Failed to connect to agent")
		return err
	}
	r.conn = conn

	d.mu.Lock()
	if runCtx.Err() != nil {
		d.mu.Unlock()
		_ = conn.Close()
		_ = capture.Close()
		_ = output.Close()
		abort("cancelled", StatusIdle)
		return fmt.Errorf("session start cancelled: %w", context.Cause(runCtx))
	}
	d.current = r
	d.mu.Unlock()

	d.opts.Metrics.SessionStarted()
	d.log.Info().Str("greeting", greeting).Msg("📞 Voice session started")

	r.wg.Add(1)
	go r.loop()
	return nil
}

// Stop tears down the active session. Calling it with no active session is
// a no-op. It must not be called from a status or visual callback.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.starting != nil {
		d.starting()
	}
	r := d.current
	d.current = nil
	d.mu.Unlock()

	if r != nil {
		r.close(StatusIdle, "stopped", true)
	}
}

func (d *Driver) release(r *run) {
	d.mu.Lock()
	if d.current == r {
		d.current = nil
	}
	d.mu.Unlock()
}

// run is one live session
type run struct {
	driver *Driver
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	conn    live.Conn
	capture Capture
	output  audio.Output
	sched   *audio.Scheduler
	tools   functions.Session

	onStatus StatusFunc
	onVisual VisualFunc

	idle     chan struct{}
	results  chan []live.ToolResult
	done     chan struct{}
	released chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	status  Status
	closing bool
}

func (r *run) getStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *run) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// apply runs the transition for in and reports the new phase if it changed.
// Only the loop goroutine calls it.
func (r *run) apply(in input) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return
	}
	prev := r.status
	r.status = next(prev, in)
	cur := r.status
	r.mu.Unlock()

	if cur == prev {
		return
	}
	r.log.Debug().Str("from", string(prev)).Str("to", string(cur)).Stringer("input", in).Msg("session transition")

	switch cur {
	case StatusListening, StatusSpeaking:
		r.driver.opts.Media.Update(NowPlayingFor(cur))
	}
	r.onStatus(cur)
}

func (r *run) loop() {
	defer r.wg.Done()

	events := r.conn.Events()
	for {
		select {
		case <-r.done:
			return

		case ev, ok := <-events:
			if !ok {
				r.close(StatusIdle, "closed", false)
				return
			}
			if !r.handle(ev) {
				return
			}

		case <-r.idle:
			if r.sched.Pending() == 0 {
				r.apply(inputPlaybackIdle)
			}

		case results := <-r.results:
			if r.isClosing() {
				continue
			}
			if err := r.conn.SendToolResults(results); err != nil {
				r.log.Error().Err(err).Int("count", len(results)).Msg("❌ Failed to send tool response")
			}
		}
	}
}

// handle processes one agent event and reports whether the loop continues
func (r *run) handle(ev live.Event) bool {
	switch ev := ev.(type) {
	case live.Opened:
		r.apply(inputOpened)
		r.apply(inputOpened)
		r.wg.Add(1)
		go r.pump()

	case live.AudioChunk:
		rate := audio.SampleRateFromMIME(ev.MIMEType, audio.OutputSampleRate)
		buf, err := audio.DecodeChunk(ev.Data, rate, 1)
		if err != nil {
			r.driver.opts.Metrics.DecodeError()
			r.log.Warn().Err(err).Msg("⚠️ Dropping undecodable audio chunk")
			return true
		}
		if _, err := r.sched.Enqueue(buf); err != nil {
			r.log.Error().Err(err).Msg("❌ Failed to schedule audio")
			return true
		}
		r.driver.opts.Metrics.AudioChunk("out")
		r.apply(inputAudio)

	case live.Interrupted:
		r.sched.Flush()
		r.log.Debug().Msg("✋ Agent interrupted, playback flushed")
		r.apply(inputInterrupted)

	case live.ToolCallBatch:
		r.apply(inputToolCalls)
		go r.dispatch(ev.Calls)

	case live.TurnComplete:
		r.log.Debug().Msg("✅ Agent turn complete")

	case live.Failed:
		r.log.Error().Err(ev.Err).Msg("❌ Agent connection failed")
		r.close(StatusError, "failed", false)
		return false

	case live.Closed:
		r.log.Info().Str("reason", ev.Reason).Msg("🔌 Agent connection closed")
		r.close(StatusIdle, "closed", false)
		return false
	}
	return true
}

// pump streams captured frames to the agent in capture order
func (r *run) pump() {
	defer r.wg.Done()

	frames := r.capture.Frames()
	for {
		select {
		case <-r.done:
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if r.isClosing() {
				return
			}
			if err := r.conn.SendAudio(audio.EncodeFrame(frame)); err != nil {
				r.log.Warn().Err(err).Msg("⚠️ Failed to send audio frame")
				continue
			}
			r.driver.opts.Metrics.AudioChunk("in")
		}
	}
}

func (r *run) dispatch(calls []live.ToolCall) {
	results := r.driver.opts.Tools.Dispatch(r.ctx, r.tools, calls)
	select {
	case r.results <- results:
	case <-r.done:
		r.log.Debug().Int("count", len(results)).Msg("Discarding tool results of a stopped session")
	}
}

func (r *run) playbackIdle() {
	select {
	case r.idle <- struct{}{}:
	default:
	}
}

func (r *run) visual(v functions.Visual) {
	if r.onVisual != nil && !r.isClosing() {
		r.onVisual(v)
	}
}

func (r *run) track(t deezer.Track) {
	if !r.isClosing() {
		r.driver.opts.Media.Update(TrackNowPlaying(t))
	}
}

// close releases every resource of the session exactly once and reports the
// final phase. When wait is set it also waits for the loop and capture pump
// to exit, so it must not be called with wait from those goroutines.
func (r *run) close(final Status, outcome string, wait bool) {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		if wait {
			<-r.released
		}
		return
	}
	r.closing = true
	r.status = final
	r.mu.Unlock()

	close(r.done)
	r.cancel()

	var errs []error
	if err := r.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close agent connection: %w", err))
	}
	if wait {
		r.wg.Wait()
	}
	r.sched.Flush()
	if err := r.capture.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close capture: %w", err))
	}
	if err := r.output.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		r.log.Warn().Err(err).Msg("⚠️ Errors while releasing session")
	}

	r.driver.release(r)
	r.driver.opts.Media.Reset()
	r.driver.opts.Metrics.SessionEnded(outcome)
	r.log.Info().Str("status", string(final)).Msg("🔌 Voice session ended")
	close(r.released)

	r.onStatus(final)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
