package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citmax/maxxi-live/audio"
	"github.com/citmax/maxxi-live/functions"
	"github.com/citmax/maxxi-live/live"
	"github.com/citmax/maxxi-live/messages"
	"github.com/citmax/maxxi-live/metrics"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeBufferSize   = 256
	captureBufferSize = 64
	writeTimeout      = 10 * time.Second
	maxMessageSize    = 512 * 1024
)

// errMicrophoneNotGranted is the capture error when the browser refused access
var errMicrophoneNotGranted = errors.New("client reported microphone permission denied")

// ClientOptions configures the voice sessions of WebSocket clients
type ClientOptions struct {
	Dialer        live.Dialer
	Tools         ToolDispatcher
	Metrics       *metrics.Metrics
	Voice         string
	Location      *time.Location
	MaxBufferSize int // pending microphone samples
	KeepAlive     time.Duration
}

// ClientSession represents a single browser connection. It drives one voice
// session at a time, with the browser acting as microphone, speaker and
// media-session surface.
type ClientSession struct {
	ID           string
	ClientConn   *websocket.Conn
	Driver       *Driver
	CreatedAt    time.Time
	LastActivity time.Time

	// Use channels for non-blocking writes
	writeChan chan any
	keepAlive time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu        sync.RWMutex
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc

	micMu       sync.Mutex
	micGranted  bool
	framer      *audio.Framer
	capture     *clientCapture
	stopHandler func()
}

// NewClientSession creates a session for a browser connection
func NewClientSession(ctx context.Context, id string, clientConn *websocket.Conn, opts ClientOptions) *ClientSession {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	// Configure WebSocket for better performance
	clientConn.SetReadLimit(maxMessageSize)
	clientConn.EnableWriteCompression(true)
	_ = clientConn.SetCompressionLevel(6)

	cs := &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		writeChan:    make(chan any, writeBufferSize),
		keepAlive:    opts.KeepAlive,
		metrics:      opts.Metrics,
		log:          log.With().Str("session", shortID(id)).Logger(),
		CloseChan:    make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		framer:       audio.NewFramer(audio.FrameSize, opts.MaxBufferSize),
	}

	cs.Driver = NewDriver(DriverOptions{
		Dialer:     opts.Dialer,
		Microphone: cs,
		NewOutput:  func() (audio.Output, error) { return audio.NewVirtualOutput(cs), nil },
		Tools:      opts.Tools,
		Media:      cs,
		Metrics:    opts.Metrics,
		Voice:      opts.Voice,
		Location:   opts.Location,
		ID:         id,
	})
	return cs
}

// Start begins the bidirectional message handling
func (cs *ClientSession) Start() {
	go cs.writePump()
	cs.queueMessage(messages.NewStatusMessage(cs.ID, string(StatusIdle), "Session established"))
	go cs.handleClientMessages()
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	var ping <-chan time.Time
	if cs.keepAlive > 0 {
		ticker := time.NewTicker(cs.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	defer func() {
		// Send close message before exiting
		_ = cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	for {
		select {
		case <-cs.CloseChan:
			return

		case <-ping:
			_ = cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := cs.ClientConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cs.log.Debug().Err(err).Msg("Keepalive ping failed")
				return
			}

		case msg := <-cs.writeChan:
			if err := cs.write(msg); err != nil {
				return
			}

			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				if err := cs.write(<-cs.writeChan); err != nil {
					return
				}
			}
		}
	}
}

func (cs *ClientSession) write(msg any) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		cs.log.Error().Err(err).Msg("❌ Failed to encode message")
		return nil
	}

	_ = cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := cs.ClientConn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !cs.IsClosed() {
			cs.log.Warn().Err(err).Msg("⚠️ WebSocket write failed")
		}
		return err
	}
	return nil
}

// queueMessage adds a message to the write queue (non-blocking)
func (cs *ClientSession) queueMessage(msg any) {
	select {
	case <-cs.CloseChan:
		return
	default:
	}

	select {
	case cs.writeChan <- msg:
		cs.touch()
	default:
		cs.log.Warn().Msg("⚠️ Write queue full, dropping message")
	}
}

func (cs *ClientSession) touch() {
	cs.mu.Lock()
	cs.LastActivity = time.Now()
	cs.mu.Unlock()
}

// IdleSince returns the time of the last client or agent activity
func (cs *ClientSession) IdleSince() time.Time {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.LastActivity
}

// Close terminates the session and cleans up resources
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	cs.mu.Unlock()

	cs.cancel()
	cs.Driver.Stop()

	// Signal close (for other goroutines waiting on this)
	close(cs.CloseChan)

	cs.micMu.Lock()
	cs.framer.Clear()
	cs.micMu.Unlock()

	// Close client connection - writePump sends the close frame on its way out
	if cs.ClientConn != nil {
		return cs.ClientConn.Close()
	}
	return nil
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	if cs.keepAlive > 0 {
		deadline := 2 * cs.keepAlive
		_ = cs.ClientConn.SetReadDeadline(time.Now().Add(deadline))
		cs.ClientConn.SetPongHandler(func(string) error {
			return cs.ClientConn.SetReadDeadline(time.Now().Add(deadline))
		})
	}

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			messageType, message, err := cs.ClientConn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					cs.log.Warn().Err(err).Msg("⚠️ WebSocket read error")
				}
				return
			}
			cs.touch()
			if cs.keepAlive > 0 {
				_ = cs.ClientConn.SetReadDeadline(time.Now().Add(2 * cs.keepAlive))
			}

			// Binary messages carry raw float32 microphone samples
			if messageType == websocket.BinaryMessage {
				samples, err := audio.DecodeFloat32(message)
				if err != nil {
					cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, err.Error()))
					continue
				}
				cs.captureSamples(samples)
				continue
			}

			var clientMsg messages.ClientMessage
			if err := sonic.Unmarshal(message, &clientMsg); err != nil {
				cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid message format"))
				continue
			}

			cs.processClientMessage(&clientMsg)
		}
	}
}

func (cs *ClientSession) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case messages.TypeStart:
		var payload messages.StartPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid start payload"))
			return
		}
		// Driver.Start blocks until the agent answers; keep reading meanwhile
		go cs.startVoice(payload)

	case messages.TypeAudio:
		var payload messages.AudioPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid audio payload"))
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid base64 audio data"))
			return
		}
		buf, err := audio.DecodePCM(pcm, audio.InputSampleRate, 1)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, err.Error()))
			return
		}
		cs.captureSamples(buf.Channels[0])

	case messages.TypeControl:
		var payload messages.ControlPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return
		}
		cs.handleControlMessage(&payload)

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
	}
}

func (cs *ClientSession) handleControlMessage(payload *messages.ControlPayload) {
	switch payload.Action {
	case messages.ActionPing:
		cs.queueMessage(messages.NewStatusMessage(cs.ID, "pong", ""))
	case messages.ActionStop:
		cs.Driver.Stop()
	case messages.ActionMediaStop, messages.ActionMediaHangup:
		cs.micMu.Lock()
		stop := cs.stopHandler
		cs.micMu.Unlock()
		if stop != nil {
			stop()
		}
	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
}

func (cs *ClientSession) startVoice(p messages.StartPayload) {
	cs.micMu.Lock()
	cs.micGranted = p.Microphone != messages.MicrophoneDenied
	cs.micMu.Unlock()

	err := cs.Driver.Start(cs.ctx, p.Context, p.Credentials, cs.sendStatus, cs.sendVisual)
	switch {
	case err == nil:
	case errors.Is(err, ErrMicrophoneDenied):
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeMicrophoneDenied, "Permissão de microfone negada."))
	default:
		cs.log.Error().Err(err).Msg("❌ Failed to start voice session")
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeSessionFailed, err.Error()))
	}
}

func (cs *ClientSession) sendStatus(s Status) {
	cs.queueMessage(messages.NewStatusMessage(cs.ID, string(s), ""))
}

func (cs *ClientSession) sendVisual(v functions.Visual) {
	cs.queueMessage(messages.NewVisualMessage(cs.ID, v))
}

// captureSamples feeds microphone samples to the open capture in
// fixed-size frames. Samples arriving with no capture open are dropped.
func (cs *ClientSession) captureSamples(samples []float32) {
	cs.micMu.Lock()
	c := cs.capture
	if c == nil {
		cs.micMu.Unlock()
		return
	}
	if err := cs.framer.Append(samples); err != nil {
		cs.micMu.Unlock()
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeBufferFull,
			fmt.Sprintf("Audio buffer full (max %d samples)", cs.framer.MaxSize())))
		return
	}
	var frames [][]float32
	for {
		frame, ok := cs.framer.Next()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}
	cs.micMu.Unlock()

	// Runs on the read loop and must not block it
	dropped := 0
	for _, frame := range frames {
		select {
		case <-c.done:
			return
		default:
		}
		select {
		case c.frames <- frame:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		cs.log.Warn().Int("frames", dropped).Msg("⚠️ Capture queue full, dropping audio")
	}
}

// Open implements Microphone on top of the client's audio stream
func (cs *ClientSession) Open(context.Context) (Capture, error) {
	cs.micMu.Lock()
	defer cs.micMu.Unlock()

	if !cs.micGranted {
		return nil, errMicrophoneNotGranted
	}
	if cs.capture != nil {
		cs.capture.shutdown()
	}
	cs.framer.Clear()
	cs.capture = &clientCapture{
		owner:  cs,
		frames: make(chan []float32, captureBufferSize),
		done:   make(chan struct{}),
	}
	return cs.capture, nil
}

// PlayAt implements audio.Sink by forwarding the buffer to the browser,
// which plays it at the given offset of its own timeline.
func (cs *ClientSession) PlayAt(id uint64, buf *audio.Buffer, at time.Duration) {
	cs.queueMessage(messages.NewAudioMessage(cs.ID, messages.AudioResponsePayload{
		ID:       id,
		Data:     base64.StdEncoding.EncodeToString(audio.EncodePCM(buf.Interleaved())),
		MimeType: fmt.Sprintf("audio/pcm;rate=%d", buf.SampleRate),
		StartAt:  at.Milliseconds(),
		Duration: buf.Duration().Milliseconds(),
	}))
}

// StopVoice implements audio.Sink
func (cs *ClientSession) StopVoice(id uint64) {
	cs.queueMessage(messages.NewAudioStopMessage(cs.ID, id))
}

// Update implements MediaSession
func (cs *ClientSession) Update(np NowPlaying) {
	cs.queueMessage(messages.NewMediaMessage(cs.ID, np))
}

// SetStopHandler implements MediaSession
func (cs *ClientSession) SetStopHandler(stop func()) {
	cs.micMu.Lock()
	cs.stopHandler = stop
	cs.micMu.Unlock()
}

// Reset implements MediaSession
func (cs *ClientSession) Reset() {
	cs.queueMessage(messages.NewMediaMessage(cs.ID, NowPlayingFor(StatusIdle)))
}

// clientCapture is the Capture handed to the driver while a voice session
// owns the client's microphone stream
type clientCapture struct {
	owner  *ClientSession
	frames chan []float32
	done   chan struct{}
	once   sync.Once
}

func (c *clientCapture) Frames() <-chan []float32 { return c.frames }

func (c *clientCapture) shutdown() {
	c.once.Do(func() { close(c.done) })
}

func (c *clientCapture) Close() error {
	c.owner.micMu.Lock()
	if c.owner.capture == c {
		c.owner.capture = nil
		c.owner.framer.Clear()
	}
	c.owner.micMu.Unlock()
	c.shutdown()
	return nil
}
