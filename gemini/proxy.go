package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/citmax/maxxi-live/audio"
	"github.com/citmax/maxxi-live/live"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Charon"

	eventBufferSize = 64
)

// Dialer opens Gemini Live sessions using the official SDK
type Dialer struct {
	client *genai.Client
	model  string
}

// NewDialer creates a GenAI client for the Live API
func NewDialer(ctx context.Context, apiKey, model string) (*Dialer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	if model == "" {
		model = DefaultModel
	}
	return &Dialer{client: client, model: model}, nil
}

// Dial establishes a Live session and starts receiving
func (d *Dialer) Dial(ctx context.Context, cfg live.Config) (live.Conn, error) {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SystemInstruction:  genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser),
		Tools:              cfg.Tools,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: voice,
				},
			},
		},
	}

	session, err := d.client.Live.Connect(ctx, d.model, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Live API: %w", err)
	}
	log.Info().Str("model", d.model).Str("voice", voice).Msg("✅ Connected to Gemini Live via SDK")

	p := newProxy(session)
	p.emit(live.Opened{})
	go p.receive()
	return p, nil
}

// receiver is the part of a genai.Session the proxy relies on
type receiver interface {
	Receive() (*genai.LiveServerMessage, error)
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendToolResponse(input genai.LiveToolResponseInput) error
	SendClientContent(input genai.LiveSendClientContentParameters) error
	Close() error
}

// Proxy adapts a Gemini Live session to live.Conn
type Proxy struct {
	session receiver
	events  chan live.Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newProxy(session receiver) *Proxy {
	return &Proxy{
		session: session,
		events:  make(chan live.Event, eventBufferSize),
		done:    make(chan struct{}),
	}
}

// Events returns the ordered stream of agent events
func (gp *Proxy) Events() <-chan live.Event {
	return gp.events
}

func (gp *Proxy) receive() {
	defer close(gp.events)

	for {
		resp, err := gp.session.Receive()
		if err != nil {
			if gp.isClosed() {
				gp.emit(live.Closed{Reason: "closed locally"})
				return
			}
			log.Error().Err(err).Msg("❌ Gemini receive error")
			gp.emit(live.Failed{Err: fmt.Errorf("gemini receive: %w", err)})
			return
		}

		for _, ev := range translate(resp) {
			if !gp.emit(ev) {
				return
			}
		}
	}
}

// emit delivers ev unless the proxy was closed and nobody is reading
func (gp *Proxy) emit(ev live.Event) bool {
	select {
	case gp.events <- ev:
		return true
	case <-gp.done:
		return false
	}
}

// translate maps one server message to events in arrival order
func translate(resp *genai.LiveServerMessage) []live.Event {
	var events []live.Event

	if resp.ToolCall != nil && len(resp.ToolCall.FunctionCalls) > 0 {
		log.Debug().Int("calls", len(resp.ToolCall.FunctionCalls)).Msg("📥 Received from Gemini: function call(s)")
		batch := live.ToolCallBatch{Calls: make([]live.ToolCall, 0, len(resp.ToolCall.FunctionCalls))}
		for _, fc := range resp.ToolCall.FunctionCalls {
			batch.Calls = append(batch.Calls, live.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		events = append(events, batch)
	}

	if sc := resp.ServerContent; sc != nil {
		if sc.Interrupted {
			log.Debug().Msg("📥 Received from Gemini: interrupted")
			events = append(events, live.Interrupted{})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData == nil || len(part.InlineData.Data) == 0 {
					continue
				}
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = audio.OutputMIMEType
				}
				events = append(events, live.AudioChunk{
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
					MIMEType: mime,
				})
			}
		}
		if sc.TurnComplete {
			events = append(events, live.TurnComplete{})
		}
	}

	if resp.GoAway != nil {
		log.Warn().Dur("time_left", resp.GoAway.TimeLeft).Msg("⚠️ Gemini requested disconnect")
	}
	return events
}

func (gp *Proxy) isClosed() bool {
	gp.mu.RLock()
	defer gp.mu.RUnlock()
	return gp.closed
}

// SendAudio forwards one encoded microphone frame
func (gp *Proxy) SendAudio(blob audio.Blob) error {
	if gp.isClosed() {
		return fmt.Errorf("proxy is closed")
	}

	err := gp.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{
			MIMEType: blob.MIMEType,
			Data:     blob.Data,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

// SendToolResults answers a batch of function calls
func (gp *Proxy) SendToolResults(results []live.ToolResult) error {
	if gp.isClosed() {
		return fmt.Errorf("proxy is closed")
	}

	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response(),
		})
	}

	err := gp.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}

	log.Debug().Int("responses", len(responses)).Msg("📤 Sent tool response(s) to Gemini")
	return nil
}

// SendText sends a user text turn (useful for testing)
func (gp *Proxy) SendText(text string) error {
	if gp.isClosed() {
		return fmt.Errorf("proxy is closed")
	}

	turnComplete := true
	err := gp.session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

// Close terminates the Gemini connection
func (gp *Proxy) Close() error {
	gp.mu.Lock()
	if gp.closed {
		gp.mu.Unlock()
		return nil
	}
	gp.closed = true
	close(gp.done)
	gp.mu.Unlock()

	if err := gp.session.Close(); err != nil {
		return fmt.Errorf("failed to close Gemini session: %w", err)
	}
	return nil
}
