// Package live defines the contract between the voice session and the
// remote conversational agent.
package live

import (
	"context"

	"github.com/citmax/maxxi-live/audio"

	"google.golang.org/genai"
)

// Event is a message received from the agent connection
type Event interface {
	isEvent()
}

// Opened is delivered once the connection is established
type Opened struct{}

// AudioChunk carries one base64 PCM chunk of synthesized speech
type AudioChunk struct {
	Data     string
	MIMEType string
}

// ToolCall is a single function invocation requested by the agent
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolCallBatch groups the calls delivered in one message
type ToolCallBatch struct {
	Calls []ToolCall
}

// Interrupted signals that the user barged in over the agent
type Interrupted struct{}

// TurnComplete signals the agent finished its turn
type TurnComplete struct{}

// Closed is delivered when the remote side ends the connection
type Closed struct {
	Reason string
}

// Failed is delivered on a transport error
type Failed struct {
	Err error
}

func (Opened) isEvent()        {}
func (AudioChunk) isEvent()    {}
func (ToolCallBatch) isEvent() {}
func (Interrupted) isEvent()   {}
func (TurnComplete) isEvent()  {}
func (Closed) isEvent()        {}
func (Failed) isEvent()        {}

// ToolResult answers exactly one ToolCall
type ToolResult struct {
	ID     string
	Name   string
	Result any
}

// Response returns the payload sent back to the agent
func (r ToolResult) Response() map[string]any {
	return map[string]any{"result": r.Result}
}

// Config describes a session at connect time
type Config struct {
	SystemInstruction string
	Voice             string
	Tools             []*genai.Tool
}

// Conn is an open bidirectional agent connection.
// Events is closed once the connection is gone.
type Conn interface {
	Events() <-chan Event
	SendAudio(blob audio.Blob) error
	SendToolResults(results []ToolResult) error
	Close() error
}

// Dialer opens agent connections
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}
