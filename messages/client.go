package messages

import (
	"encoding/json"

	"github.com/citmax/maxxi-live/billing"
)

// Client message types
const (
	TypeStart   = "start"
	TypeControl = "control"
)

// Control actions
const (
	ActionPing        = "ping"
	ActionStop        = "stop"
	ActionMediaStop   = "media_stop"
	ActionMediaHangup = "media_hangup"
)

// Microphone permission states reported by the client
const (
	MicrophoneGranted = "granted"
	MicrophoneDenied  = "denied"
)

// ClientMessage represents a message from frontend client
type ClientMessage struct {
	Type    string          `json:"type"` // "start", "audio", "control"
	Payload json.RawMessage `json:"payload"`
}

// StartPayload opens a voice session for a customer
type StartPayload struct {
	Context     string              `json:"context"`
	Credentials billing.Credentials `json:"credentials"`
	Microphone  string              `json:"microphone"`
}

// AudioPayload contains audio data from client
type AudioPayload struct {
	Data string `json:"data"` // Base64-encoded 16kHz PCM16 audio
}

// ControlPayload contains control commands
type ControlPayload struct {
	Action string `json:"action"`
}
