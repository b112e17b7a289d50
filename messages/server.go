package messages

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeAgentError       = "AGENT_ERROR"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeMicrophoneDenied = "MICROPHONE_DENIED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeBufferFull       = "BUFFER_FULL"
)

// Server message types
const (
	TypeAudio     = "audio"
	TypeAudioStop = "audio_stop"
	TypeStatus    = "status"
	TypeVisual    = "visual"
	TypeMedia     = "media"
	TypeError     = "error"
)

// ServerMessage represents a message sent to frontend client
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Payload   any    `json:"payload"`
}

// AudioResponsePayload is one buffer to play on the client timeline
type AudioResponsePayload struct {
	ID       uint64 `json:"id"`
	Data     string `json:"data"`     // Base64-encoded PCM audio
	MimeType string `json:"mimeType"` // "audio/pcm;rate=24000"
	StartAt  int64  `json:"startAt"`  // ms since session start
	Duration int64  `json:"duration"` // ms
}

// AudioStopPayload cancels a buffer sent earlier
type AudioStopPayload struct {
	ID uint64 `json:"id"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Status  string `json:"status"` // "connecting", "listening", "speaking", "idle", "error", "pong"
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAudioMessage creates an audio response message
func NewAudioMessage(sessionID string, p AudioResponsePayload) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAudio,
		SessionID: sessionID,
		Payload:   p,
	}
}

// NewAudioStopMessage creates a message cancelling a scheduled buffer
func NewAudioStopMessage(sessionID string, id uint64) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAudioStop,
		SessionID: sessionID,
		Payload:   AudioStopPayload{ID: id},
	}
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewVisualMessage wraps a visual content event
func NewVisualMessage(sessionID string, visual any) *ServerMessage {
	return &ServerMessage{
		Type:      TypeVisual,
		SessionID: sessionID,
		Payload:   visual,
	}
}

// NewMediaMessage wraps now-playing metadata
func NewMediaMessage(sessionID string, nowPlaying any) *ServerMessage {
	return &ServerMessage{
		Type:      TypeMedia,
		SessionID: sessionID,
		Payload:   nowPlaying,
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
