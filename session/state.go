package session

// Status is the phase of a voice session reported to the host
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusListening  Status = "listening"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
)

// input is an event that can move the session between phases
type input int

const (
	inputStart input = iota
	inputOpened
	inputAudio
	inputPlaybackIdle
	inputInterrupted
	inputToolCalls
	inputFailed
	inputClosed
	inputStop
)

func (i input) String() string {
	switch i {
	case inputStart:
		return "start"
	case inputOpened:
		return "opened"
	case inputAudio:
		return "audio"
	case inputPlaybackIdle:
		return "playback_idle"
	case inputInterrupted:
		return "interrupted"
	case inputToolCalls:
		return "tool_calls"
	case inputFailed:
		return "failed"
	case inputClosed:
		return "closed"
	case inputStop:
		return "stop"
	default:
		return "unknown"
	}
}

// next is the session transition function. Inputs that do not apply to the
// current phase leave it unchanged.
func next(s Status, in input) Status {
	switch in {
	case inputStart:
		return StatusConnecting
	case inputStop, inputClosed:
		return StatusIdle
	case inputFailed:
		return StatusError
	case inputToolCalls:
		return s
	}

	switch s {
	case StatusConnecting:
		if in == inputOpened {
			return StatusConnected
		}
	case StatusConnected:
		switch in {
		case inputOpened, inputInterrupted, inputPlaybackIdle:
			return StatusListening
		case inputAudio:
			return StatusSpeaking
		}
	case StatusListening:
		if in == inputAudio {
			return StatusSpeaking
		}
	case StatusSpeaking:
		if in == inputPlaybackIdle || in == inputInterrupted {
			return StatusListening
		}
	}
	return s
}

// active reports whether the phase belongs to a live session
func (s Status) active() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusListening, StatusSpeaking:
		return true
	default:
		return false
	}
}
