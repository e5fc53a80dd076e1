package session

import "github.com/divinesarathi/voice/internal/domain"

// Event drives the connection state machine.
type Event int

const (
	EventConnect Event = iota
	EventChannelOpen
	EventRecordStart
	EventRecordStop
	EventSpeechStarted
	EventSpeechStopped
	EventResponseDone
	EventTransportFailed
	EventProtocolError
	EventConnectFailed
	EventAuthFailed
	EventPermissionFailed
	EventChannelClosed
	EventDisconnect
	EventInfo
)

// Events lists every Event.
var Events = []Event{
	EventConnect, EventChannelOpen, EventRecordStart, EventRecordStop,
	EventSpeechStarted, EventSpeechStopped, EventResponseDone,
	EventTransportFailed, EventProtocolError, EventConnectFailed,
	EventAuthFailed, EventPermissionFailed, EventChannelClosed,
	EventDisconnect, EventInfo,
}

var eventNames = map[Event]string{
	EventConnect:          "connect",
	EventChannelOpen:      "channel_open",
	EventRecordStart:      "record_start",
	EventRecordStop:       "record_stop",
	EventSpeechStarted:    "speech_started",
	EventSpeechStopped:    "speech_stopped",
	EventResponseDone:     "response_done",
	EventTransportFailed:  "transport_failed",
	EventProtocolError:    "protocol_error",
	EventConnectFailed:    "connect_failed",
	EventAuthFailed:       "auth_failed",
	EventPermissionFailed: "permission_failed",
	EventChannelClosed:    "channel_closed",
	EventDisconnect:       "disconnect",
	EventInfo:             "info",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown"
}

// Transition returns the state reached from s on e. Pairs not listed keep s;
// the result is always a defined state.
//
// Record start, speech started and response done are only raised over an
// open control channel, so they also leave error.
func Transition(s domain.ConnectionState, e Event) domain.ConnectionState {
	switch e {
	case EventConnect:
		if s.CanConnect() {
			return domain.StateConnecting
		}
	case EventChannelOpen:
		if s == domain.StateConnecting {
			return domain.StateConnected
		}
	case EventRecordStart:
		if s == domain.StateConnected || s == domain.StateListening || s == domain.StateError {
			return domain.StateSpeaking
		}
	case EventRecordStop, EventSpeechStopped:
		if s == domain.StateSpeaking || s == domain.StateListening {
			return domain.StateConnected
		}
	case EventSpeechStarted:
		if s == domain.StateConnected || s == domain.StateSpeaking || s == domain.StateError {
			return domain.StateListening
		}
	case EventResponseDone:
		if s == domain.StateConnected || s == domain.StateSpeaking || s == domain.StateListening || s == domain.StateError {
			return domain.StateConnected
		}
	case EventTransportFailed, EventProtocolError, EventConnectFailed:
		return domain.StateError
	case EventAuthFailed, EventPermissionFailed, EventDisconnect:
		return domain.StateIdle
	case EventChannelClosed:
		if s != domain.StateError {
			return domain.StateIdle
		}
	}
	if !s.Valid() {
		return domain.StateIdle
	}
	return s
}
