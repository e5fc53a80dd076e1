package domain

// ConnectionState is the user-facing state of a voice session.
type ConnectionState string

const (
	StateIdle       ConnectionState = "idle"
	StateConnecting ConnectionState = "connecting"
	StateConnected  ConnectionState = "connected"
	StateSpeaking   ConnectionState = "speaking"
	StateListening  ConnectionState = "listening"
	StateError      ConnectionState = "error"
)

// States lists every defined ConnectionState.
var States = []ConnectionState{
	StateIdle, StateConnecting, StateConnected, StateSpeaking, StateListening, StateError,
}

// Valid reports whether s is one of the defined states.
func (s ConnectionState) Valid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// CanConnect reports whether a new connect attempt may start from s.
func (s ConnectionState) CanConnect() bool {
	return s == StateIdle || s == StateError
}

// Snapshot is an immutable view of a session published to observers.
type Snapshot struct {
	State      ConnectionState `json:"state"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	Transcript string          `json:"transcript"`
	Response   string          `json:"response"`
	Recording  bool            `json:"recording"`
	Muted      bool            `json:"muted"`
	Pulsing    bool            `json:"pulsing"`
	Rippling   bool            `json:"rippling"`
}
