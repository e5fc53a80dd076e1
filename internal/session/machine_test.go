package session

import (
	"testing"

	"github.com/divinesarathi/voice/internal/domain"
)

func TestTransition_Closure(t *testing.T) {
	for _, s := range domain.States {
		for _, e := range Events {
			if got := Transition(s, e); !got.Valid() {
				t.Errorf("Transition(%s, %s) = %q, not a defined state", s, e, got)
			}
		}
	}
}

func TestTransition_Table(t *testing.T) {
	cases := []struct {
		from domain.ConnectionState
		ev   Event
		want domain.ConnectionState
	}{
		{domain.StateIdle, EventConnect, domain.StateConnecting},
		{domain.StateError, EventConnect, domain.StateConnecting},
		{domain.StateConnected, EventConnect, domain.StateConnected},
		{domain.StateConnecting, EventChannelOpen, domain.StateConnected},
		{domain.StateConnected, EventRecordStart, domain.StateSpeaking},
		{domain.StateSpeaking, EventSpeechStopped, domain.StateConnected},
		{domain.StateSpeaking, EventRecordStop, domain.StateConnected},
		{domain.StateConnected, EventSpeechStarted, domain.StateListening},
		{domain.StateSpeaking, EventSpeechStarted, domain.StateListening},
		{domain.StateListening, EventResponseDone, domain.StateConnected},
		{domain.StateListening, EventProtocolError, domain.StateError},
		{domain.StateConnecting, EventTransportFailed, domain.StateError},
		{domain.StateConnecting, EventAuthFailed, domain.StateIdle},
		{domain.StateSpeaking, EventDisconnect, domain.StateIdle},
		{domain.StateError, EventDisconnect, domain.StateIdle},
		{domain.StateConnected, EventChannelClosed, domain.StateIdle},
		{domain.StateError, EventChannelClosed, domain.StateError},
		{domain.StateError, EventRecordStart, domain.StateSpeaking},
		{domain.StateError, EventSpeechStarted, domain.StateListening},
		{domain.StateError, EventResponseDone, domain.StateConnected},
		{domain.StateError, EventSpeechStopped, domain.StateError},
		{domain.StateIdle, EventRecordStart, domain.StateIdle},
		{domain.StateConnecting, EventSpeechStarted, domain.StateConnecting},
		{domain.StateListening, EventInfo, domain.StateListening},
	}
	for _, c := range cases {
		if got := Transition(c.from, c.ev); got != c.want {
			t.Errorf("Transition(%s, %s) = %s, want %s", c.from, c.ev, got, c.want)
		}
	}
}

func TestTransition_FailureFromAnyState(t *testing.T) {
	for _, s := range domain.States {
		for _, e := range []Event{EventTransportFailed, EventProtocolError, EventConnectFailed} {
			if got := Transition(s, e); got != domain.StateError {
				t.Errorf("Transition(%s, %s) = %s, want error", s, e, got)
			}
		}
		if got := Transition(s, EventDisconnect); got != domain.StateIdle {
			t.Errorf("Transition(%s, disconnect) = %s, want idle", s, got)
		}
	}
}
