package session

import (
	"github.com/divinesarathi/voice/internal/domain"
	"github.com/divinesarathi/voice/internal/protocol"

	"github.com/rs/zerolog/log"
)

// attemptHandler forwards peer callbacks to the session tagged with the
// attempt that created the peer. Callbacks from older attempts are dropped.
type attemptHandler struct {
	s  *Session
	id string
}

func (h *attemptHandler) dispatch(fn func()) {
	h.s.post(func() {
		if h.s.attempt != h.id {
			log.Debug().Str("module", "session").Str("attempt", h.id).Msg("dropping stale callback")
			return
		}
		fn()
	})
}

func (h *attemptHandler) OnChannelOpen() { h.dispatch(h.s.onChannelOpen) }

func (h *attemptHandler) OnChannelMessage(data []byte) {
	h.dispatch(func() { h.s.onChannelMessage(data) })
}

func (h *attemptHandler) OnChannelClosed() { h.dispatch(h.s.onChannelClosed) }

func (h *attemptHandler) OnRemoteAudio(trackID string) {
	h.dispatch(func() { h.s.onRemoteAudio(trackID) })
}

func (h *attemptHandler) OnTransportState(state domain.TransportState) {
	h.dispatch(func() { h.s.onTransportState(state) })
}

func (s *Session) onChannelOpen() {
	if s.peer != nil {
		if err := s.peer.Send(protocol.SessionUpdate(s.cfg.Protocol)); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("send session.update")
		}
	}
	s.apply(EventChannelOpen)
	if !s.active {
		s.active = true
		s.cfg.Metrics.SessionActive(s.ctx, 1)
	}
}

func (s *Session) onChannelMessage(data []byte) {
	ev, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("ignoring malformed control message")
		return
	}
	s.cfg.Metrics.RecordEvent(s.ctx, ev.Type)

	switch ev.Type {
	case protocol.TypeSessionCreated, protocol.TypeSessionUpdated:
		log.Info().Str("module", "session").Str("type", ev.Type).Msg("session configured")
		s.apply(EventInfo)

	case protocol.TypeSpeechStarted:
		s.rippling = true
		s.apply(EventSpeechStarted)

	case protocol.TypeSpeechStopped:
		s.rippling = false
		s.apply(EventSpeechStopped)

	case protocol.TypeTranscriptionComplete:
		if ev.Transcript != "" {
			s.transcript = ev.Transcript
		}

	case protocol.TypeResponseCreated:
		s.response = ""

	case protocol.TypeResponseTranscript:
		s.response += ev.Delta

	case protocol.TypeResponseDone:
		s.apply(EventResponseDone)

	case protocol.TypeError:
		log.Error().Str("module", "session").RawJSON("payload", ev.Raw).Msg("realtime service error")
		s.errKind = domain.KindProtocolError
		s.errMsg = string(ev.Raw)
		s.cfg.Metrics.RecordError(s.ctx, string(domain.KindProtocolError))
		s.apply(EventProtocolError)

	default:
		log.Debug().Str("module", "session").Str("type", ev.Type).Msg("unhandled control event")
	}
}

// onChannelClosed tears the transport down. An error state is kept so the
// user still sees why the session ended.
func (s *Session) onChannelClosed() {
	s.teardown()
	s.apply(EventChannelClosed)
}

func (s *Session) onRemoteAudio(trackID string) {
	log.Info().Str("module", "session").Str("track_id", trackID).Msg("remote audio started")
	if s.cfg.Router == nil {
		return
	}
	if err := s.cfg.Router.ForceSpeaker(); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("route audio to speaker")
	}
}

func (s *Session) onTransportState(state domain.TransportState) {
	switch state {
	case domain.TransportDisconnected, domain.TransportFailed:
		log.Warn().Str("module", "session").Str("transport", string(state)).Msg("transport lost")
		s.errKind = domain.KindTransportDisconnected
		s.errMsg = userMessage(domain.ErrTransportDisconnected)
		s.recording = false
		s.pulsing = false
		s.rippling = false
		s.cfg.Metrics.RecordError(s.ctx, string(domain.KindTransportDisconnected))
		s.apply(EventTransportFailed)
	}
}
