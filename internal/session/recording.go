package session

import (
	"fmt"

	"github.com/divinesarathi/voice/internal/domain"
	"github.com/divinesarathi/voice/internal/protocol"

	"github.com/rs/zerolog/log"
)

// Start begins a user turn: the server input buffer is cleared, transcript
// and response are reset and the state moves to speaking. It fails with
// NotConnected and changes nothing unless the control channel is open.
func (s *Session) Start() error {
	var err error
	if !s.exec(func() {
		if s.peer == nil || !s.peer.ChannelOpen() {
			err = domain.Errorf(domain.KindNotConnected, nil, "Not connected to AI service")
			return
		}
		if sendErr := s.peer.Send(protocol.BufferClear()); sendErr != nil {
			err = fmt.Errorf("start recording: %w", sendErr)
			return
		}
		s.transcript = ""
		s.response = ""
		s.recording = true
		s.pulsing = true
		s.apply(EventRecordStart)
		log.Info().Str("module", "session").Msg("recording started")
	}) {
		return domain.ErrClosed
	}
	return err
}

// Stop ends the user turn by committing the input buffer and requesting a
// response. It is a no-op when not recording.
func (s *Session) Stop() error {
	var err error
	if !s.exec(func() {
		if !s.recording {
			return
		}
		s.recording = false
		s.pulsing = false

		if s.peer != nil && s.peer.ChannelOpen() {
			if sendErr := s.peer.Send(protocol.BufferCommit()); sendErr != nil {
				err = domain.Errorf(domain.KindTransportDisconnected, sendErr, "commit input buffer")
			} else if sendErr := s.peer.Send(protocol.ResponseCreate()); sendErr != nil {
				err = domain.Errorf(domain.KindTransportDisconnected, sendErr, "request response")
			}
		}
		if err != nil {
			s.errKind = domain.KindOf(err)
			s.errMsg = "Failed to process audio"
			s.cfg.Metrics.RecordError(s.ctx, string(s.errKind))
		}

		s.apply(EventRecordStop)
		s.cfg.Metrics.RecordTurn(s.ctx)
		log.Info().Str("module", "session").Msg("recording stopped")
	}) {
		return domain.ErrClosed
	}
	return err
}

// ToggleMute flips the local track's enabled flag and reports whether it is
// now muted. With no track it does nothing and returns false.
func (s *Session) ToggleMute() bool {
	muted := false
	s.exec(func() {
		track := s.cfg.Mic.Track()
		if track == nil {
			return
		}
		track.SetEnabled(!track.Enabled())
		muted = !track.Enabled()
		log.Info().Str("module", "session").Bool("muted", muted).Msg("microphone toggled")
	})
	return muted
}
