package audio

import (
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

// RTPReader is the read side of a remote track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Speaker is the loudspeaker sink for remote audio. Packets arriving while no
// speaker route is forced are dropped.
type Speaker struct {
	path string

	mu sync.Mutex
	w  *oggwriter.OggWriter
}

// NewSpeaker returns a sink writing Ogg/Opus to path while routed.
func NewSpeaker(path string) *Speaker {
	return &Speaker{path: path}
}

// ForceSpeaker routes remote audio to the loudspeaker.
func (s *Speaker) ForceSpeaker() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w != nil {
		return nil
	}
	w, err := oggwriter.New(s.path, opusClockRate, 2)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	s.w = w
	log.Info().Str("module", "audio").Str("path", s.path).Msg("audio routed to speaker")
	return nil
}

// Routed reports whether the speaker route is forced.
func (s *Speaker) Routed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w != nil
}

// Release drops the speaker route. Safe to call when not routed.
func (s *Speaker) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return
	}
	if err := s.w.Close(); err != nil {
		log.Warn().Err(err).Str("module", "audio").Msg("close speaker")
	}
	s.w = nil
	log.Info().Str("module", "audio").Msg("speaker route released")
}

// Play copies packets from track until it fails.
func (s *Speaker) Play(track RTPReader) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "audio").Msg("remote track ended")
			return
		}
		s.write(pkt)
	}
}

func (s *Speaker) write(pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return
	}
	if err := s.w.WriteRTP(pkt); err != nil {
		log.Warn().Err(err).Str("module", "audio").Msg("write speaker packet")
	}
}
