package audio

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/divinesarathi/voice/internal/domain"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

// Device is a microphone capture device.
type Device interface {
	// Simulated reports an environment that cannot grant real capture.
	Simulated() bool
	Open(ctx context.Context) (domain.LocalAudio, error)
}

// OggDevice captures from an Ogg/Opus file, standing in for a microphone on
// headless hosts.
type OggDevice struct {
	Path      string
	Simulator bool
}

func (d OggDevice) Simulated() bool { return d.Simulator }

func (d OggDevice) Open(ctx context.Context) (domain.LocalAudio, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}
	t, err := NewLocalTrack(r, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create local track: %w", err)
	}
	return t, nil
}

// Gate acquires and owns the local capture track.
type Gate struct {
	device Device

	mu    sync.Mutex
	track domain.LocalAudio
}

// NewGate returns a gate for device.
func NewGate(device Device) *Gate {
	return &Gate{device: device}
}

// AcquireMicrophone returns the held track, opening the device if needed.
func (g *Gate) AcquireMicrophone(ctx context.Context) (domain.LocalAudio, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.track != nil {
		return g.track, nil
	}

	if g.device.Simulated() {
		log.Warn().Str("module", "audio").Msg("simulated environment, microphone unavailable")
		return nil, domain.Errorf(domain.KindUnsupportedEnvironment, nil,
			"Simulator does not support microphone access. Please test on a physical device.")
	}

	log.Info().Str("module", "audio").Msg("requesting microphone")
	track, err := g.device.Open(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "audio").Msg("microphone denied")
		return nil, domain.Errorf(domain.KindPermissionDenied, err,
			"Microphone permission required. Please grant access in device settings.")
	}
	g.track = track
	log.Info().Str("module", "audio").Msg("microphone granted")
	return track, nil
}

// Track returns the held track or nil.
func (g *Gate) Track() domain.LocalAudio {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.track
}

// Release stops the held track. Releasing an empty gate is a no-op.
func (g *Gate) Release() {
	g.mu.Lock()
	track := g.track
	g.track = nil
	g.mu.Unlock()

	if track != nil {
		track.Stop()
	}
}
