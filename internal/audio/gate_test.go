package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/divinesarathi/voice/internal/domain"
)

// fakeTrack is a LocalAudio that records Stop calls.
type fakeTrack struct {
	enabled bool
	stopped int
}

func (f *fakeTrack) Enabled() bool     { return f.enabled }
func (f *fakeTrack) SetEnabled(e bool) { f.enabled = e }
func (f *fakeTrack) Stop()             { f.stopped++ }

// fakeDevice counts Open calls.
type fakeDevice struct {
	simulated bool
	err       error
	opened    int
	track     *fakeTrack
}

func (d *fakeDevice) Simulated() bool { return d.simulated }
func (d *fakeDevice) Open(ctx context.Context) (domain.LocalAudio, error) {
	d.opened++
	if d.err != nil {
		return nil, d.err
	}
	return d.track, nil
}

func TestGate_SimulatorFailsFast(t *testing.T) {
	dev := &fakeDevice{simulated: true}
	g := NewGate(dev)

	_, err := g.AcquireMicrophone(context.Background())
	if !errors.Is(err, domain.ErrUnsupportedEnvironment) {
		t.Fatalf("expected UnsupportedEnvironment, got %v", err)
	}
	if dev.opened != 0 {
		t.Error("expected device not to be opened in a simulator")
	}
}

func TestGate_Denied(t *testing.T) {
	g := NewGate(&fakeDevice{err: os.ErrPermission})

	_, err := g.AcquireMicrophone(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("expected cause to be preserved")
	}
	if g.Track() != nil {
		t.Error("expected no track after denial")
	}
}

func TestGate_AcquireHoldsAndReleases(t *testing.T) {
	dev := &fakeDevice{track: &fakeTrack{enabled: true}}
	g := NewGate(dev)

	tr, err := g.AcquireMicrophone(context.Background())
	if err != nil {
		t.Fatalf("AcquireMicrophone: %v", err)
	}
	again, _ := g.AcquireMicrophone(context.Background())
	if again != tr || dev.opened != 1 {
		t.Error("expected second acquire to return the held track")
	}

	g.Release()
	g.Release()

	if dev.track.stopped != 1 {
		t.Errorf("expected track stopped once, got %d", dev.track.stopped)
	}
	if g.Track() != nil {
		t.Error("expected gate empty after release")
	}
}

func TestOggDevice_MissingFile(t *testing.T) {
	g := NewGate(OggDevice{Path: filepath.Join(t.TempDir(), "missing.ogg")})

	_, err := g.AcquireMicrophone(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}
