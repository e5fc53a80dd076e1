// Package audio owns the local capture track, the microphone permission gate
// and the loudspeaker sink for remote audio.
package audio

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	pion "github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"
)

const (
	opusClockRate = 48000
	frameDuration = 20 * time.Millisecond
)

var (
	// opusSilence is a single 20ms Opus silence frame.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	opusTags    = []byte("OpusTags")
)

// PageReader yields Ogg pages from a capture source.
type PageReader interface {
	ParseNextPage() ([]byte, *oggreader.OggPageHeader, error)
}

type sampleWriter interface {
	WriteSample(s pionmedia.Sample) error
}

// LocalTrack streams captured Opus audio into a WebRTC track. While disabled
// it keeps capturing but sends silence.
type LocalTrack struct {
	rtc   *pion.TrackLocalStaticSample
	out   sampleWriter
	pages PageReader
	src   io.Closer

	enabled atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewLocalTrack starts pumping pages from pages into a new Opus track. src is
// closed when the track stops and may be nil.
func NewLocalTrack(pages PageReader, src io.Closer) (*LocalTrack, error) {
	rtc, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: opusClockRate, Channels: 2},
		"audio", "sarathi-mic",
	)
	if err != nil {
		return nil, err
	}
	t := newLocalTrack(pages, src, rtc)
	t.rtc = rtc
	return t, nil
}

func newLocalTrack(pages PageReader, src io.Closer, out sampleWriter) *LocalTrack {
	t := &LocalTrack{
		out:   out,
		pages: pages,
		src:   src,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	t.enabled.Store(true)
	go t.pump()
	return t
}

// RTCTrack returns the track to attach to a peer connection.
func (t *LocalTrack) RTCTrack() pion.TrackLocal {
	if t.rtc == nil {
		return nil
	}
	return t.rtc
}

// Enabled reports whether captured audio is being sent.
func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

// SetEnabled mutes or unmutes the track without stopping capture.
func (t *LocalTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Live reports whether the track is still capturing.
func (t *LocalTrack) Live() bool { return !t.stopped.Load() }

// Stop ends capture and releases the source. Safe to call more than once.
func (t *LocalTrack) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		close(t.stop)
		<-t.done
		if t.src != nil {
			if err := t.src.Close(); err != nil {
				log.Warn().Err(err).Str("module", "audio").Msg("close capture source")
			}
		}
		log.Info().Str("module", "audio").Msg("local track stopped")
	})
}

func (t *LocalTrack) pump() {
	defer close(t.done)

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	var lastGranule uint64
	drained := false

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		data, duration := opusSilence, frameDuration
		if !drained {
			page, header, err := t.pages.ParseNextPage()
			switch {
			case errors.Is(err, io.EOF):
				log.Info().Str("module", "audio").Msg("capture source drained, sending silence")
				drained = true
			case err != nil:
				log.Error().Err(err).Str("module", "audio").Msg("read capture page")
				drained = true
			default:
				if header.GranulePosition > lastGranule {
					samples := header.GranulePosition - lastGranule
					duration = time.Duration(samples) * time.Second / opusClockRate
				}
				lastGranule = header.GranulePosition
				if t.Enabled() && !bytes.HasPrefix(page, opusTags) {
					data = page
				}
			}
		}

		if err := t.out.WriteSample(pionmedia.Sample{Data: data, Duration: duration}); err != nil {
			log.Warn().Err(err).Str("module", "audio").Msg("write sample")
		}
	}
}
