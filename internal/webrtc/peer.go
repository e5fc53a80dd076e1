package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/divinesarathi/voice/internal/audio"
	"github.com/divinesarathi/voice/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ChannelLabel is the label of the control data channel.
const ChannelLabel = "oai-events"

// ErrNoRTCTrack is returned when a LocalAudio cannot supply a WebRTC track.
var ErrNoRTCTrack = errors.New("local audio has no WebRTC track")

// rtcTrack is implemented by local audio that can be attached to a peer.
type rtcTrack interface {
	RTCTrack() pion.TrackLocal
}

// Sink plays remote audio tracks.
type Sink interface {
	Play(track audio.RTPReader)
}

// Config configures new peers.
type Config struct {
	STUNServers []string
	Speaker     Sink
}

// Peer wraps a Pion PeerConnection and its control DataChannel.
type Peer struct {
	pc      *pion.PeerConnection
	dc      *pion.DataChannel
	handler domain.PeerHandler
	speaker Sink

	closeOnce sync.Once
}

// Factory returns a domain.PeerFactory building peers from cfg.
func Factory(cfg Config) domain.PeerFactory {
	return func(handler domain.PeerHandler) (domain.Peer, error) {
		return NewPeer(cfg, handler)
	}
}

// NewPeer creates a PeerConnection with Opus registered and an ordered
// DataChannel created ahead of negotiation.
func NewPeer(cfg Config, handler domain.PeerHandler) (*Peer, error) {
	m := &pion.MediaEngine{}

	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:    pion.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register Opus: %w", err)
	}

	i := &interceptor.Registry{}
	responderFactory, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	i.Add(responderFactory)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	var servers []pion.ICEServer
	for _, url := range cfg.STUNServers {
		servers = append(servers, pion.ICEServer{URLs: []string{url}})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ordered := true
	dc, err := pc.CreateDataChannel(ChannelLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	p := &Peer{
		pc:      pc,
		dc:      dc,
		handler: handler,
		speaker: cfg.Speaker,
	}

	dc.OnOpen(func() {
		log.Info().Str("module", "webrtc").Msg("data channel opened")
		handler.OnChannelOpen()
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		handler.OnChannelMessage(msg.Data)
	})
	dc.OnClose(func() {
		log.Info().Str("module", "webrtc").Msg("data channel closed")
		handler.OnChannelClosed()
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("ice_state", state.String()).Msg("ICE connection state")
		if ts, ok := transportState(state); ok {
			handler.OnTransportState(ts)
		}
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer_state", state.String()).Msg("peer connection state")
	})
	pc.OnTrack(p.onTrack)

	return p, nil
}

func (p *Peer) onTrack(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
	codec := track.Codec()
	log.Info().
		Str("module", "webrtc").
		Str("kind", track.Kind().String()).
		Str("codec", codec.MimeType).
		Str("track_id", track.ID()).
		Msg("got remote track")

	if track.Kind() != pion.RTPCodecTypeAudio {
		go drain(track)
		return
	}

	p.handler.OnRemoteAudio(track.ID())
	if p.speaker == nil {
		go drain(track)
		return
	}
	go p.speaker.Play(track)
}

func drain(track *pion.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

func transportState(state pion.ICEConnectionState) (domain.TransportState, bool) {
	switch state {
	case pion.ICEConnectionStateChecking:
		return domain.TransportChecking, true
	case pion.ICEConnectionStateConnected, pion.ICEConnectionStateCompleted:
		return domain.TransportConnected, true
	case pion.ICEConnectionStateDisconnected:
		return domain.TransportDisconnected, true
	case pion.ICEConnectionStateFailed:
		return domain.TransportFailed, true
	case pion.ICEConnectionStateClosed:
		return domain.TransportClosed, true
	}
	return "", false
}

// AddLocalTrack attaches the microphone track as an outbound sender.
func (p *Peer) AddLocalTrack(track domain.LocalAudio) error {
	rt, ok := track.(rtcTrack)
	if !ok || rt.RTCTrack() == nil {
		return ErrNoRTCTrack
	}

	sender, err := p.pc.AddTrack(rt.RTCTrack())
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}

	// RTCP must be read for interceptors such as NACK to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()

	log.Info().Str("module", "webrtc").Msg("local audio track added")
	return nil
}

// CreateOffer creates an SDP offer, sets it as the local description and
// waits for ICE gathering so the returned SDP carries every candidate.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gathered := pion.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", fmt.Errorf("gather ICE candidates: %w", ctx.Err())
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("no local description after gathering")
	}
	log.Info().Str("module", "webrtc").Msg("local SDP offer set")
	return local.SDP, nil
}

// SetRemoteDescription applies the SDP answer.
func (p *Peer) SetRemoteDescription(sdp domain.SDPPayload) error {
	answer := pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  sdp.SDP,
	}

	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	log.Info().Str("module", "webrtc").Msg("remote SDP answer set")
	return nil
}

// Send writes a text message on the control channel.
func (p *Peer) Send(data []byte) error {
	if !p.ChannelOpen() {
		return fmt.Errorf("data channel is %s", p.dc.ReadyState())
	}
	return p.dc.SendText(string(data))
}

// ChannelOpen reports whether the control channel is open.
func (p *Peer) ChannelOpen() bool {
	return p.dc.ReadyState() == pion.DataChannelStateOpen
}

// Close shuts down the DataChannel and then the PeerConnection. Safe to call
// more than once.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		if p.dc != nil {
			if err := p.dc.Close(); err != nil {
				log.Warn().Err(err).Str("module", "webrtc").Msg("close data channel")
			}
		}
		if p.pc != nil {
			if err := p.pc.Close(); err != nil {
				log.Warn().Err(err).Str("module", "webrtc").Msg("close peer connection")
			}
		}
		log.Info().Str("module", "webrtc").Msg("peer closed")
	})
}
