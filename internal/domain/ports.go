package domain

import "context"

// CredentialFetcher mints a session credential for a topic.
type CredentialFetcher interface {
	FetchCredential(ctx context.Context, topic Topic) (*SessionCredential, error)
}

// Correlator forwards the realtime call ID to the backend.
type Correlator interface {
	SendLocation(ctx context.Context, callID, key string) error
}

// Negotiator posts a local offer to the realtime service and returns its answer.
type Negotiator interface {
	Negotiate(ctx context.Context, cred *SessionCredential, offerSDP string) (*Answer, error)
}

// TokenStore holds the user's cached backend bearer token.
type TokenStore interface {
	Token() (string, error)
	Save(token string) error
	Purge() error
}

// LocalAudio is the microphone capture handle.
type LocalAudio interface {
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
}

// Microphone acquires and releases the local capture handle.
type Microphone interface {
	AcquireMicrophone(ctx context.Context) (LocalAudio, error)
	Track() LocalAudio
	Release()
}

// AudioRouter forces remote playback onto the loudspeaker.
type AudioRouter interface {
	ForceSpeaker() error
	Release()
}

// TransportState is the connectivity state reported by a peer.
type TransportState string

const (
	TransportChecking     TransportState = "checking"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// PeerHandler receives asynchronous peer events.
type PeerHandler interface {
	OnChannelOpen()
	OnChannelMessage(data []byte)
	OnChannelClosed()
	OnRemoteAudio(trackID string)
	OnTransportState(state TransportState)
}

// Peer manages a WebRTC peer connection and its control data channel.
type Peer interface {
	AddLocalTrack(track LocalAudio) error
	CreateOffer(ctx context.Context) (string, error)
	SetRemoteDescription(sdp SDPPayload) error
	Send(data []byte) error
	ChannelOpen() bool
	Close()
}

// PeerFactory builds a fresh peer for one connect attempt.
type PeerFactory func(handler PeerHandler) (Peer, error)
