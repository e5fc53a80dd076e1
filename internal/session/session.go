// Package session runs the realtime voice session lifecycle. A Session is a
// single-writer actor: user calls and transport callbacks are posted to one
// inbox and every state change goes through apply.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/divinesarathi/voice/internal/domain"
	"github.com/divinesarathi/voice/internal/observe"
	"github.com/divinesarathi/voice/internal/protocol"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	inboxSize          = 64
	subscriberBuffer   = 8
	correlationTimeout = 10 * time.Second
)

// Config wires a Session to its collaborators. Correlator, Router and
// Metrics may be nil.
type Config struct {
	Mic         domain.Microphone
	Credentials domain.CredentialFetcher
	Negotiator  domain.Negotiator
	Correlator  domain.Correlator
	NewPeer     domain.PeerFactory
	Router      domain.AudioRouter
	Protocol    protocol.SessionConfig
	Metrics     *observe.Metrics
}

// Session owns one screen's voice connection.
type Session struct {
	cfg Config

	inbox     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	// Owned by the run loop.
	state      domain.ConnectionState
	errMsg     string
	errKind    domain.ErrorKind
	transcript string
	response   string
	recording  bool
	pulsing    bool
	rippling   bool
	active     bool
	attempt    string
	peer       domain.Peer
	subs       map[int]chan domain.Snapshot
	nextSub    int
	last       domain.Snapshot
}

// New starts a session in the idle state.
func New(cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		inbox:  make(chan func(), inboxSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		state:  domain.StateIdle,
		subs:   make(map[int]chan domain.Snapshot),
	}
	s.last = s.snapshot()
	go s.run()
	return s
}

func (s *Session) run() {
	defer func() {
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		close(s.done)
	}()

	for {
		select {
		case <-s.quit:
			return
		case fn := <-s.inbox:
			fn()
			s.publish()
		}
	}
}

// exec runs fn on the actor and waits for it. It reports false if the
// session closed before fn ran.
func (s *Session) exec(fn func()) bool {
	ran := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(ran) }:
	case <-s.done:
		return false
	}
	select {
	case <-ran:
		return true
	case <-s.done:
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

// post enqueues fn without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// apply is the single entry point for state changes.
func (s *Session) apply(ev Event) {
	next := Transition(s.state, ev)
	if next != s.state {
		log.Info().
			Str("module", "session").
			Str("event", ev.String()).
			Str("from", string(s.state)).
			Str("to", string(next)).
			Msg("state change")
	}
	if s.state == domain.StateError && recovers(ev) && next != domain.StateError {
		s.clearError()
	}
	s.state = next
}

// recovers reports whether ev, raised over a live control channel, ends a
// surfaced error.
func recovers(ev Event) bool {
	switch ev {
	case EventRecordStart, EventSpeechStarted, EventResponseDone:
		return true
	}
	return false
}

// Open acquires the microphone and connects, the way the connect button does.
func (s *Session) Open(ctx context.Context, topic domain.Topic) error {
	if _, err := s.cfg.Mic.AcquireMicrophone(ctx); err != nil {
		s.exec(func() {
			if s.state.CanConnect() {
				s.fail(err)
			}
		})
		return err
	}
	return s.Connect(ctx, topic)
}

// Connect negotiates a new realtime session for topic. The microphone must
// already be held. Failures leave the session in error (or idle for
// authentication failures) with nothing left open.
func (s *Session) Connect(ctx context.Context, topic domain.Topic) error {
	started := time.Now()

	var (
		id    string
		track domain.LocalAudio
		err   error
	)
	if !s.exec(func() {
		if !s.state.CanConnect() {
			err = domain.Errorf(domain.KindAlreadyConnected, nil, "session is %s", s.state)
			return
		}
		track = s.cfg.Mic.Track()
		if track == nil {
			err = domain.Errorf(domain.KindNoLocalAudio, nil, "no local audio stream available")
			s.fail(err)
			return
		}
		id = uuid.NewString()
		s.attempt = id
		s.clearError()
		s.apply(EventConnect)
	}) {
		return domain.ErrClosed
	}
	if err != nil {
		if domain.KindOf(err) == domain.KindNoLocalAudio {
			s.cfg.Metrics.RecordConnect(s.ctx, string(domain.KindNoLocalAudio), 0)
		}
		return err
	}

	logger := log.With().Str("module", "session").Str("attempt", id).Logger()
	logger.Info().Str("story_id", topic.ID).Msg("connecting")

	cred, err := s.cfg.Credentials.FetchCredential(ctx, topic)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.Errorf(domain.KindCredentialFetchFailed, err, "fetch credential")
		}
		return s.abort(id, err)
	}
	logger.Info().Msg("session credential obtained")

	peer, err := s.cfg.NewPeer(&attemptHandler{s: s, id: id})
	if err != nil {
		return s.abort(id, domain.Errorf(domain.KindNegotiationFailed, err, "create peer"))
	}
	if !s.install(id, peer) {
		peer.Close()
		return domain.ErrSuperseded
	}

	if err := peer.AddLocalTrack(track); err != nil {
		return s.abort(id, domain.Errorf(domain.KindNoLocalAudio, err, "add local track"))
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return s.abort(id, domain.Errorf(domain.KindNegotiationFailed, err, "create offer"))
	}

	answer, err := s.cfg.Negotiator.Negotiate(ctx, cred, offer)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.Errorf(domain.KindNegotiationFailed, err, "negotiate")
		}
		return s.abort(id, err)
	}

	if err := peer.SetRemoteDescription(answer.SDP); err != nil {
		return s.abort(id, domain.Errorf(domain.KindNegotiationFailed, err, "set remote description"))
	}

	current := false
	s.exec(func() {
		if s.attempt != id {
			return
		}
		current = true
		s.correlate(answer.CallID, cred.Key)
	})
	if !current {
		logger.Warn().Msg("attempt superseded during negotiation")
		return domain.ErrSuperseded
	}

	s.cfg.Metrics.RecordConnect(s.ctx, "ok", time.Since(started).Seconds())
	logger.Info().Str("call_id", answer.CallID).Msg("negotiation complete")
	return nil
}

// install makes peer the session's transport if attempt id is still current.
func (s *Session) install(id string, peer domain.Peer) bool {
	ok := false
	s.exec(func() {
		if s.attempt != id {
			return
		}
		s.teardownPeer()
		s.peer = peer
		ok = true
	})
	return ok
}

// abort fails attempt id with err, closing whatever it built. An attempt
// already cleared by cleanup or a newer connect reports Superseded.
func (s *Session) abort(id string, err error) error {
	current := false
	s.exec(func() {
		if s.attempt != id {
			return
		}
		current = true
		s.teardownPeer()
		s.fail(err)
	})
	if !current {
		log.Info().Err(err).Str("module", "session").Str("attempt", id).Msg("superseded attempt failed")
		return domain.ErrSuperseded
	}
	s.cfg.Metrics.RecordConnect(s.ctx, string(domain.KindOf(err)), 0)
	log.Error().Err(err).Str("module", "session").Str("attempt", id).Msg("connect failed")
	return err
}

// correlate reports the call ID to the backend in the background.
func (s *Session) correlate(callID, key string) {
	if s.cfg.Correlator == nil {
		return
	}
	if callID == "" {
		log.Warn().Str("module", "session").Msg("answer carried no call id")
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, correlationTimeout)
		defer cancel()
		if err := s.cfg.Correlator.SendLocation(ctx, callID, key); err != nil {
			log.Warn().Err(err).Str("module", "session").Str("call_id", callID).Msg("send location")
		}
	}()
}

// Cleanup closes the transport and returns to idle. Safe to call repeatedly
// and before any connect.
func (s *Session) Cleanup() {
	s.exec(func() {
		s.teardown()
		s.apply(EventDisconnect)
	})
}

// Disconnect cleans up, releases the microphone and clears the buffers.
func (s *Session) Disconnect() {
	s.Cleanup()
	s.cfg.Mic.Release()
	s.exec(func() {
		s.transcript = ""
		s.response = ""
		s.clearError()
	})
}

// Close disconnects and stops the session. Later calls return ErrClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Disconnect()
		close(s.quit)
		<-s.done
		s.cancel()
		s.bg.Wait()
	})
}

func (s *Session) teardown() {
	s.attempt = ""
	s.recording = false
	s.pulsing = false
	s.rippling = false
	s.teardownPeer()
	if s.cfg.Router != nil {
		s.cfg.Router.Release()
	}
}

func (s *Session) teardownPeer() {
	if s.peer != nil {
		s.peer.Close()
		s.peer = nil
	}
	if s.active {
		s.active = false
		s.cfg.Metrics.SessionActive(s.ctx, -1)
	}
}

// fail records err as the surfaced error and moves to the matching state.
func (s *Session) fail(err error) {
	kind := domain.KindOf(err)
	s.errKind = kind
	s.errMsg = userMessage(err)
	s.attempt = ""
	s.cfg.Metrics.RecordError(s.ctx, string(kind))

	switch kind {
	case domain.KindAuthRequired, domain.KindAuthExpired:
		s.apply(EventAuthFailed)
	case domain.KindPermissionDenied, domain.KindUnsupportedEnvironment:
		s.apply(EventPermissionFailed)
	default:
		s.apply(EventConnectFailed)
	}
}

func (s *Session) clearError() {
	s.errMsg = ""
	s.errKind = ""
}

func userMessage(err error) string {
	var e *domain.Error
	switch domain.KindOf(err) {
	case domain.KindNoLocalAudio:
		return "Microphone access required for voice chat"
	case domain.KindNegotiationFailed:
		return "Failed to establish audio connection with AI service"
	case domain.KindCredentialFetchFailed:
		return "Failed to authenticate with AI service"
	case domain.KindAuthRequired:
		return "Please sign in to talk with Sarathi"
	case domain.KindAuthExpired:
		return "Your session has expired. Please sign in again."
	case domain.KindTransportDisconnected:
		return "Connection lost. Please try again."
	case domain.KindPermissionDenied, domain.KindUnsupportedEnvironment:
		if errors.As(err, &e) && e.Msg != "" {
			return e.Msg
		}
	}
	return fmt.Sprintf("Connection error: %v", err)
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() domain.Snapshot {
	snap := domain.Snapshot{State: domain.StateIdle}
	s.exec(func() { snap = s.snapshot() })
	return snap
}

// Subscribe returns a channel receiving the current snapshot and every later
// change. Slow readers miss intermediate snapshots but always see the latest.
// The channel is closed by cancel or when the session closes.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, subscriberBuffer)
	id := -1
	if !s.exec(func() {
		id = s.nextSub
		s.nextSub++
		s.subs[id] = ch
		ch <- s.snapshot()
	}) {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.exec(func() {
				if _, ok := s.subs[id]; ok {
					delete(s.subs, id)
					close(ch)
				}
			})
		})
	}
}

func (s *Session) snapshot() domain.Snapshot {
	muted := false
	if s.cfg.Mic != nil {
		if track := s.cfg.Mic.Track(); track != nil {
			muted = !track.Enabled()
		}
	}
	return domain.Snapshot{
		State:      s.state,
		Error:      s.errMsg,
		ErrorKind:  s.errKind,
		Transcript: s.transcript,
		Response:   s.response,
		Recording:  s.recording,
		Muted:      muted,
		Pulsing:    s.pulsing,
		Rippling:   s.rippling,
	}
}

func (s *Session) publish() {
	snap := s.snapshot()
	if snap == s.last {
		return
	}
	s.last = snap
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Drop the oldest pending snapshot so the latest one gets through.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
