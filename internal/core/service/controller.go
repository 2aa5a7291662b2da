package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/kavelin/sona/internal/core/domain"
	"github.com/kavelin/sona/internal/core/port"
)

// Timeout defaults. Overridable through Config, never per call.
const (
	DefaultRingingTimeout    = 45 * time.Second
	DefaultConnectingTimeout = 30 * time.Second
	DefaultTerminalGrace     = 2 * time.Second
)

var ErrCallActive = errors.New("another call is active")

// reason surfaced when local capture cannot be acquired
const reasonMediaUnavailable = "camera/microphone unavailable"

// Config carries the controller timeouts. Zero fields fall back to the
// defaults above.
type Config struct {
	RingingTimeout    time.Duration
	ConnectingTimeout time.Duration
	// TerminalGrace is how long a terminal session stays visible before
	// the controller clears it and reports idle again.
	TerminalGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.RingingTimeout <= 0 {
		c.RingingTimeout = DefaultRingingTimeout
	}
	if c.ConnectingTimeout <= 0 {
		c.ConnectingTimeout = DefaultConnectingTimeout
	}
	if c.TerminalGrace <= 0 {
		c.TerminalGrace = DefaultTerminalGrace
	}
	return c
}

// CallState is the snapshot handed to the presentation layer on every
// transition.
type CallState struct {
	ID         domain.CallID
	Status     domain.CallStatus
	Type       domain.CallType
	Direction  domain.CallDirection
	Peer       domain.Participant
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	FailReason string
}

// Callbacks is the controller's observer table. All entries are optional.
// Callbacks are invoked inside the controller's dispatch; they must not
// call controller operations synchronously.
type Callbacks struct {
	OnStateChange  func(CallState)
	OnRemoteStream func(port.RemoteStream)
	// OnError reports non-fatal failures (e.g. a camera switch that did
	// not take). Fatal failures surface as a failed CallState instead.
	OnError func(error)
}

// Controller is the single authority over one participant's call
// lifecycle: it sequences negotiation for its role, buffers early
// candidates, enforces the ringing/connecting deadlines and owns the
// transport session and local capture stream.
//
// Every trigger (public operation, inbound signal, transport callback,
// timer fire, async completion) funnels through the controller mutex, so
// one event is processed fully before the next and transitions happen in
// exactly one place. Blocking work (media acquisition, offer/answer
// creation, applying a remote description) runs on a spawned goroutine
// and re-enters with the session epoch; completions for a torn-down
// session release whatever they acquired and are dropped.
type Controller struct {
	self       domain.Participant
	cfg        Config
	signaling  port.SignalingChannel
	transports port.TransportFactory
	media      port.MediaSource
	clk        clock.Clock
	cb         Callbacks
	log        zerolog.Logger

	mu      sync.Mutex
	session *domain.CallSession
	// epoch invalidates in-flight async work on teardown.
	epoch uint64

	transport   port.TransportSession
	localStream port.MediaStream
	audioTrack  port.LocalTrack
	videoTrack  port.LocalTrack
	cameraID    string

	// pending holds remote candidates that arrived before the remote
	// description was applied. Flushed in arrival order, cleared only on
	// flush or teardown.
	pending       []domain.Candidate
	remoteDescSet bool
	// remoteOffer buffers the peer's offer when it arrives before the
	// answering side has its transport ready. offerTaken and answerTaken
	// mark that one goroutine has committed to applying the remote
	// description; redelivered duplicates are dropped.
	remoteOffer *domain.SessionDescription
	offerTaken  bool
	answerTaken bool

	ringingTimer    *clock.Timer
	connectingTimer *clock.Timer
	graceTimer      *clock.Timer

	unsubscribe func()
}

// NewController subscribes the controller to its participant's signals.
// Close releases the subscription and tears down any active call.
func NewController(self domain.Participant, ch port.SignalingChannel, tf port.TransportFactory, ms port.MediaSource, clk clock.Clock, cfg Config, cb Callbacks, log zerolog.Logger) (*Controller, error) {
	c := &Controller{
		self:       self,
		cfg:        cfg.withDefaults(),
		signaling:  ch,
		transports: tf,
		media:      ms,
		clk:        clk,
		cb:         cb,
		log:        log.With().Str("user_id", self.ID.String()).Logger(),
	}
	unsub, err := ch.Subscribe(self.ID, c.HandleSignal)
	if err != nil {
		return nil, fmt.Errorf("subscribe signaling: %w", err)
	}
	c.unsubscribe = unsub
	return c, nil
}

// Close unsubscribes from signaling and force-ends any active call
// without publishing; the peer learns of our disappearance from its own
// timers or transport state.
func (c *Controller) Close() error {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && !c.session.Status.Terminal() {
		c.terminate(domain.StatusEnded, "")
	}
	c.clearSession()
	return nil
}

// State returns the current session snapshot; a zero-ID idle snapshot
// when no session exists.
func (c *Controller) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Start begins an outgoing call. It returns once the call-request is
// published and ringing has begun; progression continues asynchronously.
func (c *Controller) Start(ctx context.Context, callee domain.Participant, t domain.CallType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return ErrCallActive
	}

	c.session = &domain.CallSession{
		ID:        domain.NewCallID(),
		Type:      t,
		Status:    domain.StatusRinging,
		Direction: domain.DirectionOutgoing,
		Caller:    c.self,
		Callee:    callee,
	}
	c.log.Info().Str("call_id", c.session.ID.String()).Str("callee", callee.ID.String()).Str("type", string(t)).Msg("starting call")

	c.send(ctx, domain.NewCallRequest(c.session.ID, c.self, callee.ID, t))
	c.armRinging()
	c.emitState()
	return nil
}

// Answer accepts an incoming ringing call. No-op when there is no
// incoming call ringing.
func (c *Controller) Answer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || s.Direction != domain.DirectionIncoming || s.Status != domain.StatusRinging {
		return
	}
	c.log.Info().Str("call_id", s.ID.String()).Msg("answering call")
	c.stopTimer(&c.ringingTimer)
	s.Status = domain.StatusConnecting
	c.armConnecting()
	c.emitState()
	go c.answerSetup(c.epoch, s.Type, s.Caller.ID, s.ID)
}

// Reject declines a ringing call. No-op outside ringing.
func (c *Controller) Reject() {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || s.Status != domain.StatusRinging {
		return
	}
	c.log.Info().Str("call_id", s.ID.String()).Msg("rejecting call")
	c.send(context.Background(), domain.Signal{
		Type: domain.SignalCallReject, CallID: s.ID,
		SenderID: c.self.ID, ReceiverID: s.Peer().ID,
		Reason: "declined",
	})
	c.terminate(domain.StatusRejected, "")
}

// End hangs up. Valid from connecting and connected, and usable as a
// general hang-up from ringing. No-op otherwise.
func (c *Controller) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || s.Status.Terminal() {
		return
	}
	c.log.Info().Str("call_id", s.ID.String()).Msg("ending call")
	c.send(context.Background(), domain.Signal{
		Type: domain.SignalCallEnd, CallID: s.ID,
		SenderID: c.self.ID, ReceiverID: s.Peer().ID,
		Reason: "hangup",
	})
	c.terminate(domain.StatusEnded, "")
}

// ToggleAudio flips the enabled state of the local audio track. Pure
// side effect, no transition, no renegotiation.
func (c *Controller) ToggleAudio(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioTrack != nil {
		c.audioTrack.SetEnabled(enabled)
	}
}

// ToggleVideo flips the enabled state of the local video track.
func (c *Controller) ToggleVideo(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.videoTrack != nil {
		c.videoTrack.SetEnabled(enabled)
	}
}

// SwitchCamera replaces the outgoing video track with a capture from the
// next available camera, without renegotiation. Failure is reported via
// OnError and leaves the call untouched.
func (c *Controller) SwitchCamera() {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil || s.Type != domain.CallTypeVideo || c.videoTrack == nil || c.transport == nil {
		return
	}
	go c.switchCamera(c.epoch, c.cameraID)
}

// HandleSignal dispatches one inbound signal. Signals addressed to a
// different participant or carrying a stale or unknown call ID are
// silently ignored; a shared channel makes those routine, not errors.
func (c *Controller) HandleSignal(sig domain.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sig.ReceiverID != c.self.ID {
		return
	}
	if sig.Type == domain.SignalCallRequest {
		c.handleCallRequest(sig)
		return
	}
	s := c.session
	if s == nil || sig.CallID != s.ID || s.Status.Terminal() {
		return
	}

	switch sig.Type {
	case domain.SignalCallAccept:
		c.handleAccept(sig)
	case domain.SignalOffer:
		c.handleOffer(sig)
	case domain.SignalAnswer:
		c.handleAnswer(sig)
	case domain.SignalCandidate:
		c.handleCandidate(sig)
	case domain.SignalCallReject:
		if s.Status == domain.StatusRinging {
			c.terminate(domain.StatusRejected, "")
		}
	case domain.SignalCallBusy:
		c.terminate(domain.StatusBusy, "")
	case domain.SignalCallEnd:
		c.terminate(domain.StatusEnded, "")
	default:
		c.log.Debug().Str("type", string(sig.Type)).Msg("ignoring signal")
	}
}

// --- inbound signal transitions -------------------------------------------

func (c *Controller) handleCallRequest(sig domain.Signal) {
	if c.session != nil {
		if sig.CallID == c.session.ID {
			return // at-least-once delivery, duplicate request
		}
		// Busy contention: auto-reject the new caller, leave the active
		// session untouched.
		c.log.Info().Str("call_id", sig.CallID.String()).Str("caller", sig.SenderID.String()).Msg("busy, rejecting second call")
		c.send(context.Background(), domain.Signal{
			Type: domain.SignalCallBusy, CallID: sig.CallID,
			SenderID: c.self.ID, ReceiverID: sig.SenderID,
		})
		return
	}

	caller := domain.Participant{ID: sig.SenderID}
	if sig.CallerInfo != nil {
		caller = *sig.CallerInfo
	}
	c.session = &domain.CallSession{
		ID:        sig.CallID,
		Type:      sig.CallType,
		Status:    domain.StatusRinging,
		Direction: domain.DirectionIncoming,
		Caller:    caller,
		Callee:    c.self,
	}
	c.log.Info().Str("call_id", sig.CallID.String()).Str("caller", caller.ID.String()).Msg("incoming call")
	c.armRinging()
	c.emitState()
}

// handleAccept moves the outgoing side into connecting and starts the
// offer leg. The side that receives the accept is always the offerer;
// the fixed role keeps both peers from offering at once.
func (c *Controller) handleAccept(sig domain.Signal) {
	s := c.session
	if s.Direction != domain.DirectionOutgoing || s.Status != domain.StatusRinging {
		return
	}
	c.stopTimer(&c.ringingTimer)
	s.Status = domain.StatusConnecting
	c.armConnecting()
	c.emitState()
	go c.offerSetup(c.epoch, s.Type, s.Callee.ID, s.ID)
}

func (c *Controller) handleOffer(sig domain.Signal) {
	s := c.session
	if s.Direction != domain.DirectionIncoming || s.Status != domain.StatusConnecting {
		return
	}
	if c.remoteDescSet || c.remoteOffer != nil {
		return // duplicate offer
	}
	offer := *sig.Description
	c.remoteOffer = &offer
	if c.transport == nil {
		// Transport still being set up; answerSetup applies the offer
		// once it exists.
		return
	}
	c.offerTaken = true
	go c.applyOfferAndAnswer(c.epoch, offer, s.Caller.ID, s.ID)
}

func (c *Controller) handleAnswer(sig domain.Signal) {
	s := c.session
	if s.Direction != domain.DirectionOutgoing || s.Status != domain.StatusConnecting {
		return
	}
	if c.transport == nil || c.remoteDescSet || c.answerTaken {
		return
	}
	c.answerTaken = true
	go c.applyAnswer(c.epoch, *sig.Description)
}

// handleCandidate applies a remote candidate immediately when the remote
// description is already set, otherwise buffers it. The buffer is only
// ever dropped on full teardown.
func (c *Controller) handleCandidate(sig domain.Signal) {
	if c.remoteDescSet && c.transport != nil {
		if err := c.transport.AddCandidate(*sig.Candidate); err != nil {
			c.log.Warn().Err(err).Msg("add candidate")
		}
		return
	}
	c.pending = append(c.pending, *sig.Candidate)
}

// --- async negotiation legs -----------------------------------------------

// offerSetup runs the caller-side leg after the accept: acquire media,
// create the transport, publish the offer.
func (c *Controller) offerSetup(epoch uint64, t domain.CallType, peer domain.UserID, callID domain.CallID) {
	stream, err := c.media.Acquire(context.Background(), domain.ProfileFor(t))
	if err != nil {
		c.failLocked(epoch, reasonMediaUnavailable, err)
		return
	}
	if !c.adoptStream(epoch, stream) {
		return
	}
	if err := c.setupTransport(epoch, t); err != nil {
		c.failLocked(epoch, "connection setup failed", err)
		return
	}

	c.mu.Lock()
	tr := c.transport
	c.mu.Unlock()
	if tr == nil {
		return
	}
	offer, err := tr.CreateOffer(context.Background())
	if err != nil {
		c.failLocked(epoch, "negotiation failed", err)
		return
	}
	if err := tr.SetLocalDescription(offer); err != nil {
		c.failLocked(epoch, "negotiation failed", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(epoch) {
		return
	}
	c.send(context.Background(), domain.Signal{
		Type: domain.SignalOffer, CallID: callID,
		SenderID: c.self.ID, ReceiverID: peer,
		Description: &offer,
	})
}

// answerSetup runs the callee-side leg after a local answer: acquire
// media, create the transport, publish the accept, then answer the offer
// once it is here (it may have arrived already).
func (c *Controller) answerSetup(epoch uint64, t domain.CallType, peer domain.UserID, callID domain.CallID) {
	stream, err := c.media.Acquire(context.Background(), domain.ProfileFor(t))
	if err != nil {
		c.failLocked(epoch, reasonMediaUnavailable, err)
		return
	}
	if !c.adoptStream(epoch, stream) {
		return
	}
	if err := c.setupTransport(epoch, t); err != nil {
		c.failLocked(epoch, "connection setup failed", err)
		return
	}

	c.mu.Lock()
	if c.stale(epoch) {
		c.mu.Unlock()
		return
	}
	c.send(context.Background(), domain.Signal{
		Type: domain.SignalCallAccept, CallID: callID,
		SenderID: c.self.ID, ReceiverID: peer,
	})
	var buffered *domain.SessionDescription
	if c.remoteOffer != nil && !c.offerTaken {
		c.offerTaken = true
		buffered = c.remoteOffer
	}
	c.mu.Unlock()

	if buffered != nil {
		c.applyOfferAndAnswer(epoch, *buffered, peer, callID)
	}
}

func (c *Controller) applyOfferAndAnswer(epoch uint64, offer domain.SessionDescription, peer domain.UserID, callID domain.CallID) {
	c.mu.Lock()
	tr := c.transport
	stale := c.stale(epoch)
	c.mu.Unlock()
	if stale || tr == nil {
		return
	}

	if err := tr.SetRemoteDescription(offer); err != nil {
		c.failLocked(epoch, "negotiation failed", err)
		return
	}
	c.remoteApplied(epoch)

	answer, err := tr.CreateAnswer(context.Background())
	if err != nil {
		c.failLocked(epoch, "negotiation failed", err)
		return
	}
	if err := tr.SetLocalDescription(answer); err != nil {
		c.failLocked(epoch, "negotiation failed", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(epoch) {
		return
	}
	c.send(context.Background(), domain.Signal{
		Type: domain.SignalAnswer, CallID: callID,
		SenderID: c.self.ID, ReceiverID: peer,
		Description: &answer,
	})
}

func (c *Controller) applyAnswer(epoch uint64, answer domain.SessionDescription) {
	c.mu.Lock()
	tr := c.transport
	stale := c.stale(epoch)
	c.mu.Unlock()
	if stale || tr == nil {
		return
	}
	if err := tr.SetRemoteDescription(answer); err != nil {
		c.failLocked(epoch, "negotiation failed", err)
		return
	}
	c.remoteApplied(epoch)
}

// remoteApplied marks the remote description set and flushes the
// candidate buffer in arrival order.
func (c *Controller) remoteApplied(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(epoch) || c.transport == nil {
		return
	}
	c.remoteDescSet = true
	for _, cand := range c.pending {
		if err := c.transport.AddCandidate(cand); err != nil {
			c.log.Warn().Err(err).Msg("flush candidate")
		}
	}
	c.pending = nil
}

// adoptStream hands an acquired stream to the session, or releases it
// when the session is gone: a user who hung up mid-acquisition must not
// leak the capture.
func (c *Controller) adoptStream(epoch uint64, stream port.MediaStream) bool {
	c.mu.Lock()
	if c.stale(epoch) {
		c.mu.Unlock()
		stream.Close()
		return false
	}
	c.localStream = stream
	c.audioTrack = stream.AudioTrack()
	c.videoTrack = stream.VideoTrack()
	c.mu.Unlock()
	return true
}

// setupTransport creates the transport session, wires its callbacks and
// attaches the local tracks.
func (c *Controller) setupTransport(epoch uint64, t domain.CallType) error {
	tr, err := c.transports.NewSession(t, port.TransportCallbacks{
		OnLocalCandidate: func(cand domain.Candidate) { c.onLocalCandidate(epoch, cand) },
		OnStateChange:    func(st domain.TransportState) { c.onTransportState(epoch, st) },
		OnRemoteStream:   func(rs port.RemoteStream) { c.onRemoteStream(epoch, rs) },
	})
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	c.mu.Lock()
	if c.stale(epoch) {
		c.mu.Unlock()
		tr.Close()
		return nil
	}
	c.transport = tr
	audio, video := c.audioTrack, c.videoTrack
	c.mu.Unlock()

	if audio != nil {
		if err := tr.AddTrack(audio); err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
	}
	if video != nil {
		if err := tr.AddTrack(video); err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
	}
	return nil
}

func (c *Controller) switchCamera(epoch uint64, current string) {
	cameras, err := c.media.Cameras(context.Background())
	if err != nil {
		c.reportError(fmt.Errorf("camera switch: enumerate: %w", err))
		return
	}
	if len(cameras) == 0 {
		c.reportError(errors.New("camera switch: no cameras available"))
		return
	}
	// The initial track comes from the default camera, so an unknown
	// current camera counts as index 0.
	idx := 0
	for i, cam := range cameras {
		if cam.ID == current {
			idx = i
			break
		}
	}
	next := cameras[(idx+1)%len(cameras)]

	track, err := c.media.AcquireVideo(context.Background(), next.ID)
	if err != nil {
		c.reportError(fmt.Errorf("camera switch: acquire %q: %w", next.ID, err))
		return
	}

	c.mu.Lock()
	if c.stale(epoch) || c.transport == nil {
		c.mu.Unlock()
		track.Stop()
		return
	}
	tr, old := c.transport, c.videoTrack
	c.mu.Unlock()

	if err := tr.ReplaceTrack(domain.TrackVideo, track); err != nil {
		track.Stop()
		c.reportError(fmt.Errorf("camera switch: replace track: %w", err))
		return
	}

	c.mu.Lock()
	if c.stale(epoch) {
		c.mu.Unlock()
		track.Stop()
		return
	}
	c.videoTrack = track
	c.cameraID = next.ID
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	c.log.Info().Str("camera", next.ID).Msg("camera switched")
}

// --- transport callbacks ---------------------------------------------------

func (c *Controller) onLocalCandidate(epoch uint64, cand domain.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(epoch) {
		return
	}
	s := c.session
	c.send(context.Background(), domain.Signal{
		Type: domain.SignalCandidate, CallID: s.ID,
		SenderID: c.self.ID, ReceiverID: s.Peer().ID,
		Candidate: &cand,
	})
}

func (c *Controller) onTransportState(epoch uint64, st domain.TransportState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(epoch) {
		return
	}
	s := c.session
	c.log.Debug().Str("call_id", s.ID.String()).Str("state", string(st)).Msg("transport state")

	switch st {
	case domain.TransportConnected:
		if s.Status == domain.StatusConnecting {
			c.stopTimer(&c.connectingTimer)
			s.Status = domain.StatusConnected
			s.StartTime = c.clk.Now()
			c.emitState()
		}
	case domain.TransportDisconnected, domain.TransportFailed:
		// Treated as a hang-up; the peer observes the same transport
		// failure, so no call-end signal is published.
		if s.Status == domain.StatusConnecting || s.Status == domain.StatusConnected {
			c.terminate(domain.StatusEnded, "")
		}
	}
}

func (c *Controller) onRemoteStream(epoch uint64, rs port.RemoteStream) {
	c.mu.Lock()
	fn := c.cb.OnRemoteStream
	stale := c.stale(epoch)
	c.mu.Unlock()
	if stale || fn == nil {
		return
	}
	fn(rs)
}

// --- timers ----------------------------------------------------------------

func (c *Controller) armRinging() {
	epoch := c.epoch
	c.ringingTimer = c.clk.AfterFunc(c.cfg.RingingTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.stale(epoch) || c.session.Status != domain.StatusRinging {
			return
		}
		c.log.Info().Str("call_id", c.session.ID.String()).Msg("ringing timeout")
		c.terminate(domain.StatusMissed, "")
	})
}

func (c *Controller) armConnecting() {
	epoch := c.epoch
	c.connectingTimer = c.clk.AfterFunc(c.cfg.ConnectingTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.stale(epoch) || c.session.Status != domain.StatusConnecting {
			return
		}
		c.log.Info().Str("call_id", c.session.ID.String()).Msg("connecting timeout")
		c.terminate(domain.StatusFailed, "connection timed out")
	})
}

func (c *Controller) stopTimer(t **clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// --- teardown --------------------------------------------------------------

// failLocked fails the session with a user-facing reason. Safe to call
// from any goroutine; no-ops for stale epochs.
func (c *Controller) failLocked(epoch uint64, reason string, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(epoch) {
		return
	}
	c.log.Error().Err(cause).Str("call_id", c.session.ID.String()).Msg("call failed")
	c.terminate(domain.StatusFailed, reason)
}

// terminate moves the session into a terminal status and releases every
// owned resource. Idempotent: releasing an already-released session is a
// no-op. Caller holds mu.
func (c *Controller) terminate(status domain.CallStatus, reason string) {
	s := c.session
	if s == nil || s.Status.Terminal() {
		return
	}
	c.epoch++

	c.stopTimer(&c.ringingTimer)
	c.stopTimer(&c.connectingTimer)

	s.Status = status
	s.EndTime = c.clk.Now()
	s.FailReason = reason

	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close transport")
		}
		c.transport = nil
	}
	if c.localStream != nil {
		c.localStream.Close()
		c.localStream = nil
	}
	c.audioTrack, c.videoTrack = nil, nil
	c.pending = nil
	c.remoteDescSet = false
	c.remoteOffer = nil
	c.offerTaken = false
	c.answerTaken = false
	c.cameraID = ""

	c.log.Info().
		Str("call_id", s.ID.String()).
		Str("status", string(status)).
		Dur("duration", s.Duration()).
		Msg("call terminated")
	c.emitState()

	// Keep the terminal snapshot visible briefly so the UI can render
	// it, then clear the session.
	epoch := c.epoch
	c.graceTimer = c.clk.AfterFunc(c.cfg.TerminalGrace, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if epoch != c.epoch {
			return
		}
		c.clearSession()
		c.emitState()
	})
}

func (c *Controller) clearSession() {
	c.stopTimer(&c.graceTimer)
	c.session = nil
}

// --- helpers ---------------------------------------------------------------

// stale reports whether an async completion belongs to a torn-down
// session. Caller holds mu.
func (c *Controller) stale(epoch uint64) bool {
	return epoch != c.epoch || c.session == nil || c.session.Status.Terminal()
}

func (c *Controller) send(ctx context.Context, sig domain.Signal) {
	if err := c.signaling.Send(ctx, sig); err != nil {
		c.log.Error().Err(err).Str("type", string(sig.Type)).Msg("send signal")
	}
}

func (c *Controller) reportError(err error) {
	c.log.Warn().Err(err).Msg("call warning")
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *Controller) snapshot() CallState {
	s := c.session
	if s == nil {
		return CallState{Status: domain.StatusIdle}
	}
	return CallState{
		ID:         s.ID,
		Status:     s.Status,
		Type:       s.Type,
		Direction:  s.Direction,
		Peer:       s.Peer(),
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Duration:   s.Duration(),
		FailReason: s.FailReason,
	}
}

func (c *Controller) emitState() {
	if c.cb.OnStateChange != nil {
		c.cb.OnStateChange(c.snapshot())
	}
}
