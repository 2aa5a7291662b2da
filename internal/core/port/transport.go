package port

import (
	"context"

	"github.com/kavelin/sona/internal/core/domain"
)

// TransportCallbacks is the event table a transport session fires into.
// Nil entries are skipped. Callbacks may be invoked from transport-owned
// goroutines; they must not call back into the session synchronously.
type TransportCallbacks struct {
	OnLocalCandidate func(domain.Candidate)
	OnStateChange    func(domain.TransportState)
	OnRemoteStream   func(RemoteStream)
}

// TransportSession is one negotiable peer connection. Exactly one is live
// per call controller and it is never shared across calls.
type TransportSession interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	AddCandidate(c domain.Candidate) error
	AddTrack(t LocalTrack) error
	// ReplaceTrack swaps the outgoing track of the given kind without
	// renegotiating the session.
	ReplaceTrack(kind domain.TrackKind, t LocalTrack) error
	Close() error
}

// TransportFactory creates transport sessions with their callback table
// wired before any event can fire. The call type decides whether the
// session negotiates a video line.
type TransportFactory interface {
	NewSession(t domain.CallType, cb TransportCallbacks) (TransportSession, error)
}

// RemoteStream is incoming media emitted by the transport, handed to the
// presentation layer as-is.
type RemoteStream interface {
	ID() string
	Kind() domain.TrackKind
}
