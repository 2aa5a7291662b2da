package domain

import "time"

type CallType string

const (
	CallTypeVoice CallType = "voice"
	CallTypeVideo CallType = "video"
)

type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)

// CallStatus is the lifecycle state of a call session. Values are stable,
// they cross the wire and reach the presentation layer as-is.
type CallStatus string

const (
	StatusIdle       CallStatus = "idle"
	StatusRinging    CallStatus = "ringing"
	StatusConnecting CallStatus = "connecting"
	StatusConnected  CallStatus = "connected"
	StatusEnded      CallStatus = "ended"
	StatusRejected   CallStatus = "rejected"
	StatusMissed     CallStatus = "missed"
	StatusBusy       CallStatus = "busy"
	StatusFailed     CallStatus = "failed"
)

// Terminal reports whether no further transition can occur for this
// session. A new CallID is required to call again.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusMissed, StatusBusy, StatusFailed:
		return true
	default:
		return false
	}
}

// Participant identifies one side of a call. Immutable once the session
// is created.
type Participant struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// CallSession is the aggregate one controller owns for the lifetime of a
// single call. Mutated only by the controller.
type CallSession struct {
	ID        CallID
	Type      CallType
	Status    CallStatus
	Direction CallDirection
	Caller    Participant
	Callee    Participant

	StartTime time.Time // set on entering connected
	EndTime   time.Time // set on entering a terminal state

	// FailReason carries the user-facing reason when Status is failed
	// (e.g. "camera/microphone unavailable").
	FailReason string
}

// Peer returns the remote participant from this session's point of view.
func (s *CallSession) Peer() Participant {
	if s.Direction == DirectionOutgoing {
		return s.Callee
	}
	return s.Caller
}

// Duration is derived from the two timestamps, never stored on its own.
// Zero if the call never reached connected.
func (s *CallSession) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}
