package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type SignalType string

const (
	SignalCallRequest SignalType = "call-request"
	SignalCallAccept  SignalType = "call-accept"
	SignalOffer       SignalType = "offer"
	SignalAnswer      SignalType = "answer"
	SignalCandidate   SignalType = "ice-candidate"
	SignalCallReject  SignalType = "call-reject"
	SignalCallBusy    SignalType = "call-busy"
	SignalCallEnd     SignalType = "call-end"
)

// Signal is the envelope ferried over the signaling channel. The payload
// field that is set is determined by Type; Decode* accessors enforce the
// pairing so handlers never inspect the wrong field.
type Signal struct {
	Type       SignalType `json:"type"`
	CallID     CallID     `json:"call_id"`
	SenderID   UserID     `json:"sender_id"`
	ReceiverID UserID     `json:"receiver_id"`

	CallType    CallType            `json:"call_type,omitempty"`   // call-request
	CallerInfo  *Participant        `json:"caller_info,omitempty"` // call-request
	Description *SessionDescription `json:"sdp,omitempty"`         // offer, answer, call-accept (optional)
	Candidate   *Candidate          `json:"candidate,omitempty"`   // ice-candidate
	Reason      string              `json:"reason,omitempty"`      // call-reject, call-end
}

var ErrMalformedSignal = errors.New("malformed signal")

// Validate checks that the envelope is addressed and that the payload
// required by its type is present.
func (s Signal) Validate() error {
	if s.CallID == "" || s.SenderID == "" || s.ReceiverID == "" {
		return fmt.Errorf("%w: %s missing addressing", ErrMalformedSignal, s.Type)
	}
	switch s.Type {
	case SignalCallRequest:
		if s.CallType != CallTypeVoice && s.CallType != CallTypeVideo {
			return fmt.Errorf("%w: call-request with call type %q", ErrMalformedSignal, s.CallType)
		}
		if s.CallerInfo == nil {
			return fmt.Errorf("%w: call-request without caller info", ErrMalformedSignal)
		}
	case SignalOffer, SignalAnswer:
		if s.Description == nil || s.Description.SDP == "" {
			return fmt.Errorf("%w: %s without description", ErrMalformedSignal, s.Type)
		}
	case SignalCandidate:
		if s.Candidate == nil || s.Candidate.Candidate == "" {
			return fmt.Errorf("%w: ice-candidate without candidate", ErrMalformedSignal)
		}
	case SignalCallAccept, SignalCallReject, SignalCallBusy, SignalCallEnd:
		// No mandatory payload.
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedSignal, s.Type)
	}
	return nil
}

func (s Signal) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	if err := json.Unmarshal(data, &s); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if err := s.Validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

// NewCallRequest builds the initiating signal of a call.
func NewCallRequest(id CallID, caller Participant, callee UserID, t CallType) Signal {
	info := caller
	return Signal{
		Type:       SignalCallRequest,
		CallID:     id,
		SenderID:   caller.ID,
		ReceiverID: callee,
		CallType:   t,
		CallerInfo: &info,
	}
}
