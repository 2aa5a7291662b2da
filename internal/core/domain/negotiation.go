package domain

// SDPType distinguishes the two halves of an offer/answer exchange.
type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// SessionDescription is the negotiated description of media capabilities
// and transport parameters exchanged during call setup.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// Candidate is one possible network path proposed for the peer-to-peer
// connection. Mirrors the trickle-ICE wire shape.
type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// TransportState is the coarse connection state reported by a transport
// session.
type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// MediaProfile is the constraint set handed to the media source when
// acquiring a local capture stream.
type MediaProfile struct {
	Audio bool
	Video bool
	// CameraID selects a specific camera; empty means the default.
	CameraID string
}

// ProfileFor returns the capture profile implied by a call type.
func ProfileFor(t CallType) MediaProfile {
	return MediaProfile{Audio: true, Video: t == CallTypeVideo}
}
