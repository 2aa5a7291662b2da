package pion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/kavelin/sona/internal/core/domain"
	"github.com/kavelin/sona/internal/core/port"
)

// TrackProvider is implemented by local tracks backed by a pion track.
// The sample media source satisfies it; foreign track implementations
// cannot be attached to this transport.
type TrackProvider interface {
	PionTrack() webrtc.TrackLocal
}

var errForeignTrack = errors.New("local track is not backed by a pion track")

// Factory builds pion-backed transport sessions. Implements
// port.TransportFactory.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewFactory(iceServers []string) *Factory {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		panic(err)
	}

	var servers []webrtc.ICEServer
	for _, u := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: webrtc.Configuration{ICEServers: servers},
	}
}

func (f *Factory) NewSession(t domain.CallType, cb port.TransportCallbacks) (port.TransportSession, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	// Recvonly transceivers make the offer carry receive lines even
	// before any remote track exists. Video is only requested for video
	// calls. Outgoing tracks added later create their own sendonly
	// transceivers.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}
	if t == domain.CallTypeVideo {
		if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add video transceiver: %w", err)
		}
	}

	s := &Session{pc: pc, senders: make(map[domain.TrackKind]*webrtc.RTPSender)}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cb.OnLocalCandidate == nil {
			return // nil marks end of gathering
		}
		init := c.ToJSON()
		cb.OnLocalCandidate(domain.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if cb.OnStateChange != nil {
			cb.OnStateChange(mapState(st))
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Debug().
			Str("codec", remote.Codec().MimeType).
			Str("kind", remote.Kind().String()).
			Msg("remote track")
		if cb.OnRemoteStream != nil {
			cb.OnRemoteStream(&remoteStream{track: remote})
		}
	})

	return s, nil
}

// Session wraps one webrtc.PeerConnection. Implements
// port.TransportSession.
type Session struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders map[domain.TrackKind]*webrtc.RTPSender

	closeOnce sync.Once
}

func (s *Session) CreateOffer(_ context.Context) (domain.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return domain.SessionDescription{Type: domain.SDPOffer, SDP: offer.SDP}, nil
}

func (s *Session) CreateAnswer(_ context.Context) (domain.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return domain.SessionDescription{Type: domain.SDPAnswer, SDP: answer.SDP}, nil
}

func (s *Session) SetLocalDescription(desc domain.SessionDescription) error {
	return s.pc.SetLocalDescription(toPion(desc))
}

func (s *Session) SetRemoteDescription(desc domain.SessionDescription) error {
	return s.pc.SetRemoteDescription(toPion(desc))
}

func (s *Session) AddCandidate(c domain.Candidate) error {
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (s *Session) AddTrack(t port.LocalTrack) error {
	provider, ok := t.(TrackProvider)
	if !ok {
		return errForeignTrack
	}
	sender, err := s.pc.AddTrack(provider.PionTrack())
	if err != nil {
		return fmt.Errorf("add track: %w", err)
	}
	s.mu.Lock()
	s.senders[t.Kind()] = sender
	s.mu.Unlock()

	// Drain RTCP so interceptors keep functioning.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// ReplaceTrack swaps the outgoing track of a kind in place; no
// renegotiation happens because the sender keeps its transceiver.
func (s *Session) ReplaceTrack(kind domain.TrackKind, t port.LocalTrack) error {
	provider, ok := t.(TrackProvider)
	if !ok {
		return errForeignTrack
	}
	s.mu.Lock()
	sender, ok := s.senders[kind]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no outgoing %s track to replace", kind)
	}
	return sender.ReplaceTrack(provider.PionTrack())
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pc.Close()
	})
	return err
}

func toPion(desc domain.SessionDescription) webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if desc.Type == domain.SDPAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}
}

func mapState(st webrtc.PeerConnectionState) domain.TransportState {
	switch st {
	case webrtc.PeerConnectionStateNew:
		return domain.TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	default:
		return domain.TransportClosed
	}
}

// remoteStream exposes one incoming track to the presentation layer.
type remoteStream struct {
	track *webrtc.TrackRemote
}

func (r *remoteStream) ID() string {
	return r.track.StreamID()
}

func (r *remoteStream) Kind() domain.TrackKind {
	if r.track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.TrackVideo
	}
	return domain.TrackAudio
}

// Track returns the underlying pion track for consumers that read media.
func (r *remoteStream) Track() *webrtc.TrackRemote {
	return r.track
}
