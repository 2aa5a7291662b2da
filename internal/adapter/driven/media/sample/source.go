// Package sample provides a media source fed by sample generators
// instead of physical capture devices. Headless peers use it to put real
// RTP flow on a call without a camera or microphone attached.
package sample

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/kavelin/sona/internal/core/domain"
	"github.com/kavelin/sona/internal/core/port"
)

const frameInterval = 20 * time.Millisecond

// Generator returns the next media sample to write. Called once per
// frame interval while the track is enabled.
type Generator func() media.Sample

// Camera is one virtual camera: an ID the controller can switch to and
// the generator feeding it.
type Camera struct {
	ID    string
	Label string
	Gen   Generator
}

// Source implements port.MediaSource over generator-fed pion tracks.
type Source struct {
	audioGen Generator
	cameras  []Camera
}

// Option configures a Source.
type Option func(*Source)

func WithAudio(gen Generator) Option {
	return func(s *Source) { s.audioGen = gen }
}

func WithCameras(cams ...Camera) Option {
	return func(s *Source) { s.cameras = cams }
}

func NewSource(opts ...Option) *Source {
	s := &Source{
		audioGen: Silence,
		cameras:  []Camera{{ID: "default", Label: "synthetic", Gen: Blank}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Silence generates 20ms of zeroed audio payload.
func Silence() media.Sample {
	return media.Sample{Data: make([]byte, 160), Duration: frameInterval}
}

// Blank generates an empty video payload; valid RTP flow, no decodable
// picture.
func Blank() media.Sample {
	return media.Sample{Data: []byte{0}, Duration: frameInterval}
}

func (s *Source) Acquire(_ context.Context, profile domain.MediaProfile) (port.MediaStream, error) {
	st := &stream{}

	audio, err := newTrack(domain.TrackAudio, webrtc.MimeTypeOpus, s.audioGen)
	if err != nil {
		return nil, err
	}
	st.audio = audio

	if profile.Video {
		cam, err := s.camera(profile.CameraID)
		if err != nil {
			audio.Stop()
			return nil, err
		}
		video, err := newTrack(domain.TrackVideo, webrtc.MimeTypeVP8, cam.Gen)
		if err != nil {
			audio.Stop()
			return nil, err
		}
		st.video = video
	}
	return st, nil
}

func (s *Source) AcquireVideo(_ context.Context, cameraID string) (port.LocalTrack, error) {
	cam, err := s.camera(cameraID)
	if err != nil {
		return nil, err
	}
	return newTrack(domain.TrackVideo, webrtc.MimeTypeVP8, cam.Gen)
}

func (s *Source) Cameras(_ context.Context) ([]port.CameraInfo, error) {
	infos := make([]port.CameraInfo, 0, len(s.cameras))
	for _, cam := range s.cameras {
		infos = append(infos, port.CameraInfo{ID: cam.ID, Label: cam.Label})
	}
	return infos, nil
}

func (s *Source) camera(id string) (Camera, error) {
	if id == "" && len(s.cameras) > 0 {
		return s.cameras[0], nil
	}
	for _, cam := range s.cameras {
		if cam.ID == id {
			return cam, nil
		}
	}
	return Camera{}, fmt.Errorf("unknown camera %q", id)
}

// stream is one acquired capture stream.
type stream struct {
	audio     *track
	video     *track
	closeOnce sync.Once
}

func (s *stream) AudioTrack() port.LocalTrack {
	return s.audio
}

func (s *stream) VideoTrack() port.LocalTrack {
	if s.video == nil {
		return nil
	}
	return s.video
}

func (s *stream) Close() {
	s.closeOnce.Do(func() {
		s.audio.Stop()
		if s.video != nil {
			s.video.Stop()
		}
	})
}

// track pumps generator samples into a pion local track. Disabling the
// track pauses the pump without tearing the sender down.
type track struct {
	kind    domain.TrackKind
	local   *webrtc.TrackLocalStaticSample
	gen     Generator
	enabled atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

func newTrack(kind domain.TrackKind, mimeType string, gen Generator) (*track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		string(kind), "sona",
	)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	t := &track{
		kind:  kind,
		local: local,
		gen:   gen,
		stop:  make(chan struct{}),
	}
	t.enabled.Store(true)
	go t.pump()
	return t, nil
}

func (t *track) pump() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			// ErrClosedPipe just means no sender is attached yet.
			_ = t.local.WriteSample(t.gen())
		}
	}
}

func (t *track) Kind() domain.TrackKind { return t.kind }

func (t *track) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

func (t *track) Enabled() bool { return t.enabled.Load() }

func (t *track) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// PionTrack satisfies the pion transport's TrackProvider.
func (t *track) PionTrack() webrtc.TrackLocal {
	return t.local
}
