package port

import (
	"context"

	"github.com/kavelin/sona/internal/core/domain"
)

// LocalTrack is one captured track handed to the transport. Enable state
// gates the media flow without renegotiation.
type LocalTrack interface {
	Kind() domain.TrackKind
	SetEnabled(enabled bool)
	Enabled() bool
	// Stop releases the underlying capture. Idempotent.
	Stop()
}

// MediaStream is a local capture stream. VideoTrack is nil for
// voice-only profiles.
type MediaStream interface {
	AudioTrack() LocalTrack
	VideoTrack() LocalTrack
	// Close stops every track of the stream. Idempotent.
	Close()
}

type CameraInfo struct {
	ID    string
	Label string
}

// MediaSource acquires and releases local capture streams.
type MediaSource interface {
	Acquire(ctx context.Context, profile domain.MediaProfile) (MediaStream, error)
	// AcquireVideo captures a lone video track from the given camera,
	// used for in-call camera switching.
	AcquireVideo(ctx context.Context, cameraID string) (LocalTrack, error)
	Cameras(ctx context.Context) ([]CameraInfo, error)
}
