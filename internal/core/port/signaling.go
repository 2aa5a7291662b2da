package port

import (
	"context"

	"github.com/kavelin/sona/internal/core/domain"
)

// SignalingChannel ferries signal envelopes between participants.
// Delivery is at-least-once and only ordered per sender, so consumers
// must tolerate duplicates and cross-sender reordering.
type SignalingChannel interface {
	// Send publishes a signal addressed to sig.ReceiverID.
	Send(ctx context.Context, sig domain.Signal) error
	// Subscribe registers fn for every signal addressed to id. The
	// returned function removes the subscription; it is safe to call
	// more than once.
	Subscribe(id domain.UserID, fn func(domain.Signal)) (func(), error)
}
