package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []CallStatus{StatusEnded, StatusRejected, StatusMissed, StatusBusy, StatusFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	for _, s := range []CallStatus{StatusIdle, StatusRinging, StatusConnecting, StatusConnected} {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestSessionDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := &CallSession{StartTime: start, EndTime: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, s.Duration())

	// Never connected: no duration regardless of end time.
	s = &CallSession{EndTime: start}
	assert.Zero(t, s.Duration())

	s = &CallSession{}
	assert.Zero(t, s.Duration())
}

func TestSessionPeer(t *testing.T) {
	alice := Participant{ID: "alice"}
	bob := Participant{ID: "bob"}

	out := &CallSession{Direction: DirectionOutgoing, Caller: alice, Callee: bob}
	assert.Equal(t, bob, out.Peer())

	in := &CallSession{Direction: DirectionIncoming, Caller: alice, Callee: bob}
	assert.Equal(t, alice, in.Peer())
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, MediaProfile{Audio: true, Video: false}, ProfileFor(CallTypeVoice))
	assert.Equal(t, MediaProfile{Audio: true, Video: true}, ProfileFor(CallTypeVideo))
}
