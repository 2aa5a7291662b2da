package domain

import (
	"github.com/google/uuid"
)

type UserID string

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

// CallID correlates every signal belonging to one call and keys the
// candidate buffer. Generated by the initiating side, stable for the
// call's lifetime.
type CallID string

func NewCallID() CallID {
	return CallID(uuid.New().String())
}

func (id CallID) String() string {
	return string(id)
}
