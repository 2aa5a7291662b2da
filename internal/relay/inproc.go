package relay

import (
	"context"
	"sync"

	"github.com/kavelin/sona/internal/core/domain"
)

// InProc is an in-process signaling channel: controllers in the same
// process exchange envelopes directly, no server involved. Used by tests
// and single-process setups.
//
// Each subscription is drained by its own pump goroutine, so delivery
// keeps per-sender order while Send never runs the receiver's handler on
// the sender's stack.
type InProc struct {
	mu   sync.Mutex
	subs map[domain.UserID][]*inprocSub
}

type inprocSub struct {
	ch   chan domain.Signal
	done chan struct{}
	once sync.Once
}

func NewInProc() *InProc {
	return &InProc{subs: make(map[domain.UserID][]*inprocSub)}
}

func (p *InProc) Send(_ context.Context, sig domain.Signal) error {
	p.mu.Lock()
	subs := append([]*inprocSub(nil), p.subs[sig.ReceiverID]...)
	p.mu.Unlock()
	// Unknown receivers are a silent drop, matching a shared channel
	// where the peer may be offline.
	for _, s := range subs {
		select {
		case s.ch <- sig:
		case <-s.done:
		}
	}
	return nil
}

func (p *InProc) Subscribe(id domain.UserID, fn func(domain.Signal)) (func(), error) {
	sub := &inprocSub{
		ch:   make(chan domain.Signal, 64),
		done: make(chan struct{}),
	}
	p.mu.Lock()
	p.subs[id] = append(p.subs[id], sub)
	p.mu.Unlock()

	go func() {
		for {
			select {
			case sig := <-sub.ch:
				fn(sig)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		sub.once.Do(func() { close(sub.done) })
		p.mu.Lock()
		defer p.mu.Unlock()
		list := p.subs[id]
		for i, s := range list {
			if s == sub {
				p.subs[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}, nil
}
