package scanner

import (
	"context"
	"strings"
	"sync"
)

// Replay is an in-memory Scanner that plays back a fixed list of events.
type Replay struct {
	// KeepOpen leaves the event stream open after the last event until the
	// context is done instead of ending it.
	KeepOpen bool

	events []Event
	mu     sync.Mutex
	closed bool
}

func NewReplay(events ...Event) *Replay {
	return &Replay{events: events}
}

// Data returns the last recorded payload of addr.
func (r *Replay) Data(ctx context.Context, addr string) (string, error) {
	if r.isClosed() {
		return "", ErrClosed
	}
	for i := len(r.events) - 1; i >= 0; i-- {
		if strings.EqualFold(r.events[i].Addr, addr) {
			return r.events[i].Payload, nil
		}
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (r *Replay) Events(ctx context.Context) (<-chan Event, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, e := range r.events {
			select {
			case ch <- e:
			case <-ctx.Done():
				return
			}
		}
		if r.KeepOpen {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Replay) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
