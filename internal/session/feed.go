package session

import (
	"bytes"
	"context"
	"sync"

	"eta/internal/constants"
)

// broker fans mutations out to local subscriptions.
type broker struct {
	mu     sync.Mutex
	subs   []*subscription
	closed bool
}

func newBroker() *broker {
	return &broker{}
}

// subscribe registers a subscription seeded with the records returned by
// snapshot. snapshot runs under the broker lock so no mutation published
// concurrently can fall between the seed and the live events. Changes that
// were committed before the snapshot but published after it are dropped.
func (b *broker) subscribe(ctx context.Context, q Query, mask ObservedEvents, snapshot func() ([]Session, error)) (*subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrStoreClosed
	}

	current, err := snapshot()
	if err != nil {
		return nil, err
	}

	var seed []Event
	seeded := make(map[string]Session, len(current))
	for _, s := range current {
		seeded[s.Identifier] = s
		if q.Matches(s) {
			seed = append(seed, initialEvents(q, mask, s)...)
		}
	}

	sub := &subscription{
		query:  q,
		mask:   mask,
		seeded: seeded,
		ch:     make(chan Event, constants.FeedBufferSize+len(seed)),
		done:   make(chan struct{}),
	}
	for _, ev := range seed {
		sub.ch <- ev
	}
	b.subs = append(b.subs, sub)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// publish delivers one mutation to every live subscription and prunes finished ones.
func (b *broker) publish(before, after *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := b.subs[:0]
	for _, sub := range b.subs {
		if !sub.stale(before, after) {
			for _, ev := range eventsFor(sub.query, sub.mask, before, after) {
				sub.deliver(ev)
			}
		}
		if !sub.finished() {
			live = append(live, sub)
		}
	}
	for i := len(live); i < len(b.subs); i++ {
		b.subs[i] = nil
	}
	b.subs = live
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, sub := range b.subs {
		sub.terminate(ErrStoreClosed)
	}
	b.subs = nil
}

func (b *broker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type subscription struct {
	query Query
	mask  ObservedEvents
	ch    chan Event
	done  chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
	// seeded holds the snapshot records that no live change has superseded yet.
	seeded map[string]Session
}

func (s *subscription) Events() <-chan Event {
	return s.ch
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.terminate(nil)
	return nil
}

// stale reports whether a change is already reflected in the snapshot the
// subscription was seeded with. Changes to one record arrive in commit order,
// so the first change that is not stale ends the check for that record.
func (s *subscription) stale(before, after *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if after == nil {
		if before != nil {
			delete(s.seeded, before.Identifier)
		}
		return false
	}
	seed, ok := s.seeded[after.Identifier]
	if !ok {
		return false
	}
	if after.LastUpdated.Before(seed.LastUpdated) || sameRecord(seed, *after) {
		return true
	}
	delete(s.seeded, after.Identifier)
	return false
}

func sameRecord(a, b Session) bool {
	ra, errA := EncodeRecord(a)
	rb, errB := EncodeRecord(b)
	return errA == nil && errB == nil && bytes.Equal(ra, rb)
}

func (s *subscription) deliver(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	select {
	case s.ch <- ev:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		s.terminate(ErrFeedOverflow)
	}
}

func (s *subscription) terminate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.done)
}

func (s *subscription) finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
