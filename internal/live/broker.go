// Package live fans out change notifications so open pages see new invites and moderated
// photos without reloading.
package live

import (
	"context"
	"sync"
)

// Topic names a collection whose changes are broadcast.
type Topic string

const (
	TopicInvites     Topic = "invites"
	TopicSubmissions Topic = "submissions"
)

// Broker delivers "something changed" signals per topic. Signals carry no payload; subscribers
// reload the collection. Bursts may be coalesced into one signal.
type Broker interface {
	Publish(ctx context.Context, topic Topic) error
	// Subscribe returns a signal channel and a cancel func. The channel is closed after cancel
	// or when ctx ends.
	Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, func(), error)
	Close() error
}

// LocalBroker is an in-process Broker for single-instance deployments.
type LocalBroker struct {
	mu     sync.Mutex
	subs   map[Topic]map[*subscription]struct{}
	closed bool
}

type subscription struct {
	ch   chan struct{}
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

var _ Broker = (*LocalBroker)(nil)

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[Topic]map[*subscription]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, topic Topic) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[topic] {
		notify(sub.ch)
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, topic Topic) (<-chan struct{}, func(), error) {
	sub := &subscription{ch: make(chan struct{}, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}, nil
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var stopOnce sync.Once
	cancel := func() {
		stopOnce.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[topic], sub)
			b.mu.Unlock()
			sub.close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return sub.ch, cancel, nil
}

// Close ends every subscription.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for topic, subs := range b.subs {
		for sub := range subs {
			sub.close()
		}
		delete(b.subs, topic)
	}
	return nil
}

// notify performs a non-blocking send; a pending signal already covers this change.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
