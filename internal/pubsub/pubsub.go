// Package pubsub broadcasts events to the subscribers of a topic.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const DefaultSendTimeout = 5 * time.Second

type Publisher[K comparable, E any] interface {
	Publish(topic K, evt E)
}

type Subscriber[K comparable, E any] interface {
	Subscribe(ctx context.Context, topic K) Subscription[E]
}

type Subscription[E any] interface {
	ResultChan() <-chan E
	Stop()
}

// PubSub delivers every event published on a topic to all subscriptions of
// that topic. A subscriber that does not accept an event within the send
// timeout is unsubscribed.
type PubSub[K comparable, E any] struct {
	mutex       sync.RWMutex
	topics      map[K]map[int64]*subscription[K, E]
	seq         int64
	stopped     bool
	sendTimeout time.Duration
}

func New[K comparable, E any]() *PubSub[K, E] {
	return &PubSub[K, E]{
		topics:      map[K]map[int64]*subscription[K, E]{},
		sendTimeout: DefaultSendTimeout,
	}
}

// Stop closes all subscriptions.
// Later subscriptions are closed immediately and events are dropped.
func (p *PubSub[K, E]) Stop() {
	p.mutex.Lock()
	p.stopped = true
	var subscriptions []*subscription[K, E]
	for _, subs := range p.topics {
		for _, s := range subs {
			subscriptions = append(subscriptions, s)
		}
	}
	p.mutex.Unlock()

	for _, s := range subscriptions {
		s.Stop()
	}
}

// Subscribe subscribes to a topic until the context is done or Stop is called.
func (p *PubSub[K, E]) Subscribe(ctx context.Context, topic K) Subscription[E] {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return noopSubscription[E]("noop-subscription")
	}

	p.seq++

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription[K, E]{
		id:     p.seq,
		topic:  topic,
		cancel: cancel,
		pubsub: p,
		ch:     make(chan E, 10),
	}

	subs, ok := p.topics[topic]
	if !ok {
		subs = map[int64]*subscription[K, E]{}
		p.topics[topic] = subs
	}
	subs[s.id] = s

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s
}

// Publish sends the event to all subscribers of the topic.
func (p *PubSub[K, E]) Publish(topic K, evt E) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.stopped {
		return
	}

	for _, s := range p.topics[topic] {
		select {
		case s.ch <- evt:
		case <-time.After(p.sendTimeout):
			slog.Warn(fmt.Sprintf("kicking subscriber %d of topic %v since it did not accept the event within %s", s.id, topic, p.sendTimeout))
			go s.Stop()
		}
	}
}

// SubscriberCount returns the number of subscriptions of a topic.
func (p *PubSub[K, E]) SubscriberCount(topic K) int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return len(p.topics[topic])
}

type subscription[K comparable, E any] struct {
	pubsub *PubSub[K, E]
	id     int64
	topic  K
	cancel context.CancelFunc
	ch     chan E
	closed bool
}

func (s *subscription[K, E]) Stop() {
	p := s.pubsub

	p.mutex.Lock()
	if s.closed {
		p.mutex.Unlock()
		return
	}
	s.closed = true
	if subs, ok := p.topics[s.topic]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(p.topics, s.topic)
		}
	}
	p.mutex.Unlock()

	s.cancel()
	close(s.ch)
}

func (s *subscription[K, E]) ResultChan() <-chan E {
	return s.ch
}

type noopSubscription[E any] string

func (noopSubscription[E]) Stop() {}

func (noopSubscription[E]) ResultChan() <-chan E {
	ch := make(chan E)
	close(ch)
	return ch
}
