// Package eventbus distributes lifecycle events to signaling observers.
package eventbus

import (
	"context"

	"github.com/camroute/camroute/internal/defs"
)

const subscriberQueueSize = 64

// Subscription is a registered observer.
// Events arrive on C in publish order; slow observers that let
// their queue fill up are closed and must resubscribe.
type Subscription struct {
	C chan defs.Event

	bus *Bus
}

// Close unsubscribes the observer.
func (s *Subscription) Close() {
	select {
	case s.bus.chUnsubscribe <- s:
	case <-s.bus.ctx.Done():
	}
}

// Bus is the lifecycle event broker.
// A single dispatch goroutine fans every published event out to all
// subscribers, so observers see events in the order they were published.
type Bus struct {
	ctx       context.Context
	ctxCancel func()
	done      chan struct{}

	chSubscribe   chan *Subscription
	chUnsubscribe chan *Subscription
	chPublish     chan defs.Event
}

// Initialize initializes the bus.
func (b *Bus) Initialize() {
	b.ctx, b.ctxCancel = context.WithCancel(context.Background())
	b.done = make(chan struct{})
	b.chSubscribe = make(chan *Subscription)
	b.chUnsubscribe = make(chan *Subscription)
	b.chPublish = make(chan defs.Event)

	go b.run()
}

// Close closes the bus and all subscriptions.
func (b *Bus) Close() {
	b.ctxCancel()
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)

	subscribers := make(map[*Subscription]struct{})

	for {
		select {
		case sub := <-b.chSubscribe:
			subscribers[sub] = struct{}{}

		case sub := <-b.chUnsubscribe:
			if _, ok := subscribers[sub]; ok {
				delete(subscribers, sub)
				close(sub.C)
			}

		case evt := <-b.chPublish:
			for sub := range subscribers {
				select {
				case sub.C <- evt:
				default:
					delete(subscribers, sub)
					close(sub.C)
				}
			}

		case <-b.ctx.Done():
			for sub := range subscribers {
				close(sub.C)
			}
			return
		}
	}
}

// Subscribe registers an observer.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		C:   make(chan defs.Event, subscriberQueueSize),
		bus: b,
	}

	select {
	case b.chSubscribe <- sub:
	case <-b.ctx.Done():
		close(sub.C)
	}

	return sub
}

// Publish broadcasts an event to all subscribers.
func (b *Bus) Publish(evt defs.Event) {
	select {
	case b.chPublish <- evt:
	case <-b.ctx.Done():
	}
}
