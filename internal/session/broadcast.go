package session

import (
	"sync/atomic"

	"github.com/rocketscienceinc/tictactoe-session/internal/protocol"
)

// Broadcaster fans notifications out to every subscription. It is owned by the actor goroutine;
// only Subscription.C and Subscription.TakeLagged are used from other goroutines.
type Broadcaster struct {
	capacity int
	subs     map[*Subscription]struct{}
	closed   bool
}

// Subscription is one connection's view of the broadcast. When it falls more than its capacity
// behind, the oldest notifications are dropped and counted.
type Subscription struct {
	ch     chan protocol.Notification
	lagged atomic.Uint64
}

func NewBroadcaster(capacity int) *Broadcaster {
	if capacity < 1 {
		capacity = 1
	}

	return &Broadcaster{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Subscribe - returns a new subscription. Subscribing after Close returns an already closed one.
func (that *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan protocol.Notification, that.capacity)}

	if that.closed {
		close(sub.ch)
		return sub
	}

	that.subs[sub] = struct{}{}

	return sub
}

func (that *Broadcaster) Unsubscribe(sub *Subscription) {
	if _, ok := that.subs[sub]; !ok {
		return
	}

	delete(that.subs, sub)
	close(sub.ch)
}

// Publish - delivers n to every subscription without blocking. Returns the number of subscribers.
func (that *Broadcaster) Publish(n protocol.Notification) int {
	for sub := range that.subs {
		sub.offer(n)
	}

	return len(that.subs)
}

// Close - closes every subscription. Receivers treat this as the end of the session.
func (that *Broadcaster) Close() {
	if that.closed {
		return
	}

	that.closed = true
	for sub := range that.subs {
		close(sub.ch)
	}
	that.subs = nil
}

func (that *Broadcaster) Len() int {
	return len(that.subs)
}

// C - the receive side. It is closed when the broadcaster goes away.
func (that *Subscription) C() <-chan protocol.Notification {
	return that.ch
}

// TakeLagged - returns how many notifications were dropped since the last call and resets it.
func (that *Subscription) TakeLagged() uint64 {
	return that.lagged.Swap(0)
}

func (that *Subscription) offer(n protocol.Notification) {
	for {
		select {
		case that.ch <- n:
			return
		default:
		}

		// full: make room by dropping the oldest entry
		select {
		case <-that.ch:
			that.lagged.Add(1)
		default:
		}
	}
}
