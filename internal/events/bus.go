// Package events carries the in-process notifications that tie the trading
// core together: order lifecycle, price ticks, closed candles, and bot
// triggers. The websocket hub and the candle aggregator are the main
// listeners.
package events

import (
	"sync"
)

// Bus is a topic-keyed fan-out over buffered channels. It never blocks a
// publisher; a listener that cannot keep up loses messages instead.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Event][]chan any
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[Event][]chan any)}
}

// Subscribe returns a receive channel for e plus a cancel function. Cancel
// closes the channel, so ranging listeners terminate on unsubscribe.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan any, buffer)
	b.listeners[e] = append(b.listeners[e], ch)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		ls := b.listeners[e]
		for i, c := range ls {
			if c == ch {
				close(c)
				b.listeners[e] = append(ls[:i], ls[i+1:]...)
				break
			}
		}
	}

	return ch, cancel
}

// Publish delivers payload to every current listener of e. Delivery is
// best-effort: a full buffer means that listener misses this message.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.listeners[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
