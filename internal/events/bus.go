// Package events carries connection lifecycle and query instrumentation
// events between the database core and its observers.
package events

import (
	"sync"

	"github.com/juju/pubsub/v2"
)

const (
	TopicConnectionConnect    = "db:connection:connect"
	TopicConnectionDisconnect = "db:connection:disconnect"
	TopicConnectionError      = "db:connection:error"
	TopicQuery                = "db:query"
)

// Bus is the shared publish/subscribe channel. Handlers run on hub
// goroutines, never on the publisher's.
type Bus struct {
	hub *pubsub.SimpleHub
}

func NewBus() *Bus {
	return &Bus{hub: pubsub.NewSimpleHub(nil)}
}

func (b *Bus) Publish(topic string, data interface{}) {
	_ = b.hub.Publish(topic, data)
}

// Subscribe registers handler for topic and returns the unsubscriber.
func (b *Bus) Subscribe(topic string, handler func(topic string, data interface{})) func() {
	return b.hub.Subscribe(topic, handler)
}

// SubscribeOnce delivers at most one event accepted by match. The
// subscription is dropped after the first accepted event.
func (b *Bus) SubscribeOnce(topic string, match func(data interface{}) bool, handler func(data interface{})) func() {
	var (
		once  sync.Once
		mu    sync.Mutex
		unsub func()
	)
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		if unsub != nil {
			unsub()
			unsub = nil
		}
	}

	mu.Lock()
	unsub = b.hub.Subscribe(topic, func(_ string, data interface{}) {
		if !match(data) {
			return
		}
		once.Do(func() {
			// unsubscribing from inside the hub callback can block on the
			// subscriber's own queue
			go release()
			handler(data)
		})
	})
	mu.Unlock()

	return release
}
