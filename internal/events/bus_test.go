package events

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeReceivesPublishedData(t *testing.T) {
	bus := NewBus()
	got := make(chan interface{}, 1)

	unsub := bus.Subscribe(TopicQuery, func(topic string, data interface{}) {
		assert.Equal(t, TopicQuery, topic)
		got <- data
	})
	defer unsub()

	bus.Publish(TopicQuery, "select")

	select {
	case data := <-got:
		assert.Equal(t, "select", data)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	var count atomic.Int32

	unsub := bus.Subscribe(TopicConnectionConnect, func(string, interface{}) { count.Add(1) })
	unsub()
	bus.Publish(TopicConnectionConnect, "primary")

	assert.Never(t, func() bool { return count.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSubscribeOnceFiresForFirstMatchOnly(t *testing.T) {
	bus := NewBus()
	var (
		count atomic.Int32
		last  atomic.Value
	)

	bus.SubscribeOnce(TopicConnectionDisconnect,
		func(data interface{}) bool { return data != "other" },
		func(data interface{}) {
			count.Add(1)
			last.Store(data)
		})

	bus.Publish(TopicConnectionDisconnect, "other")
	bus.Publish(TopicConnectionDisconnect, "primary")
	bus.Publish(TopicConnectionDisconnect, "again")

	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return count.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, "primary", last.Load())
}

func TestSubscribeOnceRelease(t *testing.T) {
	bus := NewBus()
	var count atomic.Int32

	release := bus.SubscribeOnce(TopicConnectionError,
		func(interface{}) bool { return true },
		func(interface{}) { count.Add(1) })
	release()
	release()

	bus.Publish(TopicConnectionError, "x")
	assert.Never(t, func() bool { return count.Load() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}
