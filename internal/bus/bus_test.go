package bus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSync(t *testing.T) {
	b := NewEventBus()

	var reloaded, connected atomic.Int32
	b.Subscribe(EventAssetsReloaded, func(e Event) {
		assert.Equal(t, "rig.model3.json", e.Data["settings"])
		reloaded.Add(1)
	})
	b.Subscribe(EventAssetsReloaded, func(Event) { reloaded.Add(1) })
	b.SubscribeMultiple([]EventType{EventRigConnected, EventRigDisconnected}, func(Event) {
		connected.Add(1)
	})

	b.PublishSync(Event{Type: EventAssetsReloaded, Data: map[string]any{"settings": "rig.model3.json"}})
	b.PublishSync(Event{Type: EventRigConnected})
	b.PublishSync(Event{Type: EventRigDisconnected})
	b.PublishSync(Event{Type: EventConfigChanged})

	assert.Equal(t, int32(2), reloaded.Load())
	assert.Equal(t, int32(2), connected.Load())
}

func TestPublish(t *testing.T) {
	b := NewEventBus()
	done := make(chan Event, 1)
	b.Subscribe(EventMotionRequested, func(e Event) { done <- e })

	b.Publish(Event{Type: EventMotionRequested, Data: map[string]any{"name": "Tap_0"}})

	select {
	case e := <-done:
		assert.Equal(t, "Tap_0", e.Data["name"])
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestPublishSync_Panic(t *testing.T) {
	b := NewEventBus()
	var ran atomic.Bool
	b.Subscribe(EventAssetsFailed, func(Event) { panic("boom") })
	b.Subscribe(EventAssetsFailed, func(Event) { ran.Store(true) })

	assert.Panics(t, func() { b.PublishSync(Event{Type: EventAssetsFailed}) })
	assert.True(t, ran.Load())
}

func TestClear(t *testing.T) {
	b := NewEventBus()
	var calls atomic.Int32
	b.Subscribe(EventConfigChanged, func(Event) { calls.Add(1) })
	b.Clear()

	b.PublishSync(Event{Type: EventConfigChanged})
	assert.Zero(t, calls.Load())
}
