package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesEmittedEvent(t *testing.T) {
	b := New(nil)
	ch, unsubscribe := b.Subscribe(PlotTopic("p1"), 4)
	defer unsubscribe()

	b.Emit(PlotTopic("p1"), EventWeatherIndexUpdated, map[string]string{"plot_id": "p1"})

	select {
	case ev := <-ch:
		assert.Equal(t, EventWeatherIndexUpdated, ev.Type)
		assert.Equal(t, PlotTopic("p1"), ev.Topic)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEmitDoesNotCrossTopics(t *testing.T) {
	b := New(nil)
	ch, unsubscribe := b.Subscribe(PlotTopic("p1"), 4)
	defer unsubscribe()

	b.Emit(PlotTopic("p2"), EventWeatherIndexUpdated, nil)

	select {
	case <-ch:
		t.Fatal("received event meant for another topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	_, unsubscribe := b.Subscribe(AlertsTopic, 4)
	require.Equal(t, 1, b.SubscriberCount(AlertsTopic))

	unsubscribe()
	require.Equal(t, 0, b.SubscriberCount(AlertsTopic))
}

func TestSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New(nil)
	ch, unsubscribe := b.Subscribe(AlertsTopic, 1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Emit(AlertsTopic, EventAnomalyDetected, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on slow subscriber")
	}
	<-ch
}
