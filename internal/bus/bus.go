// Package bus is the in-process fan-out event bus feeding the websocket
// gateway (§4.6). Grounded on aristath-sentinel's events.Manager/Bus
// emit-and-log idiom, generalized from a single process-wide market-status
// channel into per-topic subscriber fan-out for plot and alert streams.
package bus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType names one kind of push notification (§4.6).
type EventType string

const (
	EventWeatherIndexUpdated     EventType = "weather_index_updated"
	EventBiomassSummaryUpdated   EventType = "biomass_summary_updated"
	EventSubscriptionStatusChanged EventType = "subscription_status_changed"
	EventEvidencePublished       EventType = "evidence_published"
	EventAnomalyDetected         EventType = "anomaly_detected"
)

// Event is one message fanned out to subscribers of a topic.
type Event struct {
	Type      EventType   `json:"type"`
	Topic     string      `json:"topic"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PlotTopic and AlertsTopic name the two §4.6 subscription surfaces.
func PlotTopic(plotID string) string { return "plot:" + plotID }

const AlertsTopic = "alerts"

type subscriber struct {
	id int
	ch chan Event
}

// Bus fans out Emit calls to every subscriber currently registered on a
// topic. Events for slow subscribers are dropped rather than blocking
// publishers: a send that would block is logged and discarded, and the
// subscriber stays registered (§4.6 "best-effort push,
// the command/query surface remains the source of truth").
type Bus struct {
	mu       sync.RWMutex
	subs     map[string]map[int]chan Event
	nextID   int
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Bus{subs: make(map[string]map[int]chan Event), logger: logger}
}

// Subscribe registers a buffered channel for topic and returns it along with
// an unsubscribe function the caller must invoke when done.
func (b *Bus) Subscribe(topic string, buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buffer <= 0 {
		buffer = 16
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	b.subs[topic][id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if topicSubs, ok := b.subs[topic]; ok {
			delete(topicSubs, id)
			if len(topicSubs) == 0 {
				delete(b.subs, topic)
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}

// Emit publishes an event to every subscriber of topic.
func (b *Bus) Emit(topic string, eventType EventType, data interface{}) {
	event := Event{Type: eventType, Topic: topic, Timestamp: time.Now().UTC(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[topic] {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("topic", topic), zap.String("event_type", string(eventType)))
		}
	}
}

// SubscriberCount reports how many subscribers are currently registered on
// topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
