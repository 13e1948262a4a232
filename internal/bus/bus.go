// Package bus provides the in-process event fan-out for task lifecycle
// events. Persistence of events is the store's job; the bus only handles
// live delivery to subscribers (agent loops, metrics, the WebSocket hub).
package bus

import (
	"log/slog"
	"sync"

	"github.com/dotcommander/taskbrew/internal/models"
)

// DefaultHistorySize is how many events the replay buffer retains.
const DefaultHistorySize = 5000

// handlerQueueSize bounds each subscriber's delivery queue. A subscriber
// that falls this far behind blocks only its own queue feeder, never the
// emitter or other subscribers.
const handlerQueueSize = 256

// Handler receives events. Handlers for one subscription run sequentially
// in emission order; distinct subscriptions run independently.
type Handler func(ev *models.Event)

// Subscription identifies one registered handler for Unsubscribe.
type Subscription struct {
	id        int64
	eventType string
}

type subscriber struct {
	id     int64
	ch     chan *models.Event
	done   chan struct{}
	closed bool
}

// Bus is an in-memory publish/subscribe event bus with a bounded replay
// history. Emit never blocks on subscribers.
type Bus struct {
	mu          sync.Mutex
	subs        map[string][]*subscriber // event type ("*" for all) -> subscribers
	nextID      int64
	history     []*models.Event
	historySize int
	logger      *slog.Logger
}

// New creates a bus with the default history size.
func New(logger *slog.Logger) *Bus {
	return NewWithHistory(logger, DefaultHistorySize)
}

// NewWithHistory creates a bus retaining up to historySize events.
func NewWithHistory(logger *slog.Logger, historySize int) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Bus{
		subs:        make(map[string][]*subscriber),
		history:     make([]*models.Event, 0, historySize),
		historySize: historySize,
		logger:      logger,
	}
}

// Subscribe registers handler for events of eventType ("*" matches every
// type). Delivery for one subscription is FIFO; a panicking handler is
// recovered and logged without tearing down the subscription.
func (b *Bus) Subscribe(eventType string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{
		id:   b.nextID,
		ch:   make(chan *models.Event, handlerQueueSize),
		done: make(chan struct{}),
	}
	b.subs[eventType] = append(b.subs[eventType], sub)

	go b.deliver(sub, handler)

	return Subscription{id: sub.id, eventType: eventType}
}

func (b *Bus) deliver(sub *subscriber, handler Handler) {
	for ev := range sub.ch {
		b.invoke(handler, ev)
	}
	close(sub.done)
}

func (b *Bus) invoke(handler Handler, ev *models.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", ev.Type,
				"task_id", ev.TaskID,
				"panic", r)
		}
	}()
	handler(ev)
}

// Unsubscribe removes a subscription and waits for its queued deliveries to
// drain.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	var removed *subscriber
	list := b.subs[s.eventType]
	for i, sub := range list {
		if sub.id == s.id {
			removed = sub
			b.subs[s.eventType] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if removed != nil && !removed.closed {
		removed.closed = true
		close(removed.ch)
	}
	b.mu.Unlock()

	if removed != nil {
		<-removed.done
	}
}

// Emit records ev in the history and queues it to every matching
// subscriber. A subscriber whose queue is full has the event dropped, with
// a warning; everyone else still receives it.
func (b *Bus) Emit(ev *models.Event) {
	if ev == nil || ev.Type == "" {
		return
	}

	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}

	targets := make([]*subscriber, 0, len(b.subs[ev.Type])+len(b.subs["*"]))
	targets = append(targets, b.subs[ev.Type]...)
	targets = append(targets, b.subs["*"]...)
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				"event_type", ev.Type,
				"task_id", ev.TaskID)
		}
	}
}

// History returns up to limit of the most recent events, oldest first.
// limit <= 0 returns the full buffer.
func (b *Bus) History(limit int) []*models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// HistoryByType returns up to limit recent events of one type, oldest first.
func (b *Bus) HistoryByType(eventType string, limit int) []*models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*models.Event
	for _, ev := range b.history {
		if eventType == "*" || ev.Type == eventType {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Close shuts down every subscription and waits for queues to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	var all []*subscriber
	for typ, list := range b.subs {
		for _, sub := range list {
			if !sub.closed {
				sub.closed = true
				close(sub.ch)
			}
			all = append(all, sub)
		}
		delete(b.subs, typ)
	}
	b.mu.Unlock()

	for _, sub := range all {
		<-sub.done
	}
}
