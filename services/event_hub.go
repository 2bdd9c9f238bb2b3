package services

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/drakejin/cday2025-minigame-sub000/logger"
)

type EventType string

const (
	EventRoundCreated       EventType = "round.created"
	EventRoundStarted       EventType = "round.started"
	EventRoundEnded         EventType = "round.ended"
	EventRoundExtended      EventType = "round.extended"
	EventRoundCancelled     EventType = "round.cancelled"
	EventTrialChanged       EventType = "trial.changed"
	EventLeaderboardChanged EventType = "leaderboard.changed"
)

// Event is a "something changed" signal. Receivers re-read state; events carry no payload beyond ids.
type Event struct {
	Type        EventType `json:"type"`
	RoundID     string    `json:"round_id,omitempty"`
	RoundNumber int       `json:"round_number,omitempty"`
	At          time.Time `json:"at"`
}

// Notifier publishes change signals. Publish must not block.
type Notifier interface {
	Publish(evt Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(Event) {}

// EventHub fans events out to in-process subscribers such as SSE streams.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	log    *logger.Logger
	clock  clockwork.Clock
}

// NewEventHub stamps events with clock. A nil clock means the real one.
func NewEventHub(log *logger.Logger, clock clockwork.Clock) *EventHub {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EventHub{subs: make(map[int]chan Event), log: log, clock: clock}
}

// Publish delivers evt to every subscriber with room in its buffer. Slow subscribers miss events.
func (h *EventHub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = h.clock.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Debug("dropping event for slow subscriber", "subscriber", id, "type", evt.Type)
		}
	}
}

// Subscribe registers a listener. The returned func unsubscribes and closes the channel.
func (h *EventHub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
