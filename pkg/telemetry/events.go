package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one structured record of device-operation progress. Events are
// advisory: losing one never fails an operation.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type, e.g. EventTypeOperationStarted.
	Type string `json:"type"`

	// Device is the device name the event belongs to.
	Device string `json:"device"`

	// Operation is the public operation in progress (power_on,
	// update_firmware, wait_for_boot, ...).
	Operation string `json:"operation"`

	// RunID ties the event to an audit-store run, if one is open.
	RunID string `json:"run_id,omitempty"`

	// Level is the event severity (info, warning, error).
	Level string `json:"level"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Data carries event-specific detail.
	Data map[string]any `json:"data,omitempty"`
}

// Event types emitted by the orchestration core.
const (
	EventTypeOperationStarted  = "operation.started"
	EventTypeOperationFinished = "operation.finished"
	EventTypeActionIssued      = "action.issued"
	EventTypeGateVeto          = "gate.veto"
	EventTypeBenignFailure     = "exec.benign_failure"
	EventTypeMonitorTimeout    = "task.monitor_timeout"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles published events.
type EventSubscriber func(event Event)

// EventPublisher fans events out to subscribers from a buffered queue so
// the single operation thread of a device controller never blocks on a
// slow subscriber. A nil *EventPublisher is valid and publishes nothing.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []EventSubscriber
	mu          sync.RWMutex
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// NewEventPublisher creates an event publisher. Disabled configuration
// yields a nil publisher.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	if !cfg.Enabled {
		return nil
	}

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
	}
	ep.wg.Add(1)
	go ep.dispatch()
	return ep
}

// Subscribe registers a subscriber for all subsequent events.
func (ep *EventPublisher) Subscribe(sub EventSubscriber) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.subscribers = append(ep.subscribers, sub)
}

// Publish enqueues an event, stamping ID and timestamp when unset.
func (ep *EventPublisher) Publish(event Event) {
	if ep == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.DropWhenFull {
		select {
		case ep.buffer <- event:
		default:
			log.Warn().Str("type", event.Type).Msg("event buffer full, dropping event")
		}
		return
	}
	ep.buffer <- event
}

// dispatch delivers buffered events to every subscriber in order.
func (ep *EventPublisher) dispatch() {
	defer ep.wg.Done()

	for event := range ep.buffer {
		ep.mu.RLock()
		subs := make([]EventSubscriber, len(ep.subscribers))
		copy(subs, ep.subscribers)
		ep.mu.RUnlock()

		for _, sub := range subs {
			sub(event)
		}
	}
}

// Close drains the buffer and stops the dispatcher. Safe to call more
// than once.
func (ep *EventPublisher) Close() {
	if ep == nil {
		return
	}
	ep.closeOnce.Do(func() {
		close(ep.buffer)

		done := make(chan struct{})
		go func() {
			ep.wg.Wait()
			close(done)
		}()

		timeout := ep.config.FlushTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		select {
		case <-done:
		case <-time.After(timeout):
			log.Warn().Msg("event publisher close timed out before drain completed")
		}
	})
}
