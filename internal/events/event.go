// Package events defines the observable events of the stake manager engine and the emitters
// that deliver them.
package events

import (
	"sync"

	"ad3staker/internal/model"
)

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers (journals, streams, tests).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Envelope stamps an event with its engine sequence number and block timestamp.
type Envelope struct {
	Sequence  uint64
	Timestamp uint64
	Event     Event
}

// EventType satisfies the Event interface.
func (e Envelope) EventType() string { return e.Event.EventType() }

// Attributes satisfies the Event interface.
func (e Envelope) Attributes() map[string]string { return e.Event.Attributes() }

// Unwrap returns the payload of an Envelope, or the event itself.
func Unwrap(e Event) Event {
	if env, ok := e.(Envelope); ok {
		return env.Event
	}
	return e
}

// ToRecord flattens an event for journals and tables.
func ToRecord(e Event) model.StakingEvent {
	record := model.StakingEvent{
		Type:       e.EventType(),
		Attributes: e.Attributes(),
	}
	if env, ok := e.(Envelope); ok {
		record.Sequence = env.Sequence
		record.Timestamp = env.Timestamp
	}
	return record
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Payloads returns recorded events with envelopes removed.
func (r *Recorder) Payloads() []Event {
	recorded := r.Events()
	out := make([]Event, 0, len(recorded))
	for _, e := range recorded {
		out = append(out, Unwrap(e))
	}
	return out
}

// Records returns recorded events in their flattened form.
func (r *Recorder) Records() []model.StakingEvent {
	recorded := r.Events()
	out := make([]model.StakingEvent, 0, len(recorded))
	for _, e := range recorded {
		out = append(out, ToRecord(e))
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Fanout delivers every event to each emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(e Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}
