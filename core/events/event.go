package events

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload is the canonical attribute bag emitted by the native engines.
type Payload struct {
	Type       string
	Attributes map[string]string
}

// EventType implements the Event interface.
func (p *Payload) EventType() string {
	if p == nil {
		return ""
	}
	return p.Type
}
