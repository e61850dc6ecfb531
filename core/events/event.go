package events

// Event is a structured record of a state transition in one of the escrow
// engines. Attributes hold hex-encoded identifiers and decimal amounts so
// downstream consumers (RPC, indexers) never need to re-decode stored state.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for engines whose caller has not wired an event sink.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}
