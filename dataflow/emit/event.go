package emit

// Event represents an observability event emitted during forward execution.
//
// Events provide detailed insight into forward behavior:
//   - Node activation start/complete
//   - Scope entry and exit
//   - Errors and warnings
//   - Performance metrics
//
// Events are emitted to an Emitter which can:
//   - Log to stdout/stderr
//   - Send to OpenTelemetry
//   - Store in time-series databases
//   - Trigger alerts
type Event struct {
	// RunID identifies the forward execution that emitted this event.
	RunID string

	// Step is a sequential step number within the forward. The Scheduler
	// does not set it, so the events it emits carry Step zero.
	Step int

	// NodeID identifies which node emitted this event.
	// Empty string for forward-level events.
	NodeID string

	// Msg is a human-readable description of the event.
	Msg string

	// Meta contains additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": Execution duration in milliseconds
	//   - "error": Error details
	//   - "scope_id": Scope the emitting order ran in
	//   - "uid": Handle the order is bound to
	Meta map[string]interface{}
}
