package chronicle

import (
	"time"

	"github.com/google/uuid"
)

// Envelope event types for the unified index. Trace events use the
// "trace_" prefix followed by the inner trace event type.
const (
	EventTypeTaskPlan              = "task_plan"
	EventTypeCollaboratorJoin      = "collaborator_join"
	EventTypeParameterSubstitution = "parameter_substitution"
	TraceEventTypePrefix           = "trace_"
)

// RecordedEvent is the uniform envelope appended to a workflow's unified
// event index whenever a fact is committed. Wrapping every record category
// in the same envelope at write time is what makes heterogeneous replay a
// single sort instead of a multi-stream merge.
type RecordedEvent struct {
	EventType string    `json:"event_type"`
	TaskID    string    `json:"task_id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// NewTraceID returns a new unique trace ID.
func NewTraceID() string {
	return "trace-" + uuid.NewString()
}

// NewEventID returns a new unique trace event ID.
func NewEventID() string {
	return "event-" + uuid.NewString()
}

// traceEnvelopeType builds the namespaced envelope type for a trace event.
func traceEnvelopeType(t TraceEventType) string {
	return TraceEventTypePrefix + string(t)
}
