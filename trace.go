package chronicle

import "time"

// TraceEventType represents the type of a trace event.
type TraceEventType string

const (
	TraceStepStart         TraceEventType = "step-start"
	TraceStepEnd           TraceEventType = "step-end"
	TraceDecision          TraceEventType = "decision"
	TraceError             TraceEventType = "error"
	TraceCheckpoint        TraceEventType = "checkpoint"
	TraceParameterChange   TraceEventType = "parameter-change"
	TraceCollaboratorJoin  TraceEventType = "collaborator-join"
	TraceCollaboratorLeave TraceEventType = "collaborator-leave"
	TraceRollback          TraceEventType = "rollback"
)

var knownTraceEventTypes = map[TraceEventType]bool{
	TraceStepStart:         true,
	TraceStepEnd:           true,
	TraceDecision:          true,
	TraceError:             true,
	TraceCheckpoint:        true,
	TraceParameterChange:   true,
	TraceCollaboratorJoin:  true,
	TraceCollaboratorLeave: true,
	TraceRollback:          true,
}

// Outcome is the final result of a task execution.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// TraceEvent is a single event in an execution trace. Events are
// immutable once appended.
type TraceEvent struct {
	EventID    string         `json:"eventID"`
	Timestamp  time.Time      `json:"timestamp"`
	EventType  TraceEventType `json:"eventType"`
	AgentID    string         `json:"agentID,omitempty"`
	StepID     string         `json:"stepID,omitempty"`
	InputHash  string         `json:"inputHash,omitempty"`
	OutputHash string         `json:"outputHash,omitempty"`
	DurationMS int64          `json:"durationMS,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate checks required trace event fields.
func (e *TraceEvent) Validate() error {
	if e.EventID == "" {
		return validationErrorf("trace event ID is required")
	}
	if e.EventType == "" {
		return validationErrorf("trace event %q has no event type", e.EventID)
	}
	if !knownTraceEventTypes[e.EventType] {
		return validationErrorf("trace event %q has unknown event type %q", e.EventID, e.EventType)
	}
	return nil
}

// ExecutionTrace is the ordered, append-only sequence of events describing
// what actually happened during a task's execution. Existing events are
// never reordered or removed, only appended to.
type ExecutionTrace struct {
	TraceID      string        `json:"traceID"`
	TaskID       string        `json:"taskID"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      *time.Time    `json:"endTime,omitempty"`
	Events       []*TraceEvent `json:"events"`
	FinalOutcome Outcome       `json:"finalOutcome,omitempty"`
	// ErrorChain holds human-readable causal strings supplied by the
	// workflow engine when multiple failures cascade. The recorder stores
	// and replays the diagnosis; it never infers it.
	ErrorChain []string `json:"errorChain,omitempty"`
}

// Validate checks the trace's internal consistency, including uniqueness
// of event IDs.
func (t *ExecutionTrace) Validate() error {
	if t.TraceID == "" {
		return validationErrorf("trace ID is required")
	}
	if t.TaskID == "" {
		return validationErrorf("trace %q has no task ID", t.TraceID)
	}
	seen := make(map[string]bool, len(t.Events))
	for i, event := range t.Events {
		if event == nil {
			return validationErrorf("trace %q: event %d is nil", t.TraceID, i)
		}
		if err := event.Validate(); err != nil {
			return err
		}
		if seen[event.EventID] {
			return validationErrorf("trace %q: duplicate event ID %q", t.TraceID, event.EventID)
		}
		seen[event.EventID] = true
	}
	return nil
}
