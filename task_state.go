package chronicle

import (
	"sync"
	"time"
)

// taskState holds one task's facts in memory and enforces invariants
// before they reach persistence. The mutex linearizes the full
// check-persist-commit sequence for the task; the Recorder holds it for
// the duration of each commit so two concurrent commits to the same task
// cannot interleave. Tasks are independent: contention is scoped to the
// task, not the workflow.
//
// Mutations are staged: the next* methods validate and return the value
// that will be persisted without touching the receiver, and the Recorder
// commits it only after the write succeeded. A failed write therefore
// leaves no partial state.
type taskState struct {
	mu            sync.Mutex
	taskID        string
	plan          *TaskPlan
	collaborators []AgentInfo
	substitutions []ParameterSubstitution
	trace         *ExecutionTrace
	traceEventIDs map[string]bool

	// loadErr records a CorruptedRecordError from disk reconciliation.
	// While set, record operations refuse to mutate: overwriting a
	// category that could not be read would lose data. Replay proceeds
	// with whatever loaded and surfaces the error alongside.
	loadErr error
}

func newTaskState(taskID string) *taskState {
	return &taskState{
		taskID:        taskID,
		traceEventIDs: make(map[string]bool),
	}
}

// nextCollaborators returns the collaborator list as it will look with
// agents appended. No deduplication: the same agent may legitimately
// rejoin with a later JoinedAt.
func (t *taskState) nextCollaborators(agents []AgentInfo) []AgentInfo {
	next := make([]AgentInfo, 0, len(t.collaborators)+len(agents))
	next = append(next, t.collaborators...)
	return append(next, agents...)
}

// nextSubstitutions returns the substitution list with sub appended.
func (t *taskState) nextSubstitutions(sub ParameterSubstitution) []ParameterSubstitution {
	next := make([]ParameterSubstitution, 0, len(t.substitutions)+1)
	next = append(next, t.substitutions...)
	return append(next, sub)
}

// nextTraceWith returns the trace as it will look with event appended,
// creating the trace lazily on first use. Duplicate event IDs are
// rejected before anything is staged.
func (t *taskState) nextTraceWith(event *TraceEvent) (*ExecutionTrace, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if t.traceEventIDs[event.EventID] {
		return nil, validationErrorf("trace event ID %q already recorded for task %q", event.EventID, t.taskID)
	}
	var next ExecutionTrace
	if t.trace != nil {
		next = *t.trace
	} else {
		next = ExecutionTrace{
			TraceID:   NewTraceID(),
			TaskID:    t.taskID,
			StartTime: event.Timestamp,
		}
	}
	events := make([]*TraceEvent, 0, len(next.Events)+1)
	events = append(events, next.Events...)
	next.Events = append(events, event)
	return &next, nil
}

// commitTraceEvent installs a persisted single-event append.
func (t *taskState) commitTraceEvent(next *ExecutionTrace, event *TraceEvent) {
	t.trace = next
	t.traceEventIDs[event.EventID] = true
}

// installTrace replaces the trace wholesale and rebuilds the event ID
// set. Used for bulk imports and disk reconciliation.
func (t *taskState) installTrace(trace *ExecutionTrace) {
	t.trace = trace
	t.traceEventIDs = make(map[string]bool, len(trace.Events))
	for _, event := range trace.Events {
		t.traceEventIDs[event.EventID] = true
	}
}

// sealedTrace returns a copy of the trace with its final outcome and the
// caller's cascade diagnosis applied. Existing events are untouched.
func (t *taskState) sealedTrace(outcome Outcome, errorChain []string, endTime time.Time) (*ExecutionTrace, error) {
	if t.trace == nil {
		return nil, validationErrorf("task %q has no trace to complete", t.taskID)
	}
	sealed := *t.trace
	sealed.FinalOutcome = outcome
	sealed.EndTime = &endTime
	if len(errorChain) > 0 {
		sealed.ErrorChain = append([]string(nil), errorChain...)
	}
	return &sealed, nil
}

// TaskSnapshot is a read-only view of everything recorded so far for one
// task. Slices are copies; callers may hold them across later commits.
type TaskSnapshot struct {
	TaskID        string
	Plan          *TaskPlan
	Collaborators []AgentInfo
	Substitutions []ParameterSubstitution
	Trace         *ExecutionTrace
	TakenAt       time.Time
}

func (t *taskState) snapshot() TaskSnapshot {
	snap := TaskSnapshot{
		TaskID:  t.taskID,
		Plan:    t.plan,
		TakenAt: time.Now().UTC(),
	}
	if len(t.collaborators) > 0 {
		snap.Collaborators = make([]AgentInfo, len(t.collaborators))
		copy(snap.Collaborators, t.collaborators)
	}
	if len(t.substitutions) > 0 {
		snap.Substitutions = make([]ParameterSubstitution, len(t.substitutions))
		copy(snap.Substitutions, t.substitutions)
	}
	if t.trace != nil {
		traceCopy := *t.trace
		traceCopy.Events = make([]*TraceEvent, len(t.trace.Events))
		copy(traceCopy.Events, t.trace.Events)
		snap.Trace = &traceCopy
	}
	return snap
}
