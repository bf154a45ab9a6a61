package chronicle

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepnoodle-ai/chronicle/slogging"
)

// RecorderOptions configures a new Recorder.
type RecorderOptions struct {
	// WorkflowID identifies the workflow this recorder owns. Required.
	WorkflowID string

	// StorageRoot is the directory under which the workflow's record
	// files live. Required. The workflow directory is exclusively owned
	// by one Recorder instance at a time.
	StorageRoot string

	// Journal mirrors the unified event index to durable storage.
	// Defaults to a FileJournal under StorageRoot.
	Journal EventJournal

	// Logger defaults to a no-op logger.
	Logger slogging.Logger
}

// Recorder is the public-facing component: it accepts record and append
// calls for a single workflow, maintains one per-task store per task and
// a workflow-wide unified event index, and serves replay and export.
//
// Every commit appends its envelope(s) to the index in the order the
// facts became true, so replay is a single sort over one stream instead
// of a read-time merge of four separately-sorted ones. The data is
// double-stored (typed file plus index entry) by design; recordings are
// small.
//
// Commit pipeline: validate, journal the envelope(s), write the typed
// record file, and only then mutate the per-task store and the index. A
// failed write therefore leaves no partial commit, and retrying the same
// call is always safe. The sequence counter is seeded from the journal's
// high-water mark so sequence numbers stay unique across process
// restarts.
type Recorder struct {
	workflowID string
	store      *FileStore
	journal    EventJournal
	logger     slogging.Logger

	tasksMutex sync.Mutex
	tasks      map[string]*taskState

	indexMutex sync.Mutex
	index      []*RecordedEvent
	sequence   atomic.Int64
}

// NewRecorder creates a Recorder for one workflow with an explicit
// storage root. There is no package-level registry: components that need
// the recorder receive the instance.
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.WorkflowID == "" {
		return nil, validationErrorf("workflow ID is required")
	}
	if opts.StorageRoot == "" {
		return nil, validationErrorf("storage root is required")
	}
	journal := opts.Journal
	if journal == nil {
		journal = NewFileJournal(opts.StorageRoot)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogging.NewNop()
	}
	r := &Recorder{
		workflowID: opts.WorkflowID,
		store:      NewFileStore(opts.StorageRoot),
		journal:    journal,
		logger:     logger.With("workflow_id", opts.WorkflowID),
		tasks:      make(map[string]*taskState),
	}
	last, err := journal.LastSequence(context.Background(), opts.WorkflowID)
	if err != nil {
		return nil, err
	}
	r.sequence.Store(last)
	return r, nil
}

// WorkflowID returns the workflow this recorder owns.
func (r *Recorder) WorkflowID() string {
	return r.workflowID
}

// Close releases the journal. The recorder must not be used afterwards.
func (r *Recorder) Close() error {
	return r.journal.Close()
}

// taskFor returns the task's store, creating it on first use.
func (r *Recorder) taskFor(taskID string) *taskState {
	r.tasksMutex.Lock()
	defer r.tasksMutex.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		task = newTaskState(taskID)
		r.tasks[taskID] = task
	}
	return task
}

// appendToIndex appends committed envelopes to the unified index.
func (r *Recorder) appendToIndex(events ...*RecordedEvent) {
	r.indexMutex.Lock()
	r.index = append(r.index, events...)
	r.indexMutex.Unlock()
}

// newEnvelope wraps a fact for the unified index. The sequence number is
// assigned here, before the envelope reaches the journal, and reflects
// causal recording order; it breaks timestamp ties during replay. An
// envelope whose commit aborts leaves a gap in the numbering, which is
// harmless.
func (r *Recorder) newEnvelope(eventType, taskID string, timestamp time.Time, data any) *RecordedEvent {
	return &RecordedEvent{
		EventType: eventType,
		TaskID:    taskID,
		Sequence:  r.sequence.Add(1),
		Timestamp: timestamp.UTC(),
		Data:      data,
	}
}

// journalAppend mirrors envelopes to the journal before the typed record
// file is written. A fact whose file write fails is re-journaled by the
// retried call under a fresh sequence number, so the journal is
// at-least-once, never lossy.
func (r *Recorder) journalAppend(ctx context.Context, events []*RecordedEvent) error {
	return r.journal.Append(ctx, r.workflowID, events)
}

// RecordTaskPlan records the task's intended plan. Plans are set-once:
// a second plan for the same task fails with DuplicatePlanError.
func (r *Recorder) RecordTaskPlan(ctx context.Context, taskID string, plan *TaskPlan) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	if plan == nil {
		return validationErrorf("plan is required")
	}
	if plan.TaskID == "" {
		plan.TaskID = taskID
	} else if plan.TaskID != taskID {
		return validationErrorf("plan %q belongs to task %q, not %q", plan.PlanID, plan.TaskID, taskID)
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	if err := r.ensureLoaded(ctx, taskID); err != nil {
		return err
	}

	task := r.taskFor(taskID)
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.loadErr != nil {
		return task.loadErr
	}
	if task.plan != nil {
		return &DuplicatePlanError{TaskID: taskID}
	}

	envelope := r.newEnvelope(EventTypeTaskPlan, taskID, plan.CreatedAt, plan)
	if err := r.journalAppend(ctx, []*RecordedEvent{envelope}); err != nil {
		return err
	}
	if err := r.store.WritePlan(ctx, r.workflowID, taskID, plan); err != nil {
		return err
	}

	task.plan = plan
	r.appendToIndex(envelope)
	r.logger.Debug("recorded task plan", "task_id", taskID, "plan_id", plan.PlanID, "steps", len(plan.Steps))
	return nil
}

// RecordCollaborators appends agents to the task's collaborator list.
// The list is not deduplicated: an agent that rejoins appears again with
// its new JoinedAt.
func (r *Recorder) RecordCollaborators(ctx context.Context, taskID string, agents []AgentInfo) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	if len(agents) == 0 {
		return validationErrorf("at least one agent is required")
	}
	for i := range agents {
		if err := agents[i].Validate(); err != nil {
			return err
		}
		if agents[i].JoinedAt.IsZero() {
			agents[i].JoinedAt = time.Now().UTC()
		}
	}
	if err := r.ensureLoaded(ctx, taskID); err != nil {
		return err
	}

	task := r.taskFor(taskID)
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.loadErr != nil {
		return task.loadErr
	}

	next := task.nextCollaborators(agents)
	envelopes := make([]*RecordedEvent, 0, len(agents))
	for i := range agents {
		agent := agents[i]
		envelopes = append(envelopes, r.newEnvelope(EventTypeCollaboratorJoin, taskID, agent.JoinedAt, agent))
	}
	if err := r.journalAppend(ctx, envelopes); err != nil {
		return err
	}
	if err := r.store.WriteCollaborators(ctx, r.workflowID, taskID, next); err != nil {
		return err
	}

	task.collaborators = next
	r.appendToIndex(envelopes...)
	r.logger.Debug("recorded collaborators", "task_id", taskID, "count", len(agents))
	return nil
}

// RecordParameterSubstitution records a runtime parameter change. The
// reason is mandatory: a substitution without justification is a
// data-quality violation and is rejected before any state changes.
// agentID may be empty when the change was not attributable to an agent.
func (r *Recorder) RecordParameterSubstitution(ctx context.Context, taskID, paramName, oldValue, newValue, reason, agentID string) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	sub := ParameterSubstitution{
		ParamName: paramName,
		OldValue:  oldValue,
		NewValue:  newValue,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	if err := r.ensureLoaded(ctx, taskID); err != nil {
		return err
	}

	task := r.taskFor(taskID)
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.loadErr != nil {
		return task.loadErr
	}

	next := task.nextSubstitutions(sub)
	envelope := r.newEnvelope(EventTypeParameterSubstitution, taskID, sub.Timestamp, sub)
	if err := r.journalAppend(ctx, []*RecordedEvent{envelope}); err != nil {
		return err
	}
	if err := r.store.WriteParameterSubstitutions(ctx, r.workflowID, taskID, next); err != nil {
		return err
	}

	task.substitutions = next
	r.appendToIndex(envelope)
	r.logger.Debug("recorded parameter substitution", "task_id", taskID, "param", paramName)
	return nil
}

// AddTraceEvent appends one event to the task's execution trace, creating
// the trace lazily on first call. Event IDs must be unique within the
// task's trace.
func (r *Recorder) AddTraceEvent(ctx context.Context, taskID string, event *TraceEvent) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	if event == nil {
		return validationErrorf("trace event is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := r.ensureLoaded(ctx, taskID); err != nil {
		return err
	}

	task := r.taskFor(taskID)
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.loadErr != nil {
		return task.loadErr
	}

	next, err := task.nextTraceWith(event)
	if err != nil {
		return err
	}
	envelope := r.newEnvelope(traceEnvelopeType(event.EventType), taskID, event.Timestamp, event)
	if err := r.journalAppend(ctx, []*RecordedEvent{envelope}); err != nil {
		return err
	}
	if err := r.store.WriteTrace(ctx, r.workflowID, taskID, next); err != nil {
		return err
	}

	task.commitTraceEvent(next, event)
	r.appendToIndex(envelope)
	r.logger.Debug("recorded trace event", "task_id", taskID, "event_id", event.EventID, "event_type", event.EventType)
	return nil
}

// RecordExecutionTrace installs a complete trace wholesale, for example
// when importing a task recorded by another system. It supersedes any
// existing trace: the task's previous trace envelopes are dropped from
// the unified index and replaced by envelopes for the imported events.
// The journal keeps the superseded envelopes as raw commit history.
func (r *Recorder) RecordExecutionTrace(ctx context.Context, taskID string, trace *ExecutionTrace) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	if trace == nil {
		return validationErrorf("trace is required")
	}
	if trace.TaskID == "" {
		trace.TaskID = taskID
	} else if trace.TaskID != taskID {
		return validationErrorf("trace %q belongs to task %q, not %q", trace.TraceID, trace.TaskID, taskID)
	}
	if err := trace.Validate(); err != nil {
		return err
	}
	if err := r.ensureLoaded(ctx, taskID); err != nil {
		return err
	}

	task := r.taskFor(taskID)
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.loadErr != nil {
		return task.loadErr
	}

	envelopes := make([]*RecordedEvent, 0, len(trace.Events))
	for _, event := range trace.Events {
		envelopes = append(envelopes, r.newEnvelope(traceEnvelopeType(event.EventType), taskID, event.Timestamp, event))
	}
	if err := r.journalAppend(ctx, envelopes); err != nil {
		return err
	}
	if err := r.store.WriteTrace(ctx, r.workflowID, taskID, trace); err != nil {
		return err
	}

	task.installTrace(trace)
	r.indexMutex.Lock()
	kept := r.index[:0]
	for _, envelope := range r.index {
		if envelope.TaskID == taskID && isTraceEnvelope(envelope.EventType) {
			continue
		}
		kept = append(kept, envelope)
	}
	r.index = append(kept, envelopes...)
	r.indexMutex.Unlock()

	r.logger.Debug("recorded execution trace", "task_id", taskID, "trace_id", trace.TraceID, "events", len(trace.Events))
	return nil
}

// CompleteTrace seals the task's trace with its final outcome and an
// optional error chain: human-readable causal strings diagnosed by the
// workflow engine when failures cascade. The recorder stores the
// diagnosis verbatim; it never infers one. Fails with ValidationError if
// the task has no trace.
func (r *Recorder) CompleteTrace(ctx context.Context, taskID string, outcome Outcome, errorChain []string) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	switch outcome {
	case OutcomeSuccess, OutcomeFailed, OutcomeTimeout, OutcomeCancelled:
	default:
		return validationErrorf("unknown outcome %q", outcome)
	}
	if err := r.ensureLoaded(ctx, taskID); err != nil {
		return err
	}

	task := r.taskFor(taskID)
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.loadErr != nil {
		return task.loadErr
	}

	sealed, err := task.sealedTrace(outcome, errorChain, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := r.store.WriteTrace(ctx, r.workflowID, taskID, sealed); err != nil {
		return err
	}

	task.trace = sealed
	r.logger.Debug("completed trace", "task_id", taskID, "outcome", outcome)
	return nil
}

// TaskSnapshot returns a read-only view of everything recorded in memory
// for the task. The boolean reports whether the task is known.
func (r *Recorder) TaskSnapshot(taskID string) (TaskSnapshot, bool) {
	r.tasksMutex.Lock()
	task, ok := r.tasks[taskID]
	r.tasksMutex.Unlock()
	if !ok {
		return TaskSnapshot{}, false
	}
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.snapshot(), true
}

// Replay returns all recorded events for the task sorted by timestamp
// ascending. Identical timestamps keep their original insertion order,
// which reflects causal recording order even when clock resolution cannot
// distinguish two events.
//
// Any on-disk data for the task not yet in memory is loaded first, so a
// task recorded in a previous process lifetime replays completely. If a
// record file is corrupted, the remaining categories still replay and the
// returned error names the unreadable file(s); callers should inspect
// both results.
func (r *Recorder) Replay(ctx context.Context, taskID string) ([]*RecordedEvent, error) {
	if taskID == "" {
		return nil, validationErrorf("task ID is required")
	}
	loadErr := r.ensureLoaded(ctx, taskID)
	return r.taskEvents(taskID), loadErr
}

// taskEvents filters the unified index for the task and sorts by
// timestamp, breaking ties by insertion sequence.
func (r *Recorder) taskEvents(taskID string) []*RecordedEvent {
	r.indexMutex.Lock()
	events := make([]*RecordedEvent, 0)
	for _, envelope := range r.index {
		if envelope.TaskID == taskID {
			events = append(events, envelope)
		}
	}
	r.indexMutex.Unlock()

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Sequence < events[j].Sequence
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// ensureLoaded reconciles on-disk data for a task that is not yet in
// memory, merging its records into the per-task store and the unified
// index. Envelopes are synthesized in category order (plan,
// collaborators, substitutions, trace events) with each fact's own
// timestamp, so the subsequent sort restores chronology.
//
// Record operations call this before mutating so a recorder started over
// an existing workflow directory appends rather than clobbers; they abort
// on a load error since overwriting a category that could not be read
// would lose data. Replay instead proceeds with whatever loaded.
func (r *Recorder) ensureLoaded(ctx context.Context, taskID string) error {
	r.tasksMutex.Lock()
	if existing, ok := r.tasks[taskID]; ok {
		r.tasksMutex.Unlock()
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.loadErr
	}
	task := newTaskState(taskID)
	task.mu.Lock()
	r.tasks[taskID] = task
	r.tasksMutex.Unlock()
	defer task.mu.Unlock()

	data, loadErr := r.store.LoadTask(ctx, r.workflowID, taskID)
	task.loadErr = loadErr
	if data.Empty() {
		return loadErr
	}
	r.logger.Debug("loaded task from disk", "task_id", taskID,
		"has_plan", data.Plan != nil, "has_trace", data.Trace != nil,
		"collaborators", len(data.Collaborators), "substitutions", len(data.Substitutions))

	var envelopes []*RecordedEvent
	if data.Plan != nil {
		task.plan = data.Plan
		envelopes = append(envelopes, r.newEnvelope(EventTypeTaskPlan, taskID, data.Plan.CreatedAt, data.Plan))
	}
	if data.HasCollaborators {
		task.collaborators = data.Collaborators
		for i := range data.Collaborators {
			agent := data.Collaborators[i]
			envelopes = append(envelopes, r.newEnvelope(EventTypeCollaboratorJoin, taskID, agent.JoinedAt, agent))
		}
	}
	if data.HasSubstitutions {
		task.substitutions = data.Substitutions
		for i := range data.Substitutions {
			sub := data.Substitutions[i]
			envelopes = append(envelopes, r.newEnvelope(EventTypeParameterSubstitution, taskID, sub.Timestamp, sub))
		}
	}
	if data.Trace != nil {
		task.installTrace(data.Trace)
		for _, event := range data.Trace.Events {
			envelopes = append(envelopes, r.newEnvelope(traceEnvelopeType(event.EventType), taskID, event.Timestamp, event))
		}
	}
	r.appendToIndex(envelopes...)
	return loadErr
}

func isTraceEnvelope(eventType string) bool {
	return strings.HasPrefix(eventType, TraceEventTypePrefix)
}
