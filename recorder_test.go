package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T, workflowID string) *Recorder {
	t.Helper()
	recorder, err := NewRecorder(RecorderOptions{
		WorkflowID:  workflowID,
		StorageRoot: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { recorder.Close() })
	return recorder
}

func TestNewRecorderValidation(t *testing.T) {
	_, err := NewRecorder(RecorderOptions{StorageRoot: t.TempDir()})
	require.Error(t, err)

	_, err = NewRecorder(RecorderOptions{WorkflowID: "wf-1"})
	require.Error(t, err)
}

func TestRecordTaskPlanOnce(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	require.NoError(t, recorder.RecordTaskPlan(ctx, "task-1", validPlan("task-1")))

	err := recorder.RecordTaskPlan(ctx, "task-1", validPlan("task-1"))
	require.Error(t, err)
	var duplicate *DuplicatePlanError
	require.True(t, errors.As(err, &duplicate))
	require.Equal(t, "task-1", duplicate.TaskID)

	// The original plan is untouched
	snapshot, ok := recorder.TaskSnapshot("task-1")
	require.True(t, ok)
	require.NotNil(t, snapshot.Plan)
	require.Len(t, snapshot.Plan.Steps, 2)
}

func TestRecordTaskPlanTaskIDMismatch(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	err := recorder.RecordTaskPlan(context.Background(), "task-1", validPlan("task-other"))
	require.Error(t, err)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
}

func TestAddTraceEventAppendOnly(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
			EventID:   fmt.Sprintf("event-%d", i),
			EventType: TraceStepStart,
			AgentID:   "agent-a",
			StepID:    fmt.Sprintf("step-%d", i),
		})
		require.NoError(t, err)
	}

	// A duplicate event ID is rejected and leaves the trace unchanged
	err := recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID:   "event-0",
		EventType: TraceStepEnd,
	})
	require.Error(t, err)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))

	snapshot, ok := recorder.TaskSnapshot("task-1")
	require.True(t, ok)
	require.NotNil(t, snapshot.Trace)
	require.Len(t, snapshot.Trace.Events, 5)
	for i, event := range snapshot.Trace.Events {
		require.Equal(t, fmt.Sprintf("event-%d", i), event.EventID)
	}
}

func TestReplayChronologicalOrder(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()
	now := time.Now().UTC()

	// Record out of chronological order: the plan carries a timestamp an
	// hour in the past and the trace event an hour in the future, while
	// the substitution is stamped at commit time.
	plan := validPlan("task-1")
	plan.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, recorder.RecordTaskPlan(ctx, "task-1", plan))

	require.NoError(t, recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID:   "event-late",
		EventType: TraceStepStart,
		Timestamp: now.Add(time.Hour),
	}))

	require.NoError(t, recorder.RecordParameterSubstitution(ctx, "task-1",
		"confidence_threshold", "0.8", "0.95", "reduce false positives", "agent-a"))

	events, err := recorder.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, EventTypeTaskPlan, events[0].EventType)
	require.Equal(t, EventTypeParameterSubstitution, events[1].EventType)
	require.Equal(t, "trace_step-start", events[2].EventType)
}

func TestReplayUnknownTask(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	events, err := recorder.Replay(context.Background(), "task-unknown")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestReplayIsolatedPerTask(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	require.NoError(t, recorder.RecordTaskPlan(ctx, "task-1", validPlan("task-1")))
	require.NoError(t, recorder.RecordTaskPlan(ctx, "task-2", validPlan("task-2")))
	require.NoError(t, recorder.RecordCollaborators(ctx, "task-2", []AgentInfo{{AgentID: "agent-a"}}))

	events, err := recorder.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "task-1", events[0].TaskID)
}

func TestConcurrentTraceEvents(t *testing.T) {
	root := t.TempDir()
	recorder, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)
	defer recorder.Close()
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
				EventID:   fmt.Sprintf("event-%d", i),
				EventType: TraceCheckpoint,
				AgentID:   fmt.Sprintf("agent-%d", i),
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	snapshot, ok := recorder.TaskSnapshot("task-1")
	require.True(t, ok)
	require.Len(t, snapshot.Trace.Events, writers)

	events, err := recorder.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, writers)

	// Every event reached disk, not just memory
	data, err := NewFileStore(root).LoadTask(ctx, "wf-1", "task-1")
	require.NoError(t, err)
	require.NotNil(t, data.Trace)
	require.Len(t, data.Trace.Events, writers)
}

func TestRecordCollaboratorsAppends(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	require.NoError(t, recorder.RecordCollaborators(ctx, "task-1", []AgentInfo{
		{AgentID: "agent-a", Role: "planner"},
		{AgentID: "agent-b", Role: "executor"},
	}))
	// Rejoining is recorded again, not deduplicated
	require.NoError(t, recorder.RecordCollaborators(ctx, "task-1", []AgentInfo{
		{AgentID: "agent-a", Role: "reviewer"},
	}))

	snapshot, ok := recorder.TaskSnapshot("task-1")
	require.True(t, ok)
	require.Len(t, snapshot.Collaborators, 3)

	events, err := recorder.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
}

func TestParameterSubstitutionRequiresReason(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	err := recorder.RecordParameterSubstitution(context.Background(), "task-1",
		"confidence_threshold", "0.8", "0.95", "", "agent-a")
	require.Error(t, err)
	var validation *ValidationError
	require.True(t, errors.As(err, &validation))

	// Nothing was recorded
	events, replayErr := recorder.Replay(context.Background(), "task-1")
	require.NoError(t, replayErr)
	require.Empty(t, events)
}

func TestRecordExecutionTraceReplacesWithoutDuplicates(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID:   "incremental-1",
		EventType: TraceStepStart,
		Timestamp: now,
	}))

	imported := &ExecutionTrace{
		TraceID:   "trace-imported",
		TaskID:    "task-1",
		StartTime: now,
		Events: []*TraceEvent{
			{EventID: "imported-1", EventType: TraceStepStart, Timestamp: now.Add(time.Second)},
			{EventID: "imported-2", EventType: TraceStepEnd, Timestamp: now.Add(2 * time.Second)},
		},
		FinalOutcome: OutcomeSuccess,
	}
	require.NoError(t, recorder.RecordExecutionTrace(ctx, "task-1", imported))

	snapshot, ok := recorder.TaskSnapshot("task-1")
	require.True(t, ok)
	require.Equal(t, "trace-imported", snapshot.Trace.TraceID)
	require.Len(t, snapshot.Trace.Events, 2)

	// Replay contains envelopes only for the imported events
	events, err := recorder.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, event := range events {
		data, ok := event.Data.(*TraceEvent)
		require.True(t, ok)
		require.NotEqual(t, "incremental-1", data.EventID)
	}
}

func TestCompleteTrace(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	require.NoError(t, recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID:   "event-1",
		EventType: TraceError,
	}))
	errorChain := []string{
		"step analyze failed: model timeout",
		"caused by: upstream fetch returned empty document",
	}
	require.NoError(t, recorder.CompleteTrace(ctx, "task-1", OutcomeFailed, errorChain))

	snapshot, ok := recorder.TaskSnapshot("task-1")
	require.True(t, ok)
	require.Equal(t, OutcomeFailed, snapshot.Trace.FinalOutcome)
	require.Equal(t, errorChain, snapshot.Trace.ErrorChain)
	require.NotNil(t, snapshot.Trace.EndTime)
}

func TestCompleteTraceValidation(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	// Unknown outcome
	err := recorder.CompleteTrace(ctx, "task-1", Outcome("exploded"), nil)
	require.Error(t, err)

	// No trace to complete
	err = recorder.CompleteTrace(ctx, "task-1", OutcomeSuccess, nil)
	require.Error(t, err)
}

func TestCrashRecoveryReplaysFromDisk(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)

	plan := validPlan("task-1")
	plan.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, first.RecordTaskPlan(ctx, "task-1", plan))
	require.NoError(t, first.RecordCollaborators(ctx, "task-1", []AgentInfo{
		{AgentID: "agent-a", JoinedAt: now.Add(-30 * time.Minute)},
	}))
	require.NoError(t, first.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID:   "event-1",
		EventType: TraceStepStart,
		Timestamp: now,
	}))
	require.NoError(t, first.Close())

	// A fresh recorder over the same root sees everything
	second, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)
	defer second.Close()

	events, err := second.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, EventTypeTaskPlan, events[0].EventType)
	require.Equal(t, EventTypeCollaboratorJoin, events[1].EventType)
	require.Equal(t, "trace_step-start", events[2].EventType)

	// And appends rather than clobbers
	require.NoError(t, second.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID:   "event-2",
		EventType: TraceStepEnd,
		Timestamp: now.Add(time.Minute),
	}))
	events, err = second.Replay(ctx, "task-1")
	require.NoError(t, err)
	require.Len(t, events, 4)

	snapshot, ok := second.TaskSnapshot("task-1")
	require.True(t, ok)
	require.Len(t, snapshot.Trace.Events, 2)
}

func TestRecordRefusedAfterCorruptedLoad(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)
	require.NoError(t, first.RecordTaskPlan(ctx, "task-1", validPlan("task-1")))
	require.NoError(t, first.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID: "event-1", EventType: TraceStepStart,
	}))
	require.NoError(t, first.Close())

	tracePath := filepath.Join(root, "wf-1", "task-1_trace.json")
	require.NoError(t, os.WriteFile(tracePath, []byte("garbage"), 0644))

	second, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)
	defer second.Close()

	// Record operations refuse to mutate a task whose records could not
	// be fully read.
	err = second.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID: "event-2", EventType: TraceStepEnd,
	})
	require.Error(t, err)
	var corrupted *CorruptedRecordError
	require.True(t, errors.As(err, &corrupted))

	// Replay still serves the categories that loaded.
	events, replayErr := second.Replay(ctx, "task-1")
	require.Error(t, replayErr)
	require.Len(t, events, 1)
	require.Equal(t, EventTypeTaskPlan, events[0].EventType)
}

func TestExportSnapshotCompleteness(t *testing.T) {
	recorder := newTestRecorder(t, "wf-export")
	ctx := context.Background()
	now := time.Now().UTC()

	plan := validPlan("task-1")
	plan.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, recorder.RecordTaskPlan(ctx, "task-1", plan))
	require.NoError(t, recorder.RecordCollaborators(ctx, "task-1", []AgentInfo{
		{AgentID: "agent-a", AgentName: "Researcher", Role: "analysis", JoinedAt: now.Add(-30 * time.Minute)},
	}))
	require.NoError(t, recorder.RecordParameterSubstitution(ctx, "task-1",
		"confidence_threshold", "0.8", "0.95", "reduce false positives", "agent-a"))
	require.NoError(t, recorder.RecordExecutionTrace(ctx, "task-1", &ExecutionTrace{
		TraceID:   "trace-1",
		TaskID:    "task-1",
		StartTime: now,
		Events: []*TraceEvent{
			{EventID: "e1", EventType: TraceStepStart, StepID: "fetch", Timestamp: now.Add(time.Second)},
			{EventID: "e2", EventType: TraceError, StepID: "fetch", Timestamp: now.Add(2 * time.Second)},
			{EventID: "e3", EventType: TraceStepEnd, StepID: "fetch", Timestamp: now.Add(3 * time.Second)},
		},
		FinalOutcome: OutcomeFailed,
		ErrorChain: []string{
			"step fetch failed: connection refused",
			"caused by: endpoint unavailable",
		},
	}))

	destination := filepath.Join(t.TempDir(), "exports", "task-1.json")
	require.NoError(t, recorder.ExportSnapshot(ctx, "task-1", destination))

	data, err := os.ReadFile(destination)
	require.NoError(t, err)
	var export TaskExport
	require.NoError(t, json.Unmarshal(data, &export))

	require.Equal(t, "wf-export", export.WorkflowID)
	require.Equal(t, "task-1", export.TaskID)
	require.NotNil(t, export.TaskPlan)
	require.Len(t, export.TaskPlan.Steps, 2)
	require.Len(t, export.Collaborators, 1)
	require.Len(t, export.ParameterSubstitutions, 1)
	require.Equal(t, "reduce false positives", export.ParameterSubstitutions[0].Reason)
	require.NotNil(t, export.ExecutionTrace)
	require.Equal(t, OutcomeFailed, export.ExecutionTrace.FinalOutcome)
	require.Len(t, export.ExecutionTrace.ErrorChain, 2)
	require.Len(t, export.AllEvents, 6)

	// Events are sorted chronologically
	for i := 1; i < len(export.AllEvents); i++ {
		require.False(t, export.AllEvents[i].Timestamp.Before(export.AllEvents[i-1].Timestamp))
	}
}

func TestExportSnapshotFixedSchema(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()

	require.NoError(t, recorder.RecordTaskPlan(ctx, "task-1", validPlan("task-1")))

	destination := filepath.Join(t.TempDir(), "task-1.json")
	require.NoError(t, recorder.ExportSnapshot(ctx, "task-1", destination))

	data, err := os.ReadFile(destination)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	// Absent categories are present keys, never omitted
	require.Contains(t, raw, "collaborators")
	require.Contains(t, raw, "parameter_substitutions")
	require.Contains(t, raw, "execution_trace")
	require.JSONEq(t, "[]", string(raw["collaborators"]))
	require.JSONEq(t, "[]", string(raw["parameter_substitutions"]))
	require.JSONEq(t, "null", string(raw["execution_trace"]))

	var export TaskExport
	require.NoError(t, json.Unmarshal(data, &export))
	require.Len(t, export.AllEvents, 1)
}

func TestWriteFailureLeavesNoPartialCommit(t *testing.T) {
	ctx := context.Background()

	// A directory squatting on the temp path makes the category's next
	// write fail without touching anything else.
	blockCategory := func(t *testing.T, root, fileName string) string {
		t.Helper()
		blocker := filepath.Join(root, "wf-1", fileName+".tmp")
		require.NoError(t, os.MkdirAll(blocker, 0755))
		return blocker
	}

	t.Run("plan retries after write failure", func(t *testing.T) {
		root := t.TempDir()
		recorder, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
		require.NoError(t, err)
		defer recorder.Close()

		blocker := blockCategory(t, root, "task-1_plan.json")
		err = recorder.RecordTaskPlan(ctx, "task-1", validPlan("task-1"))
		require.Error(t, err)
		var persistence *PersistenceError
		require.True(t, errors.As(err, &persistence))

		// Nothing committed: no plan in memory, no envelope
		snapshot, _ := recorder.TaskSnapshot("task-1")
		require.Nil(t, snapshot.Plan)
		events, replayErr := recorder.Replay(ctx, "task-1")
		require.NoError(t, replayErr)
		require.Empty(t, events)

		// The same call succeeds once the disk recovers
		require.NoError(t, os.Remove(blocker))
		require.NoError(t, recorder.RecordTaskPlan(ctx, "task-1", validPlan("task-1")))

		events, replayErr = recorder.Replay(ctx, "task-1")
		require.NoError(t, replayErr)
		require.Len(t, events, 1)
		info, statErr := os.Stat(filepath.Join(root, "wf-1", "task-1_plan.json"))
		require.NoError(t, statErr)
		require.False(t, info.IsDir())
	})

	t.Run("substitution is not recorded twice on retry", func(t *testing.T) {
		root := t.TempDir()
		recorder, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
		require.NoError(t, err)
		defer recorder.Close()

		blocker := blockCategory(t, root, "task-1_params.json")
		err = recorder.RecordParameterSubstitution(ctx, "task-1",
			"confidence_threshold", "0.8", "0.95", "reduce false positives", "agent-a")
		require.Error(t, err)

		require.NoError(t, os.Remove(blocker))
		require.NoError(t, recorder.RecordParameterSubstitution(ctx, "task-1",
			"confidence_threshold", "0.8", "0.95", "reduce false positives", "agent-a"))

		snapshot, ok := recorder.TaskSnapshot("task-1")
		require.True(t, ok)
		require.Len(t, snapshot.Substitutions, 1)
		events, replayErr := recorder.Replay(ctx, "task-1")
		require.NoError(t, replayErr)
		require.Len(t, events, 1)
	})

	t.Run("trace event ID stays usable after write failure", func(t *testing.T) {
		root := t.TempDir()
		recorder, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
		require.NoError(t, err)
		defer recorder.Close()

		blocker := blockCategory(t, root, "task-1_trace.json")
		event := &TraceEvent{EventID: "event-1", EventType: TraceStepStart}
		err = recorder.AddTraceEvent(ctx, "task-1", event)
		require.Error(t, err)

		snapshot, _ := recorder.TaskSnapshot("task-1")
		require.Nil(t, snapshot.Trace)

		// Retrying the same event must not be rejected as a duplicate
		require.NoError(t, os.Remove(blocker))
		require.NoError(t, recorder.AddTraceEvent(ctx, "task-1", event))

		snapshot, ok := recorder.TaskSnapshot("task-1")
		require.True(t, ok)
		require.Len(t, snapshot.Trace.Events, 1)
	})

	t.Run("collaborators are not duplicated on retry", func(t *testing.T) {
		root := t.TempDir()
		recorder, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
		require.NoError(t, err)
		defer recorder.Close()

		blocker := blockCategory(t, root, "task-1_collaborators.json")
		agents := []AgentInfo{{AgentID: "agent-a", Role: "planner"}}
		err = recorder.RecordCollaborators(ctx, "task-1", agents)
		require.Error(t, err)

		require.NoError(t, os.Remove(blocker))
		require.NoError(t, recorder.RecordCollaborators(ctx, "task-1", agents))

		snapshot, ok := recorder.TaskSnapshot("task-1")
		require.True(t, ok)
		require.Len(t, snapshot.Collaborators, 1)
		events, replayErr := recorder.Replay(ctx, "task-1")
		require.NoError(t, replayErr)
		require.Len(t, events, 1)
	})
}

func TestSequencesUniqueAcrossRestart(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)
	require.NoError(t, first.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID: "event-1", EventType: TraceStepStart, Timestamp: now,
	}))
	require.NoError(t, first.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID: "event-2", EventType: TraceStepEnd, Timestamp: now.Add(time.Second),
	}))
	require.NoError(t, first.Close())

	second, err := NewRecorder(RecorderOptions{WorkflowID: "wf-1", StorageRoot: root})
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.AddTraceEvent(ctx, "task-1", &TraceEvent{
		EventID: "event-3", EventType: TraceCheckpoint, Timestamp: now.Add(2 * time.Second),
	}))

	history, err := NewFileJournal(root).TaskHistory(ctx, "wf-1", "task-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	seen := make(map[int64]bool)
	for _, entry := range history {
		require.False(t, seen[entry.Sequence], "sequence %d journaled twice", entry.Sequence)
		seen[entry.Sequence] = true
	}
}

func TestExportSnapshotConsistentUnderConcurrentWrites(t *testing.T) {
	recorder := newTestRecorder(t, "wf-1")
	ctx := context.Background()
	exportDir := t.TempDir()
	const writers = 30

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = recorder.AddTraceEvent(ctx, "task-1", &TraceEvent{
				EventID:   fmt.Sprintf("event-%d", i),
				EventType: TraceCheckpoint,
			})
		}(i)
	}

	destinations := make([]string, 0, 5)
	for j := 0; j < 5; j++ {
		dest := filepath.Join(exportDir, fmt.Sprintf("export-%d.json", j))
		require.NoError(t, recorder.ExportSnapshot(ctx, "task-1", dest))
		destinations = append(destinations, dest)
	}
	wg.Wait()

	// The trace and the event index in each export describe the same
	// instant, no matter when the export raced the writers.
	for _, dest := range destinations {
		raw, err := os.ReadFile(dest)
		require.NoError(t, err)
		var export TaskExport
		require.NoError(t, json.Unmarshal(raw, &export))
		if export.ExecutionTrace == nil {
			require.Empty(t, export.AllEvents)
			continue
		}
		require.Len(t, export.AllEvents, len(export.ExecutionTrace.Events))
	}
}
