package chronicle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTraceEventValidate(t *testing.T) {
	event := &TraceEvent{
		EventID:   "event-1",
		Timestamp: time.Now().UTC(),
		EventType: TraceStepStart,
		StepID:    "fetch",
	}
	require.NoError(t, event.Validate())

	t.Run("missing event ID", func(t *testing.T) {
		bad := *event
		bad.EventID = ""
		require.Error(t, bad.Validate())
	})

	t.Run("unknown event type", func(t *testing.T) {
		bad := *event
		bad.EventType = "explosion"
		err := bad.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "explosion")
	})
}

func TestExecutionTraceValidate(t *testing.T) {
	trace := &ExecutionTrace{
		TraceID:   "trace-1",
		TaskID:    "task-1",
		StartTime: time.Now().UTC(),
		Events: []*TraceEvent{
			{EventID: "e1", Timestamp: time.Now().UTC(), EventType: TraceStepStart},
			{EventID: "e2", Timestamp: time.Now().UTC(), EventType: TraceStepEnd},
		},
	}
	require.NoError(t, trace.Validate())

	t.Run("duplicate event IDs", func(t *testing.T) {
		bad := *trace
		bad.Events = append(bad.Events, &TraceEvent{EventID: "e1", Timestamp: time.Now(), EventType: TraceError})
		require.Error(t, bad.Validate())
	})

	t.Run("missing task ID", func(t *testing.T) {
		bad := *trace
		bad.TaskID = ""
		require.Error(t, bad.Validate())
	})
}

func TestTraceEventTypedData(t *testing.T) {
	t.Run("decision round trip", func(t *testing.T) {
		event := &TraceEvent{EventID: "e1", Timestamp: time.Now().UTC(), EventType: TraceDecision}
		err := event.SetTypedData(&DecisionData{
			Decision:     "use cached result",
			Alternatives: []string{"recompute", "abort"},
			Rationale:    "input hash unchanged",
		})
		require.NoError(t, err)
		require.Equal(t, "use cached result", event.Metadata["decision"])

		decoded, err := event.TypedData()
		require.NoError(t, err)
		decision, ok := decoded.(*DecisionData)
		require.True(t, ok)
		require.Equal(t, "use cached result", decision.Decision)
		require.Equal(t, []string{"recompute", "abort"}, decision.Alternatives)
		require.Equal(t, "input hash unchanged", decision.Rationale)
	})

	t.Run("error round trip", func(t *testing.T) {
		event := &TraceEvent{EventID: "e2", Timestamp: time.Now().UTC(), EventType: TraceError}
		err := event.SetTypedData(&ErrorData{
			ErrorType:     "timeout",
			Message:       "agent did not respond",
			IsRecoverable: true,
		})
		require.NoError(t, err)

		decoded, err := event.TypedData()
		require.NoError(t, err)
		errorData, ok := decoded.(*ErrorData)
		require.True(t, ok)
		require.Equal(t, "timeout", errorData.ErrorType)
		require.True(t, errorData.IsRecoverable)
	})

	t.Run("parameter change round trip", func(t *testing.T) {
		event := &TraceEvent{EventID: "e3", Timestamp: time.Now().UTC(), EventType: TraceParameterChange}
		err := event.SetTypedData(&ParameterChangeData{
			ParamName: "max_retries",
			OldValue:  "3",
			NewValue:  "5",
		})
		require.NoError(t, err)

		decoded, err := event.TypedData()
		require.NoError(t, err)
		change, ok := decoded.(*ParameterChangeData)
		require.True(t, ok)
		require.Equal(t, "max_retries", change.ParamName)
		require.Equal(t, "5", change.NewValue)
	})

	t.Run("type mismatch rejected", func(t *testing.T) {
		event := &TraceEvent{EventID: "e4", Timestamp: time.Now().UTC(), EventType: TraceStepStart}
		err := event.SetTypedData(&DecisionData{Decision: "x"})
		require.Error(t, err)
	})

	t.Run("open ended metadata stays opaque", func(t *testing.T) {
		event := &TraceEvent{
			EventID:   "e5",
			Timestamp: time.Now().UTC(),
			EventType: TraceStepEnd,
			Metadata:  map[string]any{"tokens": 512},
		}
		decoded, err := event.TypedData()
		require.NoError(t, err)
		require.Nil(t, decoded)
	})
}
