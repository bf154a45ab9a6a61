package chronicle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// TaskExport is the forensic handoff format produced by ExportSnapshot:
// one self-contained artifact capturing everything known about a task,
// fully interpretable without access to the live Recorder. Absent
// categories serialize as null or an empty array, never omitted keys, so
// downstream consumers can rely on a fixed schema.
type TaskExport struct {
	WorkflowID             string                  `json:"workflow_id"`
	TaskID                 string                  `json:"task_id"`
	ExportedAt             time.Time               `json:"exported_at"`
	TaskPlan               *TaskPlan               `json:"task_plan"`
	Collaborators          []AgentInfo             `json:"collaborators"`
	ParameterSubstitutions []ParameterSubstitution `json:"parameter_substitutions"`
	ExecutionTrace         *ExecutionTrace         `json:"execution_trace"`
	AllEvents              []*RecordedEvent        `json:"all_events"`
}

// ExportSnapshot serializes everything known about the task, including
// the full unified index sorted by timestamp, into a single JSON file at
// destination. Missing on-disk data is loaded first, like Replay.
//
// If a record category could not be read, the export still contains the
// readable categories and the returned error names the unreadable
// file(s).
func (r *Recorder) ExportSnapshot(ctx context.Context, taskID, destination string) error {
	if taskID == "" {
		return validationErrorf("task ID is required")
	}
	if destination == "" {
		return validationErrorf("destination is required")
	}

	loadErr := r.ensureLoaded(ctx, taskID)

	// Snapshot and index are collected under the task's mutex so no
	// commit can land between them: execution_trace and all_events always
	// describe the same instant.
	task := r.taskFor(taskID)
	task.mu.Lock()
	snapshot := task.snapshot()
	events := r.taskEvents(taskID)
	task.mu.Unlock()

	export := &TaskExport{
		WorkflowID:             r.workflowID,
		TaskID:                 taskID,
		ExportedAt:             time.Now().UTC(),
		TaskPlan:               snapshot.Plan,
		Collaborators:          snapshot.Collaborators,
		ParameterSubstitutions: snapshot.Substitutions,
		ExecutionTrace:         snapshot.Trace,
		AllEvents:              events,
	}
	if export.Collaborators == nil {
		export.Collaborators = []AgentInfo{}
	}
	if export.ParameterSubstitutions == nil {
		export.ParameterSubstitutions = []ParameterSubstitution{}
	}
	if export.AllEvents == nil {
		export.AllEvents = []*RecordedEvent{}
	}

	if err := writeExportFile(destination, export); err != nil {
		return err
	}
	r.logger.Info("exported task snapshot", "task_id", taskID, "destination", destination, "events", len(events))
	return loadErr
}

// writeExportFile writes the artifact via a temporary file and rename so
// a partially written export is never observable.
func writeExportFile(destination string, export *TaskExport) error {
	if dir := filepath.Dir(destination); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &PersistenceError{Path: destination, Err: err}
		}
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return &PersistenceError{Path: destination, Err: err}
	}
	tempPath := destination + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return &PersistenceError{Path: destination, Err: err}
	}
	if err := os.Rename(tempPath, destination); err != nil {
		os.Remove(tempPath)
		return &PersistenceError{Path: destination, Err: err}
	}
	return nil
}
