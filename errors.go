package chronicle

import "fmt"

// ValidationError indicates malformed input to a record call: an empty ID,
// a missing required field, a duplicate trace event ID, or an empty
// substitution reason. The input is rejected before any state mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// DuplicatePlanError indicates an attempt to set a second plan for a task.
// Plans are set-once.
type DuplicatePlanError struct {
	TaskID string
}

func (e *DuplicatePlanError) Error() string {
	return fmt.Sprintf("plan already recorded for task %q", e.TaskID)
}

// PersistenceError indicates a journal or record-file write failure. The
// failed commit leaves no partial state: the per-task store and the
// unified index are unchanged, so retrying the same call is the
// recommended recovery.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed for %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// CorruptedRecordError indicates an unreadable or malformed file
// encountered during load or replay. It names the file; sibling record
// categories for the same task still load independently.
type CorruptedRecordError struct {
	Path string
	Err  error
}

func (e *CorruptedRecordError) Error() string {
	return fmt.Sprintf("corrupted record file %s: %v", e.Path, e.Err)
}

func (e *CorruptedRecordError) Unwrap() error { return e.Err }

// UnserializableInputError indicates data passed to Hash that cannot be
// canonicalized (cyclic references, non-serializable types).
type UnserializableInputError struct {
	Err error
}

func (e *UnserializableInputError) Error() string {
	return fmt.Sprintf("input cannot be canonicalized: %v", e.Err)
}

func (e *UnserializableInputError) Unwrap() error { return e.Err }
