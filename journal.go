package chronicle

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EventJournal mirrors the unified event index to durable storage as
// envelopes are appended. The journal preserves exact insertion order, so
// replay tie-breaking on identical timestamps survives a process restart.
//
// Envelopes are journaled before the typed record file is written, and a
// fact whose file write fails is re-journaled by the retried call, so
// the journal is at-least-once: an aborted commit can leave an envelope
// with no matching record file.
type EventJournal interface {
	// Append writes envelopes in insertion order.
	Append(ctx context.Context, workflowID string, events []*RecordedEvent) error

	// TaskHistory returns all journaled envelopes for a task in insertion
	// order. An empty result means the task was never journaled.
	TaskHistory(ctx context.Context, workflowID, taskID string) ([]*RecordedEvent, error)

	// LastSequence returns the highest sequence number ever journaled
	// for the workflow, or zero when nothing was journaled. Recorders
	// seed their sequence counter from it so sequence numbers stay
	// unique across process restarts.
	LastSequence(ctx context.Context, workflowID string) (int64, error)

	// Close releases any resources held by the journal.
	Close() error
}

// FileJournal stores envelopes as JSON Lines in an events.jsonl file
// under the workflow directory.
type FileJournal struct {
	root  string
	mutex sync.Mutex
}

// NewFileJournal creates a file journal rooted at the given directory,
// normally the same root as the FileStore.
func NewFileJournal(root string) *FileJournal {
	return &FileJournal{root: root}
}

func (j *FileJournal) journalPath(workflowID string) string {
	return filepath.Join(j.root, workflowID, "events.jsonl")
}

// Append writes envelopes to the workflow's journal file.
func (j *FileJournal) Append(ctx context.Context, workflowID string, events []*RecordedEvent) error {
	if len(events) == 0 {
		return nil
	}
	j.mutex.Lock()
	defer j.mutex.Unlock()

	path := j.journalPath(workflowID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return &PersistenceError{Path: path, Err: fmt.Errorf("failed to encode event: %w", err)}
		}
	}
	return nil
}

// TaskHistory reads the workflow journal and returns the envelopes
// belonging to the task, in the order they were written.
func (j *FileJournal) TaskHistory(ctx context.Context, workflowID, taskID string) ([]*RecordedEvent, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	path := j.journalPath(workflowID)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CorruptedRecordError{Path: path, Err: err}
	}
	defer file.Close()

	var events []*RecordedEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event RecordedEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return nil, &CorruptedRecordError{Path: path, Err: err}
		}
		if event.TaskID == taskID {
			events = append(events, &event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &CorruptedRecordError{Path: path, Err: err}
	}
	return events, nil
}

// LastSequence scans the workflow journal for its highest sequence
// number. A missing journal file means nothing was journaled yet.
func (j *FileJournal) LastSequence(ctx context.Context, workflowID string) (int64, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	path := j.journalPath(workflowID)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, &CorruptedRecordError{Path: path, Err: err}
	}
	defer file.Close()

	var last int64
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event RecordedEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			return 0, &CorruptedRecordError{Path: path, Err: err}
		}
		if event.Sequence > last {
			last = event.Sequence
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, &CorruptedRecordError{Path: path, Err: err}
	}
	return last, nil
}

// Close is a no-op for file journals.
func (j *FileJournal) Close() error { return nil }

// NullJournal discards all envelopes. Used when journaling is disabled:
// replay then reconstructs insertion order from the typed record files.
type NullJournal struct{}

// NewNullJournal creates a journal that stores nothing.
func NewNullJournal() *NullJournal { return &NullJournal{} }

func (j *NullJournal) Append(ctx context.Context, workflowID string, events []*RecordedEvent) error {
	return nil
}

func (j *NullJournal) TaskHistory(ctx context.Context, workflowID, taskID string) ([]*RecordedEvent, error) {
	return nil, nil
}

func (j *NullJournal) LastSequence(ctx context.Context, workflowID string) (int64, error) {
	return 0, nil
}

func (j *NullJournal) Close() error { return nil }
