package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Record category file suffixes under a workflow directory. Each file
// holds the complete current JSON serialization of its category.
const (
	planFileSuffix          = "_plan.json"
	collaboratorsFileSuffix = "_collaborators.json"
	paramsFileSuffix        = "_params.json"
	traceFileSuffix         = "_trace.json"
)

// FileStore maps each task's records to durable files under
// <root>/<workflow-id>/ and reconstructs them. Every write replaces the
// target file with the complete current value: records are small and
// writes infrequent, so whole-value overwrite is the simplest correct
// strategy.
type FileStore struct {
	root  string
	mutex sync.Mutex
}

// NewFileStore creates a file store rooted at the given directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the storage root directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) workflowDir(workflowID string) string {
	return filepath.Join(s.root, workflowID)
}

func (s *FileStore) taskFile(workflowID, taskID, suffix string) string {
	return filepath.Join(s.workflowDir(workflowID), taskID+suffix)
}

// WritePlan persists a task's plan.
func (s *FileStore) WritePlan(ctx context.Context, workflowID, taskID string, plan *TaskPlan) error {
	return s.writeFile(s.taskFile(workflowID, taskID, planFileSuffix), plan)
}

// WriteCollaborators persists a task's full collaborator list.
func (s *FileStore) WriteCollaborators(ctx context.Context, workflowID, taskID string, agents []AgentInfo) error {
	return s.writeFile(s.taskFile(workflowID, taskID, collaboratorsFileSuffix), agents)
}

// WriteParameterSubstitutions persists a task's full substitution list.
func (s *FileStore) WriteParameterSubstitutions(ctx context.Context, workflowID, taskID string, subs []ParameterSubstitution) error {
	return s.writeFile(s.taskFile(workflowID, taskID, paramsFileSuffix), subs)
}

// WriteTrace persists a task's execution trace.
func (s *FileStore) WriteTrace(ctx context.Context, workflowID, taskID string, trace *ExecutionTrace) error {
	return s.writeFile(s.taskFile(workflowID, taskID, traceFileSuffix), trace)
}

// writeFile serializes the value to a temporary file and renames it into
// place, so readers never observe a partial write. Failures surface as
// PersistenceError and leave any previous file contents intact.
func (s *FileStore) writeFile(path string, value any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

// PartialTaskData is the result of loading a task from disk. Categories
// carry explicit present/absent markers so callers can distinguish "never
// recorded" from "recorded as empty".
type PartialTaskData struct {
	TaskID           string
	Plan             *TaskPlan
	Collaborators    []AgentInfo
	HasCollaborators bool
	Substitutions    []ParameterSubstitution
	HasSubstitutions bool
	Trace            *ExecutionTrace
}

// Empty reports whether no category was found on disk for the task.
func (d *PartialTaskData) Empty() bool {
	return d.Plan == nil && !d.HasCollaborators && !d.HasSubstitutions && d.Trace == nil
}

// LoadTask reads whichever record files exist for the task. A corrupted
// file does not abort the load: sibling categories still load, and the
// returned error joins one CorruptedRecordError per unreadable file.
func (s *FileStore) LoadTask(ctx context.Context, workflowID, taskID string) (*PartialTaskData, error) {
	data := &PartialTaskData{TaskID: taskID}
	var loadErrs []error

	var plan TaskPlan
	found, err := s.readFile(s.taskFile(workflowID, taskID, planFileSuffix), &plan)
	if err != nil {
		loadErrs = append(loadErrs, err)
	} else if found {
		data.Plan = &plan
	}

	var agents []AgentInfo
	found, err = s.readFile(s.taskFile(workflowID, taskID, collaboratorsFileSuffix), &agents)
	if err != nil {
		loadErrs = append(loadErrs, err)
	} else if found {
		data.Collaborators = agents
		data.HasCollaborators = true
	}

	var subs []ParameterSubstitution
	found, err = s.readFile(s.taskFile(workflowID, taskID, paramsFileSuffix), &subs)
	if err != nil {
		loadErrs = append(loadErrs, err)
	} else if found {
		data.Substitutions = subs
		data.HasSubstitutions = true
	}

	var trace ExecutionTrace
	found, err = s.readFile(s.taskFile(workflowID, taskID, traceFileSuffix), &trace)
	if err != nil {
		loadErrs = append(loadErrs, err)
	} else if found {
		data.Trace = &trace
	}

	return data, errors.Join(loadErrs...)
}

// readFile reads and decodes one record file. The boolean reports whether
// the file exists; decode failures return a CorruptedRecordError naming
// the file.
func (s *FileStore) readFile(path string, value any) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &CorruptedRecordError{Path: path, Err: err}
	}
	if err := json.Unmarshal(raw, value); err != nil {
		return false, &CorruptedRecordError{Path: path, Err: err}
	}
	return true, nil
}

// ListTasks returns the sorted task IDs that have at least one record
// file under the workflow directory.
func (s *FileStore) ListTasks(ctx context.Context, workflowID string) ([]string, error) {
	dir := s.workflowDir(workflowID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "*_{plan,collaborators,params,trace}.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow directory %s: %w", dir, err)
	}
	seen := make(map[string]bool)
	var taskIDs []string
	for _, name := range matches {
		taskID := name
		for _, suffix := range []string{planFileSuffix, collaboratorsFileSuffix, paramsFileSuffix, traceFileSuffix} {
			if strings.HasSuffix(name, suffix) {
				taskID = strings.TrimSuffix(name, suffix)
				break
			}
		}
		if !seen[taskID] {
			seen[taskID] = true
			taskIDs = append(taskIDs, taskID)
		}
	}
	sort.Strings(taskIDs)
	return taskIDs, nil
}
