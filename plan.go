package chronicle

import "time"

// PlanStep is a single intended step within a task plan.
type PlanStep struct {
	StepID          string   `json:"stepID"`
	Description     string   `json:"description"`
	AgentID         string   `json:"agentID"`
	ExpectedInputs  []string `json:"expectedInputs"`
	ExpectedOutputs []string `json:"expectedOutputs"`
	TimeoutSeconds  float64  `json:"timeoutSeconds"`
	IsCritical      bool     `json:"isCritical"`
	Order           int      `json:"order"`
}

// TaskPlan is the intended sequence of steps for a task, established
// before execution. Plans are immutable once recorded.
type TaskPlan struct {
	PlanID         string              `json:"planID"`
	TaskID         string              `json:"taskID"`
	CreatedAt      time.Time           `json:"createdAt"`
	Steps          []PlanStep          `json:"steps"`
	Dependencies   map[string][]string `json:"dependencies,omitempty"`
	RollbackPoints []string            `json:"rollbackPoints,omitempty"`
	Metadata       map[string]any      `json:"metadata,omitempty"`
}

// Validate checks the plan's internal consistency: dependencies may only
// reference step IDs present in Steps, and rollback points must be a
// subset of Steps.
func (p *TaskPlan) Validate() error {
	if p.PlanID == "" {
		return validationErrorf("plan ID is required")
	}
	if len(p.Steps) == 0 {
		return validationErrorf("plan %q has no steps", p.PlanID)
	}
	known := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.StepID == "" {
			return validationErrorf("plan %q: step %d has an empty step ID", p.PlanID, i)
		}
		if known[step.StepID] {
			return validationErrorf("plan %q: duplicate step ID %q", p.PlanID, step.StepID)
		}
		known[step.StepID] = true
	}
	for stepID, prereqs := range p.Dependencies {
		if !known[stepID] {
			return validationErrorf("plan %q: dependency for unknown step %q", p.PlanID, stepID)
		}
		for _, prereq := range prereqs {
			if !known[prereq] {
				return validationErrorf("plan %q: step %q depends on unknown step %q", p.PlanID, stepID, prereq)
			}
		}
	}
	for _, stepID := range p.RollbackPoints {
		if !known[stepID] {
			return validationErrorf("plan %q: rollback point %q is not a plan step", p.PlanID, stepID)
		}
	}
	return nil
}
