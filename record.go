package chronicle

import "time"

// AgentInfo represents one agent's participation window in a task. An
// agent may appear multiple times with different JoinedAt values if it
// leaves and rejoins.
type AgentInfo struct {
	AgentID      string    `json:"agentID"`
	AgentName    string    `json:"agentName"`
	Role         string    `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
	Capabilities []string  `json:"capabilities,omitempty"`
}

// Validate checks required agent fields.
func (a *AgentInfo) Validate() error {
	if a.AgentID == "" {
		return validationErrorf("agent ID is required")
	}
	return nil
}

// ParameterSubstitution records a runtime parameter change. Old and new
// values are stored as canonical string representations to keep the
// record format type-erased. A substitution without a non-empty Reason is
// a data-quality violation and is rejected.
type ParameterSubstitution struct {
	ParamName string    `json:"paramName"`
	OldValue  string    `json:"oldValue"`
	NewValue  string    `json:"newValue"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agentID,omitempty"`
}

// Validate checks required substitution fields.
func (s *ParameterSubstitution) Validate() error {
	if s.ParamName == "" {
		return validationErrorf("substitution parameter name is required")
	}
	if s.Reason == "" {
		return validationErrorf("substitution of %q requires a reason", s.ParamName)
	}
	return nil
}
