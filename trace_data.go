package chronicle

import "fmt"

// TraceEventData is implemented by typed metadata payloads for the trace
// event types whose shape is known. Open-ended metadata remains a plain
// key-value map on TraceEvent.
type TraceEventData interface {
	EventType() TraceEventType
	Validate() error
}

// DecisionData contains metadata for decision events, including validator
// pass/fail payloads received from external components.
type DecisionData struct {
	Decision     string   `json:"decision"`
	Alternatives []string `json:"alternatives,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
}

func (d *DecisionData) EventType() TraceEventType { return TraceDecision }
func (d *DecisionData) Validate() error {
	if d.Decision == "" {
		return validationErrorf("decision is required")
	}
	return nil
}

// ErrorData contains metadata for error events.
type ErrorData struct {
	ErrorType     string `json:"errorType"`
	Message       string `json:"message"`
	IsRecoverable bool   `json:"isRecoverable"`
}

func (d *ErrorData) EventType() TraceEventType { return TraceError }
func (d *ErrorData) Validate() error {
	if d.Message == "" {
		return validationErrorf("error message is required")
	}
	return nil
}

// CheckpointData contains metadata for checkpoint events. Checkpoints are
// purely descriptive; executing a rollback belongs to the workflow engine.
type CheckpointData struct {
	Name   string `json:"name"`
	StepID string `json:"stepID,omitempty"`
}

func (d *CheckpointData) EventType() TraceEventType { return TraceCheckpoint }
func (d *CheckpointData) Validate() error {
	if d.Name == "" {
		return validationErrorf("checkpoint name is required")
	}
	return nil
}

// ParameterChangeData contains metadata for parameter-change events.
type ParameterChangeData struct {
	ParamName string `json:"paramName"`
	OldValue  string `json:"oldValue"`
	NewValue  string `json:"newValue"`
	Reason    string `json:"reason,omitempty"`
}

func (d *ParameterChangeData) EventType() TraceEventType { return TraceParameterChange }
func (d *ParameterChangeData) Validate() error {
	if d.ParamName == "" {
		return validationErrorf("parameter name is required")
	}
	return nil
}

// SetTypedData validates the payload against the event's type and stores
// it in the event's metadata map.
func (e *TraceEvent) SetTypedData(data TraceEventData) error {
	if data == nil {
		return validationErrorf("typed data cannot be nil")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if data.EventType() != e.EventType {
		return validationErrorf("typed data is for %q events, event %q is %q",
			data.EventType(), e.EventID, e.EventType)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	switch d := data.(type) {
	case *DecisionData:
		e.Metadata["decision"] = d.Decision
		if len(d.Alternatives) > 0 {
			e.Metadata["alternatives"] = d.Alternatives
		}
		if d.Rationale != "" {
			e.Metadata["rationale"] = d.Rationale
		}
	case *ErrorData:
		e.Metadata["errorType"] = d.ErrorType
		e.Metadata["message"] = d.Message
		e.Metadata["isRecoverable"] = d.IsRecoverable
	case *CheckpointData:
		e.Metadata["name"] = d.Name
		if d.StepID != "" {
			e.Metadata["stepID"] = d.StepID
		}
	case *ParameterChangeData:
		e.Metadata["paramName"] = d.ParamName
		e.Metadata["oldValue"] = d.OldValue
		e.Metadata["newValue"] = d.NewValue
		if d.Reason != "" {
			e.Metadata["reason"] = d.Reason
		}
	default:
		return validationErrorf("unsupported typed data %T", data)
	}
	return nil
}

// TypedData reconstructs the typed payload from the event's metadata map.
// Returns nil for event types without a known payload shape.
func (e *TraceEvent) TypedData() (TraceEventData, error) {
	if e.Metadata == nil {
		return nil, nil
	}
	switch e.EventType {
	case TraceDecision:
		data := &DecisionData{
			Decision:     metaString(e.Metadata, "decision"),
			Rationale:    metaString(e.Metadata, "rationale"),
			Alternatives: metaStrings(e.Metadata, "alternatives"),
		}
		return data, nil
	case TraceError:
		data := &ErrorData{
			ErrorType: metaString(e.Metadata, "errorType"),
			Message:   metaString(e.Metadata, "message"),
		}
		if recoverable, ok := e.Metadata["isRecoverable"].(bool); ok {
			data.IsRecoverable = recoverable
		}
		return data, nil
	case TraceCheckpoint:
		return &CheckpointData{
			Name:   metaString(e.Metadata, "name"),
			StepID: metaString(e.Metadata, "stepID"),
		}, nil
	case TraceParameterChange:
		return &ParameterChangeData{
			ParamName: metaString(e.Metadata, "paramName"),
			OldValue:  metaString(e.Metadata, "oldValue"),
			NewValue:  metaString(e.Metadata, "newValue"),
			Reason:    metaString(e.Metadata, "reason"),
		}, nil
	default:
		return nil, nil
	}
}

func metaString(metadata map[string]any, key string) string {
	if value, ok := metadata[key]; ok {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return ""
}

func metaStrings(metadata map[string]any, key string) []string {
	value, ok := metadata[key]
	if !ok {
		return nil
	}
	switch list := value.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	}
	return nil
}
