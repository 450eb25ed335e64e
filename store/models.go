package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/pipeflow/types"
)

// DefinitionStatus is the lifecycle state of a stored pipeline definition.
type DefinitionStatus string

const (
	DefinitionDraft    DefinitionStatus = "draft"
	DefinitionActive   DefinitionStatus = "active"
	DefinitionArchived DefinitionStatus = "archived"
)

// JSONMap stores a map as a JSON column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json map: %w", err)
	}
	return string(data), nil
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported json map source type %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// StringSlice stores a list of strings as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal string slice: %w", err)
	}
	return string(data), nil
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported string slice source type %T", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}

// PipelineDefinition is a stored, reusable workflow definition.
type PipelineDefinition struct {
	ID            string           `gorm:"primaryKey;size:36" json:"id"`
	Version       int64            `gorm:"not null;default:1" json:"version"`
	Name          string           `gorm:"size:255;not null;index" json:"name"`
	Description   string           `gorm:"type:text" json:"description"`
	DAGDefinition string           `gorm:"type:text;not null" json:"dag_definition"`
	Status        DefinitionStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	UserID        string           `gorm:"size:64;index" json:"user_id"`
	SystemOwned   bool             `gorm:"not null;default:false" json:"system_owned"`
	StepCount     int              `gorm:"not null;default:0" json:"step_count"`
	CreatedBy     string           `gorm:"size:64" json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (PipelineDefinition) TableName() string { return "pipeline_definitions" }

// PipelineExecution is one run of a pipeline. PipelineID is nil for
// ephemeral runs submitted with an inline definition.
type PipelineExecution struct {
	ID                 string                `gorm:"primaryKey;size:36" json:"id"`
	Version            int64                 `gorm:"not null;default:1" json:"version"`
	PipelineID         *string               `gorm:"size:36;index" json:"pipeline_id,omitempty"`
	DefinitionSnapshot string                `gorm:"type:text;not null" json:"definition_snapshot"`
	InputParams        JSONMap               `gorm:"type:text" json:"input_params,omitempty"`
	Initiator          string                `gorm:"size:64;index" json:"initiator"`
	UserID             string                `gorm:"size:64;index" json:"user_id"`
	StartTime          *time.Time            `json:"start_time,omitempty"`
	EndTime            *time.Time            `json:"end_time,omitempty"`
	Status             types.ExecutionStatus `gorm:"size:20;not null;index" json:"status"`
	ProgressPercentage float64               `gorm:"not null;default:0" json:"progress_percentage"`
	FinalOutputs       JSONMap               `gorm:"type:text" json:"final_outputs,omitempty"`
	ErrorInfo          string                `gorm:"type:text" json:"error_info,omitempty"`
	CallbackTopics     StringSlice           `gorm:"type:text" json:"callback_topics,omitempty"`
	CorrelationID      string                `gorm:"size:128;index" json:"correlation_id,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func (PipelineExecution) TableName() string { return "pipeline_executions" }

// StepExecution is the state of one DAG step within an execution.
type StepExecution struct {
	ID                 string           `gorm:"primaryKey;size:36" json:"id"`
	ExecutionID        string           `gorm:"size:36;not null;index:idx_step_exec;uniqueIndex:idx_exec_step,priority:1" json:"execution_id"`
	Version            int64            `gorm:"not null;default:1" json:"version"`
	StepID             string           `gorm:"size:128;not null;uniqueIndex:idx_exec_step,priority:2" json:"step_id"`
	StepName           string           `gorm:"size:255" json:"step_name"`
	Status             types.StepStatus `gorm:"size:20;not null;index" json:"status"`
	StartTime          *time.Time       `json:"start_time,omitempty"`
	EndTime            *time.Time       `json:"end_time,omitempty"`
	Progress           float64          `gorm:"not null;default:0" json:"progress"`
	Outputs            JSONMap          `gorm:"type:text" json:"outputs,omitempty"`
	ErrorMessage       string           `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount         int              `gorm:"not null;default:0" json:"retry_count"`
	SequenceNumber     int              `gorm:"not null" json:"sequence_number"`
	AwaitingEvent      bool             `gorm:"not null;default:false;index" json:"awaiting_event"`
	ExternalWorkflowID string           `gorm:"size:128;index" json:"external_workflow_id,omitempty"`
	HandlerType        string           `gorm:"size:64" json:"handler_type"`
	TimeoutAt          *time.Time       `gorm:"index" json:"timeout_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func (StepExecution) TableName() string { return "step_executions" }

// Models lists every persisted model for migration.
func Models() []any {
	return []any{
		&PipelineDefinition{},
		&PipelineExecution{},
		&StepExecution{},
	}
}
