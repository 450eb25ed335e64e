package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/pipeflow/types"
)

// GormStore implements Store on a GORM database handle. It works
// against PostgreSQL, MySQL, and SQLite without dialect branches.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore creates a store on db. Run Migrate before first use.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "store")),
	}
}

// Migrate creates or updates the schema for every persisted model.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// --- Definitions ---

func (s *GormStore) CreateDefinition(ctx context.Context, def *PipelineDefinition) error {
	if def.Version == 0 {
		def.Version = 1
	}
	if def.Status == "" {
		def.Status = DefinitionDraft
	}
	if err := s.db.WithContext(ctx).Create(def).Error; err != nil {
		return fmt.Errorf("create definition: %w", err)
	}
	return nil
}

func (s *GormStore) GetDefinition(ctx context.Context, id string, scope Scope) (*PipelineDefinition, error) {
	var def PipelineDefinition
	q := s.scopedDefinitions(ctx, scope).Where("id = ?", id)
	if err := q.First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrWorkflowNotFound, "definition %s not found", id).WithEntityID(id)
		}
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return &def, nil
}

func (s *GormStore) ListDefinitions(ctx context.Context, scope Scope, offset, limit int) ([]*PipelineDefinition, int64, error) {
	var total int64
	if err := s.scopedDefinitions(ctx, scope).Model(&PipelineDefinition{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count definitions: %w", err)
	}

	var defs []*PipelineDefinition
	err := s.scopedDefinitions(ctx, scope).
		Order("created_at DESC").Offset(offset).Limit(normalizeLimit(limit)).Find(&defs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list definitions: %w", err)
	}
	return defs, total, nil
}

// UpdateDefinition writes def conditionally on the version the caller
// read and bumps it on success. The update only touches rows visible
// under scope, so a caller cannot overwrite a definition it could not
// read.
func (s *GormStore) UpdateDefinition(ctx context.Context, def *PipelineDefinition, scope Scope) error {
	res := s.scopedDefinitions(ctx, scope).
		Model(&PipelineDefinition{}).
		Where("id = ? AND version = ?", def.ID, def.Version).
		Updates(map[string]any{
			"version":        def.Version + 1,
			"name":           def.Name,
			"description":    def.Description,
			"dag_definition": def.DAGDefinition,
			"status":         def.Status,
			"step_count":     def.StepCount,
		})
	if res.Error != nil {
		return fmt.Errorf("update definition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		err := s.scopedDefinitions(ctx, scope).
			Model(&PipelineDefinition{}).Where("id = ?", def.ID).Count(&count).Error
		if err == nil && count == 0 {
			return types.Errorf(types.ErrWorkflowNotFound, "definition %s not found", def.ID).WithEntityID(def.ID)
		}
		return types.Errorf(types.ErrOptimisticLock,
			"definition %s was modified concurrently", def.ID).WithEntityID(def.ID).WithRetryable(true)
	}
	def.Version++
	return nil
}

func (s *GormStore) DeleteDefinition(ctx context.Context, id string, scope Scope) error {
	res := s.scopedDefinitions(ctx, scope).Where("id = ?", id).Delete(&PipelineDefinition{})
	if res.Error != nil {
		return fmt.Errorf("delete definition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Errorf(types.ErrWorkflowNotFound, "definition %s not found", id).WithEntityID(id)
	}
	return nil
}

func (s *GormStore) scopedDefinitions(ctx context.Context, scope Scope) *gorm.DB {
	q := s.db.WithContext(ctx)
	if scope.service() {
		return q
	}
	if scope.IncludeSystem {
		return q.Where("user_id = ? OR system_owned = ?", scope.UserID, true)
	}
	return q.Where("user_id = ?", scope.UserID)
}

// --- Executions ---

func (s *GormStore) CreateExecution(ctx context.Context, exec *PipelineExecution) error {
	if exec.Version == 0 {
		exec.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

func (s *GormStore) GetExecution(ctx context.Context, id string) (*PipelineExecution, error) {
	var exec PipelineExecution
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&exec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrWorkflowNotFound, "execution %s not found", id).WithEntityID(id)
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return &exec, nil
}

func (s *GormStore) UpdateExecution(ctx context.Context, exec *PipelineExecution) error {
	res := s.db.WithContext(ctx).
		Model(&PipelineExecution{}).
		Where("id = ? AND version = ?", exec.ID, exec.Version).
		Updates(map[string]any{
			"version":             exec.Version + 1,
			"status":              exec.Status,
			"start_time":          exec.StartTime,
			"end_time":            exec.EndTime,
			"progress_percentage": exec.ProgressPercentage,
			"final_outputs":       exec.FinalOutputs,
			"error_info":          SanitizeMessage(exec.ErrorInfo),
		})
	if res.Error != nil {
		return fmt.Errorf("update execution: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.conflictOrMissing(ctx, &PipelineExecution{}, exec.ID)
	}
	exec.Version++
	return nil
}

func (s *GormStore) ListExecutions(ctx context.Context, filter ExecutionFilter, offset, limit int) ([]*PipelineExecution, int64, error) {
	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&PipelineExecution{})
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Initiator != "" {
			q = q.Where("initiator = ?", filter.Initiator)
		}
		if filter.Since != nil {
			q = q.Where("created_at >= ?", *filter.Since)
		}
		if filter.Until != nil {
			q = q.Where("created_at < ?", *filter.Until)
		}
		return q
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	var execs []*PipelineExecution
	err := filtered().Order("created_at DESC").Offset(offset).Limit(normalizeLimit(limit)).Find(&execs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	return execs, total, nil
}

// --- Steps ---

// CreateStepBatch inserts all step rows of an execution in one
// transaction so a half-created execution never becomes visible.
func (s *GormStore) CreateStepBatch(ctx context.Context, steps []*StepExecution) error {
	if len(steps) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, step := range steps {
			if step.Version == 0 {
				step.Version = 1
			}
			if err := tx.Create(step).Error; err != nil {
				return fmt.Errorf("create step %s: %w", step.StepID, err)
			}
		}
		return nil
	})
}

func (s *GormStore) GetStep(ctx context.Context, id string) (*StepExecution, error) {
	var step StepExecution
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&step).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrWorkflowNotFound, "step %s not found", id).WithEntityID(id)
		}
		return nil, fmt.Errorf("get step: %w", err)
	}
	return &step, nil
}

func (s *GormStore) GetStepsByExecution(ctx context.Context, executionID string) ([]*StepExecution, error) {
	var steps []*StepExecution
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("sequence_number ASC").
		Find(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return steps, nil
}

func (s *GormStore) UpdateStep(ctx context.Context, step *StepExecution) error {
	res := s.db.WithContext(ctx).
		Model(&StepExecution{}).
		Where("id = ? AND version = ?", step.ID, step.Version).
		Updates(map[string]any{
			"version":              step.Version + 1,
			"status":               step.Status,
			"start_time":           step.StartTime,
			"end_time":             step.EndTime,
			"progress":             step.Progress,
			"outputs":              JSONMap(SanitizeOutputs(step.Outputs)),
			"error_message":        SanitizeMessage(step.ErrorMessage),
			"retry_count":          step.RetryCount,
			"awaiting_event":       step.AwaitingEvent,
			"external_workflow_id": step.ExternalWorkflowID,
			"handler_type":         step.HandlerType,
			"timeout_at":           step.TimeoutAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update step: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.conflictOrMissing(ctx, &StepExecution{}, step.ID)
	}
	step.Version++
	return nil
}

func (s *GormStore) GetStepByCorrelation(ctx context.Context, externalWorkflowID string) (*StepExecution, error) {
	var step StepExecution
	err := s.db.WithContext(ctx).
		Where("external_workflow_id = ? AND awaiting_event = ?", externalWorkflowID, true).
		First(&step).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.Errorf(types.ErrWorkflowNotFound,
				"no awaiting step for correlation %s", externalWorkflowID).WithEntityID(externalWorkflowID)
		}
		return nil, fmt.Errorf("get step by correlation: %w", err)
	}
	return &step, nil
}

// --- Timeout sweeping ---

func (s *GormStore) ListAwaitingOverdue(ctx context.Context, now time.Time, limit int) ([]*StepExecution, error) {
	var steps []*StepExecution
	err := s.db.WithContext(ctx).
		Where("awaiting_event = ? AND timeout_at IS NOT NULL AND timeout_at <= ?", true, now).
		Order("timeout_at ASC").
		Limit(normalizeLimit(limit)).
		Find(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("list overdue steps: %w", err)
	}
	return steps, nil
}

func (s *GormStore) GetAwaitingStats(ctx context.Context) (*AwaitingStats, error) {
	stats := &AwaitingStats{}
	err := s.db.WithContext(ctx).
		Model(&StepExecution{}).
		Where("awaiting_event = ?", true).
		Count(&stats.Count).Error
	if err != nil {
		return nil, fmt.Errorf("count awaiting steps: %w", err)
	}
	if stats.Count == 0 {
		return stats, nil
	}

	var earliest StepExecution
	err = s.db.WithContext(ctx).
		Where("awaiting_event = ? AND timeout_at IS NOT NULL", true).
		Order("timeout_at ASC").
		First(&earliest).Error
	if err == nil && earliest.TimeoutAt != nil {
		stats.EarliestDeadline = earliest.TimeoutAt
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("earliest deadline: %w", err)
	}
	return stats, nil
}

// --- Retention ---

// DeleteTerminalBefore removes terminal executions that ended before
// cutoff, together with their step rows. It returns the number of
// executions removed.
func (s *GormStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&PipelineExecution{}).
		Where("status IN ? AND updated_at < ?", terminalExecutionStatuses(), cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("select expired executions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("execution_id IN ?", ids).Delete(&StepExecution{}).Error; err != nil {
			return fmt.Errorf("delete expired steps: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&PipelineExecution{}).Error; err != nil {
			return fmt.Errorf("delete expired executions: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("retention cleanup removed executions",
		zap.Int("count", len(ids)),
		zap.Time("cutoff", cutoff))
	return int64(len(ids)), nil
}

func terminalExecutionStatuses() []types.ExecutionStatus {
	return []types.ExecutionStatus{
		types.ExecutionCompleted,
		types.ExecutionFailed,
		types.ExecutionInterrupted,
	}
}

// conflictOrMissing classifies a zero-row conditional update: a stale
// version if the row exists, not found otherwise.
func (s *GormStore) conflictOrMissing(ctx context.Context, model any, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err == nil && count == 0 {
		return types.Errorf(types.ErrWorkflowNotFound, "record %s not found", id).WithEntityID(id)
	}
	return types.Errorf(types.ErrOptimisticLock,
		"record %s was modified concurrently", id).WithEntityID(id).WithRetryable(true)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
