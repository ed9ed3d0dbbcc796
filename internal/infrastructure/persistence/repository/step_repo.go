package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quoteflow/cpq-backend/internal/application/port"
	"github.com/quoteflow/cpq-backend/internal/domain/entity"
	"github.com/quoteflow/cpq-backend/internal/domain/workflow"
	"github.com/quoteflow/cpq-backend/internal/infrastructure/persistence/sqlite"
)

const stepColumns = `id, quote_id, persona, position, status, auto_approved,
	decided_at, decided_by, comments, rejection_reason, created_at, updated_at`

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStepRepository creates a new workflow step repository
func NewStepRepository(db *sql.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a full chain of steps in one statement per step
func (r *StepRepository) CreateBatch(ctx context.Context, steps []*entity.WorkflowStep) error {
	query := `
		INSERT INTO workflow_steps (
			id, quote_id, persona, position, status, auto_approved,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.getExecutor(ctx)
	for _, step := range steps {
		_, err := exec.ExecContext(ctx, query,
			step.ID,
			step.QuoteID,
			step.Persona.String(),
			step.Position,
			step.Status,
			step.AutoApproved,
			step.CreatedAt,
			step.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create workflow step",
				zap.String("quote_id", step.QuoteID),
				zap.Int("position", step.Position),
				zap.Error(err),
			)
			return fmt.Errorf("failed to create workflow step: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a workflow step by ID
func (r *StepRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowStep, error) {
	query := fmt.Sprintf(`SELECT %s FROM workflow_steps WHERE id = ?`, stepColumns)

	step, err := scanStep(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get step by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get step: %w", err)
	}

	return step, nil
}

// GetByQuoteID retrieves all steps for a quote in position order
func (r *StepRepository) GetByQuoteID(ctx context.Context, quoteID string) ([]*entity.WorkflowStep, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM workflow_steps
		WHERE quote_id = ?
		ORDER BY position ASC
	`, stepColumns)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, quoteID)
	if err != nil {
		r.logger.Error("Failed to get steps by quote ID", zap.String("quote_id", quoteID), zap.Error(err))
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.WorkflowStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, step)
	}

	return steps, rows.Err()
}

// CountByQuoteID returns the number of steps stored for a quote
func (r *StepRepository) CountByQuoteID(ctx context.Context, quoteID string) (int, error) {
	var count int
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_steps WHERE quote_id = ?`, quoteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count steps: %w", err)
	}
	return count, nil
}

// RecordDecision writes a step's resolution. The write is guarded by the
// pending status so a concurrent decision on the same step loses with
// workflow.ErrConflict instead of silently overwriting.
func (r *StepRepository) RecordDecision(ctx context.Context, step *entity.WorkflowStep) error {
	query := `
		UPDATE workflow_steps
		SET status = ?, auto_approved = ?, decided_at = ?, decided_by = ?,
			comments = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	now := time.Now()
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		step.Status,
		step.AutoApproved,
		step.DecidedAt,
		step.DecidedBy,
		step.Comments,
		step.RejectionReason,
		now,
		step.ID,
	)
	if err != nil {
		r.logger.Error("Failed to record step decision", zap.String("id", step.ID), zap.Error(err))
		return fmt.Errorf("failed to record step decision: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: step %s was decided concurrently", workflow.ErrConflict, step.ID)
	}

	step.UpdatedAt = now
	return nil
}

// DeleteByQuoteID removes all steps for a quote
func (r *StepRepository) DeleteByQuoteID(ctx context.Context, quoteID string) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx,
		`DELETE FROM workflow_steps WHERE quote_id = ?`, quoteID,
	)
	if err != nil {
		r.logger.Error("Failed to delete steps", zap.String("quote_id", quoteID), zap.Error(err))
		return fmt.Errorf("failed to delete steps: %w", err)
	}
	return nil
}

func scanStep(s scanner) (*entity.WorkflowStep, error) {
	var (
		step      entity.WorkflowStep
		persona   string
		status    string
		decidedAt sql.NullTime
	)

	err := s.Scan(
		&step.ID,
		&step.QuoteID,
		&persona,
		&step.Position,
		&status,
		&step.AutoApproved,
		&decidedAt,
		&step.DecidedBy,
		&step.Comments,
		&step.RejectionReason,
		&step.CreatedAt,
		&step.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	step.Persona = entity.Persona(persona)
	step.Status = entity.StepStatus(status)
	if decidedAt.Valid {
		step.DecidedAt = &decidedAt.Time
	}

	return &step, nil
}

// getExecutor returns the context's transaction when present, the pool otherwise
func (r *StepRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.StepRepository = (*StepRepository)(nil)
