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

const quoteColumns = `id, quote_number, owner_id, customer_name, customer_email, customer_company,
	title, description, total_amount, discount_percent, custom_payment_terms,
	status, workflow_customized, version,
	submitted_at, approved_at, rejected_at, terminated_at,
	termination_reason, terminated_by, created_at, updated_at`

// QuoteRepository implements port.QuoteRepository
type QuoteRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewQuoteRepository creates a new quote repository
func NewQuoteRepository(db *sql.DB, logger *zap.Logger) port.QuoteRepository {
	return &QuoteRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new quote
func (r *QuoteRepository) Create(ctx context.Context, quote *entity.Quote) error {
	query := `
		INSERT INTO quotes (
			id, quote_number, owner_id, customer_name, customer_email, customer_company,
			title, description, total_amount, discount_percent, custom_payment_terms,
			status, workflow_customized, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		quote.ID,
		quote.QuoteNumber,
		quote.OwnerID,
		quote.CustomerName,
		quote.CustomerEmail,
		quote.CustomerCompany,
		quote.Title,
		quote.Description,
		quote.TotalAmount,
		quote.DiscountPercent,
		quote.CustomPaymentTerms,
		quote.Status.String(),
		quote.WorkflowCustomized,
		quote.Version,
		quote.CreatedAt,
		quote.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create quote", zap.Error(err))
		return fmt.Errorf("failed to create quote: %w", err)
	}

	return nil
}

// GetByID retrieves a quote by ID
func (r *QuoteRepository) GetByID(ctx context.Context, id string) (*entity.Quote, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE id = ?`, quoteColumns)

	quote, err := scanQuote(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get quote by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	return quote, nil
}

// List retrieves quotes for an owner, newest first
func (r *QuoteRepository) List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Quote, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM quotes
		WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, quoteColumns)

	return r.queryQuotes(ctx, query, ownerID, limit, offset)
}

// ListByStatus retrieves quotes in a given status, newest first
func (r *QuoteRepository) ListByStatus(ctx context.Context, status entity.QuoteStatus, limit, offset int) ([]*entity.Quote, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM quotes
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, quoteColumns)

	return r.queryQuotes(ctx, query, status.String(), limit, offset)
}

// Update persists all mutable quote fields with a compare-and-swap on
// version. Zero rows affected means a concurrent writer won the race.
func (r *QuoteRepository) Update(ctx context.Context, quote *entity.Quote) error {
	query := `
		UPDATE quotes
		SET customer_name = ?, customer_email = ?, customer_company = ?,
			title = ?, description = ?, total_amount = ?, discount_percent = ?,
			custom_payment_terms = ?, status = ?, workflow_customized = ?,
			submitted_at = ?, approved_at = ?, rejected_at = ?, terminated_at = ?,
			termination_reason = ?, terminated_by = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	now := time.Now()
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		quote.CustomerName,
		quote.CustomerEmail,
		quote.CustomerCompany,
		quote.Title,
		quote.Description,
		quote.TotalAmount,
		quote.DiscountPercent,
		quote.CustomPaymentTerms,
		quote.Status.String(),
		quote.WorkflowCustomized,
		quote.SubmittedAt,
		quote.ApprovedAt,
		quote.RejectedAt,
		quote.TerminatedAt,
		quote.TerminationReason,
		quote.TerminatedBy,
		now,
		quote.ID,
		quote.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update quote", zap.String("id", quote.ID), zap.Error(err))
		return fmt.Errorf("failed to update quote: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: quote %s was modified concurrently", workflow.ErrConflict, quote.ID)
	}

	quote.Version++
	quote.UpdatedAt = now
	return nil
}

// Delete removes a quote; steps and items cascade at the schema level
func (r *QuoteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.getExecutor(ctx).ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete quote", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete quote: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: quote %s", workflow.ErrNotFound, id)
	}

	return nil
}

func (r *QuoteRepository) queryQuotes(ctx context.Context, query string, args ...interface{}) ([]*entity.Quote, error) {
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list quotes", zap.Error(err))
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []*entity.Quote
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, quote)
	}

	return quotes, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanQuote(s scanner) (*entity.Quote, error) {
	var (
		quote       entity.Quote
		status      string
		submittedAt sql.NullTime
		approvedAt  sql.NullTime
		rejectedAt  sql.NullTime
		terminated  sql.NullTime
	)

	err := s.Scan(
		&quote.ID,
		&quote.QuoteNumber,
		&quote.OwnerID,
		&quote.CustomerName,
		&quote.CustomerEmail,
		&quote.CustomerCompany,
		&quote.Title,
		&quote.Description,
		&quote.TotalAmount,
		&quote.DiscountPercent,
		&quote.CustomPaymentTerms,
		&status,
		&quote.WorkflowCustomized,
		&quote.Version,
		&submittedAt,
		&approvedAt,
		&rejectedAt,
		&terminated,
		&quote.TerminationReason,
		&quote.TerminatedBy,
		&quote.CreatedAt,
		&quote.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	quote.Status = entity.QuoteStatus(status)
	if submittedAt.Valid {
		quote.SubmittedAt = &submittedAt.Time
	}
	if approvedAt.Valid {
		quote.ApprovedAt = &approvedAt.Time
	}
	if rejectedAt.Valid {
		quote.RejectedAt = &rejectedAt.Time
	}
	if terminated.Valid {
		quote.TerminatedAt = &terminated.Time
	}

	return &quote, nil
}

// getExecutor returns the context's transaction when present, the pool otherwise
func (r *QuoteRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.QuoteRepository = (*QuoteRepository)(nil)
