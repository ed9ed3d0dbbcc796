package port

import (
	"context"

	"github.com/quoteflow/cpq-backend/internal/domain/entity"
)

// QuoteRepository defines persistence operations for Quote
type QuoteRepository interface {
	Create(ctx context.Context, quote *entity.Quote) error
	GetByID(ctx context.Context, id string) (*entity.Quote, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Quote, error)
	ListByStatus(ctx context.Context, status entity.QuoteStatus, limit, offset int) ([]*entity.Quote, error)

	// Update persists all mutable quote fields. The write is a
	// compare-and-swap on the Version column: it fails with zero rows
	// affected when another writer got there first, which the
	// implementation surfaces as workflow.ErrConflict. On success the
	// quote's Version is incremented in place.
	Update(ctx context.Context, quote *entity.Quote) error

	// Delete removes the quote; workflow steps and items go with it
	// (cascade).
	Delete(ctx context.Context, id string) error
}

// StepRepository defines persistence operations for WorkflowStep
type StepRepository interface {
	CreateBatch(ctx context.Context, steps []*entity.WorkflowStep) error
	GetByID(ctx context.Context, id string) (*entity.WorkflowStep, error)
	GetByQuoteID(ctx context.Context, quoteID string) ([]*entity.WorkflowStep, error)
	CountByQuoteID(ctx context.Context, quoteID string) (int, error)

	// RecordDecision moves a step out of pending. The write is guarded
	// by `status = 'pending'`: zero rows affected means a concurrent
	// decision won, surfaced as workflow.ErrConflict.
	RecordDecision(ctx context.Context, step *entity.WorkflowStep) error

	DeleteByQuoteID(ctx context.Context, quoteID string) error
}

// ItemRepository defines persistence operations for QuoteItem
type ItemRepository interface {
	CreateBatch(ctx context.Context, items []*entity.QuoteItem) error
	GetByQuoteID(ctx context.Context, quoteID string) ([]*entity.QuoteItem, error)
	CountByQuoteID(ctx context.Context, quoteID string) (int, error)
	DeleteByQuoteID(ctx context.Context, quoteID string) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
