package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/quoteflow/cpq-backend/internal/application/port"
	"github.com/quoteflow/cpq-backend/internal/domain/entity"
	"github.com/quoteflow/cpq-backend/internal/infrastructure/persistence/sqlite"
)

// ItemRepository implements port.ItemRepository
type ItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewItemRepository creates a new quote item repository
func NewItemRepository(db *sql.DB, logger *zap.Logger) port.ItemRepository {
	return &ItemRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts a quote's line items
func (r *ItemRepository) CreateBatch(ctx context.Context, items []*entity.QuoteItem) error {
	query := `
		INSERT INTO quote_items (
			id, quote_id, name, description, quantity, unit_price, total_price, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.getExecutor(ctx)
	for _, item := range items {
		_, err := exec.ExecContext(ctx, query,
			item.ID,
			item.QuoteID,
			item.Name,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			item.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create quote item",
				zap.String("quote_id", item.QuoteID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to create quote item: %w", err)
		}
	}

	return nil
}

// GetByQuoteID retrieves all line items for a quote
func (r *ItemRepository) GetByQuoteID(ctx context.Context, quoteID string) ([]*entity.QuoteItem, error) {
	query := `
		SELECT id, quote_id, name, description, quantity, unit_price, total_price, created_at
		FROM quote_items
		WHERE quote_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, quoteID)
	if err != nil {
		r.logger.Error("Failed to get items by quote ID", zap.String("quote_id", quoteID), zap.Error(err))
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer rows.Close()

	var items []*entity.QuoteItem
	for rows.Next() {
		var item entity.QuoteItem
		err := rows.Scan(
			&item.ID,
			&item.QuoteID,
			&item.Name,
			&item.Description,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// CountByQuoteID returns the number of line items on a quote
func (r *ItemRepository) CountByQuoteID(ctx context.Context, quoteID string) (int, error) {
	var count int
	err := r.getExecutor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quote_items WHERE quote_id = ?`, quoteID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// DeleteByQuoteID removes all line items for a quote
func (r *ItemRepository) DeleteByQuoteID(ctx context.Context, quoteID string) error {
	_, err := r.getExecutor(ctx).ExecContext(ctx,
		`DELETE FROM quote_items WHERE quote_id = ?`, quoteID,
	)
	if err != nil {
		r.logger.Error("Failed to delete items", zap.String("quote_id", quoteID), zap.Error(err))
		return fmt.Errorf("failed to delete items: %w", err)
	}
	return nil
}

// getExecutor returns the context's transaction when present, the pool otherwise
func (r *ItemRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

// Verify interface compliance
var _ port.ItemRepository = (*ItemRepository)(nil)
