package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quoteflow/cpq-backend/internal/application/port"
	"github.com/quoteflow/cpq-backend/internal/domain/entity"
	"github.com/quoteflow/cpq-backend/internal/domain/workflow"
	"github.com/quoteflow/cpq-backend/pkg/utils"
)

// CreateQuoteInput carries the fields an account executive supplies
// when opening a new quote
type CreateQuoteInput struct {
	OwnerID            string
	CustomerName       string
	CustomerEmail      string
	CustomerCompany    string
	Title              string
	Description        string
	DiscountPercent    float64
	CustomPaymentTerms bool
	Items              []QuoteItemInput
}

// QuoteItemInput is a single line item on a quote
type QuoteItemInput struct {
	ProductName string
	Description string
	Quantity    int
	UnitPrice   float64
}

// UpdateQuoteInput carries editable quote fields. Nil pointers leave the
// stored value unchanged; a non-nil Items slice replaces all line items.
type UpdateQuoteInput struct {
	CustomerName       *string
	CustomerEmail      *string
	CustomerCompany    *string
	Title              *string
	Description        *string
	DiscountPercent    *float64
	CustomPaymentTerms *bool
	Items              []QuoteItemInput
}

// QuoteService manages quote lifecycle outside the approval chain
type QuoteService interface {
	Create(ctx context.Context, input CreateQuoteInput) (*entity.Quote, error)
	Get(ctx context.Context, quoteID string) (*entity.Quote, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Quote, error)
	ListByStatus(ctx context.Context, status entity.QuoteStatus, limit, offset int) ([]*entity.Quote, error)
	Update(ctx context.Context, quoteID, actorID string, input UpdateQuoteInput) (*entity.Quote, error)
	Delete(ctx context.Context, quoteID, actorID string) error
}

type quoteServiceImpl struct {
	quoteRepo port.QuoteRepository
	itemRepo  port.ItemRepository
	stepRepo  port.StepRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewQuoteService creates a new QuoteService
func NewQuoteService(
	quoteRepo port.QuoteRepository,
	itemRepo port.ItemRepository,
	stepRepo port.StepRepository,
	txManager port.TransactionManager,
	logger Logger,
) QuoteService {
	return &quoteServiceImpl{
		quoteRepo: quoteRepo,
		itemRepo:  itemRepo,
		stepRepo:  stepRepo,
		txManager: txManager,
		logger:    logger,
	}
}

// Create opens a new draft quote with its line items
func (s *quoteServiceImpl) Create(ctx context.Context, input CreateQuoteInput) (*entity.Quote, error) {
	if err := validateQuoteFields(input.OwnerID, input.CustomerName, strings.TrimSpace(input.CustomerEmail), input.DiscountPercent); err != nil {
		return nil, err
	}
	items, total, err := buildItems("", input.Items)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	quote := &entity.Quote{
		ID:                 uuid.NewString(),
		QuoteNumber:        newQuoteNumber(now),
		OwnerID:            input.OwnerID,
		CustomerName:       strings.TrimSpace(input.CustomerName),
		CustomerEmail:      strings.TrimSpace(input.CustomerEmail),
		CustomerCompany:    strings.TrimSpace(input.CustomerCompany),
		Title:              strings.TrimSpace(input.Title),
		Description:        utils.SanitizeString(input.Description),
		TotalAmount:        total,
		DiscountPercent:    input.DiscountPercent,
		CustomPaymentTerms: input.CustomPaymentTerms,
		Status:             entity.QuoteStatusDraft,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for _, item := range items {
		item.QuoteID = quote.ID
	}
	quote.Items = items

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.quoteRepo.Create(txCtx, quote); err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		return s.itemRepo.CreateBatch(txCtx, items)
	})
	if err != nil {
		s.logger.Error("Failed to create quote", "error", err, "owner_id", input.OwnerID)
		return nil, err
	}

	s.logger.Info("Quote created", "quote_id", quote.ID, "quote_number", quote.QuoteNumber, "items", len(items))
	return quote, nil
}

// Get returns a quote with its line items
func (s *quoteServiceImpl) Get(ctx context.Context, quoteID string) (*entity.Quote, error) {
	quote, err := s.quoteRepo.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, fmt.Errorf("%w: quote %s", workflow.ErrNotFound, quoteID)
	}

	items, err := s.itemRepo.GetByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	quote.Items = items
	return quote, nil
}

// List returns quotes owned by the given user, newest first
func (s *quoteServiceImpl) List(ctx context.Context, ownerID string, limit, offset int) ([]*entity.Quote, error) {
	limit, offset = clampPage(limit, offset)
	return s.quoteRepo.List(ctx, ownerID, limit, offset)
}

// ListByStatus returns quotes in the given status, newest first
func (s *quoteServiceImpl) ListByStatus(ctx context.Context, status entity.QuoteStatus, limit, offset int) ([]*entity.Quote, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", workflow.ErrValidation, status)
	}
	limit, offset = clampPage(limit, offset)
	return s.quoteRepo.ListByStatus(ctx, status, limit, offset)
}

// Update edits a draft quote. Editing is owner-only and only possible
// before submission; a changed discount or payment-terms flag feeds the
// next workflow preview automatically.
func (s *quoteServiceImpl) Update(ctx context.Context, quoteID, actorID string, input UpdateQuoteInput) (*entity.Quote, error) {
	var quote *entity.Quote
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		quote, err = s.quoteRepo.GetByID(txCtx, quoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return fmt.Errorf("%w: quote %s", workflow.ErrNotFound, quoteID)
		}
		if !quote.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the quote owner may edit", workflow.ErrAuthorization)
		}
		if !quote.Status.IsDraft() {
			return fmt.Errorf("%w: quote can only be edited before submission (status %s)", workflow.ErrInvalidState, quote.Status)
		}

		applyStringField(&quote.CustomerName, input.CustomerName)
		applyStringField(&quote.CustomerEmail, input.CustomerEmail)
		applyStringField(&quote.CustomerCompany, input.CustomerCompany)
		applyStringField(&quote.Title, input.Title)
		if input.Description != nil {
			quote.Description = utils.SanitizeString(*input.Description)
		}
		if input.DiscountPercent != nil {
			quote.DiscountPercent = *input.DiscountPercent
		}
		if input.CustomPaymentTerms != nil {
			quote.CustomPaymentTerms = *input.CustomPaymentTerms
		}
		if err := validateQuoteFields(quote.OwnerID, quote.CustomerName, quote.CustomerEmail, quote.DiscountPercent); err != nil {
			return err
		}

		if input.Items != nil {
			items, total, err := buildItems(quote.ID, input.Items)
			if err != nil {
				return err
			}
			if err := s.itemRepo.DeleteByQuoteID(txCtx, quote.ID); err != nil {
				return err
			}
			if len(items) > 0 {
				if err := s.itemRepo.CreateBatch(txCtx, items); err != nil {
					return err
				}
			}
			quote.TotalAmount = total
			quote.Items = items
		}

		return s.quoteRepo.Update(txCtx, quote)
	})
	if err != nil {
		s.logger.Error("Failed to update quote", "error", err, "quote_id", quoteID)
		return nil, err
	}

	s.logger.Info("Quote updated", "quote_id", quote.ID)
	return quote, nil
}

// Delete removes a quote and everything under it. Approved quotes are
// immutable records and cannot be deleted.
func (s *quoteServiceImpl) Delete(ctx context.Context, quoteID, actorID string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		quote, err := s.quoteRepo.GetByID(txCtx, quoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return fmt.Errorf("%w: quote %s", workflow.ErrNotFound, quoteID)
		}
		if !quote.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the quote owner may delete", workflow.ErrAuthorization)
		}
		if quote.Status == entity.QuoteStatusApproved {
			return fmt.Errorf("%w: approved quotes cannot be deleted", workflow.ErrInvalidState)
		}

		if err := s.stepRepo.DeleteByQuoteID(txCtx, quote.ID); err != nil {
			return err
		}
		if err := s.itemRepo.DeleteByQuoteID(txCtx, quote.ID); err != nil {
			return err
		}
		return s.quoteRepo.Delete(txCtx, quote.ID)
	})
	if err != nil {
		s.logger.Error("Failed to delete quote", "error", err, "quote_id", quoteID)
		return err
	}

	s.logger.Info("Quote deleted", "quote_id", quoteID)
	return nil
}

func validateQuoteFields(ownerID, customerName, customerEmail string, discountPercent float64) error {
	if strings.TrimSpace(ownerID) == "" {
		return fmt.Errorf("%w: owner is required", workflow.ErrValidation)
	}
	if strings.TrimSpace(customerName) == "" {
		return fmt.Errorf("%w: customer name is required", workflow.ErrValidation)
	}
	if customerEmail != "" {
		if err := utils.ValidateEmail(customerEmail); err != nil {
			return fmt.Errorf("%w: %v", workflow.ErrValidation, err)
		}
	}
	if err := utils.ValidateDiscountPercent(discountPercent); err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrValidation, err)
	}
	return nil
}

func buildItems(quoteID string, inputs []QuoteItemInput) ([]*entity.QuoteItem, float64, error) {
	now := time.Now()
	items := make([]*entity.QuoteItem, 0, len(inputs))
	var total float64
	for i, in := range inputs {
		if strings.TrimSpace(in.ProductName) == "" {
			return nil, 0, fmt.Errorf("%w: item %d has no product name", workflow.ErrValidation, i+1)
		}
		if in.Quantity <= 0 {
			return nil, 0, fmt.Errorf("%w: item %d quantity must be positive", workflow.ErrValidation, i+1)
		}
		if err := utils.ValidateAmount(in.UnitPrice); err != nil {
			return nil, 0, fmt.Errorf("%w: item %d: %v", workflow.ErrValidation, i+1, err)
		}
		subtotal := float64(in.Quantity) * in.UnitPrice
		items = append(items, &entity.QuoteItem{
			ID:          uuid.NewString(),
			QuoteID:     quoteID,
			Name:        strings.TrimSpace(in.ProductName),
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TotalPrice:  subtotal,
			CreatedAt:   now,
		})
		total += subtotal
	}
	return items, total, nil
}

func newQuoteNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("Q-%d-%s", now.Year(), suffix)
}

func applyStringField(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
