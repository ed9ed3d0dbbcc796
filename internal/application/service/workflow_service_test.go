package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoteflow/cpq-backend/internal/application/dispatcher"
	"github.com/quoteflow/cpq-backend/internal/domain/entity"
	"github.com/quoteflow/cpq-backend/internal/domain/event"
	"github.com/quoteflow/cpq-backend/internal/domain/workflow"
)

// memStore is a map-backed stand-in for the sqlite repositories. The
// orchestrator mutates state across several calls within one scenario,
// so func-field mocks are not enough here; the store keeps the same
// guarantees the real repositories do (version CAS on quotes, a
// pending-only guard on step decisions) and hands out copies so callers
// cannot reach into stored state.
type memStore struct {
	quotes map[string]*entity.Quote
	steps  map[string]*entity.WorkflowStep
	items  map[string][]*entity.QuoteItem
}

func newMemStore() *memStore {
	return &memStore{
		quotes: make(map[string]*entity.Quote),
		steps:  make(map[string]*entity.WorkflowStep),
		items:  make(map[string][]*entity.QuoteItem),
	}
}

func copyQuote(q *entity.Quote) *entity.Quote {
	c := *q
	return &c
}

func copyStep(s *entity.WorkflowStep) *entity.WorkflowStep {
	c := *s
	return &c
}

type memQuoteRepo struct{ store *memStore }

func (r *memQuoteRepo) Create(_ context.Context, quote *entity.Quote) error {
	r.store.quotes[quote.ID] = copyQuote(quote)
	return nil
}

func (r *memQuoteRepo) GetByID(_ context.Context, id string) (*entity.Quote, error) {
	q, ok := r.store.quotes[id]
	if !ok {
		return nil, nil
	}
	return copyQuote(q), nil
}

func (r *memQuoteRepo) List(_ context.Context, ownerID string, _, _ int) ([]*entity.Quote, error) {
	var out []*entity.Quote
	for _, q := range r.store.quotes {
		if q.OwnerID == ownerID {
			out = append(out, copyQuote(q))
		}
	}
	return out, nil
}

func (r *memQuoteRepo) ListByStatus(_ context.Context, status entity.QuoteStatus, _, _ int) ([]*entity.Quote, error) {
	var out []*entity.Quote
	for _, q := range r.store.quotes {
		if q.Status == status {
			out = append(out, copyQuote(q))
		}
	}
	return out, nil
}

func (r *memQuoteRepo) Update(_ context.Context, quote *entity.Quote) error {
	stored, ok := r.store.quotes[quote.ID]
	if !ok || stored.Version != quote.Version {
		return fmt.Errorf("%w: quote %s was modified concurrently", workflow.ErrConflict, quote.ID)
	}
	quote.Version++
	quote.UpdatedAt = time.Now()
	r.store.quotes[quote.ID] = copyQuote(quote)
	return nil
}

func (r *memQuoteRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.store.quotes[id]; !ok {
		return fmt.Errorf("%w: quote %s", workflow.ErrNotFound, id)
	}
	delete(r.store.quotes, id)
	return nil
}

type memStepRepo struct{ store *memStore }

func (r *memStepRepo) CreateBatch(_ context.Context, steps []*entity.WorkflowStep) error {
	for _, s := range steps {
		r.store.steps[s.ID] = copyStep(s)
	}
	return nil
}

func (r *memStepRepo) GetByID(_ context.Context, id string) (*entity.WorkflowStep, error) {
	s, ok := r.store.steps[id]
	if !ok {
		return nil, nil
	}
	return copyStep(s), nil
}

func (r *memStepRepo) GetByQuoteID(_ context.Context, quoteID string) ([]*entity.WorkflowStep, error) {
	var out []*entity.WorkflowStep
	for _, s := range r.store.steps {
		if s.QuoteID == quoteID {
			out = append(out, copyStep(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *memStepRepo) CountByQuoteID(_ context.Context, quoteID string) (int, error) {
	count := 0
	for _, s := range r.store.steps {
		if s.QuoteID == quoteID {
			count++
		}
	}
	return count, nil
}

func (r *memStepRepo) RecordDecision(_ context.Context, step *entity.WorkflowStep) error {
	stored, ok := r.store.steps[step.ID]
	if !ok || stored.Status != entity.StepStatusPending {
		return fmt.Errorf("%w: step %s was decided concurrently", workflow.ErrConflict, step.ID)
	}
	step.UpdatedAt = time.Now()
	r.store.steps[step.ID] = copyStep(step)
	return nil
}

func (r *memStepRepo) DeleteByQuoteID(_ context.Context, quoteID string) error {
	for id, s := range r.store.steps {
		if s.QuoteID == quoteID {
			delete(r.store.steps, id)
		}
	}
	return nil
}

type memItemRepo struct{ store *memStore }

func (r *memItemRepo) CreateBatch(_ context.Context, items []*entity.QuoteItem) error {
	for _, it := range items {
		r.store.items[it.QuoteID] = append(r.store.items[it.QuoteID], it)
	}
	return nil
}

func (r *memItemRepo) GetByQuoteID(_ context.Context, quoteID string) ([]*entity.QuoteItem, error) {
	return r.store.items[quoteID], nil
}

func (r *memItemRepo) CountByQuoteID(_ context.Context, quoteID string) (int, error) {
	return len(r.store.items[quoteID]), nil
}

func (r *memItemRepo) DeleteByQuoteID(_ context.Context, quoteID string) error {
	delete(r.store.items, quoteID)
	return nil
}

type passthroughTxManager struct{}

func (m *passthroughTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noopLogger struct{}

func (l *noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *noopLogger) Error(msg string, keysAndValues ...interface{}) {}

type workflowFixture struct {
	store   *memStore
	service WorkflowService
}

func newWorkflowFixture() *workflowFixture {
	store := newMemStore()
	svc := NewWorkflowService(
		&memQuoteRepo{store: store},
		&memStepRepo{store: store},
		&memItemRepo{store: store},
		&passthroughTxManager{},
		workflow.NewDiscountPolicy(),
		nil,
		&noopLogger{},
	)
	return &workflowFixture{store: store, service: svc}
}

func (f *workflowFixture) seedQuote(quoteID, ownerID string, discount float64, customTerms bool) {
	now := time.Now()
	f.store.quotes[quoteID] = &entity.Quote{
		ID:                 quoteID,
		QuoteNumber:        "Q-2026-" + strings.ToUpper(quoteID),
		OwnerID:            ownerID,
		CustomerName:       "Globex",
		Title:              "Annual renewal",
		TotalAmount:        1200,
		DiscountPercent:    discount,
		CustomPaymentTerms: customTerms,
		Status:             entity.QuoteStatusDraft,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	f.store.items[quoteID] = []*entity.QuoteItem{
		{ID: quoteID + "-item", QuoteID: quoteID, Name: "Platform license", Quantity: 1, UnitPrice: 1200, TotalPrice: 1200, CreatedAt: now},
	}
}

func stepByPersona(steps []*entity.WorkflowStep, persona entity.Persona) *entity.WorkflowStep {
	for _, s := range steps {
		if s.Persona == persona {
			return s
		}
	}
	return nil
}

func mustStepID(t *testing.T, s *entity.WorkflowStep) workflow.StepID {
	t.Helper()
	id, err := workflow.ParseStepID(s.ID)
	require.NoError(t, err)
	return id
}

func TestWorkflowService_SubmitStandardDiscount(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	quote, steps, err := f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)

	require.Len(t, steps, 4)
	personas := workflow.Personas(steps)
	assert.Equal(t, []entity.Persona{entity.PersonaAE, entity.PersonaDealDesk, entity.PersonaLegal, entity.PersonaCustomer}, personas)

	ae := stepByPersona(steps, entity.PersonaAE)
	assert.Equal(t, entity.StepStatusApproved, ae.Status)
	assert.True(t, ae.AutoApproved)
	assert.Equal(t, entity.SystemActor, ae.DecidedBy)
	assert.Equal(t, entity.AESubmitComment, ae.Comments)

	assert.Equal(t, entity.QuoteStatusPendingDealDesk, quote.Status)
	require.NotNil(t, quote.SubmittedAt)

	// Each step carries a durable parseable identifier.
	for _, s := range steps {
		_, err := workflow.ParseStepID(s.ID)
		assert.NoError(t, err)
	}
}

func TestWorkflowService_SubmitGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("not owner", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, _, err := f.service.Submit(ctx, "q1", "ae-2")
		assert.ErrorIs(t, err, workflow.ErrAuthorization)
	})

	t.Run("empty quote", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		f.store.items["q1"] = nil
		_, _, err := f.service.Submit(ctx, "q1", "ae-1")
		assert.ErrorIs(t, err, workflow.ErrEmptyQuote)
		assert.Equal(t, entity.QuoteStatusDraft, f.store.quotes["q1"].Status)
	})

	t.Run("double submit", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, _, err := f.service.Submit(ctx, "q1", "ae-1")
		require.NoError(t, err)
		_, _, err = f.service.Submit(ctx, "q1", "ae-1")
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})

	t.Run("unknown quote", func(t *testing.T) {
		f := newWorkflowFixture()
		_, _, err := f.service.Submit(ctx, "missing", "ae-1")
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})
}

func TestWorkflowService_ApproveToCompletion(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	_, steps, err := f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)

	quote, steps, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionApprove, "pricing fine")
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusPendingLegal, quote.Status)

	quote, steps, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaLegal)), entity.PersonaLegal, ActionApprove, "")
	require.NoError(t, err)

	// The customer gate closes in the same call as the last internal
	// approval; no waiting-on-customer state is ever observable.
	assert.Equal(t, entity.QuoteStatusApproved, quote.Status)
	require.NotNil(t, quote.ApprovedAt)

	customer := stepByPersona(steps, entity.PersonaCustomer)
	assert.Equal(t, entity.StepStatusApproved, customer.Status)
	assert.True(t, customer.AutoApproved)
	assert.Equal(t, entity.SystemActor, customer.DecidedBy)
	assert.Equal(t, entity.CustomerAutoComment, customer.Comments)
}

func TestWorkflowService_RejectCascades(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 25, false)
	ctx := context.Background()

	_, steps, err := f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)
	require.Len(t, steps, 5) // ae, deal_desk, cro, legal, customer

	_, steps, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionApprove, "")
	require.NoError(t, err)

	quote, steps, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaCRO)), entity.PersonaCRO, ActionReject, "discount too deep")
	require.NoError(t, err)

	assert.Equal(t, entity.QuoteStatusRejected, quote.Status)
	require.NotNil(t, quote.RejectedAt)

	cro := stepByPersona(steps, entity.PersonaCRO)
	assert.Equal(t, entity.StepStatusRejected, cro.Status)
	assert.Equal(t, "discount too deep", cro.RejectionReason)
	assert.False(t, cro.AutoApproved)

	// Everything after the rejected position is closed out by the system;
	// decisions already made stay untouched. Cascaded steps are not
	// auto-approvals, so the flag stays down.
	for _, p := range []entity.Persona{entity.PersonaLegal, entity.PersonaCustomer} {
		s := stepByPersona(steps, p)
		assert.Equal(t, entity.StepStatusRejected, s.Status)
		assert.Equal(t, entity.CascadeRejectedReason, s.RejectionReason)
		assert.Equal(t, entity.SystemActor, s.DecidedBy)
		assert.False(t, s.AutoApproved)
	}
	assert.Equal(t, entity.StepStatusApproved, stepByPersona(steps, entity.PersonaDealDesk).Status)
	assert.Equal(t, entity.StepStatusApproved, stepByPersona(steps, entity.PersonaAE).Status)
}

func TestWorkflowService_ActGuards(t *testing.T) {
	ctx := context.Background()

	submit := func(t *testing.T, discount float64) (*workflowFixture, []*entity.WorkflowStep) {
		t.Helper()
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", discount, false)
		_, steps, err := f.service.Submit(ctx, "q1", "ae-1")
		require.NoError(t, err)
		return f, steps
	}

	t.Run("out of turn", func(t *testing.T) {
		f, steps := submit(t, 10)
		_, _, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaLegal)), entity.PersonaLegal, ActionApprove, "")
		assert.ErrorIs(t, err, workflow.ErrOutOfTurn)
		assert.Equal(t, entity.QuoteStatusPendingDealDesk, f.store.quotes["q1"].Status)
	})

	t.Run("wrong persona", func(t *testing.T) {
		f, steps := submit(t, 10)
		_, _, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaCRO, ActionApprove, "")
		assert.ErrorIs(t, err, workflow.ErrAuthorization)
	})

	t.Run("reject without reason", func(t *testing.T) {
		f, steps := submit(t, 10)
		_, _, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionReject, "   ")
		assert.ErrorIs(t, err, workflow.ErrValidation)
		assert.Equal(t, entity.StepStatusPending, f.store.steps[stepByPersona(steps, entity.PersonaDealDesk).ID].Status)
	})

	t.Run("invalid persona", func(t *testing.T) {
		f, steps := submit(t, 10)
		_, _, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.Persona("vp_sales"), ActionApprove, "")
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("already decided", func(t *testing.T) {
		f, steps := submit(t, 10)
		dealDesk := mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk))
		_, _, err := f.service.Act(ctx, dealDesk, entity.PersonaDealDesk, ActionApprove, "")
		require.NoError(t, err)
		_, _, err = f.service.Act(ctx, dealDesk, entity.PersonaDealDesk, ActionApprove, "")
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})

	t.Run("terminal quote", func(t *testing.T) {
		f, steps := submit(t, 25)
		_, steps, err := f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionReject, "no")
		require.NoError(t, err)
		_, _, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaLegal)), entity.PersonaLegal, ActionApprove, "")
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})

	t.Run("unknown step", func(t *testing.T) {
		f, _ := submit(t, 10)
		id := workflow.NewStepID()
		_, _, err := f.service.Act(ctx, id, entity.PersonaDealDesk, ActionApprove, "")
		assert.ErrorIs(t, err, workflow.ErrNotFound)
	})
}

func TestWorkflowService_ActOnDraftConfigurationRow(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	_, err := f.service.UpdateDraftConfiguration(ctx, "q1", "ae-1", []entity.Persona{
		entity.PersonaAE, entity.PersonaDealDesk, entity.PersonaFinance, entity.PersonaCustomer,
	})
	require.NoError(t, err)

	// Draft-configuration rows exist in storage, but decisions against
	// them must fail until the quote is submitted.
	var stored *entity.WorkflowStep
	for _, s := range f.store.steps {
		stored = s
		break
	}
	require.NotNil(t, stored)

	_, _, err = f.service.Act(ctx, mustStepID(t, stored), stored.Persona, ActionApprove, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestWorkflowService_PreviewFollowsPolicy(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 45, false)
	ctx := context.Background()

	preview, err := f.service.Preview(ctx, "q1")
	require.NoError(t, err)

	var personas []entity.Persona
	for _, p := range preview {
		personas = append(personas, p.Persona)
		assert.Equal(t, entity.StepStatusPending, p.Status)
	}
	assert.Equal(t, []entity.Persona{
		entity.PersonaAE, entity.PersonaDealDesk, entity.PersonaCRO,
		entity.PersonaFinance, entity.PersonaLegal, entity.PersonaCustomer,
	}, personas)

	// Preview persists nothing.
	assert.Empty(t, f.store.steps)
}

func TestWorkflowService_CustomizedChainWinsOverPolicy(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	// The edit drops the AE step; normalization puts it back in front.
	preview, err := f.service.UpdateDraftConfiguration(ctx, "q1", "ae-1", []entity.Persona{
		entity.PersonaFinance, entity.PersonaDealDesk, entity.PersonaCustomer,
	})
	require.NoError(t, err)

	var personas []entity.Persona
	for _, p := range preview {
		personas = append(personas, p.Persona)
	}
	want := []entity.Persona{entity.PersonaAE, entity.PersonaFinance, entity.PersonaDealDesk, entity.PersonaCustomer}
	assert.Equal(t, want, personas)
	assert.True(t, f.store.quotes["q1"].WorkflowCustomized)

	// Preview now reflects the customization, not the 10% policy chain.
	preview, err = f.service.Preview(ctx, "q1")
	require.NoError(t, err)
	personas = personas[:0]
	for _, p := range preview {
		personas = append(personas, p.Persona)
	}
	assert.Equal(t, want, personas)

	// And so does materialization.
	quote, steps, err := f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)
	assert.Equal(t, want, workflow.Personas(steps))
	assert.Equal(t, entity.QuoteStatusPendingFinance, quote.Status)
}

func TestWorkflowService_UpdateDraftConfigurationGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects chain without middle approver", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, err := f.service.UpdateDraftConfiguration(ctx, "q1", "ae-1", []entity.Persona{
			entity.PersonaAE, entity.PersonaCustomer,
		})
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})

	t.Run("owner only", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, err := f.service.UpdateDraftConfiguration(ctx, "q1", "intruder", []entity.Persona{
			entity.PersonaAE, entity.PersonaDealDesk, entity.PersonaCustomer,
		})
		assert.ErrorIs(t, err, workflow.ErrAuthorization)
	})

	t.Run("draft only", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, _, err := f.service.Submit(ctx, "q1", "ae-1")
		require.NoError(t, err)
		_, err = f.service.UpdateDraftConfiguration(ctx, "q1", "ae-1", []entity.Persona{
			entity.PersonaAE, entity.PersonaDealDesk, entity.PersonaCustomer,
		})
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})
}

func TestWorkflowService_ReopenAndResubmit(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 25, false)
	ctx := context.Background()

	_, steps, err := f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)
	firstIDs := make(map[string]bool, len(steps))
	for _, s := range steps {
		firstIDs[s.ID] = true
	}

	_, steps, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionReject, "needs finance review")
	require.NoError(t, err)

	quote, err := f.service.Reopen(ctx, "q1", "ae-1")
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusDraftReopened, quote.Status)
	assert.Nil(t, quote.SubmittedAt)
	assert.Nil(t, quote.RejectedAt)
	assert.False(t, quote.WorkflowCustomized)
	assert.Empty(t, f.store.steps)

	// Deepen the discount while editing; resubmission re-derives the
	// chain from scratch with fresh identifiers.
	stored := f.store.quotes["q1"]
	stored.DiscountPercent = 50

	quote, steps, err = f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)
	assert.Equal(t, []entity.Persona{
		entity.PersonaAE, entity.PersonaDealDesk, entity.PersonaCRO,
		entity.PersonaFinance, entity.PersonaLegal, entity.PersonaCustomer,
	}, workflow.Personas(steps))
	assert.Equal(t, entity.QuoteStatusPendingDealDesk, quote.Status)
	for _, s := range steps {
		assert.False(t, firstIDs[s.ID], "step %s reused a pre-reopen identifier", s.ID)
	}
}

func TestWorkflowService_ReopenGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("only rejected quotes", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, err := f.service.Reopen(ctx, "q1", "ae-1")
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})

	t.Run("owner only", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 25, false)
		_, steps, err := f.service.Submit(ctx, "q1", "ae-1")
		require.NoError(t, err)
		_, _, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionReject, "no")
		require.NoError(t, err)
		_, err = f.service.Reopen(ctx, "q1", "intruder")
		assert.ErrorIs(t, err, workflow.ErrAuthorization)
	})
}

func TestWorkflowService_Terminate(t *testing.T) {
	ctx := context.Background()

	t.Run("from pending", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, _, err := f.service.Submit(ctx, "q1", "ae-1")
		require.NoError(t, err)

		quote, err := f.service.Terminate(ctx, "q1", "ae-1", "customer walked away")
		require.NoError(t, err)
		assert.Equal(t, entity.QuoteStatusTerminated, quote.Status)
		assert.Equal(t, "customer walked away", quote.TerminationReason)
		assert.Equal(t, "ae-1", quote.TerminatedBy)
		require.NotNil(t, quote.TerminatedAt)
	})

	t.Run("approved quotes are final", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, steps, err := f.service.Submit(ctx, "q1", "ae-1")
		require.NoError(t, err)
		_, steps, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionApprove, "")
		require.NoError(t, err)
		_, _, err = f.service.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaLegal)), entity.PersonaLegal, ActionApprove, "")
		require.NoError(t, err)

		_, err = f.service.Terminate(ctx, "q1", "ae-1", "changed my mind")
		assert.ErrorIs(t, err, workflow.ErrInvalidState)
	})

	t.Run("reason required", func(t *testing.T) {
		f := newWorkflowFixture()
		f.seedQuote("q1", "ae-1", 10, false)
		_, err := f.service.Terminate(ctx, "q1", "ae-1", "  ")
		assert.ErrorIs(t, err, workflow.ErrValidation)
	})
}

func TestWorkflowService_Status(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	_, _, err := f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)

	status, err := f.service.Status(ctx, "q1", entity.PersonaDealDesk)
	require.NoError(t, err)
	require.NotNil(t, status.CurrentStep)
	assert.Equal(t, entity.PersonaDealDesk, status.CurrentStep.Persona)
	assert.True(t, status.CanApprove)
	assert.False(t, status.IsComplete)

	status, err = f.service.Status(ctx, "q1", entity.PersonaLegal)
	require.NoError(t, err)
	assert.False(t, status.CanApprove)
}

func TestWorkflowService_Steps(t *testing.T) {
	f := newWorkflowFixture()
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	// Nothing materialized yet.
	steps, err := f.service.Steps(ctx, "q1")
	require.NoError(t, err)
	assert.Empty(t, steps)

	_, _, err = f.service.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)

	steps, err = f.service.Steps(ctx, "q1")
	require.NoError(t, err)
	require.Len(t, steps, 4)
	for i, s := range steps {
		assert.Equal(t, i+1, s.Position)
	}
}

// racingStepRepo lets a competing decision slip in after the service has
// read the chain but before it writes its own decision, the interleaving
// the serializable transaction closes off in production.
type racingStepRepo struct {
	*memStepRepo
	race func()
}

func (r *racingStepRepo) GetByQuoteID(ctx context.Context, quoteID string) ([]*entity.WorkflowStep, error) {
	steps, err := r.memStepRepo.GetByQuoteID(ctx, quoteID)
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return steps, err
}

// racingQuoteRepo commits a competing quote write between the service's
// read and its version-checked update.
type racingQuoteRepo struct {
	*memQuoteRepo
	race func()
}

func (r *racingQuoteRepo) GetByID(ctx context.Context, id string) (*entity.Quote, error) {
	quote, err := r.memQuoteRepo.GetByID(ctx, id)
	if r.race != nil && quote != nil {
		race := r.race
		r.race = nil
		race()
	}
	return quote, err
}

func TestWorkflowService_ConcurrentStepDecisionConflicts(t *testing.T) {
	store := newMemStore()
	stepRepo := &racingStepRepo{memStepRepo: &memStepRepo{store: store}}
	svc := NewWorkflowService(
		&memQuoteRepo{store: store},
		stepRepo,
		&memItemRepo{store: store},
		&passthroughTxManager{},
		workflow.NewDiscountPolicy(),
		nil,
		&noopLogger{},
	)
	f := &workflowFixture{store: store, service: svc}
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	_, steps, err := svc.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)
	dealDesk := stepByPersona(steps, entity.PersonaDealDesk)

	// A second deal desk session decides the same step just after this
	// call has read it; the write must lose, not overwrite.
	stepRepo.race = func() {
		stored := store.steps[dealDesk.ID]
		now := time.Now()
		stored.Status = entity.StepStatusApproved
		stored.DecidedAt = &now
		stored.DecidedBy = entity.PersonaDealDesk.String()
	}

	_, _, err = svc.Act(ctx, mustStepID(t, dealDesk), entity.PersonaDealDesk, ActionReject, "pricing off")
	assert.ErrorIs(t, err, workflow.ErrConflict)

	// The competing approval survives untouched.
	assert.Equal(t, entity.StepStatusApproved, store.steps[dealDesk.ID].Status)
	assert.Empty(t, store.steps[dealDesk.ID].RejectionReason)
}

func TestWorkflowService_ConcurrentQuoteUpdateConflicts(t *testing.T) {
	store := newMemStore()
	quoteRepo := &racingQuoteRepo{memQuoteRepo: &memQuoteRepo{store: store}}
	svc := NewWorkflowService(
		quoteRepo,
		&memStepRepo{store: store},
		&memItemRepo{store: store},
		&passthroughTxManager{},
		workflow.NewDiscountPolicy(),
		nil,
		&noopLogger{},
	)
	f := &workflowFixture{store: store, service: svc}
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	// Another session bumps the quote's version right after this call
	// reads it, so the version-checked update must fail.
	quoteRepo.race = func() {
		store.quotes["q1"].Version++
	}

	_, err := svc.Terminate(ctx, "q1", "ae-1", "deal lost")
	assert.ErrorIs(t, err, workflow.ErrConflict)

	assert.Equal(t, entity.QuoteStatusDraft, store.quotes["q1"].Status)
	assert.Empty(t, store.quotes["q1"].TerminationReason)
}

func TestWorkflowService_TerminalTransitionsNotifySubscribers(t *testing.T) {
	store := newMemStore()
	bus := dispatcher.NewDispatcher(nil)
	svc := NewWorkflowService(
		&memQuoteRepo{store: store},
		&memStepRepo{store: store},
		&memItemRepo{store: store},
		&passthroughTxManager{},
		workflow.NewDiscountPolicy(),
		bus,
		&noopLogger{},
	)
	f := &workflowFixture{store: store, service: svc}
	f.seedQuote("q1", "ae-1", 10, false)
	ctx := context.Background()

	var mu sync.Mutex
	terminal := map[event.Type]int{}
	for _, eventType := range []event.Type{event.TypeQuoteApproved, event.TypeQuoteRejected, event.TypeQuoteTerminated} {
		bus.Subscribe(eventType, "counter", func(_ context.Context, evt *event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			terminal[evt.Type]++
			return nil
		})
	}

	_, steps, err := svc.Submit(ctx, "q1", "ae-1")
	require.NoError(t, err)
	_, steps, err = svc.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaDealDesk)), entity.PersonaDealDesk, ActionApprove, "")
	require.NoError(t, err)
	_, _, err = svc.Act(ctx, mustStepID(t, stepByPersona(steps, entity.PersonaLegal)), entity.PersonaLegal, ActionReject, "indemnity clause")
	require.NoError(t, err)

	// Close drains in-flight deliveries.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, terminal[event.TypeQuoteRejected])
	assert.Zero(t, terminal[event.TypeQuoteApproved])
	assert.Zero(t, terminal[event.TypeQuoteTerminated])
}
