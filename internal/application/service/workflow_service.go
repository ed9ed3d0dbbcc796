package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quoteflow/cpq-backend/internal/application/dispatcher"
	"github.com/quoteflow/cpq-backend/internal/application/port"
	"github.com/quoteflow/cpq-backend/internal/domain/entity"
	"github.com/quoteflow/cpq-backend/internal/domain/event"
	"github.com/quoteflow/cpq-backend/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Action is a direct decision an approver takes on a step
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// WorkflowStatus is the step-level view of a quote's approval chain
type WorkflowStatus struct {
	QuoteID     string                 `json:"quote_id"`
	Steps       []*entity.WorkflowStep `json:"steps"`
	CurrentStep *entity.WorkflowStep   `json:"current_step,omitempty"`
	CanApprove  bool                   `json:"can_approve"`
	IsComplete  bool                   `json:"is_complete"`
}

// WorkflowService orchestrates a quote's approval chain: it derives the
// chain from quote attributes, enforces strictly sequential persona-gated
// transitions, cascades rejections, and keeps the quote's coarse status in
// lockstep with step state. Every mutating operation runs in a single
// transaction per quote; losers of a concurrent race observe
// workflow.ErrConflict, never a silent overwrite.
type WorkflowService interface {
	// Preview returns the display-only chain for an unsubmitted quote.
	// Preview steps carry no identifiers and are never actionable.
	Preview(ctx context.Context, quoteID string) ([]workflow.PreviewStep, error)

	// UpdateDraftConfiguration persists an AE-edited chain for later
	// materialization, normalizing it on every save.
	UpdateDraftConfiguration(ctx context.Context, quoteID, actorID string, personas []entity.Persona) ([]workflow.PreviewStep, error)

	// Submit materializes the chain, auto-approves the account executive
	// step and moves the quote to its first waiting status.
	Submit(ctx context.Context, quoteID, actorID string) (*entity.Quote, []*entity.WorkflowStep, error)

	// Act applies an approve or reject decision to a materialized step.
	Act(ctx context.Context, stepID workflow.StepID, actorPersona entity.Persona, action Action, text string) (*entity.Quote, []*entity.WorkflowStep, error)

	// Terminate withdraws the quote; illegal once approved.
	Terminate(ctx context.Context, quoteID, actorID, reason string) (*entity.Quote, error)

	// Reopen returns a rejected quote to an editable draft, discarding
	// all steps.
	Reopen(ctx context.Context, quoteID, actorID string) (*entity.Quote, error)

	// Status reports the chain with the caller's ability to act on it.
	Status(ctx context.Context, quoteID string, persona entity.Persona) (*WorkflowStatus, error)

	// Steps returns the quote's materialized steps in chain order
	// without re-reading the quote itself.
	Steps(ctx context.Context, quoteID string) ([]*entity.WorkflowStep, error)
}

type workflowServiceImpl struct {
	quoteRepo  port.QuoteRepository
	stepRepo   port.StepRepository
	itemRepo   port.ItemRepository
	txManager  port.TransactionManager
	policy     workflow.DiscountPolicy
	machine    *workflow.StepMachine
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(
	quoteRepo port.QuoteRepository,
	stepRepo port.StepRepository,
	itemRepo port.ItemRepository,
	txManager port.TransactionManager,
	policy workflow.DiscountPolicy,
	eventDispatcher dispatcher.Dispatcher,
	logger Logger,
) WorkflowService {
	return &workflowServiceImpl{
		quoteRepo:  quoteRepo,
		stepRepo:   stepRepo,
		itemRepo:   itemRepo,
		txManager:  txManager,
		policy:     policy,
		machine:    workflow.NewStepMachine(),
		dispatcher: eventDispatcher,
		logger:     logger,
	}
}

// Preview computes the chain an unsubmitted quote would get. A customized
// draft configuration wins over policy re-derivation; otherwise the chain
// comes straight from the discount policy, so preview and materialization
// agree by construction.
func (s *workflowServiceImpl) Preview(ctx context.Context, quoteID string) ([]workflow.PreviewStep, error) {
	quote, err := s.loadQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if !quote.Status.IsDraft() {
		return nil, fmt.Errorf("%w: preview is only available before submission (status %s)", workflow.ErrInvalidState, quote.Status)
	}

	personas, err := s.chainPersonas(ctx, quote)
	if err != nil {
		return nil, err
	}
	return workflow.PreviewChain(personas), nil
}

// UpdateDraftConfiguration saves an AE-edited persona chain. Normalization
// runs on every save: the account executive step is re-inserted at
// position 1 if the edit dropped it and positions are renumbered
// contiguously. Saving marks the quote customized, which suppresses
// policy re-derivation until the quote is reopened.
func (s *workflowServiceImpl) UpdateDraftConfiguration(ctx context.Context, quoteID, actorID string, personas []entity.Persona) ([]workflow.PreviewStep, error) {
	normalized, err := workflow.NormalizePersonas(personas)
	if err != nil {
		return nil, err
	}

	var preview []workflow.PreviewStep
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		quote, err := s.loadQuote(txCtx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the quote owner may edit the draft workflow", workflow.ErrAuthorization)
		}
		if !quote.Status.IsDraft() {
			return fmt.Errorf("%w: draft workflow can only be edited before submission (status %s)", workflow.ErrInvalidState, quote.Status)
		}

		if err := s.stepRepo.DeleteByQuoteID(txCtx, quote.ID); err != nil {
			return err
		}
		steps := buildSteps(quote.ID, normalized)
		if err := s.stepRepo.CreateBatch(txCtx, steps); err != nil {
			return err
		}

		quote.WorkflowCustomized = true
		if err := s.quoteRepo.Update(txCtx, quote); err != nil {
			return err
		}

		preview = workflow.PreviewChain(normalized)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update draft workflow", "error", err, "quote_id", quoteID)
		return nil, err
	}

	s.logger.Info("Draft workflow updated", "quote_id", quoteID, "steps", len(preview))
	return preview, nil
}

// Submit materializes the workflow for a draft quote. The whole
// transition happens in one transaction: steps are persisted, the
// account executive step is auto-approved with the system actor, and
// the quote moves to the first waiting status.
func (s *workflowServiceImpl) Submit(ctx context.Context, quoteID, actorID string) (*entity.Quote, []*entity.WorkflowStep, error) {
	var (
		quote *entity.Quote
		steps []*entity.WorkflowStep
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		quote, err = s.loadQuote(txCtx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the quote owner may submit", workflow.ErrAuthorization)
		}
		if !quote.Status.IsSubmittable() {
			return fmt.Errorf("%w: cannot submit quote in status %s", workflow.ErrInvalidState, quote.Status)
		}
		if quote.SubmittedAt != nil {
			return fmt.Errorf("%w: quote %s", workflow.ErrAlreadyMaterialized, quote.ID)
		}

		itemCount, err := s.itemRepo.CountByQuoteID(txCtx, quote.ID)
		if err != nil {
			return err
		}
		if itemCount == 0 {
			return fmt.Errorf("%w: quote %s", workflow.ErrEmptyQuote, quote.ID)
		}

		steps, err = s.materialize(txCtx, quote)
		if err != nil {
			return err
		}

		// The AE authored the submission; their gate is satisfied by the
		// act of submitting.
		aeStep := workflow.FindByPersona(steps, entity.PersonaAE)
		now := time.Now()
		aeStep.Status = entity.StepStatusApproved
		aeStep.AutoApproved = true
		aeStep.DecidedAt = &now
		aeStep.DecidedBy = entity.SystemActor
		aeStep.Comments = entity.AESubmitComment
		if err := s.stepRepo.RecordDecision(txCtx, aeStep); err != nil {
			return err
		}

		quote.SubmittedAt = &now
		return s.projectQuoteStatus(txCtx, quote, steps)
	})
	if err != nil {
		s.logger.Error("Failed to submit quote", "error", err, "quote_id", quoteID)
		return nil, nil, err
	}

	s.logger.Info("Quote submitted", "quote_id", quote.ID, "status", quote.Status, "steps", len(steps))
	s.publish(ctx, event.NewEvent(event.TypeQuoteSubmitted, quote.ID, quote.Status.String(), map[string]interface{}{
		"discount_percent": quote.DiscountPercent,
		"step_count":       len(steps),
	}))
	if quote.Status == entity.QuoteStatusApproved {
		s.publish(ctx, event.NewEvent(event.TypeQuoteApproved, quote.ID, quote.Status.String(), nil))
	}
	return quote, steps, nil
}

// Act applies a decision to a single step and cascades its effect to
// sibling steps and the parent quote. All guards run before any write;
// nothing is mutated on failure.
func (s *workflowServiceImpl) Act(ctx context.Context, stepID workflow.StepID, actorPersona entity.Persona, action Action, text string) (*entity.Quote, []*entity.WorkflowStep, error) {
	if stepID.IsZero() {
		return nil, nil, fmt.Errorf("%w: empty step identifier", workflow.ErrTemporaryIdentifier)
	}
	if action != ActionApprove && action != ActionReject {
		return nil, nil, fmt.Errorf("%w: unknown action %q", workflow.ErrValidation, action)
	}
	if !actorPersona.IsValid() {
		return nil, nil, fmt.Errorf("%w: unknown persona %q", workflow.ErrValidation, actorPersona)
	}
	text = strings.TrimSpace(text)
	if action == ActionReject && text == "" {
		return nil, nil, fmt.Errorf("%w: a rejection reason is required", workflow.ErrValidation)
	}

	var (
		quote *entity.Quote
		steps []*entity.WorkflowStep
	)

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		step, err := s.stepRepo.GetByID(txCtx, stepID.String())
		if err != nil {
			return err
		}
		if step == nil {
			return fmt.Errorf("%w: step %s", workflow.ErrNotFound, stepID)
		}

		quote, err = s.loadQuote(txCtx, step.QuoteID)
		if err != nil {
			return err
		}
		if quote.Status.IsDraft() {
			return fmt.Errorf("%w: workflow is not materialized yet", workflow.ErrInvalidState)
		}
		if quote.Status.IsTerminal() {
			return fmt.Errorf("%w: quote is already %s", workflow.ErrInvalidState, quote.Status)
		}
		if step.Persona != actorPersona {
			return fmt.Errorf("%w: step requires %s, actor is %s", workflow.ErrAuthorization, step.Persona, actorPersona)
		}
		if step.Status != entity.StepStatusPending {
			return fmt.Errorf("%w: step already %s", workflow.ErrInvalidState, step.Status)
		}

		steps, err = s.stepRepo.GetByQuoteID(txCtx, quote.ID)
		if err != nil {
			return err
		}
		// Re-point at the loaded sibling set so rescans see the decision.
		step = findStep(steps, step.ID)
		if !workflow.PriorStepsApproved(steps, step) {
			return fmt.Errorf("%w: step %d is not the next gate", workflow.ErrOutOfTurn, step.Position)
		}

		switch action {
		case ActionApprove:
			return s.approveStep(txCtx, quote, steps, step, actorPersona.String(), text)
		default:
			return s.rejectStep(txCtx, quote, steps, step, actorPersona.String(), text)
		}
	})
	if err != nil {
		s.logger.Error("Failed to act on step", "error", err, "step_id", stepID.String(), "action", action)
		return nil, nil, err
	}

	s.logger.Info("Step decided", "step_id", stepID.String(), "action", action, "quote_id", quote.ID, "quote_status", quote.Status)
	s.publish(ctx, event.NewEvent(event.TypeStepDecided, quote.ID, quote.Status.String(), map[string]interface{}{
		"step_id": stepID.String(),
		"persona": actorPersona.String(),
		"action":  string(action),
	}))
	switch quote.Status {
	case entity.QuoteStatusApproved:
		s.publish(ctx, event.NewEvent(event.TypeQuoteApproved, quote.ID, quote.Status.String(), nil))
	case entity.QuoteStatusRejected:
		s.publish(ctx, event.NewEvent(event.TypeQuoteRejected, quote.ID, quote.Status.String(), map[string]interface{}{
			"reason": text,
		}))
	default:
		s.publish(ctx, event.NewEvent(event.TypeQuoteStatusChanged, quote.ID, quote.Status.String(), nil))
	}
	return quote, steps, nil
}

// approveStep records a direct approval, then rescans current step state:
// once every non-customer step is approved the customer step is
// auto-approved in the same transaction and the quote becomes approved.
func (s *workflowServiceImpl) approveStep(ctx context.Context, quote *entity.Quote, steps []*entity.WorkflowStep, step *entity.WorkflowStep, actor, comments string) error {
	next, err := s.machine.Fire(workflow.State(step.Status), workflow.TriggerApprove)
	if err != nil {
		return err
	}

	now := time.Now()
	step.Status = entity.StepStatus(next)
	step.DecidedAt = &now
	step.DecidedBy = actor
	step.Comments = comments
	if err := s.stepRepo.RecordDecision(ctx, step); err != nil {
		return err
	}

	return s.projectQuoteStatus(ctx, quote, steps)
}

// rejectStep records a direct rejection and forces every step at a
// greater position to rejected with the fixed cascade reason. The cascade
// is applied fully inside the surrounding transaction; a failure rolls
// back everything, so partial cascades cannot be observed.
func (s *workflowServiceImpl) rejectStep(ctx context.Context, quote *entity.Quote, steps []*entity.WorkflowStep, step *entity.WorkflowStep, actor, reason string) error {
	next, err := s.machine.Fire(workflow.State(step.Status), workflow.TriggerReject)
	if err != nil {
		return err
	}

	now := time.Now()
	step.Status = entity.StepStatus(next)
	step.DecidedAt = &now
	step.DecidedBy = actor
	step.RejectionReason = reason
	if err := s.stepRepo.RecordDecision(ctx, step); err != nil {
		return err
	}

	for _, sibling := range workflow.SortByPosition(steps) {
		if sibling.Position < step.Position || sibling.ID == step.ID {
			continue
		}
		if sibling.Status != entity.StepStatusPending {
			continue
		}
		cascaded, err := s.machine.Fire(workflow.State(sibling.Status), workflow.TriggerCascadeReject)
		if err != nil {
			return err
		}
		sibling.Status = entity.StepStatus(cascaded)
		sibling.DecidedAt = &now
		sibling.DecidedBy = entity.SystemActor
		sibling.RejectionReason = entity.CascadeRejectedReason
		if err := s.stepRepo.RecordDecision(ctx, sibling); err != nil {
			return err
		}
	}

	quote.Status = entity.QuoteStatusRejected
	quote.RejectedAt = &now
	return s.quoteRepo.Update(ctx, quote)
}

// Terminate withdraws a quote from negotiation. Available from every
// status except approved; the reason travels with the quote from then on.
func (s *workflowServiceImpl) Terminate(ctx context.Context, quoteID, actorID, reason string) (*entity.Quote, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: a termination reason is required", workflow.ErrValidation)
	}

	var quote *entity.Quote
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		quote, err = s.loadQuote(txCtx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the quote owner may terminate", workflow.ErrAuthorization)
		}
		if quote.Status == entity.QuoteStatusApproved {
			return fmt.Errorf("%w: approved quotes cannot be terminated", workflow.ErrInvalidState)
		}

		now := time.Now()
		quote.Status = entity.QuoteStatusTerminated
		quote.TerminatedAt = &now
		quote.TerminatedBy = actorID
		quote.TerminationReason = reason
		return s.quoteRepo.Update(txCtx, quote)
	})
	if err != nil {
		s.logger.Error("Failed to terminate quote", "error", err, "quote_id", quoteID)
		return nil, err
	}

	s.logger.Info("Quote terminated", "quote_id", quote.ID, "reason", reason)
	s.publish(ctx, event.NewEvent(event.TypeQuoteTerminated, quote.ID, quote.Status.String(), map[string]interface{}{
		"reason": reason,
	}))
	return quote, nil
}

// Reopen returns a rejected quote to the AE for editing. All steps are
// discarded; a later submit re-materializes fresh steps from the quote's
// then-current attributes.
func (s *workflowServiceImpl) Reopen(ctx context.Context, quoteID, actorID string) (*entity.Quote, error) {
	var quote *entity.Quote
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		quote, err = s.loadQuote(txCtx, quoteID)
		if err != nil {
			return err
		}
		if !quote.IsOwnedBy(actorID) {
			return fmt.Errorf("%w: only the quote owner may reopen", workflow.ErrAuthorization)
		}
		if quote.Status != entity.QuoteStatusRejected {
			return fmt.Errorf("%w: only rejected quotes can be reopened (status %s)", workflow.ErrInvalidState, quote.Status)
		}

		if err := s.stepRepo.DeleteByQuoteID(txCtx, quote.ID); err != nil {
			return err
		}

		quote.Status = entity.QuoteStatusDraftReopened
		quote.WorkflowCustomized = false
		quote.SubmittedAt = nil
		quote.RejectedAt = nil
		return s.quoteRepo.Update(txCtx, quote)
	})
	if err != nil {
		s.logger.Error("Failed to reopen quote", "error", err, "quote_id", quoteID)
		return nil, err
	}

	s.logger.Info("Quote reopened", "quote_id", quote.ID)
	s.publish(ctx, event.NewEvent(event.TypeQuoteReopened, quote.ID, quote.Status.String(), nil))
	return quote, nil
}

// Status reports the chain and whether the given persona may act next
func (s *workflowServiceImpl) Status(ctx context.Context, quoteID string, persona entity.Persona) (*WorkflowStatus, error) {
	quote, err := s.loadQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	steps, err := s.stepRepo.GetByQuoteID(ctx, quote.ID)
	if err != nil {
		return nil, err
	}
	steps = workflow.SortByPosition(steps)

	current := workflow.NextPending(steps)
	canApprove := false
	if current != nil && !quote.Status.IsDraft() && !quote.Status.IsTerminal() {
		canApprove = current.Persona == persona && workflow.PriorStepsApproved(steps, current)
	}

	isComplete := len(steps) > 0 && current == nil

	return &WorkflowStatus{
		QuoteID:     quote.ID,
		Steps:       steps,
		CurrentStep: current,
		CanApprove:  canApprove,
		IsComplete:  isComplete,
	}, nil
}

// Steps returns the chain in position order. Callers that already hold
// the quote use this instead of Status to avoid a second quote read.
func (s *workflowServiceImpl) Steps(ctx context.Context, quoteID string) ([]*entity.WorkflowStep, error) {
	steps, err := s.stepRepo.GetByQuoteID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return workflow.SortByPosition(steps), nil
}

// materialize assigns durable identities to the quote's chain and
// persists it, replacing any stored draft-configuration rows
func (s *workflowServiceImpl) materialize(ctx context.Context, quote *entity.Quote) ([]*entity.WorkflowStep, error) {
	personas, err := s.chainPersonas(ctx, quote)
	if err != nil {
		return nil, err
	}

	if err := s.stepRepo.DeleteByQuoteID(ctx, quote.ID); err != nil {
		return nil, err
	}

	steps := buildSteps(quote.ID, personas)
	if err := s.stepRepo.CreateBatch(ctx, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// chainPersonas resolves the quote's persona sequence: the stored
// customized configuration when present, policy output otherwise
func (s *workflowServiceImpl) chainPersonas(ctx context.Context, quote *entity.Quote) ([]entity.Persona, error) {
	if quote.WorkflowCustomized {
		stored, err := s.stepRepo.GetByQuoteID(ctx, quote.ID)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			return workflow.NormalizePersonas(workflow.Personas(stored))
		}
	}
	return s.policy.RequiredPersonas(quote.DiscountPercent, quote.CustomPaymentTerms), nil
}

// projectQuoteStatus re-derives the quote's coarse status by scanning
// current step state. When every non-customer step is approved, the
// customer step is auto-approved here, inside the caller's transaction,
// so no consumer ever observes a waiting-on-customer state.
func (s *workflowServiceImpl) projectQuoteStatus(ctx context.Context, quote *entity.Quote, steps []*entity.WorkflowStep) error {
	if workflow.AllInternalApproved(steps) {
		customer := workflow.CustomerStep(steps)
		if customer != nil && customer.Status == entity.StepStatusPending {
			next, err := s.machine.Fire(workflow.State(customer.Status), workflow.TriggerAutoApprove)
			if err != nil {
				return err
			}
			now := time.Now()
			customer.Status = entity.StepStatus(next)
			customer.AutoApproved = true
			customer.DecidedAt = &now
			customer.DecidedBy = entity.SystemActor
			customer.Comments = entity.CustomerAutoComment
			if err := s.stepRepo.RecordDecision(ctx, customer); err != nil {
				return err
			}
		}
		now := time.Now()
		quote.Status = entity.QuoteStatusApproved
		quote.ApprovedAt = &now
		return s.quoteRepo.Update(ctx, quote)
	}

	status, ok := workflow.ProjectPendingStatus(steps)
	if !ok {
		return fmt.Errorf("%w: no pending approver to project", workflow.ErrInvalidState)
	}
	quote.Status = status
	return s.quoteRepo.Update(ctx, quote)
}

func (s *workflowServiceImpl) loadQuote(ctx context.Context, quoteID string) (*entity.Quote, error) {
	quote, err := s.quoteRepo.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, fmt.Errorf("%w: quote %s", workflow.ErrNotFound, quoteID)
	}
	return quote, nil
}

func (s *workflowServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}

// buildSteps mints durable steps for the given persona sequence
func buildSteps(quoteID string, personas []entity.Persona) []*entity.WorkflowStep {
	now := time.Now()
	steps := make([]*entity.WorkflowStep, 0, len(personas))
	for i, p := range personas {
		steps = append(steps, &entity.WorkflowStep{
			ID:        workflow.NewStepID().String(),
			QuoteID:   quoteID,
			Persona:   p,
			Position:  i + 1,
			Status:    entity.StepStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return steps
}

func findStep(steps []*entity.WorkflowStep, id string) *entity.WorkflowStep {
	for _, s := range steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}
