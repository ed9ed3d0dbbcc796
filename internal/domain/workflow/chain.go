package workflow

import (
	"fmt"
	"sort"

	"github.com/quoteflow/cpq-backend/internal/domain/entity"
)

// PreviewStep is one entry of the transient chain computed for display
// before a quote is submitted. It deliberately carries no identifier:
// there is nothing in a preview that the action API could accept.
type PreviewStep struct {
	Persona  entity.Persona    `json:"persona"`
	Position int               `json:"position"`
	Status   entity.StepStatus `json:"status"`
}

// PreviewChain builds the display-only chain for the given personas
func PreviewChain(personas []entity.Persona) []PreviewStep {
	steps := make([]PreviewStep, 0, len(personas))
	for i, p := range personas {
		steps = append(steps, PreviewStep{
			Persona:  p,
			Position: i + 1,
			Status:   entity.StepStatusPending,
		})
	}
	return steps
}

// Personas extracts the ordered persona sequence from persisted steps
func Personas(steps []*entity.WorkflowStep) []entity.Persona {
	ordered := SortByPosition(steps)
	personas := make([]entity.Persona, 0, len(ordered))
	for _, s := range ordered {
		personas = append(personas, s.Persona)
	}
	return personas
}

// NormalizePersonas enforces the draft-configuration invariants on an
// AE-edited persona list: the account executive step is re-inserted at
// position 1 if the edit dropped it, the customer step is re-appended
// if dropped, and the result is free of duplicates and unknown
// personas. This runs on every draft save, not only in the UI.
func NormalizePersonas(personas []entity.Persona) ([]entity.Persona, error) {
	seen := make(map[entity.Persona]bool, len(personas))
	out := make([]entity.Persona, 0, len(personas)+2)

	for _, p := range personas {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: unknown persona %q", ErrValidation, p)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate persona %q", ErrValidation, p)
		}
		seen[p] = true
		if p == entity.PersonaAE || p == entity.PersonaCustomer {
			continue
		}
		out = append(out, p)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: chain needs at least one approver between ae and customer", ErrValidation)
	}

	normalized := make([]entity.Persona, 0, len(out)+2)
	normalized = append(normalized, entity.PersonaAE)
	normalized = append(normalized, out...)
	normalized = append(normalized, entity.PersonaCustomer)
	return normalized, nil
}

// SortByPosition returns the steps ordered by sequence position
func SortByPosition(steps []*entity.WorkflowStep) []*entity.WorkflowStep {
	ordered := make([]*entity.WorkflowStep, len(steps))
	copy(ordered, steps)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

// ValidateSequence checks that positions are exactly 1..N with no gaps
// or duplicates and that each persona appears at most once
func ValidateSequence(steps []*entity.WorkflowStep) error {
	ordered := SortByPosition(steps)
	personas := make(map[entity.Persona]bool, len(ordered))
	for i, s := range ordered {
		if s.Position != i+1 {
			return fmt.Errorf("%w: positions are not contiguous at %d", ErrValidation, s.Position)
		}
		if personas[s.Persona] {
			return fmt.Errorf("%w: duplicate persona %q", ErrValidation, s.Persona)
		}
		personas[s.Persona] = true
	}
	return nil
}

// NextPending returns the lowest-position pending step, or nil when
// every step is resolved
func NextPending(steps []*entity.WorkflowStep) *entity.WorkflowStep {
	for _, s := range SortByPosition(steps) {
		if s.Status == entity.StepStatusPending {
			return s
		}
	}
	return nil
}

// PriorStepsApproved reports whether every step at a lower position
// than the given step is approved
func PriorStepsApproved(steps []*entity.WorkflowStep, step *entity.WorkflowStep) bool {
	for _, s := range steps {
		if s.Position < step.Position && s.Status != entity.StepStatusApproved {
			return false
		}
	}
	return true
}

// AllInternalApproved reports whether every non-customer step is
// approved. Detection scans current step state rather than assuming the
// most recently acted-on step was the last, so out-of-order persistence
// cannot corrupt the derived quote status.
func AllInternalApproved(steps []*entity.WorkflowStep) bool {
	for _, s := range steps {
		if s.Persona == entity.PersonaCustomer {
			continue
		}
		if s.Status != entity.StepStatusApproved {
			return false
		}
	}
	return len(steps) > 0
}

// CustomerStep returns the customer step of the chain, or nil
func CustomerStep(steps []*entity.WorkflowStep) *entity.WorkflowStep {
	for _, s := range steps {
		if s.Persona == entity.PersonaCustomer {
			return s
		}
	}
	return nil
}

// FindByPersona returns the step gated by the given persona, or nil
func FindByPersona(steps []*entity.WorkflowStep, persona entity.Persona) *entity.WorkflowStep {
	for _, s := range steps {
		if s.Persona == persona {
			return s
		}
	}
	return nil
}

// ProjectPendingStatus derives the quote's waiting status from current
// step state: the pending status of the next pending non-customer
// persona. The bool result is false when no such projection exists
// (chain fully resolved, or only the customer step remains).
func ProjectPendingStatus(steps []*entity.WorkflowStep) (entity.QuoteStatus, bool) {
	next := NextPending(steps)
	if next == nil {
		return "", false
	}
	return entity.PendingStatusFor(next.Persona)
}
