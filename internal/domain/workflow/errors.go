package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a step state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrValidation is returned for malformed input (empty rejection reason,
	// bad persona, malformed draft configuration)
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState is returned when an operation is illegal for the current
	// quote or step status
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrAuthorization is returned when the actor's persona does not match the
	// step's persona, or the actor is not the quote owner for owner-only
	// operations
	ErrAuthorization = errors.New("actor not authorized")

	// ErrOutOfTurn is returned when a prior-sequence step is not yet approved
	ErrOutOfTurn = errors.New("waiting on an earlier approval step")

	// ErrTemporaryIdentifier is returned when an action targets a preview
	// (non-durable) step identifier. This is an integration defect in the
	// caller, never a retryable user condition.
	ErrTemporaryIdentifier = errors.New("step identifier is not durable")

	// ErrConflict is returned when a concurrent mutation wins the transition;
	// the caller should reload and may retry
	ErrConflict = errors.New("concurrent modification detected")

	// ErrAlreadyMaterialized is returned when workflow steps have already been
	// materialized for the quote
	ErrAlreadyMaterialized = errors.New("workflow already materialized")

	// ErrEmptyQuote is returned when submitting a quote without line items
	ErrEmptyQuote = errors.New("quote has no line items")

	// ErrNotFound is returned when the referenced quote or step does not exist
	ErrNotFound = errors.New("not found")
)
