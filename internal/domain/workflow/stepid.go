package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// StepID is a durable workflow step identifier. Values can only be
// obtained from NewStepID (at materialization) or ParseStepID, so the
// action-taking API cannot be handed a preview identifier by
// construction.
type StepID struct {
	value string
}

// NewStepID mints a fresh durable identifier for a materialized step
func NewStepID() StepID {
	return StepID{value: uuid.NewString()}
}

// ParseStepID validates a caller-supplied identifier. Anything that is
// not a well-formed UUID - including the "preview-" identifiers the
// presentation layer may fabricate for rendering - fails with
// ErrTemporaryIdentifier.
func ParseStepID(s string) (StepID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return StepID{}, fmt.Errorf("%w: %q", ErrTemporaryIdentifier, s)
	}
	return StepID{value: s}, nil
}

// String returns the identifier's string form
func (id StepID) String() string {
	return id.value
}

// IsZero reports whether the identifier is unset
func (id StepID) IsZero() bool {
	return id.value == ""
}
