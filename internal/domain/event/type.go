package event

// Type identifies the type of domain event
type Type string

const (
	TypeQuoteSubmitted     Type = "quote.submitted"
	TypeQuoteApproved      Type = "quote.approved"
	TypeQuoteRejected      Type = "quote.rejected"
	TypeQuoteTerminated    Type = "quote.terminated"
	TypeQuoteReopened      Type = "quote.reopened"
	TypeQuoteStatusChanged Type = "quote.status_changed"
	TypeStepDecided        Type = "step.decided"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeQuoteSubmitted,
		TypeQuoteApproved,
		TypeQuoteRejected,
		TypeQuoteTerminated,
		TypeQuoteReopened,
		TypeQuoteStatusChanged,
		TypeStepDecided:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the event marks a terminal quote
// transition, the ones downstream notification consumers care about
func (t Type) IsTerminal() bool {
	switch t {
	case TypeQuoteApproved, TypeQuoteRejected, TypeQuoteTerminated:
		return true
	default:
		return false
	}
}
