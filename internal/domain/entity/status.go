package entity

// QuoteStatus is the coarse status projected onto a quote from its
// workflow step state.
type QuoteStatus string

const (
	QuoteStatusDraft           QuoteStatus = "draft"
	QuoteStatusDraftReopened   QuoteStatus = "draft_reopened"
	QuoteStatusPendingDealDesk QuoteStatus = "pending_deal_desk"
	QuoteStatusPendingCRO      QuoteStatus = "pending_cro"
	QuoteStatusPendingLegal    QuoteStatus = "pending_legal"
	QuoteStatusPendingFinance  QuoteStatus = "pending_finance"
	QuoteStatusApproved        QuoteStatus = "approved"
	QuoteStatusRejected        QuoteStatus = "rejected"
	QuoteStatusTerminated      QuoteStatus = "terminated"
)

var validQuoteStatuses = map[QuoteStatus]bool{
	QuoteStatusDraft:           true,
	QuoteStatusDraftReopened:   true,
	QuoteStatusPendingDealDesk: true,
	QuoteStatusPendingCRO:      true,
	QuoteStatusPendingLegal:    true,
	QuoteStatusPendingFinance:  true,
	QuoteStatusApproved:        true,
	QuoteStatusRejected:        true,
	QuoteStatusTerminated:      true,
}

// IsValid returns true if the status is a defined quote status
func (s QuoteStatus) IsValid() bool {
	return validQuoteStatuses[s]
}

// IsSubmittable returns true while the AE may still submit the quote
func (s QuoteStatus) IsSubmittable() bool {
	return s == QuoteStatusDraft || s == QuoteStatusDraftReopened
}

// IsDraft returns true while the AE may still edit quote content
func (s QuoteStatus) IsDraft() bool {
	return s == QuoteStatusDraft || s == QuoteStatusDraftReopened
}

// IsTerminal returns true for sink statuses. Reopen is the only exit
// from rejected and is modelled as an explicit operation, not a
// projector transition.
func (s QuoteStatus) IsTerminal() bool {
	return s == QuoteStatusApproved || s == QuoteStatusRejected || s == QuoteStatusTerminated
}

// String returns the string representation of the status
func (s QuoteStatus) String() string {
	return string(s)
}

// PendingStatusFor maps an approver persona to the matching waiting
// status. The customer step never surfaces as a waiting status: it is
// auto-approved in the same operation that would have exposed it.
func PendingStatusFor(p Persona) (QuoteStatus, bool) {
	switch p {
	case PersonaDealDesk:
		return QuoteStatusPendingDealDesk, true
	case PersonaCRO:
		return QuoteStatusPendingCRO, true
	case PersonaLegal:
		return QuoteStatusPendingLegal, true
	case PersonaFinance:
		return QuoteStatusPendingFinance, true
	default:
		return "", false
	}
}

// StepStatus is the lifecycle status of a single workflow step
type StepStatus string

const (
	StepStatusPending  StepStatus = "pending"
	StepStatusApproved StepStatus = "approved"
	StepStatusRejected StepStatus = "rejected"
	// StepStatusSkipped is reserved for future use; nothing writes it.
	StepStatusSkipped StepStatus = "skipped"
)

// IsResolved returns true once the step has left pending
func (s StepStatus) IsResolved() bool {
	return s == StepStatusApproved || s == StepStatusRejected || s == StepStatusSkipped
}

// String returns the string representation of the status
func (s StepStatus) String() string {
	return string(s)
}
