package entity

import "time"

// System actor recorded on auto-approved steps
const SystemActor = "system"

// Fixed decision texts written by the engine rather than a human actor
const (
	AESubmitComment       = "Auto-approved on submission"
	CustomerAutoComment   = "Automatically approved - quote sent to customer"
	CascadeRejectedReason = "Rejected due to rejection of an earlier approval step"
)

// WorkflowStep is one approval gate for one persona on one quote.
// A step only ever exists in durable form; preview chains are computed
// transiently and carry no identifiers at all.
type WorkflowStep struct {
	ID       string     `json:"id"`
	QuoteID  string     `json:"quote_id"`
	Persona  Persona    `json:"persona"`
	Position int        `json:"position"`
	Status   StepStatus `json:"status"`
	// AutoApproved marks system-initiated approvals: the AE step at
	// submission and the customer step at full internal completion.
	// Cascaded rejections leave it false; the system actor and the
	// fixed cascade reason identify those.
	AutoApproved bool `json:"auto_approved"`

	DecidedAt *time.Time `json:"decided_at,omitempty"`
	DecidedBy string     `json:"decided_by,omitempty"`

	Comments        string `json:"comments,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
