package entity

import "time"

// Quote represents a sales opportunity under negotiation
type Quote struct {
	ID                 string      `json:"id"`
	QuoteNumber        string      `json:"quote_number"`
	OwnerID            string      `json:"owner_id"`
	CustomerName       string      `json:"customer_name"`
	CustomerEmail      string      `json:"customer_email,omitempty"`
	CustomerCompany    string      `json:"customer_company,omitempty"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	TotalAmount        float64     `json:"total_amount"`
	DiscountPercent    float64     `json:"discount_percent"`
	CustomPaymentTerms bool        `json:"custom_payment_terms"`
	Status             QuoteStatus `json:"status"`
	// WorkflowCustomized is set once the AE hand-edits the draft chain;
	// from then on the stored configuration wins over policy re-derivation
	// until the quote is reopened.
	WorkflowCustomized bool  `json:"workflow_customized"`
	Version            int64 `json:"version"`

	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	TerminationReason string `json:"termination_reason,omitempty"`
	TerminatedBy      string `json:"terminated_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []*QuoteItem `json:"items,omitempty"`
}

// IsOwnedBy reports whether the given user authored the quote
func (q *Quote) IsOwnedBy(userID string) bool {
	return q.OwnerID == userID
}

// QuoteItem represents a single line item on a quote
type QuoteItem struct {
	ID          string    `json:"id"`
	QuoteID     string    `json:"quote_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	TotalPrice  float64   `json:"total_price"`
	CreatedAt   time.Time `json:"created_at"`
}
