package workflow

import "github.com/quoteflow/cpq-backend/internal/domain/entity"

// Default discount thresholds. Comparisons are strict: a discount of
// exactly 15 does not require the CRO and exactly 40 does not require
// finance.
const (
	DefaultCROThreshold     = 15.0
	DefaultFinanceThreshold = 40.0
)

// DiscountPolicy maps a quote's discount percentage and custom-payment-terms
// flag to the ordered set of required approver personas. The mapping is pure:
// identical input produces identical output at every call site, which is what
// keeps the draft preview and the materialized workflow in agreement.
type DiscountPolicy struct {
	CROThreshold     float64
	FinanceThreshold float64
}

// NewDiscountPolicy creates a policy with the default thresholds
func NewDiscountPolicy() DiscountPolicy {
	return DiscountPolicy{
		CROThreshold:     DefaultCROThreshold,
		FinanceThreshold: DefaultFinanceThreshold,
	}
}

// RequiredPersonas returns the ordered approval chain for the given quote
// attributes. The account executive always opens the chain and the customer
// always closes it; deal desk and legal are unconditional.
func (p DiscountPolicy) RequiredPersonas(discountPercent float64, customTerms bool) []entity.Persona {
	personas := []entity.Persona{
		entity.PersonaAE,
		entity.PersonaDealDesk,
	}

	if discountPercent > p.CROThreshold {
		personas = append(personas, entity.PersonaCRO)
	}
	if discountPercent > p.FinanceThreshold || customTerms {
		personas = append(personas, entity.PersonaFinance)
	}

	personas = append(personas, entity.PersonaLegal, entity.PersonaCustomer)
	return personas
}
