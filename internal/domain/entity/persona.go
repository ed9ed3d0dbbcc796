package entity

// Persona identifies the role that gates a workflow step or holds
// quote-authoring rights.
type Persona string

const (
	PersonaAE       Persona = "ae"
	PersonaDealDesk Persona = "deal_desk"
	PersonaCRO      Persona = "cro"
	PersonaLegal    Persona = "legal"
	PersonaFinance  Persona = "finance"
	PersonaCustomer Persona = "customer"
)

var validPersonas = map[Persona]bool{
	PersonaAE:       true,
	PersonaDealDesk: true,
	PersonaCRO:      true,
	PersonaLegal:    true,
	PersonaFinance:  true,
	PersonaCustomer: true,
}

// IsValid returns true if the persona is one of the defined roles
func (p Persona) IsValid() bool {
	return validPersonas[p]
}

// IsStructural returns true for the bookend personas that are never
// produced by the discount policy thresholds: the account executive
// step always opens the chain and the customer step always closes it.
func (p Persona) IsStructural() bool {
	return p == PersonaAE || p == PersonaCustomer
}

// String returns the string representation of the persona
func (p Persona) String() string {
	return string(p)
}
