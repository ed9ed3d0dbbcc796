package workflow

// Trigger represents an action that can cause a step state transition
type Trigger string

const (
	// TriggerApprove is a direct approval by the step's persona
	TriggerApprove Trigger = "APPROVE"

	// TriggerReject is a direct rejection by the step's persona
	TriggerReject Trigger = "REJECT"

	// TriggerAutoApprove is a system-initiated approval: the AE step at
	// submission and the customer step at full internal completion
	TriggerAutoApprove Trigger = "AUTO_APPROVE"

	// TriggerCascadeReject is the forced rejection applied to every step
	// at or after a directly rejected step's position
	TriggerCascadeReject Trigger = "CASCADE_REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
