package workflow

import "fmt"

// StepMachine validates step state transitions. The transition table is
// fixed: pending is the only non-terminal state, direct and system
// triggers lead to the same terminal states, and nothing leaves a
// terminal state. Quote-level reopen discards steps entirely instead of
// transitioning them back.
type StepMachine struct {
	transitions map[State]map[Trigger]State
}

// NewStepMachine creates the approval step state machine
func NewStepMachine() *StepMachine {
	return &StepMachine{
		transitions: map[State]map[Trigger]State{
			StatePending: {
				TriggerApprove:       StateApproved,
				TriggerAutoApprove:   StateApproved,
				TriggerReject:        StateRejected,
				TriggerCascadeReject: StateRejected,
			},
		},
	}
}

// CanFire returns true if the trigger is permitted from the given state
func (m *StepMachine) CanFire(from State, trigger Trigger) bool {
	_, ok := m.transitions[from][trigger]
	return ok
}

// Fire returns the state reached by applying the trigger, or
// ErrInvalidTransition when the transition does not exist
func (m *StepMachine) Fire(from State, trigger Trigger) (State, error) {
	to, ok := m.transitions[from][trigger]
	if !ok {
		return from, fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, from)
	}
	return to, nil
}

// PermittedTriggers returns all triggers that can be fired from the given state
func (m *StepMachine) PermittedTriggers(from State) []Trigger {
	config, ok := m.transitions[from]
	if !ok {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config))
	for trigger := range config {
		triggers = append(triggers, trigger)
	}

	return triggers
}
