package hsm

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is the sentinel wrapped by InvalidTransitionError.
// Use errors.Is(err, ErrInvalidTransition) to classify without inspecting
// fields.
var ErrInvalidTransition = errors.New("hsm: invalid transition")

// ErrConfigurationError is the sentinel wrapped by ConfigurationError.
var ErrConfigurationError = errors.New("hsm: configuration error")

// InvalidTransitionError reports that a trigger has no permitted transition
// in the current state, or that every transition configured for it has an
// unmet guard. No side effects occur when this error is returned (§4.1, §7).
type InvalidTransitionError struct {
	State       State
	Trigger     Trigger
	UnmetGuards []string
}

func (e *InvalidTransitionError) Error() string {
	if len(e.UnmetGuards) != 0 {
		return fmt.Sprintf("hsm: trigger %v is valid from state %v but guards are unmet: %v", e.Trigger, e.State, e.UnmetGuards)
	}
	return fmt.Sprintf("hsm: no permitted transition for trigger %v from state %v", e.Trigger, e.State)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ConfigurationError reports a structural problem detected by
// Machine.Validate: a hierarchy cycle or a transition to an unconfigured
// state. Configuring the same state more than once is not reported; each
// Configure call adds to that state's existing configuration. Raised at
// activation time (§7).
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("hsm: configuration error: %s", e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfigurationError }
