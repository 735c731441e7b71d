package grain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for the error kinds enumerated in §7 that aren't already typed
// errors re-exported from hsm/upcast/region.
var (
	ErrCallbackReentrancy        = errors.New("grain: fire called from inside a callback")
	ErrEventReplayFailure        = errors.New("grain: event replay cannot progress")
	ErrTransitionPersistenceFailure = errors.New("grain: append failed after retry exhaustion")
)

// CallbackReentrancyError reports a fire attempted from inside a callback
// of an in-flight fire on the same actor (§5, §7, §8 property 7).
type CallbackReentrancyError struct {
	ActorID string
	Trigger string
}

func (e *CallbackReentrancyError) Error() string {
	return fmt.Sprintf("grain: actor %q: fire(%s) called re-entrantly from within a callback", e.ActorID, e.Trigger)
}

func (e *CallbackReentrancyError) Unwrap() error { return ErrCallbackReentrancy }

// EventReplayFailureError reports where replay broke down (§4.2 Activation
// step 4).
type EventReplayFailureError struct {
	ActorID    string
	EventIndex int
	FromState  string
	ToState    string
	Timestamp  time.Time
	Cause      error
}

func (e *EventReplayFailureError) Error() string {
	return fmt.Sprintf("grain: actor %q: replay failed at event %d (%s -> %s @ %s): %v",
		e.ActorID, e.EventIndex, e.FromState, e.ToState, e.Timestamp, e.Cause)
}

func (e *EventReplayFailureError) Unwrap() error { return errors.Join(ErrEventReplayFailure, e.Cause) }

// TransitionPersistenceFailureError reports that append retries were
// exhausted in strict (non-AutoConfirm) mode; the coordinator has already
// rolled the engine back to its pre-transition state by this point (§7).
type TransitionPersistenceFailureError struct {
	ActorID string
	Trigger string
	Cause   error
}

func (e *TransitionPersistenceFailureError) Error() string {
	return fmt.Sprintf("grain: actor %q: persisting fire(%s) failed after retries: %v", e.ActorID, e.Trigger, e.Cause)
}

func (e *TransitionPersistenceFailureError) Unwrap() error {
	return errors.Join(ErrTransitionPersistenceFailure, e.Cause)
}
