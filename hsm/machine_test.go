package hsm_test

import (
	"context"
	"testing"

	"github.com/grainkit/actorhsm/hsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stateClosed = "Closed"
	stateOpen   = "Open"
	stateLocked = "Locked"

	triggerOpen   = "Open"
	triggerClose  = "Close"
	triggerLock   = "Lock"
	triggerUnlock = "Unlock"
)

func newDoor() *hsm.Machine {
	m := hsm.NewMachine(stateClosed)
	m.Configure(stateClosed).
		Permit(triggerOpen, stateOpen).
		PermitIf(triggerLock, stateLocked, func(_ context.Context, args ...any) bool {
			return len(args) == 1 && args[0] == "s3cret"
		})
	m.Configure(stateOpen).
		Permit(triggerClose, stateClosed)
	m.Configure(stateLocked).
		PermitIf(triggerUnlock, stateClosed, func(_ context.Context, args ...any) bool {
			return len(args) == 1 && args[0] == "s3cret"
		})
	return m
}

// Scenario (a): door basic — spec.md §8.
func TestDoorBasic(t *testing.T) {
	ctx := context.Background()
	m := newDoor()

	require.NoError(t, m.Fire(ctx, triggerOpen))
	assert.Equal(t, stateOpen, m.CurrentState())

	require.NoError(t, m.Fire(ctx, triggerClose))
	assert.Equal(t, stateClosed, m.CurrentState())

	require.NoError(t, m.Fire(ctx, triggerLock, "s3cret"))
	assert.Equal(t, stateLocked, m.CurrentState())

	err := m.Fire(ctx, triggerUnlock, "wrong")
	require.Error(t, err)
	var invalid *hsm.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.NotEmpty(t, invalid.UnmetGuards)
	assert.Equal(t, stateLocked, m.CurrentState(), "failed guard must not mutate state")

	require.NoError(t, m.Fire(ctx, triggerUnlock, "s3cret"))
	assert.Equal(t, stateClosed, m.CurrentState())
}

func TestFire_UnpermittedTriggerIsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	m := newDoor()
	err := m.Fire(ctx, triggerClose)
	require.Error(t, err)
	assert.ErrorIs(t, err, hsm.ErrInvalidTransition)
	assert.Equal(t, stateClosed, m.CurrentState())
}

func TestCanFireWithUnmetGuards(t *testing.T) {
	ctx := context.Background()
	m := newDoor()
	ok, unmet := m.CanFireWithUnmetGuards(ctx, triggerLock, "wrong")
	assert.False(t, ok)
	assert.NotEmpty(t, unmet)

	ok, unmet = m.CanFireWithUnmetGuards(ctx, triggerLock, "s3cret")
	assert.True(t, ok)
	assert.Empty(t, unmet)
}

func TestPermittedTriggers(t *testing.T) {
	ctx := context.Background()
	m := newDoor()
	triggers := m.PermittedTriggers(ctx)
	assert.ElementsMatch(t, []hsm.Trigger{triggerOpen}, triggers)
}

// Scenario (d): hierarchical path — spec.md §8.
const (
	stateOffline    = "Offline"
	stateOnline     = "Online"
	stateIdle       = "Idle"
	stateActive     = "Active"
	stateProcessing = "Processing"
	stateMonitoring = "Monitoring"

	triggerPowerOn         = "PowerOn"
	triggerStartProcessing = "StartProcessing"
	triggerStop            = "Stop"
)

func newDeviceHierarchy() *hsm.Machine {
	m := hsm.NewMachine(stateOffline)
	m.Configure(stateOffline).Permit(triggerPowerOn, stateIdle)
	m.Configure(stateOnline)
	m.Configure(stateIdle).
		SubstateOf(stateOnline).
		Permit(triggerStartProcessing, stateProcessing)
	m.Configure(stateActive).SubstateOf(stateOnline)
	m.Configure(stateProcessing).
		SubstateOf(stateActive).
		Permit(triggerStop, stateIdle)
	m.Configure(stateMonitoring).SubstateOf(stateActive)
	return m
}

func TestHierarchicalPath(t *testing.T) {
	ctx := context.Background()
	m := newDeviceHierarchy()
	require.NoError(t, m.Validate())

	require.NoError(t, m.Fire(ctx, triggerPowerOn))
	assert.Equal(t, stateIdle, m.CurrentState())

	require.NoError(t, m.Fire(ctx, triggerStartProcessing))
	assert.Equal(t, stateProcessing, m.CurrentState())

	assert.Equal(t, []hsm.State{stateOnline, stateActive, stateProcessing}, m.CurrentPath())
	assert.True(t, m.IsInStateOrSubstate(stateOnline))

	require.NoError(t, m.Fire(ctx, triggerStop))
	assert.Equal(t, stateIdle, m.CurrentState())
	assert.False(t, m.IsInStateOrSubstate(stateActive))
}

func TestEntryExitOrdering(t *testing.T) {
	ctx := context.Background()
	var events []string
	record := func(tag string) hsm.Action {
		return func(_ context.Context, _ hsm.Transition, _ ...any) error {
			events = append(events, tag)
			return nil
		}
	}

	m := hsm.NewMachine(stateOffline)
	m.Configure(stateOffline).Permit(triggerPowerOn, stateIdle)
	m.Configure(stateOnline).
		OnEntry(record("enter:Online")).
		OnExit(record("exit:Online"))
	m.Configure(stateIdle).
		SubstateOf(stateOnline).
		OnEntry(record("enter:Idle")).
		OnExit(record("exit:Idle")).
		Permit(triggerStartProcessing, stateProcessing)
	m.Configure(stateActive).SubstateOf(stateOnline)
	m.Configure(stateProcessing).
		SubstateOf(stateActive).
		OnEntryFrom(triggerStartProcessing, record("enterFrom:StartProcessing")).
		OnEntry(record("enter:Processing"))

	require.NoError(t, m.Fire(ctx, triggerPowerOn))
	assert.Equal(t, []string{"enter:Online", "enter:Idle"}, events)

	events = nil
	require.NoError(t, m.Fire(ctx, triggerStartProcessing))
	// Online is a shared ancestor (LCA): it must not re-exit or re-enter.
	// Within stateProcessing's own entry list, callbacks run in the order
	// they were registered: OnEntryFrom was configured before OnEntry.
	assert.Equal(t, []string{"exit:Idle", "enterFrom:StartProcessing", "enter:Processing"}, events)
}

func TestValidate_DetectsCycle(t *testing.T) {
	m := hsm.NewMachine("A")
	m.Configure("A").SubstateOf("B")
	m.Configure("B").SubstateOf("A")
	err := m.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, hsm.ErrConfigurationError)
}

func TestValidate_DetectsUnknownTransitionTarget(t *testing.T) {
	m := hsm.NewMachine("A")
	m.Configure("A").Permit("go", "nowhere")
	err := m.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, hsm.ErrConfigurationError)
}
