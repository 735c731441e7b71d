package persist_test

import (
	"context"
	"testing"
	"time"

	"github.com/grainkit/actorhsm/eventlog"
	"github.com/grainkit/actorhsm/eventlog/persist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStore_AppendAndSince(t *testing.T) {
	ctx := context.Background()
	store, err := persist.NewJSONStore(t.TempDir())
	require.NoError(t, err)

	i0, err := store.Append(ctx, "actor-1", eventlog.TransitionEvent{Trigger: "Open", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 0, i0)

	i1, err := store.Append(ctx, "actor-1", eventlog.TransitionEvent{Trigger: "Close", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, i1)

	evs, err := store.Since(ctx, "actor-1", -1)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "Open", evs[0].Payload["Trigger"])
	assert.Equal(t, "Close", evs[1].Payload["Trigger"])
}

func TestJSONStore_SurvivesReopenOfSameDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store1, err := persist.NewJSONStore(dir)
	require.NoError(t, err)
	_, err = store1.Append(ctx, "actor-1", eventlog.TransitionEvent{Trigger: "Open"})
	require.NoError(t, err)
	require.NoError(t, store1.Save(ctx, "actor-1", eventlog.Snapshot{CurrentState: "Open", LogIndex: 0}))

	store2, err := persist.NewJSONStore(dir)
	require.NoError(t, err)
	n, err := store2.Len(ctx, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap, ok, err := store2.Load(ctx, "actor-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Open", snap.CurrentState)
}

func TestJSONStore_LoadMissingActorReturnsNotOK(t *testing.T) {
	store, err := persist.NewJSONStore(t.TempDir())
	require.NoError(t, err)
	_, ok, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestYAMLStore_AppendAndSave(t *testing.T) {
	ctx := context.Background()
	store, err := persist.NewYAMLStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Append(ctx, "a", eventlog.TransitionEvent{Trigger: "T1", DedupeKey: "d1"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "a", eventlog.Snapshot{CurrentState: "S1", TransitionCount: 1}))

	snap, ok, err := store.Load(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "S1", snap.CurrentState)

	evs, err := store.Since(ctx, "a", -1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "d1", evs[0].Payload["DedupeKey"])
}

func TestJSONStore_AppendRawSurvivesReopenAsV1(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store1, err := persist.NewJSONStore(dir)
	require.NoError(t, err)
	legacy, err := eventlog.ToStoredEvent(eventlog.TransitionEvent{FromState: "Idle", ToState: "Active", Trigger: "Start", StateMachineVersion: 1})
	require.NoError(t, err)
	_, err = store1.AppendRaw(ctx, "actor-1", legacy)
	require.NoError(t, err)

	store2, err := persist.NewJSONStore(dir)
	require.NoError(t, err)
	evs, err := store2.Since(ctx, "actor-1", -1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, 1, evs[0].SchemaVersion)

	v1, err := evs[0].DecodeV1()
	require.NoError(t, err)
	assert.Equal(t, "Start", v1.Trigger)
}
