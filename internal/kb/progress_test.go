package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_CallbackAndChannelBothReceive(t *testing.T) {
	var cbEvents []Event
	bus := NewBus(func(e Event) { cbEvents = append(cbEvents, e) }, 8)

	bus.Emit(Phase1Start{Total: 3})
	bus.Emit(Phase1Complete{DocumentsLoaded: 3})
	bus.Close()

	require.Len(t, cbEvents, 2)
	assert.Equal(t, Phase1Start{Total: 3}, cbEvents[0])

	var chEvents []Event
	for e := range bus.Events() {
		chEvents = append(chEvents, e)
	}
	assert.Equal(t, cbEvents, chEvents)
}

func TestBus_NilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Emit(Phase1Start{Total: 1}) // must not panic
}

func TestBus_FullChannelDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus(nil, 1)
	bus.Emit(Phase1Progress{Current: 1, Total: 2})
	bus.Emit(Phase1Progress{Current: 2, Total: 2}) // dropped, not a deadlock
	bus.Close()

	var got []Event
	for e := range bus.Events() {
		got = append(got, e)
	}
	require.Len(t, got, 1)
	assert.Equal(t, Phase1Progress{Current: 1, Total: 2}, got[0])
}

// Phase 2 start must be emitted twice per reindex: once sizing the
// prefilter scan over all candidates, once sizing the write loop over only
// dirty candidates.
func TestReindex_Phase2EmittedTwice(t *testing.T) {
	svc, _, _ := newTestService(t)
	writeDoc(t, svc, "", "First Note", "already embedded")
	writeDoc(t, svc, "", "Second Note", "also already embedded")

	_, err := svc.Reindex(context.Background(), "", nil)
	require.NoError(t, err)

	// A third document is the only dirty candidate on the next run.
	writeDoc(t, svc, "", "New Note", "not embedded yet")

	var starts []Phase2Start
	var completes []Phase2Complete
	bus := NewBus(func(e Event) {
		switch ev := e.(type) {
		case Phase2Start:
			starts = append(starts, ev)
		case Phase2Complete:
			completes = append(completes, ev)
		}
	}, 0)

	_, err = svc.Reindex(context.Background(), "", bus)
	require.NoError(t, err)
	bus.Close()

	require.Len(t, starts, 2, "phase 2 must start twice: prefilter then writes")
	assert.Equal(t, 3, starts[0].Total, "the first pass covers all candidates")
	assert.Equal(t, 1, starts[1].Total, "the second pass covers only dirty candidates")

	require.Len(t, completes, 1)
	assert.Equal(t, 3, completes[0].Synced)
	assert.Equal(t, 0, completes[0].Failed)
}

func TestReindex_Phase1Events(t *testing.T) {
	svc, _, _ := newTestService(t)
	writeDoc(t, svc, "", "One", "first")
	writeDoc(t, svc, "", "Two", "second")

	var start *Phase1Start
	var progress []Phase1Progress
	var complete *Phase1Complete
	bus := NewBus(func(e Event) {
		switch ev := e.(type) {
		case Phase1Start:
			start = &ev
		case Phase1Progress:
			progress = append(progress, ev)
		case Phase1Complete:
			complete = &ev
		}
	}, 0)

	_, err := svc.Reindex(context.Background(), "", bus)
	require.NoError(t, err)
	bus.Close()

	require.NotNil(t, start)
	assert.Equal(t, 2, start.Total)
	assert.Len(t, progress, 2)
	require.NotNil(t, complete)
	assert.Equal(t, 2, complete.DocumentsLoaded)
}
