package outstation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/dnp3-outstation/pkg/app"
	"avaneesh/dnp3-outstation/pkg/types"
)

func newTestDatabase(t *testing.T) (*Database, *EventBuffer) {
	t.Helper()
	events := NewEventBuffer(100)
	db := NewDatabase(map[types.PointClass]PointConfig{
		types.PointClassBinary:  {Count: 4, EventClass: 1},
		types.PointClassAnalog:  {Count: 4, EventClass: 2, Deadband: 0.5},
		types.PointClassCounter: {Count: 2, EventClass: 0},
	}, events)
	db.SetClock(func() types.DNP3Time { return 1000 })
	return db, events
}

func TestDatabase_InitialState(t *testing.T) {
	db, _ := newTestDatabase(t)

	assert.Equal(t, 4, db.Count(types.PointClassBinary))
	assert.Equal(t, 0, db.Count(types.PointClassFrozenCounter))

	p, err := db.Get(types.PointClassAnalog, 3)
	require.NoError(t, err)
	assert.Equal(t, float64(0), p.Value)
	assert.True(t, p.Flags.HasRestart())
	assert.False(t, p.Flags.IsOnline())

	_, err = db.Get(types.PointClassAnalog, 4)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = db.Get(types.PointClass(42), 0)
	assert.ErrorIs(t, err, ErrInvalidPointClass)
}

func TestDatabase_Update(t *testing.T) {
	db, events := newTestDatabase(t)

	prev, err := db.Update(types.PointClassAnalog, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, float64(0), prev.Value)

	p, err := db.Get(types.PointClassAnalog, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(10), p.Value)
	assert.Equal(t, types.FlagOnline, p.Flags)
	assert.Equal(t, types.DNP3Time(1000), p.Time)
	assert.True(t, p.Event)
	assert.Equal(t, [3]int{0, 1, 0}, events.Counts())

	ev := events.Select("m", classBit(2), 0)
	require.Len(t, ev, 1)
	assert.Equal(t, float64(0), ev[0].Previous)
	assert.Equal(t, float64(10), ev[0].Value)
	assert.Equal(t, uint16(1), ev[0].Index)
}

func TestDatabase_UpdateErrors(t *testing.T) {
	db, events := newTestDatabase(t)

	_, err := db.Update(types.PointClassBinary, 9, true)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = db.Update(types.PointClassCounter, 0, -1)
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = db.Update(types.PointClassBinary, 0, "on")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = db.Update(types.PointClass(99), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidPointClass)

	assert.False(t, events.HasEvents())
}

func TestDatabase_UpdateOptions(t *testing.T) {
	db, events := newTestDatabase(t)

	_, err := db.Update(types.PointClassBinary, 0, true,
		WithFlags(types.FlagOnline|types.FlagLocalForced), WithTime(5000))
	require.NoError(t, err)
	p, err := db.Get(types.PointClassBinary, 0)
	require.NoError(t, err)
	assert.True(t, p.Flags.IsLocalForced())
	assert.Equal(t, types.DNP3Time(5000), p.Time)

	_, err = db.Update(types.PointClassBinary, 1, true, WithEventMode(EventModeSuppress))
	require.NoError(t, err)
	p, err = db.Get(types.PointClassBinary, 1)
	require.NoError(t, err)
	assert.Equal(t, true, p.Value)
	assert.False(t, p.Event)
	assert.Equal(t, [3]int{1, 0, 0}, events.Counts())
}

func TestDatabase_DetectMode(t *testing.T) {
	tests := []struct {
		name  string
		class types.PointClass
		first any
		next  any
		event bool
	}{
		{"analog inside deadband", types.PointClassAnalog, 1.0, 1.4, false},
		{"analog outside deadband", types.PointClassAnalog, 1.0, 1.6, true},
		{"binary unchanged", types.PointClassBinary, true, true, false},
		{"binary changed", types.PointClassBinary, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, events := newTestDatabase(t)
			_, err := db.Update(tt.class, 0, tt.first)
			require.NoError(t, err)
			events.Clear()

			_, err = db.Update(tt.class, 0, tt.next, WithEventMode(EventModeDetect))
			require.NoError(t, err)
			assert.Equal(t, tt.event, events.HasEvents())
		})
	}
}

func TestDatabase_NoEventClass(t *testing.T) {
	db, events := newTestDatabase(t)
	calls := 0
	db.OnChange(func() { calls++ })

	_, err := db.Update(types.PointClassCounter, 1, uint32(3))
	require.NoError(t, err)
	assert.False(t, events.HasEvents())
	assert.Zero(t, calls)

	_, err = db.Update(types.PointClassBinary, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDatabase_Apply(t *testing.T) {
	db, events := newTestDatabase(t)
	calls := 0
	db.OnChange(func() { calls++ })

	err := db.Apply(NewUpdateBuilder().
		UpdateBinary(0, true).
		UpdateAnalog(2, 7.25).
		UpdateCounter(1, 9).
		Build())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	snap := db.Snapshot()
	assert.Equal(t, true, snap["Binary"]["0"])
	assert.Equal(t, 7.25, snap["Analog"]["2"])
	assert.Equal(t, uint32(9), snap["Counter"]["1"])
	assert.Equal(t, [3]int{1, 1, 0}, events.Counts())
}

func TestDatabase_ApplyIsAllOrNothing(t *testing.T) {
	db, events := newTestDatabase(t)

	err := db.Apply(NewUpdateBuilder().
		UpdateBinary(0, true).
		UpdateAnalog(7, 1).
		Build())
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	err = db.Apply(NewUpdateBuilder().
		UpdateAnalog(0, 1).
		Update(types.PointClassBinary, 1, "bad").
		Build())
	assert.ErrorIs(t, err, ErrInvalidValue)

	p, err := db.Get(types.PointClassBinary, 0)
	require.NoError(t, err)
	assert.Equal(t, false, p.Value)
	assert.False(t, events.HasEvents())

	assert.NoError(t, db.Apply(nil))
	assert.NoError(t, db.Apply(NewUpdateBuilder().Build()))
}

func TestDatabase_ClearEventFlags(t *testing.T) {
	db, events := newTestDatabase(t)

	_, err := db.Update(types.PointClassBinary, 0, true)
	require.NoError(t, err)
	selected := events.Select("m", classBit(1), 0)
	// a newer change arrives before the master confirms the first
	_, err = db.Update(types.PointClassBinary, 0, false)
	require.NoError(t, err)

	db.clearEventFlags(events.Ack("m"))
	p, err := db.Get(types.PointClassBinary, 0)
	require.NoError(t, err)
	assert.True(t, p.Event, "unconfirmed newer event keeps the flag")
	require.Len(t, selected, 1)

	db.clearEventFlags(events.Select("m", classBit(1), 0))
	p, err = db.Get(types.PointClassBinary, 0)
	require.NoError(t, err)
	assert.False(t, p.Event)
}

func TestDatabase_Snapshot(t *testing.T) {
	db, _ := newTestDatabase(t)
	snap := db.Snapshot()

	assert.Len(t, snap, 3)
	assert.Len(t, snap["Binary"], 4)
	assert.Len(t, snap["Counter"], 2)
	assert.NotContains(t, snap, "FrozenCounter")

	// snapshots are copies
	snap["Binary"]["0"] = true
	p, err := db.Get(types.PointClassBinary, 0)
	require.NoError(t, err)
	assert.Equal(t, false, p.Value)
}

func TestDatabase_EventFlagClearedAfterOverflow(t *testing.T) {
	events := NewEventBuffer(2)
	db := NewDatabase(map[types.PointClass]PointConfig{
		types.PointClassAnalog: {Count: 3, EventClass: 1},
	}, events)

	_, err := db.Update(types.PointClassAnalog, 0, 1.0)
	require.NoError(t, err)
	require.Len(t, events.Select("m", app.Class1, 0), 1)

	_, err = db.Update(types.PointClassAnalog, 1, 2.0)
	require.NoError(t, err)
	_, err = db.Update(types.PointClassAnalog, 2, 3.0)
	require.NoError(t, err)
	assert.True(t, events.Overflow())

	db.clearEventFlags(events.Ack("m"))
	p, err := db.Get(types.PointClassAnalog, 0)
	require.NoError(t, err)
	assert.False(t, p.Event, "reported and confirmed event must clear the flag")

	p, err = db.Get(types.PointClassAnalog, 2)
	require.NoError(t, err)
	assert.True(t, p.Event)
}
