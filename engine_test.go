package fogsim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder is a test entity remembering what it received, and optionally reacting to it
type recorder struct {
	id     int
	name   string
	got    []*Event
	times  []float64
	handle func(eng *Engine, evt *Event) error
}

func (rec *recorder) EntityID() int {
	return rec.id
}

func (rec *recorder) EntityName() string {
	return rec.name
}

func (rec *recorder) ProcessEvent(eng *Engine, evt *Event) error {
	rec.got = append(rec.got, evt)
	rec.times = append(rec.times, eng.Now())
	if rec.handle != nil {
		return rec.handle(eng, evt)
	}
	return nil
}

func newTestEngine(t *testing.T, names ...string) (*Engine, []*recorder) {
	t.Helper()
	reg := CreateRegistry()
	recs := make([]*recorder, 0, len(names))
	for _, name := range names {
		rec := &recorder{id: reg.NxtID(), name: name}
		require.NoError(t, reg.Register(rec, "test"))
		recs = append(recs, rec)
	}
	return CreateEngine(reg, nil), recs
}

func TestEngineOrdersByTimeThenSequence(t *testing.T) {
	eng, recs := newTestEngine(t, "a")
	a := recs[0]

	_, err := eng.Schedule(a.id, SensorEmit, 5, "late")
	require.NoError(t, err)
	_, err = eng.Schedule(a.id, SensorEmit, 1, "first")
	require.NoError(t, err)
	_, err = eng.Schedule(a.id, SensorEmit, 1, "second")
	require.NoError(t, err)
	_, err = eng.ScheduleAt(a.id, SensorEmit, 1, "third")
	require.NoError(t, err)

	require.NoError(t, eng.Run())
	require.Len(t, a.got, 4)
	payloads := []any{}
	for _, evt := range a.got {
		payloads = append(payloads, evt.Payload)
	}
	require.Equal(t, []any{"first", "second", "third", "late"}, payloads)
	require.Equal(t, []float64{1, 1, 1, 5}, a.times)
	require.Equal(t, 5.0, eng.Now())
	require.Equal(t, 4, eng.Executed())
}

func TestEngineZeroDelayRunsAfterSameTimeEvents(t *testing.T) {
	eng, recs := newTestEngine(t, "a", "b")
	a, b := recs[0], recs[1]
	order := []string{}
	a.handle = func(eng *Engine, evt *Event) error {
		order = append(order, "a")
		_, err := eng.Schedule(a.id, TupleArrival, 0, nil)
		a.handle = func(*Engine, *Event) error { order = append(order, "a-again"); return nil }
		return err
	}
	b.handle = func(*Engine, *Event) error { order = append(order, "b"); return nil }

	_, err := eng.Schedule(a.id, SensorEmit, 2, nil)
	require.NoError(t, err)
	_, err = eng.Schedule(b.id, SensorEmit, 2, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Run())
	require.Equal(t, []string{"a", "b", "a-again"}, order)
}

func TestEngineCancelledEventsAreDropped(t *testing.T) {
	eng, recs := newTestEngine(t, "a")
	a := recs[0]
	evt, err := eng.Schedule(a.id, ResourceUpdate, 3, nil)
	require.NoError(t, err)
	_, err = eng.Schedule(a.id, SensorEmit, 4, nil)
	require.NoError(t, err)
	evt.Cancel()
	require.True(t, evt.Cancelled())

	require.NoError(t, eng.Run())
	require.Len(t, a.got, 1)
	require.Equal(t, SensorEmit, a.got[0].Kind)
	require.Equal(t, 1, eng.Executed())
}

func TestEngineRejectsInvalidTimes(t *testing.T) {
	eng, recs := newTestEngine(t, "a")
	a := recs[0]
	a.handle = func(eng *Engine, evt *Event) error {
		_, err := eng.ScheduleAt(a.id, SensorEmit, 1, nil)
		return err
	}
	_, err := eng.Schedule(a.id, SensorEmit, -1, nil)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, InvalidTime, ee.Code)

	_, err = eng.Schedule(a.id, SensorEmit, 2, nil)
	require.NoError(t, err)
	err = eng.Run()
	require.ErrorAs(t, err, &ee)
	require.Equal(t, InvalidTime, ee.Code)
}

func TestEngineUnknownTarget(t *testing.T) {
	eng, _ := newTestEngine(t, "a")
	_, err := eng.Schedule(99, SensorEmit, 1, nil)
	require.NoError(t, err)

	err = eng.Run()
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, NoSuchEntity, ee.Code)
	require.Equal(t, 99, ee.Target)
}

func TestEngineStopDrainsOnlySameTimeResourceUpdates(t *testing.T) {
	eng, recs := newTestEngine(t, "a", "b")
	a, b := recs[0], recs[1]

	_, err := eng.ScheduleAt(a.id, SimulationEnd, 10, nil)
	require.NoError(t, err)
	_, err = eng.ScheduleAt(b.id, ResourceUpdate, 10, nil)
	require.NoError(t, err)
	_, err = eng.ScheduleAt(b.id, SensorEmit, 10, nil)
	require.NoError(t, err)
	_, err = eng.ScheduleAt(b.id, ResourceUpdate, 11, nil)
	require.NoError(t, err)

	require.NoError(t, eng.Run())
	require.True(t, eng.Stopped())
	require.Len(t, b.got, 1)
	require.Equal(t, ResourceUpdate, b.got[0].Kind)
	require.Equal(t, 10.0, eng.Now())
}

func TestEngineRunContextCancelled(t *testing.T) {
	eng, recs := newTestEngine(t, "a")
	a := recs[0]
	a.handle = func(eng *Engine, evt *Event) error {
		_, err := eng.Schedule(a.id, SensorEmit, 1, nil)
		return err
	}
	_, err := eng.Schedule(a.id, SensorEmit, 1, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = eng.RunContext(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestEngineDigestDependsOnHistory(t *testing.T) {
	digest := func(delays ...float64) uint64 {
		eng, recs := newTestEngine(t, "a")
		for _, d := range delays {
			_, err := eng.Schedule(recs[0].id, SensorEmit, d, nil)
			require.NoError(t, err)
		}
		require.NoError(t, eng.Run())
		return eng.Digest()
	}
	require.Equal(t, digest(1, 2, 3), digest(1, 2, 3))
	require.NotEqual(t, digest(1, 2, 3), digest(1, 2, 4))
}

func TestEngineRecordsEvents(t *testing.T) {
	eng, recs := newTestEngine(t, "a")
	eng.RecordEvents(true)
	_, err := eng.Schedule(recs[0].id, PowerSample, 2.5, nil)
	require.NoError(t, err)
	require.NoError(t, eng.Run())
	require.Equal(t, []EventRecord{{Time: 2.5, Seq: 1, Target: recs[0].id, Kind: PowerSample}}, eng.Records())
}
