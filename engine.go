package fogsim

// engine.go holds the discrete-event engine.  Events are kept in a heap ordered
// by (time, sequence); the sequence number is global to the engine so that events
// scheduled for the same time are dispatched first-come first-serve.  Each event
// names a target entity by integer id, and the Registry resolves that id to the
// handler that receives it.

import (
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-hclog"
)

// EventKind tags what an event means to the entity that receives it
type EventKind int

const (
	TupleArrival EventKind = iota
	ResourceUpdate
	PowerSample
	SensorEmit
	SimulationEnd
	PeriodicEmit
)

func (ek EventKind) String() string {
	switch ek {
	case TupleArrival:
		return "tuple-arrival"
	case ResourceUpdate:
		return "resource-update"
	case PowerSample:
		return "periodic-power-sample"
	case SensorEmit:
		return "sensor-emit"
	case SimulationEnd:
		return "simulation-end"
	case PeriodicEmit:
		return "periodic-emit"
	}
	return "unknown"
}

// Event is a timestamped message to an entity
type Event struct {
	Time    float64
	Seq     uint64
	Target  int
	Kind    EventKind
	Payload any

	cancelled  bool
	dispatched bool
	index      int // position in the heap, maintained by the heap.Interface methods
}

// Cancel marks the event so that it is dropped, without side effect, when its time comes
func (evt *Event) Cancel() {
	evt.cancelled = true
}

// Cancelled reports whether Cancel was called on the event
func (evt *Event) Cancelled() bool {
	return evt.cancelled
}

func (evt *Event) String() string {
	return fmt.Sprintf("%s@%g#%d->%d", evt.Kind, evt.Time, evt.Seq, evt.Target)
}

// Entity is anything that can be the target of an event
type Entity interface {
	EntityID() int
	EntityName() string
	ProcessEvent(eng *Engine, evt *Event) error
}

// EventRecord is what the engine remembers of a dispatched event when tracing
type EventRecord struct {
	Time   float64   `json:"time" yaml:"time"`
	Seq    uint64    `json:"seq" yaml:"seq"`
	Target int       `json:"target" yaml:"target"`
	Kind   EventKind `json:"kind" yaml:"kind"`
}

// eventQueue implements heap.Interface over events
type eventQueue []*Event

func (eq eventQueue) Len() int { return len(eq) }

func (eq eventQueue) Less(i, j int) bool {
	if eq[i].Time != eq[j].Time {
		return eq[i].Time < eq[j].Time
	}
	return eq[i].Seq < eq[j].Seq
}

func (eq eventQueue) Swap(i, j int) {
	eq[i], eq[j] = eq[j], eq[i]
	eq[i].index = i
	eq[j].index = j
}

func (eq *eventQueue) Push(x any) {
	evt := x.(*Event)
	evt.index = len(*eq)
	*eq = append(*eq, evt)
}

func (eq *eventQueue) Pop() any {
	old := *eq
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	evt.index = -1
	*eq = old[0 : n-1]
	return evt
}

// Engine advances virtual time by dispatching events in (time, sequence) order.
// An Engine is confined to one goroutine.
type Engine struct {
	queue    eventQueue
	clock    float64
	seq      uint64
	registry *Registry
	stopped  bool
	current  *Event
	last     *Event
	executed int

	digest   *xxhash.Digest
	recordOn bool
	records  []EventRecord
	logger   hclog.Logger
}

// CreateEngine is a constructor.  Events are delivered to entities found in reg.
func CreateEngine(reg *Registry, logger hclog.Logger) *Engine {
	eng := new(Engine)
	eng.queue = make(eventQueue, 0)
	eng.registry = reg
	eng.digest = xxhash.New()
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	eng.logger = logger
	return eng
}

// RecordEvents turns on retention of every dispatched event's (time, seq, target, kind)
func (eng *Engine) RecordEvents(on bool) {
	eng.recordOn = on
}

// Now returns the simulation clock
func (eng *Engine) Now() float64 {
	return eng.clock
}

// Pending is the number of events in the queue, cancelled ones included
func (eng *Engine) Pending() int {
	return len(eng.queue)
}

// Executed is the number of events dispatched so far
func (eng *Engine) Executed() int {
	return eng.executed
}

// Digest is a hash over the stream of dispatched events; two runs of the same
// scenario produce the same digest
func (eng *Engine) Digest() uint64 {
	return eng.digest.Sum64()
}

// Records returns the dispatched events, when RecordEvents was turned on
func (eng *Engine) Records() []EventRecord {
	return eng.records
}

// LastEvent describes the most recently dispatched event, for state dumps
func (eng *Engine) LastEvent() string {
	if eng.last == nil {
		return "none"
	}
	return eng.last.String()
}

// Schedule puts an event for target on the queue, delay milliseconds from now.
// A delay of zero places the event after everything already scheduled for the current time.
func (eng *Engine) Schedule(target int, kind EventKind, delay float64, payload any) (*Event, error) {
	if delay < 0 || math.IsNaN(delay) {
		return nil, &EngineError{Code: InvalidTime, Target: target, Time: eng.clock,
			Detail: fmt.Sprintf("negative delay %g for %s", delay, kind)}
	}
	return eng.push(target, kind, eng.clock+delay, payload), nil
}

// ScheduleAt puts an event for target on the queue at an absolute time, which may not lie in the past
func (eng *Engine) ScheduleAt(target int, kind EventKind, at float64, payload any) (*Event, error) {
	if at < eng.clock || math.IsNaN(at) {
		return nil, &EngineError{Code: InvalidTime, Target: target, Time: eng.clock,
			Detail: fmt.Sprintf("time %g precedes clock for %s", at, kind)}
	}
	return eng.push(target, kind, at, payload), nil
}

func (eng *Engine) push(target int, kind EventKind, at float64, payload any) *Event {
	eng.seq += 1
	evt := &Event{Time: at, Seq: eng.seq, Target: target, Kind: kind, Payload: payload}
	heap.Push(&eng.queue, evt)
	return evt
}

// Stop ends the run once the handler now executing returns
func (eng *Engine) Stop() {
	eng.stopped = true
}

// Stopped reports whether Stop was called or a simulation-end event fired
func (eng *Engine) Stopped() bool {
	return eng.stopped
}

// ctxCheckEvery is how many events are dispatched between checks of the run context
const ctxCheckEvery = 4096

// Run dispatches events until the queue is empty, a simulation-end event has been
// handled, or Stop is called.  After stopping, only resource-update events stamped
// with the current clock are still dispatched, so that in-flight completions finalize.
func (eng *Engine) Run() error {
	return eng.RunContext(context.Background())
}

// RunContext is Run, abandoned with the context's error when the context is done
func (eng *Engine) RunContext(ctx context.Context) error {
	for len(eng.queue) > 0 && !eng.stopped {
		if eng.executed%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		evt := heap.Pop(&eng.queue).(*Event)
		if err := eng.dispatch(evt); err != nil {
			return err
		}
	}

	// drain finalization events at the stopping time
	for len(eng.queue) > 0 {
		nxt := eng.queue[0]
		if nxt.Time != eng.clock {
			break
		}
		evt := heap.Pop(&eng.queue).(*Event)
		if evt.Kind != ResourceUpdate {
			continue
		}
		if err := eng.dispatch(evt); err != nil {
			return err
		}
	}
	return nil
}

func (eng *Engine) dispatch(evt *Event) error {
	if evt.cancelled {
		return nil
	}
	if evt.dispatched {
		return &InvariantViolation{What: "event dispatched twice: " + evt.String()}
	}
	if evt.Time < eng.clock {
		return &InvariantViolation{What: fmt.Sprintf("clock moves backwards from %g to %g", eng.clock, evt.Time)}
	}

	entity, present := eng.registry.Lookup(evt.Target)
	if !present {
		return &EngineError{Code: NoSuchEntity, Target: evt.Target, Time: evt.Time,
			Detail: "no entity registered for " + evt.Kind.String()}
	}

	eng.clock = evt.Time
	evt.dispatched = true
	eng.current = evt
	eng.executed += 1
	eng.note(evt)

	err := entity.ProcessEvent(eng, evt)
	eng.last = evt
	eng.current = nil
	if err != nil {
		return err
	}

	if evt.Kind == SimulationEnd {
		eng.logger.Debug("simulation end", "time", eng.clock, "events", eng.executed)
		eng.stopped = true
	}
	return nil
}

// note folds the event into the digest, and into the records if they are kept
func (eng *Engine) note(evt *Event) {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(evt.Time))
	binary.LittleEndian.PutUint64(buf[8:], evt.Seq)
	binary.LittleEndian.PutUint64(buf[16:], uint64(evt.Target))
	binary.LittleEndian.PutUint64(buf[24:], uint64(evt.Kind))
	_, _ = eng.digest.Write(buf[:])

	if eng.recordOn {
		eng.records = append(eng.records, EventRecord{Time: evt.Time, Seq: evt.Seq, Target: evt.Target, Kind: evt.Kind})
	}
}
