package fogsim

// tuple.go holds the runtime data unit that flows along application edges, the
// per-application table interning tuple type names, and the accumulator that
// turns a fractional selectivity into a deterministic emission pattern.

import (
	"fmt"
	"math"
)

// Direction says whether a tuple travels toward the root (Up) or away from it (Down)
type Direction int

const (
	Up Direction = iota
	Down
)

// DirectionFromStr accepts the names used in scenario descriptions
func DirectionFromStr(name string) (Direction, error) {
	switch name {
	case "UP", "up", "Up", "":
		return Up, nil
	case "DOWN", "down", "Down":
		return Down, nil
	}
	return Up, fmt.Errorf("unknown direction %q", name)
}

func (dir Direction) String() string {
	if dir == Down {
		return "DOWN"
	}
	return "UP"
}

// EdgeKind says what sits at the ends of an application edge
type EdgeKind int

const (
	SensorEdge EdgeKind = iota
	ModuleEdge
	ActuatorEdge
)

// EdgeKindFromStr accepts the names used in scenario descriptions
func EdgeKindFromStr(name string) (EdgeKind, error) {
	switch name {
	case "SENSOR", "sensor":
		return SensorEdge, nil
	case "MODULE", "module", "":
		return ModuleEdge, nil
	case "ACTUATOR", "actuator":
		return ActuatorEdge, nil
	}
	return ModuleEdge, fmt.Errorf("unknown edge kind %q", name)
}

func (ek EdgeKind) String() string {
	switch ek {
	case SensorEdge:
		return "SENSOR"
	case ActuatorEdge:
		return "ACTUATOR"
	}
	return "MODULE"
}

// TupleTypeID is the interned form of a tuple type name
type TupleTypeID int

// TupleTypeTable interns tuple type names for one application
type TupleTypeTable struct {
	names []string
	ids   map[string]TupleTypeID
}

// CreateTupleTypeTable is a constructor
func CreateTupleTypeTable() *TupleTypeTable {
	return &TupleTypeTable{names: make([]string, 0), ids: make(map[string]TupleTypeID)}
}

// Intern returns the id of the name, adding it if new
func (ttt *TupleTypeTable) Intern(name string) TupleTypeID {
	if id, present := ttt.ids[name]; present {
		return id
	}
	id := TupleTypeID(len(ttt.names))
	ttt.names = append(ttt.names, name)
	ttt.ids[name] = id
	return id
}

// Lookup finds the id of a name already interned
func (ttt *TupleTypeTable) Lookup(name string) (TupleTypeID, bool) {
	id, present := ttt.ids[name]
	return id, present
}

// Name returns the name of an interned id
func (ttt *TupleTypeTable) Name(id TupleTypeID) string {
	if int(id) < 0 || int(id) >= len(ttt.names) {
		return ""
	}
	return ttt.names[id]
}

// Size is the number of interned names
func (ttt *TupleTypeTable) Size() int {
	return len(ttt.names)
}

// LoopStamp remembers when a tuple's ancestry entered a measured loop
type LoopStamp struct {
	LoopID int
	Start  float64
}

// Tuple is the runtime message carried along an application edge
type Tuple struct {
	ID        int
	Type      TupleTypeID
	TypeName  string
	Src       string // source module or sensor name
	Dst       string // destination module or actuator type
	CPULength float64
	NwLength  float64
	Direction Direction
	Created   float64
	Gateway   int // device whose sensor started the chain
	Loops     []LoopStamp
}

// loopStart returns when the tuple's ancestry entered the loop, if it did
func (tpl *Tuple) loopStart(loopID int) (float64, bool) {
	for _, ls := range tpl.Loops {
		if ls.LoopID == loopID {
			return ls.Start, true
		}
	}
	return 0, false
}

func (tpl *Tuple) String() string {
	return fmt.Sprintf("tuple %d %s %s->%s", tpl.ID, tpl.TypeName, tpl.Src, tpl.Dst)
}

// emissionCounter grants the outputs of one mapping at one instance: after n
// offers floor(s*n) emissions have been granted, whatever s is
type emissionCounter struct {
	offered int64
	emitted int64
}

// offer accounts for one input and reports whether an output is due
func (ec *emissionCounter) offer(s float64) bool {
	ec.offered += 1
	due := int64(math.Floor(s * float64(ec.offered)))
	if due > ec.emitted {
		ec.emitted += 1
		return true
	}
	return false
}
