package fogsim

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one serialized trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is a an entry in a dictionary created for a trace
// that maps entity id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about a simulation model and an execution of
// that model.  Records are kept per entity id.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each entity id
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record under the id of the entity it concerns
func (tm *TraceManager) AddTrace(vrt vrtime.Time, objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.Active() {
		return nil
	}
	if _, present := tm.NameByID[id]; present {
		return fmt.Errorf("trace dictionary already holds id %d", id)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// Records returns the number of trace records gathered
func (tm *TraceManager) Records() int {
	total := 0
	for _, list := range tm.Traces {
		total += len(list)
	}
	return total
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// With globalOrder set all records are merged into one list ordered by time.
func (tm *TraceManager) WriteToFile(filename string, globalOrder bool) error {
	if !tm.Active() {
		return nil
	}
	out := tm
	if globalOrder {
		out = new(TraceManager)
		out.InUse = tm.InUse
		out.ExpName = tm.ExpName
		out.NameByID = make(map[int]NameType)
		for key, value := range tm.NameByID {
			out.NameByID[key] = value
		}

		ids := make([]int, 0, len(tm.Traces))
		for id := range tm.Traces {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		merged := make([]TraceInst, 0)
		for _, id := range ids {
			merged = append(merged, tm.Traces[id]...)
		}
		sort.SliceStable(merged, func(i, j int) bool {
			v1, _ := strconv.ParseFloat(merged[i].TraceTime, 64)
			v2, _ := strconv.ParseFloat(merged[j].TraceTime, 64)
			return v1 < v2
		})
		out.Traces = map[int][]TraceInst{0: merged}
	}

	return writeDesc(filename, out)
}

// TupleTrace records a tuple passing some point of the simulation
type TupleTrace struct {
	Time     float64 // seconds
	Ticks    int64
	ObjID    int
	TupleID  int
	Op       string // "emit", "forward", "start", "finish", "actuate"
	TupleTyp string
	Module   string
}

func (tt *TupleTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*tt)
	if merr != nil {
		return ""
	}
	return string(bytes[:])
}

// msToTime converts simulation milliseconds to a virtual time stamp
func msToTime(ms float64) vrtime.Time {
	return vrtime.SecondsToTime(ms / 1000.0)
}

// AddTupleTrace creates a record of a tuple event at the entity and stores it
func AddTupleTrace(tm *TraceManager, nowMs float64, objID int, tpl *Tuple, module, op string) {
	if !tm.Active() {
		return
	}
	vrt := msToTime(nowMs)
	tt := &TupleTrace{Time: vrt.Seconds(), Ticks: vrt.Ticks(), ObjID: objID, TupleID: tpl.ID,
		Op: op, TupleTyp: tpl.TypeName, Module: module}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(vrt, objID, TraceInst{TraceTime: traceTime, TraceType: "tuple", TraceStr: tt.Serialize()})
}

// SchedulerTrace records the occupancy of a host's scheduler
type SchedulerTrace struct {
	Time        float64
	ObjID       int
	Op          string
	ActiveJobs  int
	Utilization float64
}

func (st *SchedulerTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*st)
	if merr != nil {
		return ""
	}
	return string(bytes[:])
}

// AddSchedulerTrace records the scheduler state of a device
func AddSchedulerTrace(tm *TraceManager, nowMs float64, objID int, ms *ModuleScheduler, op string) {
	if !tm.Active() {
		return
	}
	vrt := msToTime(nowMs)
	st := &SchedulerTrace{Time: vrt.Seconds(), ObjID: objID, Op: op, ActiveJobs: ms.ActiveJobs(),
		Utilization: ms.Utilization()}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(vrt, objID, TraceInst{TraceTime: traceTime, TraceType: "scheduler", TraceStr: st.Serialize()})
}
