package fogsim

// result.go holds what a run reports: loop latencies, per-device energy and
// utilization, per-module CPU consumed, per-tuple-type counts, link traffic,
// bandwidth reservations, and the placement map.

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// runNamespace scopes the name-based run ids
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("fogsim/run"))

// LoopResult summarizes the latency measured on one loop
type LoopResult struct {
	Loop   []string `json:"loop" yaml:"loop"`
	Count  int      `json:"count" yaml:"count"`
	AvgMs  float64  `json:"avgms" yaml:"avgms"`
	MinMs  float64  `json:"minms" yaml:"minms"`
	MaxMs  float64  `json:"maxms" yaml:"maxms"`
	CI95Ms float64  `json:"ci95ms" yaml:"ci95ms"`
}

// ExecResult is the mean time tuples of one type spent in service
type ExecResult struct {
	TupleType string  `json:"tupletype" yaml:"tupletype"`
	Count     int     `json:"count" yaml:"count"`
	AvgMs     float64 `json:"avgms" yaml:"avgms"`
}

// DeviceResult reports the energy and load of one device
type DeviceResult struct {
	Name            string           `json:"name" yaml:"name"`
	EnergyJ         float64          `json:"energyj" yaml:"energyj"`
	BusyTimeS       float64          `json:"busytimes" yaml:"busytimes"`
	MeanUtilization float64          `json:"meanutilization" yaml:"meanutilization"`
	ConsumedMI      float64          `json:"consumedmi" yaml:"consumedmi"`
	Cost            float64          `json:"cost" yaml:"cost"`
	RamUsed         int              `json:"ramused" yaml:"ramused"`
	PowerSamples    []PowerSampleRec `json:"powersamples,omitempty" yaml:"powersamples,omitempty"`
}

// ModuleResult reports the CPU consumed by all instances of a module
type ModuleResult struct {
	Module     string  `json:"module" yaml:"module"`
	Instances  int     `json:"instances" yaml:"instances"`
	ConsumedMI float64 `json:"consumedmi" yaml:"consumedmi"`
}

// TupleCount is the number of tuples of one type sent and received
type TupleCount struct {
	TupleType string `json:"tupletype" yaml:"tupletype"`
	Sent      int    `json:"sent" yaml:"sent"`
	Received  int    `json:"received" yaml:"received"`
}

// LinkResult reports the traffic on the link between a device and its parent
type LinkResult struct {
	Device       string  `json:"device" yaml:"device"`
	Direction    string  `json:"direction" yaml:"direction"`
	Tuples       int     `json:"tuples" yaml:"tuples"`
	Bytes        float64 `json:"bytes" yaml:"bytes"`
	Utilization  float64 `json:"utilization" yaml:"utilization"`
	BwReserved   float64 `json:"bwreserved" yaml:"bwreserved"`
	BwOverbooked bool    `json:"bwoverbooked" yaml:"bwoverbooked"`
}

// Result is everything a run reports
type Result struct {
	RunID      string              `json:"runid" yaml:"runid"`
	Scenario   string              `json:"scenario" yaml:"scenario"`
	Policy     string              `json:"policy" yaml:"policy"`
	HorizonMs  float64             `json:"horizonms" yaml:"horizonms"`
	Events     int                 `json:"events" yaml:"events"`
	Digest     string              `json:"digest" yaml:"digest"`
	Placement  map[string][]string `json:"placement" yaml:"placement"`
	Loops      []LoopResult        `json:"loops" yaml:"loops"`
	Executions []ExecResult        `json:"executions" yaml:"executions"`
	Devices    []DeviceResult      `json:"devices" yaml:"devices"`
	Modules    []ModuleResult      `json:"modules" yaml:"modules"`
	Tuples     []TupleCount        `json:"tuples" yaml:"tuples"`
	Links      []LinkResult        `json:"links" yaml:"links"`
}

// WriteToFile stores the Result to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (res *Result) WriteToFile(filename string) error {
	return writeDesc(filename, res)
}

// Device finds the result of the named device
func (res *Result) Device(name string) (*DeviceResult, bool) {
	for idx := range res.Devices {
		if res.Devices[idx].Name == name {
			return &res.Devices[idx], true
		}
	}
	return nil, false
}

// Tuple finds the counts of the named tuple type; absent types count zero
func (res *Result) Tuple(tupleType string) TupleCount {
	for _, tc := range res.Tuples {
		if tc.TupleType == tupleType {
			return tc
		}
	}
	return TupleCount{TupleType: tupleType}
}

// Module finds the result of the named module
func (res *Result) Module(name string) (*ModuleResult, bool) {
	for idx := range res.Modules {
		if res.Modules[idx].Module == name {
			return &res.Modules[idx], true
		}
	}
	return nil, false
}

// formatDigest renders an event digest the way results carry it
func formatDigest(digest uint64) string {
	return fmt.Sprintf("%016x", digest)
}

// runID names a run by its scenario, seed and event digest, so identical runs share an id
func runID(scenario string, seed, digest uint64) string {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], seed)
	binary.LittleEndian.PutUint64(buf[8:], digest)
	key := scenario + "/" + strconv.FormatUint(xxhash.Sum64(buf[:]), 16)
	return uuid.NewSHA1(runNamespace, []byte(key)).String()
}
