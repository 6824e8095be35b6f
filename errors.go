package fogsim

// errors.go holds the error taxonomy of the simulator.  Scenario problems are
// reported as ValidationError, placement problems as PlacementError, resource
// book-keeping problems as ResourceError, engine misuse as EngineError, and
// broken internal invariants as InvariantViolation.  A driver maps these onto
// process exit codes with ExitCode.

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports everything found wrong with a scenario description.
// All problems are gathered before returning so one pass shows them all.
type ValidationError struct {
	Problems []string
}

func (ve *ValidationError) Error() string {
	if len(ve.Problems) == 1 {
		return "validation: " + ve.Problems[0]
	}
	return fmt.Sprintf("validation: %d problems: %s", len(ve.Problems), strings.Join(ve.Problems, "; "))
}

// add appends a formatted problem to the list
func (ve *ValidationError) add(format string, args ...any) {
	ve.Problems = append(ve.Problems, fmt.Sprintf(format, args...))
}

// errOrNil returns the ValidationError if it holds any problem, nil otherwise
func (ve *ValidationError) errOrNil() error {
	if len(ve.Problems) == 0 {
		return nil
	}
	return ve
}

// PlacementCode distinguishes the ways module placement can fail
type PlacementCode int

const (
	NoFeasibleDevice PlacementCode = iota
	PinConflict
)

func (pc PlacementCode) String() string {
	switch pc {
	case NoFeasibleDevice:
		return "NoFeasibleDevice"
	case PinConflict:
		return "PinConflict"
	}
	return "Unknown"
}

// PlacementError is returned by a ModulePlacer that cannot produce a total placement
type PlacementError struct {
	Code   PlacementCode
	Module string
	Device string
	Detail string
}

func (pe *PlacementError) Error() string {
	msg := fmt.Sprintf("placement: %s: module %s", pe.Code, pe.Module)
	if len(pe.Device) > 0 {
		msg += " on device " + pe.Device
	}
	if len(pe.Detail) > 0 {
		msg += ": " + pe.Detail
	}
	return msg
}

// ResourceCode distinguishes resource book-keeping failures
type ResourceCode int

const (
	InsufficientRam ResourceCode = iota
	CapacityOverflow
)

func (rc ResourceCode) String() string {
	switch rc {
	case InsufficientRam:
		return "InsufficientRam"
	case CapacityOverflow:
		return "CapacityOverflow"
	}
	return "Unknown"
}

// ResourceError is raised by the provisioners when an allocation cannot be made
type ResourceError struct {
	Code      ResourceCode
	Device    string
	Module    string
	Requested float64
	Available float64
}

func (re *ResourceError) Error() string {
	return fmt.Sprintf("resource: %s: device %s module %s requested %g available %g",
		re.Code, re.Device, re.Module, re.Requested, re.Available)
}

// EngineCode distinguishes misuse of the event engine
type EngineCode int

const (
	InvalidTime EngineCode = iota
	NoSuchEntity
)

func (ec EngineCode) String() string {
	switch ec {
	case InvalidTime:
		return "InvalidTime"
	case NoSuchEntity:
		return "NoSuchEntity"
	}
	return "Unknown"
}

// EngineError is returned when an event is scheduled in the past or addressed to
// an entity the registry does not know.  Both are configuration errors.
type EngineError struct {
	Code   EngineCode
	Target int
	Time   float64
	Detail string
	Dump   *StateDump
}

func (ee *EngineError) Error() string {
	msg := fmt.Sprintf("engine: %s: target %d at t=%g", ee.Code, ee.Target, ee.Time)
	if len(ee.Detail) > 0 {
		msg += ": " + ee.Detail
	}
	return msg
}

// InvariantViolation signals that the simulator's own book-keeping went wrong:
// a clock moving backwards, an event dispatched twice, a placement that is not total.
type InvariantViolation struct {
	What string
	Dump *StateDump
}

func (iv *InvariantViolation) Error() string {
	return "invariant violation: " + iv.What
}

// StateDump is a snapshot of the simulation taken when a run is aborted
type StateDump struct {
	Clock     float64      `json:"clock" yaml:"clock"`
	Pending   int          `json:"pending" yaml:"pending"`
	LastEvent string       `json:"lastevent" yaml:"lastevent"`
	Devices   []DeviceDump `json:"devices" yaml:"devices"`
}

// DeviceDump is the per-device part of a StateDump
type DeviceDump struct {
	Name        string  `json:"name" yaml:"name"`
	Utilization float64 `json:"utilization" yaml:"utilization"`
	ActiveJobs  int     `json:"activejobs" yaml:"activejobs"`
	EnergyJ     float64 `json:"energyj" yaml:"energyj"`
}

func (sd *StateDump) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "clock=%g pending=%d last=%s\n", sd.Clock, sd.Pending, sd.LastEvent)
	for _, dd := range sd.Devices {
		fmt.Fprintf(&sb, "  %s util=%.3f jobs=%d energy=%.3fJ\n", dd.Name, dd.Utilization, dd.ActiveJobs, dd.EnergyJ)
	}
	return sb.String()
}

// Exit codes used when a driver wraps Run
const (
	ExitOK         = 0
	ExitInternal   = 1
	ExitPlacement  = 2
	ExitValidation = 3
)

// ExitCode maps an error returned from Run onto the driver's process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ExitValidation
	}
	var pe *PlacementError
	if errors.As(err, &pe) {
		return ExitPlacement
	}
	return ExitInternal
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}
