package fogsim

// provisioner.go holds the per-host book-keeping of CPU, RAM, and bandwidth
// allocated to the module instances a host carries.  The CPU side comes in three
// variants behind one interface; a device template names the variant it uses.

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/slices"
)

// ProvisionerVariant is the base type for the enumerated CPU provisioner kinds
type ProvisionerVariant int

const (
	SimpleProvisioner ProvisionerVariant = iota
	OverbookingProvisioner
	TimeSharedOverbookingProvisioner
)

// ProvisionerFromStr returns the variant named by a configuration string.
// The empty string selects the time-shared overbooking variant.
func ProvisionerFromStr(name string) (ProvisionerVariant, error) {
	switch name {
	case "simple", "Simple":
		return SimpleProvisioner, nil
	case "overbooking", "Overbooking":
		return OverbookingProvisioner, nil
	case "", "timeshared-overbooking", "TimeSharedOverbooking", "timeshared":
		return TimeSharedOverbookingProvisioner, nil
	}
	return SimpleProvisioner, fmt.Errorf("unknown provisioner %q", name)
}

func (pv ProvisionerVariant) String() string {
	switch pv {
	case SimpleProvisioner:
		return "simple"
	case OverbookingProvisioner:
		return "overbooking"
	case TimeSharedOverbookingProvisioner:
		return "timeshared-overbooking"
	}
	return "unknown"
}

// CPUProvisioner is the capability set every CPU provisioner variant offers
type CPUProvisioner interface {
	Allocate(moduleID int, demand float64) error
	Release(moduleID int)
	EffectiveRate(moduleID int) float64
	SetActive(moduleID int, active bool)
	Capacity() float64
	Allocated() float64
	Allocation(moduleID int) float64
	Utilization() float64
	Variant() ProvisionerVariant
}

// CreateCPUProvisioner is a constructor for the variant named.  ratio is the
// over-commitment bound used by the overbooking variant.
func CreateCPUProvisioner(variant ProvisionerVariant, device string, mips, ratio float64) CPUProvisioner {
	book := cpuBook{device: device, capacity: mips, alloc: make(map[int]float64),
		active: make(map[int]bool), order: make([]int, 0)}

	switch variant {
	case OverbookingProvisioner:
		if !(ratio > 0) {
			ratio = 4.0
		}
		return &overbookingProvisioner{cpuBook: book, ratio: ratio}
	case TimeSharedOverbookingProvisioner:
		return &timeSharedProvisioner{cpuBook: book}
	}
	return &simpleProvisioner{cpuBook: book}
}

// cpuBook holds the state shared by all the variants.  Sums are taken in
// allocation order so that results are reproducible bit for bit.
type cpuBook struct {
	device   string
	capacity float64
	alloc    map[int]float64
	active   map[int]bool
	order    []int
}

func (cb *cpuBook) record(moduleID int, demand float64) {
	if _, present := cb.alloc[moduleID]; !present {
		cb.order = append(cb.order, moduleID)
	}
	cb.alloc[moduleID] = demand
}

func (cb *cpuBook) Release(moduleID int) {
	delete(cb.alloc, moduleID)
	delete(cb.active, moduleID)
	if idx := slices.Index(cb.order, moduleID); idx > -1 {
		cb.order = slices.Delete(cb.order, idx, idx+1)
	}
}

func (cb *cpuBook) SetActive(moduleID int, active bool) {
	if active {
		cb.active[moduleID] = true
	} else {
		delete(cb.active, moduleID)
	}
}

func (cb *cpuBook) Capacity() float64 {
	return cb.capacity
}

func (cb *cpuBook) Allocation(moduleID int) float64 {
	return cb.alloc[moduleID]
}

// Allocated is the sum of all allocations
func (cb *cpuBook) Allocated() float64 {
	total := 0.0
	for _, id := range cb.order {
		total += cb.alloc[id]
	}
	return total
}

// activeDemand is the sum of allocations of modules that have work in service
func (cb *cpuBook) activeDemand() float64 {
	total := 0.0
	for _, id := range cb.order {
		if cb.active[id] {
			total += cb.alloc[id]
		}
	}
	return total
}

func (cb *cpuBook) overflow(moduleID int, demand, available float64) error {
	return &ResourceError{Code: CapacityOverflow, Device: cb.device, Module: strconv.Itoa(moduleID),
		Requested: demand, Available: available}
}

// simpleProvisioner reserves exactly what is asked and refuses to over-commit
type simpleProvisioner struct {
	cpuBook
}

func (sp *simpleProvisioner) Allocate(moduleID int, demand float64) error {
	available := sp.capacity - (sp.Allocated() - sp.alloc[moduleID])
	if demand > available+1e-9 {
		return sp.overflow(moduleID, demand, available)
	}
	sp.record(moduleID, demand)
	return nil
}

func (sp *simpleProvisioner) EffectiveRate(moduleID int) float64 {
	return sp.alloc[moduleID]
}

func (sp *simpleProvisioner) Utilization() float64 {
	if !(sp.capacity > 0) {
		return 0.0
	}
	return math.Min(1.0, sp.activeDemand()/sp.capacity)
}

func (sp *simpleProvisioner) Variant() ProvisionerVariant {
	return SimpleProvisioner
}

// overbookingProvisioner admits allocations up to capacity*ratio and scales every
// module down by the same factor once the allocations exceed capacity
type overbookingProvisioner struct {
	cpuBook
	ratio float64
}

func (op *overbookingProvisioner) Allocate(moduleID int, demand float64) error {
	available := op.capacity*op.ratio - (op.Allocated() - op.alloc[moduleID])
	if demand > available+1e-9 {
		return op.overflow(moduleID, demand, available)
	}
	op.record(moduleID, demand)
	return nil
}

func (op *overbookingProvisioner) EffectiveRate(moduleID int) float64 {
	total := op.Allocated()
	a := op.alloc[moduleID]
	if total > op.capacity {
		return a * op.capacity / total
	}
	return a
}

func (op *overbookingProvisioner) Utilization() float64 {
	if !(op.capacity > 0) {
		return 0.0
	}
	used := 0.0
	for _, id := range op.order {
		if op.active[id] {
			used += op.EffectiveRate(id)
		}
	}
	return math.Min(1.0, used/op.capacity)
}

func (op *overbookingProvisioner) Variant() ProvisionerVariant {
	return OverbookingProvisioner
}

// timeSharedProvisioner admits any allocation; only modules with work in service
// compete, and they share the capacity in proportion to their allocations
type timeSharedProvisioner struct {
	cpuBook
}

func (tp *timeSharedProvisioner) Allocate(moduleID int, demand float64) error {
	if demand < 0 {
		return tp.overflow(moduleID, demand, tp.capacity)
	}
	tp.record(moduleID, demand)
	return nil
}

// EffectiveRate is min(a, a*C/D) for an active module, D the active demand
func (tp *timeSharedProvisioner) EffectiveRate(moduleID int) float64 {
	if !tp.active[moduleID] {
		return 0.0
	}
	return shareRate(tp.alloc[moduleID], tp.activeDemand(), tp.capacity)
}

func (tp *timeSharedProvisioner) Utilization() float64 {
	if !(tp.capacity > 0) {
		return 0.0
	}
	return math.Min(1.0, tp.activeDemand()/tp.capacity)
}

func (tp *timeSharedProvisioner) Variant() ProvisionerVariant {
	return TimeSharedOverbookingProvisioner
}

// shareRate is the fair-degradation rule: a module demanding a, among modules
// demanding d in total on capacity c, progresses at min(a, a*c/d)
func shareRate(a, d, c float64) float64 {
	if d > c && d > 0 {
		return a * c / d
	}
	return a
}

// RamProvisioner tracks RAM (MB) held by module instances on one host
type RamProvisioner struct {
	device   string
	capacity int
	alloc    map[int]int
	used     int
}

// CreateRamProvisioner is a constructor
func CreateRamProvisioner(device string, ram int) *RamProvisioner {
	return &RamProvisioner{device: device, capacity: ram, alloc: make(map[int]int)}
}

// Allocate reserves size MB for the module, failing with InsufficientRam if the host is full
func (rp *RamProvisioner) Allocate(moduleID, size int) error {
	available := rp.capacity - rp.used + rp.alloc[moduleID]
	if size > available {
		return &ResourceError{Code: InsufficientRam, Device: rp.device, Module: strconv.Itoa(moduleID),
			Requested: float64(size), Available: float64(available)}
	}
	rp.used += size - rp.alloc[moduleID]
	rp.alloc[moduleID] = size
	return nil
}

// Release returns the module's RAM to the host
func (rp *RamProvisioner) Release(moduleID int) {
	rp.used -= rp.alloc[moduleID]
	delete(rp.alloc, moduleID)
}

// Used is the RAM held by all modules
func (rp *RamProvisioner) Used() int {
	return rp.used
}

// Capacity is the host RAM
func (rp *RamProvisioner) Capacity() int {
	return rp.capacity
}

// BwKey names a module pair whose traffic crosses a link
type BwKey struct {
	Src string
	Dst string
}

// BwProvisioner tracks bandwidth reserved per module pair on one link
// direction.  Over-commitment is allowed; Overbooked reports it.
type BwProvisioner struct {
	capacity float64
	alloc    map[BwKey]float64
	order    []BwKey
}

// CreateBwProvisioner is a constructor
func CreateBwProvisioner(capacity float64) *BwProvisioner {
	return &BwProvisioner{capacity: capacity, alloc: make(map[BwKey]float64), order: make([]BwKey, 0)}
}

// Allocate adds bw to the reservation of the pair
func (bp *BwProvisioner) Allocate(key BwKey, bw float64) {
	if _, present := bp.alloc[key]; !present {
		bp.order = append(bp.order, key)
	}
	bp.alloc[key] += bw
}

// Release drops the reservation of the pair
func (bp *BwProvisioner) Release(key BwKey) {
	delete(bp.alloc, key)
	if idx := slices.Index(bp.order, key); idx > -1 {
		bp.order = slices.Delete(bp.order, idx, idx+1)
	}
}

// Allocated is the total reserved bandwidth
func (bp *BwProvisioner) Allocated() float64 {
	total := 0.0
	for _, key := range bp.order {
		total += bp.alloc[key]
	}
	return total
}

// Overbooked reports whether the reservations exceed the link capacity
func (bp *BwProvisioner) Overbooked() bool {
	return bp.Allocated() > bp.capacity
}

// Capacity is the link bandwidth
func (bp *BwProvisioner) Capacity() float64 {
	return bp.capacity
}
