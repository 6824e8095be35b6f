package fogsim

// placement.go decides which devices host each application module.  A placement
// maps every module to one or more instances; an instance sits on one device and
// serves the tuples that originate under a set of gateway devices.
//
// Two placers are offered.  Static mapping puts every module named in the hints on
// the devices named, and everything else on the root.  Edgewards does the same for
// hinted modules but pushes every other module as close to its sensors as the CPU
// and RAM of the devices allow.

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
)

// Names of the placement policies
const (
	StaticMappingName = "static"
	EdgewardsName     = "edgewards"
)

// capacityTol absorbs rounding when comparing summed demands with capacity
const capacityTol = 1e-9

// Hints pins modules to devices: module name to the names of the devices that
// each carry one instance of it
type Hints map[string][]string

// ModuleInstance is one copy of a module installed on a device
type ModuleInstance struct {
	ID       int
	Module   string
	DeviceID int
	Gateways []int   // gateways served, ascending
	Demand   float64 // estimated CPU rate, MI per ms
	Pinned   bool
}

// Serves reports whether the instance handles tuples originating under the gateway
func (mi *ModuleInstance) Serves(gw int) bool {
	_, found := slices.BinarySearch(mi.Gateways, gw)
	return found
}

func (mi *ModuleInstance) addGateway(gw int) {
	idx, found := slices.BinarySearch(mi.Gateways, gw)
	if !found {
		mi.Gateways = slices.Insert(mi.Gateways, idx, gw)
	}
}

// Placement is the result of a placer; it is not changed once a run starts
type Placement struct {
	Policy    string
	app       *Application
	demand    *demandModel
	instances map[string][]*ModuleInstance
	all       []*ModuleInstance
}

func createPlacement(policy string, app *Application, demand *demandModel) *Placement {
	return &Placement{Policy: policy, app: app, demand: demand,
		instances: make(map[string][]*ModuleInstance), all: make([]*ModuleInstance, 0)}
}

func (pl *Placement) addInstance(module string, devID int, pinned bool) *ModuleInstance {
	mi := &ModuleInstance{ID: len(pl.all), Module: module, DeviceID: devID, Gateways: make([]int, 0), Pinned: pinned}
	pl.instances[module] = append(pl.instances[module], mi)
	pl.all = append(pl.all, mi)
	return mi
}

// Instances lists the instances of the module in creation order
func (pl *Placement) Instances(module string) []*ModuleInstance {
	return pl.instances[module]
}

// All lists every instance in creation order
func (pl *Placement) All() []*ModuleInstance {
	return pl.all
}

// InstanceFor finds the instance of the module serving the gateway.  A module no
// sensor under the gateway reaches is served by its first instance.
func (pl *Placement) InstanceFor(module string, gw int) (*ModuleInstance, bool) {
	insts := pl.instances[module]
	if len(insts) == 0 {
		return nil, false
	}
	for _, mi := range insts {
		if mi.Serves(gw) {
			return mi, true
		}
	}
	return insts[0], true
}

// DevicesOf lists the devices hosting the module, one entry per instance
func (pl *Placement) DevicesOf(module string) []int {
	devs := make([]int, 0, len(pl.instances[module]))
	for _, mi := range pl.instances[module] {
		devs = append(devs, mi.DeviceID)
	}
	return devs
}

// DeviceNames is the placement map, module name to names of the hosting devices
func (pl *Placement) DeviceNames(topo *Topology) map[string][]string {
	names := make(map[string][]string)
	for _, mod := range pl.app.Modules() {
		for _, devID := range pl.DevicesOf(mod.Name) {
			names[mod.Name] = append(names[mod.Name], topo.Device(devID).Name)
		}
	}
	return names
}

// checkTotal verifies that every module has at least one instance
func (pl *Placement) checkTotal() error {
	for _, mod := range pl.app.Modules() {
		if len(pl.instances[mod.Name]) == 0 {
			return &InvariantViolation{What: fmt.Sprintf("placement %s leaves module %s unplaced", pl.Policy, mod.Name)}
		}
	}
	return nil
}

// ModulePlacer produces a total placement of an application on a topology
type ModulePlacer interface {
	Name() string
	Place(topo *Topology, app *Application, sensors []*SensorSpec, hints Hints) (*Placement, error)
}

// PlacerByName returns the placer implementing the named policy
func PlacerByName(name string) (ModulePlacer, error) {
	switch name {
	case StaticMappingName, "static-mapping", "ModulePlacementMapping":
		return StaticMappingPlacer{}, nil
	case EdgewardsName, "ModulePlacementEdgewards":
		return EdgewardsPlacer{}, nil
	}
	return nil, &ValidationError{Problems: []string{fmt.Sprintf("unknown placement policy %q", name)}}
}

// placeState tracks the CPU and RAM committed on each device while placing
type placeState struct {
	topo   *Topology
	app    *Application
	pl     *Placement
	cpu    map[int]float64
	ram    map[int]int
	pinned []int // devices carrying pinned instances, in commit order
}

func createPlaceState(policy string, topo *Topology, app *Application, sensors []*SensorSpec) *placeState {
	return &placeState{topo: topo, app: app, pl: createPlacement(policy, app, estimateDemand(app, sensors)),
		cpu: make(map[int]float64), ram: make(map[int]int), pinned: make([]int, 0)}
}

// fitsNew reports whether the device can take a new instance of the module with the given demand
func (ps *placeState) fitsNew(devID int, module string, demand float64) bool {
	dev := ps.topo.Device(devID)
	mod, _ := ps.app.Module(module)
	return ps.cpu[devID]+demand <= dev.MIPS+capacityTol && ps.ram[devID]+mod.Size <= dev.RAM
}

// fitsMore reports whether the device can add demand to an instance it already hosts
func (ps *placeState) fitsMore(devID int, demand float64) bool {
	return ps.cpu[devID]+demand <= ps.topo.Device(devID).MIPS+capacityTol
}

func (ps *placeState) commitNew(module string, devID int, pinned bool) *ModuleInstance {
	mod, _ := ps.app.Module(module)
	mi := ps.pl.addInstance(module, devID, pinned)
	mi.Demand = ps.pl.demand.PeriodicDemand(module)
	ps.cpu[devID] += mi.Demand
	ps.ram[devID] += mod.Size
	if pinned && !slices.Contains(ps.pinned, devID) {
		ps.pinned = append(ps.pinned, devID)
	}
	return mi
}

func (ps *placeState) commitGateway(mi *ModuleInstance, gw int) {
	demand := ps.pl.demand.GatewayDemand(mi.Module, gw)
	mi.addGateway(gw)
	mi.Demand += demand
	ps.cpu[mi.DeviceID] += demand
}

// checkHints reports hints that name undeclared modules or devices
func (ps *placeState) checkHints(hints Hints) error {
	ve := new(ValidationError)
	for _, mod := range sortedKeys(hints) {
		if _, present := ps.app.Module(mod); !present {
			ve.add("placement hint names undeclared module %q", mod)
		}
		for _, devName := range hints[mod] {
			if _, present := ps.topo.DeviceByName(devName); !present {
				ve.add("placement hint for %q names unknown device %q", mod, devName)
			}
		}
	}
	return ve.errOrNil()
}

// commitPins installs one instance of the module on each device named by its hint.
// Each instance serves the gateways in its subtree; gateways under none of them go
// to the first.
func (ps *placeState) commitPins(module string, devNames []string) {
	pins := make([]*ModuleInstance, 0, len(devNames))
	seen := make([]int, 0, len(devNames))
	for _, devName := range devNames {
		dev, _ := ps.topo.DeviceByName(devName)
		if slices.Contains(seen, dev.ID) {
			continue
		}
		seen = append(seen, dev.ID)
		pins = append(pins, ps.commitNew(module, dev.ID, true))
	}

	for _, gw := range ps.pl.demand.Feeds(module) {
		owner := pins[0]
		for _, mi := range pins {
			if ps.topo.InSubtree(mi.DeviceID, gw) {
				owner = mi
				break
			}
		}
		ps.commitGateway(owner, gw)
	}
}

// checkPins fails with PinConflict if a device cannot carry what was pinned to it
func (ps *placeState) checkPins() error {
	for _, devID := range ps.pinned {
		dev := ps.topo.Device(devID)
		if ps.cpu[devID] <= dev.MIPS+capacityTol && ps.ram[devID] <= dev.RAM {
			continue
		}
		module := ""
		for _, mi := range ps.pl.all {
			if mi.Pinned && mi.DeviceID == devID {
				module = mi.Module
				break
			}
		}
		return &PlacementError{Code: PinConflict, Module: module, Device: dev.Name,
			Detail: fmt.Sprintf("needs %g MIPS and %d MB RAM, device has %g MIPS and %d MB",
				ps.cpu[devID], ps.ram[devID], dev.MIPS, dev.RAM)}
	}
	return nil
}

// commitAllPins pins every hinted module, in placement order
func (ps *placeState) commitAllPins(hints Hints) {
	for _, module := range ps.app.TopologicalOrder() {
		if devNames, present := hints[module]; present && len(devNames) > 0 {
			ps.commitPins(module, devNames)
		}
	}
}

// StaticMappingPlacer pins hinted modules and puts everything else on the root
type StaticMappingPlacer struct{}

func (smp StaticMappingPlacer) Name() string {
	return StaticMappingName
}

// Place implements ModulePlacer
func (smp StaticMappingPlacer) Place(topo *Topology, app *Application, sensors []*SensorSpec,
	hints Hints) (*Placement, error) {
	ps := createPlaceState(StaticMappingName, topo, app, sensors)
	if err := ps.checkHints(hints); err != nil {
		return nil, err
	}
	ps.commitAllPins(hints)
	if err := ps.checkPins(); err != nil {
		return nil, err
	}

	root := topo.Root().ID
	for _, module := range app.TopologicalOrder() {
		if len(hints[module]) > 0 {
			continue
		}
		mi := ps.commitNew(module, root, false)
		for _, gw := range ps.pl.demand.Feeds(module) {
			ps.commitGateway(mi, gw)
		}
		if ps.cpu[root] > topo.Root().MIPS+capacityTol || ps.ram[root] > topo.Root().RAM {
			return nil, &PlacementError{Code: NoFeasibleDevice, Module: module, Device: topo.Root().Name,
				Detail: fmt.Sprintf("root needs %g MIPS and %d MB RAM", roundDemand(ps.cpu[root]), ps.ram[root])}
		}
	}

	if err := ps.pl.checkTotal(); err != nil {
		return nil, err
	}
	return ps.pl, nil
}

// EdgewardsPlacer pushes modules toward their sensors
type EdgewardsPlacer struct{}

func (ep EdgewardsPlacer) Name() string {
	return EdgewardsName
}

// Place implements ModulePlacer.  Hinted modules are pinned first.  The others are
// taken in placement order; for each gateway feeding the module the walk starts at
// the lowest common ancestor of the devices hosting the module's producers for that
// gateway, and climbs toward the root until a device either already hosts the module
// and has CPU left for the gateway's share, or can take a new instance.
func (ep EdgewardsPlacer) Place(topo *Topology, app *Application, sensors []*SensorSpec,
	hints Hints) (*Placement, error) {
	ps := createPlaceState(EdgewardsName, topo, app, sensors)
	if err := ps.checkHints(hints); err != nil {
		return nil, err
	}
	ps.commitAllPins(hints)

	for _, module := range app.TopologicalOrder() {
		if len(hints[module]) > 0 {
			continue
		}
		gateways := ps.pl.demand.Feeds(module)
		if len(gateways) == 0 {
			if _, err := ps.climb(module, topo.Root().ID, NoParent); err != nil {
				return nil, err
			}
			continue
		}
		for _, gw := range gateways {
			if _, err := ps.climb(module, ps.startFor(module, gw), gw); err != nil {
				return nil, err
			}
		}
	}

	if err := ps.checkPins(); err != nil {
		return nil, err
	}
	if err := ps.pl.checkTotal(); err != nil {
		return nil, err
	}
	return ps.pl, nil
}

// startFor is where the walk for the module's share of the gateway begins: the
// lowest common ancestor of the producers' devices, and of the gateway itself when
// its sensors feed the module directly
func (ps *placeState) startFor(module string, gw int) int {
	devs := make([]int, 0)
	if ps.pl.demand.SensorFed(module, gw) {
		devs = append(devs, gw)
	}
	for _, edge := range ps.app.InEdges(module) {
		if edge.Kind != ModuleEdge || edge.Src == module {
			continue
		}
		if mi, present := ps.pl.InstanceFor(edge.Src, gw); present && !slices.Contains(devs, mi.DeviceID) {
			devs = append(devs, mi.DeviceID)
		}
	}
	if len(devs) == 0 {
		return gw
	}
	return ps.topo.LCA(devs)
}

// climb walks root-ward from start and commits the module's share of the gateway on
// the first device that can carry it.  A gateway of NoParent places an instance
// serving no gateway.
func (ps *placeState) climb(module string, start, gw int) (*ModuleInstance, error) {
	demand := 0.0
	if gw != NoParent {
		demand = ps.pl.demand.GatewayDemand(module, gw)
	}
	periodic := ps.pl.demand.PeriodicDemand(module)

	for _, devID := range ps.topo.rootward(start) {
		if mi := ps.hosted(module, devID); mi != nil {
			if ps.fitsMore(devID, demand) {
				if gw != NoParent {
					ps.commitGateway(mi, gw)
				}
				return mi, nil
			}
			continue
		}
		if ps.fitsNew(devID, module, demand+periodic) {
			mi := ps.commitNew(module, devID, false)
			if gw != NoParent {
				ps.commitGateway(mi, gw)
			}
			return mi, nil
		}
	}

	gwName := "none"
	if gw != NoParent {
		gwName = ps.topo.Device(gw).Name
	}
	return nil, &PlacementError{Code: NoFeasibleDevice, Module: module, Device: ps.topo.Device(start).Name,
		Detail: fmt.Sprintf("no device from here to the root can carry %g MIPS for gateway %s",
			roundDemand(demand+periodic), gwName)}
}

// hosted finds the unpinned instance of the module on the device, if any
func (ps *placeState) hosted(module string, devID int) *ModuleInstance {
	for _, mi := range ps.pl.instances[module] {
		if mi.DeviceID == devID && !mi.Pinned {
			return mi
		}
	}
	return nil
}

func roundDemand(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// sortedKeys returns the keys of the hints in ascending order
func sortedKeys(hints Hints) []string {
	keys := make([]string, 0, len(hints))
	for key := range hints {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
