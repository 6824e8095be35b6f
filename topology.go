package fogsim

// topology.go holds the physical topology: a rooted tree of devices, each linked
// to its parent by an uplink with its own latency and bandwidth in each direction.
// The tree is fixed once built; queries about ancestry and paths are answered here,
// and routes through the tree are computed in routes.go.

import (
	"math"

	"golang.org/x/exp/slices"
)

// NoParent is the parent id of the root device
const NoParent = -1

// Device describes one node of the physical topology
type Device struct {
	ID            int
	Name          string
	MIPS          float64
	RAM           int // MB
	UplinkBw      float64
	DownlinkBw    float64
	UplinkLatency float64 // ms, on the link to the parent
	ParentID      int
	Level         int
	RatePerMips   float64
	BusyPower     float64
	IdlePower     float64

	Provisioner      ProvisionerVariant
	OverbookingRatio float64
	Template         string   // name of the device template the device was built from
	Groups           []string // group names, for parameter matching
}

// Topology is the validated device tree
type Topology struct {
	devices  []*Device // ascending id
	byID     map[int]*Device
	byName   map[string]*Device
	children map[int][]int
	depth    map[int]int
	root     int
	routes   *routeCache
}

// CreateTopology checks that the devices form a single rooted tree whose levels
// follow depth, and builds the topology
func CreateTopology(devices []*Device) (*Topology, error) {
	ve := new(ValidationError)
	topo := new(Topology)
	topo.devices = make([]*Device, 0, len(devices))
	topo.byID = make(map[int]*Device)
	topo.byName = make(map[string]*Device)
	topo.children = make(map[int][]int)
	topo.depth = make(map[int]int)
	topo.root = NoParent

	for _, dev := range devices {
		if _, present := topo.byID[dev.ID]; present {
			ve.add("duplicate device id %d", dev.ID)
			continue
		}
		if _, present := topo.byName[dev.Name]; present {
			ve.add("duplicate device name %q", dev.Name)
			continue
		}
		if dev.MIPS < 0 || dev.RAM < 0 || dev.UplinkBw < 0 || dev.DownlinkBw < 0 || dev.UplinkLatency < 0 {
			ve.add("device %q has a negative capacity or latency", dev.Name)
		}
		if dev.BusyPower < dev.IdlePower || dev.IdlePower < 0 {
			ve.add("device %q has busy power below idle power", dev.Name)
		}
		topo.byID[dev.ID] = dev
		topo.byName[dev.Name] = dev
		topo.devices = append(topo.devices, dev)
	}
	slices.SortFunc(topo.devices, func(a, b *Device) int { return a.ID - b.ID })

	for _, dev := range topo.devices {
		if dev.ParentID == NoParent {
			if topo.root != NoParent {
				ve.add("devices %q and %q are both roots", topo.byID[topo.root].Name, dev.Name)
				continue
			}
			topo.root = dev.ID
			continue
		}
		if _, present := topo.byID[dev.ParentID]; !present {
			ve.add("device %q names unknown parent %d", dev.Name, dev.ParentID)
			continue
		}
		if !(dev.UplinkBw > 0) || !(dev.DownlinkBw > 0) {
			ve.add("device %q needs positive uplink and downlink bandwidth", dev.Name)
		}
		topo.children[dev.ParentID] = append(topo.children[dev.ParentID], dev.ID)
	}
	if topo.root == NoParent && len(topo.devices) > 0 {
		ve.add("topology has no root")
	}
	if len(topo.devices) == 0 {
		ve.add("topology has no devices")
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	// breadth-first from the root; anything unreached sits on a parent cycle
	frontier := []int{topo.root}
	topo.depth[topo.root] = 0
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		dev := topo.byID[id]
		if dev.Level != topo.depth[id] {
			ve.add("device %q has level %d but depth %d", dev.Name, dev.Level, topo.depth[id])
		}
		for _, child := range topo.children[id] {
			topo.depth[child] = topo.depth[id] + 1
			frontier = append(frontier, child)
		}
	}
	for _, dev := range topo.devices {
		if _, reached := topo.depth[dev.ID]; !reached {
			ve.add("device %q lies on a parent cycle", dev.Name)
		}
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	topo.routes = buildRouteCache(topo)
	return topo, nil
}

// Root is the device with no parent
func (topo *Topology) Root() *Device {
	return topo.byID[topo.root]
}

// Device returns the device with the given id, nil if there is none
func (topo *Topology) Device(id int) *Device {
	return topo.byID[id]
}

// DeviceByName finds a device by name
func (topo *Topology) DeviceByName(name string) (*Device, bool) {
	dev, present := topo.byName[name]
	return dev, present
}

// Devices lists the devices in ascending id order
func (topo *Topology) Devices() []*Device {
	return topo.devices
}

// Parent returns the parent of the device; ok is false for the root
func (topo *Topology) Parent(id int) (int, bool) {
	dev := topo.byID[id]
	if dev == nil || dev.ParentID == NoParent {
		return NoParent, false
	}
	return dev.ParentID, true
}

// Children lists the children of the device in ascending id order
func (topo *Topology) Children(id int) []int {
	return topo.children[id]
}

// Depth is the number of links between the device and the root
func (topo *Topology) Depth(id int) int {
	return topo.depth[id]
}

// Ancestors yields the root-ward chain above the device, parent first
func (topo *Topology) Ancestors(id int) []int {
	chain := make([]int, 0, topo.depth[id])
	for here, ok := topo.Parent(id); ok; here, ok = topo.Parent(here) {
		chain = append(chain, here)
	}
	return chain
}

// rootward yields the device followed by its ancestors
func (topo *Topology) rootward(id int) []int {
	return append([]int{id}, topo.Ancestors(id)...)
}

// Subtree yields the device and all its descendants, depth first
func (topo *Topology) Subtree(id int) []int {
	members := []int{id}
	for _, child := range topo.children[id] {
		members = append(members, topo.Subtree(child)...)
	}
	return members
}

// InSubtree reports whether dev is top or lies below it
func (topo *Topology) InSubtree(top, dev int) bool {
	for here := dev; ; {
		if here == top {
			return true
		}
		parent, ok := topo.Parent(here)
		if !ok {
			return false
		}
		here = parent
	}
}

// LCA is the lowest common ancestor of the devices; an empty set yields the root
func (topo *Topology) LCA(ids []int) int {
	if len(ids) == 0 {
		return topo.root
	}
	lca := ids[0]
	for _, id := range ids[1:] {
		lca = topo.lca2(lca, id)
	}
	return lca
}

func (topo *Topology) lca2(a, b int) int {
	for topo.depth[a] > topo.depth[b] {
		a = topo.byID[a].ParentID
	}
	for topo.depth[b] > topo.depth[a] {
		b = topo.byID[b].ParentID
	}
	for a != b {
		a = topo.byID[a].ParentID
		b = topo.byID[b].ParentID
	}
	return a
}

// PathLatency is the sum of the uplink latencies of the links between a and b
func (topo *Topology) PathLatency(a, b int) float64 {
	total := 0.0
	for _, hop := range topo.Route(a, b) {
		total += hop.Latency
	}
	return total
}

// PathBandwidth is the smallest uplink bandwidth of the links between a and b;
// +Inf when a and b are the same device
func (topo *Topology) PathBandwidth(a, b int) float64 {
	bw := math.Inf(1)
	for _, hop := range topo.Route(a, b) {
		bw = math.Min(bw, topo.byID[hop.Link].UplinkBw)
	}
	return bw
}
