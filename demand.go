package fogsim

// demand.go estimates the load the sensors put on each module.  Sensor emission
// rates (tuples per ms, the reciprocal of the mean inter-arrival time) are pushed
// through the application graph in placement order, scaled at each module by the
// selectivity of its tuple mappings.  Rates are kept per gateway device, so the
// placer can tell how much of a module's work originates under each gateway.

import (
	"golang.org/x/exp/slices"
)

type demandModel struct {
	app *Application

	// devices with at least one sensor, ascending
	gateways []int

	// gateways whose sensors transitively feed each module
	feeds map[string][]int

	// per gateway, tuples per ms on each edge and emission rate per sensor type
	edgeRate map[int]map[*AppEdge]float64
	sensorAt map[int]map[string]float64
}

// estimateDemand builds the demand model of an application fed by the given sensors
func estimateDemand(app *Application, sensors []*SensorSpec) *demandModel {
	dm := &demandModel{app: app, feeds: make(map[string][]int),
		edgeRate: make(map[int]map[*AppEdge]float64), sensorAt: make(map[int]map[string]float64)}

	for _, sens := range sensors {
		if _, present := dm.sensorAt[sens.GatewayID]; !present {
			dm.sensorAt[sens.GatewayID] = make(map[string]float64)
			dm.gateways = append(dm.gateways, sens.GatewayID)
		}
		rate := 0.0
		if mean := sens.Dist.Mean(); mean > 0 {
			rate = 1.0 / mean
		}
		dm.sensorAt[sens.GatewayID][sens.TupleType] += rate
	}
	slices.Sort(dm.gateways)

	for _, gw := range dm.gateways {
		dm.edgeRate[gw] = dm.propagate(gw)
	}
	dm.computeFeeds()
	return dm
}

// propagate computes the tuple rate on every edge for the sensors of one gateway
func (dm *demandModel) propagate(gw int) map[*AppEdge]float64 {
	rates := make(map[*AppEdge]float64)
	for _, edge := range dm.app.Edges() {
		if edge.Kind == SensorEdge {
			rates[edge] = dm.sensorAt[gw][edge.Src]
		}
	}

	for _, module := range dm.app.TopologicalOrder() {
		inRate := make(map[string]float64)
		for _, edge := range dm.app.InEdges(module) {
			if !edge.Periodic() {
				inRate[edge.TupleType] += rates[edge]
			}
		}
		for _, edge := range dm.app.OutEdges(module) {
			if edge.Periodic() {
				continue
			}
			out := 0.0
			for _, tm := range dm.app.Mappings() {
				if tm.Module == module && tm.OutputType == edge.TupleType {
					out += tm.Selectivity * inRate[tm.InputType]
				}
			}
			rates[edge] = out
		}
	}
	return rates
}

// computeFeeds finds, for every module, the gateways whose sensors reach it.
// Iterates to a fixed point so edges that close loops are followed too.
func (dm *demandModel) computeFeeds() {
	fed := make(map[string]map[int]bool)
	for _, mod := range dm.app.Modules() {
		fed[mod.Name] = make(map[int]bool)
	}

	for changed := true; changed; {
		changed = false
		for _, module := range dm.app.TopologicalOrder() {
			for _, edge := range dm.app.InEdges(module) {
				switch edge.Kind {
				case SensorEdge:
					for _, gw := range dm.gateways {
						if _, present := dm.sensorAt[gw][edge.Src]; present && !fed[module][gw] {
							fed[module][gw] = true
							changed = true
						}
					}
				case ModuleEdge:
					for gw := range fed[edge.Src] {
						if !fed[module][gw] {
							fed[module][gw] = true
							changed = true
						}
					}
				}
			}
		}
	}

	for module, gws := range fed {
		list := make([]int, 0, len(gws))
		for gw := range gws {
			list = append(list, gw)
		}
		slices.Sort(list)
		dm.feeds[module] = list
	}
}

// Feeds lists, ascending, the gateways whose sensors transitively feed the module
func (dm *demandModel) Feeds(module string) []int {
	return dm.feeds[module]
}

// Rate is the tuples per ms on the edge that originate under the gateway
func (dm *demandModel) Rate(gw int, edge *AppEdge) float64 {
	return dm.edgeRate[gw][edge]
}

// GatewayDemand is the CPU rate (MI per ms) the module needs for the tuples that
// originate under the gateway
func (dm *demandModel) GatewayDemand(module string, gw int) float64 {
	demand := 0.0
	for _, edge := range dm.app.InEdges(module) {
		if !edge.Periodic() {
			demand += dm.edgeRate[gw][edge] * edge.CPULength
		}
	}
	return demand
}

// PeriodicDemand is the CPU rate each instance of the module needs for the periodic
// tuples sent to it, whatever gateways it serves
func (dm *demandModel) PeriodicDemand(module string) float64 {
	demand := 0.0
	for _, edge := range dm.app.InEdges(module) {
		if edge.Periodic() {
			demand += edge.CPULength / edge.PeriodicityMs
		}
	}
	return demand
}

// SensorFed reports whether a sensor under the gateway sends directly to the module
func (dm *demandModel) SensorFed(module string, gw int) bool {
	for _, edge := range dm.app.InEdges(module) {
		if edge.Kind != SensorEdge {
			continue
		}
		if _, present := dm.sensorAt[gw][edge.Src]; present {
			return true
		}
	}
	return false
}
