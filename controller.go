package fogsim

// controller.go holds the entry point of the simulator.  Run builds a simulation
// from a scenario description: it registers every entity, builds the topology and
// the application, places the modules, installs the instances on their devices,
// seeds the event queue, runs the engine to the horizon, and gathers the result.
// Each call builds its own registry, engine, and entities, so runs share nothing.

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/exp/slices"
)

// Observer is told of every tuple sent and received during a run
type Observer interface {
	TupleSent(tupleType string)
	TupleReceived(tupleType string)
}

// runConfig gathers the options of a run
type runConfig struct {
	logger   hclog.Logger
	observer Observer
	tm       *TraceManager
}

// Option adjusts how Run behaves
type Option func(*runConfig)

// WithLogger sends the run's log output to logger
func WithLogger(logger hclog.Logger) Option {
	return func(rc *runConfig) {
		rc.logger = logger
	}
}

// WithObserver reports tuple traffic to obs as the run progresses
func WithObserver(obs Observer) Option {
	return func(rc *runConfig) {
		rc.observer = obs
	}
}

// WithTraceManager gathers tuple and scheduler traces into tm
func WithTraceManager(tm *TraceManager) Option {
	return func(rc *runConfig) {
		rc.tm = tm
	}
}

// simulation is the state of one run
type simulation struct {
	name      string
	ctrlID    int
	seed      uint64
	horizon   float64
	sampleMs  float64
	reg       *Registry
	eng       *Engine
	topo      *Topology
	app       *Application
	pl        *Placement
	tk        *TimeKeeper
	devices   map[int]*fogDevice
	devOrder  []*fogDevice
	sensors   []*sensorEntity
	actuators []*actuatorEntity

	// gateway device id -> actuator type -> actuators
	actuatorsAt map[int]map[string][]*actuatorEntity

	counts   map[string]*TupleCount
	nxtTuple int
	observer Observer
	logger   hclog.Logger
	tm       *TraceManager
}

// controllerEntity samples power and ends the run at the horizon
type controllerEntity struct {
	id   int
	name string
	sim  *simulation
}

func (ce *controllerEntity) EntityID() int {
	return ce.id
}

func (ce *controllerEntity) EntityName() string {
	return ce.name
}

func (ce *controllerEntity) ProcessEvent(eng *Engine, evt *Event) error {
	sim := ce.sim
	switch evt.Kind {
	case PowerSample:
		for _, fd := range sim.devOrder {
			fd.meter.Sample(eng.Now())
		}
		_, err := eng.Schedule(ce.id, PowerSample, sim.sampleMs, nil)
		return err
	case SimulationEnd:
		for _, fd := range sim.devOrder {
			fd.meter.Update(eng.Now(), fd.sched.Utilization())
		}
		sim.logger.Info("horizon reached", "time", eng.Now(), "events", eng.Executed())
		return nil
	}
	return fmt.Errorf("controller cannot handle %s", evt.Kind)
}

// Run simulates the scenario to its horizon and reports the result.  Validation and
// placement problems are returned before anything runs, with no result.
func Run(ctx context.Context, desc *ScenarioDesc, opts ...Option) (*Result, error) {
	rc := &runConfig{logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(rc)
	}

	sim, err := buildSimulation(desc, rc)
	if err != nil {
		return nil, err
	}
	if err := sim.seedEvents(); err != nil {
		return nil, err
	}

	sim.logger.Info("run starting", "scenario", sim.name, "horizon", sim.horizon, "entities", sim.reg.Size())
	if err := sim.eng.RunContext(ctx); err != nil {
		return nil, sim.withDump(err)
	}
	return sim.result(), nil
}

// buildSimulation turns the description into a simulation ready to seed
func buildSimulation(desc *ScenarioDesc, rc *runConfig) (*simulation, error) {
	sd, err := desc.Expand()
	if err != nil {
		return nil, err
	}

	ve := new(ValidationError)
	if !(sd.HorizonMs > 0) {
		ve.add("horizonMs %g must be positive", sd.HorizonMs)
	}
	if sd.PowerSampleMs < 0 {
		ve.add("powerSampleMs %g must not be negative", sd.PowerSampleMs)
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}

	sim := &simulation{name: sd.Name, seed: sd.Seed, horizon: sd.HorizonMs, sampleMs: sd.PowerSampleMs,
		reg: CreateRegistry(), devices: make(map[int]*fogDevice), devOrder: make([]*fogDevice, 0),
		actuatorsAt: make(map[int]map[string][]*actuatorEntity), counts: make(map[string]*TupleCount),
		observer: rc.observer, logger: rc.logger, tm: rc.tm}

	broker := &brokerEntity{id: sim.reg.NxtID(), name: "broker"}
	ctrl := &controllerEntity{id: sim.reg.NxtID(), name: "controller", sim: sim}
	sim.ctrlID = ctrl.id

	devices, err := sd.buildDevices(sim.reg.NxtID)
	if err != nil {
		return nil, err
	}
	sensorDescs := slices.Clone(sd.Sensors)
	if err := applyExpParams(sd.Parameters, devices, sensorDescs); err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	if sim.topo, err = CreateTopology(devices); err != nil {
		return nil, err
	}
	if sim.app, err = sd.buildApplication(); err != nil {
		return nil, err
	}
	sensorSpecs, err := buildSensors(sensorDescs, sim.topo, sim.reg.NxtID)
	if err != nil {
		return nil, err
	}
	actuatorSpecs, err := buildActuators(sd.Actuators, sim.topo, sim.reg.NxtID)
	if err != nil {
		return nil, err
	}

	placer, err := PlacerByName(sd.PlacementPolicy())
	if err != nil {
		return nil, err
	}
	if sim.pl, err = placer.Place(sim.topo, sim.app, sensorSpecs, Hints(sd.Hints)); err != nil {
		return nil, err
	}
	sim.logger.Info("modules placed", "policy", placer.Name(), "instances", len(sim.pl.All()))

	sim.tk = CreateTimeKeeper(sim.app.Loops())
	sim.eng = CreateEngine(sim.reg, sim.logger.Named("engine"))

	errs := []error{sim.register(broker, "broker"), sim.register(ctrl, "controller")}
	for _, dev := range sim.topo.Devices() {
		fd := createFogDevice(dev, sim)
		sim.devices[dev.ID] = fd
		sim.devOrder = append(sim.devOrder, fd)
		errs = append(errs, sim.register(fd, "device"))
	}
	for _, spec := range sensorSpecs {
		se := createSensorEntity(spec, sim)
		sim.sensors = append(sim.sensors, se)
		errs = append(errs, sim.register(se, "sensor"))
	}
	for _, spec := range actuatorSpecs {
		ae := &actuatorEntity{spec: spec, sim: sim}
		sim.actuators = append(sim.actuators, ae)
		if _, present := sim.actuatorsAt[spec.GatewayID]; !present {
			sim.actuatorsAt[spec.GatewayID] = make(map[string][]*actuatorEntity)
		}
		sim.actuatorsAt[spec.GatewayID][spec.ActuatorType] = append(sim.actuatorsAt[spec.GatewayID][spec.ActuatorType], ae)
		errs = append(errs, sim.register(ae, "actuator"))
	}
	if err := registerErrs(errs); err != nil {
		return nil, err
	}

	if err := sim.install(); err != nil {
		return nil, err
	}
	return sim, nil
}

// register adds the entity to the registry and to the trace dictionary
func (sim *simulation) register(entity Entity, kind string) error {
	if err := sim.reg.Register(entity, kind); err != nil {
		return err
	}
	return sim.tm.AddName(entity.EntityID(), entity.EntityName(), kind)
}

// registerErrs folds registration problems into one error, a ValidationError when
// every problem is one
func registerErrs(errs []error) error {
	ve := new(ValidationError)
	others := []error{}
	for _, err := range errs {
		var verr *ValidationError
		switch {
		case err == nil:
		case errors.As(err, &verr):
			ve.Problems = append(ve.Problems, verr.Problems...)
		default:
			others = append(others, err)
		}
	}
	if len(others) > 0 {
		return ReportErrs(append(others, ve.errOrNil()))
	}
	return ve.errOrNil()
}

// install reserves RAM and CPU for every instance on its device, and bandwidth on
// every link its estimated traffic crosses
func (sim *simulation) install() error {
	for _, mi := range sim.pl.All() {
		fd := sim.devices[mi.DeviceID]
		if err := fd.install(mi); err != nil {
			return fmt.Errorf("installing %s on %s: %w", mi.Module, fd.dev.Name, err)
		}
		sim.logger.Debug("instance installed", "module", mi.Module, "device", fd.dev.Name,
			"gateways", len(mi.Gateways), "demand", mi.Demand, "cpu", fd.cpu.Allocation(mi.ID))
	}

	for _, mi := range sim.pl.All() {
		for _, edge := range sim.app.OutEdges(mi.Module) {
			if edge.Kind != ModuleEdge {
				continue
			}
			if edge.Periodic() {
				for _, dst := range sim.periodicTargets(mi, edge) {
					sim.reserveBw(mi, dst, edge, edge.NwLength/edge.PeriodicityMs)
				}
				continue
			}
			for _, gw := range mi.Gateways {
				if dst, present := sim.pl.InstanceFor(edge.Dst, gw); present {
					sim.reserveBw(mi, dst, edge, sim.pl.demand.Rate(gw, edge)*edge.NwLength)
				}
			}
		}
	}
	return nil
}

// periodicTargets lists, without repeats, the instances a periodic module edge reaches
func (sim *simulation) periodicTargets(mi *ModuleInstance, edge *AppEdge) []*ModuleInstance {
	gateways := mi.Gateways
	if len(gateways) == 0 {
		gateways = []int{NoParent}
	}
	targets := make([]*ModuleInstance, 0)
	for _, gw := range gateways {
		dst, present := sim.pl.InstanceFor(edge.Dst, gw)
		if present && !slices.Contains(targets, dst) {
			targets = append(targets, dst)
		}
	}
	return targets
}

// reserveBw books bw on every link direction between the two instances
func (sim *simulation) reserveBw(src, dst *ModuleInstance, edge *AppEdge, bw float64) {
	if !(bw > 0) {
		return
	}
	key := BwKey{Src: src.Module, Dst: dst.Module}
	for _, hop := range sim.topo.Route(src.DeviceID, dst.DeviceID) {
		sim.devices[hop.Link].link(hop.Dir).bw.Allocate(key, bw)
	}
}

// seedEvents schedules the end of the run, power sampling, the first emission of
// every sensor, and the first period of every periodic edge.  The end is scheduled first,
// so anything else due exactly at the horizon does not run.
func (sim *simulation) seedEvents() error {
	if _, err := sim.eng.ScheduleAt(sim.ctrlID, SimulationEnd, sim.horizon, nil); err != nil {
		return err
	}
	if sim.sampleMs > 0 {
		if _, err := sim.eng.Schedule(sim.ctrlID, PowerSample, sim.sampleMs, nil); err != nil {
			return err
		}
	}
	for _, se := range sim.sensors {
		if err := se.start(sim.eng); err != nil {
			return err
		}
	}
	for _, mi := range sim.pl.All() {
		for _, edge := range sim.app.OutEdges(mi.Module) {
			if !edge.Periodic() {
				continue
			}
			task := &periodicTask{instance: mi, edge: edge}
			if _, err := sim.eng.Schedule(mi.DeviceID, PeriodicEmit, edge.PeriodicityMs, task); err != nil {
				return err
			}
		}
	}
	return nil
}

// createTuple builds a tuple for the edge, originating under the gateway
func (sim *simulation) createTuple(now float64, edge *AppEdge, gw int, loops []LoopStamp) *Tuple {
	sim.nxtTuple += 1
	return &Tuple{ID: sim.nxtTuple, Type: edge.TypeID(), TypeName: edge.TupleType, Src: edge.Src, Dst: edge.Dst,
		CPULength: edge.CPULength, NwLength: edge.NwLength, Direction: edge.Direction, Created: now,
		Gateway: gw, Loops: loops}
}

// stampsFor gives a tuple going from src to dst its loop stamps.  Leaving a loop's
// head toward the loop's second member starts a fresh measurement; otherwise the
// tuple keeps the stamps of its parent for the loops that contain both ends.
func (sim *simulation) stampsFor(now float64, src, dst string, parent *Tuple) []LoopStamp {
	var stamps []LoopStamp
	for _, loop := range sim.app.Loops() {
		if loop.Head() == src && loop.Modules[1] == dst {
			stamps = append(stamps, LoopStamp{LoopID: loop.ID, Start: now})
			continue
		}
		if parent == nil {
			continue
		}
		start, present := parent.loopStart(loop.ID)
		if present && slices.Contains(loop.Modules, src) && slices.Contains(loop.Modules, dst) {
			stamps = append(stamps, LoopStamp{LoopID: loop.ID, Start: start})
		}
	}
	return stamps
}

// closeLoops records the latency of every loop ending at the endpoint that the tuple is measuring
func (sim *simulation) closeLoops(now float64, endpoint string, tpl *Tuple) {
	for _, loop := range sim.app.Loops() {
		if loop.Tail() != endpoint {
			continue
		}
		if start, present := tpl.loopStart(loop.ID); present {
			sim.tk.RecordLoop(loop.ID, now-start)
		}
	}
}

// emit sends a tuple on the edge from the instance, for work originating under the gateway
func (sim *simulation) emit(eng *Engine, mi *ModuleInstance, edge *AppEdge, gw int, parent *Tuple) error {
	switch edge.Kind {
	case ModuleEdge:
		dst, present := sim.pl.InstanceFor(edge.Dst, gw)
		if !present {
			return nil
		}
		return sim.emitTo(eng, mi, edge, gw, parent, dst)
	case ActuatorEdge:
		for _, act := range sim.actuatorsAt[gw][edge.Dst] {
			tpl := sim.createTuple(eng.Now(), edge, gw, sim.stampsFor(eng.Now(), mi.Module, edge.Dst, parent))
			sim.countSent(tpl.TypeName)
			dlvr := &delivery{tuple: tpl, dstDevice: act.spec.GatewayID, actuator: act}
			if err := sim.send(eng, mi.DeviceID, dlvr); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitTo sends a tuple on the module edge from the instance to the instance dst
func (sim *simulation) emitTo(eng *Engine, mi *ModuleInstance, edge *AppEdge, gw int, parent *Tuple,
	dst *ModuleInstance) error {
	tpl := sim.createTuple(eng.Now(), edge, gw, sim.stampsFor(eng.Now(), mi.Module, edge.Dst, parent))
	sim.countSent(tpl.TypeName)
	return sim.send(eng, mi.DeviceID, &delivery{tuple: tpl, dstDevice: dst.DeviceID, instance: dst})
}

// send starts a delivery from the device; a tuple staying on the device arrives
// once the events already scheduled for now have run
func (sim *simulation) send(eng *Engine, from int, dlvr *delivery) error {
	if from == dlvr.dstDevice {
		_, err := eng.Schedule(from, TupleArrival, 0, dlvr)
		return err
	}
	return sim.forward(eng, from, dlvr)
}

// forward moves the delivery one hop toward its destination device.  The hop
// costs the wait for the link, the transmission time, and the link latency.
func (sim *simulation) forward(eng *Engine, here int, dlvr *delivery) error {
	hops := sim.topo.Route(here, dlvr.dstDevice)
	if len(hops) == 0 {
		return &InvariantViolation{What: fmt.Sprintf("no route from %d to %d", here, dlvr.dstDevice)}
	}
	hop := hops[0]
	done := sim.devices[hop.Link].link(hop.Dir).transmit(eng.Now(), dlvr.tuple.NwLength, hop.Bandwidth)
	_, err := eng.ScheduleAt(hop.To, TupleArrival, done+hop.Latency, dlvr)
	return err
}

func (sim *simulation) count(tupleType string) *TupleCount {
	tc, present := sim.counts[tupleType]
	if !present {
		tc = &TupleCount{TupleType: tupleType}
		sim.counts[tupleType] = tc
	}
	return tc
}

func (sim *simulation) countSent(tupleType string) {
	sim.count(tupleType).Sent += 1
	if sim.observer != nil {
		sim.observer.TupleSent(tupleType)
	}
}

func (sim *simulation) countReceived(tupleType string) {
	sim.count(tupleType).Received += 1
	if sim.observer != nil {
		sim.observer.TupleReceived(tupleType)
	}
}

// withDump attaches a state dump to engine errors and invariant violations
func (sim *simulation) withDump(err error) error {
	dump := &StateDump{Clock: sim.eng.Now(), Pending: sim.eng.Pending(), LastEvent: sim.eng.LastEvent(),
		Devices: make([]DeviceDump, 0, len(sim.devOrder))}
	for _, fd := range sim.devOrder {
		dump.Devices = append(dump.Devices, fd.dump())
	}

	var ee *EngineError
	var iv *InvariantViolation
	switch {
	case errors.As(err, &ee):
		ee.Dump = dump
	case errors.As(err, &iv):
		iv.Dump = dump
	default:
		return err
	}
	sim.logger.Error("run aborted", "error", err, "state", dump.String())
	return err
}

// result gathers what the run measured
func (sim *simulation) result() *Result {
	res := &Result{Scenario: sim.name, Policy: sim.pl.Policy, HorizonMs: sim.horizon,
		Events: sim.eng.Executed(), Digest: formatDigest(sim.eng.Digest()),
		Placement: sim.pl.DeviceNames(sim.topo), Loops: sim.tk.LoopStats(), Executions: sim.tk.ExecStats()}
	res.RunID = runID(sim.name, sim.seed, sim.eng.Digest())

	for _, fd := range sim.devOrder {
		consumed := fd.consumed()
		res.Devices = append(res.Devices, DeviceResult{Name: fd.dev.Name, EnergyJ: fd.meter.Energy(),
			BusyTimeS: fd.meter.BusyTime() / 1000.0, MeanUtilization: fd.meter.MeanUtilization(),
			ConsumedMI: consumed, Cost: fd.dev.RatePerMips * consumed, RamUsed: fd.ram.Used(),
			PowerSamples: fd.meter.Samples()})
		if fd.dev.ParentID == NoParent {
			continue
		}
		for _, dir := range []Direction{Up, Down} {
			ls := fd.link(dir)
			res.Links = append(res.Links, LinkResult{Device: fd.dev.Name, Direction: dir.String(),
				Tuples: ls.tuples, Bytes: ls.bytes, Utilization: ls.busy / sim.horizon,
				BwReserved: ls.bw.Allocated(), BwOverbooked: ls.bw.Overbooked()})
		}
	}

	for _, mod := range sim.app.Modules() {
		mr := ModuleResult{Module: mod.Name, Instances: len(sim.pl.Instances(mod.Name))}
		for _, mi := range sim.pl.Instances(mod.Name) {
			mr.ConsumedMI += sim.devices[mi.DeviceID].sched.Consumed(mi.ID)
		}
		res.Modules = append(res.Modules, mr)
	}

	types := make([]string, 0, len(sim.counts))
	for tt := range sim.counts {
		types = append(types, tt)
	}
	sort.Strings(types)
	for _, tt := range types {
		res.Tuples = append(res.Tuples, *sim.counts[tt])
	}
	return res
}
