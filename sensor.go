package fogsim

// sensor.go holds the two edge entities of the simulation.  A sensor emits tuples
// of its type into its gateway device at times drawn from its inter-arrival
// distribution; an actuator sits below a gateway device and absorbs the tuples
// the application sends to its type.

import (
	"fmt"
	"math/rand/v2"
)

// SensorSpec is a sensor resolved against the topology
type SensorSpec struct {
	ID          int
	Name        string
	TupleType   string
	UserID      int
	AppID       string
	Dist        Distribution
	LatencyMs   float64
	GatewayID   int
	EmitAtStart bool
}

// ActuatorSpec is an actuator resolved against the topology
type ActuatorSpec struct {
	ID           int
	Name         string
	ActuatorType string
	LatencyMs    float64
	GatewayID    int
}

// buildSensors resolves the sensor descriptions, with ids drawn from nxtID
func buildSensors(descs []SensorDesc, topo *Topology, nxtID func() int) ([]*SensorSpec, error) {
	ve := new(ValidationError)
	specs := make([]*SensorSpec, 0, len(descs))
	for _, sd := range descs {
		gw, present := topo.DeviceByName(sd.Gateway)
		if !present {
			ve.add("sensor %q names unknown gateway %q", sd.Name, sd.Gateway)
			continue
		}
		dist, err := sd.Dist.Build()
		if err != nil {
			ve.add("sensor %q: %v", sd.Name, err)
			continue
		}
		if sd.LatencyMs < 0 {
			ve.add("sensor %q has negative latency", sd.Name)
		}
		specs = append(specs, &SensorSpec{ID: nxtID(), Name: sd.Name, TupleType: sd.TupleType, UserID: sd.UserID,
			AppID: sd.AppID, Dist: dist, LatencyMs: sd.LatencyMs, GatewayID: gw.ID, EmitAtStart: sd.EmitAtStart})
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}
	return specs, nil
}

// buildActuators resolves the actuator descriptions, with ids drawn from nxtID
func buildActuators(descs []ActuatorDesc, topo *Topology, nxtID func() int) ([]*ActuatorSpec, error) {
	ve := new(ValidationError)
	specs := make([]*ActuatorSpec, 0, len(descs))
	for _, ad := range descs {
		gw, present := topo.DeviceByName(ad.Gateway)
		if !present {
			ve.add("actuator %q names unknown gateway %q", ad.Name, ad.Gateway)
			continue
		}
		if ad.LatencyMs < 0 {
			ve.add("actuator %q has negative latency", ad.Name)
		}
		specs = append(specs, &ActuatorSpec{ID: nxtID(), Name: ad.Name, ActuatorType: ad.ActuatorType,
			LatencyMs: ad.LatencyMs, GatewayID: gw.ID})
	}
	if err := ve.errOrNil(); err != nil {
		return nil, err
	}
	return specs, nil
}

// sensorEntity emits the tuples of one sensor
type sensorEntity struct {
	spec    *SensorSpec
	sim     *simulation
	strm    *rand.Rand
	edges   []*AppEdge // sensor edges leaving the sensor's type
	emitted int
}

func createSensorEntity(spec *SensorSpec, sim *simulation) *sensorEntity {
	se := &sensorEntity{spec: spec, sim: sim, strm: createStream(sim.seed, spec.Name), edges: make([]*AppEdge, 0)}
	for _, edge := range sim.app.OutEdges(spec.TupleType) {
		if edge.Kind == SensorEdge {
			se.edges = append(se.edges, edge)
		}
	}
	return se
}

func (se *sensorEntity) EntityID() int {
	return se.spec.ID
}

func (se *sensorEntity) EntityName() string {
	return se.spec.Name
}

// start schedules the first emission
func (se *sensorEntity) start(eng *Engine) error {
	delay := 0.0
	if !se.spec.EmitAtStart {
		delay = se.spec.Dist.Next(se.strm)
	}
	_, err := eng.Schedule(se.spec.ID, SensorEmit, delay, nil)
	return err
}

// ProcessEvent handles sensor-emit: one tuple per sensor edge goes to the instance
// serving the sensor's gateway, arriving at the gateway after the sensor latency
func (se *sensorEntity) ProcessEvent(eng *Engine, evt *Event) error {
	if evt.Kind != SensorEmit {
		return fmt.Errorf("sensor %s cannot handle %s", se.spec.Name, evt.Kind)
	}
	sim := se.sim
	for _, edge := range se.edges {
		mi, present := sim.pl.InstanceFor(edge.Dst, se.spec.GatewayID)
		if !present {
			continue
		}
		tpl := sim.createTuple(eng.Now(), edge, se.spec.GatewayID, nil)
		sim.countSent(tpl.TypeName)
		AddTupleTrace(sim.tm, eng.Now(), se.spec.ID, tpl, se.spec.Name, "emit")

		dlvr := &delivery{tuple: tpl, dstDevice: mi.DeviceID, instance: mi}
		if _, err := eng.Schedule(se.spec.GatewayID, TupleArrival, se.spec.LatencyMs, dlvr); err != nil {
			return err
		}
	}
	se.emitted += 1
	_, err := eng.Schedule(se.spec.ID, SensorEmit, se.spec.Dist.Next(se.strm), nil)
	return err
}

// actuatorEntity receives the tuples sent to one actuator
type actuatorEntity struct {
	spec        *ActuatorSpec
	sim         *simulation
	received    int
	lastArrival float64
}

func (ae *actuatorEntity) EntityID() int {
	return ae.spec.ID
}

func (ae *actuatorEntity) EntityName() string {
	return ae.spec.Name
}

// ProcessEvent handles tuple-arrival, closing any loop whose tail is the actuator's type
func (ae *actuatorEntity) ProcessEvent(eng *Engine, evt *Event) error {
	dlvr, ok := evt.Payload.(*delivery)
	if evt.Kind != TupleArrival || !ok {
		return fmt.Errorf("actuator %s cannot handle %s", ae.spec.Name, evt.Kind)
	}
	sim := ae.sim
	ae.received += 1
	ae.lastArrival = eng.Now()
	sim.countReceived(dlvr.tuple.TypeName)
	AddTupleTrace(sim.tm, eng.Now(), ae.spec.ID, dlvr.tuple, ae.spec.Name, "actuate")
	sim.closeLoops(eng.Now(), ae.spec.ActuatorType, dlvr.tuple)
	return nil
}

// brokerEntity stands for the user that submitted the application.  It owns the
// application but receives no events.
type brokerEntity struct {
	id   int
	name string
}

func (be *brokerEntity) EntityID() int {
	return be.id
}

func (be *brokerEntity) EntityName() string {
	return be.name
}

func (be *brokerEntity) ProcessEvent(eng *Engine, evt *Event) error {
	return &InvariantViolation{What: fmt.Sprintf("broker %s received %s", be.name, evt)}
}
