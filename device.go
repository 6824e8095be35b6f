package fogsim

// device.go holds the runtime side of a fog device.  A device carries the module
// instances placed on it, executes the tuples they receive on its CPU, meters its
// energy, and owns the link to its parent.  Tuples travel hop by hop: each device
// on the way hands the tuple to the next, and each link direction transmits one
// tuple at a time in arrival order.

import (
	"fmt"
	"math"
)

// minShareFrac is the least fraction of a host's MIPS an instance reserves
const minShareFrac = 0.01

// delivery is the payload of a tuple-arrival event: the tuple and where it is going
type delivery struct {
	tuple     *Tuple
	dstDevice int
	instance  *ModuleInstance // nil when the tuple is bound for an actuator
	actuator  *actuatorEntity
}

// periodicTask is the payload of a periodic-emit event
type periodicTask struct {
	instance *ModuleInstance
	edge     *AppEdge
}

// linkState tracks one direction of the link between a device and its parent
type linkState struct {
	freeAt float64 // time the link finishes transmitting what it has accepted
	tuples int
	bytes  float64
	busy   float64 // ms spent transmitting
	bw     *BwProvisioner
}

// transmit accepts a tuple of nwLen bytes at now and returns when its last byte
// leaves the link
func (ls *linkState) transmit(now, nwLen, bw float64) float64 {
	start := math.Max(now, ls.freeAt)
	tx := 0.0
	if bw > 0 {
		tx = nwLen / bw
	}
	ls.freeAt = start + tx
	ls.tuples += 1
	ls.bytes += nwLen
	ls.busy += tx
	return ls.freeAt
}

// fogDevice is the entity standing for one device of the topology
type fogDevice struct {
	dev   *Device
	sim   *simulation
	cpu   CPUProvisioner
	ram   *RamProvisioner
	sched *ModuleScheduler
	meter *EnergyMeter
	up    linkState
	down  linkState

	hosted   []*ModuleInstance
	counters map[int]map[int]*emissionCounter // instance id -> mapping index -> counter
}

func createFogDevice(dev *Device, sim *simulation) *fogDevice {
	fd := &fogDevice{dev: dev, sim: sim, hosted: make([]*ModuleInstance, 0),
		counters: make(map[int]map[int]*emissionCounter)}
	fd.cpu = CreateCPUProvisioner(dev.Provisioner, dev.Name, dev.MIPS, dev.OverbookingRatio)
	fd.ram = CreateRamProvisioner(dev.Name, dev.RAM)
	fd.sched = CreateModuleScheduler(dev.ID, fd.cpu)
	fd.meter = CreateEnergyMeter(LinearPowerModel{BusyPower: dev.BusyPower, IdlePower: dev.IdlePower})
	fd.up.bw = CreateBwProvisioner(dev.UplinkBw)
	fd.down.bw = CreateBwProvisioner(dev.DownlinkBw)
	return fd
}

func (fd *fogDevice) EntityID() int {
	return fd.dev.ID
}

func (fd *fogDevice) EntityName() string {
	return fd.dev.Name
}

// cpuRequest is what an instance asks of the CPU provisioner.  Under time sharing
// every instance asks for the whole CPU, so the instances with work share it equally.
func (fd *fogDevice) cpuRequest(mi *ModuleInstance) float64 {
	if fd.dev.Provisioner == TimeSharedOverbookingProvisioner {
		return fd.dev.MIPS
	}
	return math.Max(mi.Demand, minShareFrac*fd.dev.MIPS)
}

// install reserves RAM and CPU for the instance and readies its scheduler slot
func (fd *fogDevice) install(mi *ModuleInstance) error {
	mod, _ := fd.sim.app.Module(mi.Module)
	if err := fd.ram.Allocate(mi.ID, mod.Size); err != nil {
		return err
	}
	request := fd.cpuRequest(mi)
	err := fd.cpu.Allocate(mi.ID, request)
	if err != nil && request > mi.Demand {
		err = fd.cpu.Allocate(mi.ID, mi.Demand)
	}
	if err != nil {
		return err
	}
	fd.sched.Install(mi.ID)
	fd.hosted = append(fd.hosted, mi)
	fd.counters[mi.ID] = make(map[int]*emissionCounter)
	return nil
}

// ProcessEvent dispatches on the event kind
func (fd *fogDevice) ProcessEvent(eng *Engine, evt *Event) error {
	switch evt.Kind {
	case TupleArrival:
		dlvr, ok := evt.Payload.(*delivery)
		if !ok {
			return fmt.Errorf("device %s: tuple arrival without a delivery", fd.dev.Name)
		}
		return fd.arrive(eng, dlvr)
	case ResourceUpdate:
		return fd.complete(eng)
	case PeriodicEmit:
		task, ok := evt.Payload.(*periodicTask)
		if !ok {
			return fmt.Errorf("device %s: periodic emit without a task", fd.dev.Name)
		}
		return fd.emitPeriodic(eng, task)
	}
	return fmt.Errorf("device %s cannot handle %s", fd.dev.Name, evt.Kind)
}

// arrive handles a tuple reaching the device: pass it on, hand it to an actuator
// below the device, or start executing it
func (fd *fogDevice) arrive(eng *Engine, dlvr *delivery) error {
	sim := fd.sim
	if dlvr.dstDevice != fd.dev.ID {
		AddTupleTrace(sim.tm, eng.Now(), fd.dev.ID, dlvr.tuple, "", "forward")
		return sim.forward(eng, fd.dev.ID, dlvr)
	}
	if dlvr.instance == nil {
		_, err := eng.Schedule(dlvr.actuator.spec.ID, TupleArrival, dlvr.actuator.spec.LatencyMs, dlvr)
		return err
	}

	sim.countReceived(dlvr.tuple.TypeName)
	AddTupleTrace(sim.tm, eng.Now(), fd.dev.ID, dlvr.tuple, dlvr.instance.Module, "start")
	fd.sched.Submit(eng.Now(), createJob(dlvr.tuple, dlvr.instance.ID, eng.Now()))
	fd.meter.Update(eng.Now(), fd.sched.Utilization())
	AddSchedulerTrace(sim.tm, eng.Now(), fd.dev.ID, fd.sched, "submit")
	return fd.sched.Reschedule(eng)
}

// complete handles a resource update: every finished job is retired and its
// outputs emitted, then the next completion is scheduled
func (fd *fogDevice) complete(eng *Engine) error {
	now := eng.Now()
	finished := fd.sched.Completed(now)
	fd.meter.Update(now, fd.sched.Utilization())
	for _, job := range finished {
		if err := fd.retire(eng, job); err != nil {
			return err
		}
	}
	AddSchedulerTrace(fd.sim.tm, now, fd.dev.ID, fd.sched, "complete")
	return fd.sched.Reschedule(eng)
}

// retire closes the loops ending at the job's module and applies the module's
// tuple mappings to the job's tuple
func (fd *fogDevice) retire(eng *Engine, job *Job) error {
	sim := fd.sim
	now := eng.Now()
	mi := fd.instance(job.InstanceID)
	tpl := job.Tuple

	sim.tk.RecordExecution(tpl.TypeName, now-job.Arrive())
	AddTupleTrace(sim.tm, now, fd.dev.ID, tpl, mi.Module, "finish")
	sim.closeLoops(now, mi.Module, tpl)

	for _, tm := range sim.app.MappingsFor(mi.Module, tpl.Type) {
		counter, present := fd.counters[mi.ID][tm.index]
		if !present {
			counter = new(emissionCounter)
			fd.counters[mi.ID][tm.index] = counter
		}
		if !counter.offer(tm.Selectivity) {
			continue
		}
		edge, _ := sim.app.EdgeFor(mi.Module, tm.OutputType)
		if err := sim.emit(eng, mi, edge, tpl.Gateway, tpl); err != nil {
			return err
		}
	}
	return nil
}

// emitPeriodic sends the instance's periodic tuple toward every destination serving
// the instance's gateways, then schedules the next period
func (fd *fogDevice) emitPeriodic(eng *Engine, task *periodicTask) error {
	sim := fd.sim
	mi := task.instance
	edge := task.edge

	switch edge.Kind {
	case ModuleEdge:
		gateways := mi.Gateways
		if len(gateways) == 0 {
			gateways = []int{NoParent}
		}
		sentTo := make(map[int]bool)
		for _, gw := range gateways {
			dst, present := sim.pl.InstanceFor(edge.Dst, gw)
			if !present || sentTo[dst.ID] {
				continue
			}
			sentTo[dst.ID] = true
			if err := sim.emitTo(eng, mi, edge, gw, nil, dst); err != nil {
				return err
			}
		}
	case ActuatorEdge:
		for _, gw := range mi.Gateways {
			if err := sim.emit(eng, mi, edge, gw, nil); err != nil {
				return err
			}
		}
	}

	_, err := eng.Schedule(fd.dev.ID, PeriodicEmit, edge.PeriodicityMs, task)
	return err
}

// instance finds a hosted instance by id
func (fd *fogDevice) instance(id int) *ModuleInstance {
	for _, mi := range fd.hosted {
		if mi.ID == id {
			return mi
		}
	}
	return nil
}

// consumed is the MI executed on the device so far
func (fd *fogDevice) consumed() float64 {
	total := 0.0
	for _, mi := range fd.hosted {
		total += fd.sched.Consumed(mi.ID)
	}
	return total
}

// link returns the state of one direction of the device's link to its parent
func (fd *fogDevice) link(dir Direction) *linkState {
	if dir == Down {
		return &fd.down
	}
	return &fd.up
}

func (fd *fogDevice) dump() DeviceDump {
	return DeviceDump{Name: fd.dev.Name, Utilization: fd.sched.Utilization(), ActiveJobs: fd.sched.ActiveJobs(),
		EnergyJ: fd.meter.Energy()}
}
