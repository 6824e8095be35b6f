package fogsim

// scheduler.go holds structs, methods and data structures that
// support scheduling of tuple executions on the limited CPU of a host.

// A host shares its CPU among the module instances installed on it, at the rates
// its CPU provisioner gives them.  Within one module instance the jobs in service
// share the instance's rate equally (processor sharing).  Whenever the set of jobs
// changes the scheduler advances the remaining work of every job to the current
// time, cancels its pending completion event, and schedules a fresh resource-update
// event for the earliest completion under the new rates.

import (
	"math"
)

// completionTol is the residual work (MI) at or below which a job counts as done
const completionTol = 1e-9

// Job describes one tuple execution on a module instance
type Job struct {
	Tuple      *Tuple
	InstanceID int
	arrive     float64 // time of job arrival
	req        float64 // required service, in MI
	remaining  float64 // service still owed, in MI
}

// Arrive is the time the job entered service
func (job *Job) Arrive() float64 {
	return job.arrive
}

// createJob is a constructor
func createJob(tuple *Tuple, instanceID int, arrive float64) *Job {
	return &Job{Tuple: tuple, InstanceID: instanceID, arrive: arrive,
		req: tuple.CPULength, remaining: tuple.CPULength}
}

// ModuleScheduler holds the jobs in service on one host
type ModuleScheduler struct {
	hostID     int
	cpu        CPUProvisioner
	jobs       map[int][]*Job // jobs in service, per module instance, in arrival order
	instances  []int          // instance ids in installation order
	lastUpdate float64
	completion *Event
	consumed   map[int]float64 // MI executed, per module instance
	numJobs    int
}

// CreateModuleScheduler is a constructor
func CreateModuleScheduler(hostID int, cpu CPUProvisioner) *ModuleScheduler {
	ms := new(ModuleScheduler)
	ms.hostID = hostID
	ms.cpu = cpu
	ms.jobs = make(map[int][]*Job)
	ms.instances = make([]int, 0)
	ms.consumed = make(map[int]float64)
	return ms
}

// Install makes a module instance known to the scheduler
func (ms *ModuleScheduler) Install(instanceID int) {
	if _, present := ms.jobs[instanceID]; present {
		return
	}
	ms.jobs[instanceID] = make([]*Job, 0)
	ms.instances = append(ms.instances, instanceID)
}

// Submit puts a job in service at time now.  The caller reschedules afterwards.
func (ms *ModuleScheduler) Submit(now float64, job *Job) {
	ms.advance(now)
	ms.jobs[job.InstanceID] = append(ms.jobs[job.InstanceID], job)
	ms.numJobs += 1
	ms.cpu.SetActive(job.InstanceID, true)
}

// jobRate is the rate (MI per ms) each job of the instance receives
func (ms *ModuleScheduler) jobRate(instanceID int) float64 {
	n := len(ms.jobs[instanceID])
	if n == 0 {
		return 0.0
	}
	return ms.cpu.EffectiveRate(instanceID) / float64(n)
}

// advance moves every job's remaining work forward to now at the rates in force
// since the last update
func (ms *ModuleScheduler) advance(now float64) {
	dt := now - ms.lastUpdate
	if !(dt > 0) {
		return
	}
	for _, id := range ms.instances {
		jobs := ms.jobs[id]
		if len(jobs) == 0 {
			continue
		}
		share := ms.jobRate(id)
		for _, job := range jobs {
			done := math.Min(job.remaining, share*dt)
			job.remaining -= done
			ms.consumed[id] += done
		}
	}
	ms.lastUpdate = now
}

// Completed advances to now and removes and returns the jobs whose work is done,
// in instance installation order and arrival order within an instance
func (ms *ModuleScheduler) Completed(now float64) []*Job {
	ms.advance(now)
	finished := make([]*Job, 0)
	for _, id := range ms.instances {
		jobs := ms.jobs[id]
		if len(jobs) == 0 {
			continue
		}
		kept := jobs[:0]
		for _, job := range jobs {
			if job.remaining <= completionTol*math.Max(1.0, job.req) {
				ms.consumed[id] += job.remaining
				job.remaining = 0
				finished = append(finished, job)
				ms.numJobs -= 1
			} else {
				kept = append(kept, job)
			}
		}
		ms.jobs[id] = kept
		if len(kept) == 0 {
			ms.cpu.SetActive(id, false)
		}
	}
	return finished
}

// NextCompletion returns the delay until the earliest job completes under the
// current rates; ok is false when nothing is in service
func (ms *ModuleScheduler) NextCompletion() (delay float64, ok bool) {
	delay = math.Inf(1)
	for _, id := range ms.instances {
		share := ms.jobRate(id)
		if !(share > 0) {
			continue
		}
		for _, job := range ms.jobs[id] {
			delay = math.Min(delay, job.remaining/share)
		}
	}
	if math.IsInf(delay, 1) {
		return 0, false
	}
	return delay, true
}

// Reschedule cancels the pending completion event and schedules a resource-update
// event at the host for the earliest completion
func (ms *ModuleScheduler) Reschedule(eng *Engine) error {
	if ms.completion != nil {
		ms.completion.Cancel()
		ms.completion = nil
	}
	delay, ok := ms.NextCompletion()
	if !ok {
		return nil
	}
	evt, err := eng.Schedule(ms.hostID, ResourceUpdate, delay, nil)
	if err != nil {
		return err
	}
	ms.completion = evt
	return nil
}

// Utilization is the fraction of the host capacity serving work right now
func (ms *ModuleScheduler) Utilization() float64 {
	return ms.cpu.Utilization()
}

// ActiveJobs is the number of jobs in service
func (ms *ModuleScheduler) ActiveJobs() int {
	return ms.numJobs
}

// ServiceRates returns the effective rate of every instance with work in service
func (ms *ModuleScheduler) ServiceRates() map[int]float64 {
	rates := make(map[int]float64)
	for _, id := range ms.instances {
		if len(ms.jobs[id]) > 0 {
			rates[id] = ms.cpu.EffectiveRate(id)
		}
	}
	return rates
}

// Consumed returns the MI executed on behalf of the instance so far
func (ms *ModuleScheduler) Consumed(instanceID int) float64 {
	return ms.consumed[instanceID]
}
