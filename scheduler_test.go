package fogsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// schedHost is a test entity driving a ModuleScheduler the way a device does
type schedHost struct {
	id       int
	sched    *ModuleScheduler
	finished map[int]float64 // tuple id -> completion time
}

func (sh *schedHost) EntityID() int {
	return sh.id
}

func (sh *schedHost) EntityName() string {
	return "host"
}

func (sh *schedHost) ProcessEvent(eng *Engine, evt *Event) error {
	for _, job := range sh.sched.Completed(eng.Now()) {
		sh.finished[job.Tuple.ID] = eng.Now()
	}
	return sh.sched.Reschedule(eng)
}

func newSchedHost(t *testing.T, variant ProvisionerVariant, mips float64) (*Engine, *schedHost) {
	t.Helper()
	reg := CreateRegistry()
	sh := &schedHost{id: reg.NxtID(), finished: make(map[int]float64)}
	sh.sched = CreateModuleScheduler(sh.id, CreateCPUProvisioner(variant, "host", mips, 0))
	require.NoError(t, reg.Register(sh, "device"))
	return CreateEngine(reg, nil), sh
}

func TestSchedulerServiceTime(t *testing.T) {
	eng, sh := newSchedHost(t, TimeSharedOverbookingProvisioner, 1000)
	require.NoError(t, sh.sched.cpu.Allocate(1, 1000))
	sh.sched.Install(1)

	sh.sched.Submit(0, createJob(&Tuple{ID: 7, CPULength: 2000}, 1, 0))
	require.NoError(t, sh.sched.Reschedule(eng))
	require.NoError(t, eng.Run())
	require.InDelta(t, 2.0, sh.finished[7], 1e-12)
	require.InDelta(t, 2000.0, sh.sched.Consumed(1), 1e-9)
	require.Equal(t, 0, sh.sched.ActiveJobs())
}

func TestSchedulerConservesWork(t *testing.T) {
	eng, sh := newSchedHost(t, TimeSharedOverbookingProvisioner, 1000)
	for _, id := range []int{1, 2} {
		require.NoError(t, sh.sched.cpu.Allocate(id, 1000))
		sh.sched.Install(id)
	}
	sh.sched.Submit(0, createJob(&Tuple{ID: 1, CPULength: 1000}, 1, 0))
	sh.sched.Submit(0, createJob(&Tuple{ID: 2, CPULength: 500}, 2, 0))
	require.NoError(t, sh.sched.Reschedule(eng))

	rates := sh.sched.ServiceRates()
	require.Equal(t, map[int]float64{1: 500, 2: 500}, rates)

	require.NoError(t, eng.Run())
	require.InDelta(t, 1.0, sh.finished[2], 1e-12)
	require.InDelta(t, 1.5, sh.finished[1], 1e-12)

	// the CPU ran flat out for 1.5 ms, so it executed 1500 MI in all
	total := sh.sched.Consumed(1) + sh.sched.Consumed(2)
	require.InDelta(t, 1500.0, total, 1e-9)
}

func TestSchedulerProcessorSharingWithinInstance(t *testing.T) {
	eng, sh := newSchedHost(t, SimpleProvisioner, 1000)
	require.NoError(t, sh.sched.cpu.Allocate(1, 400))
	sh.sched.Install(1)

	sh.sched.Submit(0, createJob(&Tuple{ID: 1, CPULength: 400}, 1, 0))
	sh.sched.Submit(0, createJob(&Tuple{ID: 2, CPULength: 400}, 1, 0))
	require.NoError(t, sh.sched.Reschedule(eng))
	require.InDelta(t, 0.4, sh.sched.Utilization(), 1e-12)

	require.NoError(t, eng.Run())
	require.InDelta(t, 2.0, sh.finished[1], 1e-12)
	require.InDelta(t, 2.0, sh.finished[2], 1e-12)
	require.Equal(t, 0.0, sh.sched.Utilization())
}

func TestSchedulerIdleHasNoCompletion(t *testing.T) {
	_, sh := newSchedHost(t, TimeSharedOverbookingProvisioner, 1000)
	sh.sched.Install(1)
	_, ok := sh.sched.NextCompletion()
	require.False(t, ok)
}
