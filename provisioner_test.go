package fogsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvisionerFromStr(t *testing.T) {
	for _, tc := range []struct {
		name string
		want ProvisionerVariant
	}{
		{"", TimeSharedOverbookingProvisioner},
		{"timeshared", TimeSharedOverbookingProvisioner},
		{"simple", SimpleProvisioner},
		{"Overbooking", OverbookingProvisioner},
	} {
		got, err := ProvisionerFromStr(tc.name)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.want, got, tc.name)
	}
	_, err := ProvisionerFromStr("greedy")
	require.Error(t, err)
}

func TestSimpleProvisionerRefusesOvercommit(t *testing.T) {
	cpu := CreateCPUProvisioner(SimpleProvisioner, "host", 1000, 0)
	require.NoError(t, cpu.Allocate(1, 600))
	require.NoError(t, cpu.Allocate(2, 400))

	err := cpu.Allocate(3, 1)
	var re *ResourceError
	require.ErrorAs(t, err, &re)
	require.Equal(t, CapacityOverflow, re.Code)

	// a module may resize its own allocation within what is left
	require.NoError(t, cpu.Allocate(2, 300))
	require.Equal(t, 900.0, cpu.Allocated())

	cpu.SetActive(1, true)
	require.Equal(t, 600.0, cpu.EffectiveRate(1))
	require.InDelta(t, 0.6, cpu.Utilization(), 1e-12)
}

func TestOverbookingProvisionerScalesDown(t *testing.T) {
	cpu := CreateCPUProvisioner(OverbookingProvisioner, "host", 1000, 2)
	require.NoError(t, cpu.Allocate(1, 1500))
	require.NoError(t, cpu.Allocate(2, 500))
	require.Error(t, cpu.Allocate(3, 1))

	require.InDelta(t, 750.0, cpu.EffectiveRate(1), 1e-9)
	require.InDelta(t, 250.0, cpu.EffectiveRate(2), 1e-9)

	cpu.SetActive(1, true)
	cpu.SetActive(2, true)
	require.InDelta(t, 1.0, cpu.Utilization(), 1e-12)
}

func TestTimeSharedProvisionerSharesAmongActive(t *testing.T) {
	cpu := CreateCPUProvisioner(TimeSharedOverbookingProvisioner, "host", 1000, 0)
	require.NoError(t, cpu.Allocate(1, 1000))
	require.NoError(t, cpu.Allocate(2, 1000))

	require.Equal(t, 0.0, cpu.EffectiveRate(1))
	cpu.SetActive(1, true)
	require.Equal(t, 1000.0, cpu.EffectiveRate(1))
	cpu.SetActive(2, true)
	require.Equal(t, 500.0, cpu.EffectiveRate(1))
	require.Equal(t, 500.0, cpu.EffectiveRate(2))
	require.Equal(t, 1.0, cpu.Utilization())

	cpu.SetActive(1, false)
	require.Equal(t, 1000.0, cpu.EffectiveRate(2))
	cpu.Release(2)
	require.Equal(t, 1000.0, cpu.Allocated())
}

func TestRamProvisioner(t *testing.T) {
	ram := CreateRamProvisioner("host", 100)
	require.NoError(t, ram.Allocate(1, 60))
	err := ram.Allocate(2, 50)
	var re *ResourceError
	require.ErrorAs(t, err, &re)
	require.Equal(t, InsufficientRam, re.Code)

	require.NoError(t, ram.Allocate(2, 40))
	require.Equal(t, 100, ram.Used())
	ram.Release(1)
	require.Equal(t, 40, ram.Used())
	require.Equal(t, 100, ram.Capacity())
}

func TestBwProvisionerAllowsOverbooking(t *testing.T) {
	bw := CreateBwProvisioner(10)
	bw.Allocate(BwKey{Src: "a", Dst: "b"}, 4)
	bw.Allocate(BwKey{Src: "a", Dst: "b"}, 4)
	require.False(t, bw.Overbooked())
	bw.Allocate(BwKey{Src: "b", Dst: "c"}, 3)
	require.Equal(t, 11.0, bw.Allocated())
	require.True(t, bw.Overbooked())
	bw.Release(BwKey{Src: "a", Dst: "b"})
	require.Equal(t, 3.0, bw.Allocated())
}
