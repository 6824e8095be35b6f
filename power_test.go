package fogsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearPowerModelClamps(t *testing.T) {
	lpm := LinearPowerModel{BusyPower: 100, IdlePower: 60}
	require.Equal(t, 60.0, lpm.Power(0))
	require.Equal(t, 80.0, lpm.Power(0.5))
	require.Equal(t, 100.0, lpm.Power(1))
	require.Equal(t, 100.0, lpm.Power(1.5))
	require.Equal(t, 60.0, lpm.Power(-0.2))
}

func TestEnergyMeterIntegratesPower(t *testing.T) {
	em := CreateEnergyMeter(LinearPowerModel{BusyPower: 100, IdlePower: 60})

	// idle 0..200 ms, half busy 200..600 ms, idle until 1000 ms
	em.Update(200, 0.5)
	em.Update(600, 0)
	em.Update(1000, 0)

	want := 60*0.2 + 80*0.4 + 60*0.4
	require.InDelta(t, want, em.Energy(), 1e-9)
	require.InDelta(t, 400.0, em.BusyTime(), 1e-9)
	require.InDelta(t, 0.2, em.MeanUtilization(), 1e-12)
}

func TestEnergyMeterSamples(t *testing.T) {
	em := CreateEnergyMeter(LinearPowerModel{BusyPower: 10, IdlePower: 0})
	em.Update(0, 1)
	em.Sample(500)
	em.Update(500, 0)
	em.Sample(1000)

	require.Equal(t, []PowerSampleRec{
		{Time: 500, Utilization: 1, Power: 10},
		{Time: 1000, Utilization: 0, Power: 0},
	}, em.Samples())
	require.InDelta(t, 5.0, em.Energy(), 1e-12)
}
