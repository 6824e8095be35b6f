package fogsim

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandAreaForm(t *testing.T) {
	sd := parkingScenario(t, "CONFIG_1")
	out, err := sd.Expand()
	require.NoError(t, err)
	require.Empty(t, sd.Devices)

	// cloud, proxy, 3 edge nodes, and 3 areas of 20 IR sensors and 2 cameras
	require.Len(t, out.Devices, 2+3+3*22)
	require.Len(t, out.Sensors, 3*22)
	require.Len(t, out.Actuators, 3*22)

	parents := make(map[string]string)
	for _, dd := range out.Devices {
		parents[dd.Name] = dd.Parent
	}
	require.Equal(t, "", parents["cloud"])
	require.Equal(t, "proxy-server", parents["edge-node-EdgeNode#2"])
	require.Equal(t, "edge-node-EdgeNode#2", parents["camera-area#2-1"])
	require.Equal(t, "edge-node-EdgeNode#0", parents["ir-sensor-area#0-19"])

	sens := out.Sensors[0]
	require.Equal(t, "s-ir-sensor-area#0-0", sens.Name)
	require.Equal(t, IRSensorType, sens.TupleType)
	require.Equal(t, DistDesc{Kind: "deterministic", Value: 5}, sens.Dist)
	require.Equal(t, 1.0, sens.LatencyMs)

	again, err := out.Expand()
	require.NoError(t, err)
	require.Equal(t, out.Devices, again.Devices)
}

func TestExpandRejectsBadAreaForm(t *testing.T) {
	sd := parkingScenario(t, "CONFIG_3")
	sd.EdgeNodesCount = 0
	sd.Templates = sd.Templates[:3]
	_, err := sd.Expand()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Problems, 3)
}

func TestScenarioDescRoundTrip(t *testing.T) {
	sd := parkingScenario(t, "CONFIG_3")
	sd.Seed = 11
	sd.Parameters = []ExpParameter{*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "*"}}, "mips", "900")}

	for _, name := range []string{"scenario.yaml", "scenario.json"} {
		filename := filepath.Join(t.TempDir(), name)
		require.NoError(t, sd.WriteToFile(filename))
		back, err := ReadScenarioDesc(filename, UseYAML(filename), nil)
		require.NoError(t, err)
		require.Equal(t, sd, back, name)
	}
	require.Error(t, sd.WriteToFile(filepath.Join(t.TempDir(), "scenario.txt")))
}

func TestBuildDevicesGathersProblems(t *testing.T) {
	sd := &ScenarioDesc{
		Templates: []DeviceTemplateDesc{{Name: "host", Mips: 100}, {Name: "odd", Mips: 100, Provisioner: "fair"}},
		Devices: []DeviceDesc{
			{Name: "a", Template: "host"},
			{Name: "a", Template: "host"},
			{Name: "b", Template: "missing"},
			{Name: "c", Template: "host", Parent: "nowhere"},
			{Name: "d", Template: "odd", Parent: "a"},
		},
	}
	nxt := 0
	_, err := sd.buildDevices(func() int { nxt += 1; return nxt })
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Problems, 4)
}

func TestReorderExpParams(t *testing.T) {
	wild := *CreateExpParameter("Device", []AttrbStruct{{AttrbName: "*"}}, "mips", "3")
	group := *CreateExpParameter("Device", []AttrbStruct{{AttrbName: "group", AttrbValue: "edge"}}, "mips", "4")
	groupLevel := *CreateExpParameter("Device", []AttrbStruct{{AttrbName: "group", AttrbValue: "edge"},
		{AttrbName: "level", AttrbValue: "2"}}, "mips", "2")
	name := *CreateExpParameter("Device", []AttrbStruct{{AttrbName: "name", AttrbValue: "cloud"}}, "mips", "1")

	ordered := reorderExpParams([]ExpParameter{name, groupLevel, wild, group, wild})
	require.Equal(t, []ExpParameter{wild, group, groupLevel, name}, ordered)
}

func TestApplyExpParams(t *testing.T) {
	out, err := parkingScenario(t, "CONFIG_3").Expand()
	require.NoError(t, err)
	nxt := 0
	devices, err := out.buildDevices(func() int { nxt += 1; return nxt })
	require.NoError(t, err)

	params := []ExpParameter{
		*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "name", AttrbValue: "cloud"}}, "mips", "50000"),
		*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "group", AttrbValue: "edge"}}, "provisioner",
			"simple"),
		*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "*"}}, "mips", "1000"),
		*CreateExpParameter("Sensor", []AttrbStruct{{AttrbName: "type", AttrbValue: CameraSensorType}},
			"latencyMs", "3"),
	}
	require.NoError(t, applyExpParams(params, devices, out.Sensors))

	for _, dev := range devices {
		switch dev.Name {
		case "cloud":
			require.Equal(t, 50000.0, dev.MIPS)
		case "edge-node-EdgeNode#0":
			require.Equal(t, 1000.0, dev.MIPS)
			require.Equal(t, SimpleProvisioner, dev.Provisioner)
		default:
			require.Equal(t, 1000.0, dev.MIPS, dev.Name)
			require.Equal(t, TimeSharedOverbookingProvisioner, dev.Provisioner, dev.Name)
		}
	}
	for _, sens := range out.Sensors {
		if sens.TupleType == CameraSensorType {
			require.Equal(t, 3.0, sens.LatencyMs)
		} else {
			require.Equal(t, 1.0, sens.LatencyMs)
		}
	}

	bad := []ExpParameter{
		*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "*"}}, "mips", "fast"),
		*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "type", AttrbValue: "x"}}, "mips", "1"),
		*CreateExpParameter("Link", []AttrbStruct{{AttrbName: "*"}}, "mips", "1"),
	}
	require.Error(t, applyExpParams(bad, devices, out.Sensors))
}

func TestExpCfgValidation(t *testing.T) {
	excfg := CreateExpCfg("exp")
	require.NoError(t, excfg.AddParameter("Sensor", []AttrbStruct{{AttrbName: "gateway", AttrbValue: "cloud"}},
		"emitAtStart", "true"))
	require.Error(t, excfg.AddParameter("Sensor", []AttrbStruct{{AttrbName: "level", AttrbValue: "1"}},
		"latencyMs", "1"))
	require.Error(t, excfg.AddParameter("Device", nil, "color", "red"))
	require.Len(t, excfg.Parameters, 1)

	ep := CreateExpParameter("Device", nil, "mips", "1")
	require.NoError(t, ep.AddAttribute("group", "edge"))
	require.NoError(t, ep.AddAttribute("group", "proxy"))
	require.NoError(t, ep.AddAttribute("name", "cloud"))
	require.Error(t, ep.AddAttribute("name", "proxy-server"))
	require.Error(t, ep.AddAttribute("type", "x"))

	filename := filepath.Join(t.TempDir(), "exp.yaml")
	require.NoError(t, excfg.WriteToFile(filename))
	back, err := ReadExpCfg(filename, true, nil)
	require.NoError(t, err)
	require.Equal(t, excfg, back)
}

func TestRunAppliesParameters(t *testing.T) {
	sd := singleDeviceScenario()
	sd.Parameters = []ExpParameter{
		*CreateExpParameter("Device", []AttrbStruct{{AttrbName: "name", AttrbValue: "cloud"}}, "mips", "2000"),
	}
	res, err := Run(context.Background(), sd)
	require.NoError(t, err)
	dev, _ := res.Device("cloud")
	require.InDelta(t, 0.1, dev.BusyTimeS, 1e-9)

	sd.Parameters[0].Value = "lots"
	_, err = Run(context.Background(), sd)
	require.Equal(t, ExitValidation, ExitCode(err))
}
