package fogsim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// placeScenario builds the topology, application and sensors of the scenario and
// runs the placer on them
func placeScenario(t *testing.T, sd *ScenarioDesc, placer ModulePlacer) (*Placement, *Topology, error) {
	t.Helper()
	expanded, err := sd.Expand()
	require.NoError(t, err)
	reg := CreateRegistry()
	devices, err := expanded.buildDevices(reg.NxtID)
	require.NoError(t, err)
	topo, err := CreateTopology(devices)
	require.NoError(t, err)
	app, err := expanded.buildApplication()
	require.NoError(t, err)
	sensors, err := buildSensors(expanded.Sensors, topo, reg.NxtID)
	require.NoError(t, err)
	pl, err := placer.Place(topo, app, sensors, Hints(expanded.Hints))
	return pl, topo, err
}

func parkingScenario(t *testing.T, config string) *ScenarioDesc {
	t.Helper()
	cfg, present := LookupConfig(config)
	require.True(t, present)
	sd, err := ParkingScenario(config, cfg, 1000)
	require.NoError(t, err)
	return sd
}

func TestEdgewardsParkingPlacement(t *testing.T) {
	pl, topo, err := placeScenario(t, parkingScenario(t, "CONFIG_1"), EdgewardsPlacer{})
	require.NoError(t, err)
	placed := pl.DeviceNames(topo)

	edges := []string{"edge-node-EdgeNode#0", "edge-node-EdgeNode#1", "edge-node-EdgeNode#2"}
	cameras := []string{}
	irs := []string{}
	for area := 0; area < 3; area++ {
		for j := 0; j < 20; j++ {
			irs = append(irs, fmt.Sprintf("ir-sensor-area#%d-%d", area, j))
		}
		for j := 0; j < 2; j++ {
			cameras = append(cameras, fmt.Sprintf("camera-area#%d-%d", area, j))
		}
	}

	require.Equal(t, cameras, placed[MotionDetector])
	require.Equal(t, irs, placed[IRDetector])
	require.Equal(t, []string{"cloud"}, placed[UserInterface])

	// a camera has 300 MIPS left after its motion detector, short of the 400 an
	// object detector needs, so both cameras of an area share one on their edge node
	require.Equal(t, edges, placed[ObjectDetector])
	require.Equal(t, edges, placed[ObjectTracker])
	for _, mi := range pl.Instances(ObjectDetector) {
		require.Len(t, mi.Gateways, 2)
		require.InDelta(t, 800.0, mi.Demand, 1e-9)
	}

	// four IR streams fill what the edge node has left, seven fill the proxy, and
	// the cloud takes the rest
	require.Equal(t, []string{edges[0], "proxy-server", "cloud", edges[1], edges[2]}, placed[ParkingSpaceDetector])
	gwCount := []int{}
	for _, mi := range pl.Instances(ParkingSpaceDetector) {
		gwCount = append(gwCount, len(mi.Gateways))
	}
	require.Equal(t, []int{4, 7, 41, 4, 4}, gwCount)

	require.Equal(t, []string{"cloud"}, placed[ParkingSpaceTracker])
	require.Empty(t, pl.Instances(ParkingSpaceTracker)[0].Gateways)

	// every gateway feeding a module is served by exactly one of its instances
	for _, mod := range []string{ObjectDetector, ObjectTracker, ParkingSpaceDetector, UserInterface} {
		for _, gw := range pl.demand.Feeds(mod) {
			serving := 0
			for _, mi := range pl.Instances(mod) {
				if mi.Serves(gw) {
					serving += 1
				}
			}
			require.Equal(t, 1, serving, "module %s gateway %d", mod, gw)
		}
	}
}

func TestStaticParkingPlacement(t *testing.T) {
	pl, topo, err := placeScenario(t, parkingScenario(t, "CONFIG_2"), StaticMappingPlacer{})
	require.NoError(t, err)
	placed := pl.DeviceNames(topo)

	require.Equal(t, []string{"cloud"}, placed[ObjectDetector])
	require.Equal(t, []string{"cloud"}, placed[ObjectTracker])
	require.Equal(t, []string{"cloud"}, placed[ParkingSpaceDetector])
	require.Equal(t, []string{"cloud"}, placed[ParkingSpaceTracker])
	require.Len(t, placed[MotionDetector], 6)
	require.Len(t, placed[IRDetector], 60)

	od := pl.Instances(ObjectDetector)[0]
	require.Len(t, od.Gateways, 6)
	require.InDelta(t, 2400.0, od.Demand, 1e-9)
	require.Equal(t, StaticMappingName, pl.Policy)
}

func TestPinConflict(t *testing.T) {
	sd := parkingScenario(t, "CONFIG_1")
	for idx := range sd.App.Modules {
		if sd.App.Modules[idx].Name == ObjectDetector {
			sd.App.Modules[idx].Size = 10000
		}
	}
	sd.Hints[ObjectDetector] = []string{"ir-sensor-area#0-0"}

	for _, placer := range []ModulePlacer{EdgewardsPlacer{}, StaticMappingPlacer{}} {
		_, _, err := placeScenario(t, sd, placer)
		var pe *PlacementError
		require.ErrorAs(t, err, &pe, placer.Name())
		require.Equal(t, PinConflict, pe.Code)
		require.Equal(t, ObjectDetector, pe.Module)
		require.Equal(t, "ir-sensor-area#0-0", pe.Device)
		require.Equal(t, ExitPlacement, ExitCode(err))
	}
}

// smallScenario is a root with one gateway child carrying a sensor; a single
// module of the given CPU length is fed every 5 ms
func smallScenario(rootMips, cpuLength float64) *ScenarioDesc {
	return &ScenarioDesc{
		Name: "small",
		Templates: []DeviceTemplateDesc{
			{Name: "root", Mips: rootMips, Ram: 100, BusyPower: 10, IdlePower: 5},
			{Name: "gw", Mips: 100, Ram: 100, UpBw: 1000, DownBw: 1000, Level: 1, UplinkLatencyMs: 1,
				BusyPower: 10, IdlePower: 5},
		},
		Devices: []DeviceDesc{{Name: "root", Template: "root"}, {Name: "gw", Template: "gw", Parent: "root"}},
		Sensors: []SensorDesc{{Name: "s", TupleType: "S", Gateway: "gw", LatencyMs: 1,
			Dist: DistDesc{Kind: "deterministic", Value: 5}}},
		App: AppDesc{Name: "small", Modules: []ModuleDesc{{Name: "m", Size: 10}},
			Edges: []EdgeDesc{{Src: "S", Dst: "m", CpuLength: cpuLength, NwLength: 10, TupleType: "S", Kind: "SENSOR"}}},
		HorizonMs: 100,
	}
}

func TestStaticNoFeasibleRoot(t *testing.T) {
	_, _, err := placeScenario(t, smallScenario(100, 1000), StaticMappingPlacer{})
	var pe *PlacementError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, NoFeasibleDevice, pe.Code)
	require.Equal(t, "m", pe.Module)
	require.Equal(t, "root", pe.Device)
}

func TestStaticNamesTheModuleThatOverflows(t *testing.T) {
	// m needs 200 MIPS of a 100 MIPS root; the downstream n is placed after it
	sd := smallScenario(100, 1000)
	sd.App.Modules = append(sd.App.Modules, ModuleDesc{Name: "n", Size: 10})
	sd.App.Edges = append(sd.App.Edges, EdgeDesc{Src: "m", Dst: "n", CpuLength: 1, NwLength: 10, TupleType: "OUT"})
	sd.App.Mappings = []MappingDesc{{Module: "m", InputType: "S", OutputType: "OUT", Selectivity: 1}}

	_, _, err := placeScenario(t, sd, StaticMappingPlacer{})
	var pe *PlacementError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, NoFeasibleDevice, pe.Code)
	require.Equal(t, "m", pe.Module)
}

func TestEdgewardsClimbsAndFails(t *testing.T) {
	// 200 MIPS of demand: too much for the gateway, fine for the root
	pl, topo, err := placeScenario(t, smallScenario(1000, 1000), EdgewardsPlacer{})
	require.NoError(t, err)
	require.Equal(t, []string{"root"}, pl.DeviceNames(topo)["m"])

	// 20 MIPS fits on the gateway itself
	pl, topo, err = placeScenario(t, smallScenario(1000, 100), EdgewardsPlacer{})
	require.NoError(t, err)
	require.Equal(t, []string{"gw"}, pl.DeviceNames(topo)["m"])

	_, _, err = placeScenario(t, smallScenario(100, 1000), EdgewardsPlacer{})
	var pe *PlacementError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, NoFeasibleDevice, pe.Code)
	require.Equal(t, "gw", pe.Device)
}

func TestPlacerByName(t *testing.T) {
	for name, want := range map[string]string{
		"static":                   StaticMappingName,
		"ModulePlacementMapping":   StaticMappingName,
		"edgewards":                EdgewardsName,
		"ModulePlacementEdgewards": EdgewardsName,
	} {
		placer, err := PlacerByName(name)
		require.NoError(t, err)
		require.Equal(t, want, placer.Name())
	}
	_, err := PlacerByName("random")
	require.Equal(t, ExitValidation, ExitCode(err))
}

func TestHintsMustNameKnownThings(t *testing.T) {
	sd := smallScenario(1000, 100)
	sd.Hints = map[string][]string{"m": {"nowhere"}, "ghost": {"root"}}
	_, _, err := placeScenario(t, sd, EdgewardsPlacer{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Problems, 2)
}
