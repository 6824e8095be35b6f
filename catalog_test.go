package fogsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogLookup(t *testing.T) {
	require.Equal(t, []string{"CONFIG_1", "CONFIG_2", "CONFIG_3", "CONFIG_4", "CONFIG_5"}, ConfigNames())

	cfg, present := LookupConfig("config_2")
	require.True(t, present)
	require.True(t, cfg.CloudBased)
	require.Equal(t, "edgeNodesCount=3 areasCount=3 sensorsPerArea=20 camerasPerArea=2 cloudBased=true", cfg.String())

	_, present = LookupConfig("CONFIG_9")
	require.False(t, present)
}

func TestParkingScenarioHints(t *testing.T) {
	sd := parkingScenario(t, "CONFIG_5")
	require.Len(t, sd.Hints[MotionDetector], 4*2)
	require.Len(t, sd.Hints[IRDetector], 4*10)
	require.Equal(t, []string{"cloud"}, sd.Hints[UserInterface])
	require.Equal(t, []string{"cloud"}, sd.Hints[ObjectDetector])
	require.Equal(t, []string{"cloud"}, sd.Hints[ObjectTracker])
	require.NotContains(t, sd.Hints, ParkingSpaceDetector)
	require.Equal(t, "camera-area#0-0", sd.Hints[MotionDetector][0])

	sd = parkingScenario(t, "CONFIG_4")
	require.NotContains(t, sd.Hints, ObjectDetector)
	require.Equal(t, EdgewardsName, sd.PlacementPolicy())
}

func TestParkingAppOrder(t *testing.T) {
	out, err := parkingScenario(t, "CONFIG_3").Expand()
	require.NoError(t, err)
	app, err := out.buildApplication()
	require.NoError(t, err)
	require.Equal(t, []string{MotionDetector, ObjectDetector, ObjectTracker, UserInterface, IRDetector,
		ParkingSpaceDetector, ParkingSpaceTracker}, app.TopologicalOrder())
}
