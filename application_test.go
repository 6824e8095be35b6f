package fogsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// chainApp is SENSOR -> a -> b -> c -> ACT with c measuring the loop a,b,c
func chainApp(t *testing.T) *Application {
	t.Helper()
	app := CreateApplication("chain", 1)
	app.DeclareSensorType("SENSOR")
	app.DeclareActuatorType("ACT")
	app.AddModule("c", 10)
	app.AddModule("a", 10)
	app.AddModule("b", 10)
	app.AddEdge("SENSOR", "a", 100, 500, "SENSOR", Up, SensorEdge)
	app.AddEdge("a", "b", 200, 100, "AB", Up, ModuleEdge)
	app.AddEdge("b", "c", 300, 100, "BC", Up, ModuleEdge)
	app.AddEdge("c", "ACT", 10, 50, "CMD", Down, ActuatorEdge)
	app.AddTupleMapping("a", "SENSOR", "AB", 1.0)
	app.AddTupleMapping("b", "AB", "BC", 0.5)
	app.AddTupleMapping("c", "BC", "CMD", 1.0)
	app.SetLoops([][]string{{"a", "b", "c"}})
	return app
}

func TestApplicationValidateAndIndexes(t *testing.T) {
	app := chainApp(t)
	require.NoError(t, app.Validate())
	require.True(t, app.Validated())

	// producers first even though c was declared first
	require.Equal(t, []string{"a", "b", "c"}, app.TopologicalOrder())

	edge, present := app.EdgeFor("b", "BC")
	require.True(t, present)
	require.Equal(t, "c", edge.Dst)
	require.Len(t, app.OutEdges("SENSOR"), 1)
	require.Len(t, app.InEdges("ACT"), 1)

	inID, _ := app.Types().Lookup("AB")
	maps := app.MappingsFor("b", inID)
	require.Len(t, maps, 1)
	require.Equal(t, "BC", maps[0].OutputType)
	require.Equal(t, "a", app.Loops()[0].Head())
	require.Equal(t, "c", app.Loops()[0].Tail())
}

func TestApplicationRejectsUncoveredCycle(t *testing.T) {
	app := CreateApplication("cyclic", 1)
	app.AddModule("A", 1)
	app.AddModule("B", 1)
	app.AddEdge("A", "B", 1, 1, "AB", Up, ModuleEdge)
	app.AddEdge("B", "A", 1, 1, "BA", Down, ModuleEdge)

	err := app.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, ve.Error(), "cycle among modules A,B")
	require.False(t, app.Validated())
}

func TestApplicationAcceptsDeclaredLoopCycle(t *testing.T) {
	app := CreateApplication("feedback", 1)
	app.AddModule("B", 1)
	app.AddModule("A", 1)
	app.AddEdge("A", "B", 1, 1, "AB", Up, ModuleEdge)
	app.AddEdge("B", "A", 1, 1, "BA", Down, ModuleEdge)
	app.SetLoops([][]string{{"A", "B"}})

	require.NoError(t, app.Validate())
	require.Equal(t, []string{"A", "B"}, app.TopologicalOrder())
}

func TestApplicationGathersProblems(t *testing.T) {
	app := CreateApplication("broken", 1)
	app.DeclareSensorType("S")
	app.AddModule("m", 1)
	app.AddModule("m", 2)
	app.AddEdge("S", "ghost", 1, 1, "S", Up, SensorEdge)
	app.AddEdge("m", "ACT", 1, 1, "OUT", Down, ActuatorEdge)
	app.AddTupleMapping("m", "S", "OUT", 1.5)
	app.SetLoops([][]string{{"m"}})

	err := app.Validate()
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.GreaterOrEqual(t, len(ve.Problems), 5)
	require.Contains(t, ve.Error(), `duplicate module name "m"`)
	require.Contains(t, ve.Error(), `undeclared module "ghost"`)
	require.Contains(t, ve.Error(), `"ACT" is not a declared actuator type`)
	require.Contains(t, ve.Error(), "selectivity 1.5")
	require.Contains(t, ve.Error(), "loop 0 needs at least two members")
}

func TestApplicationRejectsDuplicateOutgoingType(t *testing.T) {
	app := CreateApplication("dup", 1)
	app.AddModule("a", 1)
	app.AddModule("b", 1)
	app.AddModule("c", 1)
	app.AddEdge("a", "b", 1, 1, "T", Up, ModuleEdge)
	app.AddEdge("a", "c", 1, 1, "T", Up, ModuleEdge)
	require.Error(t, app.Validate())
}
