package fogsim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeKeeperLoops(t *testing.T) {
	loops := []*AppLoop{{ID: 0, Modules: []string{"a", "b"}}, {ID: 1, Modules: []string{"c", "d"}}}
	tk := CreateTimeKeeper(loops)
	for _, v := range []float64{2, 4, 6} {
		tk.RecordLoop(0, v)
	}
	tk.RecordLoop(7, 100)

	stats := tk.LoopStats()
	require.Len(t, stats, 2)
	require.Equal(t, 3, stats[0].Count)
	require.Equal(t, 4.0, stats[0].AvgMs)
	require.Equal(t, 2.0, stats[0].MinMs)
	require.Equal(t, 6.0, stats[0].MaxMs)
	// sample variance 4 over 3 measurements
	require.InDelta(t, 1.96*2/math.Sqrt(3), stats[0].CI95Ms, 1e-12)

	require.Equal(t, LoopResult{Loop: []string{"c", "d"}}, stats[1])
}

func TestTimeKeeperExecutions(t *testing.T) {
	tk := CreateTimeKeeper(nil)
	tk.RecordExecution("OBJECT_LOCATION", 3)
	tk.RecordExecution("CAMERA", 1)
	tk.RecordExecution("OBJECT_LOCATION", 5)
	require.Equal(t, []ExecResult{
		{TupleType: "OBJECT_LOCATION", Count: 2, AvgMs: 4},
		{TupleType: "CAMERA", Count: 1, AvgMs: 1},
	}, tk.ExecStats())
}
