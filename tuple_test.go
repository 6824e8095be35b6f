package fogsim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmissionCounterHonorsSelectivity(t *testing.T) {
	for _, tc := range []struct {
		s    float64
		n    int
		want int
	}{
		{0.05, 1000, 50},
		{1.0, 37, 37},
		{0.0, 500, 0},
		{0.3, 10, 3},
		{0.25, 9, 2},
	} {
		ec := new(emissionCounter)
		got := 0
		for i := 1; i <= tc.n; i++ {
			if ec.offer(tc.s) {
				got += 1
			}
			// never ahead of, nor a whole output behind, s*i
			require.LessOrEqual(t, float64(got), tc.s*float64(i)+1e-9)
			require.Greater(t, float64(got)+1, tc.s*float64(i)-1e-9)
		}
		require.Equal(t, tc.want, got, "selectivity %g", tc.s)
	}
}

func TestEmissionCounterStaysWithinOneOfFloor(t *testing.T) {
	for _, tc := range []struct {
		s float64
		n int64
	}{
		{1.0 / 3.0, 3000003},
		{0.1234567, 2000000},
		{4e-7, 10000000},
		{0.999999, 1000000},
		{2.0 / 7.0, 700001},
	} {
		ec := new(emissionCounter)
		var got int64
		for i := int64(1); i <= tc.n; i++ {
			if ec.offer(tc.s) {
				got += 1
			}
			if i%100000 == 0 || i == tc.n {
				floor := int64(math.Floor(tc.s * float64(i)))
				require.LessOrEqual(t, got-floor, int64(1), "s=%g n=%d", tc.s, i)
				require.LessOrEqual(t, floor-got, int64(1), "s=%g n=%d", tc.s, i)
			}
		}
	}

	ec := new(emissionCounter)
	var got int64
	for i := 0; i < 10000000; i++ {
		if ec.offer(4e-7) {
			got += 1
		}
	}
	require.InDelta(t, 4, got, 1)
}

func TestTupleTypeTableInterns(t *testing.T) {
	ttt := CreateTupleTypeTable()
	a := ttt.Intern("CAMERA")
	b := ttt.Intern("MOTION_VIDEO_STREAM")
	require.Equal(t, a, ttt.Intern("CAMERA"))
	require.NotEqual(t, a, b)
	require.Equal(t, "MOTION_VIDEO_STREAM", ttt.Name(b))
	_, present := ttt.Lookup("IR_STREAM")
	require.False(t, present)
	require.Equal(t, 2, ttt.Size())
}

func TestDirectionAndKindFromStr(t *testing.T) {
	dir, err := DirectionFromStr("DOWN")
	require.NoError(t, err)
	require.Equal(t, Down, dir)
	kind, err := EdgeKindFromStr("ACTUATOR")
	require.NoError(t, err)
	require.Equal(t, ActuatorEdge, kind)

	_, err = DirectionFromStr("SIDEWAYS")
	require.Error(t, err)
	_, err = EdgeKindFromStr("BROKER")
	require.Error(t, err)
}

func TestTupleLoopStart(t *testing.T) {
	tpl := &Tuple{Loops: []LoopStamp{{LoopID: 2, Start: 15}}}
	start, present := tpl.loopStart(2)
	require.True(t, present)
	require.Equal(t, 15.0, start)
	_, present = tpl.loopStart(0)
	require.False(t, present)
}
