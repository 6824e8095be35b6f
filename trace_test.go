package fogsim

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTraceManagerInactive(t *testing.T) {
	var nilTM *TraceManager
	require.False(t, nilTM.Active())
	require.NoError(t, nilTM.AddName(1, "cloud", "device"))

	tm := CreateTraceManager("off", false)
	AddTupleTrace(tm, 1.5, 3, &Tuple{ID: 1, TypeName: "CAMERA"}, "", "emit")
	require.Zero(t, tm.Records())
	require.NoError(t, tm.WriteToFile(filepath.Join(t.TempDir(), "off.yaml"), false))
}

func TestTraceManagerGathersAndWrites(t *testing.T) {
	tm := CreateTraceManager("on", true)
	require.NoError(t, tm.AddName(3, "cam", "sensor"))
	require.Error(t, tm.AddName(3, "again", "sensor"))

	AddTupleTrace(tm, 2.0, 4, &Tuple{ID: 2, TypeName: "CAMERA"}, MotionDetector, "start")
	AddTupleTrace(tm, 1.0, 3, &Tuple{ID: 2, TypeName: "CAMERA"}, "cam", "emit")
	require.Equal(t, 2, tm.Records())
	require.Len(t, tm.Traces[3], 1)
	require.Equal(t, "tuple", tm.Traces[3][0].TraceType)
	require.Contains(t, tm.Traces[3][0].TraceStr, "op: emit")

	filename := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, tm.WriteToFile(filename, true))

	back := CreateTraceManager("", true)
	require.NoError(t, readDesc(filename, true, nil, back))
	require.Equal(t, "on", back.ExpName)
	require.Equal(t, NameType{Name: "cam", Type: "sensor"}, back.NameByID[3])
	merged := back.Traces[0]
	require.Len(t, merged, 2)
	require.Contains(t, merged[0].TraceStr, "op: emit")
	require.Contains(t, merged[1].TraceStr, "op: start")
}

func TestRunTracesEveryTupleOp(t *testing.T) {
	// IR tuples cross an edge node on their way to the proxy, and the tracker drives PTZ actuators
	tm := CreateTraceManager("CONFIG_3", true)
	_, err := Run(context.Background(), parkingScenario(t, "CONFIG_3"), WithTraceManager(tm))
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, list := range tm.Traces {
		for _, rec := range list {
			if rec.TraceType != "tuple" {
				continue
			}
			var tt TupleTrace
			require.NoError(t, yaml.Unmarshal([]byte(rec.TraceStr), &tt))
			seen[tt.Op] = true
		}
	}
	require.Equal(t, map[string]bool{"emit": true, "forward": true, "start": true, "finish": true,
		"actuate": true}, seen)
}
