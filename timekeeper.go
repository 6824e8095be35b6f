package fogsim

import (
	"math"
)

// latencySummary gathers the statistics of a stream of latency measurements
type latencySummary struct {
	n    int     // number of measurements
	sum  float64 // sum of measured latencies
	sum2 float64 // sum of squared latencies
	min  float64
	max  float64
}

func (ls *latencySummary) add(v float64) {
	if ls.n == 0 || v < ls.min {
		ls.min = v
	}
	if ls.n == 0 || v > ls.max {
		ls.max = v
	}
	ls.n += 1
	ls.sum += v
	ls.sum2 += v * v
}

func (ls *latencySummary) mean() float64 {
	if ls.n == 0 {
		return 0.0
	}
	return ls.sum / float64(ls.n)
}

// halfWidth is the half width of the 95% confidence interval on the mean
func (ls *latencySummary) halfWidth() float64 {
	if ls.n < 2 {
		return 0.0
	}
	N := float64(ls.n)
	sigma2 := (ls.sum2 - (ls.sum*ls.sum)/N) / (N - 1)
	if sigma2 < 0.0 {
		sigma2 = 0.0
	}
	return 1.96 * math.Sqrt(sigma2) / math.Sqrt(N)
}

// TimeKeeper records loop latencies and per tuple type execution delays of one run
type TimeKeeper struct {
	loops     []*AppLoop
	loopStats map[int]*latencySummary
	execStats map[string]*latencySummary
	execOrder []string
}

// CreateTimeKeeper is a constructor
func CreateTimeKeeper(loops []*AppLoop) *TimeKeeper {
	tk := &TimeKeeper{loops: loops, loopStats: make(map[int]*latencySummary),
		execStats: make(map[string]*latencySummary), execOrder: make([]string, 0)}
	for _, loop := range loops {
		tk.loopStats[loop.ID] = new(latencySummary)
	}
	return tk
}

// RecordLoop adds a traversal of the loop that took latency ms
func (tk *TimeKeeper) RecordLoop(loopID int, latency float64) {
	if ls, present := tk.loopStats[loopID]; present {
		ls.add(latency)
	}
}

// RecordExecution adds the time a tuple of the type spent in service
func (tk *TimeKeeper) RecordExecution(tupleType string, delay float64) {
	ls, present := tk.execStats[tupleType]
	if !present {
		ls = new(latencySummary)
		tk.execStats[tupleType] = ls
		tk.execOrder = append(tk.execOrder, tupleType)
	}
	ls.add(delay)
}

// LoopStats summarizes the latency measured on each loop, in loop order
func (tk *TimeKeeper) LoopStats() []LoopResult {
	results := make([]LoopResult, 0, len(tk.loops))
	for _, loop := range tk.loops {
		ls := tk.loopStats[loop.ID]
		results = append(results, LoopResult{Loop: loop.Modules, Count: ls.n, AvgMs: ls.mean(),
			MinMs: ls.min, MaxMs: ls.max, CI95Ms: ls.halfWidth()})
	}
	return results
}

// ExecStats summarizes the execution delay of each tuple type, in order of first completion
func (tk *TimeKeeper) ExecStats() []ExecResult {
	results := make([]ExecResult, 0, len(tk.execOrder))
	for _, tt := range tk.execOrder {
		ls := tk.execStats[tt]
		results = append(results, ExecResult{TupleType: tt, Count: ls.n, AvgMs: ls.mean()})
	}
	return results
}
