// Package main runs one fog simulation, either the built-in car-parking scenario
// under a named configuration or a scenario read from a description file, and
// prints a report of the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-hclog"
	count "github.com/jayalane/go-counter"
	ll "github.com/jayalane/go-lll"

	"github.com/iti/fogsim"
)

// tupleCounter forwards tuple traffic to the process counters
type tupleCounter struct{}

func (tc tupleCounter) TupleSent(tupleType string) {
	count.IncrSyncSuffix("tuple_sent", tupleType)
}

func (tc tupleCounter) TupleReceived(tupleType string) {
	count.IncrSyncSuffix("tuple_received", tupleType)
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		config      = flag.String("config", "CONFIG_1", "car-parking configuration from the catalog")
		scenario    = flag.String("scenario", "", "scenario description file (.yaml, .yml or .json); overrides -config")
		horizon     = flag.Float64("horizon", 10000, "simulated time in ms, for the built-in scenario")
		policy      = flag.String("policy", "", "placement policy (static or edgewards); empty follows the scenario")
		seed        = flag.Uint64("seed", 0, "seed of the sensor streams")
		output      = flag.String("output", "", "file receiving the result (.yaml, .yml or .json)")
		traceFile   = flag.String("trace", "", "file receiving the tuple and scheduler traces")
		logLevel    = flag.String("log-level", "INFO", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
		showCounter = flag.Bool("counters", false, "log the tuple counters when the run ends")
		listConfigs = flag.Bool("list", false, "list the catalog configurations and exit")
	)
	flag.Parse()

	if *listConfigs {
		for _, name := range fogsim.ConfigNames() {
			cfg, _ := fogsim.LookupConfig(name)
			fmt.Printf("%s\t%s\n", name, cfg)
		}
		return fogsim.ExitOK
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fogsim",
		Level:  hclog.LevelFromString(*logLevel),
		Output: os.Stderr,
	})

	desc, err := loadScenario(*scenario, *config, *horizon)
	if err != nil {
		logger.Error("cannot load scenario", "error", err)
		return fogsim.ExitCode(err)
	}
	if len(*policy) > 0 {
		desc.Placement = *policy
	}
	if *seed != 0 {
		desc.Seed = *seed
	}

	ll.SetWriter(os.Stderr)
	count.InitCounters()

	opts := []fogsim.Option{fogsim.WithLogger(logger), fogsim.WithObserver(tupleCounter{})}
	var tm *fogsim.TraceManager
	if len(*traceFile) > 0 {
		tm = fogsim.CreateTraceManager(desc.Name, true)
		opts = append(opts, fogsim.WithTraceManager(tm))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	started := time.Now()
	res, err := fogsim.Run(ctx, desc, opts...)
	if err != nil {
		logger.Error("run failed", "error", err)
		return fogsim.ExitCode(err)
	}
	elapsed := time.Since(started)

	report(os.Stdout, res, elapsed)
	if *showCounter {
		count.LogCounters()
	}

	if len(*output) > 0 {
		if err := res.WriteToFile(*output); err != nil {
			logger.Error("cannot write result", "file", *output, "error", err)
			return fogsim.ExitInternal
		}
	}
	if tm != nil {
		if err := tm.WriteToFile(*traceFile, true); err != nil {
			logger.Error("cannot write trace", "file", *traceFile, "error", err)
			return fogsim.ExitInternal
		}
	}
	return fogsim.ExitOK
}

// loadScenario reads the scenario file when one is named, and otherwise builds
// the car-parking scenario for the catalog configuration
func loadScenario(filename, config string, horizon float64) (*fogsim.ScenarioDesc, error) {
	if len(filename) > 0 {
		return fogsim.ReadScenarioDesc(filename, fogsim.UseYAML(filename), nil)
	}
	cfg, present := fogsim.LookupConfig(config)
	if !present {
		return nil, &fogsim.ValidationError{Problems: []string{
			fmt.Sprintf("unknown configuration %q, known are %s", config, strings.Join(fogsim.ConfigNames(), ", "))}}
	}
	return fogsim.ParkingScenario(strings.ToUpper(config), cfg, horizon)
}

func report(w io.Writer, res *fogsim.Result, elapsed time.Duration) {
	fmt.Fprintf(w, "run %s  scenario %s  policy %s\n", res.RunID, res.Scenario, res.Policy)
	fmt.Fprintf(w, "simulated %.0f ms in %s, %d events, digest %s\n",
		res.HorizonMs, units.HumanDuration(elapsed), res.Events, res.Digest)

	fmt.Fprintln(w, "\nloops")
	for _, lr := range res.Loops {
		fmt.Fprintf(w, "  %-50s n=%-6d avg=%.3f ms  min=%.3f  max=%.3f  ci95=%.3f\n",
			strings.Join(lr.Loop, "->"), lr.Count, lr.AvgMs, lr.MinMs, lr.MaxMs, lr.CI95Ms)
	}

	fmt.Fprintln(w, "\ntuple execution delay")
	for _, er := range res.Executions {
		fmt.Fprintf(w, "  %-24s n=%-6d avg=%.3f ms\n", er.TupleType, er.Count, er.AvgMs)
	}

	fmt.Fprintln(w, "\ndevices")
	totalEnergy, totalCost := 0.0, 0.0
	for _, dr := range res.Devices {
		totalEnergy += dr.EnergyJ
		totalCost += dr.Cost
		fmt.Fprintf(w, "  %-28s energy=%.3f J  busy=%.3f s  util=%.4f  cost=%.2f  ram=%s\n",
			dr.Name, dr.EnergyJ, dr.BusyTimeS, dr.MeanUtilization, dr.Cost,
			units.BytesSize(float64(dr.RamUsed)*units.MiB))
	}
	fmt.Fprintf(w, "  total energy %.3f J, total cost %.2f\n", totalEnergy, totalCost)

	fmt.Fprintln(w, "\nmodules")
	for _, mr := range res.Modules {
		fmt.Fprintf(w, "  %-24s instances=%-4d consumed=%.0f MI  on %s\n",
			mr.Module, mr.Instances, mr.ConsumedMI, strings.Join(res.Placement[mr.Module], ","))
	}

	fmt.Fprintln(w, "\ntuples")
	for _, tc := range res.Tuples {
		fmt.Fprintf(w, "  %-24s sent=%-8d received=%d\n", tc.TupleType, tc.Sent, tc.Received)
	}

	fmt.Fprintln(w, "\nlinks")
	for _, lr := range res.Links {
		if lr.Tuples == 0 {
			continue
		}
		note := ""
		if lr.BwOverbooked {
			note = "  overbooked"
		}
		fmt.Fprintf(w, "  %-28s %-4s tuples=%-8d bytes=%-10s util=%.4f%s\n",
			lr.Device, lr.Direction, lr.Tuples, units.HumanSize(lr.Bytes), lr.Utilization, note)
	}
}
