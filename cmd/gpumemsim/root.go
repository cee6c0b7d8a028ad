package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/gpumemsim/gpu"
	"github.com/sarchlab/gpumemsim/mem/addrdec"
	"github.com/sarchlab/gpumemsim/mem/cache"
	"github.com/sarchlab/gpumemsim/runner"
	"github.com/sarchlab/gpumemsim/simulation"
	"github.com/sarchlab/gpumemsim/trace"
	"github.com/sarchlab/gpumemsim/tracing"
)

var (
	flagTrace       string
	flagCache       string
	flagLayout      string
	flagPartitionFn string
	flagChannels    uint64
	flagSubPerChan  uint64
	flagShaders     int
	flagDRAMLatency uint64
	flagMaxCycles   uint64
	flagConcurrent  int
	flagSilent      bool
	flagMonitor     bool
	flagMonitorPort int
	flagOutput      string
	flagDBTrace     bool
)

var rootCmd = &cobra.Command{
	Use:   "gpumemsim",
	Short: "gpumemsim replays a kernel trace through a GPU memory subsystem",
	Long: `gpumemsim replays an accel-sim style kernel trace (a kernelslist.g ` +
		`file plus per-kernel trace files) through a cycle-level model of a GPU ` +
		`memory subsystem: an interconnect crossbar, per-partition L2 slices, ` +
		`and fixed-latency DRAM arrays.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagTrace, "trace", "",
		"path to the kernelslist.g file of the trace")
	rootCmd.Flags().StringVar(&flagCache, "cache",
		"S:64:128:16,L:B:m:W:L,S:192:4,32:0,32",
		"L2 slice configuration string")
	rootCmd.Flags().StringVar(&flagLayout, "layout", addrdec.DefaultLayout,
		"address bit-layout string")
	rootCmd.Flags().StringVar(&flagPartitionFn, "partition-fn", "consecutive",
		"partition indexing scheme "+
			"(consecutive|bitwise|ipoly|pae|random)")
	rootCmd.Flags().Uint64Var(&flagChannels, "channels", 8,
		"number of DRAM channels")
	rootCmd.Flags().Uint64Var(&flagSubPerChan, "sub-partitions", 2,
		"sub partitions per channel")
	rootCmd.Flags().IntVar(&flagShaders, "shaders", 16,
		"number of shader nodes")
	rootCmd.Flags().Uint64Var(&flagDRAMLatency, "dram-latency", 100,
		"DRAM access latency in cycles")
	rootCmd.Flags().Uint64Var(&flagMaxCycles, "max-cycles", 0,
		"stop the simulation after this many cycles, 0 for no limit")
	rootCmd.Flags().IntVar(&flagConcurrent, "concurrent-kernels", 0,
		"run up to this many kernels concurrently, 0 for serial execution")
	rootCmd.Flags().BoolVar(&flagSilent, "silent", false,
		"suppress per-kernel output")
	rootCmd.Flags().BoolVar(&flagMonitor, "monitor", false,
		"start the monitoring web server")
	rootCmd.Flags().IntVar(&flagMonitorPort, "monitor-port", 0,
		"port of the monitoring server, 0 for a random port")
	rootCmd.Flags().StringVar(&flagOutput, "output", "",
		"output database name, without the .sqlite3 suffix")
	rootCmd.Flags().BoolVar(&flagDBTrace, "db-trace", false,
		"record per-request access, fill, and interconnect events")

	rootCmd.MarkFlagRequired("trace")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyEnvOverrides applies the environment knobs that the trace-replay
// convention defines: CYCLES caps the simulated cycles and SILENT=yes
// suppresses output.
func applyEnvOverrides() error {
	if v := os.Getenv("CYCLES"); v != "" {
		cycles, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CYCLES value %q: %w", v, err)
		}

		flagMaxCycles = cycles
	}

	if os.Getenv("SILENT") == "yes" {
		flagSilent = true
	}

	return nil
}

func run() error {
	if err := applyEnvOverrides(); err != nil {
		return err
	}

	fn, err := addrdec.ParsePartitionFunction(flagPartitionFn)
	if err != nil {
		return err
	}

	decoder := addrdec.MakeBuilder().
		WithLayout(flagLayout).
		WithNumChannels(flagChannels).
		WithSubPartitionsPerChannel(flagSubPerChan).
		WithPartitionFunction(fn).
		Build()

	simBuilder := simulation.MakeBuilder()
	if !flagMonitor {
		simBuilder = simBuilder.WithoutMonitoring()
	} else if flagMonitorPort > 0 {
		simBuilder = simBuilder.WithMonitorPort(flagMonitorPort)
	}
	if flagOutput != "" {
		simBuilder = simBuilder.WithOutputFileName(flagOutput)
	}
	sim := simBuilder.Build()
	defer sim.Terminate()

	platform := gpu.MakeBuilder().
		WithNumShaders(flagShaders).
		WithDecoder(decoder).
		WithCacheConfig(flagCache).
		WithDRAMLatency(flagDRAMLatency).
		WithMaxCycles(flagMaxCycles).
		WithSilent(flagSilent).
		Build()

	sim.RegisterCycleSource(platform)
	for _, c := range platform.PartitionCaches() {
		sim.RegisterComponent(c)
	}
	sim.RegisterComponent(platform.Crossbar())

	if flagDBTrace {
		tracer := tracing.NewDBTracer(sim.GetDataRecorder())
		for _, c := range platform.PartitionCaches() {
			tracing.CollectTrace(c, tracer)
		}
		tracing.CollectTrace(platform.Crossbar(), tracer)
	}

	schedBuilder := runner.MakeBuilder().
		WithTimingModel(platform).
		WithCommandSource(trace.NewParser(flagTrace)).
		WithLogger(log.New(os.Stdout, "", 0)).
		WithSilent(flagSilent)
	if flagConcurrent > 0 {
		schedBuilder = schedBuilder.WithConcurrentKernels(flagConcurrent)
	}
	scheduler := schedBuilder.Build()

	if err := scheduler.Init(); err != nil {
		return err
	}

	if err := scheduler.RunToCompletion(); err != nil {
		return err
	}

	recordResults(sim, platform)

	return nil
}

type cacheStatsEntry struct {
	Partition          string
	Accesses           uint64
	Hits               uint64
	MSHRHits           uint64
	Misses             uint64
	Rejections         uint64
	Fills              uint64
	HitRate            float64
	DataPortBusyCycles uint64
	FillPortBusyCycles uint64
}

type interconnectStatsEntry struct {
	Pushed uint64
	Popped uint64
}

type runSummaryEntry struct {
	Cycles        uint64
	TotalAccesses uint64
}

func recordResults(sim *simulation.Simulation, platform *gpu.Platform) {
	recorder := sim.GetDataRecorder()

	recorder.CreateTable("cache_stats", cacheStatsEntry{})

	totalAccesses := uint64(0)
	for _, c := range platform.PartitionCaches() {
		stats := c.Stats()
		totalAccesses += stats.TotalAccesses()

		rejections := uint64(0)
		for status, count := range stats.Accesses {
			if status.Rejected() {
				rejections += count
			}
		}

		recorder.InsertData("cache_stats", cacheStatsEntry{
			Partition:          c.Name(),
			Accesses:           stats.TotalAccesses(),
			Hits:               stats.Accesses[cache.AccessHit],
			MSHRHits:           stats.Accesses[cache.AccessMSHRHit],
			Misses:             stats.Accesses[cache.AccessMiss],
			Rejections:         rejections,
			Fills:              stats.Fills,
			HitRate:            stats.HitRate(),
			DataPortBusyCycles: stats.DataPortBusyCycles,
			FillPortBusyCycles: stats.FillPortBusyCycles,
		})
	}

	icnt := platform.Crossbar().Stats()
	recorder.CreateTable("interconnect_stats", interconnectStatsEntry{})
	recorder.InsertData("interconnect_stats", interconnectStatsEntry{
		Pushed: icnt.Pushed,
		Popped: icnt.Popped,
	})

	recorder.CreateTable("run_summary", runSummaryEntry{})
	recorder.InsertData("run_summary", runSummaryEntry{
		Cycles:        platform.Cycles(),
		TotalAccesses: totalAccesses,
	})

	recorder.Flush()
}
