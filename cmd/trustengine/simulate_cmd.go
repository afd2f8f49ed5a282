package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/trustengine/pkg/artifacts"
	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/sim"
)

func runSimulateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		scenario      string
		seed          uint64
		rounds        int
		all           bool
		paramsFile    string
		scenariosFile string
		parallel      int
		publish       bool
		deterministic bool
	)
	cmd.StringVar(&scenario, "scenario", "", "Scenario name (see `trustengine scenarios`)")
	cmd.Uint64Var(&seed, "seed", 0, "PRNG seed")
	cmd.IntVar(&rounds, "rounds", 0, "Override the scenario's round count")
	cmd.BoolVar(&all, "all", false, "Run every scenario")
	cmd.StringVar(&paramsFile, "params", "", "YAML parameter file (default $PARAMS_FILE)")
	cmd.StringVar(&scenariosFile, "scenarios", "", "YAML file with additional scenarios")
	cmd.IntVar(&parallel, "parallel", 4, "Scenarios run concurrently with --all")
	cmd.BoolVar(&publish, "publish", false, "Store the report in the artifact store")
	cmd.BoolVar(&deterministic, "deterministic", false, "Freeze the clock so output is byte-for-byte reproducible")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if (scenario == "") == !all {
		_, _ = fmt.Fprintln(stderr, "Error: exactly one of --scenario or --all is required")
		return 2
	}

	cfg := setup(stderr)
	if paramsFile == "" {
		paramsFile = cfg.ParamsFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := config.LoadParams(paramsFile)
	if err != nil {
		return fail(stderr, err)
	}
	opts, err := sim.OptionsFromParams(params)
	if err != nil {
		return fail(stderr, err)
	}
	provider, metrics, shutdown, err := telemetry(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer shutdown()

	simOpts := []sim.Option{sim.WithMetrics(metrics)}
	if deterministic {
		epoch := time.Unix(0, 0)
		simOpts = append(simOpts, sim.WithClock(func() time.Time { return epoch }))
	}
	simulator, err := sim.New(opts, simOpts...)
	if err != nil {
		return fail(stderr, err)
	}

	var custom []sim.AttackScenario
	if scenariosFile != "" {
		custom, err = sim.LoadScenarios(scenariosFile)
		if err != nil {
			return fail(stderr, err)
		}
	}

	var selected []sim.AttackScenario
	if all {
		selected = append(sim.Catalog(), custom...)
	} else {
		sc, err := findScenario(scenario, custom)
		if err != nil {
			return fail(stderr, err)
		}
		selected = []sim.AttackScenario{sc}
	}
	if rounds != 0 {
		for i := range selected {
			selected[i].Rounds = rounds
		}
	}

	runCtx, done := provider.Track(ctx, "trustengine.simulate",
		attribute.Int("scenarios", len(selected)),
		attribute.Int64("seed", int64(seed)),
	)
	results, err := simulator.RunAll(runCtx, selected, seed, parallel)
	done(err)
	if err != nil {
		return fail(stderr, err)
	}

	var out any = results
	if !all {
		out = results[0]
	}
	if err := writeJSON(stdout, out); err != nil {
		return fail(stderr, err)
	}

	if publish {
		if code := publishReport(ctx, results, stderr); code != 0 {
			return code
		}
	}
	return 0
}

// findScenario prefers a custom scenario over a built-in one of the same
// name.
func findScenario(name string, custom []sim.AttackScenario) (sim.AttackScenario, error) {
	for _, sc := range custom {
		if sc.Name == name {
			return sc, nil
		}
	}
	return sim.Lookup(name)
}

func publishReport(ctx context.Context, results []*sim.SimulationResult, stderr io.Writer) int {
	report, err := sim.NewReport(results, time.Now())
	if err != nil {
		return fail(stderr, err)
	}
	st, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		return fail(stderr, err)
	}
	hash, err := artifacts.Publish(ctx, st, report)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintf(stderr, "Published report %s (run %s)\n", hash, report.RunID)
	return 0
}
