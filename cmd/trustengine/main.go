package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/errorir"
	"github.com/Mindburn-Labs/trustengine/pkg/observability"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "simulate", "sim":
		return runSimulateCmd(args[2:], stdout, stderr)
	case "scenarios":
		return runScenariosCmd(args[2:], stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "query":
		return runQueryCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: trustengine <command> [flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	printCommand(w, "simulate", "Run an attack scenario (--scenario, --seed, --rounds, --all)")
	printCommand(w, "scenarios", "List built-in attack scenarios")
	printCommand(w, "replay", "Apply a JSONL event stream to the store (--events, --rate)")
	printCommand(w, "query", "Show an account's reputation, stake and status (--account)")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Configuration is read from the environment: LOG_LEVEL, LOG_FORMAT, STORE_TYPE,")
	_, _ = fmt.Fprintln(w, "SQLITE_PATH, DATABASE_URL, REDIS_ADDR, PARAMS_FILE, OTEL_ENABLED, ARTIFACT_STORAGE_TYPE.")
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}

// setup loads the environment config and installs its logger as the
// process default.
func setup(stderr io.Writer) *config.Config {
	cfg := config.Load()
	slog.SetDefault(cfg.NewLogger(stderr))
	return cfg
}

// telemetry starts the OTLP providers when enabled. The returned shutdown
// is always safe to call.
func telemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, *observability.Metrics, func(), error) {
	ocfg := observability.DefaultConfig()
	ocfg.Enabled = cfg.OTelEnabled
	ocfg.OTLPEndpoint = cfg.OTelEndpoint
	ocfg.Insecure = cfg.OTelInsecure

	provider, err := observability.New(ctx, ocfg)
	if err != nil {
		return nil, nil, func() {}, err
	}
	shutdown := func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}
	metrics, err := provider.Metrics()
	if err != nil {
		shutdown()
		return nil, nil, func() {}, err
	}
	return provider, metrics, shutdown, nil
}

// fail reports err with its stable code. Bad scenario input exits 1;
// everything else exits 2.
func fail(stderr io.Writer, err error) int {
	ir := errorir.FromError(err)
	_, _ = fmt.Fprintf(stderr, "Error: %s: %s\n", ir.Code, ir.Detail)
	switch ir.Code {
	case errorir.CodeUnknownScenario, errorir.CodeInvalidProfile, errorir.CodeInvalidScenario:
		return 1
	default:
		return 2
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
