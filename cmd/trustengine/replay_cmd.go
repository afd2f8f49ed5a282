package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/engine"
	"github.com/Mindburn-Labs/trustengine/pkg/errorir"
	"github.com/Mindburn-Labs/trustengine/pkg/store"
)

const maxEventLine = 1 << 20

// replaySummary is printed on stdout when a replay finishes.
type replaySummary struct {
	Applied     int              `json:"applied"`
	Rejected    int              `json:"rejected"`
	TierChanges int              `json:"tier_changes"`
	LedgerHead  string           `json:"ledger_head"`
	Rejections  []replayRejected `json:"rejections,omitempty"`
}

type replayRejected struct {
	Line    int    `json:"line"`
	Type    string `json:"type,omitempty"`
	Account string `json:"account,omitempty"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
}

func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		eventsFile string
		paramsFile string
		perSecond  float64
	)
	cmd.StringVar(&eventsFile, "events", "", "JSONL event file, one event per line (REQUIRED, - for stdin)")
	cmd.StringVar(&paramsFile, "params", "", "YAML parameter file (default $PARAMS_FILE)")
	cmd.Float64Var(&perSecond, "rate", 0, "Maximum events per second (0 = unthrottled)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if eventsFile == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --events is required")
		return 2
	}
	if perSecond < 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --rate must not be negative")
		return 2
	}

	cfg := setup(stderr)
	if paramsFile == "" {
		paramsFile = cfg.ParamsFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	if eventsFile != "-" {
		f, err := os.Open(eventsFile) //nolint:gosec // operator-supplied path
		if err != nil {
			return fail(stderr, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	params, err := config.LoadParams(paramsFile)
	if err != nil {
		return fail(stderr, err)
	}
	provider, metrics, shutdown, err := telemetry(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer shutdown()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = st.Close() }()

	eng, err := engine.New(st, params, engine.WithMetrics(metrics))
	if err != nil {
		return fail(stderr, err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}

	replayCtx, done := provider.Track(ctx, "trustengine.replay", attribute.String("store", cfg.StoreType))
	summary, err := replay(replayCtx, eng, in, limiter)
	done(err)
	if err != nil {
		return fail(stderr, err)
	}
	if err := writeJSON(stdout, summary); err != nil {
		return fail(stderr, err)
	}
	if summary.Rejected > 0 {
		return 1
	}
	return 0
}

// replay applies every event in r. A rejected or malformed event is
// recorded in the summary and the stream continues; only cancellation and
// read failures abort.
func replay(ctx context.Context, eng *engine.Engine, r io.Reader, limiter *rate.Limiter) (*replaySummary, error) {
	logger := slog.Default().With("component", "replay")
	summary := &replaySummary{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var ev engine.Event
		err := json.Unmarshal(raw, &ev)
		if err == nil {
			err = eng.Apply(ctx, ev)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			ir := errorir.FromError(err)
			summary.Rejected++
			summary.Rejections = append(summary.Rejections, replayRejected{
				Line:    line,
				Type:    ev.Type,
				Account: ev.Account,
				Code:    ir.Code,
				Detail:  ir.Detail,
			})
			logger.WarnContext(ctx, "event rejected", "line", line, "code", ir.Code, "error", err)
			continue
		}
		summary.Applied++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	if err := eng.Ledger().Verify(); err != nil {
		return nil, err
	}
	summary.TierChanges = eng.Ledger().Length()
	summary.LedgerHead = eng.Ledger().Head()
	logger.InfoContext(ctx, "replay finished", "applied", summary.Applied, "rejected", summary.Rejected, "tier_changes", summary.TierChanges)
	return summary, nil
}
