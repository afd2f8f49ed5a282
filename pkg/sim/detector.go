package sim

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
)

// Detector decides, from an agent's final records, whether it would be
// flagged as an attacker.
type Detector interface {
	Suspicious(rep reputation.Record, stake staking.Record) (bool, error)
}

// ThresholdDetector flags agents whose score is below ThresholdBPS.
type ThresholdDetector struct {
	ThresholdBPS uint16
}

func (d ThresholdDetector) Suspicious(rep reputation.Record, _ staking.Record) (bool, error) {
	return rep.Score < d.ThresholdBPS, nil
}

// CELDetector evaluates a boolean CEL expression over an agent's records.
// The expression sees these int variables: score, total_jobs,
// successful_jobs, disputed_jobs, payment_volume and stake.
//
// A compiled program is safe for concurrent use.
type CELDetector struct {
	expr string
	prg  cel.Program
}

// NewCELDetector compiles expr. It must evaluate to a bool.
func NewCELDetector(expr string) (*CELDetector, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.IntType),
		cel.Variable("total_jobs", cel.IntType),
		cel.Variable("successful_jobs", cel.IntType),
		cel.Variable("disputed_jobs", cel.IntType),
		cel.Variable("payment_volume", cel.IntType),
		cel.Variable("stake", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("suspicion rule compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("suspicion rule must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("suspicion rule program construction error: %w", err)
	}
	return &CELDetector{expr: expr, prg: prg}, nil
}

// Expr returns the source expression.
func (d *CELDetector) Expr() string {
	return d.expr
}

func (d *CELDetector) Suspicious(rep reputation.Record, stake staking.Record) (bool, error) {
	out, _, err := d.prg.Eval(map[string]any{
		"score":           int64(rep.Score),
		"total_jobs":      clampInt64(rep.TotalJobs),
		"successful_jobs": clampInt64(rep.SuccessfulJobs),
		"disputed_jobs":   clampInt64(rep.DisputedJobs),
		"payment_volume":  clampInt64(rep.TotalPaymentVolume),
		"stake":           clampInt64(stake.AmountStaked),
	})
	if err != nil {
		return false, fmt.Errorf("suspicion rule evaluation error: %w", err)
	}
	flagged, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("suspicion rule returned %T, expected bool", out.Value())
	}
	return flagged, nil
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// NewDetector returns a CEL detector when rule is set and a threshold
// detector otherwise.
func NewDetector(rule string, thresholdBPS uint16) (Detector, error) {
	if rule == "" {
		return ThresholdDetector{ThresholdBPS: thresholdBPS}, nil
	}
	return NewCELDetector(rule)
}
