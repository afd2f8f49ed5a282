package sim

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrInvalidProfile  = errors.New("invalid agent profile")
	ErrInvalidScenario = errors.New("invalid scenario")
)

// Bounds on synthetic workload, so every run is finite and small enough
// to hold in memory.
const (
	MaxJobsPerRound = 1_000
	MaxRounds       = 100_000
	MaxAgents       = 1_000_000
)

// Strategy selects how an agent generates events.
type Strategy string

const (
	// StrategyHonest performs real jobs as the profile describes.
	StrategyHonest Strategy = "honest"
	// StrategySybil is a zero-history identity with the same mechanics as
	// honest; its weakness lives in its profile.
	StrategySybil Strategy = "sybil"
	// StrategyWashTrader adds self-dealt jobs with perfect ratings and fake
	// payment volume.
	StrategyWashTrader Strategy = "wash_trader"
	// StrategyColluder receives inflated ratings from ring members.
	StrategyColluder Strategy = "colluder"
	// StrategySelective serves a favored subset well and the rest badly.
	StrategySelective Strategy = "selective"
	// StrategySpammer registers a fresh identity every round.
	StrategySpammer Strategy = "spammer"
	// StrategyWasher abandons an identity once its score falls too low.
	StrategyWasher Strategy = "washer"
)

var knownStrategies = map[Strategy]bool{
	StrategyHonest:     true,
	StrategySybil:      true,
	StrategyWashTrader: true,
	StrategyColluder:   true,
	StrategySelective:  true,
	StrategySpammer:    true,
	StrategyWasher:     true,
}

// AgentProfile describes the synthetic behavior of one cohort. Probabilities
// are in basis points; quality is in rating points.
type AgentProfile struct {
	Name                string   `json:"name" yaml:"name"`
	Strategy            Strategy `json:"strategy" yaml:"strategy"`
	CompletionRateBPS   uint16   `json:"completion_rate_bps" yaml:"completion_rate_bps"`
	AvgQuality          uint8    `json:"avg_quality" yaml:"avg_quality"`
	QualityVariance     uint8    `json:"quality_variance" yaml:"quality_variance"`
	TimelinessBPS       uint16   `json:"timeliness_bps" yaml:"timeliness_bps"`
	DisputeRateBPS      uint16   `json:"dispute_rate_bps" yaml:"dispute_rate_bps"`
	JobsPerRound        int      `json:"jobs_per_round" yaml:"jobs_per_round"`
	InitialStake        uint64   `json:"initial_stake" yaml:"initial_stake"`
	InflationBPS        uint16   `json:"inflation_bps,omitempty" yaml:"inflation_bps,omitempty"`
	FraudDetectionBPS   uint16   `json:"fraud_detection_bps,omitempty" yaml:"fraud_detection_bps,omitempty"`
	SelectiveServiceBPS uint16   `json:"selective_service_bps,omitempty" yaml:"selective_service_bps,omitempty"`
	ResetBelowBPS       uint16   `json:"reset_below_bps,omitempty" yaml:"reset_below_bps,omitempty"`
}

// Validate rejects out-of-range values. It never clamps.
func (p AgentProfile) Validate() error {
	var errs []error
	if p.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if !knownStrategies[p.Strategy] {
		errs = append(errs, fmt.Errorf("unknown strategy %q", p.Strategy))
	}
	for _, f := range []struct {
		name  string
		value uint16
	}{
		{"completion_rate_bps", p.CompletionRateBPS},
		{"timeliness_bps", p.TimelinessBPS},
		{"dispute_rate_bps", p.DisputeRateBPS},
		{"inflation_bps", p.InflationBPS},
		{"fraud_detection_bps", p.FraudDetectionBPS},
		{"selective_service_bps", p.SelectiveServiceBPS},
		{"reset_below_bps", p.ResetBelowBPS},
	} {
		if f.value > fixedpoint.BPS {
			errs = append(errs, fmt.Errorf("%s %d above %d", f.name, f.value, fixedpoint.BPS))
		}
	}
	if p.AvgQuality > reputation.MaxRating {
		errs = append(errs, fmt.Errorf("avg_quality %d above %d", p.AvgQuality, reputation.MaxRating))
	}
	if p.QualityVariance > p.AvgQuality || int(p.AvgQuality)+int(p.QualityVariance) > reputation.MaxRating {
		errs = append(errs, fmt.Errorf("quality range %d±%d leaves [0, %d]", p.AvgQuality, p.QualityVariance, reputation.MaxRating))
	}
	if p.JobsPerRound < 1 || p.JobsPerRound > MaxJobsPerRound {
		errs = append(errs, fmt.Errorf("jobs_per_round %d outside [1, %d]", p.JobsPerRound, MaxJobsPerRound))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidProfile, p.Name, err)
	}
	return nil
}
