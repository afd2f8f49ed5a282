package reputation

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
)

// Default tuning constants. They are starting points, not derived values;
// operators override them through Params.
const (
	DefaultEMAWeightBPS          = 1_250 // 1/8
	DefaultFraudPenaltyBPS       = 5_000
	DefaultDisputeLossPenaltyBPS = 1_000
	DefaultInactivityThreshold   = 30 * 24 * 60 * 60 // seconds
)

// PenaltyKind names a slashing reason with a configured magnitude.
type PenaltyKind string

const (
	PenaltyFraud       PenaltyKind = "fraud"
	PenaltyDisputeLoss PenaltyKind = "dispute_loss"
)

// Params configures the scoring rules.
type Params struct {
	EMAWeightBPS          uint16 `json:"ema_weight_bps" yaml:"ema_weight_bps"`
	FraudPenaltyBPS       uint16 `json:"fraud_penalty_bps" yaml:"fraud_penalty_bps"`
	DisputeLossPenaltyBPS uint16 `json:"dispute_loss_penalty_bps" yaml:"dispute_loss_penalty_bps"`
	InactivityThreshold   int64  `json:"inactivity_threshold_seconds" yaml:"inactivity_threshold_seconds"`
}

// DefaultParams returns the default scoring parameters.
func DefaultParams() Params {
	return Params{
		EMAWeightBPS:          DefaultEMAWeightBPS,
		FraudPenaltyBPS:       DefaultFraudPenaltyBPS,
		DisputeLossPenaltyBPS: DefaultDisputeLossPenaltyBPS,
		InactivityThreshold:   DefaultInactivityThreshold,
	}
}

// Validate rejects parameter sets that would let one rating replace the
// score outright or that fall outside the basis-point range.
func (p Params) Validate() error {
	var errs []error
	if p.EMAWeightBPS == 0 || p.EMAWeightBPS >= fixedpoint.BPS {
		errs = append(errs, fmt.Errorf("ema_weight_bps must be in (0, %d), got %d", fixedpoint.BPS, p.EMAWeightBPS))
	}
	if p.FraudPenaltyBPS > fixedpoint.BPS {
		errs = append(errs, fmt.Errorf("fraud_penalty_bps above %d", fixedpoint.BPS))
	}
	if p.DisputeLossPenaltyBPS > fixedpoint.BPS {
		errs = append(errs, fmt.Errorf("dispute_loss_penalty_bps above %d", fixedpoint.BPS))
	}
	if p.InactivityThreshold <= 0 {
		errs = append(errs, fmt.Errorf("inactivity_threshold_seconds must be positive"))
	}
	return errors.Join(errs...)
}

// ErrUnknownPenaltyKind is returned by ParsePenaltyKind.
var ErrUnknownPenaltyKind = errors.New("unknown penalty kind")

// ParsePenaltyKind parses a penalty kind name.
func ParsePenaltyKind(s string) (PenaltyKind, error) {
	switch k := PenaltyKind(s); k {
	case PenaltyFraud, PenaltyDisputeLoss:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPenaltyKind, s)
	}
}

// Penalty returns the configured magnitude for kind, or 0 for an unknown kind.
func (p Params) Penalty(kind PenaltyKind) uint16 {
	switch kind {
	case PenaltyFraud:
		return p.FraudPenaltyBPS
	case PenaltyDisputeLoss:
		return p.DisputeLossPenaltyBPS
	default:
		return 0
	}
}
