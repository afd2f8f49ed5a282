package reputation

import (
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
)

const (
	// MaxRating is the highest rating a counterpart can give.
	MaxRating = 100
	// MaxRatingWeight is the rater weight that applies the full EMA factor.
	MaxRatingWeight = fixedpoint.BPS
)

// Outcome is the caller-supplied result of a job. It is never inferred
// from the numeric rating.
type Outcome uint8

const (
	OutcomeSuccess Outcome = iota + 1
	OutcomeDispute
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDispute:
		return "dispute"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// ParseOutcome parses "success" or "dispute".
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "success":
		return OutcomeSuccess, nil
	case "dispute":
		return OutcomeDispute, nil
	default:
		return 0, fmt.Errorf("%w: unknown outcome %q", ErrInvalidRating, s)
	}
}

// Status is the derived activity state of an account.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
)

// ApplyRating folds a counterpart rating into the score with an integer
// exponential moving average and bumps the job counters.
//
//	score' = score + (rating*100 - score) * f / 10_000
//	f      = EMAWeightBPS * min(weight, MaxRatingWeight) / 10_000
//
// Division truncates toward zero and the result is clamped to [0, MaxScore].
func ApplyRating(rec Record, rating uint8, outcome Outcome, weight uint16, p Params) (Record, error) {
	if rating > MaxRating {
		return rec, fmt.Errorf("%w: %d outside 0..%d", ErrInvalidRating, rating, MaxRating)
	}
	if outcome != OutcomeSuccess && outcome != OutcomeDispute {
		return rec, fmt.Errorf("%w: %s", ErrInvalidRating, outcome)
	}

	next := rec
	total, err := fixedpoint.Add(next.TotalJobs, 1)
	if err != nil {
		return rec, fmt.Errorf("total_jobs: %w", err)
	}
	next.TotalJobs = total
	if outcome == OutcomeSuccess {
		if next.SuccessfulJobs, err = fixedpoint.Add(next.SuccessfulJobs, 1); err != nil {
			return rec, fmt.Errorf("successful_jobs: %w", err)
		}
	} else {
		if next.DisputedJobs, err = fixedpoint.Add(next.DisputedJobs, 1); err != nil {
			return rec, fmt.Errorf("disputed_jobs: %w", err)
		}
	}

	score, err := emaStep(int64(rec.Score), int64(rating)*100, weight, p.EMAWeightBPS)
	if err != nil {
		return rec, err
	}
	next.Score = uint16(score) //nolint:gosec // clamped to MaxScore
	return next, nil
}

func emaStep(score, target int64, weight, emaWeightBPS uint16) (int64, error) {
	w := int64(weight)
	if w > MaxRatingWeight {
		w = MaxRatingWeight
	}
	factor, err := fixedpoint.MulDivInt64(int64(emaWeightBPS), w, fixedpoint.BPS)
	if err != nil {
		return 0, fmt.Errorf("ema factor: %w", err)
	}
	delta, err := fixedpoint.MulDivInt64(target-score, factor, fixedpoint.BPS)
	if err != nil {
		return 0, fmt.Errorf("ema delta: %w", err)
	}
	next, err := fixedpoint.AddInt64(score, delta)
	if err != nil {
		return 0, fmt.Errorf("ema: %w", err)
	}
	return fixedpoint.ClampInt64(next, 0, MaxScore), nil
}

// RecordPayment registers a settled payment. Timestamps may repeat but
// never go backwards; the volume saturates instead of wrapping.
func RecordPayment(rec Record, amount uint64, ts int64) (Record, error) {
	if ts < rec.LastPaymentAt {
		return rec, fmt.Errorf("%w: %d before last payment at %d", ErrNonMonotonicTimestamp, ts, rec.LastPaymentAt)
	}
	rec.LastPaymentAt = ts
	rec.TotalPaymentVolume = fixedpoint.SaturatingAdd(rec.TotalPaymentVolume, amount)
	return rec, nil
}

// ApplyPenalty subtracts penaltyBPS from the score, flooring at zero.
func ApplyPenalty(rec Record, penaltyBPS uint16) Record {
	if penaltyBPS >= rec.Score {
		rec.Score = 0
		return rec
	}
	rec.Score -= penaltyBPS
	return rec
}

// DeriveStatus classifies an account without touching it.
func DeriveStatus(rec Record, now, inactivityThreshold int64) Status {
	if rec.TotalJobs == 0 {
		return StatusUnverified
	}
	if now-rec.LastPaymentAt < inactivityThreshold {
		return StatusActive
	}
	return StatusInactive
}
