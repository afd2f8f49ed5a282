// Package errorir maps engine errors onto stable, machine-readable codes.
package errorir

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/sim"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
	"github.com/Mindburn-Labs/trustengine/pkg/store"
)

type mapping struct {
	target         error
	code           string
	title          string
	classification string
}

// Order matters: the first sentinel found in the chain wins, so the
// storage wrapper comes after the domain errors it may carry.
var mappings = []mapping{
	{fixedpoint.ErrOverflow, CodeArithOverflow, "Arithmetic overflow", ClassificationNonRetryable},
	{fixedpoint.ErrUnderflow, CodeArithUnderflow, "Arithmetic underflow", ClassificationNonRetryable},
	{fixedpoint.ErrDivisionByZero, CodeArithDivisionByZero, "Division by zero", ClassificationNonRetryable},
	{reputation.ErrInvalidRating, CodeInvalidRating, "Invalid rating", ClassificationNonRetryable},
	{reputation.ErrNonMonotonicTimestamp, CodeNonMonotonicTimestamp, "Non-monotonic timestamp", ClassificationNonRetryable},
	{reputation.ErrUnknownPenaltyKind, CodeUnknownPenaltyKind, "Unknown penalty kind", ClassificationNonRetryable},
	{staking.ErrZeroAmount, CodeZeroAmount, "Zero amount", ClassificationNonRetryable},
	{staking.ErrLockActive, CodeLockActive, "Stake lock active", ClassificationNonRetryable},
	{staking.ErrInsufficientStake, CodeInsufficientStake, "Insufficient stake", ClassificationNonRetryable},
	{staking.ErrInvalidBasisPoints, CodeInvalidBasisPoints, "Invalid basis points", ClassificationNonRetryable},
	{store.ErrInvalidAccount, CodeInvalidAccount, "Invalid account", ClassificationNonRetryable},
	{reputation.ErrCorruptRecord, CodeCorruptRecord, "Corrupt reputation record", ClassificationNonRetryable},
	{staking.ErrCorruptRecord, CodeCorruptRecord, "Corrupt stake record", ClassificationNonRetryable},
	{sim.ErrUnknownScenario, CodeUnknownScenario, "Unknown scenario", ClassificationNonRetryable},
	{sim.ErrInvalidProfile, CodeInvalidProfile, "Invalid agent profile", ClassificationNonRetryable},
	{sim.ErrInvalidScenario, CodeInvalidScenario, "Invalid scenario", ClassificationNonRetryable},
	{context.Canceled, CodeCanceled, "Canceled", ClassificationRetryable},
	{context.DeadlineExceeded, CodeCanceled, "Deadline exceeded", ClassificationRetryable},
	{store.ErrUnavailable, CodeStoreUnavailable, "Store unavailable", ClassificationRetryable},
}

// FromError converts err into its canonical ErrorIR. A nil error returns
// the zero value.
func FromError(err error) ErrorIR {
	if err == nil {
		return ErrorIR{}
	}
	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return NewErrorIR(m.code, m.title, err.Error(), m.classification)
		}
	}
	return NewErrorIR(CodeInternal, "Internal error", err.Error(), ClassificationNonRetryable)
}

// Code returns only the code for err.
func Code(err error) string {
	return FromError(err).Code
}
