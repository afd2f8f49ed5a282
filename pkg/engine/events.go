package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
)

// Event type names, as used in replay streams and metric attributes.
const (
	EventRecordPayment = "record_payment"
	EventApplyRating   = "apply_rating"
	EventApplyPenalty  = "apply_penalty"
	EventDeposit       = "deposit"
	EventWithdraw      = "withdraw"
	EventForfeit       = "forfeit"

	eventLedgerAppend = "ledger_append"
)

// ErrUnknownEvent is returned by Apply for an unrecognized event type.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one external event in serialized form. Only the fields relevant
// to Type are read.
type Event struct {
	Type      string  `json:"type"`
	Account   string  `json:"account"`
	Amount    uint64  `json:"amount,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Rating    uint8   `json:"rating,omitempty"`
	Outcome   string  `json:"outcome,omitempty"`
	Weight    *uint16 `json:"weight,omitempty"` // nil applies the full factor
	BPS       uint16  `json:"bps,omitempty"`
	Penalty   string  `json:"penalty,omitempty"`
}

// Apply dispatches ev to the matching engine operation. For apply_penalty,
// a named Penalty takes precedence over BPS. Stake events run at
// ev.Timestamp when it is set and at the host clock otherwise.
func (e *Engine) Apply(ctx context.Context, ev Event) error {
	var err error
	switch ev.Type {
	case EventRecordPayment:
		_, err = e.RecordPayment(ctx, ev.Account, ev.Amount, ev.Timestamp)
	case EventApplyRating:
		outcome, perr := reputation.ParseOutcome(ev.Outcome)
		if perr != nil {
			e.rejected(ctx, ev.Type, ev.Account, perr)
			return perr
		}
		weight := uint16(reputation.MaxRatingWeight)
		if ev.Weight != nil {
			weight = *ev.Weight
		}
		_, err = e.ApplyRating(ctx, ev.Account, ev.Rating, outcome, weight)
	case EventApplyPenalty:
		if ev.Penalty != "" {
			_, err = e.Penalize(ctx, ev.Account, reputation.PenaltyKind(ev.Penalty))
		} else {
			_, err = e.ApplyPenalty(ctx, ev.Account, ev.BPS)
		}
	case EventDeposit:
		_, _, err = e.DepositAt(ctx, ev.Account, ev.Amount, e.eventTime(ev))
	case EventWithdraw:
		_, _, err = e.WithdrawAt(ctx, ev.Account, ev.Amount, e.eventTime(ev))
	case EventForfeit:
		_, _, err = e.ForfeitAt(ctx, ev.Account, ev.BPS, e.eventTime(ev))
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
		e.rejected(ctx, "unknown", ev.Account, err)
	}
	return err
}

func (e *Engine) eventTime(ev Event) int64 {
	if ev.Timestamp != 0 {
		return ev.Timestamp
	}
	return e.clock().Unix()
}
