// Package engine applies external payment, rating and collateral events to
// account state.
//
// Every mutation follows the same shape: load the account's records, run a
// pure transition from the reputation or staking package, then commit the
// result in one Store.Commit. A rejected event commits nothing, so the
// account's prior state is unchanged.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/errorir"
	"github.com/Mindburn-Labs/trustengine/pkg/ledger"
	"github.com/Mindburn-Labs/trustengine/pkg/observability"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
	"github.com/Mindburn-Labs/trustengine/pkg/store"
)

// Engine is the account-facing facade over the reputation ledger and the
// staking controller.
type Engine struct {
	// mu serializes read-modify-write cycles within this process. Across
	// processes the host must route each account to a single writer.
	mu sync.Mutex

	store      store.Store
	params     reputation.Params
	controller *staking.Controller
	ledger     *ledger.Log
	appendLog  func(staking.TierChange) (uint64, error)
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the host clock used for lock expiry and tier change
// timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLedger appends tier changes to l in addition to the store.
func WithLedger(l *ledger.Log) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithMetrics records event counters on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine over st. A nil params uses config.DefaultParams.
func New(st store.Store, params *config.Params, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if params == nil {
		params = config.DefaultParams()
	}
	if err := params.Reputation.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	schedule, err := params.Schedule()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	controller, err := staking.NewController(schedule, params.Staking.LockDurationSeconds)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		store:      st,
		params:     params.Reputation,
		controller: controller,
		ledger:     ledger.New(),
		logger:     slog.Default().With("component", "engine"),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ledger != nil {
		e.appendLog = e.ledger.Append
	}
	return e, nil
}

// Ledger returns the tier change ledger.
func (e *Engine) Ledger() *ledger.Log {
	return e.ledger
}

// Params returns the scoring parameters in effect.
func (e *Engine) Params() reputation.Params {
	return e.params
}

// RecordPayment applies a settled payment.
func (e *Engine) RecordPayment(ctx context.Context, account string, amount uint64, ts int64) (reputation.Record, error) {
	return e.mutateReputation(ctx, EventRecordPayment, account, func(rec reputation.Record) (reputation.Record, error) {
		return reputation.RecordPayment(rec, amount, ts)
	})
}

// ApplyRating folds a counterpart rating into the account's score.
func (e *Engine) ApplyRating(ctx context.Context, account string, rating uint8, outcome reputation.Outcome, weight uint16) (reputation.Record, error) {
	return e.mutateReputation(ctx, EventApplyRating, account, func(rec reputation.Record) (reputation.Record, error) {
		return reputation.ApplyRating(rec, rating, outcome, weight, e.params)
	})
}

// ApplyPenalty subtracts penaltyBPS from the score, floored at zero.
func (e *Engine) ApplyPenalty(ctx context.Context, account string, penaltyBPS uint16) (reputation.Record, error) {
	return e.mutateReputation(ctx, EventApplyPenalty, account, func(rec reputation.Record) (reputation.Record, error) {
		return reputation.ApplyPenalty(rec, penaltyBPS), nil
	})
}

// Penalize applies the configured penalty for kind.
func (e *Engine) Penalize(ctx context.Context, account string, kind reputation.PenaltyKind) (reputation.Record, error) {
	if _, err := reputation.ParsePenaltyKind(string(kind)); err != nil {
		e.rejected(ctx, EventApplyPenalty, account, err)
		return reputation.Record{}, err
	}
	return e.ApplyPenalty(ctx, account, e.params.Penalty(kind))
}

// Deposit adds collateral at the host clock's current time.
func (e *Engine) Deposit(ctx context.Context, account string, amount uint64) (staking.Record, *staking.TierChange, error) {
	return e.DepositAt(ctx, account, amount, e.clock().Unix())
}

// DepositAt adds collateral as of now. The lock runs from now.
func (e *Engine) DepositAt(ctx context.Context, account string, amount uint64, now int64) (staking.Record, *staking.TierChange, error) {
	return e.mutateStake(ctx, EventDeposit, account, func(acct string, rec staking.Record) (staking.Record, *staking.TierChange, error) {
		return e.controller.Deposit(acct, rec, amount, now)
	})
}

// Withdraw removes collateral once the lock has expired.
func (e *Engine) Withdraw(ctx context.Context, account string, amount uint64) (staking.Record, *staking.TierChange, error) {
	return e.WithdrawAt(ctx, account, amount, e.clock().Unix())
}

// WithdrawAt is Withdraw with the lock checked against now.
func (e *Engine) WithdrawAt(ctx context.Context, account string, amount uint64, now int64) (staking.Record, *staking.TierChange, error) {
	return e.mutateStake(ctx, EventWithdraw, account, func(acct string, rec staking.Record) (staking.Record, *staking.TierChange, error) {
		return e.controller.Withdraw(acct, rec, amount, now)
	})
}

// Forfeit slashes bps of the account's stake regardless of the lock.
func (e *Engine) Forfeit(ctx context.Context, account string, bps uint16) (staking.Record, *staking.TierChange, error) {
	return e.ForfeitAt(ctx, account, bps, e.clock().Unix())
}

// ForfeitAt is Forfeit with any tier change stamped at now.
func (e *Engine) ForfeitAt(ctx context.Context, account string, bps uint16, now int64) (staking.Record, *staking.TierChange, error) {
	return e.mutateStake(ctx, EventForfeit, account, func(acct string, rec staking.Record) (staking.Record, *staking.TierChange, error) {
		return e.controller.Forfeit(acct, rec, bps, now)
	})
}

// GetReputation returns the account's reputation record. Read-only.
func (e *Engine) GetReputation(ctx context.Context, account string) (reputation.Record, error) {
	acct, err := store.NormalizeAccount(account)
	if err != nil {
		return reputation.Record{}, err
	}
	return e.store.Reputation(ctx, acct)
}

// GetStake returns the account's stake record. Read-only.
func (e *Engine) GetStake(ctx context.Context, account string) (staking.Record, error) {
	acct, err := store.NormalizeAccount(account)
	if err != nil {
		return staking.Record{}, err
	}
	return e.store.Stake(ctx, acct)
}

// DeriveStatus reports the account's activity state at now. Read-only.
func (e *Engine) DeriveStatus(ctx context.Context, account string, now int64) (reputation.Status, error) {
	rec, err := e.GetReputation(ctx, account)
	if err != nil {
		return "", err
	}
	return reputation.DeriveStatus(rec, now, e.params.InactivityThreshold), nil
}

// TierChanges lists the account's tier changes in the order they occurred.
func (e *Engine) TierChanges(ctx context.Context, account string) ([]staking.TierChange, error) {
	acct, err := store.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return e.store.TierChanges(ctx, acct)
}

func (e *Engine) mutateReputation(ctx context.Context, kind, account string, fn func(reputation.Record) (reputation.Record, error)) (reputation.Record, error) {
	acct, err := store.NormalizeAccount(account)
	if err != nil {
		e.rejected(ctx, kind, account, err)
		return reputation.Record{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.Reputation(ctx, acct)
	if err != nil {
		e.rejected(ctx, kind, acct, err)
		return reputation.Record{}, err
	}
	next, err := fn(rec)
	if err != nil {
		e.rejected(ctx, kind, acct, err)
		return rec, err
	}
	if err := e.store.Commit(ctx, store.Mutation{Account: acct, Reputation: &next}); err != nil {
		e.rejected(ctx, kind, acct, err)
		return rec, err
	}
	e.metrics.EventApplied(ctx, kind)
	return next, nil
}

func (e *Engine) mutateStake(ctx context.Context, kind, account string, fn func(string, staking.Record) (staking.Record, *staking.TierChange, error)) (staking.Record, *staking.TierChange, error) {
	acct, err := store.NormalizeAccount(account)
	if err != nil {
		e.rejected(ctx, kind, account, err)
		return staking.Record{}, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.store.Stake(ctx, acct)
	if err != nil {
		e.rejected(ctx, kind, acct, err)
		return staking.Record{}, nil, err
	}
	next, change, err := fn(acct, rec)
	if err != nil {
		e.rejected(ctx, kind, acct, err)
		return rec, nil, err
	}
	if err := e.store.Commit(ctx, store.Mutation{Account: acct, Stake: &next, TierChange: change}); err != nil {
		e.rejected(ctx, kind, acct, err)
		return rec, nil, err
	}
	e.metrics.EventApplied(ctx, kind)

	if change != nil {
		e.tierChanged(ctx, *change)
	}
	return next, change, nil
}

func (e *Engine) tierChanged(ctx context.Context, change staking.TierChange) {
	e.metrics.TierChanged(ctx, change.OldTier.String(), change.NewTier.String())
	if e.appendLog != nil {
		if _, err := e.appendLog(change); err != nil {
			// The store already holds the change; only the in-process
			// ledger is behind.
			e.metrics.EventRejected(ctx, eventLedgerAppend, errorir.CodeInternal)
			e.logger.ErrorContext(ctx, "ledger append failed", "account", change.Account, "code", errorir.CodeInternal, "error", err)
		}
	}
	e.logger.InfoContext(ctx, "tier changed",
		"account", change.Account,
		"from", change.OldTier.String(),
		"to", change.NewTier.String(),
		"amount_staked", change.AmountStaked,
		"multiplier", change.RevenueMultiplier,
	)
}

func (e *Engine) rejected(ctx context.Context, kind, account string, err error) {
	code := errorir.Code(err)
	e.metrics.EventRejected(ctx, kind, code)
	e.logger.DebugContext(ctx, "event rejected", "event", kind, "account", account, "code", code, "error", err)
}
