package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/engine"
	"github.com/Mindburn-Labs/trustengine/pkg/observability"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
	"github.com/Mindburn-Labs/trustengine/pkg/store"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *store.MemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := &fakeClock{now: time.Unix(1_000, 0)}
	e, err := engine.New(st, nil, append([]engine.Option{engine.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return e, st, clock
}

func TestEngine_DepositThresholdCrossing(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	rec, change, err := e.Deposit(ctx, "acct", 4_999)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, tiers.TierBasic, rec.Tier)

	rec, change, err = e.Deposit(ctx, "acct", 1)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, tiers.TierBasic, change.OldTier)
	assert.Equal(t, tiers.TierVerified, change.NewTier)
	assert.Equal(t, uint64(5_000), rec.AmountStaked)

	changes, err := e.TierChanges(ctx, "acct")
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, 2, e.Ledger().Length())
	assert.NoError(t, e.Ledger().Verify())
}

func TestEngine_EventMinimality(t *testing.T) {
	e, _, clock := newEngine(t)
	ctx := context.Background()

	_, _, err := e.Deposit(ctx, "acct", 1_000)
	require.NoError(t, err)
	_, change, err := e.Deposit(ctx, "acct", 3_000)
	require.NoError(t, err)
	assert.Nil(t, change, "no threshold crossed")

	clock.now = clock.now.Add(8 * 24 * time.Hour)
	_, change, err = e.Withdraw(ctx, "acct", 500)
	require.NoError(t, err)
	assert.Nil(t, change)

	changes, err := e.TierChanges(ctx, "acct")
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestEngine_RejectedEventLeavesStateUnchanged(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	before, _, err := e.Deposit(ctx, "acct", 10_000)
	require.NoError(t, err)

	_, _, err = e.Withdraw(ctx, "acct", 1)
	assert.ErrorIs(t, err, staking.ErrLockActive)
	_, _, err = e.Deposit(ctx, "acct", 0)
	assert.ErrorIs(t, err, staking.ErrZeroAmount)
	_, _, err = e.Forfeit(ctx, "acct", 10_001)
	assert.ErrorIs(t, err, staking.ErrInvalidBasisPoints)

	after, err := e.GetStake(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = e.ApplyRating(ctx, "acct", 101, reputation.OutcomeSuccess, 10_000)
	assert.ErrorIs(t, err, reputation.ErrInvalidRating)
	rep, err := e.GetReputation(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, reputation.Record{}, rep)
}

func TestEngine_ReputationFlow(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	rec, err := e.ApplyRating(ctx, "acct", 100, reputation.OutcomeSuccess, reputation.MaxRatingWeight)
	require.NoError(t, err)
	assert.Equal(t, uint16(1250), rec.Score)

	_, err = e.RecordPayment(ctx, "acct", 500, 2_000)
	require.NoError(t, err)
	_, err = e.RecordPayment(ctx, "acct", 500, 1_999)
	assert.ErrorIs(t, err, reputation.ErrNonMonotonicTimestamp)

	rec, err = e.Penalize(ctx, "acct", reputation.PenaltyDisputeLoss)
	require.NoError(t, err)
	assert.Equal(t, uint16(250), rec.Score)

	_, err = e.Penalize(ctx, "acct", "spite")
	assert.ErrorIs(t, err, reputation.ErrUnknownPenaltyKind)

	rec, err = e.GetReputation(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.TotalJobs)
	assert.Equal(t, uint64(500), rec.TotalPaymentVolume)
	assert.Equal(t, int64(2_000), rec.LastPaymentAt)
}

func TestEngine_DeriveStatusIsReadOnly(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	status, err := e.DeriveStatus(ctx, "fresh", 0)
	require.NoError(t, err)
	assert.Equal(t, reputation.StatusUnverified, status)

	_, err = e.ApplyRating(ctx, "acct", 80, reputation.OutcomeSuccess, 10_000)
	require.NoError(t, err)
	_, err = e.RecordPayment(ctx, "acct", 1, 100)
	require.NoError(t, err)

	before, err := e.GetReputation(ctx, "acct")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		status, err = e.DeriveStatus(ctx, "acct", 200)
		require.NoError(t, err)
		assert.Equal(t, reputation.StatusActive, status)
	}
	status, err = e.DeriveStatus(ctx, "acct", 100+reputation.DefaultInactivityThreshold)
	require.NoError(t, err)
	assert.Equal(t, reputation.StatusInactive, status)

	after, err := e.GetReputation(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_AccountNormalization(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	_, _, err := e.Deposit(ctx, "café", 1_000)
	require.NoError(t, err)
	rec, err := e.GetStake(ctx, "café")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), rec.AmountStaked)

	_, _, err = e.Deposit(ctx, "", 1)
	assert.ErrorIs(t, err, store.ErrInvalidAccount)
}

func TestEngine_ForfeitIgnoresLock(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	_, _, err := e.Deposit(ctx, "acct", 50_000)
	require.NoError(t, err)
	rec, change, err := e.Forfeit(ctx, "acct", 5_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(25_000), rec.AmountStaked)
	require.NotNil(t, change)
	assert.Equal(t, tiers.TierVerified, change.NewTier)
	assert.Equal(t, int64(1_000), change.OccurredAt)
}

func TestEngine_CustomParams(t *testing.T) {
	p := config.DefaultParams()
	p.Staking.LockDurationSeconds = 0
	p.Reputation.EMAWeightBPS = 5_000

	e, err := engine.New(store.NewMemoryStore(), p, engine.WithClock(func() time.Time { return time.Unix(10, 0) }))
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := e.ApplyRating(ctx, "acct", 100, reputation.OutcomeSuccess, 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint16(5_000), rec.Score)

	_, _, err = e.Deposit(ctx, "acct", 10)
	require.NoError(t, err)
	_, _, err = e.Withdraw(ctx, "acct", 10)
	assert.NoError(t, err, "zero lock duration allows immediate withdrawal")

	p.Reputation.EMAWeightBPS = 0
	_, err = engine.New(store.NewMemoryStore(), p)
	assert.Error(t, err)

	_, err = engine.New(nil, nil)
	assert.Error(t, err)
}

func TestEngine_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observability.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	e, _, _ := newEngine(t, engine.WithMetrics(m))
	ctx := context.Background()

	_, _, err = e.Deposit(ctx, "acct", 1_000)
	require.NoError(t, err)
	_, _, err = e.Withdraw(ctx, "acct", 1)
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names[observability.MetricEventsApplied])
	assert.True(t, names[observability.MetricEventsRejected])
	assert.True(t, names[observability.MetricTierChanges])
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) Commit(context.Context, store.Mutation) error {
	return errors.Join(store.ErrUnavailable, errors.New("disk full"))
}

func TestEngine_CommitFailureReturnsPriorState(t *testing.T) {
	e, err := engine.New(failingStore{store.NewMemoryStore()}, nil)
	require.NoError(t, err)

	rec, change, err := e.Deposit(context.Background(), "acct", 1_000)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Nil(t, change)
	assert.Equal(t, staking.Record{}, rec)
	assert.Equal(t, 0, e.Ledger().Length())
}
