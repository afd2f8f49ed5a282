package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/trustengine/pkg/engine"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

func TestApply_Stream(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	stream := []string{
		`{"type":"deposit","account":"a","amount":5000}`,
		`{"type":"apply_rating","account":"a","rating":90,"outcome":"success"}`,
		`{"type":"apply_rating","account":"a","rating":10,"outcome":"dispute","weight":5000}`,
		`{"type":"record_payment","account":"a","amount":250,"timestamp":1700000000}`,
		`{"type":"apply_penalty","account":"a","penalty":"fraud"}`,
		`{"type":"forfeit","account":"a","bps":2000}`,
	}
	for _, line := range stream {
		var ev engine.Event
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		require.NoError(t, e.Apply(ctx, ev), line)
	}

	rep, err := e.GetReputation(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rep.TotalJobs)
	assert.Equal(t, uint64(1), rep.DisputedJobs)
	assert.Equal(t, uint64(250), rep.TotalPaymentVolume)
	assert.Equal(t, uint16(0), rep.Score, "fraud penalty floors the score")

	stake, err := e.GetStake(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(4_000), stake.AmountStaked)
	assert.Equal(t, tiers.TierBasic, stake.Tier)
}

func TestApply_Rejections(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	err := e.Apply(ctx, engine.Event{Type: "mint", Account: "a"})
	assert.ErrorIs(t, err, engine.ErrUnknownEvent)

	err = e.Apply(ctx, engine.Event{Type: engine.EventApplyRating, Account: "a", Rating: 50, Outcome: "maybe"})
	assert.ErrorIs(t, err, reputation.ErrInvalidRating)

	err = e.Apply(ctx, engine.Event{Type: engine.EventApplyPenalty, Account: "a", Penalty: "spite"})
	assert.ErrorIs(t, err, reputation.ErrUnknownPenaltyKind)
}

func TestApply_StakeEventsRunAtEventTime(t *testing.T) {
	const deposited = int64(100)
	withdrawn := deposited + 30*24*60*60
	stream := []engine.Event{
		{Type: engine.EventDeposit, Account: "a", Amount: 5_000, Timestamp: deposited},
		{Type: engine.EventWithdraw, Account: "a", Amount: 4_500, Timestamp: withdrawn},
	}

	replay := func(hostNow time.Time) *engine.Engine {
		e, _, clock := newEngine(t)
		clock.now = hostNow
		for _, ev := range stream {
			require.NoError(t, e.Apply(context.Background(), ev), ev.Type)
		}
		return e
	}
	today := replay(time.Unix(1_700_000_000, 0))
	tomorrow := replay(time.Unix(1_700_000_000+24*60*60, 0))

	assert.Equal(t, today.Ledger().Head(), tomorrow.Ledger().Head())
	require.Equal(t, 2, today.Ledger().Length())

	changes, err := today.TierChanges(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, deposited, changes[0].OccurredAt)
	assert.Equal(t, withdrawn, changes[1].OccurredAt)
	assert.Equal(t, tiers.TierNone, changes[1].NewTier)

	stake, err := today.GetStake(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), stake.AmountStaked)
}

func TestApply_StakeEventLockUsesEventTime(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Apply(ctx, engine.Event{Type: engine.EventDeposit, Account: "a", Amount: 1_000, Timestamp: 5_000}))
	err := e.Apply(ctx, engine.Event{Type: engine.EventWithdraw, Account: "a", Amount: 1, Timestamp: 5_001})
	assert.ErrorIs(t, err, staking.ErrLockActive)

	stake, err := e.GetStake(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(5_000+7*24*60*60), stake.LockExpiresAt)
}
