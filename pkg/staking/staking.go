// Package staking is the collateral state machine. Deposits, withdrawals
// and forfeits change the staked balance, and every change re-derives the
// tier and revenue multiplier in the same call.
package staking

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

// RecordSize is the fixed persisted width of a Record in bytes.
const RecordSize = 8 + 1 + 2 + 8

var (
	ErrZeroAmount         = errors.New("zero amount")
	ErrLockActive         = errors.New("stake lock active")
	ErrInsufficientStake  = errors.New("insufficient stake")
	ErrInvalidBasisPoints = errors.New("basis points above 10000")
	ErrCorruptRecord      = errors.New("corrupt stake record")
)

// Record is the collateral position of one account. Tier and
// RevenueMultiplier are derived from AmountStaked and never set directly.
type Record struct {
	AmountStaked      uint64     `json:"amount_staked"`
	Tier              tiers.Tier `json:"tier"`
	RevenueMultiplier uint16     `json:"revenue_multiplier"` // scale 100
	LockExpiresAt     int64      `json:"lock_expires_at"`
}

// TierChange is emitted once per event that changes the derived tier.
type TierChange struct {
	Account           string     `json:"account"`
	OldTier           tiers.Tier `json:"old_tier"`
	NewTier           tiers.Tier `json:"new_tier"`
	AmountStaked      uint64     `json:"amount_staked"`
	RevenueMultiplier uint16     `json:"revenue_multiplier"`
	OccurredAt        int64      `json:"occurred_at"`
}

// MarshalBinary encodes the record in its fixed-width big-endian layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint64(buf[0:8], r.AmountStaked)
	buf[8] = byte(r.Tier)
	binary.BigEndian.PutUint16(buf[9:11], r.RevenueMultiplier)
	binary.BigEndian.PutUint64(buf[11:19], uint64(r.LockExpiresAt)) //nolint:gosec // bit-preserving
	return buf, nil
}

// UnmarshalBinary decodes a record.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: length %d, want %d", ErrCorruptRecord, len(data), RecordSize)
	}
	decoded := Record{
		AmountStaked:      binary.BigEndian.Uint64(data[0:8]),
		Tier:              tiers.Tier(data[8]),
		RevenueMultiplier: binary.BigEndian.Uint16(data[9:11]),
		LockExpiresAt:     int64(binary.BigEndian.Uint64(data[11:19])), //nolint:gosec // bit-preserving
	}
	if !decoded.Tier.Valid() {
		return fmt.Errorf("%w: tier %d", ErrCorruptRecord, data[8])
	}
	*r = decoded
	return nil
}

// Controller applies collateral events against a tier schedule.
type Controller struct {
	schedule     tiers.Schedule
	lockDuration int64
}

// NewController creates a controller. lockDuration is in seconds.
func NewController(schedule tiers.Schedule, lockDuration int64) (*Controller, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if lockDuration < 0 {
		return nil, fmt.Errorf("lock duration must not be negative, got %d", lockDuration)
	}
	return &Controller{schedule: schedule, lockDuration: lockDuration}, nil
}

// Schedule returns the controller's tier schedule.
func (c *Controller) Schedule() tiers.Schedule {
	return c.schedule
}

// Deposit adds collateral and refreshes the lock.
func (c *Controller) Deposit(account string, rec Record, amount uint64, now int64) (Record, *TierChange, error) {
	if amount == 0 {
		return rec, nil, ErrZeroAmount
	}
	total, err := fixedpoint.Add(rec.AmountStaked, amount)
	if err != nil {
		return rec, nil, fmt.Errorf("deposit: %w", err)
	}
	expires, err := fixedpoint.AddInt64(now, c.lockDuration)
	if err != nil {
		return rec, nil, fmt.Errorf("lock expiry: %w", err)
	}

	next, change := c.reclassify(account, rec, total, now)
	next.LockExpiresAt = expires
	return next, change, nil
}

// Withdraw removes collateral once the lock has expired.
func (c *Controller) Withdraw(account string, rec Record, amount uint64, now int64) (Record, *TierChange, error) {
	if amount == 0 {
		return rec, nil, ErrZeroAmount
	}
	if now < rec.LockExpiresAt {
		return rec, nil, fmt.Errorf("%w: until %d", ErrLockActive, rec.LockExpiresAt)
	}
	if amount > rec.AmountStaked {
		return rec, nil, fmt.Errorf("%w: requested %d, staked %d", ErrInsufficientStake, amount, rec.AmountStaked)
	}

	next, change := c.reclassify(account, rec, rec.AmountStaked-amount, now)
	if next.AmountStaked == 0 {
		// Position closed with the lock expired: the record returns to zero.
		next = Record{}
	}
	return next, change, nil
}

// Forfeit slashes bps of the stake, rounded down. Slashing ignores the lock.
func (c *Controller) Forfeit(account string, rec Record, bps uint16, now int64) (Record, *TierChange, error) {
	if bps > fixedpoint.BPS {
		return rec, nil, fmt.Errorf("%w: %d", ErrInvalidBasisPoints, bps)
	}
	slashed, err := fixedpoint.BPSOf(rec.AmountStaked, bps)
	if err != nil {
		return rec, nil, fmt.Errorf("forfeit: %w", err)
	}
	remaining, err := fixedpoint.Sub(rec.AmountStaked, slashed)
	if err != nil {
		return rec, nil, fmt.Errorf("forfeit: %w", err)
	}

	next, change := c.reclassify(account, rec, remaining, now)
	return next, change, nil
}

// reclassify writes the new balance together with its derived tier and
// multiplier and reports a change only when the tier moved.
func (c *Controller) reclassify(account string, rec Record, amount uint64, now int64) (Record, *TierChange) {
	cls := c.schedule.Classify(amount)
	next := rec
	next.AmountStaked = amount
	next.Tier = cls.Tier
	next.RevenueMultiplier = cls.Multiplier

	if cls.Tier == rec.Tier {
		return next, nil
	}
	return next, &TierChange{
		Account:           account,
		OldTier:           rec.Tier,
		NewTier:           cls.Tier,
		AmountStaked:      amount,
		RevenueMultiplier: cls.Multiplier,
		OccurredAt:        now,
	}
}
