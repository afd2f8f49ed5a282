// Package store persists per-account reputation and stake records.
//
// Records are stored in their fixed-width binary layouts. A Commit writes
// every part of a Mutation atomically or nothing at all.
package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
)

// MaxAccountLen is the longest accepted account id, in bytes after
// normalization.
const MaxAccountLen = 128

var (
	// ErrInvalidAccount is returned for an empty, oversized or non-UTF-8 id.
	ErrInvalidAccount = errors.New("invalid account id")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("store unavailable")
)

// Mutation is the result of one accepted event. Nil parts are left as they
// are in the store.
type Mutation struct {
	Account    string
	Reputation *reputation.Record
	Stake      *staking.Record
	TierChange *staking.TierChange
}

// Store is the account record store. Absent accounts read as zero records.
type Store interface {
	Reputation(ctx context.Context, account string) (reputation.Record, error)
	Stake(ctx context.Context, account string) (staking.Record, error)
	Commit(ctx context.Context, m Mutation) error
	TierChanges(ctx context.Context, account string) ([]staking.TierChange, error)
	Close() error
}

// NormalizeAccount returns the NFC form of id, so visually identical ids
// map to one account.
func NormalizeAccount(id string) (string, error) {
	if !utf8.ValidString(id) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidAccount)
	}
	n := norm.NFC.String(id)
	if n == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAccount)
	}
	if len(n) > MaxAccountLen {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidAccount, len(n), MaxAccountLen)
	}
	return n, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func decodeReputation(data []byte) (reputation.Record, error) {
	var rec reputation.Record
	if err := rec.UnmarshalBinary(data); err != nil {
		return reputation.Record{}, err
	}
	return rec, nil
}

func decodeStake(data []byte) (staking.Record, error) {
	var rec staking.Record
	if err := rec.UnmarshalBinary(data); err != nil {
		return staking.Record{}, err
	}
	return rec, nil
}
