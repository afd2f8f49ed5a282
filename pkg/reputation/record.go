// Package reputation holds the per-account behavioral trust record and the
// pure transitions that update it.
//
// Every transition takes a Record by value and returns the updated copy,
// so a rejected call leaves the caller's record untouched.
package reputation

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
)

// MaxScore is the upper bound of Record.Score in basis points.
const MaxScore = fixedpoint.BPS

// RecordSize is the fixed persisted width of a Record in bytes.
const RecordSize = 2 + 8 + 8 + 8 + 8 + 8

var (
	ErrInvalidRating          = errors.New("invalid rating")
	ErrNonMonotonicTimestamp  = errors.New("non-monotonic timestamp")
	ErrCorruptRecord          = errors.New("corrupt reputation record")
	errCounterInvariantBroken = errors.New("successful + disputed jobs exceed total jobs")
)

// Record is the behavioral history of one account.
// The zero value is the record of an account that has never interacted.
type Record struct {
	Score              uint16 `json:"score"` // basis points, [0, 10_000]
	TotalJobs          uint64 `json:"total_jobs"`
	SuccessfulJobs     uint64 `json:"successful_jobs"`
	DisputedJobs       uint64 `json:"disputed_jobs"`
	LastPaymentAt      int64  `json:"last_payment_at"` // unix seconds, 0 if never paid
	TotalPaymentVolume uint64 `json:"total_payment_volume"`
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.Score > MaxScore {
		return fmt.Errorf("%w: score %d above %d", ErrCorruptRecord, r.Score, MaxScore)
	}
	outcomes := fixedpoint.SaturatingAdd(r.SuccessfulJobs, r.DisputedJobs)
	if outcomes > r.TotalJobs {
		return fmt.Errorf("%w: %w", ErrCorruptRecord, errCounterInvariantBroken)
	}
	return nil
}

// SuccessRateBPS returns successful/total jobs in basis points.
func (r Record) SuccessRateBPS() uint16 {
	if r.TotalJobs == 0 {
		return 0
	}
	rate, err := fixedpoint.DivScaled(r.SuccessfulJobs, r.TotalJobs, fixedpoint.BPS)
	if err != nil || rate > fixedpoint.BPS {
		return fixedpoint.BPS
	}
	return uint16(rate) //nolint:gosec // bounded by BPS
}

// MarshalBinary encodes the record in its fixed-width big-endian layout.
func (r Record) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	binary.BigEndian.PutUint16(buf[0:2], r.Score)
	binary.BigEndian.PutUint64(buf[2:10], r.TotalJobs)
	binary.BigEndian.PutUint64(buf[10:18], r.SuccessfulJobs)
	binary.BigEndian.PutUint64(buf[18:26], r.DisputedJobs)
	binary.BigEndian.PutUint64(buf[26:34], uint64(r.LastPaymentAt)) //nolint:gosec // bit-preserving
	binary.BigEndian.PutUint64(buf[34:42], r.TotalPaymentVolume)
	return buf, nil
}

// UnmarshalBinary decodes a record and rejects layouts that break invariants.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("%w: length %d, want %d", ErrCorruptRecord, len(data), RecordSize)
	}
	decoded := Record{
		Score:              binary.BigEndian.Uint16(data[0:2]),
		TotalJobs:          binary.BigEndian.Uint64(data[2:10]),
		SuccessfulJobs:     binary.BigEndian.Uint64(data[10:18]),
		DisputedJobs:       binary.BigEndian.Uint64(data[18:26]),
		LastPaymentAt:      int64(binary.BigEndian.Uint64(data[26:34])), //nolint:gosec // bit-preserving
		TotalPaymentVolume: binary.BigEndian.Uint64(data[34:42]),
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*r = decoded
	return nil
}
