// Package tiers defines stake-based access tiers.
// A tier maps a staked amount to a revenue multiplier, limits and benefits.
package tiers

import (
	"errors"
	"fmt"
	"strings"
)

// Tier identifies an access tier. Tiers are ordered: None < Basic <
// Verified < Pro < Whale.
type Tier uint8

const (
	TierNone Tier = iota
	TierBasic
	TierVerified
	TierPro
	TierWhale
)

var tierNames = [...]string{"none", "basic", "verified", "pro", "whale"}

// ErrUnknownTier is returned when parsing an unrecognized tier name.
var ErrUnknownTier = errors.New("unknown tier")

func (t Tier) String() string {
	if int(t) < len(tierNames) {
		return tierNames[t]
	}
	return fmt.Sprintf("tier(%d)", uint8(t))
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t <= TierWhale
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTier, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier parses a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierNone, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// Benefit names an access right granted by a tier.
type Benefit string

const (
	BenefitPayPerUse       Benefit = "pay_per_use"
	BenefitUnlimitedVerify Benefit = "unlimited_verification"
	BenefitMeteredAPI      Benefit = "metered_api"
	BenefitUnlimitedAPI    Benefit = "unlimited_api"
)

// Limits defines quotas for a tier.
type Limits struct {
	VerificationCalls int64 `json:"verification_calls" yaml:"verification_calls"` // -1 = unlimited
	APICalls          int64 `json:"api_calls" yaml:"api_calls"`                   // -1 = unlimited
}

// Definition describes one row of the tier schedule.
type Definition struct {
	Tier       Tier      `json:"tier" yaml:"tier"`
	Name       string    `json:"name" yaml:"name"`
	MinStake   uint64    `json:"min_stake" yaml:"min_stake"`   // inclusive lower bound
	Multiplier uint16    `json:"multiplier" yaml:"multiplier"` // scale 100, 150 = 1.5x
	Limits     Limits    `json:"limits" yaml:"limits"`
	Benefits   []Benefit `json:"benefits" yaml:"benefits"`
}

// HasBenefit checks if a tier grants a benefit.
func (d *Definition) HasBenefit(b Benefit) bool {
	for _, have := range d.Benefits {
		if have == b {
			return true
		}
	}
	return false
}

// IsUnlimited checks if a limit is unlimited (-1).
func IsUnlimited(limit int64) bool {
	return limit < 0
}

// All available tiers at their default thresholds.
var (
	None = Definition{
		Tier:       TierNone,
		Name:       "None",
		MinStake:   0,
		Multiplier: 0,
	}

	Basic = Definition{
		Tier:       TierBasic,
		Name:       "Basic",
		MinStake:   1_000,
		Multiplier: 100,
		Limits: Limits{
			VerificationCalls: 0, // pay per use
			APICalls:          0,
		},
		Benefits: []Benefit{BenefitPayPerUse},
	}

	Verified = Definition{
		Tier:       TierVerified,
		Name:       "Verified",
		MinStake:   5_000,
		Multiplier: 150,
		Limits: Limits{
			VerificationCalls: -1,
			APICalls:          0,
		},
		Benefits: []Benefit{BenefitUnlimitedVerify},
	}

	Pro = Definition{
		Tier:       TierPro,
		Name:       "Pro",
		MinStake:   50_000,
		Multiplier: 200,
		Limits: Limits{
			VerificationCalls: -1,
			APICalls:          100_000,
		},
		Benefits: []Benefit{BenefitUnlimitedVerify, BenefitMeteredAPI},
	}

	Whale = Definition{
		Tier:       TierWhale,
		Name:       "Whale",
		MinStake:   500_000,
		Multiplier: 300,
		Limits: Limits{
			VerificationCalls: -1,
			APICalls:          -1,
		},
		Benefits: []Benefit{BenefitUnlimitedVerify, BenefitUnlimitedAPI},
	}
)
