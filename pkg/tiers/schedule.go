package tiers

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule is returned by Schedule.Validate.
var ErrInvalidSchedule = errors.New("invalid tier schedule")

// Classification is the derived result of classifying a stake.
type Classification struct {
	Tier       Tier      `json:"tier"`
	Multiplier uint16    `json:"multiplier"`
	Benefits   []Benefit `json:"benefits"`
}

// Schedule is an ascending threshold table with exactly one row per tier.
type Schedule []Definition

// DefaultSchedule returns a copy of the default tier table. It shares no
// memory with the package-level definitions.
func DefaultSchedule() Schedule {
	return Schedule{None.clone(), Basic.clone(), Verified.clone(), Pro.clone(), Whale.clone()}
}

func (d Definition) clone() Definition {
	d.Benefits = append([]Benefit(nil), d.Benefits...)
	return d
}

// Validate checks the schedule is complete and strictly ascending, so the
// classifier is total and monotone.
func (s Schedule) Validate() error {
	if len(s) != int(TierWhale)+1 {
		return fmt.Errorf("%w: want %d rows, got %d", ErrInvalidSchedule, int(TierWhale)+1, len(s))
	}
	for i, d := range s {
		if d.Tier != Tier(i) {
			return fmt.Errorf("%w: row %d is %s, want %s", ErrInvalidSchedule, i, d.Tier, Tier(i))
		}
		if i == 0 {
			if d.MinStake != 0 {
				return fmt.Errorf("%w: %s must start at stake 0", ErrInvalidSchedule, d.Tier)
			}
			continue
		}
		prev := s[i-1]
		if d.MinStake <= prev.MinStake {
			return fmt.Errorf("%w: %s min_stake %d not above %s min_stake %d",
				ErrInvalidSchedule, d.Tier, d.MinStake, prev.Tier, prev.MinStake)
		}
		if d.Multiplier <= prev.Multiplier {
			return fmt.Errorf("%w: %s multiplier %d not above %s multiplier %d",
				ErrInvalidSchedule, d.Tier, d.Multiplier, prev.Tier, prev.Multiplier)
		}
	}
	return nil
}

// Classify maps a staked amount to its tier. Thresholds are inclusive
// lower bounds, so an amount equal to a threshold lands in the higher tier.
// A schedule that failed Validate classifies everything as None.
func (s Schedule) Classify(amount uint64) Classification {
	tier := TierNone
	var def *Definition
	for i := range s {
		if amount >= s[i].MinStake {
			tier = s[i].Tier
			def = &s[i]
		}
	}
	if def == nil {
		return Classification{Tier: TierNone}
	}
	return Classification{
		Tier:       tier,
		Multiplier: def.Multiplier,
		Benefits:   append([]Benefit(nil), def.Benefits...),
	}
}

// Get returns the definition for a tier, or nil if not found.
func (s Schedule) Get(t Tier) *Definition {
	for i := range s {
		if s[i].Tier == t {
			d := s[i].clone()
			return &d
		}
	}
	return nil
}

// Classify maps amount to a tier using the default schedule.
func Classify(amount uint64) Classification {
	return defaultSchedule.Classify(amount)
}

// Get returns a default tier definition by ID, or nil if not found.
func Get(t Tier) *Definition {
	return defaultSchedule.Get(t)
}

var defaultSchedule = DefaultSchedule()
