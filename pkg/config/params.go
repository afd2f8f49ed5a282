package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/trustengine/pkg/prng"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

// SupportedParamsVersions is the semver range of parameter files this
// build understands.
const SupportedParamsVersions = ">= 1.0.0, < 2.0.0"

// Defaults for the staking and simulation sections.
const (
	DefaultLockDuration            = 7 * 24 * 60 * 60 // seconds
	DefaultSuspicionThresholdBPS   = 5_000
	DefaultConvergenceToleranceBPS = 200
	DefaultRoundSeconds            = 24 * 60 * 60
	DefaultDisputeForfeitBPS       = 100
)

// ErrInvalidParams is returned for a parameter file that fails schema,
// version or semantic validation.
var ErrInvalidParams = errors.New("invalid parameters")

//go:embed params.schema.json
var paramsSchema string

const paramsSchemaURL = "https://trustengine.schemas.local/params.schema.json"

// Params is the operator-tunable parameter set.
type Params struct {
	Version    string            `yaml:"version" json:"version"`
	Reputation reputation.Params `yaml:"reputation" json:"reputation"`
	Staking    StakingParams     `yaml:"staking" json:"staking"`
	Simulation SimulationParams  `yaml:"simulation" json:"simulation"`
}

// StakingParams configures the collateral controller.
type StakingParams struct {
	LockDurationSeconds int64          `yaml:"lock_duration_seconds" json:"lock_duration_seconds"`
	Tiers               []TierOverride `yaml:"tiers,omitempty" json:"tiers,omitempty"`
}

// TierOverride replaces the threshold or multiplier of one default row.
type TierOverride struct {
	Tier       tiers.Tier `yaml:"tier" json:"tier"`
	MinStake   *uint64    `yaml:"min_stake,omitempty" json:"min_stake,omitempty"`
	Multiplier *uint16    `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
}

// SimulationParams configures the adversarial simulator.
type SimulationParams struct {
	SuspicionThresholdBPS   uint16         `yaml:"suspicion_threshold_bps" json:"suspicion_threshold_bps"`
	ConvergenceToleranceBPS uint16         `yaml:"convergence_tolerance_bps" json:"convergence_tolerance_bps"`
	RoundSeconds            int64          `yaml:"round_seconds" json:"round_seconds"`
	DisputeForfeitBPS       uint16         `yaml:"dispute_forfeit_bps" json:"dispute_forfeit_bps"`
	SuspicionRule           string         `yaml:"suspicion_rule,omitempty" json:"suspicion_rule,omitempty"`
	PRNG                    prng.Algorithm `yaml:"prng,omitempty" json:"prng,omitempty"`
}

// DefaultParams returns the built-in parameter set.
func DefaultParams() *Params {
	return &Params{
		Version:    "1.0.0",
		Reputation: reputation.DefaultParams(),
		Staking: StakingParams{
			LockDurationSeconds: DefaultLockDuration,
		},
		Simulation: SimulationParams{
			SuspicionThresholdBPS:   DefaultSuspicionThresholdBPS,
			ConvergenceToleranceBPS: DefaultConvergenceToleranceBPS,
			RoundSeconds:            DefaultRoundSeconds,
			DisputeForfeitBPS:       DefaultDisputeForfeitBPS,
			PRNG:                    prng.AlgorithmXorshift64Star,
		},
	}
}

// LoadParams reads a YAML parameter file. Sections missing from the file
// keep their defaults. An empty path returns the defaults.
func LoadParams(path string) (*Params, error) {
	if path == "" {
		return DefaultParams(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load params %q: %w", path, err)
	}
	p, err := ParseParams(data)
	if err != nil {
		return nil, fmt.Errorf("params %q: %w", path, err)
	}
	return p, nil
}

// ParseParams validates and decodes a YAML parameter document.
func ParseParams(data []byte) (*Params, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	p := DefaultParams()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidParams, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the version gate and every section.
func (p *Params) Validate() error {
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidParams, p.Version, err)
	}
	supported, err := semver.NewConstraint(SupportedParamsVersions)
	if err != nil {
		return fmt.Errorf("supported range: %w", err)
	}
	if !supported.Check(v) {
		return fmt.Errorf("%w: version %s outside %q", ErrInvalidParams, v, SupportedParamsVersions)
	}

	if err := p.Reputation.Validate(); err != nil {
		return fmt.Errorf("%w: reputation: %w", ErrInvalidParams, err)
	}
	if p.Staking.LockDurationSeconds < 0 {
		return fmt.Errorf("%w: lock_duration_seconds must not be negative", ErrInvalidParams)
	}
	if _, err := p.Schedule(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if p.Simulation.RoundSeconds <= 0 {
		return fmt.Errorf("%w: round_seconds must be positive", ErrInvalidParams)
	}
	return nil
}

// Schedule returns the default tier schedule with the file's overrides
// applied, validated.
func (p *Params) Schedule() (tiers.Schedule, error) {
	s := tiers.DefaultSchedule()
	for _, o := range p.Staking.Tiers {
		if !o.Tier.Valid() {
			return nil, fmt.Errorf("%w: %d", tiers.ErrUnknownTier, uint8(o.Tier))
		}
		row := &s[o.Tier]
		if o.MinStake != nil {
			row.MinStake = *o.MinStake
		}
		if o.Multiplier != nil {
			row.Multiplier = *o.Multiplier
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// validateSchema checks the raw YAML against the embedded JSON Schema. The
// document is round-tripped through JSON so numbers reach the validator as
// json.Number.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: parse: %v", ErrInvalidParams, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidParams)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	schema, err := compileParamsSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalidParams, err)
	}
	return nil
}

func compileParamsSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(paramsSchemaURL, bytes.NewReader([]byte(paramsSchema))); err != nil {
		return nil, fmt.Errorf("params schema load failed: %w", err)
	}
	compiled, err := c.Compile(paramsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("params schema compile failed: %w", err)
	}
	return compiled, nil
}
