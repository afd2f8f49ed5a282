package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/prng"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := config.DefaultParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, uint16(1250), p.Reputation.EMAWeightBPS)
	assert.Equal(t, int64(604800), p.Staking.LockDurationSeconds)
	assert.Equal(t, uint16(5000), p.Simulation.SuspicionThresholdBPS)
	assert.Equal(t, prng.AlgorithmXorshift64Star, p.Simulation.PRNG)

	s, err := p.Schedule()
	require.NoError(t, err)
	assert.Equal(t, tiers.DefaultSchedule(), s)
}

func TestLoadParams_EmptyPath(t *testing.T) {
	p, err := config.LoadParams("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultParams(), p)
}

func TestLoadParams_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1.2.0"
reputation:
  ema_weight_bps: 2000
staking:
  lock_duration_seconds: 60
  tiers:
    - {tier: basic, min_stake: 500}
    - {tier: whale, multiplier: 400}
simulation:
  suspicion_rule: "score < 4000 && disputed_jobs > 2"
  prng: hmac_sha256
`), 0o600))

	p, err := config.LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(2000), p.Reputation.EMAWeightBPS)
	assert.Equal(t, uint16(5000), p.Reputation.FraudPenaltyBPS, "missing keys keep defaults")
	assert.Equal(t, int64(60), p.Staking.LockDurationSeconds)
	assert.Equal(t, uint16(200), p.Simulation.ConvergenceToleranceBPS)
	assert.Equal(t, prng.AlgorithmHMACSHA256, p.Simulation.PRNG)

	s, err := p.Schedule()
	require.NoError(t, err)
	assert.Equal(t, tiers.TierBasic, s.Classify(500).Tier)
	assert.Equal(t, uint16(400), s.Classify(500_000).Multiplier)
}

func TestParseParams_Rejects(t *testing.T) {
	tests := map[string]string{
		"missing version":   "reputation: {ema_weight_bps: 1000}\n",
		"major version 2":   "version: \"2.0.0\"\n",
		"bad semver":        "version: \"one\"\n",
		"unknown key":       "version: \"1.0.0\"\nfoo: 1\n",
		"weight too large":  "version: \"1.0.0\"\nreputation: {ema_weight_bps: 10000}\n",
		"negative lock":     "version: \"1.0.0\"\nstaking: {lock_duration_seconds: -1}\n",
		"unordered tiers":   "version: \"1.0.0\"\nstaking: {tiers: [{tier: pro, min_stake: 10}]}\n",
		"unknown tier name": "version: \"1.0.0\"\nstaking: {tiers: [{tier: platinum}]}\n",
		"empty document":    "",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseParams([]byte(doc))
			assert.ErrorIs(t, err, config.ErrInvalidParams)
		})
	}
}

func TestParseParams_SchemaChecksTypes(t *testing.T) {
	tests := map[string]string{
		"fractional weight": "version: \"1.0.0\"\nreputation: {ema_weight_bps: 12.5}\n",
		"string threshold":  "version: \"1.0.0\"\nsimulation: {suspicion_threshold_bps: high}\n",
		"forfeit too large": "version: \"1.0.0\"\nsimulation: {dispute_forfeit_bps: 10001}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.ParseParams([]byte(doc))
			require.ErrorIs(t, err, config.ErrInvalidParams)
			assert.Contains(t, err.Error(), "schema validation failed")
		})
	}

	p, err := config.ParseParams([]byte("version: \"1.2.0\"\nreputation: {ema_weight_bps: 2500}\n"))
	require.NoError(t, err)
	assert.Equal(t, uint16(2_500), p.Reputation.EMAWeightBPS)
}

func TestLoadParams_MissingFile(t *testing.T) {
	_, err := config.LoadParams(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
