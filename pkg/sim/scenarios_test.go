package sim_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/trustengine/pkg/sim"
)

func TestCatalog(t *testing.T) {
	names := sim.Names()
	assert.True(t, sort.StringsAreSorted(names))
	assert.ElementsMatch(t, []string{
		sim.ScenarioHonestBaseline,
		sim.ScenarioSybilAttack,
		sim.ScenarioWashTrading,
		sim.ScenarioCollusionRing,
		sim.ScenarioSelectiveService,
		sim.ScenarioRegistrationSpam,
		sim.ScenarioReputationWashing,
		sim.ScenarioMixedAttack,
	}, names)

	for _, s := range sim.Catalog() {
		assert.NoError(t, s.Validate(), s.Name)
		assert.Equal(t, sim.DefaultRounds, s.Rounds, s.Name)
		assert.NotEmpty(t, s.Description, s.Name)
	}

	sybil, err := sim.Lookup(sim.ScenarioSybilAttack)
	require.NoError(t, err)
	require.Len(t, sybil.Population, 2)
	assert.Equal(t, 1_000, sybil.Population[0].Count)
	assert.Equal(t, uint16(9_000), sybil.Population[0].Profile.CompletionRateBPS)
	assert.Equal(t, uint8(85), sybil.Population[0].Profile.AvgQuality)
	assert.Equal(t, 200, sybil.Population[1].Count)
	assert.True(t, sybil.Population[1].Attacker)
	assert.Equal(t, uint16(3_000), sybil.Population[1].Profile.CompletionRateBPS)
	assert.Equal(t, uint8(20), sybil.Population[1].Profile.AvgQuality)
	assert.Equal(t, 1_200, sybil.Agents())
}

func TestLookup_ReturnsCopy(t *testing.T) {
	s, err := sim.Lookup(sim.ScenarioMixedAttack)
	require.NoError(t, err)
	s.Population[0].Count = 1

	again, err := sim.Lookup(sim.ScenarioMixedAttack)
	require.NoError(t, err)
	assert.Equal(t, 1_000, again.Population[0].Count)
}

func TestAgentProfile_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sim.AgentProfile)
	}{
		{"no name", func(p *sim.AgentProfile) { p.Name = "" }},
		{"unknown strategy", func(p *sim.AgentProfile) { p.Strategy = "lurker" }},
		{"completion above 10000", func(p *sim.AgentProfile) { p.CompletionRateBPS = 10_001 }},
		{"quality above 100", func(p *sim.AgentProfile) { p.AvgQuality = 101 }},
		{"variance below zero", func(p *sim.AgentProfile) { p.AvgQuality, p.QualityVariance = 5, 6 }},
		{"variance above 100", func(p *sim.AgentProfile) { p.AvgQuality, p.QualityVariance = 95, 6 }},
		{"no jobs", func(p *sim.AgentProfile) { p.JobsPerRound = 0 }},
		{"too many jobs", func(p *sim.AgentProfile) { p.JobsPerRound = sim.MaxJobsPerRound + 1 }},
	}
	require.NoError(t, sim.HonestProfile.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sim.HonestProfile
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), sim.ErrInvalidProfile)
		})
	}
}

func TestAttackScenario_Validate(t *testing.T) {
	ok := sim.AttackScenario{Name: "x", Rounds: 1, Population: []sim.Cohort{{Profile: sim.HonestProfile, Count: 1}}}
	require.NoError(t, ok.Validate())

	noName := ok
	noName.Name = ""
	assert.ErrorIs(t, noName.Validate(), sim.ErrInvalidScenario)

	tooLong := ok
	tooLong.Rounds = sim.MaxRounds + 1
	assert.ErrorIs(t, tooLong.Validate(), sim.ErrInvalidScenario)

	empty := ok
	empty.Population = nil
	assert.ErrorIs(t, empty.Validate(), sim.ErrInvalidScenario)

	zero := ok
	zero.Population = []sim.Cohort{{Profile: sim.HonestProfile, Count: 0}}
	assert.ErrorIs(t, zero.Validate(), sim.ErrInvalidScenario)
}

const scenariosYAML = `
scenarios:
  - name: whale_sybils
    description: staked sybils
    rounds: 12
    population:
      - preset: honest
        count: 50
      - preset: sybil
        attacker: true
        count: 10
        profile:
          initial_stake: 100000
  - name: custom
    population:
      - count: 5
        profile:
          name: lazy
          strategy: honest
          completion_rate_bps: 5000
          avg_quality: 50
          quality_variance: 0
          timeliness_bps: 5000
          dispute_rate_bps: 0
          jobs_per_round: 1
`

func TestLoadScenarios(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenariosYAML), 0o600))

	got, err := sim.LoadScenarios(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	whale := got[0]
	assert.Equal(t, "whale_sybils", whale.Name)
	assert.Equal(t, 12, whale.Rounds)
	assert.Equal(t, sim.HonestProfile, whale.Population[0].Profile)
	assert.Equal(t, sim.StrategySybil, whale.Population[1].Profile.Strategy)
	assert.Equal(t, uint64(100_000), whale.Population[1].Profile.InitialStake)
	assert.Equal(t, sim.SybilProfile.AvgQuality, whale.Population[1].Profile.AvgQuality)
	assert.True(t, whale.Population[1].Attacker)

	custom := got[1]
	assert.Equal(t, sim.DefaultRounds, custom.Rounds)
	assert.Equal(t, "lazy", custom.Population[0].Profile.Name)

	_, err = sim.LoadScenarios(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseScenarios_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", "scenarios: []", sim.ErrInvalidScenario},
		{"not yaml", "scenarios: [", sim.ErrInvalidScenario},
		{"unknown preset", "scenarios:\n  - name: a\n    population:\n      - preset: ghost\n        count: 1\n", sim.ErrInvalidProfile},
		{"bad profile", "scenarios:\n  - name: a\n    population:\n      - preset: honest\n        count: 1\n        profile:\n          avg_quality: 100\n", sim.ErrInvalidProfile},
		{"duplicate", "scenarios:\n  - name: a\n    population:\n      - preset: honest\n        count: 1\n  - name: a\n    population:\n      - preset: honest\n        count: 1\n", sim.ErrInvalidScenario},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.ParseScenarios([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
