package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/sim"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("PARAMS_FILE", "")
	t.Setenv("STORE_TYPE", "memory")
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"trustengine"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	code, _, stderr := run()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")

	code, stdout, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "simulate")

	code, _, stderr = run("mint")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Unknown command: mint")
}

func TestSimulate_Deterministic(t *testing.T) {
	quietEnv(t)
	args := []string{"simulate", "--scenario", sim.ScenarioSybilAttack, "--seed", "42", "--rounds", "5", "--deterministic"}

	code, first, stderr := run(args...)
	require.Equal(t, 0, code, stderr)
	code, second, stderr := run(args...)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, first, second)

	var res sim.SimulationResult
	require.NoError(t, json.Unmarshal([]byte(first), &res))
	assert.Equal(t, sim.ScenarioSybilAttack, res.Scenario)
	assert.Equal(t, uint64(42), res.Seed)
	assert.Equal(t, 5, res.Rounds)
	assert.Equal(t, 200, res.AttackerAgents)
}

func TestSimulate_All(t *testing.T) {
	quietEnv(t)
	code, stdout, stderr := run("simulate", "--all", "--rounds", "2", "--seed", "1", "--parallel", "2")
	require.Equal(t, 0, code, stderr)

	var results []sim.SimulationResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, len(sim.Names()))
	for i, name := range sim.Names() {
		assert.Equal(t, name, results[i].Scenario)
	}
}

func TestSimulate_ExitCodes(t *testing.T) {
	quietEnv(t)

	code, _, stderr := run("simulate", "--scenario", "nope")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "TRUST/SIM/UNKNOWN_SCENARIO")

	code, _, _ = run("simulate")
	assert.Equal(t, 2, code, "no scenario selected")

	code, _, _ = run("simulate", "--scenario", sim.ScenarioSybilAttack, "--all")
	assert.Equal(t, 2, code, "conflicting selection")

	code, _, _ = run("simulate", "--bogus")
	assert.Equal(t, 2, code)

	code, _, _ = run("simulate", "--scenario", sim.ScenarioSybilAttack, "--rounds", "-3")
	assert.Equal(t, 1, code)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
scenarios:
  - name: broken
    population:
      - preset: honest
        count: 1
        profile:
          completion_rate_bps: 20000
`), 0o600))
	code, _, stderr = run("simulate", "--scenario", "broken", "--scenarios", bad)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "TRUST/SIM/INVALID_PROFILE")

	params := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(params, []byte("version: 3.0.0\n"), 0o600))
	code, _, _ = run("simulate", "--scenario", sim.ScenarioSybilAttack, "--params", params)
	assert.Equal(t, 2, code)
}

func TestSimulate_CustomScenario(t *testing.T) {
	quietEnv(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  - name: tiny
    rounds: 3
    population:
      - preset: honest
        count: 5
      - preset: spammer
        count: 5
        attacker: true
`), 0o600))

	code, stdout, stderr := run("simulate", "--scenario", "tiny", "--scenarios", path, "--deterministic")
	require.Equal(t, 0, code, stderr)
	var res sim.SimulationResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "tiny", res.Scenario)
	assert.Equal(t, 3, res.Rounds)
	assert.Equal(t, 5, res.HonestAgents)
	assert.Equal(t, 5, res.AttackerAgents)
}

func TestSimulate_Publish(t *testing.T) {
	quietEnv(t)
	dataDir := t.TempDir()
	t.Setenv("ARTIFACT_STORAGE_TYPE", "fs")
	t.Setenv("DATA_DIR", dataDir)

	code, _, stderr := run("simulate", "--scenario", sim.ScenarioWashTrading, "--rounds", "2", "--publish")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "Published report sha256:")

	blobs, err := filepath.Glob(filepath.Join(dataDir, "reports", "*", "*.json"))
	require.NoError(t, err)
	assert.Len(t, blobs, 1)
}

func TestScenarios(t *testing.T) {
	code, stdout, _ := run("scenarios")
	require.Equal(t, 0, code)
	for _, name := range sim.Names() {
		assert.Contains(t, stdout, name)
	}
	assert.Contains(t, stdout, "1200", "sybil_attack population")

	code, stdout, _ = run("scenarios", "--json")
	require.Equal(t, 0, code)
	var catalog []sim.AttackScenario
	require.NoError(t, json.Unmarshal([]byte(stdout), &catalog))
	assert.Len(t, catalog, len(sim.Names()))
}

const events = `{"type":"deposit","account":"alice","amount":5000,"timestamp":1700000000}
{"type":"apply_rating","account":"alice","rating":90,"outcome":"success"}

# settled off-platform
{"type":"record_payment","account":"alice","amount":250,"timestamp":1700000000}
{"type":"withdraw","account":"alice","amount":1,"timestamp":1700000050}
not json
`

func TestReplayThenQuery(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	t.Setenv("STORE_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "db", "trust.db"))

	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(events), 0o600))

	code, stdout, stderr := run("replay", "--events", path, "--rate", "1000")
	assert.Equal(t, 1, code, "rejected events make the exit code non-zero")

	var summary replaySummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary), stderr)
	assert.Equal(t, 3, summary.Applied)
	assert.Equal(t, 2, summary.Rejected)
	assert.Equal(t, 1, summary.TierChanges)
	assert.True(t, strings.HasPrefix(summary.LedgerHead, "sha256:"))
	require.Len(t, summary.Rejections, 2)
	assert.Equal(t, 6, summary.Rejections[0].Line)
	assert.Equal(t, "TRUST/STAKING/LOCK_ACTIVE", summary.Rejections[0].Code)
	assert.Equal(t, 7, summary.Rejections[1].Line)

	code, stdout, stderr = run("query", "--account", "alice", "--now", "1700000100")
	require.Equal(t, 0, code, stderr)

	var res queryResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, uint16(1_125), res.Reputation.Score)
	assert.Equal(t, uint64(1), res.Reputation.TotalJobs)
	assert.Equal(t, uint64(250), res.Reputation.TotalPaymentVolume)
	assert.Equal(t, reputation.StatusActive, res.Status)
	assert.Equal(t, uint64(5_000), res.Stake.AmountStaked)
	assert.Equal(t, tiers.TierVerified, res.Stake.Tier)
	require.Len(t, res.TierChanges, 1)
	assert.Equal(t, tiers.TierNone, res.TierChanges[0].OldTier)
	assert.NotEmpty(t, res.Benefits)
}

func TestReplay_SameHeadAcrossRuns(t *testing.T) {
	quietEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(events), 0o600))

	heads := make([]string, 2)
	for i := range heads {
		t.Setenv("STORE_TYPE", "sqlite")
		t.Setenv("SQLITE_PATH", filepath.Join(dir, fmt.Sprintf("run%d.db", i)))
		_, stdout, stderr := run("replay", "--events", path)
		var summary replaySummary
		require.NoError(t, json.Unmarshal([]byte(stdout), &summary), stderr)
		heads[i] = summary.LedgerHead
	}
	assert.Equal(t, heads[0], heads[1])
}

func TestReplay_Usage(t *testing.T) {
	quietEnv(t)

	code, _, _ := run("replay")
	assert.Equal(t, 2, code)

	code, _, _ = run("replay", "--events", "x", "--rate", "-1")
	assert.Equal(t, 2, code)

	code, _, _ = run("replay", "--events", filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Equal(t, 2, code)
}

func TestQuery_Usage(t *testing.T) {
	quietEnv(t)

	code, _, _ := run("query")
	assert.Equal(t, 2, code)

	code, stdout, _ := run("query", "--account", "nobody", "--now", "1")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, `"status": "unverified"`)

	code, _, stderr := run("query", "--account", strings.Repeat("x", 200))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "TRUST/STORE/INVALID_ACCOUNT")
}
