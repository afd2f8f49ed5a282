package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
)

// SimulationResult summarizes one scenario run. Every field except
// ThroughputOpsPerSec is a pure function of the scenario, seed and
// parameters.
type SimulationResult struct {
	Scenario             string `json:"scenario"`
	Seed                 uint64 `json:"seed"`
	Rounds               int    `json:"rounds"`
	HonestAgents         int    `json:"honest_agents"`
	AttackerAgents       int    `json:"attacker_agents"`
	HonestAvgScore       int64  `json:"honest_avg_score"`
	AttackerAvgScore     int64  `json:"attacker_avg_score"`
	ReputationSeparation int64  `json:"reputation_separation"`
	// AttackResistanceScore is in [0, 100].
	AttackResistanceScore int64  `json:"attack_resistance_score"`
	DetectionAccuracyBPS  int64  `json:"detection_accuracy_bps"`
	FalsePositiveRateBPS  int64  `json:"false_positive_rate_bps"`
	ConvergenceRound      int    `json:"convergence_round"`
	TotalOps              uint64 `json:"total_ops"`
	TierChanges           uint64 `json:"tier_changes"`
	ThroughputOpsPerSec   uint64 `json:"throughput_ops_per_sec"`
}

// Fingerprint hashes the canonical JSON of the deterministic fields. Two
// runs with equal fingerprints produced the same outcome.
func (r SimulationResult) Fingerprint() (string, error) {
	r.ThroughputOpsPerSec = 0
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// ReportEntry pairs a result with its fingerprint.
type ReportEntry struct {
	SimulationResult
	Fingerprint string `json:"fingerprint"`
}

// Report is the publishable envelope around a batch of results.
type Report struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Results     []ReportEntry `json:"results"`
}

// NewReport fingerprints results and stamps the batch with a fresh run id.
func NewReport(results []*SimulationResult, now time.Time) (*Report, error) {
	rep := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: now.UTC(),
		Results:     make([]ReportEntry, 0, len(results)),
	}
	for _, r := range results {
		fp, err := r.Fingerprint()
		if err != nil {
			return nil, err
		}
		rep.Results = append(rep.Results, ReportEntry{SimulationResult: *r, Fingerprint: fp})
	}
	return rep, nil
}
