// Package sim runs synthetic agent populations through the reputation and
// staking rules to measure how well they separate honest agents from
// attackers.
//
// A run is a pure function of its scenario, seed and Options: agents are
// stepped in a fixed order from a single seeded stream, so the same inputs
// always yield the same SimulationResult apart from throughput.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
	"github.com/Mindburn-Labs/trustengine/pkg/fixedpoint"
	"github.com/Mindburn-Labs/trustengine/pkg/observability"
	"github.com/Mindburn-Labs/trustengine/pkg/prng"
	"github.com/Mindburn-Labs/trustengine/pkg/reputation"
	"github.com/Mindburn-Labs/trustengine/pkg/staking"
	"github.com/Mindburn-Labs/trustengine/pkg/tiers"
)

// JobValue is the payment recorded for each successful job.
const JobValue = 100

const maxRoundSeconds = 365 * 24 * 60 * 60

// Options are the rule and measurement parameters of a run.
type Options struct {
	Reputation              reputation.Params
	Schedule                tiers.Schedule
	LockDuration            int64
	SuspicionThresholdBPS   uint16
	ConvergenceToleranceBPS uint16
	RoundSeconds            int64
	DisputeForfeitBPS       uint16
	SuspicionRule           string
	PRNG                    prng.Algorithm
}

// DefaultOptions mirrors config.DefaultParams.
func DefaultOptions() Options {
	opts, _ := OptionsFromParams(config.DefaultParams())
	return opts
}

// OptionsFromParams extracts simulator options from a parameter set.
func OptionsFromParams(p *config.Params) (Options, error) {
	schedule, err := p.Schedule()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Reputation:              p.Reputation,
		Schedule:                schedule,
		LockDuration:            p.Staking.LockDurationSeconds,
		SuspicionThresholdBPS:   p.Simulation.SuspicionThresholdBPS,
		ConvergenceToleranceBPS: p.Simulation.ConvergenceToleranceBPS,
		RoundSeconds:            p.Simulation.RoundSeconds,
		DisputeForfeitBPS:       p.Simulation.DisputeForfeitBPS,
		SuspicionRule:           p.Simulation.SuspicionRule,
		PRNG:                    p.Simulation.PRNG,
	}, nil
}

func (o Options) validate() error {
	var errs []error
	if err := o.Reputation.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.RoundSeconds < 1 || o.RoundSeconds > maxRoundSeconds {
		errs = append(errs, fmt.Errorf("round_seconds %d outside [1, %d]", o.RoundSeconds, maxRoundSeconds))
	}
	for _, f := range []struct {
		name  string
		value uint16
	}{
		{"suspicion_threshold_bps", o.SuspicionThresholdBPS},
		{"convergence_tolerance_bps", o.ConvergenceToleranceBPS},
		{"dispute_forfeit_bps", o.DisputeForfeitBPS},
	} {
		if f.value > fixedpoint.BPS {
			errs = append(errs, fmt.Errorf("%s %d above %d", f.name, f.value, fixedpoint.BPS))
		}
	}
	if _, err := prng.New(prng.Config{Algorithm: o.PRNG}, 0); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Simulator runs scenarios. It holds no per-run state and is safe for
// concurrent use.
type Simulator struct {
	opts       Options
	controller *staking.Controller
	detector   Detector
	metrics    *observability.Metrics
	logger     *slog.Logger
	clock      func() time.Time
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock overrides the wall clock used for throughput. A frozen clock
// reports zero throughput and makes the whole result reproducible.
func WithClock(clock func() time.Time) Option {
	return func(s *Simulator) { s.clock = clock }
}

// WithMetrics records run durations on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithDetector replaces the detector built from the options.
func WithDetector(d Detector) Option {
	return func(s *Simulator) { s.detector = d }
}

// New validates opts and builds a simulator.
func New(opts Options, o ...Option) (*Simulator, error) {
	if opts.Schedule == nil {
		opts.Schedule = tiers.DefaultSchedule()
	}
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	controller, err := staking.NewController(opts.Schedule, opts.LockDuration)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}
	detector, err := NewDetector(opts.SuspicionRule, opts.SuspicionThresholdBPS)
	if err != nil {
		return nil, fmt.Errorf("sim: %w", err)
	}

	s := &Simulator{
		opts:       opts,
		controller: controller,
		detector:   detector,
		logger:     slog.Default().With("component", "sim"),
		clock:      time.Now,
	}
	for _, fn := range o {
		fn(s)
	}
	return s, nil
}

// RunNamed looks up a built-in scenario and runs it. A positive rounds
// overrides the scenario's default.
func (s *Simulator) RunNamed(ctx context.Context, name string, seed uint64, rounds int) (*SimulationResult, error) {
	sc, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if rounds != 0 {
		sc.Rounds = rounds
	}
	return s.Run(ctx, sc, seed)
}

// Run executes one scenario. Invalid scenarios are rejected before any
// round runs. Cancellation is checked between rounds.
func (s *Simulator) Run(ctx context.Context, sc AttackScenario, seed uint64) (*SimulationResult, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	rng, err := prng.New(prng.Config{Algorithm: s.opts.PRNG}, seed)
	if err != nil {
		return nil, err
	}

	start := s.clock()
	s.logger.DebugContext(ctx, "scenario started", "scenario", sc.Name, "seed", seed, "agents", sc.Agents(), "rounds", sc.Rounds)

	r := &run{sim: s, rng: rng, agents: make([]*agent, 0, sc.Agents())}
	for ci := range sc.Population {
		c := &sc.Population[ci]
		for i := 0; i < c.Count; i++ {
			a := &agent{profile: &c.Profile, attacker: c.Attacker, cohort: ci, index: i}
			if err := r.register(a, 0); err != nil {
				return nil, err
			}
			r.agents = append(r.agents, a)
		}
	}

	separations := make([]int64, sc.Rounds)
	for round := 0; round < sc.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now := int64(round) * s.opts.RoundSeconds
		for _, a := range r.agents {
			if err := r.step(a, round, now); err != nil {
				return nil, fmt.Errorf("%s round %d: %w", sc.Name, round+1, err)
			}
		}
		honestAvg, attackerAvg := r.averages()
		separations[round] = honestAvg - attackerAvg
	}

	res, err := r.result(sc, seed, separations)
	if err != nil {
		return nil, err
	}

	elapsed := s.clock().Sub(start)
	if elapsed > 0 {
		res.ThroughputOpsPerSec = uint64(float64(sc.Agents()) * float64(sc.Rounds) / elapsed.Seconds())
	}
	s.metrics.SimulationFinished(ctx, sc.Name, elapsed)
	s.logger.InfoContext(ctx, "scenario finished",
		"scenario", sc.Name,
		"seed", seed,
		"separation", res.ReputationSeparation,
		"resistance", res.AttackResistanceScore,
		"detection_bps", res.DetectionAccuracyBPS,
		"convergence_round", res.ConvergenceRound,
		"elapsed", elapsed,
	)
	return res, nil
}

// RunAll runs scenarios concurrently with at most parallel in flight
// (unbounded when parallel <= 0). Results keep the input order. The first
// failure cancels the rest.
func (s *Simulator) RunAll(ctx context.Context, scenarios []AttackScenario, seed uint64, parallel int) ([]*SimulationResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	results := make([]*SimulationResult, len(scenarios))
	for i, sc := range scenarios {
		g.Go(func() error {
			res, err := s.Run(gctx, sc, seed)
			if err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type agent struct {
	profile    *AgentProfile
	attacker   bool
	cohort     int
	index      int
	generation int
	rep        reputation.Record
	stake      staking.Record
}

func (a *agent) account() string {
	return fmt.Sprintf("%s-%d-%d/%d", a.profile.Name, a.cohort, a.index, a.generation)
}

// run is the mutable state of one Simulator.Run call.
type run struct {
	sim         *Simulator
	rng         *prng.PRNG
	agents      []*agent
	ops         uint64
	tierChanges uint64
}

func (r *run) register(a *agent, now int64) error {
	if a.profile.InitialStake == 0 {
		return nil
	}
	next, change, err := r.sim.controller.Deposit(a.account(), a.stake, a.profile.InitialStake, now)
	if err != nil {
		return err
	}
	r.stakeChanged(a, next, change)
	return nil
}

// reincarnate abandons the agent's identity, including its stake, and
// registers a fresh one.
func (r *run) reincarnate(a *agent, now int64) error {
	a.generation++
	a.rep = reputation.Record{}
	a.stake = staking.Record{}
	return r.register(a, now)
}

func (r *run) step(a *agent, round int, now int64) error {
	p := a.profile
	switch p.Strategy {
	case StrategySpammer:
		if round > 0 {
			if err := r.reincarnate(a, now); err != nil {
				return err
			}
		}
	case StrategyWasher:
		if a.rep.TotalJobs > 0 && a.rep.Score < p.ResetBelowBPS {
			if err := r.reincarnate(a, now); err != nil {
				return err
			}
		}
	}

	jobs := p.JobsPerRound
	if half := jobs / 2; half > 0 {
		jobs = jobs - half + r.rng.Intn(2*half+1)
	}
	for j := 0; j < jobs; j++ {
		if err := r.job(a, now); err != nil {
			return err
		}
		if p.Strategy == StrategyWashTrader || p.Strategy == StrategyColluder {
			if r.rng.ChanceBPS(p.InflationBPS) {
				if err := r.inflate(a, now); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// job simulates one real job for a counterpart.
func (r *run) job(a *agent, now int64) error {
	p := a.profile
	if !r.rng.ChanceBPS(p.CompletionRateBPS) {
		if err := r.rate(a, 0, reputation.OutcomeDispute); err != nil {
			return err
		}
		r.penalize(a, r.sim.opts.Reputation.DisputeLossPenaltyBPS)
		return r.forfeit(a, now)
	}

	quality := int(p.AvgQuality) - int(p.QualityVariance) + r.rng.Intn(2*int(p.QualityVariance)+1)
	if !r.rng.ChanceBPS(p.TimelinessBPS) {
		quality = quality * 3 / 4
	}
	outcome := reputation.OutcomeSuccess
	switch {
	case p.Strategy == StrategySelective && !r.rng.ChanceBPS(p.SelectiveServiceBPS):
		quality /= 4
		outcome = reputation.OutcomeDispute
	case r.rng.ChanceBPS(p.DisputeRateBPS):
		quality /= 2
		outcome = reputation.OutcomeDispute
	}

	if err := r.rate(a, uint8(quality), outcome); err != nil { //nolint:gosec // quality stays within [0, 100]
		return err
	}
	if outcome == reputation.OutcomeSuccess {
		return r.pay(a, now)
	}
	return nil
}

// inflate applies one fake perfect rating from a ring member or a
// self-dealt counterpart. Wash trades also carry fake payment volume.
func (r *run) inflate(a *agent, now int64) error {
	if err := r.rate(a, reputation.MaxRating, reputation.OutcomeSuccess); err != nil {
		return err
	}
	if a.profile.Strategy == StrategyWashTrader {
		if err := r.pay(a, now); err != nil {
			return err
		}
	}
	if r.rng.ChanceBPS(a.profile.FraudDetectionBPS) {
		r.penalize(a, r.sim.opts.Reputation.FraudPenaltyBPS)
	}
	return nil
}

func (r *run) rate(a *agent, rating uint8, outcome reputation.Outcome) error {
	next, err := reputation.ApplyRating(a.rep, rating, outcome, reputation.MaxRatingWeight, r.sim.opts.Reputation)
	if err != nil {
		return err
	}
	a.rep = next
	r.ops++
	return nil
}

func (r *run) pay(a *agent, now int64) error {
	next, err := reputation.RecordPayment(a.rep, JobValue, now)
	if err != nil {
		return err
	}
	a.rep = next
	r.ops++
	return nil
}

func (r *run) penalize(a *agent, bps uint16) {
	a.rep = reputation.ApplyPenalty(a.rep, bps)
	r.ops++
}

func (r *run) forfeit(a *agent, now int64) error {
	if a.stake.AmountStaked == 0 || r.sim.opts.DisputeForfeitBPS == 0 {
		return nil
	}
	next, change, err := r.sim.controller.Forfeit(a.account(), a.stake, r.sim.opts.DisputeForfeitBPS, now)
	if err != nil {
		return err
	}
	r.stakeChanged(a, next, change)
	return nil
}

func (r *run) stakeChanged(a *agent, next staking.Record, change *staking.TierChange) {
	a.stake = next
	r.ops++
	if change != nil {
		r.tierChanges++
	}
}

// averages returns the mean score of each side, zero for an empty side.
func (r *run) averages() (honest, attacker int64) {
	var hSum, aSum, hN, aN int64
	for _, a := range r.agents {
		if a.attacker {
			aSum += int64(a.rep.Score)
			aN++
		} else {
			hSum += int64(a.rep.Score)
			hN++
		}
	}
	if hN > 0 {
		honest = hSum / hN
	}
	if aN > 0 {
		attacker = aSum / aN
	}
	return honest, attacker
}

func (r *run) result(sc AttackScenario, seed uint64, separations []int64) (*SimulationResult, error) {
	res := &SimulationResult{
		Scenario:    sc.Name,
		Seed:        seed,
		Rounds:      sc.Rounds,
		TotalOps:    r.ops,
		TierChanges: r.tierChanges,
	}

	var flaggedHonest, flaggedAttackers int64
	for _, a := range r.agents {
		if a.attacker {
			res.AttackerAgents++
		} else {
			res.HonestAgents++
		}
		flagged, err := r.sim.detector.Suspicious(a.rep, a.stake)
		if err != nil {
			return nil, err
		}
		switch {
		case flagged && a.attacker:
			flaggedAttackers++
		case flagged:
			flaggedHonest++
		}
	}

	res.HonestAvgScore, res.AttackerAvgScore = r.averages()
	res.ReputationSeparation = res.HonestAvgScore - res.AttackerAvgScore

	// With no attackers there is nothing to resist or detect.
	if res.AttackerAgents == 0 {
		res.AttackResistanceScore = 100
		res.DetectionAccuracyBPS = fixedpoint.BPS
	} else {
		res.AttackResistanceScore = fixedpoint.ClampInt64(res.ReputationSeparation*100/fixedpoint.BPS, 0, 100)
		res.DetectionAccuracyBPS = flaggedAttackers * fixedpoint.BPS / int64(res.AttackerAgents)
	}
	if res.HonestAgents > 0 {
		res.FalsePositiveRateBPS = flaggedHonest * fixedpoint.BPS / int64(res.HonestAgents)
	}
	res.ConvergenceRound = convergenceRound(separations, int64(r.sim.opts.ConvergenceToleranceBPS))
	return res, nil
}

// convergenceRound returns the first 1-based round from which every later
// separation stays within tolerance of the final one.
func convergenceRound(separations []int64, tolerance int64) int {
	if len(separations) == 0 {
		return 0
	}
	final := separations[len(separations)-1]
	round := len(separations)
	for i := len(separations) - 1; i >= 0; i-- {
		d := separations[i] - final
		if d < 0 {
			d = -d
		}
		if d > tolerance {
			break
		}
		round = i + 1
	}
	return round
}
