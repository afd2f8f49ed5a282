package sim

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Cohort is a group of identical agents within a scenario.
type Cohort struct {
	Profile  AgentProfile `json:"profile" yaml:"profile"`
	Count    int          `json:"count" yaml:"count"`
	Attacker bool         `json:"attacker" yaml:"attacker"`
}

// AttackScenario is a named population run for a number of rounds.
type AttackScenario struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Population  []Cohort `json:"population" yaml:"population"`
	Rounds      int      `json:"rounds" yaml:"rounds"`
}

// Validate checks the scenario shape and every cohort profile.
func (s AttackScenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.Rounds < 1 || s.Rounds > MaxRounds {
		return fmt.Errorf("%w %q: rounds %d outside [1, %d]", ErrInvalidScenario, s.Name, s.Rounds, MaxRounds)
	}
	if len(s.Population) == 0 {
		return fmt.Errorf("%w %q: empty population", ErrInvalidScenario, s.Name)
	}
	total := 0
	for i, c := range s.Population {
		if c.Count < 1 {
			return fmt.Errorf("%w %q: cohort %d has count %d", ErrInvalidScenario, s.Name, i, c.Count)
		}
		total += c.Count
		if total > MaxAgents {
			return fmt.Errorf("%w %q: more than %d agents", ErrInvalidScenario, s.Name, MaxAgents)
		}
		if err := c.Profile.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Agents returns the total population size.
func (s AttackScenario) Agents() int {
	n := 0
	for _, c := range s.Population {
		n += c.Count
	}
	return n
}

// Scenario names in the built-in catalog.
const (
	ScenarioHonestBaseline    = "honest_baseline"
	ScenarioSybilAttack       = "sybil_attack"
	ScenarioWashTrading       = "wash_trading"
	ScenarioCollusionRing     = "collusion_ring"
	ScenarioSelectiveService  = "selective_service"
	ScenarioRegistrationSpam  = "registration_spam"
	ScenarioReputationWashing = "reputation_washing"
	ScenarioMixedAttack       = "mixed_attack"
)

// DefaultRounds is the round count of every built-in scenario.
const DefaultRounds = 100

const honestPopulation = 1_000

// Preset profiles shared by the built-in scenarios.
var (
	HonestProfile = AgentProfile{
		Name:              "honest",
		Strategy:          StrategyHonest,
		CompletionRateBPS: 9_000,
		AvgQuality:        85,
		QualityVariance:   10,
		TimelinessBPS:     9_000,
		DisputeRateBPS:    200,
		JobsPerRound:      4,
		InitialStake:      5_000,
	}
	SybilProfile = AgentProfile{
		Name:              "sybil",
		Strategy:          StrategySybil,
		CompletionRateBPS: 3_000,
		AvgQuality:        20,
		QualityVariance:   10,
		TimelinessBPS:     5_000,
		DisputeRateBPS:    1_000,
		JobsPerRound:      4,
	}
	WashTraderProfile = AgentProfile{
		Name:              "wash_trader",
		Strategy:          StrategyWashTrader,
		CompletionRateBPS: 5_000,
		AvgQuality:        40,
		QualityVariance:   15,
		TimelinessBPS:     7_000,
		DisputeRateBPS:    500,
		JobsPerRound:      4,
		InitialStake:      1_000,
		InflationBPS:      6_000,
		FraudDetectionBPS: 3_000,
	}
	ColluderProfile = AgentProfile{
		Name:              "colluder",
		Strategy:          StrategyColluder,
		CompletionRateBPS: 6_000,
		AvgQuality:        45,
		QualityVariance:   15,
		TimelinessBPS:     7_000,
		DisputeRateBPS:    500,
		JobsPerRound:      4,
		InitialStake:      1_000,
		InflationBPS:      5_000,
		FraudDetectionBPS: 2_500,
	}
	SelectiveProfile = AgentProfile{
		Name:                "selective",
		Strategy:            StrategySelective,
		CompletionRateBPS:   9_500,
		AvgQuality:          90,
		QualityVariance:     5,
		TimelinessBPS:       9_000,
		DisputeRateBPS:      300,
		JobsPerRound:        4,
		InitialStake:        5_000,
		SelectiveServiceBPS: 3_000,
	}
	SpammerProfile = AgentProfile{
		Name:              "spammer",
		Strategy:          StrategySpammer,
		CompletionRateBPS: 2_000,
		AvgQuality:        30,
		QualityVariance:   20,
		TimelinessBPS:     5_000,
		DisputeRateBPS:    1_000,
		JobsPerRound:      2,
	}
	WasherProfile = AgentProfile{
		Name:              "washer",
		Strategy:          StrategyWasher,
		CompletionRateBPS: 4_000,
		AvgQuality:        35,
		QualityVariance:   15,
		TimelinessBPS:     6_000,
		DisputeRateBPS:    800,
		JobsPerRound:      4,
		InitialStake:      1_000,
		ResetBelowBPS:     2_000,
	}
)

var presets = map[string]AgentProfile{
	HonestProfile.Name:     HonestProfile,
	SybilProfile.Name:      SybilProfile,
	WashTraderProfile.Name: WashTraderProfile,
	ColluderProfile.Name:   ColluderProfile,
	SelectiveProfile.Name:  SelectiveProfile,
	SpammerProfile.Name:    SpammerProfile,
	WasherProfile.Name:     WasherProfile,
}

func honest() Cohort {
	return Cohort{Profile: HonestProfile, Count: honestPopulation}
}

func attackers(p AgentProfile, n int) Cohort {
	return Cohort{Profile: p, Count: n, Attacker: true}
}

var catalog = map[string]AttackScenario{
	ScenarioHonestBaseline: {
		Name:        ScenarioHonestBaseline,
		Description: "Honest agents only; the reference every attack is measured against",
		Population:  []Cohort{honest()},
		Rounds:      DefaultRounds,
	},
	ScenarioSybilAttack: {
		Name:        ScenarioSybilAttack,
		Description: "Many zero-history identities with poor completion and quality",
		Population:  []Cohort{honest(), attackers(SybilProfile, 200)},
		Rounds:      DefaultRounds,
	},
	ScenarioWashTrading: {
		Name:        ScenarioWashTrading,
		Description: "Self-dealt jobs with perfect ratings and fake payment volume",
		Population:  []Cohort{honest(), attackers(WashTraderProfile, 100)},
		Rounds:      DefaultRounds,
	},
	ScenarioCollusionRing: {
		Name:        ScenarioCollusionRing,
		Description: "A ring of agents rating each other perfectly",
		Population:  []Cohort{honest(), attackers(ColluderProfile, 50)},
		Rounds:      DefaultRounds,
	},
	ScenarioSelectiveService: {
		Name:        ScenarioSelectiveService,
		Description: "Good service to a favored minority, poor service to everyone else",
		Population:  []Cohort{honest(), attackers(SelectiveProfile, 100)},
		Rounds:      DefaultRounds,
	},
	ScenarioRegistrationSpam: {
		Name:        ScenarioRegistrationSpam,
		Description: "A fresh identity every round to escape accumulated history",
		Population:  []Cohort{honest(), attackers(SpammerProfile, 500)},
		Rounds:      DefaultRounds,
	},
	ScenarioReputationWashing: {
		Name:        ScenarioReputationWashing,
		Description: "Identities abandoned and re-registered once their score drops",
		Population:  []Cohort{honest(), attackers(WasherProfile, 100)},
		Rounds:      DefaultRounds,
	},
	ScenarioMixedAttack: {
		Name:        ScenarioMixedAttack,
		Description: "Every attacker strategy at once",
		Population: []Cohort{
			honest(),
			attackers(SybilProfile, 50),
			attackers(WashTraderProfile, 25),
			attackers(ColluderProfile, 25),
			attackers(SelectiveProfile, 25),
			attackers(SpammerProfile, 50),
			attackers(WasherProfile, 25),
		},
		Rounds: DefaultRounds,
	},
}

// Lookup returns a copy of the named built-in scenario.
func Lookup(name string) (AttackScenario, error) {
	s, ok := catalog[name]
	if !ok {
		return AttackScenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	s.Population = append([]Cohort(nil), s.Population...)
	return s, nil
}

// Names returns the built-in scenario names, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns every built-in scenario in name order.
func Catalog() []AttackScenario {
	out := make([]AttackScenario, 0, len(catalog))
	for _, name := range Names() {
		s, _ := Lookup(name)
		out = append(out, s)
	}
	return out
}

// scenarioFile is the YAML layout accepted by LoadScenarios. A cohort may
// name a preset profile instead of spelling one out; fields set alongside
// the preset override it.
type scenarioFile struct {
	Scenarios []struct {
		Name        string       `yaml:"name"`
		Description string       `yaml:"description"`
		Rounds      int          `yaml:"rounds"`
		Population  []cohortFile `yaml:"population"`
	} `yaml:"scenarios"`
}

type cohortFile struct {
	Preset   string    `yaml:"preset"`
	Profile  yaml.Node `yaml:"profile"`
	Count    int       `yaml:"count"`
	Attacker bool      `yaml:"attacker"`
}

// LoadScenarios reads additional scenarios from a YAML file. Rounds
// default to DefaultRounds. Every scenario is validated before any is
// returned.
func LoadScenarios(path string) ([]AttackScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios file: %w", err)
	}
	return ParseScenarios(data)
}

// ParseScenarios decodes the LoadScenarios format.
func ParseScenarios(data []byte) ([]AttackScenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if len(f.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: no scenarios defined", ErrInvalidScenario)
	}

	var (
		out  []AttackScenario
		errs []error
		seen = map[string]bool{}
	)
	for _, raw := range f.Scenarios {
		s := AttackScenario{Name: raw.Name, Description: raw.Description, Rounds: raw.Rounds}
		if s.Rounds == 0 {
			s.Rounds = DefaultRounds
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate scenario %q", ErrInvalidScenario, s.Name))
			continue
		}
		seen[s.Name] = true

		for _, c := range raw.Population {
			cohort, err := c.resolve()
			if err != nil {
				errs = append(errs, fmt.Errorf("scenario %q: %w", s.Name, err))
				continue
			}
			s.Population = append(s.Population, cohort)
		}
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c cohortFile) resolve() (Cohort, error) {
	var profile AgentProfile
	if c.Preset != "" {
		p, ok := presets[c.Preset]
		if !ok {
			return Cohort{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidProfile, c.Preset)
		}
		profile = p
	}
	if !c.Profile.IsZero() {
		if err := c.Profile.Decode(&profile); err != nil {
			return Cohort{}, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}
	return Cohort{Profile: profile, Count: c.Count, Attacker: c.Attacker}, nil
}
