// Package config provides calibration loading and profile lookup for the simulation.
// Every tunable constant lives here as a named field; engine code never hardcodes them.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds the full calibration set.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Budget     BudgetConfig     `yaml:"budget"`
	Costs      CostConfig       `yaml:"costs"`
	Household  HouseholdConfig  `yaml:"household"`
	Enforcer   EnforcerConfig   `yaml:"enforcer"`
	Politics   PoliticsConfig   `yaml:"politics"`
	Policy     PolicyConfig     `yaml:"policy"`
	Profiles   ProfilesConfig   `yaml:"profiles"`
	Zones      []ZoneSpec       `yaml:"zones"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimulationConfig controls the grid, the clock and the run horizon.
type SimulationConfig struct {
	GridWidth       int    `yaml:"grid_width"`
	GridHeight      int    `yaml:"grid_height"`
	TicksPerQuarter int    `yaml:"ticks_per_quarter"`
	Quarters        int    `yaml:"quarters"`        // horizon = Quarters × TicksPerQuarter
	TimeScale       int    `yaml:"time_scale"`      // quarters mapped to 1.0 in the state vector
	Seed            int64  `yaml:"seed"`            // 0 = random
	Placement       string `yaml:"placement"`       // "uniform" or "clustered"
	StateAttitudes  bool   `yaml:"state_attitudes"` // include per-zone attitude in the state vector
}

// BudgetConfig holds municipal budget and allocation parameters.
type BudgetConfig struct {
	Annual            float64 `yaml:"annual"`
	ReplenishAnnually bool    `yaml:"replenish_annually"`
	Epsilon           float64 `yaml:"epsilon"`         // total desire below this means no spending
	NeedyThreshold    float64 `yaml:"needy_threshold"` // global form funds zones below this compliance
	HouseholdCap      float64 `yaml:"household_cap"`   // per household per quarter, 0 = uncapped
}

// CostConfig holds unit costs and saturation constants shared by every zone.
type CostConfig struct {
	FineAmount            float64 `yaml:"fine_amount"`
	EnforcerCost          float64 `yaml:"enforcer_cost"`
	IECPerHousehold       float64 `yaml:"iec_per_household"`
	IECFallbackSaturation float64 `yaml:"iec_fallback_saturation"`
	EnforcementSaturation float64 `yaml:"enforcement_saturation"`
}

// HouseholdConfig holds the behavioral model constants.
type HouseholdConfig struct {
	NeighborRadius  int     `yaml:"neighbor_radius"`
	AuthorityWeight float64 `yaml:"authority_weight"`
	NormCeiling     float64 `yaml:"norm_ceiling"`

	HighThreshold float64 `yaml:"high_threshold"` // strong shield above this zone compliance
	MidThreshold  float64 `yaml:"mid_threshold"`  // moderate shield above this
	HighRetention float64 `yaml:"high_retention"` // share of old norm kept when falling
	MidRetention  float64 `yaml:"mid_retention"`
	HighDamper    float64 `yaml:"high_damper"` // decay multiplier above HighThreshold
	MidDamper     float64 `yaml:"mid_damper"`

	IECBaseFactor    float64 `yaml:"iec_base_factor"`
	SynergyWeight    float64 `yaml:"synergy_weight"`
	FatigueThreshold float64 `yaml:"fatigue_threshold"`
	FatiguePenalty   float64 `yaml:"fatigue_penalty"`
	PeaceOfMind      float64 `yaml:"peace_of_mind"`
	AttitudeCeiling  float64 `yaml:"attitude_ceiling"`
	CeilingErosion   float64 `yaml:"ceiling_erosion"`

	IncomeMultipliers []float64 `yaml:"income_multipliers"` // indexed by tier-1
	Normalizer        float64   `yaml:"normalizer"`
	NoiseSigma        float64   `yaml:"noise_sigma"`
	SlipProbability   float64   `yaml:"slip_probability"`

	RedemptionProbability float64 `yaml:"redemption_probability"`
	RedemptionBoost       float64 `yaml:"redemption_boost"`
	FineUtilityPenalty    float64 `yaml:"fine_utility_penalty"`
	FineAttitudePenalty   float64 `yaml:"fine_attitude_penalty"`

	Seeding SeedingConfig `yaml:"seeding"`
}

// SeedingConfig gives the uniform ranges used for initial psychology.
type SeedingConfig struct {
	CompliantAttitude []float64 `yaml:"compliant_attitude"`
	CompliantOther    []float64 `yaml:"compliant_other"`
	NonCompliant      []float64 `yaml:"non_compliant"`
}

// EnforcerConfig holds patrol geometry.
type EnforcerConfig struct {
	CaptureRadius int `yaml:"capture_radius"`
	ScanRadius    int `yaml:"scan_radius"`
	PatrolRadius  int `yaml:"patrol_radius"`
}

// PoliticsConfig holds the political capital drift coefficients.
type PoliticsConfig struct {
	Initial float64 `yaml:"initial"`
	Alpha   float64 `yaml:"alpha"` // decay per unit of average enforcement
	Beta    float64 `yaml:"beta"`  // recovery per unit of enforcement slack
}

// PolicyConfig holds heuristic and reward parameters.
type PolicyConfig struct {
	MaintenanceThreshold float64      `yaml:"maintenance_threshold"`
	MaintenanceVector    []float64    `yaml:"maintenance_vector"`
	Amplify              float64      `yaml:"amplify"`
	Damp                 float64      `yaml:"damp"`
	Reward               RewardConfig `yaml:"reward"`
	HistorySize          int          `yaml:"history_size"`
}

// RewardConfig shapes the multi-objective reward signal.
type RewardConfig struct {
	ComplianceScale float64 `yaml:"compliance_scale"`
	BudgetFloor     float64 `yaml:"budget_floor"`
	BudgetPenalty   float64 `yaml:"budget_penalty"`
	CapitalFloor    float64 `yaml:"capital_floor"`
	CapitalPenalty  float64 `yaml:"capital_penalty"`
}

// ProfilesConfig holds named calibration profiles and their fallbacks.
type ProfilesConfig struct {
	DefaultBehavior   string                `yaml:"default_behavior"`
	DefaultIncome     string                `yaml:"default_income"`
	DefaultAllocation string                `yaml:"default_allocation"`
	Behavior          map[string]Behavior   `yaml:"behavior"`
	Income            map[string][]float64  `yaml:"income"` // shares of tiers 1..3
	Allocation        map[string]Allocation `yaml:"allocation"`
}

// Behavior holds the per-household TPB coefficients.
type Behavior struct {
	WAttitude float64 `yaml:"w_a" json:"w_a"`
	WNorm     float64 `yaml:"w_sn" json:"w_sn"`
	WControl  float64 `yaml:"w_pbc" json:"w_pbc"`
	Effort    float64 `yaml:"c_effort" json:"c_effort"`
	Decay     float64 `yaml:"decay" json:"decay"`
}

// Allocation is how a zone splits its own money absent any top-up.
type Allocation struct {
	IEC         float64 `yaml:"iec" json:"iec"`
	Enforcement float64 `yaml:"enf" json:"enf"`
	Incentive   float64 `yaml:"inc" json:"inc"`
}

// ZoneSpec describes one zone at initialization.
type ZoneSpec struct {
	Name              string  `yaml:"name"`
	Households        int     `yaml:"households"`
	LocalBudget       float64 `yaml:"local_budget"` // annual
	InitialCompliance float64 `yaml:"initial_compliance"`
	IncomeProfile     string  `yaml:"income_profile"`
	BehaviorProfile   string  `yaml:"behavior_profile"`
	AllocationProfile string  `yaml:"allocation_profile"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	QuarterlyBudget float64
	HorizonTicks    int
}

var (
	fallbackBehavior   = Behavior{WAttitude: 0.4, WNorm: 0.3, WControl: 0.3, Effort: 0.2, Decay: 0.005}
	fallbackIncome     = []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	fallbackAllocation = Allocation{IEC: 0.20, Enforcement: 0.50, Incentive: 0.30}
)

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Validate(data); err != nil {
			return nil, fmt.Errorf("validating %s: %w", path, err)
		}
		// Only overwrites fields present in the file.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded calibration. Panics if the embedded file is broken.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return cfg
}

func (c *Config) computeDerived() {
	c.Derived.QuarterlyBudget = c.Budget.Annual / 4
	c.Derived.HorizonTicks = c.Simulation.Quarters * c.Simulation.TicksPerQuarter
	if c.Simulation.TimeScale <= 0 {
		c.Simulation.TimeScale = 40
	}
}

// Recompute refreshes derived values after a caller edits the config in place.
func (c *Config) Recompute() {
	c.computeDerived()
}

// BehaviorFor returns the named behavior profile, falling back to the default profile.
func (c *Config) BehaviorFor(name string) Behavior {
	if b, ok := c.Profiles.Behavior[name]; ok {
		return b
	}
	slog.Warn("unknown behavior profile, using default", "profile", name, "default", c.Profiles.DefaultBehavior)
	if b, ok := c.Profiles.Behavior[c.Profiles.DefaultBehavior]; ok {
		return b
	}
	return fallbackBehavior
}

// IncomeFor returns tier shares for the named income profile.
func (c *Config) IncomeFor(name string) []float64 {
	if p, ok := c.Profiles.Income[name]; ok && len(p) == 3 {
		return p
	}
	slog.Warn("unknown income profile, using default", "profile", name, "default", c.Profiles.DefaultIncome)
	if p, ok := c.Profiles.Income[c.Profiles.DefaultIncome]; ok && len(p) == 3 {
		return p
	}
	return fallbackIncome
}

// AllocationFor returns local allocation ratios for the named profile.
func (c *Config) AllocationFor(name string) Allocation {
	if a, ok := c.Profiles.Allocation[name]; ok {
		return a
	}
	if name != "" {
		slog.Warn("unknown allocation profile, using default", "profile", name, "default", c.Profiles.DefaultAllocation)
	}
	if a, ok := c.Profiles.Allocation[c.Profiles.DefaultAllocation]; ok {
		return a
	}
	return fallbackAllocation
}

// IncomeMultiplier returns the monetary sensitivity for an income tier (1..3).
func (c *Config) IncomeMultiplier(tier int) float64 {
	m := c.Household.IncomeMultipliers
	if tier < 1 || tier > len(m) {
		return 1.0
	}
	return m[tier-1]
}

// WriteYAML writes the effective configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
