package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/canopy-network/hyperboard/pkg/ledger"
	"github.com/canopy-network/hyperboard/pkg/utils"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid points config")

// Provider supplies the game constants the accrual engine needs. Implementations must be
// pure lookups and safe for concurrent use.
type Provider interface {
	TickIntervalSeconds() int64
	PointsPerCycle() float64
	PointsOnCompletion() float64
	// RarityWeight returns the value multiplier of a resource type; ok is false for unknown types.
	RarityWeight(resourceType uint32) (weight float64, ok bool)
	// Precision is the scale applied to recorded contribution amounts.
	Precision() float64
	// RequiredFunding is the total weighted amount a structure needs to complete.
	RequiredFunding(id ledger.StructureID) float64
}

// Static is a Provider backed by fixed values, typically loaded from YAML.
type Static struct {
	TickInterval           int64                          `yaml:"tick_interval_seconds"`
	CyclePoints            float64                        `yaml:"points_per_cycle"`
	CompletionPoints       float64                        `yaml:"points_on_completion"`
	AmountPrecision        float64                        `yaml:"precision"`
	RarityWeights          map[uint32]float64             `yaml:"rarity_weights"`
	DefaultRequiredFunding float64                        `yaml:"default_required_funding"`
	Funding                map[ledger.StructureID]float64 `yaml:"required_funding"`
}

var _ Provider = (*Static)(nil)

// Defaults returns the constants used when no config file is supplied.
func Defaults() *Static {
	return &Static{
		TickInterval:     1,
		CyclePoints:      10,
		CompletionPoints: 1_000_000,
		AmountPrecision:  1000,
		RarityWeights:    map[uint32]float64{},
		Funding:          map[ledger.StructureID]float64{},
	}
}

// Load reads a YAML file on top of Defaults. An empty path returns the defaults.
func Load(path string) (*Static, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read points config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("points config %s: %w", path, err)
	}
	if cfg.RarityWeights == nil {
		cfg.RarityWeights = map[uint32]float64{}
	}
	if cfg.Funding == nil {
		cfg.Funding = map[ledger.StructureID]float64{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by POINTS_CONFIG (defaults when unset).
func LoadFromEnv() (*Static, error) {
	return Load(utils.Env("POINTS_CONFIG", ""))
}

// Validate rejects values the engine cannot use. NaN and infinities are never accepted.
func (s *Static) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"precision", s.AmountPrecision},
		{"points_per_cycle", s.CyclePoints},
		{"points_on_completion", s.CompletionPoints},
		{"default_required_funding", s.DefaultRequiredFunding},
	}
	for _, f := range fields {
		if !finite(f.value) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidConfig, f.name, f.value)
		}
	}

	switch {
	case s.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval_seconds must be positive, got %d", ErrInvalidConfig, s.TickInterval)
	case s.AmountPrecision <= 0:
		return fmt.Errorf("%w: precision must be positive, got %v", ErrInvalidConfig, s.AmountPrecision)
	case s.CyclePoints < 0:
		return fmt.Errorf("%w: points_per_cycle must not be negative", ErrInvalidConfig)
	case s.CompletionPoints < 0:
		return fmt.Errorf("%w: points_on_completion must not be negative", ErrInvalidConfig)
	case s.DefaultRequiredFunding < 0:
		return fmt.Errorf("%w: default_required_funding must not be negative", ErrInvalidConfig)
	}
	for resource, w := range s.RarityWeights {
		if !finite(w) || w < 0 {
			return fmt.Errorf("%w: rarity weight for resource %d must be finite and not negative, got %v", ErrInvalidConfig, resource, w)
		}
	}
	for id, f := range s.Funding {
		if !finite(f) || f < 0 {
			return fmt.Errorf("%w: required funding for structure %d must be finite and not negative, got %v", ErrInvalidConfig, id, f)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *Static) TickIntervalSeconds() int64 { return s.TickInterval }
func (s *Static) PointsPerCycle() float64     { return s.CyclePoints }
func (s *Static) PointsOnCompletion() float64 { return s.CompletionPoints }
func (s *Static) Precision() float64          { return s.AmountPrecision }

func (s *Static) RarityWeight(resourceType uint32) (float64, bool) {
	w, ok := s.RarityWeights[resourceType]
	return w, ok
}

// RequiredFunding returns the per-structure override, falling back to DefaultRequiredFunding.
func (s *Static) RequiredFunding(id ledger.StructureID) float64 {
	if f, ok := s.Funding[id]; ok {
		return f
	}
	return s.DefaultRequiredFunding
}
