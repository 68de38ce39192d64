package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/optimizer"
	"github.com/cryptoedge/exittune/internal/persistence/postgres"
	"github.com/cryptoedge/exittune/internal/pricecache"
	"github.com/cryptoedge/exittune/internal/walkforward"
)

// EngineConfig is the full configuration surface of a batch run: the three
// candidate grids, the optimization and walk-forward policies, and the I/O
// boundaries. Everything here is externally supplied; the engine's
// algorithms hard-code none of it.
type EngineConfig struct {
	Grid        domain.ParameterGrid     `yaml:"grid"`
	Optimizer   optimizer.Policy         `yaml:"optimizer"`
	WalkForward walkforward.WindowPolicy `yaml:"walk_forward"`
	Postgres    postgres.Config          `yaml:"postgres"`
	PriceCache  pricecache.Config        `yaml:"price_cache"`

	// Pairs limits a run to specific (asset class, algorithm) pairs. Empty
	// means the caller supplies pairs per invocation.
	Pairs []Pair `yaml:"pairs"`
}

// Pair names one optimization unit.
type Pair struct {
	AssetClass    string `yaml:"asset_class"`
	AlgorithmName string `yaml:"algorithm_name"`
}

// DefaultEngineConfig returns the production defaults used when no config
// file is given.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Grid:        domain.DefaultGrid(),
		Optimizer:   optimizer.DefaultPolicy(),
		WalkForward: walkforward.DefaultWindowPolicy(),
		Postgres:    postgres.DefaultConfig(),
		PriceCache:  pricecache.DefaultConfig(),
	}
}

// LoadEngineConfig loads configuration from a YAML file, filling unset
// sections with defaults.
func LoadEngineConfig(configPath string) (*EngineConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine config: %w", err)
	}

	config := DefaultEngineConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse engine config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	return &config, nil
}

// Validate rejects configurations the engine would refuse at run time, so
// operators find out at load time instead.
func (c *EngineConfig) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if c.Optimizer.MinSampleSize < 0 {
		return fmt.Errorf("optimizer: min_sample_size must not be negative")
	}
	if c.WalkForward.Splits < 1 {
		return fmt.Errorf("walk_forward: splits must be >= 1")
	}
	if c.WalkForward.TrainFraction <= 0 || c.WalkForward.TrainFraction >= 1 {
		return fmt.Errorf("walk_forward: train_fraction must be in (0, 1)")
	}
	for i, p := range c.Pairs {
		if p.AssetClass == "" || p.AlgorithmName == "" {
			return fmt.Errorf("pairs[%d]: asset_class and algorithm_name are required", i)
		}
	}
	return nil
}
