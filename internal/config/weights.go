package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

// WeightsConfig is the earning formula configuration: the effort weight
// split and the per-level multipliers.
type WeightsConfig struct {
	Effort     EffortWeights    `yaml:"effort"`
	Levels     LevelMultipliers `yaml:"levels"`
	Validation WeightValidation `yaml:"validation"`
}

// EffortWeights splits the earning base across its four factors. The four
// weights must sum to 1 within the configured tolerance.
type EffortWeights struct {
	BaseRate   float64 `yaml:"base_rate"`
	SkillLevel float64 `yaml:"skill_level"`
	Trust      float64 `yaml:"trust"`
	Demand     float64 `yaml:"demand"`
}

// LevelMultipliers maps skill levels to points and credits multipliers.
type LevelMultipliers struct {
	Points  map[string]float64 `yaml:"points"`
	Credits map[string]float64 `yaml:"credits"`
}

// WeightValidation bounds accepted weight configurations.
type WeightValidation struct {
	WeightSumTolerance float64 `yaml:"weight_sum_tolerance"`
	MinMultiplier      float64 `yaml:"min_multiplier"`
	MaxMultiplier      float64 `yaml:"max_multiplier"`
}

// WeightsLoader handles loading and validation of earning weights.
type WeightsLoader struct {
	config *WeightsConfig
}

// NewWeightsLoader creates a new weights loader.
func NewWeightsLoader() *WeightsLoader {
	return &WeightsLoader{}
}

// LoadFromFile loads earning weights from a YAML configuration file.
func (wl *WeightsLoader) LoadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config WeightsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := wl.validateConfig(&config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	wl.config = &config
	return nil
}

// LoadDefault loads the built-in weights configuration.
func (wl *WeightsLoader) LoadDefault() error {
	config := &WeightsConfig{
		Effort: EffortWeights{
			BaseRate:   0.50,
			SkillLevel: 0.25,
			Trust:      0.15,
			Demand:     0.10,
		},
		Levels: LevelMultipliers{
			Points: map[string]float64{
				"beginner":     0.5,
				"intermediate": 1.0,
				"advanced":     1.5,
			},
			Credits: map[string]float64{
				"beginner":     0.75,
				"intermediate": 1.0,
				"advanced":     1.25,
			},
		},
		Validation: WeightValidation{
			WeightSumTolerance: 0.001,
			MinMultiplier:      0.1,
			MaxMultiplier:      3.0,
		},
	}

	if err := wl.validateConfig(config); err != nil {
		return fmt.Errorf("default config validation failed: %w", err)
	}

	wl.config = config
	return nil
}

// Weights returns the loaded configuration, falling back to the defaults
// when nothing was loaded yet.
func (wl *WeightsLoader) Weights() *WeightsConfig {
	if wl.config == nil {
		if err := wl.LoadDefault(); err != nil {
			// Defaults are constants; validation cannot fail.
			panic(err)
		}
	}
	return wl.config
}

func (wl *WeightsLoader) validateConfig(config *WeightsConfig) error {
	tol := config.Validation.WeightSumTolerance
	if tol <= 0 {
		tol = 0.001
	}

	sum := config.Effort.BaseRate + config.Effort.SkillLevel + config.Effort.Trust + config.Effort.Demand
	if math.Abs(sum-1.0) > tol {
		return fmt.Errorf("effort weights sum to %.4f, expected 1.0 ± %.4f", sum, tol)
	}

	for _, name := range []string{"beginner", "intermediate", "advanced"} {
		if _, ok := config.Levels.Points[name]; !ok {
			return fmt.Errorf("missing points multiplier for level %q", name)
		}
		if _, ok := config.Levels.Credits[name]; !ok {
			return fmt.Errorf("missing credits multiplier for level %q", name)
		}
	}

	minM, maxM := config.Validation.MinMultiplier, config.Validation.MaxMultiplier
	if minM <= 0 {
		minM = 0.1
	}
	if maxM <= 0 {
		maxM = 3.0
	}
	check := func(kind string, m map[string]float64) error {
		for level, v := range m {
			if v < minM || v > maxM {
				return fmt.Errorf("%s multiplier for %s out of range: %.2f not in [%.2f, %.2f]",
					kind, level, v, minM, maxM)
			}
		}
		return nil
	}
	if err := check("points", config.Levels.Points); err != nil {
		return err
	}
	return check("credits", config.Levels.Credits)
}
