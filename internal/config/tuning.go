package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the tracker's tunable parameters. Fields
// omitted from the JSON file retain their default values, so partial
// configs are safe.
type TuningConfig struct {
	LifeTimeThres        *int     `json:"life_time_thres,omitempty"`
	GatingThres          *float64 `json:"gating_thres,omitempty"`
	GateProbability      *float64 `json:"gate_probability,omitempty"`
	DetectionProbability *float64 `json:"detection_probability,omitempty"`
	DistanceThres        *float64 `json:"distance_thres,omitempty"`
	StaticVelocityThres  *float64 `json:"static_velocity_thres,omitempty"`
	BBYawChangeThres     *float64 `json:"bb_yaw_change_thres,omitempty"`
	DetExplodeParam      *float64 `json:"det_explode_param,omitempty"`
	CovExplodeParam      *float64 `json:"cov_explode_param,omitempty"`

	// TransitionMatrix is the IMM Markov transition matrix (row i ->
	// column j), row-stochastic. Nil selects the default: strong
	// self-transition, diagonal 0.9.
	TransitionMatrix [][]float64 `json:"transition_matrix,omitempty"`
	// InitialModeProbabilities is the initial mixture weight over
	// {CV, CTRV, RM}. Nil selects the uniform default.
	InitialModeProbabilities []float64 `json:"initial_mode_probabilities,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid: gating
// and detection probabilities lie in [0,1], thresholds are positive
// where the filter math requires it, and a supplied transition matrix
// or mode-probability vector is well-formed and row/vector-stochastic.
func (c *TuningConfig) Validate() error {
	if c.GatingThres != nil && *c.GatingThres <= 0 {
		return fmt.Errorf("gating_thres must be positive, got %f", *c.GatingThres)
	}
	if c.GateProbability != nil && (*c.GateProbability < 0 || *c.GateProbability > 1) {
		return fmt.Errorf("gate_probability must be between 0 and 1, got %f", *c.GateProbability)
	}
	if c.DetectionProbability != nil && (*c.DetectionProbability < 0 || *c.DetectionProbability > 1) {
		return fmt.Errorf("detection_probability must be between 0 and 1, got %f", *c.DetectionProbability)
	}
	if c.DistanceThres != nil && *c.DistanceThres < 0 {
		return fmt.Errorf("distance_thres must be non-negative, got %f", *c.DistanceThres)
	}
	if c.LifeTimeThres != nil && *c.LifeTimeThres < 1 {
		return fmt.Errorf("life_time_thres must be at least 1, got %d", *c.LifeTimeThres)
	}
	if c.DetExplodeParam != nil && *c.DetExplodeParam <= 0 {
		return fmt.Errorf("det_explode_param must be positive, got %f", *c.DetExplodeParam)
	}
	if c.CovExplodeParam != nil && *c.CovExplodeParam <= 0 {
		return fmt.Errorf("cov_explode_param must be positive, got %f", *c.CovExplodeParam)
	}

	if c.TransitionMatrix != nil {
		if len(c.TransitionMatrix) != 3 {
			return fmt.Errorf("transition_matrix must have 3 rows, got %d", len(c.TransitionMatrix))
		}
		for i, row := range c.TransitionMatrix {
			if len(row) != 3 {
				return fmt.Errorf("transition_matrix row %d must have 3 columns, got %d", i, len(row))
			}
			sum := 0.0
			for _, v := range row {
				if v < 0 {
					return fmt.Errorf("transition_matrix row %d has a negative entry: %f", i, v)
				}
				sum += v
			}
			if diff := sum - 1.0; diff > 1e-6 || diff < -1e-6 {
				return fmt.Errorf("transition_matrix row %d is not row-stochastic: sums to %f", i, sum)
			}
		}
	}

	if c.InitialModeProbabilities != nil {
		if len(c.InitialModeProbabilities) != 3 {
			return fmt.Errorf("initial_mode_probabilities must have 3 entries, got %d", len(c.InitialModeProbabilities))
		}
		sum := 0.0
		for _, v := range c.InitialModeProbabilities {
			if v < 0 {
				return fmt.Errorf("initial_mode_probabilities has a negative entry: %f", v)
			}
			sum += v
		}
		if diff := sum - 1.0; diff > 1e-6 || diff < -1e-6 {
			return fmt.Errorf("initial_mode_probabilities must sum to 1, got %f", sum)
		}
	}

	return nil
}

// GetLifeTimeThres returns the life_time_thres value or the default.
func (c *TuningConfig) GetLifeTimeThres() int {
	if c.LifeTimeThres == nil {
		return 8
	}
	return *c.LifeTimeThres
}

// GetGatingThres returns the gating_thres value or the default (the
// chi-square 99% critical value for 2 degrees of freedom).
func (c *TuningConfig) GetGatingThres() float64 {
	if c.GatingThres == nil {
		return 9.22
	}
	return *c.GatingThres
}

// GetGateProbability returns the gate_probability value or the default.
func (c *TuningConfig) GetGateProbability() float64 {
	if c.GateProbability == nil {
		return 0.99
	}
	return *c.GateProbability
}

// GetDetectionProbability returns the detection_probability value or the default.
func (c *TuningConfig) GetDetectionProbability() float64 {
	if c.DetectionProbability == nil {
		return 0.9
	}
	return *c.DetectionProbability
}

// GetDistanceThres returns the distance_thres value or the default, in meters.
func (c *TuningConfig) GetDistanceThres() float64 {
	if c.DistanceThres == nil {
		return 99
	}
	return *c.DistanceThres
}

// GetStaticVelocityThres returns the static_velocity_thres value or
// the default, in m/s.
func (c *TuningConfig) GetStaticVelocityThres() float64 {
	if c.StaticVelocityThres == nil {
		return 0.5
	}
	return *c.StaticVelocityThres
}

// GetBBYawChangeThres returns the bb_yaw_change_thres value or the
// default, in radians (roughly 11.5 degrees).
func (c *TuningConfig) GetBBYawChangeThres() float64 {
	if c.BBYawChangeThres == nil {
		return 0.2
	}
	return *c.BBYawChangeThres
}

// GetDetExplodeParam returns the det_explode_param value or the default.
func (c *TuningConfig) GetDetExplodeParam() float64 {
	if c.DetExplodeParam == nil {
		return 10
	}
	return *c.DetExplodeParam
}

// GetCovExplodeParam returns the cov_explode_param value or the default.
func (c *TuningConfig) GetCovExplodeParam() float64 {
	if c.CovExplodeParam == nil {
		return 1000
	}
	return *c.CovExplodeParam
}

// GetTransitionMatrix returns the IMM transition matrix or the
// default: strongly self-transitioning, diagonal 0.9 with the
// remaining mass split evenly across the other two models.
func (c *TuningConfig) GetTransitionMatrix() [3][3]float64 {
	if c.TransitionMatrix == nil {
		return [3][3]float64{
			{0.9, 0.05, 0.05},
			{0.05, 0.9, 0.05},
			{0.05, 0.05, 0.9},
		}
	}
	var m [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = c.TransitionMatrix[i][j]
		}
	}
	return m
}

// GetInitialModeProbabilities returns the initial mixture weight over
// {CV, CTRV, RM} or the default: uniform.
func (c *TuningConfig) GetInitialModeProbabilities() [3]float64 {
	if c.InitialModeProbabilities == nil {
		return [3]float64{1.0 / 3, 1.0 / 3, 1.0 / 3}
	}
	var p [3]float64
	for i := 0; i < 3; i++ {
		p[i] = c.InitialModeProbabilities[i]
	}
	return p
}
