package track

import (
	"fmt"

	"github.com/lidartrack/imm-ukf-pda/internal/config"
	"gonum.org/v1/gonum/mat"
)

// Model tags one of the three motion hypotheses in the IMM bank.
type Model int

const (
	ModelCV Model = iota
	ModelCTRV
	ModelRM
	numModels = 3
)

func (m Model) String() string {
	switch m {
	case ModelCV:
		return "CV"
	case ModelCTRV:
		return "CTRV"
	case ModelRM:
		return "RM"
	default:
		return "unknown"
	}
}

// Detection is one candidate object observation for a single frame.
// The core filters on Position X/Y only; Yaw and the box dimensions
// feed bounding-box association.
type Detection struct {
	X, Y, Z float64
	Yaw     float64
	DX, DY, DZ float64
}

// Pose is a planar position plus heading.
type Pose struct {
	X, Y, Z float64
	Yaw     float64
}

// Dimensions is a box extent.
type Dimensions struct {
	DX, DY, DZ float64
}

// Area returns dx*dy, the planar footprint used to compare bounding
// boxes during stabilization.
func (d Dimensions) Area() float64 { return d.DX * d.DY }

// BoundingBox is a stabilized output box: a pose plus dimensions.
type BoundingBox struct {
	Pose       Pose
	Dimensions Dimensions
}

// Velocity carries the tracked object's estimated speed in X and, by
// downstream convention, the sensor-frame yaw in Y.
type Velocity struct {
	X, Y float64
}

// TrackedObject is the tracker's per-frame output for one live track.
type TrackedObject struct {
	ID             int
	Pose           Pose
	Dimensions     Dimensions
	LinearVelocity Velocity
	Label          string
	ColorLabel     int
	IsStatic       bool
	// DebugLabel is a human-readable "<id> <tracking_num> <speed> km/h"
	// string, useful to adapters that want the original node's debug
	// marker text without reimplementing the format.
	DebugLabel string
}

// TrackerConfig is the plain-value tuning surface the tracker consumes
// internally. NewTrackerConfig converts the wire-shaped config.TuningConfig
// into this shape, resolving every unset field to its documented default.
type TrackerConfig struct {
	LifeTimeThres        int
	GatingThres          float64
	GateProbability      float64
	DetectionProbability float64
	DistanceThres        float64
	StaticVelocityThres  float64
	BBYawChangeThres     float64
	DetExplodeParam      float64
	CovExplodeParam      float64

	TransitionMatrix         [3][3]float64
	InitialModeProbabilities [3]float64
}

// DefaultTrackerConfig returns the tracker configuration with every
// field at its documented default.
func DefaultTrackerConfig() TrackerConfig {
	return NewTrackerConfig(config.EmptyTuningConfig())
}

// NewTrackerConfig mirrors the config package's bridging pattern:
// it pulls every tunable out of a config.TuningConfig via its Get*
// accessors, so an omitted JSON field falls back to the documented
// default without the tracker needing to know about pointer fields.
func NewTrackerConfig(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		LifeTimeThres:            cfg.GetLifeTimeThres(),
		GatingThres:              cfg.GetGatingThres(),
		GateProbability:          cfg.GetGateProbability(),
		DetectionProbability:     cfg.GetDetectionProbability(),
		DistanceThres:            cfg.GetDistanceThres(),
		StaticVelocityThres:      cfg.GetStaticVelocityThres(),
		BBYawChangeThres:         cfg.GetBBYawChangeThres(),
		DetExplodeParam:          cfg.GetDetExplodeParam(),
		CovExplodeParam:          cfg.GetCovExplodeParam(),
		TransitionMatrix:         cfg.GetTransitionMatrix(),
		InitialModeProbabilities: cfg.GetInitialModeProbabilities(),
	}
}

// Validate rejects a tracker configuration that would make the filter
// math meaningless. Construction-time only, per the InvalidConfig
// error kind: reject at construction, do not start.
func (c TrackerConfig) Validate() error {
	if c.GatingThres <= 0 {
		return fmt.Errorf("track: gating_thres must be positive, got %f", c.GatingThres)
	}
	if c.GateProbability < 0 || c.GateProbability > 1 {
		return fmt.Errorf("track: gate_probability must be in [0,1], got %f", c.GateProbability)
	}
	if c.DetectionProbability < 0 || c.DetectionProbability > 1 {
		return fmt.Errorf("track: detection_probability must be in [0,1], got %f", c.DetectionProbability)
	}
	if c.LifeTimeThres < 1 {
		return fmt.Errorf("track: life_time_thres must be at least 1, got %d", c.LifeTimeThres)
	}
	sum := 0.0
	for i := 0; i < numModels; i++ {
		rowSum := 0.0
		for j := 0; j < numModels; j++ {
			if c.TransitionMatrix[i][j] < 0 {
				return fmt.Errorf("track: transition_matrix has a negative entry at row %d", i)
			}
			rowSum += c.TransitionMatrix[i][j]
		}
		if diff := rowSum - 1.0; diff > 1e-6 || diff < -1e-6 {
			return fmt.Errorf("track: transition_matrix row %d is not row-stochastic: sums to %f", i, rowSum)
		}
		sum += c.InitialModeProbabilities[i]
	}
	if diff := sum - 1.0; diff > 1e-6 || diff < -1e-6 {
		return fmt.Errorf("track: initial_mode_probabilities must sum to 1, got %f", sum)
	}
	return nil
}

// Track is the tracker's mutable per-object state. It is owned
// exclusively by the Tracker that created it and is mutated only
// during a single-threaded Tick.
type Track struct {
	ID int

	Bank *IMMBank

	// XMerge/PMerge are the IMM-combined state and covariance, the
	// values used for output and for the next frame's mixing step.
	XMerge *mat.VecDense
	PMerge *mat.SymDense

	TrackingNum int
	Lifetime    int

	VelHistory []float64

	// InitMeas is set at second-frame initialization and used as the
	// static-classification baseline.
	InitMeas *mat.VecDense

	StabilizedBB BoundingBox
	HasBestBB    bool
	BestYaw      float64

	IsStatic bool
}

// state dimension and measurement dimension, fixed by the filter design.
const (
	stateDim = 5
	measDim  = 2

	idxPX = 0
	idxPY = 1
	idxV  = 2
	idxYaw = 3
	idxYawRate = 4
)
