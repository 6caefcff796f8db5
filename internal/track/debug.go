package track

// DebugCollector is an optional instrumentation seam a caller can
// implement to receive per-tick internals for visualization or
// offline analysis. The core never depends on any implementation;
// a nil collector means no calls are made.
type DebugCollector interface {
	// OnGate is called once per (track, model, detection) evaluated
	// during gating, whether or not the detection was gated in.
	OnGate(runID string, trackID int, model Model, detectionIndex int, mahalanobisSq float64, gated bool)

	// OnPredict is called once per track after the IMM predict step,
	// reporting the max-determinant model's predicted measurement and
	// innovation covariance used for gating.
	OnPredict(runID string, trackID int, model Model, zPred [2]float64, detS float64)

	// OnAssociation is called once per track after a shared-measurement
	// PDA update, reporting the combined innovation actually applied.
	OnAssociation(runID string, trackID int, sigmaX [2]float64, measurementCount int)
}

// noopDebugCollector satisfies DebugCollector without doing anything;
// used as the Tracker's default so call sites never need a nil check.
type noopDebugCollector struct{}

func (noopDebugCollector) OnGate(string, int, Model, int, float64, bool)     {}
func (noopDebugCollector) OnPredict(string, int, Model, [2]float64, float64) {}
func (noopDebugCollector) OnAssociation(string, int, [2]float64, int)        {}
