package track

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// gatedMeasurement is one detection that fell within a track's gate
// under the max-determinant-S model.
type gatedMeasurement struct {
	index int
	z     *mat.VecDense
}

// gate evaluates every detection against the max-det-S model's
// innovation and returns the gated subset, along with the winning
// model's index and det(S). Reports a NumericalDivergence-flavored
// error (via the boolean+err return) when det(S) is NaN or exceeds
// the divergence guard; the caller must force the track to Die.
func gate(bank *IMMBank, detections []Detection, cfg TrackerConfig, runID string, trackID int, dbg DebugCollector) ([]gatedMeasurement, int, float64, error) {
	maxModel := bank.MaxDetSModel()
	detS := bank.Filters[maxModel].DetS()

	if math.IsNaN(detS) || detS > cfg.DetExplodeParam {
		return nil, maxModel, detS, errNumericalDivergence("det(S_max) exploded or NaN")
	}

	dbg.OnPredict(runID, trackID, Model(maxModel), [2]float64{
		bank.Filters[maxModel].ZPred.AtVec(0),
		bank.Filters[maxModel].ZPred.AtVec(1),
	}, detS)

	var gated []gatedMeasurement
	for i, d := range detections {
		z := mat.NewVecDense(measDim, []float64{d.X, d.Y})
		dSq, err := bank.Filters[maxModel].MahalanobisSq(z)
		if err != nil {
			return nil, maxModel, detS, err
		}
		isGated := dSq < cfg.GatingThres
		dbg.OnGate(runID, trackID, Model(maxModel), i, dSq, isGated)
		if isGated {
			gated = append(gated, gatedMeasurement{index: i, z: z})
		}
	}
	return gated, maxModel, detS, nil
}

// secondInitResult carries the seed velocity/heading computed from
// the single closest gated detection during a track's second-init
// frame.
type secondInitResult struct {
	matched   bool
	detection int
	v, yaw    float64
}

// secondInit implements the second-init phase: pick the single gated
// detection with the smallest Mahalanobis distance and derive a
// velocity/heading seed from the displacement since InitMeas. No PDA
// update happens on this frame.
func secondInit(bank *IMMBank, gated []gatedMeasurement, initMeas *mat.VecDense, dt float64) secondInitResult {
	if len(gated) == 0 {
		return secondInitResult{matched: false}
	}
	maxModel := bank.MaxDetSModel()

	best := gated[0]
	bestDSq := math.Inf(1)
	for _, g := range gated {
		dSq, err := bank.Filters[maxModel].MahalanobisSq(g.z)
		if err != nil {
			continue
		}
		if dSq < bestDSq {
			bestDSq = dSq
			best = g
		}
	}

	dx := best.z.AtVec(0) - initMeas.AtVec(0)
	dy := best.z.AtVec(1) - initMeas.AtVec(1)
	v := 0.0
	if dt > 0 {
		v = math.Hypot(dx, dy) / dt
	}
	yaw := math.Atan2(dy, dx)

	return secondInitResult{matched: true, detection: best.index, v: v, yaw: yaw}
}

// seedFromSecondInit overwrites every filter's state with the
// second-init velocity/heading seed at the detection's position,
// leaving covariance untouched.
func seedFromSecondInit(bank *IMMBank, position *mat.VecDense, seed secondInitResult) {
	for j := 0; j < numModels; j++ {
		x := mat.NewVecDense(stateDim, []float64{
			position.AtVec(0),
			position.AtVec(1),
			seed.v,
			normalizeYaw(seed.yaw),
			0,
		})
		bank.Filters[j].X = x
	}
}

// pdaUpdateResult carries the per-model likelihoods the IMM mode
// update needs, plus the number of measurements folded into this
// track's update (used for the "claim on first association" lifetime
// accounting).
type pdaUpdateResult struct {
	lambda           [numModels]float64
	measurementCount int
}

// applyPDA runs the shared-measurement PDA update from spec: gating
// volume, per-model association probabilities, combined innovation
// and spread, filter update, and per-model likelihood for the IMM
// mode step.
func applyPDA(bank *IMMBank, gated []gatedMeasurement, maxModel int, detSMax float64, cfg TrackerConfig, runID string, trackID int, dbg DebugCollector) pdaUpdateResult {
	m := len(gated)
	g := cfg.GatingThres
	pd := cfg.DetectionProbability
	pg := cfg.GateProbability

	b := 2 * float64(m) * (1 - pd*pg) / (g * pd)
	if pd <= 0 {
		b = math.Inf(1)
	}

	gateVolume := math.Pi * math.Sqrt(g*detSMax)

	var result pdaUpdateResult
	result.measurementCount = m

	for j := 0; j < numModels; j++ {
		f := bank.Filters[j]

		e := make([]float64, m)
		sumE := 0.0
		for i, gm := range gated {
			dSq, err := f.MahalanobisSq(gm.z)
			if err != nil {
				dSq = math.Inf(1)
			}
			e[i] = math.Exp(-0.5 * dSq)
			sumE += e[i]
		}

		var beta0 float64
		var betas []float64
		if m > 0 {
			denom := b + sumE
			beta0 = b / denom
			betas = make([]float64, m)
			for i := range e {
				betas[i] = e[i] / denom
			}
		} else {
			beta0 = 1
		}

		sigmaX := mat.NewVecDense(measDim, nil)
		for i, gm := range gated {
			diff := mat.NewVecDense(measDim, nil)
			diff.SubVec(gm.z, f.ZPred)
			for k := 0; k < measDim; k++ {
				sigmaX.SetVec(k, sigmaX.AtVec(k)+betas[i]*diff.AtVec(k))
			}
		}

		sigmaP := mat.NewSymDense(measDim, nil)
		for i, gm := range gated {
			diff := mat.NewVecDense(measDim, nil)
			diff.SubVec(gm.z, f.ZPred)
			for r := 0; r < measDim; r++ {
				for c := r; c < measDim; c++ {
					v := sigmaP.At(r, c) + betas[i]*diff.AtVec(r)*diff.AtVec(c) - sigmaX.AtVec(r)*sigmaX.AtVec(c)
					sigmaP.SetSym(r, c, v)
				}
			}
		}

		f.ApplyUpdate(sigmaX, sigmaP, beta0, m)

		detSj := f.DetS()
		var lambda float64
		if m > 0 {
			lambda = (1-pg*pd)/math.Pow(gateVolume, float64(m)) +
				pd*math.Pow(gateVolume, 1-float64(m))*sumE/(float64(m)*math.Sqrt(2*math.Pi*detSj))
		} else {
			lambda = (1 - pg*pd) / math.Pow(gateVolume, float64(m))
		}
		if math.IsNaN(lambda) || math.IsInf(lambda, 0) {
			lambda = 1e-12
		}
		result.lambda[j] = lambda

		if j == maxModel {
			dbg.OnAssociation(runID, trackID, [2]float64{sigmaX.AtVec(0), sigmaX.AtVec(1)}, m)
		}
	}

	return result
}
