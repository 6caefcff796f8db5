package track

import (
	"gonum.org/v1/gonum/mat"
)

// IMMBank holds the three motion-model filters for one track and the
// mixing distribution over them. The three UKFs share only their
// dimensions; each carries independent state and covariance between
// mixing steps.
type IMMBank struct {
	Filters  [numModels]*UKF
	ModeProb [numModels]float64

	cfg TrackerConfig
}

// NewIMMBank constructs a bank with all three filters seeded to the
// same initial state and covariance, and mode probabilities at cfg's
// configured initial distribution.
func NewIMMBank(cfg TrackerConfig, x *mat.VecDense, p *mat.SymDense) *IMMBank {
	b := &IMMBank{cfg: cfg}
	for j := 0; j < numModels; j++ {
		b.Filters[j] = NewUKF(Model(j), x, p)
	}
	b.ModeProb = cfg.InitialModeProbabilities
	return b
}

// mix computes the IMM mixed initial condition for each filter j:
//
//	mu_{i|j} = Pi_ij * mu_i / sum_i(Pi_ij * mu_i)
//	x0_j = sum_i mu_{i|j} * x_i
//	P0_j = sum_i mu_{i|j} * (P_i + (x_i - x0_j)(x_i - x0_j)^T)
//
// and overwrites each filter's X/P with its mixed initial condition,
// ready for that filter's own Predict.
func (b *IMMBank) mix() {
	pi := b.cfg.TransitionMatrix

	// cBar_j = sum_i Pi_ij * mu_i, the normalizer for column j.
	var cBar [numModels]float64
	for j := 0; j < numModels; j++ {
		for i := 0; i < numModels; i++ {
			cBar[j] += pi[i][j] * b.ModeProb[i]
		}
	}

	var muCond [numModels][numModels]float64 // muCond[i][j] = mu_{i|j}
	for j := 0; j < numModels; j++ {
		for i := 0; i < numModels; i++ {
			if cBar[j] > 1e-12 {
				muCond[i][j] = pi[i][j] * b.ModeProb[i] / cBar[j]
			} else {
				muCond[i][j] = 1.0 / numModels
			}
		}
	}

	mixedX := make([]*mat.VecDense, numModels)
	mixedP := make([]*mat.SymDense, numModels)

	for j := 0; j < numModels; j++ {
		x0 := mat.NewVecDense(stateDim, nil)
		for i := 0; i < numModels; i++ {
			xi := b.Filters[i].X
			for k := 0; k < stateDim; k++ {
				x0.SetVec(k, x0.AtVec(k)+muCond[i][j]*xi.AtVec(k))
			}
		}
		x0.SetVec(idxYaw, normalizeYaw(x0.AtVec(idxYaw)))
		mixedX[j] = x0
	}

	for j := 0; j < numModels; j++ {
		p0 := mat.NewSymDense(stateDim, nil)
		for i := 0; i < numModels; i++ {
			xi := b.Filters[i].X
			pFilterI := b.Filters[i].P
			diff := mat.NewVecDense(stateDim, nil)
			diff.SubVec(xi, mixedX[j])
			diff.SetVec(idxYaw, normalizeYaw(diff.AtVec(idxYaw)))
			for r := 0; r < stateDim; r++ {
				for c := r; c < stateDim; c++ {
					v := p0.At(r, c) + muCond[i][j]*(pFilterI.At(r, c)+diff.AtVec(r)*diff.AtVec(c))
					p0.SetSym(r, c, v)
				}
			}
		}
		mixedP[j] = p0
	}

	for j := 0; j < numModels; j++ {
		b.Filters[j].X = mixedX[j]
		b.Filters[j].P = mixedP[j]
	}
}

// Predict runs the mixing step followed by each filter's own predict.
func (b *IMMBank) Predict(dt float64) error {
	b.mix()
	for j := 0; j < numModels; j++ {
		if err := b.Filters[j].Predict(dt); err != nil {
			return err
		}
	}
	return nil
}

// ModeUpdate applies the IMM mode-probability update given each
// filter's per-model likelihood from the PDA step:
//
//	c_j = sum_i Pi_ij * mu_i
//	mu_j <- lambda_j * c_j / sum_j(lambda_j * c_j)
func (b *IMMBank) ModeUpdate(lambda [numModels]float64) {
	pi := b.cfg.TransitionMatrix

	var c [numModels]float64
	for j := 0; j < numModels; j++ {
		for i := 0; i < numModels; i++ {
			c[j] += pi[i][j] * b.ModeProb[i]
		}
	}

	var unnorm [numModels]float64
	var total float64
	for j := 0; j < numModels; j++ {
		unnorm[j] = lambda[j] * c[j]
		total += unnorm[j]
	}

	if total <= 0 || total != total { // total != total catches NaN
		// Degenerate likelihoods: keep the prior distribution rather
		// than divide by zero.
		return
	}
	for j := 0; j < numModels; j++ {
		b.ModeProb[j] = unnorm[j] / total
	}
}

// Combine produces the IMM-merged state and covariance:
//
//	x_merge = sum_j mu_j * x_j
//	P_merge = sum_j mu_j * (P_j + (x_j - x_merge)(x_j - x_merge)^T)
func (b *IMMBank) Combine() (*mat.VecDense, *mat.SymDense) {
	xMerge := mat.NewVecDense(stateDim, nil)
	for j := 0; j < numModels; j++ {
		xj := b.Filters[j].X
		for k := 0; k < stateDim; k++ {
			xMerge.SetVec(k, xMerge.AtVec(k)+b.ModeProb[j]*xj.AtVec(k))
		}
	}
	xMerge.SetVec(idxYaw, normalizeYaw(xMerge.AtVec(idxYaw)))

	pMerge := mat.NewSymDense(stateDim, nil)
	for j := 0; j < numModels; j++ {
		xj := b.Filters[j].X
		pj := b.Filters[j].P
		diff := mat.NewVecDense(stateDim, nil)
		diff.SubVec(xj, xMerge)
		diff.SetVec(idxYaw, normalizeYaw(diff.AtVec(idxYaw)))
		for r := 0; r < stateDim; r++ {
			for c := r; c < stateDim; c++ {
				v := pMerge.At(r, c) + b.ModeProb[j]*(pj.At(r, c)+diff.AtVec(r)*diff.AtVec(c))
				pMerge.SetSym(r, c, v)
			}
		}
	}

	return xMerge, pMerge
}

// MaxDetSModel returns the index of the filter with the largest
// det(S), the "most uncertain" model used both for gating (the
// widest ellipse avoids over-pruning candidates) and for the
// divergence guard.
func (b *IMMBank) MaxDetSModel() int {
	best := 0
	bestDet := b.Filters[0].DetS()
	for j := 1; j < numModels; j++ {
		d := b.Filters[j].DetS()
		if d > bestDet {
			bestDet = d
			best = j
		}
	}
	return best
}
