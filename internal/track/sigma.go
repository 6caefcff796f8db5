package track

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Scaled unscented transform parameters. These are implementation
// constants, not tuning knobs: they control sigma-point spread, not
// filter behavior, and are held fixed the way the rest of the
// tracking literature does.
const (
	ukfAlpha = 0.001
	ukfBeta  = 2.0
	ukfKappa = 0.0
)

func sigmaLambda(n int) float64 {
	return ukfAlpha*ukfAlpha*(float64(n)+ukfKappa) - float64(n)
}

// sigmaWeights returns the mean and covariance weight vectors for the
// 2n+1 sigma points of an n-dimensional distribution.
func sigmaWeights(n int) (lambda float64, wm, wc []float64) {
	lambda = sigmaLambda(n)
	np := float64(n)
	wm = make([]float64, 2*n+1)
	wc = make([]float64, 2*n+1)
	wm[0] = lambda / (np + lambda)
	wc[0] = wm[0] + (1 - ukfAlpha*ukfAlpha + ukfBeta)
	w := 1.0 / (2 * (np + lambda))
	for i := 1; i < 2*n+1; i++ {
		wm[i] = w
		wc[i] = w
	}
	return lambda, wm, wc
}

// generateSigmaPoints builds the 2n+1 sigma points for mean x and
// covariance P via a Cholesky square root, scaled by sqrt(n+lambda).
// Returns an error (surfaced by callers as NumericalDivergence) if P
// is not positive definite.
func generateSigmaPoints(x *mat.VecDense, p *mat.SymDense, lambda float64) ([]*mat.VecDense, error) {
	n, _ := p.Dims()

	var chol mat.Cholesky
	if ok := chol.Factorize(p); !ok {
		return nil, errNumericalDivergence("covariance is not positive definite")
	}
	var u mat.TriDense
	chol.UTo(&u)

	scale := math.Sqrt(float64(n) + lambda)

	points := make([]*mat.VecDense, 2*n+1)
	points[0] = mat.VecDenseCopyOf(x)
	for i := 0; i < n; i++ {
		row := mat.Row(nil, i, &u)
		plus := mat.VecDenseCopyOf(x)
		minus := mat.VecDenseCopyOf(x)
		for j := 0; j < n; j++ {
			d := scale * row[j]
			plus.SetVec(j, plus.AtVec(j)+d)
			minus.SetVec(j, minus.AtVec(j)-d)
		}
		points[1+i] = plus
		points[1+n+i] = minus
	}
	return points, nil
}

// weightedMean computes the weighted mean of a set of vectors,
// normalizing the yaw component (if angleIdx >= 0) into (-pi, pi]
// after summation.
func weightedMean(points []*mat.VecDense, w []float64, angleIdx int) *mat.VecDense {
	n, _ := points[0].Dims()
	mean := mat.NewVecDense(n, nil)
	for i, p := range points {
		for j := 0; j < n; j++ {
			mean.SetVec(j, mean.AtVec(j)+w[i]*p.AtVec(j))
		}
	}
	if angleIdx >= 0 {
		mean.SetVec(angleIdx, normalizeYaw(mean.AtVec(angleIdx)))
	}
	return mean
}

// weightedCovariance computes the weighted outer-product covariance of
// a set of vectors about mean, adding an optional additive noise term,
// wrapping the yaw residual (if angleIdx >= 0) before the outer product.
func weightedCovariance(points []*mat.VecDense, mean *mat.VecDense, w []float64, noise mat.Symmetric, angleIdx int) *mat.SymDense {
	n, _ := mean.Dims()
	cov := mat.NewSymDense(n, nil)
	var resid mat.VecDense
	for i, p := range points {
		resid.SubVec(p, mean)
		if angleIdx >= 0 {
			resid.SetVec(angleIdx, normalizeYaw(resid.AtVec(angleIdx)))
		}
		for r := 0; r < n; r++ {
			for c := r; c < n; c++ {
				v := cov.At(r, c) + w[i]*resid.AtVec(r)*resid.AtVec(c)
				cov.SetSym(r, c, v)
			}
		}
	}
	if noise != nil {
		nn, _ := noise.Dims()
		for r := 0; r < nn; r++ {
			for c := r; c < nn; c++ {
				cov.SetSym(r, c, cov.At(r, c)+noise.At(r, c))
			}
		}
	}
	return cov
}

// crossCovariance computes the weighted cross-covariance between two
// sets of sigma points about their respective means.
func crossCovariance(xPoints []*mat.VecDense, xMean *mat.VecDense, zPoints []*mat.VecDense, zMean *mat.VecDense, w []float64, xAngleIdx int) *mat.Dense {
	nx, _ := xMean.Dims()
	nz, _ := zMean.Dims()
	t := mat.NewDense(nx, nz, nil)
	var xr, zr mat.VecDense
	for i := range xPoints {
		xr.SubVec(xPoints[i], xMean)
		if xAngleIdx >= 0 {
			xr.SetVec(xAngleIdx, normalizeYaw(xr.AtVec(xAngleIdx)))
		}
		zr.SubVec(zPoints[i], zMean)
		for r := 0; r < nx; r++ {
			for c := 0; c < nz; c++ {
				t.Set(r, c, t.At(r, c)+w[i]*xr.AtVec(r)*zr.AtVec(c))
			}
		}
	}
	return t
}

// normalizeYaw folds an angle in radians into (-pi, pi].
func normalizeYaw(yaw float64) float64 {
	for yaw > math.Pi {
		yaw -= 2 * math.Pi
	}
	for yaw <= -math.Pi {
		yaw += 2 * math.Pi
	}
	return yaw
}
