package track

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// UKF is a single unscented Kalman filter over the shared 5-dimensional
// state (px, py, v, yaw, yaw_rate) and 2-dimensional position
// measurement. Three instances, one per Model, share this structure
// and differ only in their process model f(x, dt).
type UKF struct {
	Model Model

	X *mat.VecDense // state, length 5
	P *mat.SymDense // covariance, 5x5

	ZPred *mat.VecDense // predicted measurement, length 2
	S     *mat.SymDense // innovation covariance, 2x2
	K     *mat.Dense    // Kalman gain, 5x2

	sigmaPointsPred []*mat.VecDense // scratch: predicted-state sigma points, reused in update
}

// NewUKF constructs a filter for the given model with the supplied
// initial state and covariance. The caller retains ownership of
// neither: NewUKF copies both in.
func NewUKF(model Model, x *mat.VecDense, p *mat.SymDense) *UKF {
	return &UKF{
		Model: model,
		X:     mat.VecDenseCopyOf(x),
		P:     mat.NewSymDense(5, cloneSymData(p)),
	}
}

func cloneSymData(p *mat.SymDense) []float64 {
	n, _ := p.Dims()
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = p.At(i, j)
		}
	}
	return data
}

// processNoise returns the additive process noise Q for this filter's
// model. RM, the near-stationary hypothesis, carries much smaller
// velocity process noise than CV/CTRV so it stays a distinct, tight
// hypothesis rather than degenerating into a slow CV.
func (u *UKF) processNoise(dt float64) *mat.SymDense {
	q := mat.NewSymDense(stateDim, nil)
	var posVar, velVar, yawVar, yawRateVar float64
	switch u.Model {
	case ModelRM:
		posVar, velVar, yawVar, yawRateVar = 0.05, 0.01, 0.05, 0.01
	case ModelCTRV:
		posVar, velVar, yawVar, yawRateVar = 0.15, 0.6, 0.3, 0.3
	default: // ModelCV
		posVar, velVar, yawVar, yawRateVar = 0.15, 0.6, 0.15, 0.05
	}
	scale := dt * dt
	q.SetSym(idxPX, idxPX, posVar*scale)
	q.SetSym(idxPY, idxPY, posVar*scale)
	q.SetSym(idxV, idxV, velVar*scale)
	q.SetSym(idxYaw, idxYaw, yawVar*scale)
	q.SetSym(idxYawRate, idxYawRate, yawRateVar*scale)
	return q
}

// measurementNoise returns R, the position-measurement noise. Shared
// across models: all three observe the same sensor.
func measurementNoise() *mat.SymDense {
	r := mat.NewSymDense(measDim, nil)
	r.SetSym(0, 0, 0.15)
	r.SetSym(1, 1, 0.15)
	return r
}

// transition applies this filter's process model to a single sigma
// point, returning a new vector (the input is not mutated).
func (u *UKF) transition(x *mat.VecDense, dt float64) *mat.VecDense {
	px, py, v, yaw, yawRate := x.AtVec(idxPX), x.AtVec(idxPY), x.AtVec(idxV), x.AtVec(idxYaw), x.AtVec(idxYawRate)

	out := mat.NewVecDense(stateDim, nil)

	switch u.Model {
	case ModelRM:
		// Position held, velocity drifts toward zero; yaw and yaw rate
		// are not meaningful for a near-stationary object.
		out.SetVec(idxPX, px)
		out.SetVec(idxPY, py)
		out.SetVec(idxV, v*0.9)
		out.SetVec(idxYaw, yaw)
		out.SetVec(idxYawRate, 0)

	case ModelCTRV:
		if math.Abs(yawRate) < 1e-4 {
			// Degenerate turn rate: fall back to CV integration.
			out.SetVec(idxPX, px+v*dt*math.Cos(yaw))
			out.SetVec(idxPY, py+v*dt*math.Sin(yaw))
		} else {
			newYaw := yaw + yawRate*dt
			out.SetVec(idxPX, px+(v/yawRate)*(math.Sin(newYaw)-math.Sin(yaw)))
			out.SetVec(idxPY, py+(v/yawRate)*(-math.Cos(newYaw)+math.Cos(yaw)))
		}
		out.SetVec(idxV, v)
		out.SetVec(idxYaw, normalizeYaw(yaw+yawRate*dt))
		out.SetVec(idxYawRate, yawRate)

	default: // ModelCV
		out.SetVec(idxPX, px+v*dt*math.Cos(yaw))
		out.SetVec(idxPY, py+v*dt*math.Sin(yaw))
		out.SetVec(idxV, v)
		out.SetVec(idxYaw, yaw)
		out.SetVec(idxYawRate, 0)
	}
	return out
}

func measurementFn(x *mat.VecDense) *mat.VecDense {
	z := mat.NewVecDense(measDim, nil)
	z.SetVec(0, x.AtVec(idxPX))
	z.SetVec(1, x.AtVec(idxPY))
	return z
}

// Predict runs the scaled unscented transform through this filter's
// process and measurement models, populating X, P, ZPred, S and K.
// Returns a NumericalDivergence-flavored error if the input or
// predicted covariance is not positive definite.
func (u *UKF) Predict(dt float64) error {
	lambda, wm, wc := sigmaWeights(stateDim)

	sigmaIn, err := generateSigmaPoints(u.X, u.P, lambda)
	if err != nil {
		return err
	}

	predicted := make([]*mat.VecDense, len(sigmaIn))
	for i, s := range sigmaIn {
		predicted[i] = u.transition(s, dt)
	}

	xPred := weightedMean(predicted, wm, idxYaw)
	pPred := weightedCovariance(predicted, xPred, wc, u.processNoise(dt), idxYaw)

	// Re-derive sigma points on the predicted distribution before
	// mapping through the measurement model, as the scaled UT requires.
	sigmaPred, err := generateSigmaPoints(xPred, pPred, lambda)
	if err != nil {
		return err
	}

	zPoints := make([]*mat.VecDense, len(sigmaPred))
	for i, s := range sigmaPred {
		zPoints[i] = measurementFn(s)
	}
	zPred := weightedMean(zPoints, wm, -1)
	s := weightedCovariance(zPoints, zPred, wc, measurementNoise(), -1)

	t := crossCovariance(sigmaPred, xPred, zPoints, zPred, wc, idxYaw)

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		return errNumericalDivergence("innovation covariance is singular")
	}
	var k mat.Dense
	k.Mul(t, &sInv)

	u.X = xPred
	u.P = pPred
	u.ZPred = zPred
	u.S = s
	u.K = &k
	u.sigmaPointsPred = sigmaPred

	return nil
}

// DetS returns det(S), the innovation covariance determinant used by
// both the max-determinant gating rule and the divergence guard.
func (u *UKF) DetS() float64 {
	return mat.Det(u.S)
}

// ApplyUpdate applies the shared-measurement PDA update to this
// filter's state and covariance:
//
//	x <- x + K*sigmaX
//	P <- beta0*Pold + (1-beta0)*(Pold - K*S*K^T) + K*sigmaP*K^T   (measurementCount > 0)
//	P <- Pold - K*S*K^T                                            (measurementCount == 0)
func (u *UKF) ApplyUpdate(sigmaX *mat.VecDense, sigmaP *mat.SymDense, beta0 float64, measurementCount int) {
	var dx mat.Dense
	dx.Mul(u.K, sigmaX)
	xNew := mat.NewVecDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		xNew.SetVec(i, u.X.AtVec(i)+dx.At(i, 0))
	}
	xNew.SetVec(idxYaw, normalizeYaw(xNew.AtVec(idxYaw)))

	var ks, kskt mat.Dense
	ks.Mul(u.K, u.S)
	kskt.Mul(&ks, u.K.T())

	pOld := u.P
	pUpdatedNoPDA := subtractSym(pOld, &kskt)

	var pNew *mat.SymDense
	if measurementCount > 0 {
		var kSigmaP, kSigmaPKt mat.Dense
		kSigmaP.Mul(u.K, sigmaP)
		kSigmaPKt.Mul(&kSigmaP, u.K.T())

		n, _ := pOld.Dims()
		combined := mat.NewSymDense(n, nil)
		for r := 0; r < n; r++ {
			for c := r; c < n; c++ {
				v := beta0*pOld.At(r, c) + (1-beta0)*pUpdatedNoPDA.At(r, c) + kSigmaPKt.At(r, c)
				combined.SetSym(r, c, v)
			}
		}
		pNew = combined
	} else {
		pNew = pUpdatedNoPDA
	}

	u.X = xNew
	u.P = pNew
}

// subtractSym returns a - b as a SymDense, assuming both are square
// of equal dimension and the result is symmetric (true for P - K*S*K^T
// since K*S*K^T is symmetric when S is).
func subtractSym(a *mat.SymDense, b mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	out := mat.NewSymDense(n, nil)
	for r := 0; r < n; r++ {
		for c := r; c < n; c++ {
			out.SetSym(r, c, a.At(r, c)-b.At(r, c))
		}
	}
	return out
}

// MahalanobisSq computes (z - ZPred)^T S^-1 (z - ZPred) for a
// candidate measurement, the gating statistic.
func (u *UKF) MahalanobisSq(z *mat.VecDense) (float64, error) {
	var sInv mat.Dense
	if err := sInv.Inverse(u.S); err != nil {
		return math.NaN(), errNumericalDivergence("innovation covariance is singular during gating")
	}
	diff := mat.NewVecDense(measDim, nil)
	diff.SubVec(z, u.ZPred)
	var tmp mat.VecDense
	tmp.MulVec(&sInv, diff)
	return mat.Dot(diff, &tmp), nil
}
