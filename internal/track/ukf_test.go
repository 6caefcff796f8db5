package track

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGenerateSigmaPointsSymmetricAboutMean(t *testing.T) {
	x := mat.NewVecDense(stateDim, []float64{1, 2, 3, 0.5, 0})
	p := newInitialCovariance()
	lambda, _, _ := sigmaWeights(stateDim)

	points, err := generateSigmaPoints(x, p, lambda)
	require.NoError(t, err)
	require.Len(t, points, 2*stateDim+1)

	// point 0 is the mean itself.
	for i := 0; i < stateDim; i++ {
		assert.InDelta(t, x.AtVec(i), points[0].AtVec(i), 1e-9)
	}

	// plus/minus pairs should average back to the mean.
	for i := 0; i < stateDim; i++ {
		plus := points[1+i]
		minus := points[1+stateDim+i]
		for k := 0; k < stateDim; k++ {
			avg := (plus.AtVec(k) + minus.AtVec(k)) / 2
			assert.InDelta(t, x.AtVec(k), avg, 1e-6)
		}
	}
}

func TestUKFPredictCVMovesForward(t *testing.T) {
	x := mat.NewVecDense(stateDim, []float64{0, 0, 2, 0, 0}) // moving at 2 m/s along +x
	p := newInitialCovariance()
	u := NewUKF(ModelCV, x, p)

	require.NoError(t, u.Predict(1.0))

	assert.InDelta(t, 2.0, u.X.AtVec(idxPX), 0.5)
	assert.InDelta(t, 0.0, u.X.AtVec(idxPY), 0.5)
	assert.False(t, math.IsNaN(u.DetS()))
	assert.Greater(t, u.DetS(), 0.0)
}

func TestUKFPredictRMDecaysVelocity(t *testing.T) {
	x := mat.NewVecDense(stateDim, []float64{5, 5, 3, 0, 0})
	p := newInitialCovariance()
	u := NewUKF(ModelRM, x, p)

	require.NoError(t, u.Predict(1.0))

	assert.Less(t, u.X.AtVec(idxV), 3.0)
	assert.InDelta(t, 5.0, u.X.AtVec(idxPX), 1e-6)
	assert.InDelta(t, 5.0, u.X.AtVec(idxPY), 1e-6)
}

func TestUKFPredictCTRVFallsBackToCVWhenYawRateTiny(t *testing.T) {
	x := mat.NewVecDense(stateDim, []float64{0, 0, 1, 0, 0})
	p := newInitialCovariance()
	u := NewUKF(ModelCTRV, x, p)

	require.NoError(t, u.Predict(1.0))
	assert.InDelta(t, 1.0, u.X.AtVec(idxPX), 0.5)
}

func TestNormalizeYawWraps(t *testing.T) {
	assert.InDelta(t, 0.0, normalizeYaw(0), 1e-9)
	assert.InDelta(t, math.Pi, normalizeYaw(math.Pi), 1e-9)
	assert.InDelta(t, -math.Pi+0.1, normalizeYaw(math.Pi+0.1), 1e-9)
	assert.InDelta(t, math.Pi-0.1, normalizeYaw(-math.Pi-0.1), 1e-9)
}

func TestApplyUpdateMovesTowardMeasurement(t *testing.T) {
	x := mat.NewVecDense(stateDim, []float64{0, 0, 1, 0, 0})
	p := newInitialCovariance()
	u := NewUKF(ModelCV, x, p)
	require.NoError(t, u.Predict(1.0))

	sigmaX := mat.NewVecDense(measDim, []float64{0.5, 0.1})
	sigmaP := mat.NewSymDense(measDim, nil)
	u.ApplyUpdate(sigmaX, sigmaP, 0.1, 1)

	assert.False(t, math.IsNaN(u.X.AtVec(idxPX)))
	assert.False(t, math.IsNaN(u.P.At(0, 0)))
}
