package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func newStableTrack(t *testing.T, px, py float64) *Track {
	t.Helper()
	cfg := DefaultTrackerConfig()
	x := mat.NewVecDense(stateDim, []float64{px, py, 0, 0, 0})
	p := newInitialCovariance()
	tr := &Track{
		ID:          1,
		Bank:        NewIMMBank(cfg, x, p),
		TrackingNum: TrackingStable,
		Lifetime:    cfg.LifeTimeThres + 1,
	}
	tr.XMerge, tr.PMerge = tr.Bank.Combine()
	return tr
}

func TestStabilizeBBoxAdoptsFirstCandidate(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := newStableTrack(t, 10, 0)

	gated := []Detection{{X: 10, Y: 0, Yaw: 0.1, DX: 2, DY: 1, DZ: 1}}
	tr.StabilizeBBox(cfg, gated)

	assert.True(t, tr.HasBestBB)
	assert.InDelta(t, 0.1, tr.BestYaw, 1e-9)
	assert.InDelta(t, 2.0, tr.StabilizedBB.Dimensions.DX, 1e-9)
}

func TestStabilizeBBoxSuppressesYawJitter(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := newStableTrack(t, 10, 0)

	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, Yaw: 0.0, DX: 2, DY: 1, DZ: 1}})
	assert.InDelta(t, 0.0, tr.BestYaw, 1e-9)

	// A large yaw jump beyond the threshold should be suppressed.
	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, Yaw: 1.5, DX: 2, DY: 1, DZ: 1}})
	assert.InDelta(t, 0.0, tr.StabilizedBB.Pose.Yaw, 1e-9)
	assert.InDelta(t, 0.0, tr.BestYaw, 1e-9)
}

func TestStabilizeBBoxNeverShrinksArea(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := newStableTrack(t, 10, 0)

	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, DX: 4, DY: 2}}) // area 8
	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, DX: 1, DY: 1}}) // area 1, smaller

	assert.InDelta(t, 8.0, tr.StabilizedBB.Dimensions.Area(), 1e-9)
}

func TestStabilizeBBoxGrowsArea(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := newStableTrack(t, 10, 0)

	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, DX: 1, DY: 1}}) // area 1
	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, DX: 4, DY: 2}}) // area 8, bigger

	assert.InDelta(t, 8.0, tr.StabilizedBB.Dimensions.Area(), 1e-9)
}

func TestStabilizeBBoxIgnoredWhenNotStable(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := newStableTrack(t, 10, 0)
	tr.TrackingNum = 2

	tr.StabilizeBBox(cfg, []Detection{{X: 10, Y: 0, DX: 4, DY: 2}})
	assert.False(t, tr.HasBestBB)
}

func TestStabilizeBBoxIgnoredWhenTooFar(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tr := newStableTrack(t, 0, 0)

	tr.StabilizeBBox(cfg, []Detection{{X: 1000, Y: 1000, DX: 4, DY: 2}})
	assert.False(t, tr.HasBestBB)
}
