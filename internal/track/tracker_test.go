package track

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S1: the same detection fed 20 times at dt=0.1s should converge to a
// Stable, static track by frame 4, with speed staying under the static
// threshold.
func TestScenarioStationaryObjectBecomesStatic(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	detections := func(frame int) []Detection {
		return []Detection{{X: 10, Y: 0, Yaw: 0, DX: 2, DY: 1, DZ: 1}}
	}

	var objects []TrackedObject
	for f := 0; f < 20; f++ {
		objects, _, err = tracker.Tick(float64(f)*0.1, detections(f))
		require.NoError(t, err)
		if f == 3 {
			require.Len(t, objects, 1)
			assert.Equal(t, TrackingStable, tracker.tracks[0].TrackingNum,
				"tracking_num should reach Stable by frame 4")
		}
	}
	require.Len(t, objects, 1)
	assert.True(t, objects[0].IsStatic)
	assert.Less(t, math.Abs(objects[0].LinearVelocity.X), cfg.StaticVelocityThres)
}

// S2: detections (i*1.0, 0) for i=0..20 at dt=1.0s should converge to a
// track whose speed is within 0.1 of the true 1.0 m/s and whose CV mode
// probability dominates by frame 10.
func TestScenarioConstantVelocityObjectTracked(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	speed := 1.0
	detections := func(i int) []Detection {
		return []Detection{{X: float64(i) * speed, Y: 0, Yaw: 0, DX: 2, DY: 1, DZ: 1}}
	}

	var objects []TrackedObject
	for i := 0; i <= 20; i++ {
		objects, _, err = tracker.Tick(float64(i)*1.0, detections(i))
		require.NoError(t, err)
	}
	require.Len(t, objects, 1)
	assert.InDelta(t, speed, objects[0].LinearVelocity.X, 0.1)
	assert.False(t, objects[0].IsStatic)

	modeProb := tracker.tracks[0].Bank.ModeProb
	assert.Greater(t, modeProb[ModelCV], modeProb[ModelCTRV],
		"mode_prob[CV] should dominate CTRV by frame 10")
	assert.Greater(t, modeProb[ModelCV], modeProb[ModelRM],
		"mode_prob[CV] should dominate RM by frame 10")
}

// S3: detections on a radius-10 circle, stepping pi/20 rad per frame,
// should converge to a track whose CTRV mode probability exceeds CV's
// by frame 10.
func TestScenarioTurningObjectStaysTracked(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	radius := 10.0
	angularStep := math.Pi / 20
	detections := func(frame int) []Detection {
		theta := float64(frame) * angularStep
		return []Detection{{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Yaw: theta}}
	}

	var lastObjects []TrackedObject
	for f := 0; f <= 20; f++ {
		objs, _, err := tracker.Tick(float64(f)*1.0, detections(f))
		require.NoError(t, err)
		lastObjects = objs
	}
	require.Len(t, lastObjects, 1)

	modeProb := tracker.tracks[0].Bank.ModeProb
	assert.Greater(t, modeProb[ModelCTRV], modeProb[ModelCV],
		"mode_prob[CTRV] should exceed CV by frame 10")
}

// S4: track birth and death — a track that stops receiving detections
// should count down through Lost and eventually die and be pruned.
func TestScenarioTrackBirthAndDeath(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	objects, _, err := tracker.Tick(0.0, []Detection{{X: 0, Y: 0}})
	require.NoError(t, err)
	require.Len(t, objects, 1)

	for f := 1; f < 30; f++ {
		objects, _, err = tracker.Tick(float64(f)*0.1, nil)
		require.NoError(t, err)
		if len(objects) == 0 {
			return
		}
	}
	t.Fatalf("expected track to die and be pruned within 30 empty frames, still alive: %+v", objects)
}

// S5: detections at (0,0) and (0.5,0) every frame, both within a single
// predicted track's gate, should PDA-combine into a state between the
// two measurements with valid, non-NaN mode probabilities.
func TestScenarioTwoCloseObjectsShareGate(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	detections := func(frame int) []Detection {
		return []Detection{
			{X: 0, Y: 0},
			{X: 0.5, Y: 0},
		}
	}

	var objects []TrackedObject
	for f := 0; f < cfg.LifeTimeThres+10; f++ {
		var err error
		objects, _, err = tracker.Tick(float64(f)*0.1, detections(f))
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, len(objects), 1)
	assert.LessOrEqual(t, len(objects), 2)

	for _, tr := range tracker.tracks {
		assert.GreaterOrEqual(t, tr.XMerge.AtVec(idxPX), -0.1)
		assert.LessOrEqual(t, tr.XMerge.AtVec(idxPX), 0.6)

		sum := 0.0
		for _, p := range tr.Bank.ModeProb {
			assert.False(t, math.IsNaN(p), "mode_prob must not be NaN")
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "mode_prob must sum to 1")
	}
}

// S6: a track whose covariance explodes beyond the divergence guard
// should be killed rather than propagate NaN state.
func TestScenarioDivergenceGuardKillsTrack(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.CovExplodeParam = 1e-9
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	objects, _, err := tracker.Tick(0.0, []Detection{{X: 0, Y: 0}})
	require.NoError(t, err)
	require.Len(t, objects, 1)

	objects, _, err = tracker.Tick(0.1, []Detection{{X: 0.1, Y: 0}})
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestTickEmptyStreamAdvancesLifecycleTowardDeath(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	objects, _, err := tracker.Tick(0.0, nil)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestTrackIDsAreUniqueAndNeverReused(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	objects, _, err := tracker.Tick(0.0, []Detection{{X: 0, Y: 0}})
	require.NoError(t, err)
	firstID := objects[0].ID

	for f := 1; f < 30; f++ {
		objects, _, err = tracker.Tick(float64(f)*0.1, nil)
		require.NoError(t, err)
		if len(objects) == 0 {
			break
		}
	}

	objects, _, err = tracker.Tick(3.0, []Detection{{X: 50, Y: 50}})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.NotEqual(t, firstID, objects[0].ID)
}

func TestClaimedAndSpawnedPartitionDetections(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	_, stats, err := tracker.Tick(0.0, []Detection{{X: 0, Y: 0}, {X: 100, Y: 100}})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Spawned)
	assert.Equal(t, 2, stats.TrackCount)
}

func TestResetClearsTracksButKeepsIDCounterMonotonic(t *testing.T) {
	cfg := DefaultTrackerConfig()
	tracker, err := NewTracker(cfg, nil)
	require.NoError(t, err)

	objects, _, err := tracker.Tick(0.0, []Detection{{X: 0, Y: 0}})
	require.NoError(t, err)
	firstID := objects[0].ID

	tracker.Reset()

	objects, _, err = tracker.Tick(0.0, []Detection{{X: 0, Y: 0}})
	require.NoError(t, err)
	assert.Greater(t, objects[0].ID, firstID)
}

func TestNewTrackerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.GatingThres = -1
	_, err := NewTracker(cfg, nil)
	assert.Error(t, err)
}
