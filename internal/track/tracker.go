package track

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/lidartrack/imm-ukf-pda/internal/units"
)

// TickStats is per-frame telemetry: how many tracks were live, how
// many new tracks were spawned from unclaimed detections, and how
// many were pruned after entering Die. This mirrors the original
// node's per-callback CSV timing log without pulling file I/O into
// the core. Tick itself never touches a clock, so wall-clock timing
// is left to a caller that wants to wrap Tick with its own timer.
type TickStats struct {
	RunID      string
	TrackCount int
	Spawned    int
	Pruned     int
}

// Tracker owns the full set of live tracks and drives them through
// one frame at a time via Tick. It is not safe for concurrent use;
// per the concurrency model, a single caller drives ticks
// sequentially.
type Tracker struct {
	cfg TrackerConfig
	dbg DebugCollector

	tracks        []*Track
	nextID        int
	lastTimestamp float64
	hasTicked     bool

	// TracksCreated/TracksConfirmed accumulate across the tracker's
	// lifetime: how many tracks were ever spawned, and how many of
	// those ever reached Stable. Useful tracking-quality telemetry a
	// caller would otherwise have to re-derive from per-tick output.
	TracksCreated   int
	TracksConfirmed int

	confirmedSeen map[int]bool
}

// NewTracker validates cfg and constructs an empty tracker. Per the
// InvalidConfig error kind, a bad configuration is rejected here and
// the tracker never starts.
func NewTracker(cfg TrackerConfig, dbg DebugCollector) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("track: invalid configuration: %w", err)
	}
	if dbg == nil {
		dbg = noopDebugCollector{}
	}
	return &Tracker{
		cfg:           cfg,
		dbg:           dbg,
		confirmedSeen: make(map[int]bool),
	}, nil
}

// Reset drops all live tracks and telemetry counters but keeps the
// tracker's configuration and monotonic ID counter, so previously
// emitted IDs are never reused.
func (t *Tracker) Reset() {
	t.tracks = nil
	t.hasTicked = false
	t.TracksCreated = 0
	t.TracksConfirmed = 0
	t.confirmedSeen = make(map[int]bool)
}

func newInitialCovariance() *mat.SymDense {
	p := mat.NewSymDense(stateDim, nil)
	p.SetSym(idxPX, idxPX, 1.0)
	p.SetSym(idxPY, idxPY, 1.0)
	p.SetSym(idxV, idxV, 10.0)
	p.SetSym(idxYaw, idxYaw, 10.0)
	p.SetSym(idxYawRate, idxYawRate, 10.0)
	return p
}

// spawnTrack creates a new Init-state track from an unclaimed
// detection: UKF initialized with position only (v=0, yaw=0,
// yaw_rate=0), matching initTracker/makeNewTargets construction.
func (t *Tracker) spawnTrack(d Detection) *Track {
	id := t.nextID
	t.nextID++

	x := mat.NewVecDense(stateDim, []float64{d.X, d.Y, 0, 0, 0})
	p := newInitialCovariance()

	tr := &Track{
		ID:          id,
		Bank:        NewIMMBank(t.cfg, x, p),
		TrackingNum: TrackingInit,
		InitMeas:    mat.NewVecDense(measDim, []float64{d.X, d.Y}),
	}
	tr.XMerge, tr.PMerge = tr.Bank.Combine()

	t.TracksCreated++
	return tr
}

// Tick advances every live track by one frame: predict, per-track
// PDA (gate -> associate -> combined update), IMM mode update,
// new-track spawn from unclaimed detections, static classification,
// bounding-box stabilization, and pruning of tracks that entered Die
// this frame.
func (t *Tracker) Tick(timestamp float64, detections []Detection) ([]TrackedObject, TickStats, error) {
	runID := uuid.NewString()

	dt := 0.0
	if t.hasTicked {
		dt = timestamp - t.lastTimestamp
	}
	t.lastTimestamp = timestamp
	t.hasTicked = true

	claimed := make([]bool, len(detections))

	for _, tr := range t.tracks {
		if tr.TrackingNum == TrackingDie {
			continue
		}

		// Divergence guard before predict: an exploded merged covariance
		// means this track's state estimate can no longer be trusted, so
		// it dies rather than propagate garbage.
		if tr.PMerge != nil {
			detP := mat.Det(tr.PMerge)
			if detP != detP || detP > t.cfg.DetExplodeParam || tr.PMerge.At(idxYawRate, idxYawRate) > t.cfg.CovExplodeParam {
				reportDivergence(tr.ID, "P_merge exploded before predict")
				tr.TrackingNum = TrackingDie
				continue
			}
		}

		if dt > 0 {
			if err := tr.Bank.Predict(dt); err != nil {
				reportDivergence(tr.ID, err.Error())
				tr.TrackingNum = TrackingDie
				continue
			}
		}

		gated, maxModel, detSMax, err := gate(tr.Bank, detections, t.cfg, runID, tr.ID, t.dbg)
		if err != nil {
			reportDivergence(tr.ID, err.Error())
			tr.TrackingNum = TrackingDie
			continue
		}

		matched := len(gated) > 0

		if tr.TrackingNum == TrackingInit {
			seed := secondInit(tr.Bank, gated, tr.InitMeas, dt)
			if seed.matched {
				position := mat.NewVecDense(measDim, []float64{
					detections[seed.detection].X,
					detections[seed.detection].Y,
				})
				seedFromSecondInit(tr.Bank, position, seed)
				if !claimed[seed.detection] {
					claimed[seed.detection] = true
					tr.Lifetime++
				}
			}
			tr.TrackingNum = AdvanceTrackingNum(tr.TrackingNum, seed.matched)
			tr.XMerge, tr.PMerge = tr.Bank.Combine()
			continue
		}

		result := applyPDA(tr.Bank, gated, maxModel, detSMax, t.cfg, runID, tr.ID, t.dbg)
		tr.Bank.ModeUpdate(result.lambda)

		for _, g := range gated {
			if !claimed[g.index] {
				claimed[g.index] = true
				tr.Lifetime++
			}
		}

		tr.TrackingNum = AdvanceTrackingNum(tr.TrackingNum, matched)
		tr.XMerge, tr.PMerge = tr.Bank.Combine()

		tr.ClassifyStatic(t.cfg)

		gatedDetections := make([]Detection, len(gated))
		for i, g := range gated {
			gatedDetections[i] = detections[g.index]
		}
		tr.StabilizeBBox(t.cfg, gatedDetections)

		if tr.TrackingNum == TrackingStable && !t.confirmedSeen[tr.ID] {
			t.confirmedSeen[tr.ID] = true
			t.TracksConfirmed++
		}
	}

	spawned := 0
	for i, d := range detections {
		if !claimed[i] {
			t.tracks = append(t.tracks, t.spawnTrack(d))
			spawned++
		}
	}

	live := t.tracks[:0]
	pruned := 0
	for _, tr := range t.tracks {
		if tr.TrackingNum == TrackingDie {
			pruned++
			continue
		}
		live = append(live, tr)
	}
	t.tracks = live

	objects := make([]TrackedObject, 0, len(t.tracks))
	for _, tr := range t.tracks {
		objects = append(objects, t.toTrackedObject(tr))
	}

	assertInvariant(len(objects) == len(t.tracks), "output count %d != live track count %d", len(objects), len(t.tracks))

	return objects, TickStats{
		RunID:      runID,
		TrackCount: len(t.tracks),
		Spawned:    spawned,
		Pruned:     pruned,
	}, nil
}

func (t *Tracker) toTrackedObject(tr *Track) TrackedObject {
	speed := tr.XMerge.AtVec(idxV)
	yaw := tr.XMerge.AtVec(idxYaw)

	pose := Pose{X: tr.XMerge.AtVec(idxPX), Y: tr.XMerge.AtVec(idxPY), Yaw: yaw}
	dims := Dimensions{}
	if tr.HasBestBB {
		pose = tr.StabilizedBB.Pose
		dims = tr.StabilizedBB.Dimensions
	}

	return TrackedObject{
		ID:             tr.ID,
		Pose:           pose,
		Dimensions:     dims,
		LinearVelocity: Velocity{X: speed, Y: yaw},
		Label:          Label(tr.IsStatic, tr.TrackingNum),
		ColorLabel:     ColorLabel(tr.IsStatic, tr.TrackingNum),
		IsStatic:       tr.IsStatic,
		DebugLabel:     fmt.Sprintf("%d %d %.2f km/h", tr.ID, tr.TrackingNum, units.ConvertSpeed(speed, units.KMPH)),
	}
}
