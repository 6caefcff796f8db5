package track

import "math"

// candidateBB is a detection reinterpreted as a bounding-box
// candidate: pose plus dimensions, the shape bbox stabilization
// consumes.
type candidateBB struct {
	pose Pose
	dims Dimensions
}

// StabilizeBBox implements the bounding-box stabilizer: once a track
// is Stable and has accumulated enough gated lifetime, it picks the
// nearest gated detection to (x_merge.px, x_merge.py) within
// distance_thres and folds it into the running best box, suppressing
// yaw jitter and never shrinking the reported footprint from a
// transient occlusion.
func (t *Track) StabilizeBBox(cfg TrackerConfig, gated []Detection) {
	if t.TrackingNum != TrackingStable || t.Lifetime < cfg.LifeTimeThres {
		return
	}
	if len(gated) == 0 {
		return
	}

	px, py := t.XMerge.AtVec(idxPX), t.XMerge.AtVec(idxPY)

	bestIdx := -1
	bestDist := math.Inf(1)
	for i, d := range gated {
		dist := math.Hypot(d.X-px, d.Y-py)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	if bestIdx < 0 || bestDist >= cfg.DistanceThres {
		return
	}

	candidate := candidateBB{
		pose: Pose{X: gated[bestIdx].X, Y: gated[bestIdx].Y, Z: gated[bestIdx].Z, Yaw: gated[bestIdx].Yaw},
		dims: Dimensions{DX: gated[bestIdx].DX, DY: gated[bestIdx].DY, DZ: gated[bestIdx].DZ},
	}

	if !t.HasBestBB {
		t.StabilizedBB = BoundingBox{Pose: candidate.pose, Dimensions: candidate.dims}
		t.BestYaw = candidate.pose.Yaw
		t.HasBestBB = true
		return
	}

	yaw := candidate.pose.Yaw
	if dyaw := normalizeYaw(candidate.pose.Yaw - t.BestYaw); math.Abs(dyaw) < cfg.BBYawChangeThres {
		t.BestYaw = candidate.pose.Yaw
	} else {
		// Jitter suppression: keep the last accepted heading.
		yaw = t.BestYaw
	}

	dims := t.StabilizedBB.Dimensions
	if candidate.dims.Area() > dims.Area() {
		dims = candidate.dims
	}
	// A shrinking candidate keeps the best-known dimensions but still
	// relocates to the current pose: LiDAR cluster extent tends to grow
	// toward the true extent as more surface is observed.

	t.StabilizedBB = BoundingBox{
		Pose: Pose{X: candidate.pose.X, Y: candidate.pose.Y, Z: candidate.pose.Z, Yaw: yaw},
		Dimensions: dims,
	}
}
