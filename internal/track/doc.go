// Package track implements a multi-object tracking core over 3-D
// perception detections. Each track carries an Interacting Multiple
// Model bank of three Unscented Kalman Filters (constant velocity,
// constant turn-rate-and-velocity, and near-stationary random
// motion), associates incoming detections with Probabilistic Data
// Association under chi-square gating, and stabilizes an output
// bounding box across frames.
//
// The tracker is single-threaded and cooperative: callers drive it
// frame by frame through Tracker.Tick. Nothing in this package spawns
// goroutines or touches a clock; timestamps are supplied by the
// caller.
package track
