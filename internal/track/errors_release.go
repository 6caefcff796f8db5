//go:build !debug

package track

// onAssertFailure logs in production builds rather than panicking:
// per the error-handling design, a per-frame InconsistentOutput
// violation is fail-loud in debug but must not take down a live
// tracker process.
func onAssertFailure(msg string) {
	Logf("track: invariant violated: %s", msg)
}
