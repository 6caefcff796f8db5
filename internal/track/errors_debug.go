//go:build debug

package track

// onAssertFailure panics in binaries built with `-tags debug`, so an
// InconsistentOutput violation is loud in development and CI.
func onAssertFailure(msg string) {
	panic("track: invariant violated: " + msg)
}
