//go:build torrentdebug

package session

// checkInvariant panics with an InvariantViolation when built with the
// torrentdebug tag. Release builds (the default) compile this to a no-op,
// matching the teacher's own assert()-is-a-debug-build discipline
// (session.cpp's check_invariant is wrapped in #ifndef NDEBUG).
func checkInvariant(cond bool, what string) {
	if !cond {
		panic(&InvariantViolation{What: what})
	}
}
