package quorum

// Size returns the number of same-phase messages a node waits for in a round.
func Size(n, f int) int {
	return n - f
}

// Supermajority returns the number of identical votes that decides a value.
func Supermajority(f int) int {
	return f + 1
}

// IsMajority reports whether count is strictly more than half of n.
func IsMajority(count, n int) bool {
	return 2*count > n
}

// Tolerates reports whether a cluster of n nodes can tolerate f faulty ones.
func Tolerates(n, f int) bool {
	return n > 0 && f >= 0 && 2*f < n
}
