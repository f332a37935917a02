package consensus

// Counts is the number of 0, 1 and "?" entries recorded for a round.
type Counts struct {
	Zero      int
	One       int
	Undecided int
}

// Total returns the number of entries.
func (c Counts) Total() int {
	return c.Zero + c.One + c.Undecided
}

func (c *Counts) add(v Value) {
	switch v {
	case Zero:
		c.Zero++
	case One:
		c.One++
	default:
		c.Undecided++
	}
}

type roundTally struct {
	values   []Value
	counts   Counts
	resolved bool
}

// Tally accumulates same-phase messages per round and reports the single
// moment each round first reaches the quorum.
// It is not safe for concurrent use; the owning Engine serializes access.
type Tally struct {
	quorum int
	rounds map[int]*roundTally
}

// NewTally creates a tally that resolves a round at quorum entries.
func NewTally(quorum int) *Tally {
	return &Tally{
		quorum: quorum,
		rounds: make(map[int]*roundTally),
	}
}

// Add records v for round. It returns the round's counts and true only on
// the call that first brings the round to the quorum. Later calls for a
// resolved round keep accumulating but return false.
func (t *Tally) Add(round int, v Value) (Counts, bool) {
	rt, ok := t.rounds[round]
	if !ok {
		rt = &roundTally{}
		t.rounds[round] = rt
	}
	rt.values = append(rt.values, v)
	rt.counts.add(v)

	if rt.resolved || len(rt.values) < t.quorum {
		return rt.counts, false
	}
	rt.resolved = true
	return rt.counts, true
}

// Counts returns the counts recorded for round.
func (t *Tally) Counts(round int) Counts {
	if rt, ok := t.rounds[round]; ok {
		return rt.counts
	}
	return Counts{}
}

// Values returns a copy of the entries recorded for round, in arrival order.
func (t *Tally) Values(round int) []Value {
	rt, ok := t.rounds[round]
	if !ok {
		return nil
	}
	return append([]Value(nil), rt.values...)
}

// Resolved reports whether round has already crossed the quorum.
func (t *Tally) Resolved(round int) bool {
	rt, ok := t.rounds[round]
	return ok && rt.resolved
}

// Len returns the number of rounds with at least one entry.
func (t *Tally) Len() int {
	return len(t.rounds)
}
