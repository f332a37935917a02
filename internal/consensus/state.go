package consensus

// NodeState is the externally visible state of a node, shaped like the
// getState reply {killed, x, decided, k}. Nil fields are unset.
type NodeState struct {
	Killed  bool   `json:"killed"`
	X       *Value `json:"x"`
	Decided *bool  `json:"decided"`
	K       *int   `json:"k"`
}

// HasDecided reports whether the node reached a final decision.
func (s NodeState) HasDecided() bool {
	return s.Decided != nil && *s.Decided
}

// nodeState is the engine's mutable record. active is false until the node
// starts or is pulled into the protocol by a vote quorum.
type nodeState struct {
	killed  bool
	active  bool
	value   Value
	decided bool
	round   int
}

func (s nodeState) snapshot() NodeState {
	out := NodeState{Killed: s.killed}
	if !s.active {
		return out
	}
	x, decided, k := s.value, s.decided, s.round
	out.X = &x
	out.Decided = &decided
	out.K = &k
	return out
}
