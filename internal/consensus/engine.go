package consensus

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"benor/internal/quorum"
)

// Config holds the parameters of a single node's engine.
type Config struct {
	NodeID int
	N      int
	F      int
	Faulty bool

	// Rand drives the coin flip. A nil Rand is seeded from the clock.
	Rand     *rand.Rand
	Logger   *zap.Logger
	Observer Observer
}

// Engine is the consensus state machine of one node.
type Engine struct {
	mu        sync.Mutex
	id        int
	n         int
	f         int
	faulty    bool
	state     nodeState
	proposals *Tally
	votes     *Tally
	rng       *rand.Rand

	out Broadcaster
	obs Observer
	log *zap.Logger
}

// NewEngine creates an engine that emits through out.
func NewEngine(cfg Config, out Broadcaster) (*Engine, error) {
	if !quorum.Tolerates(cfg.N, cfg.F) {
		return nil, fmt.Errorf("%w: N=%d F=%d (need N>0, F>=0, 2F<N)", ErrInvalidConfig, cfg.N, cfg.F)
	}
	if cfg.NodeID < 0 || cfg.NodeID >= cfg.N {
		return nil, fmt.Errorf("%w: node id %d outside [0,%d)", ErrInvalidConfig, cfg.NodeID, cfg.N)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: nil broadcaster", ErrInvalidConfig)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano() + int64(cfg.NodeID)))
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	size := quorum.Size(cfg.N, cfg.F)
	return &Engine{
		id:        cfg.NodeID,
		n:         cfg.N,
		f:         cfg.F,
		faulty:    cfg.Faulty,
		proposals: NewTally(size),
		votes:     NewTally(size),
		rng:       rng,
		out:       out,
		obs:       obs,
		log:       log.With(zap.Int("node", cfg.NodeID)),
	}, nil
}

// ID returns the node id.
func (e *Engine) ID() int { return e.id }

// Faulty reports whether the node was configured as faulty.
func (e *Engine) Faulty() bool { return e.faulty }

// Start enters round 1 with initial and proposes it to every peer.
// A faulty or killed node stays silent and its state remains unset.
func (e *Engine) Start(initial Value) error {
	if !initial.IsBinary() {
		return fmt.Errorf("%w: initial value %s", ErrInvalidValue, initial)
	}

	e.mu.Lock()
	if e.faulty || e.state.killed {
		e.mu.Unlock()
		e.log.Info("not participating, start ignored", zap.Bool("faulty", e.faulty))
		return nil
	}
	if e.state.active {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.state.active = true
	e.state.round = 1
	e.state.value = initial
	e.state.decided = false
	e.mu.Unlock()

	e.log.Info("starting consensus", zap.Stringer("x", initial))
	e.emit(NewPropose(1, initial))
	return nil
}

// HandleMessage validates msg and routes it to the matching phase.
func (e *Engine) HandleMessage(msg Message) error {
	if err := msg.Validate(); err != nil {
		e.obs.MessageRejected()
		return err
	}
	switch msg.Type {
	case Propose:
		return e.OnProposal(msg.Round, msg.Value)
	default:
		return e.OnVote(msg.Round, msg.Value)
	}
}

// OnProposal records a proposal for round k. When the round first reaches the
// quorum, the node votes for the strict majority value, or "?" without one.
func (e *Engine) OnProposal(k int, x Value) error {
	if err := NewPropose(k, x).Validate(); err != nil {
		e.obs.MessageRejected()
		return err
	}

	e.mu.Lock()
	if !e.participating() {
		e.mu.Unlock()
		return nil
	}
	e.obs.MessageReceived(Propose, k)

	counts, reached := e.proposals.Add(k, x)
	if !reached {
		e.mu.Unlock()
		return nil
	}

	result := Undecided
	switch {
	case quorum.IsMajority(counts.Zero, e.n):
		result = Zero
	case quorum.IsMajority(counts.One, e.n):
		result = One
	}
	e.mu.Unlock()

	e.log.Debug("proposal quorum reached",
		zap.Int("k", k), zap.Int("count0", counts.Zero), zap.Int("count1", counts.One),
		zap.Stringer("vote", result))
	e.emit(NewVote(k, result))
	return nil
}

// OnVote records a vote for round k. When the round first reaches the quorum
// the node either decides on a value with F+1 votes or moves to round k+1.
func (e *Engine) OnVote(k int, x Value) error {
	if err := NewVote(k, x).Validate(); err != nil {
		e.obs.MessageRejected()
		return err
	}

	e.mu.Lock()
	if !e.participating() {
		e.mu.Unlock()
		return nil
	}
	e.obs.MessageReceived(Vote, k)

	counts, reached := e.votes.Add(k, x)
	if !reached {
		e.mu.Unlock()
		return nil
	}
	if e.state.decided {
		e.mu.Unlock()
		e.log.Debug("vote quorum after decision ignored", zap.Int("k", k))
		return nil
	}

	super := quorum.Supermajority(e.f)
	switch {
	case counts.Zero >= super:
		e.decideLocked(k, Zero)
		round := e.state.round
		e.mu.Unlock()
		e.log.Info("decided", zap.Int("k", k), zap.Int("round", round), zap.Stringer("x", Zero))
		e.obs.Decided(round, Zero)
		return nil
	case counts.One >= super:
		e.decideLocked(k, One)
		round := e.state.round
		e.mu.Unlock()
		e.log.Info("decided", zap.Int("k", k), zap.Int("round", round), zap.Stringer("x", One))
		e.obs.Decided(round, One)
		return nil
	}

	if e.state.active && k+1 <= e.state.round {
		current := e.state.round
		e.mu.Unlock()
		e.log.Debug("stale vote quorum, round not advanced", zap.Int("k", k), zap.Int("current", current))
		return nil
	}

	next := e.adoptLocked(counts)
	e.state.active = true
	e.state.round = k + 1
	e.state.value = next
	e.mu.Unlock()

	e.log.Debug("advancing round",
		zap.Int("k", k+1), zap.Int("count0", counts.Zero), zap.Int("count1", counts.One),
		zap.Stringer("x", next))
	e.obs.RoundAdvanced(k + 1)
	e.emit(NewPropose(k+1, next))
	return nil
}

// Kill stops all further message processing. Existing state is kept.
func (e *Engine) Kill() {
	e.mu.Lock()
	already := e.state.killed
	e.state.killed = true
	e.mu.Unlock()

	if !already {
		e.log.Info("node killed")
	}
}

// State returns a snapshot of the node state.
func (e *Engine) State() NodeState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.snapshot()
}

// participating must be called with e.mu held.
func (e *Engine) participating() bool {
	return !e.faulty && !e.state.killed
}

// decideLocked must be called with e.mu held.
func (e *Engine) decideLocked(k int, v Value) {
	e.state.value = v
	e.state.decided = true
	if !e.state.active || k > e.state.round {
		e.state.round = k
	}
	e.state.active = true
}

// adoptLocked picks the plurality value, flipping a coin on a tie.
// Must be called with e.mu held since rng is not safe for concurrent use.
func (e *Engine) adoptLocked(c Counts) Value {
	switch {
	case c.Zero > c.One:
		return Zero
	case c.One > c.Zero:
		return One
	}
	if e.rng.Intn(2) == 0 {
		return Zero
	}
	return One
}

func (e *Engine) emit(msg Message) {
	e.obs.MessageBroadcast(msg.Type, msg.Round)
	e.out.Broadcast(msg)
}
