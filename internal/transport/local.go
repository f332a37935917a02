package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"benor/internal/consensus"
)

// Common errors for transport operations
var (
	ErrPeerNotFound = errors.New("peer not found")
	ErrClosed       = errors.New("transport closed")
)

// Handler consumes a delivered message.
type Handler func(msg consensus.Message) error

// LocalOptions configures fault injection on a LocalNetwork.
type LocalOptions struct {
	// DropRate is the probability that a send is silently lost.
	DropRate float64
	// DuplicateRate is the probability that a send is delivered twice.
	DuplicateRate float64
	// MaxDelay bounds the random delay applied to each delivery.
	MaxDelay time.Duration
	Seed     int64
}

// LocalStats counts traffic on a LocalNetwork.
type LocalStats struct {
	Sent       int
	Dropped    int
	Duplicated int
	Delivered  int
	Failed     int
}

// LocalNetwork is an in-process network. Every send is delivered on its own
// goroutine, so arrival order is arbitrary.
type LocalNetwork struct {
	mu       sync.Mutex
	idle     *sync.Cond
	handlers map[int]Handler
	inflight int
	closed   bool
	stats    LocalStats

	opts LocalOptions
	rng  *rand.Rand
}

// NewLocalNetwork creates an empty network.
func NewLocalNetwork(opts LocalOptions) *LocalNetwork {
	n := &LocalNetwork{
		handlers: make(map[int]Handler),
		opts:     opts,
		rng:      rand.New(rand.NewSource(opts.Seed)),
	}
	n.idle = sync.NewCond(&n.mu)
	return n
}

// Register attaches the handler for peer id.
func (n *LocalNetwork) Register(id int, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = h
}

// Unregister detaches peer id; later sends to it fail.
func (n *LocalNetwork) Unregister(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.handlers, id)
}

// Send schedules delivery of msg to peer and returns immediately.
func (n *LocalNetwork) Send(ctx context.Context, peer int, msg consensus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	h, ok := n.handlers[peer]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPeerNotFound, peer)
	}

	n.stats.Sent++
	if n.opts.DropRate > 0 && n.rng.Float64() < n.opts.DropRate {
		n.stats.Dropped++
		return nil
	}
	copies := 1
	if n.opts.DuplicateRate > 0 && n.rng.Float64() < n.opts.DuplicateRate {
		n.stats.Duplicated++
		copies = 2
	}

	for i := 0; i < copies; i++ {
		var delay time.Duration
		if n.opts.MaxDelay > 0 {
			delay = time.Duration(n.rng.Int63n(int64(n.opts.MaxDelay)))
		}
		n.inflight++
		go n.deliver(h, msg, delay)
	}
	return nil
}

func (n *LocalNetwork) deliver(h Handler, msg consensus.Message, delay time.Duration) {
	if delay > 0 {
		time.Sleep(delay)
	}
	err := h(msg)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		n.stats.Failed++
	} else {
		n.stats.Delivered++
	}
	n.inflight--
	if n.inflight == 0 {
		n.idle.Broadcast()
	}
}

// Broadcaster returns a consensus.Broadcaster that enqueues msg for every
// registered peer synchronously. Sends made from inside a handler are counted
// before that handler finishes, so Wait observes true quiescence.
func (n *LocalNetwork) Broadcaster(peers []int) consensus.Broadcaster {
	return consensus.BroadcasterFunc(func(msg consensus.Message) {
		for _, p := range peers {
			_ = n.Send(context.Background(), p, msg)
		}
	})
}

// Wait blocks until no delivery is in flight.
func (n *LocalNetwork) Wait() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.inflight > 0 {
		n.idle.Wait()
	}
}

// Close rejects further sends. In-flight deliveries still complete.
func (n *LocalNetwork) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
}

// Stats returns a copy of the traffic counters.
func (n *LocalNetwork) Stats() LocalStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}
