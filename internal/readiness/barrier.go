package readiness

import (
	"context"
	"sort"
	"sync"
)

// Barrier is a one-shot gate over a fixed set of node ids 0..n-1.
type Barrier struct {
	mu    sync.Mutex
	n     int
	ready map[int]bool
	done  chan struct{}
}

// NewBarrier creates a barrier for n nodes. A barrier for zero nodes is open.
func NewBarrier(n int) *Barrier {
	b := &Barrier{
		n:     n,
		ready: make(map[int]bool, n),
		done:  make(chan struct{}),
	}
	if n <= 0 {
		close(b.done)
	}
	return b
}

// MarkReady records node id as ready. Unknown ids and repeats are ignored.
// It reports whether this call opened the barrier.
func (b *Barrier) MarkReady(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id < 0 || id >= b.n || b.ready[id] {
		return false
	}
	b.ready[id] = true
	if len(b.ready) == b.n {
		close(b.done)
		return true
	}
	return false
}

// IsReady reports whether node id has been marked ready.
func (b *Barrier) IsReady(id int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready[id]
}

// Ready returns how many nodes are ready.
func (b *Barrier) Ready() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready)
}

// Missing returns the ids not yet ready, in ascending order.
func (b *Barrier) Missing() []int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var missing []int
	for id := 0; id < b.n; id++ {
		if !b.ready[id] {
			missing = append(missing, id)
		}
	}
	sort.Ints(missing)
	return missing
}

// Done returns a channel closed when every node is ready.
func (b *Barrier) Done() <-chan struct{} {
	return b.done
}

// Open reports whether the barrier has opened.
func (b *Barrier) Open() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the barrier opens or ctx is done.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
