package readiness

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeerStatus is what the watcher last learned about a peer.
type PeerStatus int

const (
	Unknown PeerStatus = iota
	Unreachable
	Ready
)

// String returns the string representation of PeerStatus.
func (s PeerStatus) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case Unreachable:
		return "UNREACHABLE"
	case Ready:
		return "READY"
	default:
		return "INVALID"
	}
}

// ProbeFunc checks whether peer is up. A nil error marks it ready.
type ProbeFunc func(ctx context.Context, peer int) error

// Watcher probes peers on an interval and marks responsive ones ready on a
// Barrier. It stops probing once the barrier opens.
type Watcher struct {
	mu       sync.RWMutex
	barrier  *Barrier
	peers    []int
	status   map[int]PeerStatus
	interval time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher over peers. A non-positive interval defaults to
// 100ms.
func NewWatcher(b *Barrier, peers []int, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	status := make(map[int]PeerStatus, len(peers))
	for _, p := range peers {
		status[p] = Unknown
	}
	return &Watcher{
		barrier:  b,
		peers:    append([]int(nil), peers...),
		status:   status,
		interval: interval,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the probe loop. The first probe round runs immediately.
func (w *Watcher) Start(probeFn ProbeFunc) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			w.probe(probeFn)
			select {
			case <-w.ctx.Done():
				return
			case <-w.barrier.Done():
				w.log.Info("all peers ready", zap.Int("peers", len(w.peers)))
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the probe loop and waits for it to exit.
func (w *Watcher) Stop() {
	w.cancel()
	w.wg.Wait()
}

// probe checks every peer not yet ready, in parallel.
func (w *Watcher) probe(probeFn ProbeFunc) {
	var wg sync.WaitGroup
	for _, peer := range w.peers {
		if w.barrier.IsReady(peer) {
			continue
		}
		wg.Add(1)
		go func(p int) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(w.ctx, w.interval)
			defer cancel()
			err := probeFn(ctx, p)

			w.mu.Lock()
			defer w.mu.Unlock()
			if err != nil {
				if w.status[p] != Unreachable {
					w.log.Debug("peer not ready", zap.Int("peer", p), zap.Error(err))
				}
				w.status[p] = Unreachable
				return
			}
			w.status[p] = Ready
			w.barrier.MarkReady(p)
			w.log.Debug("peer ready", zap.Int("peer", p))
		}(peer)
	}
	wg.Wait()
}

// Snapshot returns the last known status of every peer.
func (w *Watcher) Snapshot() map[int]PeerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make(map[int]PeerStatus, len(w.status))
	for p, s := range w.status {
		out[p] = s
	}
	return out
}
