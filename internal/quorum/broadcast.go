package quorum

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultPerPeerTimeout is the default timeout for each peer send.
	DefaultPerPeerTimeout = 2 * time.Second
)

// BroadcastResult represents the outcome of a fan-out to every peer.
type BroadcastResult struct {
	Delivered    int
	Peers        int
	Failed       []int
	ErrorMessage string
}

// Complete reports whether every peer accepted the message.
func (r BroadcastResult) Complete() bool {
	return r.Peers > 0 && r.Delivered == r.Peers
}

// PeerSendFunc delivers one message to a single peer.
type PeerSendFunc func(ctx context.Context, peer int) error

// DoBroadcast sends to all peers in parallel and waits for every attempt to
// finish or for ctx to be cancelled. Nothing is retried.
func DoBroadcast(ctx context.Context, peers []int, perPeerTimeout time.Duration, sendFn PeerSendFunc) BroadcastResult {
	if len(peers) == 0 {
		return BroadcastResult{
			ErrorMessage: "no peers provided",
		}
	}
	if perPeerTimeout <= 0 {
		perPeerTimeout = DefaultPerPeerTimeout
	}

	var (
		mu        sync.Mutex
		delivered int
		failed    []int
		errs      []error
		wg        sync.WaitGroup
	)

	peerCtx, cancel := context.WithTimeout(ctx, perPeerTimeout)
	defer cancel()

	for _, peer := range peers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()

			err := sendFn(peerCtx, p)
			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				delivered++
				return
			}
			failed = append(failed, p)
			errs = append(errs, fmt.Errorf("peer %d: %w", p, err))
		}(peer)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return BroadcastResult{
			Delivered:    delivered,
			Peers:        len(peers),
			Failed:       append([]int(nil), failed...),
			ErrorMessage: fmt.Sprintf("context cancelled: %v", ctx.Err()),
		}
	}

	mu.Lock()
	defer mu.Unlock()

	sort.Ints(failed)
	result := BroadcastResult{
		Delivered: delivered,
		Peers:     len(peers),
		Failed:    failed,
	}
	if len(errs) > 0 {
		result.ErrorMessage = fmt.Sprintf("delivered=%d peers=%d errors=%v",
			delivered, len(peers), errs[:min(3, len(errs))])
	}
	return result
}
