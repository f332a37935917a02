package transport

import (
	"context"
	"time"

	"go.uber.org/zap"

	"benor/internal/consensus"
	"benor/internal/quorum"
)

// Transport delivers one message to one peer. Implementations give no
// ordering, retry or deduplication guarantees.
type Transport interface {
	Send(ctx context.Context, peer int, msg consensus.Message) error
}

// Peers returns the ids 0..n-1.
func Peers(n int) []int {
	peers := make([]int, n)
	for i := range peers {
		peers[i] = i
	}
	return peers
}

// BroadcastObserver is notified of each finished fan-out.
type BroadcastObserver interface {
	BroadcastFinished(result quorum.BroadcastResult)
}

// PeerBroadcaster fans a message out to a fixed peer set over a Transport.
// It implements consensus.Broadcaster and never blocks the caller.
type PeerBroadcaster struct {
	ctx       context.Context
	transport Transport
	peers     []int
	timeout   time.Duration
	log       *zap.Logger
	observer  BroadcastObserver
}

// NewPeerBroadcaster creates a broadcaster bound to ctx; cancelling ctx
// abandons in-flight sends.
func NewPeerBroadcaster(ctx context.Context, t Transport, peers []int, timeout time.Duration, log *zap.Logger) *PeerBroadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &PeerBroadcaster{
		ctx:       ctx,
		transport: t,
		peers:     append([]int(nil), peers...),
		timeout:   timeout,
		log:       log,
	}
}

// SetObserver registers a fan-out observer. Call before the first Broadcast.
func (b *PeerBroadcaster) SetObserver(o BroadcastObserver) {
	b.observer = o
}

// Broadcast sends msg to every peer in the background.
func (b *PeerBroadcaster) Broadcast(msg consensus.Message) {
	go func() {
		result := quorum.DoBroadcast(b.ctx, b.peers, b.timeout, func(ctx context.Context, peer int) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return b.transport.Send(ctx, peer, msg)
		})
		if result.ErrorMessage != "" {
			b.log.Debug("broadcast incomplete",
				zap.Stringer("msg", msg),
				zap.Int("delivered", result.Delivered),
				zap.Int("peers", result.Peers),
				zap.String("error", result.ErrorMessage))
		}
		if b.observer != nil {
			b.observer.BroadcastFinished(result)
		}
	}()
}
