package readiness

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_MarksResponsivePeers(t *testing.T) {
	b := NewBarrier(3)
	w := NewWatcher(b, []int{0, 1, 2}, 10*time.Millisecond, nil)

	var peer2Up atomic.Bool
	w.Start(func(ctx context.Context, peer int) error {
		if peer == 2 && !peer2Up.Load() {
			return errors.New("connection refused")
		}
		return nil
	})
	defer w.Stop()

	require.Eventually(t, func() bool {
		return w.Snapshot()[2] == Unreachable
	}, time.Second, 5*time.Millisecond)
	assert.False(t, b.Open())
	assert.Equal(t, []int{2}, b.Missing())

	peer2Up.Store(true)
	require.NoError(t, waitWithTimeout(b, time.Second))

	snap := w.Snapshot()
	for _, p := range []int{0, 1, 2} {
		assert.Equal(t, Ready, snap[p], "peer %d", p)
	}
}

func TestWatcher_StopsProbingReadyPeers(t *testing.T) {
	b := NewBarrier(2)
	w := NewWatcher(b, []int{0, 1}, 5*time.Millisecond, nil)

	var probes [2]atomic.Int32
	w.Start(func(ctx context.Context, peer int) error {
		probes[peer].Add(1)
		if peer == 1 && probes[peer].Load() < 3 {
			return errors.New("not listening")
		}
		return nil
	})
	defer w.Stop()

	require.NoError(t, waitWithTimeout(b, time.Second))
	assert.Equal(t, int32(1), probes[0].Load())
	assert.Equal(t, int32(3), probes[1].Load())
}

func TestWatcher_StopBeforeReady(t *testing.T) {
	b := NewBarrier(1)
	w := NewWatcher(b, []int{0}, 5*time.Millisecond, nil)
	w.Start(func(ctx context.Context, peer int) error {
		return errors.New("down")
	})

	w.Stop()
	assert.False(t, b.Open())
}

func TestPeerStatus_String(t *testing.T) {
	assert.Equal(t, "UNKNOWN", Unknown.String())
	assert.Equal(t, "UNREACHABLE", Unreachable.String())
	assert.Equal(t, "READY", Ready.String())
	assert.Equal(t, "INVALID", PeerStatus(9).String())
}

func waitWithTimeout(b *Barrier, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return b.Wait(ctx)
}
