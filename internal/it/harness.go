// Package it holds end-to-end tests that run real nodes over gRPC on
// loopback listeners.
package it

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/types/known/emptypb"

	"benor/internal/api"
	"benor/internal/cluster"
	"benor/internal/config"
	"benor/internal/consensus"
	"benor/internal/metrics"
)

// Harness is a running in-process cluster bound to ephemeral ports.
type Harness struct {
	t       *testing.T
	Cluster *cluster.Cluster
	Config  *config.Config
	Metrics *metrics.Metrics
}

// NewHarness builds and launches a cluster with one listener per node on
// 127.0.0.1:0. It is stopped when the test ends.
func NewHarness(t *testing.T, n, f int, values []consensus.Value, faulty []int, seed int64) *Harness {
	t.Helper()

	cfg := config.Default()
	cfg.N = n
	cfg.F = f
	cfg.Values = values
	cfg.Faulty = faulty
	cfg.Seed = seed

	listeners := make([]net.Listener, n)
	for i := range listeners {
		lis, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = lis
	}

	m := metrics.NewMetrics("benor")
	c, err := cluster.New(cfg, listeners, m, zaptest.NewLogger(t, zaptest.Level(zapcore.WarnLevel)))
	if err != nil {
		for _, lis := range listeners {
			lis.Close()
		}
		require.NoError(t, err)
	}
	require.NoError(t, c.Launch())
	t.Cleanup(func() {
		if err := c.Stop(); err != nil {
			t.Logf("stopping cluster: %v", err)
		}
	})

	return &Harness{t: t, Cluster: c, Config: cfg, Metrics: m}
}

// Client returns the node service client of node id.
func (h *Harness) Client(id int) api.NodeClient {
	h.t.Helper()
	client, err := h.Cluster.Client(id)
	require.NoError(h.t, err)
	return client
}

// State fetches one node's state over gRPC.
func (h *Harness) State(ctx context.Context, id int) consensus.NodeState {
	h.t.Helper()
	resp, err := h.Client(id).GetState(ctx, &emptypb.Empty{})
	require.NoError(h.t, err)
	state, err := api.StateFromProto(resp)
	require.NoError(h.t, err)
	return state
}

// Start triggers consensus on every node.
func (h *Harness) Start(ctx context.Context) {
	h.t.Helper()
	require.NoError(h.t, h.Cluster.StartConsensus(ctx))
}

// WaitDecided waits until every correct node has decided.
func (h *Harness) WaitDecided(timeout time.Duration) []consensus.NodeState {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	states, err := h.Cluster.WaitDecided(ctx, 20*time.Millisecond)
	require.NoError(h.t, err, "last states: %s", describe(states))
	return states
}

func describe(states []consensus.NodeState) string {
	out := ""
	for id, s := range states {
		out += fmt.Sprintf("[%d killed=%t", id, s.Killed)
		if s.X != nil {
			out += fmt.Sprintf(" x=%s decided=%t k=%d", *s.X, *s.Decided, *s.K)
		}
		out += "] "
	}
	return out
}
