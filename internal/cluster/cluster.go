// Package cluster runs a whole consensus cluster inside one process, each
// node on its own gRPC listener, and drives it through the node service.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"benor/internal/api"
	"benor/internal/config"
	"benor/internal/consensus"
	"benor/internal/metrics"
	"benor/internal/node"
	"benor/internal/readiness"
	"benor/internal/transport"
)

// DefaultPollInterval is how often WaitDecided polls node state.
const DefaultPollInterval = 50 * time.Millisecond

// Cluster is a set of in-process nodes sharing one readiness barrier.
type Cluster struct {
	cfg     *config.Config
	nodes   []*node.Node
	barrier *readiness.Barrier
	clients *transport.GRPCTransport
	log     *zap.Logger

	mu      sync.Mutex
	group   *errgroup.Group
	running bool
}

// New builds every node of cfg. listeners, when non-nil, supplies one
// pre-bound listener per node and overrides the configured addresses.
func New(cfg *config.Config, listeners []net.Listener, m *metrics.Metrics, log *zap.Logger) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if listeners != nil && len(listeners) != cfg.N {
		return nil, fmt.Errorf("cluster: need %d listeners, got %d", cfg.N, len(listeners))
	}
	if log == nil {
		log = zap.NewNop()
	}

	addrs := cfg.PeerAddrs()
	for id, lis := range listeners {
		addrs[id] = lis.Addr().String()
	}

	c := &Cluster{
		cfg:     cfg,
		barrier: readiness.NewBarrier(cfg.N),
		clients: transport.NewGRPCTransport(addrs),
		log:     log,
	}
	for id := 0; id < cfg.N; id++ {
		ncfg := node.Config{
			ID:         id,
			N:          cfg.N,
			F:          cfg.F,
			Initial:    cfg.Values[id],
			Faulty:     cfg.IsFaulty(id),
			ListenAddr: addrs[id],
			Peers:      addrs,
			Seed:       cfg.Seed,
		}
		if listeners != nil {
			ncfg.Listener = listeners[id]
		}
		n, err := node.NewNode(ncfg, c.barrier, m, log)
		if err != nil {
			return nil, err
		}
		c.nodes = append(c.nodes, n)
	}
	return c, nil
}

// Launch binds every node and serves them in the background. It returns
// once all nodes are listening, which also opens the barrier.
func (c *Cluster) Launch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("cluster already launched")
	}

	for _, n := range c.nodes {
		if err := n.Listen(); err != nil {
			for _, started := range c.nodes {
				started.Stop()
			}
			return err
		}
	}

	c.group = new(errgroup.Group)
	for _, n := range c.nodes {
		c.group.Go(n.Start)
	}
	c.running = true
	c.log.Info("cluster launched", zap.Int("n", c.cfg.N), zap.Int("f", c.cfg.F), zap.Ints("faulty", c.cfg.Faulty))
	return nil
}

// Nodes returns the nodes in id order.
func (c *Cluster) Nodes() []*node.Node {
	return c.nodes
}

// Barrier returns the shared readiness barrier.
func (c *Cluster) Barrier() *readiness.Barrier {
	return c.barrier
}

// Client returns a node service client for node id.
func (c *Cluster) Client(id int) (api.NodeClient, error) {
	return c.clients.Client(id)
}

// StartConsensus calls Start on every node concurrently. A node that is
// already running counts as started.
func (c *Cluster) StartConsensus(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for id := range c.nodes {
		id := id
		g.Go(func() error {
			client, err := c.Client(id)
			if err != nil {
				return err
			}
			_, err = client.Start(ctx, &emptypb.Empty{})
			switch status.Code(err) {
			case codes.OK:
			case codes.FailedPrecondition:
				// Peers' votes can pull a node into the protocol before its own Start.
				c.log.Debug("node already running", zap.Int("node", id))
			default:
				return fmt.Errorf("start node %d: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// States fetches the state of every node over gRPC, in id order.
func (c *Cluster) States(ctx context.Context) ([]consensus.NodeState, error) {
	states := make([]consensus.NodeState, len(c.nodes))
	g, ctx := errgroup.WithContext(ctx)
	for id := range c.nodes {
		id := id
		g.Go(func() error {
			client, err := c.Client(id)
			if err != nil {
				return err
			}
			resp, err := client.GetState(ctx, &emptypb.Empty{})
			if err != nil {
				return fmt.Errorf("get state of node %d: %w", id, err)
			}
			state, err := api.StateFromProto(resp)
			if err != nil {
				return fmt.Errorf("node %d state: %w", id, err)
			}
			states[id] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

// WaitDecided polls until every correct, live node has decided, then returns
// the final states. On ctx expiry it returns the last states with the error.
func (c *Cluster) WaitDecided(ctx context.Context, interval time.Duration) ([]consensus.NodeState, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []consensus.NodeState
	for {
		states, err := c.States(ctx)
		if err == nil {
			last = states
			if c.allDecided(states) {
				return states, nil
			}
		}
		select {
		case <-ctx.Done():
			return last, fmt.Errorf("waiting for decisions: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Cluster) allDecided(states []consensus.NodeState) bool {
	for id, s := range states {
		if c.cfg.IsFaulty(id) || s.Killed {
			continue
		}
		if !s.HasDecided() {
			return false
		}
	}
	return true
}

// Stop stops every node and waits for their servers to exit.
func (c *Cluster) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		n.Stop()
	}
	var err error
	if c.group != nil {
		err = c.group.Wait()
	}
	c.running = false
	return errors.Join(err, c.clients.Close())
}
