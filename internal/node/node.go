package node

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"

	"benor/internal/api"
	"benor/internal/consensus"
	"benor/internal/logging"
	"benor/internal/metrics"
	"benor/internal/quorum"
	"benor/internal/readiness"
	"benor/internal/transport"
)

// Config holds the settings of a single node.
type Config struct {
	ID      int
	N       int
	F       int
	Initial consensus.Value
	Faulty  bool

	// ListenAddr is used when no Listener is supplied.
	ListenAddr string
	Listener   net.Listener
	// Peers maps every node id, self included, to its address.
	Peers map[int]string

	// Seed fixes the coin flips. Zero seeds from the clock.
	Seed             int64
	BroadcastTimeout time.Duration
	// ProbeInterval > 0 makes the node probe its peers and fill the barrier
	// itself, for nodes running in separate processes.
	ProbeInterval time.Duration
}

// Node represents a single node in the cluster.
type Node struct {
	cfg        Config
	engine     *consensus.Engine
	server     *Server
	grpcServer *grpc.Server
	transport  *transport.GRPCTransport
	barrier    *readiness.Barrier
	watcher    *readiness.Watcher
	metrics    *metrics.Metrics
	log        *zap.Logger

	mu  sync.Mutex
	lis net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNode creates a node that opens barrier for its own id once listening.
// m may be nil.
func NewNode(cfg Config, barrier *readiness.Barrier, m *metrics.Metrics, log *zap.Logger) (*Node, error) {
	if barrier == nil {
		return nil, errors.New("node: nil readiness barrier")
	}
	if len(cfg.Peers) != cfg.N {
		return nil, fmt.Errorf("node: need %d peer addresses, got %d", cfg.N, len(cfg.Peers))
	}
	if !cfg.Initial.IsBinary() {
		return nil, fmt.Errorf("node %d: %w: initial value %s", cfg.ID, consensus.ErrInvalidValue, cfg.Initial)
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = quorum.DefaultPerPeerTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	engineLog := log
	log = logging.ForNode(log, cfg.ID)

	ctx, cancel := context.WithCancel(context.Background())
	t := transport.NewGRPCTransport(cfg.Peers)
	out := transport.NewPeerBroadcaster(ctx, t, transport.Peers(cfg.N), cfg.BroadcastTimeout, log)

	var obs consensus.Observer
	if m != nil {
		nm := m.Node(cfg.ID)
		obs = nm
		out.SetObserver(nm)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	engine, err := consensus.NewEngine(consensus.Config{
		NodeID:   cfg.ID,
		N:        cfg.N,
		F:        cfg.F,
		Faulty:   cfg.Faulty,
		Rand:     rand.New(rand.NewSource(seed + int64(cfg.ID))),
		Logger:   engineLog,
		Observer: obs,
	}, out)
	if err != nil {
		cancel()
		return nil, err
	}

	n := &Node{
		cfg:       cfg,
		engine:    engine,
		transport: t,
		barrier:   barrier,
		metrics:   m,
		log:       log,
		lis:       cfg.Listener,
		ctx:       ctx,
		cancel:    cancel,
	}
	n.server = NewServer(engine, barrier, cfg.Initial, ctx.Done(), log)
	if cfg.ProbeInterval > 0 {
		n.watcher = readiness.NewWatcher(barrier, transport.Peers(cfg.N), cfg.ProbeInterval, log)
	}
	return n, nil
}

// ID returns the node id.
func (n *Node) ID() int { return n.cfg.ID }

// Engine returns the node's consensus engine.
func (n *Node) Engine() *consensus.Engine { return n.engine }

// Addr returns the bound address, or the configured one before Listen.
func (n *Node) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lis != nil {
		return n.lis.Addr().String()
	}
	return n.cfg.ListenAddr
}

// Listen binds the listener and marks the node ready. It is a no-op when
// a Listener was supplied, apart from marking ready.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lis == nil {
		lis, err := net.Listen("tcp", n.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
		}
		n.lis = lis
	}
	n.barrier.MarkReady(n.cfg.ID)
	return nil
}

// Start listens and serves until Stop. It blocks.
func (n *Node) Start() error {
	if err := n.Listen(); err != nil {
		return err
	}

	opts := []grpc.ServerOption{}
	if n.metrics != nil {
		opts = append(opts, grpc.UnaryInterceptor(n.metrics.UnaryServerInterceptor()))
	}

	n.mu.Lock()
	if n.ctx.Err() != nil {
		n.mu.Unlock()
		return nil
	}
	n.grpcServer = grpc.NewServer(opts...)
	api.RegisterNodeServer(n.grpcServer, n.server)
	// Enable gRPC reflection for grpcurl
	reflection.Register(n.grpcServer)
	srv, lis := n.grpcServer, n.lis
	n.mu.Unlock()

	if n.watcher != nil {
		n.watcher.Start(n.probe)
	}

	n.log.Info("starting node",
		zap.String("addr", lis.Addr().String()),
		zap.Int("n", n.cfg.N), zap.Int("f", n.cfg.F),
		zap.Bool("faulty", n.cfg.Faulty), zap.Stringer("initial", n.cfg.Initial))

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop releases blocked Start calls, stops the server and closes peer
// connections.
func (n *Node) Stop() {
	n.cancel()
	if n.watcher != nil {
		n.watcher.Stop()
	}

	n.mu.Lock()
	srv, lis := n.grpcServer, n.lis
	n.mu.Unlock()

	if srv != nil {
		n.log.Info("stopping node")
		srv.GracefulStop()
	} else if lis != nil {
		_ = lis.Close()
	}
	if err := n.transport.Close(); err != nil {
		n.log.Warn("closing peer connections", zap.Error(err))
	}
}

// probe reports a peer as up when its Status endpoint answers, faulty or not.
func (n *Node) probe(ctx context.Context, peer int) error {
	client, err := n.transport.Client(peer)
	if err != nil {
		return err
	}
	_, err = client.Status(ctx, &emptypb.Empty{})
	if err == nil || isFaultyStatus(err) {
		return nil
	}
	return err
}

func isFaultyStatus(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unavailable && st.Message() == StatusFaulty
}
