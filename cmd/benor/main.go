package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"benor/internal/cluster"
	"benor/internal/config"
	"benor/internal/logging"
	"benor/internal/metrics"
	"benor/internal/node"
	"benor/internal/readiness"
)

type options struct {
	configFile    string
	nodeID        int
	n             int
	f             int
	values        string
	faulty        string
	host          string
	basePort      int
	peers         string
	seed          int64
	logLevel      string
	metricsAddr   string
	timeout       time.Duration
	probeInterval time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "JSON cluster config file (flags override it)")
	flag.IntVar(&opts.nodeID, "node-id", -1, "Run only this node; -1 runs the whole cluster in-process")
	flag.IntVar(&opts.n, "n", 0, "Number of nodes")
	flag.IntVar(&opts.f, "f", 0, "Number of tolerated faulty nodes (2F < N)")
	flag.StringVar(&opts.values, "values", "", "Initial values, one per node (e.g. 1,0,1,1)")
	flag.StringVar(&opts.faulty, "faulty", "", "Faulty node ids (e.g. 3)")
	flag.StringVar(&opts.host, "host", config.DefaultHost, "Host of every node when --peers is not given")
	flag.IntVar(&opts.basePort, "base-port", config.DefaultBasePort, "Node i listens on base-port+i")
	flag.StringVar(&opts.peers, "peers", "", "Explicit node addresses (e.g. 0=127.0.0.1:3000,1=127.0.0.1:3001)")
	flag.Int64Var(&opts.seed, "seed", 0, "Coin flip seed (0 seeds from the clock)")
	flag.StringVar(&opts.logLevel, "log-level", config.DefaultLogLevel, "Log level")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Cluster mode: how long to wait for decisions")
	flag.DurationVar(&opts.probeInterval, "probe-interval", 100*time.Millisecond, "Node mode: peer readiness probe interval")
	flag.Parse()

	cfg, err := buildConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.nodeID >= 0 {
		err = runNode(ctx, cfg, opts.nodeID, opts.probeInterval, log)
	} else {
		err = runCluster(ctx, cfg, opts.timeout, log)
	}
	if err != nil {
		log.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

// buildConfig loads the optional file and applies every flag set on the
// command line on top of it.
func buildConfig(opts options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		loaded, err := config.LoadFile(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var err error
	flag.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "n":
			cfg.N = opts.n
		case "f":
			cfg.F = opts.f
		case "values":
			cfg.Values, err = config.ParseValues(opts.values)
		case "faulty":
			cfg.Faulty, err = config.ParseFaulty(opts.faulty)
		case "host":
			cfg.Host = opts.host
		case "base-port":
			cfg.BasePort = opts.basePort
		case "peers":
			cfg.Peers, err = config.ParsePeers(opts.peers)
		case "seed":
			cfg.Seed = opts.seed
		case "log-level":
			cfg.LogLevel = opts.logLevel
		case "metrics-addr":
			cfg.MetricsAddr = opts.metricsAddr
		}
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.nodeID >= cfg.N {
		return nil, fmt.Errorf("%w: node id %d outside [0,%d)", config.ErrInvalid, opts.nodeID, cfg.N)
	}
	return cfg, nil
}

// serveMetrics runs the metrics server until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, m *metrics.Metrics, log *zap.Logger) {
	if addr == "" {
		return
	}
	srv := metrics.NewServer(addr, m)
	g.Go(func() error {
		log.Info("serving metrics", zap.String("addr", addr))
		return srv.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// runCluster launches all nodes, starts consensus, waits for the correct
// nodes to decide and prints every final state.
func runCluster(ctx context.Context, cfg *config.Config, timeout time.Duration, log *zap.Logger) error {
	m := metrics.NewMetrics("benor")
	c, err := cluster.New(cfg, nil, m, log)
	if err != nil {
		return err
	}
	if err := c.Launch(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	serveMetrics(gctx, g, cfg.MetricsAddr, m, log)

	g.Go(func() error {
		defer cancel()

		if err := c.StartConsensus(gctx); err != nil {
			return err
		}
		waitCtx, waitCancel := context.WithTimeout(gctx, timeout)
		defer waitCancel()

		states, err := c.WaitDecided(waitCtx, cluster.DefaultPollInterval)
		for id, state := range states {
			line, merr := json.Marshal(state)
			if merr != nil {
				return merr
			}
			fmt.Printf("node %d: %s\n", id, line)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("not every correct node decided before the timeout", zap.Duration("timeout", timeout))
			return nil
		}
		return err
	})

	err = g.Wait()
	if stopErr := c.Stop(); stopErr != nil {
		log.Warn("stopping cluster", zap.Error(stopErr))
	}
	if ctx.Err() != nil {
		// Interrupted.
		return nil
	}
	return err
}

// runNode serves a single node until ctx is done. Peers are probed until all
// of them answer, after which Start requests are released.
func runNode(ctx context.Context, cfg *config.Config, id int, probeInterval time.Duration, log *zap.Logger) error {
	m := metrics.NewMetrics("benor")
	n, err := node.NewNode(node.Config{
		ID:            id,
		N:             cfg.N,
		F:             cfg.F,
		Initial:       cfg.Values[id],
		Faulty:        cfg.IsFaulty(id),
		ListenAddr:    cfg.Addr(id),
		Peers:         cfg.PeerAddrs(),
		Seed:          cfg.Seed,
		ProbeInterval: probeInterval,
	}, readiness.NewBarrier(cfg.N), m, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveMetrics(gctx, g, cfg.MetricsAddr, m, log)
	g.Go(n.Start)
	g.Go(func() error {
		<-gctx.Done()
		n.Stop()
		return nil
	})
	return g.Wait()
}
