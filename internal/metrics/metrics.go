package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"benor/internal/consensus"
	"benor/internal/quorum"
	"benor/internal/transport"
)

// Metrics holds all Prometheus metrics for a set of nodes.
type Metrics struct {
	registry *prometheus.Registry

	// Message metrics
	MessagesReceived  *prometheus.CounterVec
	MessagesRejected  *prometheus.CounterVec
	MessagesBroadcast *prometheus.CounterVec

	// Protocol metrics
	Round     *prometheus.GaugeVec
	Decisions *prometheus.CounterVec
	Decided   *prometheus.GaugeVec

	// Transport metrics
	BroadcastPeersFailed *prometheus.CounterVec

	// gRPC metrics
	GRPCRequestsTotal   *prometheus.CounterVec
	GRPCRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics in a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Protocol messages accepted by the engine",
		}, []string{"node", "type"}),
		MessagesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_rejected_total",
			Help:      "Malformed protocol messages",
		}, []string{"node"}),
		MessagesBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_broadcast_total",
			Help:      "Protocol messages emitted to all peers",
		}, []string{"node", "type"}),

		Round: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round",
			Help:      "Current round of the node",
		}, []string{"node"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions by value",
		}, []string{"node", "value"}),
		Decided: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "decided",
			Help:      "1 once the node has decided",
		}, []string{"node"}),

		BroadcastPeersFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_peer_failures_total",
			Help:      "Peer sends that failed during a broadcast",
		}, []string{"node"}),

		GRPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests by method and status",
		}, []string{"method", "status"}),
		GRPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGRPCRequest records a gRPC request.
func (m *Metrics) RecordGRPCRequest(method, code string, duration time.Duration) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// UnaryServerInterceptor records every unary call.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

// Node returns the observer for node id.
func (m *Metrics) Node(id int) *NodeMetrics {
	return &NodeMetrics{m: m, node: strconv.Itoa(id)}
}

// NodeMetrics records the activity of a single node.
type NodeMetrics struct {
	m    *Metrics
	node string
}

var (
	_ consensus.Observer          = (*NodeMetrics)(nil)
	_ transport.BroadcastObserver = (*NodeMetrics)(nil)
)

func (n *NodeMetrics) MessageReceived(t consensus.MessageType, round int) {
	n.m.MessagesReceived.WithLabelValues(n.node, string(t)).Inc()
}

func (n *NodeMetrics) MessageRejected() {
	n.m.MessagesRejected.WithLabelValues(n.node).Inc()
}

func (n *NodeMetrics) MessageBroadcast(t consensus.MessageType, round int) {
	n.m.MessagesBroadcast.WithLabelValues(n.node, string(t)).Inc()
	if t == consensus.Propose {
		n.m.Round.WithLabelValues(n.node).Set(float64(round))
	}
}

func (n *NodeMetrics) RoundAdvanced(round int) {
	n.m.Round.WithLabelValues(n.node).Set(float64(round))
}

func (n *NodeMetrics) Decided(round int, v consensus.Value) {
	n.m.Decisions.WithLabelValues(n.node, v.String()).Inc()
	n.m.Decided.WithLabelValues(n.node).Set(1)
	n.m.Round.WithLabelValues(n.node).Set(float64(round))
}

// BroadcastFinished counts the peers a fan-out failed to reach.
func (n *NodeMetrics) BroadcastFinished(result quorum.BroadcastResult) {
	failed := len(result.Failed)
	if result.Peers > result.Delivered+failed {
		failed = result.Peers - result.Delivered
	}
	if failed > 0 {
		n.m.BroadcastPeersFailed.WithLabelValues(n.node).Add(float64(failed))
	}
}

// Server runs an HTTP server exposing /metrics and /health.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server on addr.
func NewServer(addr string, m *Metrics) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
