package node

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"benor/internal/api"
	"benor/internal/consensus"
	"benor/internal/readiness"
)

// Replies of the node service.
const (
	StatusLive      = "live"
	StatusFaulty    = "faulty"
	StartedReply    = "Consensus algorithm started."
	MessageReceived = "Message received and processed."
)

// Server implements the node gRPC service on top of an engine.
type Server struct {
	api.UnimplementedNodeServer
	engine   *consensus.Engine
	barrier  *readiness.Barrier
	initial  consensus.Value
	stopping <-chan struct{}
	log      *zap.Logger
}

// NewServer creates a new gRPC server instance. Start requests are released
// early when stopping is closed.
func NewServer(engine *consensus.Engine, barrier *readiness.Barrier, initial consensus.Value, stopping <-chan struct{}, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		barrier:  barrier,
		initial:  initial,
		stopping: stopping,
		log:      log,
	}
}

// Status reports "live", or Unavailable "faulty" for a faulty node.
func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s.engine.Faulty() {
		return nil, status.Error(codes.Unavailable, StatusFaulty)
	}
	return wrapperspb.String(StatusLive), nil
}

// Start waits until every node is ready, then starts the engine with the
// configured initial value.
func (s *Server) Start(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if !s.barrier.Open() {
		s.log.Debug("start waiting for peers", zap.Ints("missing", s.barrier.Missing()))
	}
	select {
	case <-s.barrier.Done():
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	case <-s.stopping:
		return nil, status.Error(codes.Unavailable, "node is shutting down")
	}

	if err := s.engine.Start(s.initial); err != nil {
		if errors.Is(err, consensus.ErrAlreadyStarted) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.String(StartedReply), nil
}

// Stop kills the node. It is idempotent.
func (s *Server) Stop(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	s.engine.Kill()
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"status": structpb.NewStringValue("killed"),
		},
	}, nil
}

// GetState returns {killed, x, decided, k}.
func (s *Server) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return api.StateToProto(s.engine.State()), nil
}

// Message feeds a protocol message to the engine. Killed and faulty nodes
// accept and drop it.
func (s *Server) Message(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	msg, err := api.MessageFromProto(req)
	if err != nil {
		s.log.Debug("rejecting message", zap.Error(err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.engine.HandleMessage(msg); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.String(MessageReceived), nil
}
