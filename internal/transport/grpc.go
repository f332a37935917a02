package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"benor/internal/api"
	"benor/internal/consensus"
)

// GRPCTransport sends messages to peers through their node service.
// Connections are created lazily and reused.
type GRPCTransport struct {
	mu      sync.RWMutex
	addrs   map[int]string
	conns   map[int]*grpc.ClientConn
	clients map[int]api.NodeClient
	closed  bool
}

// NewGRPCTransport creates a transport for the given peer id -> address table.
func NewGRPCTransport(addrs map[int]string) *GRPCTransport {
	copied := make(map[int]string, len(addrs))
	for id, addr := range addrs {
		copied[id] = addr
	}
	return &GRPCTransport{
		addrs:   copied,
		conns:   make(map[int]*grpc.ClientConn),
		clients: make(map[int]api.NodeClient),
	}
}

// Client returns the node client for peer, dialing on first use. It fails
// with ErrClosed once Close has been called.
func (t *GRPCTransport) Client(peer int) (api.NodeClient, error) {
	t.mu.RLock()
	client, exists := t.clients[peer]
	closed := t.closed
	t.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if exists {
		return client, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	// Double-check after acquiring write lock
	if client, exists := t.clients[peer]; exists {
		return client, nil
	}

	addr, ok := t.addrs[peer]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrPeerNotFound, peer)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client = api.NewNodeClient(conn)
	t.conns[peer] = conn
	t.clients[peer] = client
	return client, nil
}

// Send delivers msg to peer's Message endpoint.
func (t *GRPCTransport) Send(ctx context.Context, peer int, msg consensus.Message) error {
	client, err := t.Client(peer)
	if err != nil {
		return err
	}
	if _, err := client.Message(ctx, api.MessageToProto(msg)); err != nil {
		return fmt.Errorf("send %s to %d: %w", msg, peer, err)
	}
	return nil
}

// Close closes all peer connections. The transport cannot be reused.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	var errs []error
	for peer, conn := range t.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("peer %d: %w", peer, err))
		}
	}
	t.conns = make(map[int]*grpc.ClientConn)
	t.clients = make(map[int]api.NodeClient)
	return errors.Join(errs...)
}
