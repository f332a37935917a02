// Package transport moves consensus messages between nodes.
//
// A Transport delivers one message to one peer; PeerBroadcaster fans a
// message out to the whole peer set without blocking the engine. Two
// transports are provided: LocalNetwork, an in-process network with optional
// loss, duplication and delay, and GRPCTransport, which calls each peer's
// node service.
package transport
