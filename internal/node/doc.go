// Package node runs one consensus node: the engine, its gRPC surface, the
// peer transport and the start barrier.
package node
