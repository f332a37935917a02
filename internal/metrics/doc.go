// Package metrics exposes Prometheus metrics for consensus nodes.
//
// One Metrics value is shared by every node of a process; per-node views
// returned by Node implement consensus.Observer and
// transport.BroadcastObserver.
package metrics
