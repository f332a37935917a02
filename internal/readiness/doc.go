// Package readiness implements the start gate of a node.
//
// A Barrier opens once every node of the cluster has been marked ready and
// stays open. Start requests block on it so no node proposes before all peers
// can receive. A Watcher fills the barrier by probing peers until each answers.
package readiness
