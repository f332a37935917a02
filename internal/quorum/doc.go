// Package quorum provides the threshold arithmetic of the protocol and the
// parallel fan-out used to broadcast a message to every peer.
package quorum
