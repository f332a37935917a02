// Package consensus implements the per-node state machine of a Ben-Or style
// randomized binary agreement protocol.
//
// An Engine tallies PROPOSE and VOTE messages per round. Once a round's tally
// reaches the N-F quorum it resolves exactly once: proposals resolve into a
// vote for the strict majority value (or "?"), votes resolve into a decision
// when F+1 of them agree, otherwise into a proposal for the next round using
// the plurality value or a coin flip.
//
// The engine never talks to the network directly. Outbound messages are handed
// to a Broadcaster after the engine lock is released.
package consensus
