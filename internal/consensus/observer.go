package consensus

// Observer receives notifications about engine activity. Implementations must
// be safe for concurrent use and must not call back into the engine.
type Observer interface {
	MessageReceived(t MessageType, round int)
	MessageRejected()
	MessageBroadcast(t MessageType, round int)
	RoundAdvanced(round int)
	// Decided reports the node's current round, which is never lower than
	// the round of the deciding vote quorum.
	Decided(round int, v Value)
}

type nopObserver struct{}

func (nopObserver) MessageReceived(MessageType, int)  {}
func (nopObserver) MessageRejected()                  {}
func (nopObserver) MessageBroadcast(MessageType, int) {}
func (nopObserver) RoundAdvanced(int)                 {}
func (nopObserver) Decided(int, Value)                {}

// Broadcaster hands a message to the transport for delivery to all N peers,
// the sender included. Broadcast must not block on peer responses.
type Broadcaster interface {
	Broadcast(msg Message)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(msg Message)

// Broadcast calls f(msg).
func (f BroadcasterFunc) Broadcast(msg Message) {
	f(msg)
}
