package consensus

import (
	"fmt"
	"math"
)

// MessageType distinguishes the two protocol phases.
type MessageType string

const (
	Propose MessageType = "propose"
	Vote    MessageType = "vote"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == Propose || t == Vote
}

// Message is a PROPOSE or VOTE for round K.
type Message struct {
	Round int
	Value Value
	Type  MessageType
}

// NewPropose builds a PROPOSE message.
func NewPropose(round int, v Value) Message {
	return Message{Round: round, Value: v, Type: Propose}
}

// NewVote builds a VOTE message.
func NewVote(round int, v Value) Message {
	return Message{Round: round, Value: v, Type: Vote}
}

// Validate checks the round, value and type of the message.
func (m Message) Validate() error {
	if m.Round < 1 {
		return fmt.Errorf("%w: round %d is not positive", ErrInvalidMessage, m.Round)
	}
	if !m.Value.Valid() {
		return fmt.Errorf("%w: value %s", ErrInvalidMessage, m.Value)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: message type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

func (m Message) String() string {
	return fmt.Sprintf("%s(k=%d, x=%s)", m.Type, m.Round, m.Value)
}

// RoundFromNumber converts a decoded wire number into a round, rejecting
// fractions, non-positive values and values that overflow int.
func RoundFromNumber(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidRound, f)
	}
	if f < 1 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %v out of range", ErrInvalidRound, f)
	}
	return int(f), nil
}
