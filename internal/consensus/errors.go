package consensus

import "errors"

// Consensus errors
var (
	ErrInvalidMessage = errors.New("invalid consensus message")
	ErrInvalidValue   = errors.New("invalid value")
	ErrInvalidRound   = errors.New("invalid round")
	ErrAlreadyStarted = errors.New("consensus already started")
	ErrInvalidConfig  = errors.New("invalid consensus configuration")
)
