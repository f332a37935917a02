package consensus

import (
	"bytes"
	"fmt"
	"strconv"
)

// Value is a binary consensus value or the undecided marker.
type Value int8

const (
	Zero Value = iota
	One
	// Undecided means no majority was observed in a round. It is never a final decision.
	Undecided
)

// undecidedWire is how Undecided travels in messages.
const undecidedWire = "?"

// String returns "0", "1" or "?".
func (v Value) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	case Undecided:
		return undecidedWire
	default:
		return fmt.Sprintf("Value(%d)", int8(v))
	}
}

// Valid reports whether v is one of Zero, One or Undecided.
func (v Value) Valid() bool {
	return v == Zero || v == One || v == Undecided
}

// IsBinary reports whether v is Zero or One.
func (v Value) IsBinary() bool {
	return v == Zero || v == One
}

// ParseValue parses "0", "1" or "?".
func ParseValue(s string) (Value, error) {
	switch s {
	case "0":
		return Zero, nil
	case "1":
		return One, nil
	case undecidedWire:
		return Undecided, nil
	default:
		return Undecided, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
}

// ValueFromNumber converts a decoded JSON number to a binary value.
func ValueFromNumber(f float64) (Value, error) {
	switch f {
	case 0:
		return Zero, nil
	case 1:
		return One, nil
	default:
		return Undecided, fmt.Errorf("%w: %v", ErrInvalidValue, f)
	}
}

// MarshalJSON encodes 0 and 1 as numbers and Undecided as the string "?".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v {
	case Zero, One:
		return []byte(v.String()), nil
	case Undecided:
		return []byte(strconv.Quote(undecidedWire)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidValue, v)
	}
}

// UnmarshalJSON accepts 0, 1 or "?".
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidValue, data)
		}
		if s != undecidedWire {
			return fmt.Errorf("%w: %q", ErrInvalidValue, s)
		}
		*v = Undecided
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidValue, data)
	}
	parsed, err := ValueFromNumber(f)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
