package api

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"benor/internal/consensus"
)

// valueToProto encodes 0 and 1 as numbers and "?" as a string.
func valueToProto(v consensus.Value) *structpb.Value {
	if v.IsBinary() {
		return structpb.NewNumberValue(float64(v))
	}
	return structpb.NewStringValue(v.String())
}

func valueFromProto(pv *structpb.Value) (consensus.Value, error) {
	switch kind := pv.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return consensus.ValueFromNumber(kind.NumberValue)
	case *structpb.Value_StringValue:
		if kind.StringValue != consensus.Undecided.String() {
			return consensus.Undecided, fmt.Errorf("%w: %q", consensus.ErrInvalidValue, kind.StringValue)
		}
		return consensus.Undecided, nil
	default:
		return consensus.Undecided, fmt.Errorf("%w: unsupported kind %T", consensus.ErrInvalidValue, kind)
	}
}

// MessageToProto converts a consensus message to its {k, x, messageType} struct.
func MessageToProto(msg consensus.Message) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"k":           structpb.NewNumberValue(float64(msg.Round)),
			"x":           valueToProto(msg.Value),
			"messageType": structpb.NewStringValue(string(msg.Type)),
		},
	}
}

// MessageFromProto parses a {k, x, messageType} struct.
// Every failure wraps consensus.ErrInvalidMessage.
func MessageFromProto(s *structpb.Struct) (consensus.Message, error) {
	fields := s.GetFields()

	k, ok := fields["k"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return consensus.Message{}, fmt.Errorf("%w: k must be a number", consensus.ErrInvalidMessage)
	}
	round, err := consensus.RoundFromNumber(k.NumberValue)
	if err != nil {
		return consensus.Message{}, fmt.Errorf("%w: %v", consensus.ErrInvalidMessage, err)
	}

	x, ok := fields["x"]
	if !ok {
		return consensus.Message{}, fmt.Errorf("%w: missing x", consensus.ErrInvalidMessage)
	}
	v, err := valueFromProto(x)
	if err != nil {
		return consensus.Message{}, fmt.Errorf("%w: %v", consensus.ErrInvalidMessage, err)
	}

	msg := consensus.Message{
		Round: round,
		Value: v,
		Type:  consensus.MessageType(fields["messageType"].GetStringValue()),
	}
	if err := msg.Validate(); err != nil {
		return consensus.Message{}, err
	}
	return msg, nil
}

// StateToProto converts a state snapshot to {killed, x, decided, k} with
// nulls for unset fields.
func StateToProto(state consensus.NodeState) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"killed":  structpb.NewBoolValue(state.Killed),
		"x":       structpb.NewNullValue(),
		"decided": structpb.NewNullValue(),
		"k":       structpb.NewNullValue(),
	}
	if state.X != nil {
		fields["x"] = valueToProto(*state.X)
	}
	if state.Decided != nil {
		fields["decided"] = structpb.NewBoolValue(*state.Decided)
	}
	if state.K != nil {
		fields["k"] = structpb.NewNumberValue(float64(*state.K))
	}
	return &structpb.Struct{Fields: fields}
}

// StateFromProto is the inverse of StateToProto.
func StateFromProto(s *structpb.Struct) (consensus.NodeState, error) {
	fields := s.GetFields()
	state := consensus.NodeState{Killed: fields["killed"].GetBoolValue()}

	if x, ok := fields["x"]; ok && !isNull(x) {
		v, err := valueFromProto(x)
		if err != nil {
			return consensus.NodeState{}, err
		}
		state.X = &v
	}
	if d, ok := fields["decided"]; ok && !isNull(d) {
		decided := d.GetBoolValue()
		state.Decided = &decided
	}
	if k, ok := fields["k"]; ok && !isNull(k) {
		round := int(k.GetNumberValue())
		state.K = &round
	}
	return state, nil
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}
