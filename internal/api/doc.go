// Package api describes the gRPC surface of a node: the administrative
// operations (Status, Start, Stop, GetState) and the Message endpoint peers
// use to deliver PROPOSE and VOTE messages. Payloads are protobuf well-known
// types (Struct, StringValue, Empty) carrying the JSON-shaped wire format.
package api
