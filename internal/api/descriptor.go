package api

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// ProtoFile is the path the node service descriptor is registered under.
const ProtoFile = "benor/v1/node.proto"

const (
	emptyType  = ".google.protobuf.Empty"
	stringType = ".google.protobuf.StringValue"
	structType = ".google.protobuf.Struct"
)

// nodeFileDescriptor describes the node service over the well-known types
// it exchanges, so reflection clients such as grpcurl can resolve it.
func nodeFileDescriptor() *descriptorpb.FileDescriptorProto {
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(in),
			OutputType: proto.String(out),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(ProtoFile),
		Package: proto.String("benor.v1"),
		Syntax:  proto.String("proto3"),
		Dependency: []string{
			"google/protobuf/empty.proto",
			"google/protobuf/struct.proto",
			"google/protobuf/wrappers.proto",
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Node"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Status", emptyType, stringType),
				method("Start", emptyType, stringType),
				method("Stop", emptyType, structType),
				method("GetState", emptyType, structType),
				method("Message", structType, stringType),
			},
		}},
	}
}

func init() {
	fd, err := protodesc.NewFile(nodeFileDescriptor(), protoregistry.GlobalFiles)
	if err != nil {
		panic(err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(err)
	}
}
