// Copyright 2019 The go-hetcons Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rpcpb defines the messages and the gRPC service of an
// observer node. Messages travel with the cbor codec.
package rpcpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hetcons/go-hetcons/hetpb"
)

type HelloRequest struct {
	NetworkID string `cbor:"1,keyasint"`
}

type HelloResponse struct{}

// SubmitRequest carries an encoded phase message.
type SubmitRequest struct {
	NetworkID string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint"`
}

type SubmitResponse struct{}

type ProposeRequest struct {
	NetworkID string            `cbor:"1,keyasint"`
	GroupRef  string            `cbor:"2,keyasint"`
	Slots     []hetpb.ChainSlot `cbor:"3,keyasint"`
	Value     []byte            `cbor:"4,keyasint"`
	// round timeout in milliseconds, zero picks the node default
	Timeout int64 `cbor:"5,keyasint"`
}

type ProposeResponse struct {
	M1aRef      string `cbor:"1,keyasint"`
	ConsensusID string `cbor:"2,keyasint"`
}

// QueryDecisionRequest looks a decision up by consensus id or by slot.
type QueryDecisionRequest struct {
	NetworkID   string           `cbor:"1,keyasint"`
	ConsensusID string           `cbor:"2,keyasint,omitempty"`
	Slot        *hetpb.ChainSlot `cbor:"3,keyasint,omitempty"`
}

type QueryDecisionResponse struct {
	Data []byte `cbor:"1,keyasint"`
}

type AttestRequest struct {
	NetworkID string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint"`
}

type AttestResponse struct{}

type RegisterGroupRequest struct {
	NetworkID string `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint"`
}

type RegisterGroupResponse struct {
	GroupRef string `cbor:"1,keyasint"`
}

const (
	nodeServiceName       = "rpcpb.Node"
	nodeHelloMethod       = "/rpcpb.Node/Hello"
	nodeSubmitMethod      = "/rpcpb.Node/Submit"
	nodeProposeMethod     = "/rpcpb.Node/Propose"
	nodeQueryMethod       = "/rpcpb.Node/QueryDecision"
	nodeAttestMethod      = "/rpcpb.Node/Attest"
	nodeRegisterMethod    = "/rpcpb.Node/RegisterGroup"
	nodeServiceDescSource = "rpcpb/node.go"
)

// NodeClient is the client API for Node service.
type NodeClient interface {
	Hello(ctx context.Context, in *HelloRequest, opts ...grpc.CallOption) (*HelloResponse, error)
	Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error)
	Propose(ctx context.Context, in *ProposeRequest, opts ...grpc.CallOption) (*ProposeResponse, error)
	QueryDecision(ctx context.Context, in *QueryDecisionRequest, opts ...grpc.CallOption) (*QueryDecisionResponse, error)
	Attest(ctx context.Context, in *AttestRequest, opts ...grpc.CallOption) (*AttestResponse, error)
	RegisterGroup(ctx context.Context, in *RegisterGroupRequest, opts ...grpc.CallOption) (*RegisterGroupResponse, error)
}

type nodeClient struct {
	cc grpc.ClientConnInterface
}

func NewNodeClient(cc grpc.ClientConnInterface) NodeClient {
	return &nodeClient{cc}
}

func (c *nodeClient) invoke(ctx context.Context, method string, in, out interface{}, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *nodeClient) Hello(ctx context.Context, in *HelloRequest, opts ...grpc.CallOption) (*HelloResponse, error) {
	out := new(HelloResponse)
	if err := c.invoke(ctx, nodeHelloMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Submit(ctx context.Context, in *SubmitRequest, opts ...grpc.CallOption) (*SubmitResponse, error) {
	out := new(SubmitResponse)
	if err := c.invoke(ctx, nodeSubmitMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Propose(ctx context.Context, in *ProposeRequest, opts ...grpc.CallOption) (*ProposeResponse, error) {
	out := new(ProposeResponse)
	if err := c.invoke(ctx, nodeProposeMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) QueryDecision(ctx context.Context, in *QueryDecisionRequest, opts ...grpc.CallOption) (*QueryDecisionResponse, error) {
	out := new(QueryDecisionResponse)
	if err := c.invoke(ctx, nodeQueryMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) Attest(ctx context.Context, in *AttestRequest, opts ...grpc.CallOption) (*AttestResponse, error) {
	out := new(AttestResponse)
	if err := c.invoke(ctx, nodeAttestMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *nodeClient) RegisterGroup(ctx context.Context, in *RegisterGroupRequest, opts ...grpc.CallOption) (*RegisterGroupResponse, error) {
	out := new(RegisterGroupResponse)
	if err := c.invoke(ctx, nodeRegisterMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// NodeServer is the server API for Node service.
type NodeServer interface {
	Hello(context.Context, *HelloRequest) (*HelloResponse, error)
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	Propose(context.Context, *ProposeRequest) (*ProposeResponse, error)
	QueryDecision(context.Context, *QueryDecisionRequest) (*QueryDecisionResponse, error)
	Attest(context.Context, *AttestRequest) (*AttestResponse, error)
	RegisterGroup(context.Context, *RegisterGroupRequest) (*RegisterGroupResponse, error)
}

// UnimplementedNodeServer can be embedded to have forward compatible implementations.
type UnimplementedNodeServer struct{}

func (UnimplementedNodeServer) Hello(context.Context, *HelloRequest) (*HelloResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Hello not implemented")
}
func (UnimplementedNodeServer) Submit(context.Context, *SubmitRequest) (*SubmitResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedNodeServer) Propose(context.Context, *ProposeRequest) (*ProposeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Propose not implemented")
}
func (UnimplementedNodeServer) QueryDecision(context.Context, *QueryDecisionRequest) (*QueryDecisionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method QueryDecision not implemented")
}
func (UnimplementedNodeServer) Attest(context.Context, *AttestRequest) (*AttestResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Attest not implemented")
}
func (UnimplementedNodeServer) RegisterGroup(context.Context, *RegisterGroupRequest) (*RegisterGroupResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RegisterGroup not implemented")
}

func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&Node_ServiceDesc, srv)
}

func _Node_Hello_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HelloRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Hello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nodeHelloMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Hello(ctx, req.(*HelloRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nodeSubmitMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Submit(ctx, req.(*SubmitRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_Propose_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ProposeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Propose(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nodeProposeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Propose(ctx, req.(*ProposeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_QueryDecision_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(QueryDecisionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).QueryDecision(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nodeQueryMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).QueryDecision(ctx, req.(*QueryDecisionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_Attest_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AttestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).Attest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nodeAttestMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).Attest(ctx, req.(*AttestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Node_RegisterGroup_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RegisterGroupRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NodeServer).RegisterGroup(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: nodeRegisterMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NodeServer).RegisterGroup(ctx, req.(*RegisterGroupRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Node_ServiceDesc is the grpc.ServiceDesc for Node service.
var Node_ServiceDesc = grpc.ServiceDesc{
	ServiceName: nodeServiceName,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hello", Handler: _Node_Hello_Handler},
		{MethodName: "Submit", Handler: _Node_Submit_Handler},
		{MethodName: "Propose", Handler: _Node_Propose_Handler},
		{MethodName: "QueryDecision", Handler: _Node_QueryDecision_Handler},
		{MethodName: "Attest", Handler: _Node_Attest_Handler},
		{MethodName: "RegisterGroup", Handler: _Node_RegisterGroup_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: nodeServiceDescSource,
}
