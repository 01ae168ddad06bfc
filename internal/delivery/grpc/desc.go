package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "consultation.v1.ConsultationService"

const (
	methodRequestConsultation = "/" + ServiceName + "/RequestConsultation"
	methodGetQueueStatus      = "/" + ServiceName + "/GetQueueStatus"
	methodCancelQueueEntry    = "/" + ServiceName + "/CancelQueueEntry"
	methodGetSession          = "/" + ServiceName + "/GetSession"
	methodEndSession          = "/" + ServiceName + "/EndSession"
	methodValidateRoomToken   = "/" + ServiceName + "/ValidateRoomToken"
	methodSetPresence         = "/" + ServiceName + "/SetPresence"
	methodGetBalance          = "/" + ServiceName + "/GetBalance"
	methodStreamClientUpdates = "/" + ServiceName + "/StreamClientUpdates"
)

type ConsultationServiceServer interface {
	RequestConsultation(context.Context, *RequestConsultationRequest) (*RequestConsultationResponse, error)
	GetQueueStatus(context.Context, *QueueRequest) (*QueueStatusResponse, error)
	CancelQueueEntry(context.Context, *QueueRequest) (*CancelQueueEntryResponse, error)
	GetSession(context.Context, *GetSessionRequest) (*Session, error)
	EndSession(context.Context, *EndSessionRequest) (*Session, error)
	ValidateRoomToken(context.Context, *ValidateRoomTokenRequest) (*RoomClaims, error)
	SetPresence(context.Context, *SetPresenceRequest) (*Availability, error)
	GetBalance(context.Context, *GetBalanceRequest) (*Balance, error)
	StreamClientUpdates(*StreamClientUpdatesRequest, ConsultationService_StreamClientUpdatesServer) error
}

type ConsultationService_StreamClientUpdatesServer interface {
	Send(*ClientUpdate) error
	grpc.ServerStream
}

type streamClientUpdatesServer struct {
	grpc.ServerStream
}

func (x *streamClientUpdatesServer) Send(m *ClientUpdate) error {
	return x.ServerStream.SendMsg(m)
}

func RegisterConsultationServiceServer(s grpc.ServiceRegistrar, srv ConsultationServiceServer) {
	s.RegisterService(&ConsultationService_ServiceDesc, srv)
}

// unary builds a method handler that decodes Req and forwards it through the interceptor chain.
func unary[Req any, Resp any](method string, call func(ConsultationServiceServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ConsultationServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ConsultationServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamClientUpdatesHandler(srv any, stream grpc.ServerStream) error {
	m := new(StreamClientUpdatesRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ConsultationServiceServer).StreamClientUpdates(m, &streamClientUpdatesServer{stream})
}

var ConsultationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConsultationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestConsultation", Handler: unary(methodRequestConsultation, ConsultationServiceServer.RequestConsultation)},
		{MethodName: "GetQueueStatus", Handler: unary(methodGetQueueStatus, ConsultationServiceServer.GetQueueStatus)},
		{MethodName: "CancelQueueEntry", Handler: unary(methodCancelQueueEntry, ConsultationServiceServer.CancelQueueEntry)},
		{MethodName: "GetSession", Handler: unary(methodGetSession, ConsultationServiceServer.GetSession)},
		{MethodName: "EndSession", Handler: unary(methodEndSession, ConsultationServiceServer.EndSession)},
		{MethodName: "ValidateRoomToken", Handler: unary(methodValidateRoomToken, ConsultationServiceServer.ValidateRoomToken)},
		{MethodName: "SetPresence", Handler: unary(methodSetPresence, ConsultationServiceServer.SetPresence)},
		{MethodName: "GetBalance", Handler: unary(methodGetBalance, ConsultationServiceServer.GetBalance)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamClientUpdates",
			Handler:       streamClientUpdatesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "consultation/v1/consultation.proto",
}

// ConsultationServiceClient always calls with the JSON codec.
type ConsultationServiceClient interface {
	RequestConsultation(ctx context.Context, in *RequestConsultationRequest, opts ...grpc.CallOption) (*RequestConsultationResponse, error)
	GetQueueStatus(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*QueueStatusResponse, error)
	CancelQueueEntry(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*CancelQueueEntryResponse, error)
	GetSession(ctx context.Context, in *GetSessionRequest, opts ...grpc.CallOption) (*Session, error)
	EndSession(ctx context.Context, in *EndSessionRequest, opts ...grpc.CallOption) (*Session, error)
	ValidateRoomToken(ctx context.Context, in *ValidateRoomTokenRequest, opts ...grpc.CallOption) (*RoomClaims, error)
	SetPresence(ctx context.Context, in *SetPresenceRequest, opts ...grpc.CallOption) (*Availability, error)
	GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*Balance, error)
	StreamClientUpdates(ctx context.Context, in *StreamClientUpdatesRequest, opts ...grpc.CallOption) (ConsultationService_StreamClientUpdatesClient, error)
}

type ConsultationService_StreamClientUpdatesClient interface {
	Recv() (*ClientUpdate, error)
	grpc.ClientStream
}

type consultationServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewConsultationServiceClient(cc grpc.ClientConnInterface) ConsultationServiceClient {
	return &consultationServiceClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *consultationServiceClient) RequestConsultation(ctx context.Context, in *RequestConsultationRequest, opts ...grpc.CallOption) (*RequestConsultationResponse, error) {
	return invoke[RequestConsultationResponse](ctx, c.cc, methodRequestConsultation, in, opts)
}

func (c *consultationServiceClient) GetQueueStatus(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*QueueStatusResponse, error) {
	return invoke[QueueStatusResponse](ctx, c.cc, methodGetQueueStatus, in, opts)
}

func (c *consultationServiceClient) CancelQueueEntry(ctx context.Context, in *QueueRequest, opts ...grpc.CallOption) (*CancelQueueEntryResponse, error) {
	return invoke[CancelQueueEntryResponse](ctx, c.cc, methodCancelQueueEntry, in, opts)
}

func (c *consultationServiceClient) GetSession(ctx context.Context, in *GetSessionRequest, opts ...grpc.CallOption) (*Session, error) {
	return invoke[Session](ctx, c.cc, methodGetSession, in, opts)
}

func (c *consultationServiceClient) EndSession(ctx context.Context, in *EndSessionRequest, opts ...grpc.CallOption) (*Session, error) {
	return invoke[Session](ctx, c.cc, methodEndSession, in, opts)
}

func (c *consultationServiceClient) ValidateRoomToken(ctx context.Context, in *ValidateRoomTokenRequest, opts ...grpc.CallOption) (*RoomClaims, error) {
	return invoke[RoomClaims](ctx, c.cc, methodValidateRoomToken, in, opts)
}

func (c *consultationServiceClient) SetPresence(ctx context.Context, in *SetPresenceRequest, opts ...grpc.CallOption) (*Availability, error) {
	return invoke[Availability](ctx, c.cc, methodSetPresence, in, opts)
}

func (c *consultationServiceClient) GetBalance(ctx context.Context, in *GetBalanceRequest, opts ...grpc.CallOption) (*Balance, error) {
	return invoke[Balance](ctx, c.cc, methodGetBalance, in, opts)
}

func (c *consultationServiceClient) StreamClientUpdates(ctx context.Context, in *StreamClientUpdatesRequest, opts ...grpc.CallOption) (ConsultationService_StreamClientUpdatesClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ConsultationService_ServiceDesc.Streams[0], methodStreamClientUpdates, opts...)
	if err != nil {
		return nil, err
	}
	x := &streamClientUpdatesClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type streamClientUpdatesClient struct {
	grpc.ClientStream
}

func (x *streamClientUpdatesClient) Recv() (*ClientUpdate, error) {
	m := new(ClientUpdate)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
