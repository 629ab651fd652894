package server

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "azurespeech.v1.Recognition"

const (
	recognizeMethod         = "/" + serviceName + "/Recognize"
	streamRecognitionMethod = "/" + serviceName + "/StreamRecognition"
)

// RecognitionServer is the server API of the recognition service.
type RecognitionServer interface {
	Recognize(context.Context, *RecognizeRequest) (*RecognizeResponse, error)
	StreamRecognition(RecognitionStreamServer) error
}

// RecognitionStreamServer is the server side of StreamRecognition.
type RecognitionStreamServer interface {
	Send(*StreamEvent) error
	Recv() (*StreamRequest, error)
	grpc.ServerStream
}

// ServiceDesc describes the recognition service for grpc.Server. Messages
// use the msgpack codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RecognitionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Recognize", Handler: recognizeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamRecognition", Handler: streamRecognitionHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "azurespeech/v1/recognition",
}

// RegisterRecognitionServer registers srv on s.
func RegisterRecognitionServer(s grpc.ServiceRegistrar, srv RecognitionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func recognizeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecognizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RecognitionServer).Recognize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recognizeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RecognitionServer).Recognize(ctx, req.(*RecognizeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func streamRecognitionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(RecognitionServer).StreamRecognition(&recognitionStreamServer{stream})
}

type recognitionStreamServer struct {
	grpc.ServerStream
}

func (x *recognitionStreamServer) Send(m *StreamEvent) error {
	return x.ServerStream.SendMsg(m)
}

func (x *recognitionStreamServer) Recv() (*StreamRequest, error) {
	m := new(StreamRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// RecognitionClient calls the recognition service with the msgpack codec.
type RecognitionClient struct {
	cc grpc.ClientConnInterface
}

// NewRecognitionClient wraps a client connection.
func NewRecognitionClient(cc grpc.ClientConnInterface) *RecognitionClient {
	return &RecognitionClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

// Recognize runs a single-shot recognition.
func (c *RecognitionClient) Recognize(ctx context.Context, in *RecognizeRequest, opts ...grpc.CallOption) (*RecognizeResponse, error) {
	out := new(RecognizeResponse)
	if err := c.cc.Invoke(ctx, recognizeMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

// StreamRecognition opens a continuous recognition stream. Send the
// session parameters and audio with Send, then CloseSend.
func (c *RecognitionClient) StreamRecognition(ctx context.Context, opts ...grpc.CallOption) (*RecognitionStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamRecognitionMethod, withCodec(opts)...)
	if err != nil {
		return nil, err
	}
	return &RecognitionStreamClient{stream: stream}, nil
}

// RecognitionStreamClient is the client side of StreamRecognition.
type RecognitionStreamClient struct {
	stream grpc.ClientStream
}

// Send transmits one request message.
func (x *RecognitionStreamClient) Send(m *StreamRequest) error {
	return x.stream.SendMsg(m)
}

// CloseSend marks the end of audio.
func (x *RecognitionStreamClient) CloseSend() error {
	return x.stream.CloseSend()
}

// Recv returns the next event, or io.EOF when the session has ended.
func (x *RecognitionStreamClient) Recv() (*StreamEvent, error) {
	m := new(StreamEvent)
	if err := x.stream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
