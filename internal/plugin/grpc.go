package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/felixgeelhaar/recall/internal/capture"
)

// Wire messages are protobuf well-known types so no generated code is
// needed: windows and rectangles travel as Structs, frames as PNG bytes.
const (
	serviceName        = "recall.plugin.Capture"
	activeWindowMethod = "/" + serviceName + "/ActiveWindow"
	grabMethod         = "/" + serviceName + "/Grab"
)

// CaptureServer is the server side of the capture service.
type CaptureServer interface {
	ActiveWindow(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Grab(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
}

var captureServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CaptureServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ActiveWindow", Handler: activeWindowHandler},
		{MethodName: "Grab", Handler: grabHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recall/plugin/capture",
}

// RegisterCaptureServer registers srv on s.
func RegisterCaptureServer(s grpc.ServiceRegistrar, srv CaptureServer) {
	s.RegisterService(&captureServiceDesc, srv)
}

func activeWindowHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CaptureServer).ActiveWindow(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: activeWindowMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CaptureServer).ActiveWindow(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func grabHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CaptureServer).Grab(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: grabMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CaptureServer).Grab(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer is the gRPC server that calls the local implementation.
type GRPCServer struct {
	Impl capture.Backend
}

func (s *GRPCServer) ActiveWindow(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	w, err := s.Impl.ActiveWindow(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]any{
		"left":   w.Rect.Left,
		"top":    w.Rect.Top,
		"width":  w.Rect.Width,
		"height": w.Rect.Height,
		"title":  w.Title,
	})
}

func (s *GRPCServer) Grab(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	img, err := s.Impl.Grab(ctx, rectFrom(req))
	if err != nil {
		return nil, toStatus(err)
	}
	encoded, err := capture.Encode(img)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(encoded), nil
}

func toStatus(err error) error {
	if errors.Is(err, capture.ErrNoActiveWindow) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}

func fromStatus(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", capture.ErrNoActiveWindow, status.Convert(err).Message())
	}
	return err
}

func rectFrom(s *structpb.Struct) capture.Rect {
	num := func(k string) int {
		return int(s.GetFields()[k].GetNumberValue())
	}
	return capture.Rect{Left: num("left"), Top: num("top"), Width: num("width"), Height: num("height")}
}

// GRPCClient is a capture.Backend that talks over RPC.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

func (c *GRPCClient) ActiveWindow(ctx context.Context) (capture.Window, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, activeWindowMethod, &emptypb.Empty{}, out); err != nil {
		return capture.Window{}, fromStatus(err)
	}
	return capture.Window{
		Rect:  rectFrom(out),
		Title: out.GetFields()["title"].GetStringValue(),
	}, nil
}

func (c *GRPCClient) Grab(ctx context.Context, r capture.Rect) (image.Image, error) {
	in, err := structpb.NewStruct(map[string]any{
		"left":   r.Left,
		"top":    r.Top,
		"width":  r.Width,
		"height": r.Height,
	})
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, grabMethod, in, out); err != nil {
		return nil, fromStatus(err)
	}
	img, err := png.Decode(bytes.NewReader(out.GetValue()))
	if err != nil {
		return nil, fmt.Errorf("plugin returned an undecodable frame: %w", err)
	}
	return img, nil
}
