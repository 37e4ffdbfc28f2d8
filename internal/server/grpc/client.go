package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// TaskVoiceClient is the client API for the TaskVoice service
type TaskVoiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTaskVoiceClient creates a client over cc
func NewTaskVoiceClient(cc grpc.ClientConnInterface) *TaskVoiceClient {
	return &TaskVoiceClient{cc: cc}
}

func (c *TaskVoiceClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

// ExecuteCommand runs text as a transcript on the server
func (c *TaskVoiceClient) ExecuteCommand(ctx context.Context, text string, confidence float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{"text": text, "confidence": confidence})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ExecuteCommand", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTasks returns the server's task list
func (c *TaskVoiceClient) ListTasks(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "ListTasks", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats returns recognition analytics
func (c *TaskVoiceClient) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "GetStats", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StartListening begins a session on the server
func (c *TaskVoiceClient) StartListening(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "StartListening", &emptypb.Empty{}, out, opts...); err != nil {
		return "", err
	}
	return out.GetFields()["session_id"].GetStringValue(), nil
}

// StopListening cancels the server's active session
func (c *TaskVoiceClient) StopListening(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "StopListening", &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

// Speak asks the server to say text
func (c *TaskVoiceClient) Speak(ctx context.Context, text string, rate float64, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]any{"text": text, "rate": rate})
	if err != nil {
		return err
	}
	return c.invoke(ctx, "Speak", in, new(emptypb.Empty), opts...)
}

// WatchEvents streams server events until ctx is done
func (c *TaskVoiceClient) WatchEvents(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &TaskVoice_ServiceDesc.Streams[0], "/"+ServiceName+"/WatchEvents", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
