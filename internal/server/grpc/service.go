package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/session"
	"github.com/emmett/voxtask/internal/tasks"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "voxtask.v1.TaskVoice"

// Backend is what the service exposes; *app.VoiceApp satisfies it
type Backend interface {
	Listen() (string, error)
	Cancel()
	HandleTranscript(ctx context.Context, text string, conf float64) (app.CommandReport, error)
	Tasks(ctx context.Context) ([]tasks.Task, error)
	Stats() confidence.Analytics
}

// TaskVoiceServer is the server API for the TaskVoice service. Messages are
// google.protobuf.Struct documents.
type TaskVoiceServer interface {
	// ExecuteCommand runs {text, confidence?} as a heard transcript
	ExecuteCommand(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListTasks returns {tasks: [...]}
	ListTasks(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// GetStats returns recognition analytics
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// StartListening begins a session and returns {session_id}
	StartListening(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// StopListening cancels the active session
	StopListening(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	// Speak says {text, rate?} through spoken feedback
	Speak(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	// WatchEvents streams application events until the client goes away
	WatchEvents(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// TaskVoiceService implements TaskVoiceServer over a Backend
type TaskVoiceService struct {
	backend Backend
	speaker Speaker
	events  *EventStream
}

// Speaker is the spoken feedback used by Speak
type Speaker interface {
	Speak(text string, rate float64)
}

// NewTaskVoiceService creates the service. speaker may be nil, which makes
// Speak unavailable.
func NewTaskVoiceService(backend Backend, speaker Speaker, events *EventStream) *TaskVoiceService {
	if events == nil {
		events = NewEventStream()
	}
	return &TaskVoiceService{backend: backend, speaker: speaker, events: events}
}

// ExecuteCommand implements TaskVoiceServer
func (s *TaskVoiceService) ExecuteCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	text := fields["text"].GetStringValue()
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	conf := 1.0
	if v, ok := fields["confidence"]; ok {
		conf = v.GetNumberValue()
	}

	report, err := s.backend.HandleTranscript(ctx, text, conf)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to execute command: %v", err)
	}
	return toStruct(report)
}

// ListTasks implements TaskVoiceServer
func (s *TaskVoiceService) ListTasks(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	list, err := s.backend.Tasks(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list tasks: %v", err)
	}
	return toStruct(map[string]any{"tasks": app.TaskViews(list)})
}

// GetStats implements TaskVoiceServer
func (s *TaskVoiceService) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	a := s.backend.Stats()
	return structpb.NewStruct(map[string]any{
		"total_attempts":          a.TotalAttempts,
		"successful_recognitions": a.SuccessfulRecognitions,
		"average_confidence":      a.AverageConfidence,
		"error_rate":              a.ErrorRate,
		"last_error_kind":         a.LastErrorKind,
		"threshold":               a.Threshold,
		"adaptive":                a.Adaptive,
	})
}

// StartListening implements TaskVoiceServer
func (s *TaskVoiceService) StartListening(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, err := s.backend.Listen()
	if errors.Is(err, session.ErrSessionActive) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to start listening: %v", err)
	}
	return structpb.NewStruct(map[string]any{"session_id": id})
}

// StopListening implements TaskVoiceServer
func (s *TaskVoiceService) StopListening(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.backend.Cancel()
	return &emptypb.Empty{}, nil
}

// Speak implements TaskVoiceServer
func (s *TaskVoiceService) Speak(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if s.speaker == nil {
		return nil, status.Error(codes.Unavailable, "spoken feedback is disabled")
	}
	fields := req.GetFields()
	text := fields["text"].GetStringValue()
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	rate := fields["rate"].GetNumberValue()
	if rate <= 0 {
		rate = 1
	}
	s.speaker.Speak(text, rate)
	return &emptypb.Empty{}, nil
}

// WatchEvents implements TaskVoiceServer
func (s *TaskVoiceService) WatchEvents(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	events, cancel := s.events.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := toStruct(ev)
			if err != nil {
				return status.Errorf(codes.Internal, "failed to encode event: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// toStruct converts a JSON-tagged value into a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return structpb.NewStruct(fields)
}

// RegisterTaskVoiceServer registers srv with s
func RegisterTaskVoiceServer(s grpc.ServiceRegistrar, srv TaskVoiceServer) {
	s.RegisterService(&TaskVoice_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](call func(TaskVoiceServer, context.Context, *Req) (*Resp, error), method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TaskVoiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TaskVoiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TaskVoiceServer).WatchEvents(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// TaskVoice_ServiceDesc describes the TaskVoice service
var TaskVoice_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TaskVoiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteCommand", Handler: unaryHandler(TaskVoiceServer.ExecuteCommand, "ExecuteCommand")},
		{MethodName: "ListTasks", Handler: unaryHandler(TaskVoiceServer.ListTasks, "ListTasks")},
		{MethodName: "GetStats", Handler: unaryHandler(TaskVoiceServer.GetStats, "GetStats")},
		{MethodName: "StartListening", Handler: unaryHandler(TaskVoiceServer.StartListening, "StartListening")},
		{MethodName: "StopListening", Handler: unaryHandler(TaskVoiceServer.StopListening, "StopListening")},
		{MethodName: "Speak", Handler: unaryHandler(TaskVoiceServer.Speak, "Speak")},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: watchEventsHandler, ServerStreams: true},
	},
	Metadata: "voxtask/v1/taskvoice.proto",
}
