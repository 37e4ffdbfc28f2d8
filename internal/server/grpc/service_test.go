package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/session"
	"github.com/emmett/voxtask/internal/tasks"
)

type fakeBackend struct {
	mu        sync.Mutex
	active    bool
	cancelled int
	said      []string
	list      []tasks.Task
}

func (f *fakeBackend) Listen() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return "", session.ErrSessionActive
	}
	f.active = true
	return "session-42", nil
}

func (f *fakeBackend) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.cancelled++
}

func (f *fakeBackend) HandleTranscript(ctx context.Context, text string, conf float64) (app.CommandReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
	return app.CommandReport{Transcript: text, Confidence: conf, Intent: "add", Outcome: "created", Message: "Added " + text}, nil
}

func (f *fakeBackend) Tasks(ctx context.Context) ([]tasks.Task, error) {
	return f.list, nil
}

func (f *fakeBackend) Stats() confidence.Analytics {
	return confidence.Analytics{TotalAttempts: 4, SuccessfulRecognitions: 3, ErrorRate: 25, Threshold: 0.5, Adaptive: true}
}

type fakeSpeaker struct {
	mu    sync.Mutex
	lines []string
}

func (s *fakeSpeaker) Speak(text string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

type testEnv struct {
	client  *TaskVoiceClient
	backend *fakeBackend
	events  *EventStream
	speaker *fakeSpeaker
}

func newTestEnv(t *testing.T, withSpeaker bool) *testEnv {
	t.Helper()
	env := &testEnv{
		backend: &fakeBackend{list: []tasks.Task{
			{ID: 1, Text: "buy milk", Priority: tasks.PriorityHigh},
			{ID: 2, Text: "old", Completed: true},
			{ID: 3, Text: "call mom"},
		}},
		events: NewEventStream(),
	}
	var speaker Speaker
	if withSpeaker {
		env.speaker = &fakeSpeaker{}
		speaker = env.speaker
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(Config{Host: "localhost"}, NewTaskVoiceService(env.backend, speaker, env.events), zerolog.Nop())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env.client = NewTaskVoiceClient(conn)
	return env
}

func TestTaskVoice_ExecuteCommand(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	out, err := env.client.ExecuteCommand(ctx, "add buy milk", 0.8)
	require.NoError(t, err)
	assert.Equal(t, "created", out.GetFields()["outcome"].GetStringValue())
	assert.Equal(t, "Added add buy milk", out.GetFields()["message"].GetStringValue())
	assert.InDelta(t, 0.8, out.GetFields()["confidence"].GetNumberValue(), 1e-9)

	_, err = env.client.ExecuteCommand(ctx, "", 1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestTaskVoice_ListTasks(t *testing.T) {
	env := newTestEnv(t, false)

	out, err := env.client.ListTasks(context.Background())
	require.NoError(t, err)

	list := out.GetFields()["tasks"].GetListValue().GetValues()
	require.Len(t, list, 3)
	first := list[0].GetStructValue().GetFields()
	assert.Equal(t, "buy milk", first["text"].GetStringValue())
	assert.Equal(t, "high", first["priority"].GetStringValue())
	assert.Equal(t, 1.0, first["number"].GetNumberValue())

	third := list[2].GetStructValue().GetFields()
	assert.Equal(t, 2.0, third["number"].GetNumberValue())
}

func TestTaskVoice_GetStats(t *testing.T) {
	env := newTestEnv(t, false)

	out, err := env.client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4.0, out.GetFields()["total_attempts"].GetNumberValue())
	assert.Equal(t, 25.0, out.GetFields()["error_rate"].GetNumberValue())
	assert.True(t, out.GetFields()["adaptive"].GetBoolValue())
}

func TestTaskVoice_StartStop(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	id, err := env.client.StartListening(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-42", id)

	_, err = env.client.StartListening(ctx)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	require.NoError(t, env.client.StopListening(ctx))
	assert.Equal(t, 1, env.backend.cancelled)
}

func TestTaskVoice_Speak(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	require.NoError(t, env.client.Speak(ctx, "hello", 0))
	assert.Equal(t, []string{"hello"}, env.speaker.lines)

	err := env.client.Speak(ctx, "", 1)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	disabled := newTestEnv(t, false)
	err = disabled.client.Speak(ctx, "hello", 1)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestTaskVoice_WatchEvents(t *testing.T) {
	env := newTestEnv(t, false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := env.client.WatchEvents(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.events.Subscribers() == 1 }, 2*time.Second, time.Millisecond)

	env.events.Publish(app.Event{Type: app.EventFailure, Failure: &app.FailureView{Kind: "timeout", Message: "Timed out"}})

	msg, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "failure", msg.GetFields()["type"].GetStringValue())
	failure := msg.GetFields()["failure"].GetStructValue().GetFields()
	assert.Equal(t, "timeout", failure["kind"].GetStringValue())

	cancel()
	require.Eventually(t, func() bool { return env.events.Subscribers() == 0 }, 2*time.Second, time.Millisecond)
}
