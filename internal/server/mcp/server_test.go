package mcp

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/confidence"
	"github.com/emmett/voxtask/internal/models"
	"github.com/emmett/voxtask/internal/stt"
	"github.com/emmett/voxtask/internal/tasks"
)

type fakeBackend struct {
	said []string
	list []tasks.Task
}

func (f *fakeBackend) HandleTranscript(ctx context.Context, text string, conf float64) (app.CommandReport, error) {
	f.said = append(f.said, text)
	return app.CommandReport{Transcript: text, Confidence: conf, Intent: "add", Outcome: "created", Message: "Added " + text}, nil
}

func (f *fakeBackend) Tasks(ctx context.Context) ([]tasks.Task, error) {
	return f.list, nil
}

func (f *fakeBackend) Stats() confidence.Analytics {
	return confidence.Analytics{TotalAttempts: 10, SuccessfulRecognitions: 9, ErrorRate: 10, Threshold: 0.45, Adaptive: true}
}

type fakeEngine struct {
	processed int
	levels    []float64
	final     string
}

func (e *fakeEngine) Initialize(stt.Config) error { return nil }

func (e *fakeEngine) ProcessAudio(ctx context.Context, data []byte) (*stt.Result, error) {
	e.processed++
	e.levels = append(e.levels, audio.RMSLevel(data))
	return &stt.Result{Text: "add", Partial: true}, nil
}

func (e *fakeEngine) FinalResult() (*stt.Result, error) {
	return &stt.Result{Text: e.final, Confidence: 0.85}, nil
}

func (e *fakeEngine) Reset() error        { return nil }
func (e *fakeEngine) Close() error        { return nil }
func (e *fakeEngine) IsInitialized() bool { return true }

// tone returns n frames of a loud 440 Hz tone followed by silence frames
func tone(speech, silence int) []byte {
	samples := (speech + silence) * frameSize / 2
	buf := make([]byte, samples*2)
	for i := 0; i < speech*frameSize/2; i++ {
		v := int16(12000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func connect(t *testing.T, opts Options) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	srv, err := NewServer(Config{ServerName: "voxtask-test", ServerVersion: "test"}, opts)
	require.NoError(t, err)

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverTransport)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *sdk.ClientSession, name string, args map[string]any) *sdk.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func texts(res *sdk.CallToolResult) []string {
	var out []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			out = append(out, tc.Text)
		}
	}
	return out
}

func TestNewServer_RequiresBackend(t *testing.T) {
	_, err := NewServer(Config{}, Options{})
	assert.Error(t, err)
}

func TestTools_Registered(t *testing.T) {
	cs := connect(t, Options{Backend: &fakeBackend{}, Logger: zerolog.Nop()})

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"run_voice_command", "list_tasks", "recognition_stats"}, names)
}

func TestRunVoiceCommand(t *testing.T) {
	backend := &fakeBackend{}
	cs := connect(t, Options{Backend: backend, Logger: zerolog.Nop()})

	res := callTool(t, cs, "run_voice_command", map[string]any{"text": "add buy milk", "confidence": 0.7})
	require.False(t, res.IsError)
	lines := texts(res)
	require.Len(t, lines, 2)
	assert.Equal(t, "Added add buy milk", lines[0])

	var report app.CommandReport
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &report))
	assert.InDelta(t, 0.7, report.Confidence, 1e-9)
	assert.Equal(t, []string{"add buy milk"}, backend.said)

	res = callTool(t, cs, "run_voice_command", map[string]any{"text": ""})
	assert.True(t, res.IsError)
}

func TestListTasks(t *testing.T) {
	backend := &fakeBackend{list: []tasks.Task{
		{ID: 1, Text: "done thing", Completed: true},
		{ID: 2, Text: "buy milk"},
	}}
	cs := connect(t, Options{Backend: backend, Logger: zerolog.Nop()})

	res := callTool(t, cs, "list_tasks", map[string]any{})
	lines := texts(res)
	require.Len(t, lines, 2)
	assert.Equal(t, "1 task(s)", lines[0])

	var body struct {
		Tasks []app.TaskView `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &body))
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, 1, body.Tasks[0].Number)

	res = callTool(t, cs, "list_tasks", map[string]any{"include_completed": true})
	assert.Equal(t, "2 task(s)", texts(res)[0])
}

func TestRecognitionStats(t *testing.T) {
	cs := connect(t, Options{Backend: &fakeBackend{}, Logger: zerolog.Nop()})

	res := callTool(t, cs, "recognition_stats", map[string]any{})
	lines := texts(res)
	assert.Equal(t, "10 attempts, 10.0% errors, threshold 0.45", lines[0])

	var stats StatsResult
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &stats))
	assert.Equal(t, 9, stats.SuccessfulRecognitions)
}

func TestTranscribeCommand(t *testing.T) {
	backend := &fakeBackend{}
	engine := &fakeEngine{final: "add water plants"}
	transcriber := NewTranscriber(func() (stt.Engine, error) { return engine, nil },
		audio.VADConfig{EnergyThreshold: 0.01, SpeechFrames: 2, SilenceFrames: 3})
	cs := connect(t, Options{Backend: backend, Transcriber: transcriber, Logger: zerolog.Nop()})

	pcm := base64.StdEncoding.EncodeToString(tone(10, 10))
	res := callTool(t, cs, "transcribe_command", map[string]any{"audio": pcm, "execute": true})
	require.False(t, res.IsError, texts(res))

	lines := texts(res)
	assert.Equal(t, `Heard "add water plants" (confidence 0.85): Added add water plants`, lines[0])
	assert.Equal(t, []string{"add water plants"}, backend.said)
	// leading silence skipped, trailing silence stops after the pause
	assert.Less(t, engine.processed, 20)

	res = callTool(t, cs, "transcribe_command", map[string]any{"audio": "not base64!"})
	assert.True(t, res.IsError)
}

func TestTranscriber_FeedsOnsetFrames(t *testing.T) {
	engine := &fakeEngine{final: "add milk"}
	tr := NewTranscriber(func() (stt.Engine, error) { return engine, nil },
		audio.VADConfig{EnergyThreshold: 0.01, SpeechFrames: 3, SilenceFrames: 3})

	// a lone blip, a gap, then 5 frames of speech and a pause
	pcm := append(tone(1, 2), tone(5, 6)...)
	res, err := tr.Transcribe(context.Background(), pcm)
	require.NoError(t, err)
	assert.Equal(t, "add milk", res.Text)

	// all 5 voiced frames plus the 3 quiet ones that end the utterance
	require.Equal(t, 8, engine.processed)
	for i, level := range engine.levels[:5] {
		assert.Greater(t, level, 0.01, "frame %d", i)
	}
	for i, level := range engine.levels[5:] {
		assert.Zero(t, level, "frame %d", i+5)
	}
}

func TestTranscriber_SilenceYieldsEmpty(t *testing.T) {
	engine := &fakeEngine{}
	tr := NewTranscriber(func() (stt.Engine, error) { return engine, nil }, audio.DefaultVADConfig())

	res, err := tr.Transcribe(context.Background(), tone(0, 20))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, engine.processed)
}

func TestListModels(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, models.DefaultModelName), 0755))
	cs := connect(t, Options{Backend: &fakeBackend{}, Models: models.NewManager(dir, nil), Logger: zerolog.Nop()})

	res := callTool(t, cs, "list_models", map[string]any{})
	assert.Equal(t, []string{"Downloaded models (1):", "- " + models.DefaultModelName + " [DEFAULT]"}, texts(res))
}
