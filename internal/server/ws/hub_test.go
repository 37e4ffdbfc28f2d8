package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/voxtask/internal/app"
)

type fakeControl struct {
	listenErr error
	cancelled int
	said      []string
}

func (f *fakeControl) Listen() (string, error) {
	if f.listenErr != nil {
		return "", f.listenErr
	}
	return "session-1", nil
}

func (f *fakeControl) Cancel() { f.cancelled++ }

func (f *fakeControl) HandleTranscript(ctx context.Context, text string, conf float64) (app.CommandReport, error) {
	f.said = append(f.said, text)
	return app.CommandReport{Transcript: text, Intent: "add", Outcome: "created", Message: "Added " + text}, nil
}

func startHub(t *testing.T, control Controller) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(control, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)
	return hub, conn
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, conn := startHub(t, nil)

	hub.Publish(app.Event{Type: app.EventStatus, Status: &app.StatusView{State: "listening", Message: "listening"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev app.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, app.EventStatus, ev.Type)
	require.NotNil(t, ev.Status)
	assert.Equal(t, "listening", ev.Status.Message)
}

func TestHub_ControlMessages(t *testing.T) {
	control := &fakeControl{}
	_, conn := startHub(t, control)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var reply Reply
	require.NoError(t, conn.WriteJSON(Message{Type: "start"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "started", reply.Type)
	assert.Equal(t, "session-1", reply.SessionID)

	reply = Reply{}
	require.NoError(t, conn.WriteJSON(Message{Type: "say", Text: "buy milk"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "executed", reply.Type)
	require.NotNil(t, reply.Command)
	assert.Equal(t, "Added buy milk", reply.Command.Message)

	reply = Reply{}
	require.NoError(t, conn.WriteJSON(Message{Type: "stop"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "stopped", reply.Type)
	assert.Equal(t, 1, control.cancelled)

	reply = Reply{}
	require.NoError(t, conn.WriteJSON(Message{Type: "dance"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
}

func TestHub_StartError(t *testing.T) {
	_, conn := startHub(t, &fakeControl{listenErr: errors.New("recognition session already active")})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var reply Reply
	require.NoError(t, conn.WriteJSON(Message{Type: "start"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.Contains(t, reply.Error, "already active")
}

func TestHub_RefusesControlWithoutApp(t *testing.T) {
	_, conn := startHub(t, nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var reply Reply
	require.NoError(t, conn.WriteJSON(Message{Type: "start"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, conn := startHub(t, nil)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, time.Millisecond)
}
