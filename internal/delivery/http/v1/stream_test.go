package v1_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adanyl0v/go-todo-share/internal/models"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, ctx context.Context, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) frame {
	t.Helper()
	var f frame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func TestStreamSubscribe(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	owner := s.register("owner")
	stranger := s.register("stranger")

	_, env := s.do(http.MethodPost, "/api/v1/tasks", owner.Token, map[string]any{"title": "Plan"})
	task := decodeTask(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, srv, owner.Token)
	require.NoError(t, wsjson.Write(ctx, conn, map[string]string{"action": "subscribe", "taskId": task.ID}))
	ack := readFrame(t, ctx, conn)
	assert.Equal(t, "subscribed", ack.Event)
	assert.JSONEq(t, `{"taskId":"`+task.ID+`"}`, string(ack.Data))

	rec, _ := s.do(http.MethodPut, "/api/v1/tasks/"+task.ID, owner.Token, map[string]any{"isCompleted": true})
	require.Equal(t, http.StatusOK, rec.Code)

	update := readFrame(t, ctx, conn)
	assert.Equal(t, string(models.EventTaskUpdated), update.Event)
	var updated models.Task
	require.NoError(t, json.Unmarshal(update.Data, &updated))
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, int64(2), updated.Version)

	other := dialStream(t, ctx, srv, stranger.Token)
	require.NoError(t, wsjson.Write(ctx, other, map[string]string{"action": "subscribe", "taskId": task.ID}))
	denied := readFrame(t, ctx, other)
	assert.Equal(t, "error", denied.Event)

	require.NoError(t, wsjson.Write(ctx, other, map[string]string{"action": "dance", "taskId": task.ID}))
	assert.Equal(t, "error", readFrame(t, ctx, other).Event)
}

func TestStreamRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
