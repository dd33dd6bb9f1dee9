package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptyst/adaptyst/internal/infrastructure/monitoring"
	"github.com/adaptyst/adaptyst/internal/infrastructure/tracing"
	"github.com/adaptyst/adaptyst/internal/shared/id"
	"github.com/adaptyst/adaptyst/internal/system"
)

type fakeSource struct{ st system.Status }

func (f fakeSource) Status() system.Status { return f.st }

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tracer := tracing.New(id.NewSessionID(), nil)
	t.Cleanup(tracer.Close)

	srv := New(Config{Metrics: monitoring.NewMetrics(), Tracer: tracer, Development: true})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.hub.Close()
		ts.Close()
	})
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	code, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestEntities(t *testing.T) {
	srv, ts := newTestServer(t)

	code, _ := get(t, ts.URL+"/entities")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	exit := 0
	srv.Attach(fakeSource{st: system.Status{
		Session: "sess_1",
		Entities: []system.EntityStatus{{
			Name:     "app",
			State:    system.StateFinished,
			ExitCode: &exit,
		}},
		Breakers: map[string]string{},
	}})

	code, body := get(t, ts.URL+"/entities")
	require.Equal(t, http.StatusOK, code)
	var st system.Status
	require.NoError(t, sonic.UnmarshalString(body, &st))
	assert.Equal(t, "sess_1", st.Session)
	require.Len(t, st.Entities, 1)
	assert.Equal(t, "app", st.Entities[0].Name)
	require.NotNil(t, st.Entities[0].ExitCode)
	assert.Equal(t, 0, *st.Entities[0].ExitCode)
}

func TestMetricsAndTrace(t *testing.T) {
	_, ts := newTestServer(t)

	get(t, ts.URL+"/health")
	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "adaptyst_")

	require.Eventually(t, func() bool {
		_, body := get(t, ts.URL+"/trace")
		return strings.Contains(body, "http /health")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/entities", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventStream(t *testing.T) {
	srv, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Message
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "system", hello.Type)
	assert.NotEmpty(t, hello.Client)
	assert.Equal(t, 1, srv.hub.Len())

	srv.Publish(system.Event{Kind: system.EventWorkflowReleased, Entity: "app"})

	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, system.EventWorkflowReleased, msg.Event.Kind)
	assert.Equal(t, "app", msg.Event.Entity)

	srv.hub.Close()
	_, _, err = ws.ReadMessage()
	assert.Error(t, err)
}

func TestStartAndShutdown(t *testing.T) {
	srv := New(Config{Address: "127.0.0.1:0"})
	assert.Equal(t, "", srv.Addr())
	require.NoError(t, srv.Start())

	code, _ := get(t, "http://"+srv.Addr()+"/health")
	assert.Equal(t, http.StatusOK, code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err := http.Get("http://" + srv.Addr() + "/health")
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := New(Config{RateLimit: RateLimitConfig{RequestsPerSecond: 1, Burst: 2}})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		srv.Handler().ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
