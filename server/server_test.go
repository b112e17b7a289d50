package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/citmax/maxxi-live/config"
	"github.com/citmax/maxxi-live/metrics"
	"github.com/citmax/maxxi-live/session"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *session.Manager) {
	t.Helper()

	cfg := &config.Config{
		MaxSessions:    10,
		SessionTimeout: time.Minute,
		AllowedOrigins: []string{"*"},
		MaxBufferSize:  16000,
		Location:       time.UTC,
		ConnectRate:    100,
		ConnectBurst:   100,
	}
	if mutate != nil {
		mutate(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := metrics.New("test")
	manager := session.NewManager(cfg, nil, nil, nil, m)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	srv := httptest.NewServer(NewServerWebsocket(ctx, cfg, manager, m).Handler())
	t.Cleanup(srv.Close)
	return srv, manager
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func health(t *testing.T, srv *httptest.Server) HealthResponse {
	t.Helper()
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var h HealthResponse
	require.NoError(t, sonic.Unmarshal(body, &h))
	return h
}

func TestHealthCountsSessions(t *testing.T) {
	srv, manager := newTestServer(t, nil)

	assert.Equal(t, HealthResponse{Status: "ok"}, health(t, srv))

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return manager.GetActiveSessionCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, health(t, srv).Sessions)
	assert.Equal(t, 0, health(t, srv).Calls)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return health(t, srv).Sessions == 0 }, time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_sessions_active")
}

func TestConnectRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.ConnectRate = 0.001
		cfg.ConnectBurst = 1
	})

	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer first.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "RATE_LIMITED")
}

func TestOriginNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"https://portal.citmax.com.br"}
	})

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://portal.citmax.com.br")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	_ = ws.Close()
}

func TestCapacityRejection(t *testing.T) {
	srv, _ := newTestServer(t, func(cfg *config.Config) { cfg.MaxSessions = 0 })

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer ws.Close()

	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			Code string `json:"code"`
		} `json:"payload"`
	}
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "SESSION_FAILED", msg.Payload.Code)
}
