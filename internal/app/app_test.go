package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crunchcli/internal/config"
	"crunchcli/internal/shared/testutil"
	api "crunchcli/pkg/contracts/api/v1"
	"crunchcli/pkg/contracts/events"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.InputDir = t.TempDir()
	cfg.Server.RateLimit.Enabled = false
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	a, err := New(cfg, logger)
	require.NoError(t, err)
	return a
}

func TestNew_Routes(t *testing.T) {
	a := newApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.OTelProviders.Shutdown(context.Background()) })

	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{path: config.HealthEndpoint, wantStatus: http.StatusOK, wantBody: `"status":"healthy"`},
		{path: "/api/version", wantStatus: http.StatusOK, wantBody: `"api_version":"v1"`},
		{path: config.MetricsEndpoint, wantStatus: http.StatusOK, wantBody: "target_info"},
		{path: config.BatchesEndpoint, wantStatus: http.StatusOK, wantBody: `"count":0`},
		{path: "/nowhere", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				var buf bytes.Buffer
				_, err := buf.ReadFrom(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, buf.String(), tt.wantBody)
			}
		})
	}
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.MetricsEnabled = false
	a := newApp(t, cfg)
	t.Cleanup(func() { _ = a.OTelProviders.Shutdown(context.Background()) })

	srv := httptest.NewServer(a.Router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + config.MetricsEndpoint)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestApplication_Serve runs a batch end to end: it is submitted over HTTP,
// its progress arrives over the websocket and the server stops with ctx.
func TestApplication_Serve(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)

	dir := t.TempDir()
	testutil.WriteCSV(t, dir, "VT2816A_m2V5_R10V_CH1.csv", []string{"Time", "Voltage"},
		[]string{"0", "-2.5"}, []string{"1", "-2.4"})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + config.HealthEndpoint)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+config.WebSocketEndpoint, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type events.MessageType   `json:"type"`
		Data events.BatchSnapshot `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.MessageTypeConnect, msg.Type)

	body, err := json.Marshal(api.CreateBatchRequest{InputDir: dir, Format: "json"})
	require.NoError(t, err)
	resp, err := http.Post(base+config.BatchesEndpoint, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == events.MessageTypeBatchSnapshot && msg.Data.Status == "completed" {
			break
		}
	}
	assert.Equal(t, 100, msg.Data.Progress)
	assert.FileExists(t, dir+"/"+config.ResultFileBase+".json")

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, err = http.Get(base + config.HealthEndpoint)
	assert.Error(t, err)
}

func TestApplication_RunInvalidAddress(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	a := newApp(t, testConfig(t))
	t.Cleanup(func() { _ = a.OTelProviders.Shutdown(context.Background()) })
	a.Server.Addr = busy.Addr().String()

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
