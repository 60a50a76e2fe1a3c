package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/config"
	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/events"
	"github.com/ghostkernel/tapehost/internal/handlers"
	"github.com/ghostkernel/tapehost/internal/kvstore"
	"github.com/ghostkernel/tapehost/internal/metrics"
	"github.com/ghostkernel/tapehost/internal/proxy"
	"github.com/ghostkernel/tapehost/internal/registry"
	"github.com/ghostkernel/tapehost/internal/router"
	"github.com/ghostkernel/tapehost/internal/scheduler"
	"github.com/ghostkernel/tapehost/internal/tribunal"
)

type stubObserver struct{}

func (stubObserver) CPULoad() float64             { return 0.1 }
func (stubObserver) DedicatedGPUAvailable() bool  { return false }
func (stubObserver) IntegratedGPUAvailable() bool { return false }
func (stubObserver) IntegratedGPULoad() float64   { return 0 }

type stubJudgeClient struct{}

func (stubJudgeClient) Evaluate(_ context.Context, _ tribunal.Judge, _ string, _ tribunal.Task) (tribunal.Vote, error) {
	return tribunal.Vote{Verdict: "approve", Confidence: 0.9, Reasoning: "stub"}, nil
}

func newTestServer(t *testing.T) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(t.TempDir())
	registry.SetHandlerLookup(handlers.Known)
	store := kvstore.NewMemoryStore()

	shards := []scheduler.Shard{{ID: "cpu-0", Engine: "stub", CPUCompatible: true}}
	caller := func(_ context.Context, _ scheduler.Shard, job scheduler.Job) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": job.Fingerprint}, nil
	}
	sched := scheduler.New(shards, nil, stubObserver{}, caller)
	trib := tribunal.New(stubJudgeClient{}, 10)
	swarm := config.SwarmConfig{FallbackAgent: "agent:c", Keywords: []config.KeywordRoute{{Keyword: "deploy", Agent: "agent:a"}}}

	host := handlers.NewHost(reg, store, sched, trib, nil, nil, nil, swarm, t.TempDir())
	prox := proxy.New(reg, host.AsLocalDispatcher(), map[string]string{})
	host.Proxy = prox

	rtr := router.New([]router.Backend{{Name: "local", URL: ""}}, host.AsRouterLocal())
	hub := events.NewHub()

	srv := New(Config{
		Host:    host,
		Router:  rtr,
		Registry: reg,
		Proxy:   prox,
		Hub:     hub,
		Metrics: testMetrics,
	})
	return srv, reg
}

// testMetrics is shared by every test server: metrics.New registers its
// collectors on the default Prometheus registry, which rejects a second
// registration of the same names.
var testMetrics = metrics.New()

func doRequest(srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleRun_DispatchesToLocalHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/run", map[string]interface{}{
		"program": map[string]interface{}{"type": "ping", "input": map[string]interface{}{}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
}

func TestHandleRun_RejectsMissingProgramType(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/run", map[string]interface{}{"program": map[string]interface{}{}})
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK)
	assert.Equal(t, string(core.ErrBadRequest), result.Error)
}

func TestHandleHealth_ReportsHandlerInventory(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["handlers"])
}

func TestHandleTapeLifecycle_MountUnmountReload(t *testing.T) {
	srv, reg := newTestServer(t)
	writeManifest(t, reg.Root(), "alpha")
	reg.Scan()

	rec := doRequest(srv, http.MethodPost, "/tapes/alpha/mount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mountResult core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mountResult))
	assert.True(t, mountResult.OK)
	assert.Equal(t, "mounted", mountResult.Result["state"])

	rec = doRequest(srv, http.MethodPost, "/tapes/alpha/unmount", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unmountResult core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unmountResult))
	assert.Equal(t, "unmounted", unmountResult.Result["state"])

	rec = doRequest(srv, http.MethodPost, "/tapes/alpha/reload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleTapeMount_UnknownTapeIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/tapes/ghost/mount", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK)
	assert.Equal(t, string(core.ErrTapeNotFound), result.Error)
}

func TestHandleTapeList_ReturnsDiscoveredTapes(t *testing.T) {
	srv, reg := newTestServer(t)
	writeManifest(t, reg.Root(), "alpha")
	reg.Scan()

	rec := doRequest(srv, http.MethodGet, "/tapes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.OK)
	tapes := result.Result["tapes"].([]interface{})
	assert.Len(t, tapes, 1)
}

func TestHandleSwarmRoute_RoutesByKeyword(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/swarm/route", map[string]interface{}{"text": "please deploy this"})
	require.Equal(t, http.StatusOK, rec.Code)

	var result core.ResultEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.OK)
	assert.Equal(t, "agent:a", result.Result["agent_id"])
}

func TestCORSMiddleware_SetsPermissiveHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRoute_ExposesPrometheusFormat(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# HELP")
}

func writeManifest(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644))
	body := "id: " + id + "\ndisplay_name: " + id + "\nversion: 1.0.0\nui_entry: index.html\napi: echo\npermissions:\n  network: loopback\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(body), 0o644))
}
