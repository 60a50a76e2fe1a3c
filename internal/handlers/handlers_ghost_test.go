package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

func writeTestTape(t *testing.T, root, id, api string, network core.NetworkPermission) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644))
	body := "id: " + id + "\ndisplay_name: " + id + "\nversion: 1.0.0\nui_entry: index.html\n"
	if api != "" {
		body += "api: " + api + "\n"
	}
	body += "permissions:\n  network: " + string(network) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(body), 0o644))
}

func TestGhostDiscoverAndList(t *testing.T) {
	h := newTestHost(t)
	writeTestTape(t, h.Registry.Root(), "alpha", "echo", core.NetLoopback)

	discResult, hErr := Dispatch(context.Background(), h, "ghost_discover", nil)
	require.Nil(t, hErr)
	assert.Contains(t, discResult["registered"], "alpha")

	listResult, hErr := Dispatch(context.Background(), h, "ghost_list", nil)
	require.Nil(t, hErr)
	tapes := listResult["tapes"].([]interface{})
	assert.Len(t, tapes, 1)
	assert.Equal(t, 1, listResult["total"])
}

func TestGhostGet_UnknownTapeIsNotFound(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "ghost_get", map[string]interface{}{"id": "missing"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrTapeNotFound, hErr.Kind)
}

func TestGhostLaunch_MountsTape(t *testing.T) {
	h := newTestHost(t)
	writeTestTape(t, h.Registry.Root(), "alpha", "echo", core.NetLoopback)
	Dispatch(context.Background(), h, "ghost_discover", nil)

	result, hErr := Dispatch(context.Background(), h, "ghost_launch", map[string]interface{}{"id": "alpha"})
	require.Nil(t, hErr)
	assert.Equal(t, "mounted", result["state"])
}

func TestGhostRoute_DispatchesThroughProxyToLocalHandler(t *testing.T) {
	h := newTestHost(t)
	writeTestTape(t, h.Registry.Root(), "alpha", "echo", core.NetLoopback)
	Dispatch(context.Background(), h, "ghost_discover", nil)

	result, hErr := Dispatch(context.Background(), h, "ghost_route", map[string]interface{}{
		"id":      "alpha",
		"payload": map[string]interface{}{"msg": "hi"},
	})
	require.Nil(t, hErr)
	echoed := result["echoed"].(map[string]interface{})
	assert.Equal(t, "hi", echoed["msg"])
}

func TestGhostSwarm_FansOutToMultipleTapes(t *testing.T) {
	h := newTestHost(t)
	writeTestTape(t, h.Registry.Root(), "alpha", "echo", core.NetLoopback)
	writeTestTape(t, h.Registry.Root(), "beta", "echo", core.NetLoopback)
	Dispatch(context.Background(), h, "ghost_discover", nil)

	result, hErr := Dispatch(context.Background(), h, "ghost_swarm", map[string]interface{}{
		"ids":     []interface{}{"alpha", "beta"},
		"payload": map[string]interface{}{"x": 1.0},
	})
	require.Nil(t, hErr)
	tapes := result["tapes"].(map[string]interface{})
	assert.Len(t, tapes, 2)
	alpha := tapes["alpha"].(map[string]interface{})
	assert.Equal(t, true, alpha["ok"])
}

func TestGhostSwarm_RequiresNonEmptyIDs(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "ghost_swarm", map[string]interface{}{"ids": []interface{}{}})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrBadRequest, hErr.Kind)
}

func TestGhostStatus_ReportsState(t *testing.T) {
	h := newTestHost(t)
	writeTestTape(t, h.Registry.Root(), "alpha", "echo", core.NetLoopback)
	Dispatch(context.Background(), h, "ghost_discover", nil)

	result, hErr := Dispatch(context.Background(), h, "ghost_status", map[string]interface{}{"id": "alpha"})
	require.Nil(t, hErr)
	assert.Equal(t, "mounted", result["state"])
}

func TestGhostRoute_RemoteHTTPEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"remote":true}`))
	}))
	defer srv.Close()

	h := newTestHost(t)
	writeTestTape(t, h.Registry.Root(), "remote-tape", srv.URL, core.NetAny)
	Dispatch(context.Background(), h, "ghost_discover", nil)

	result, hErr := Dispatch(context.Background(), h, "ghost_route", map[string]interface{}{"id": "remote-tape"})
	require.Nil(t, hErr)
	assert.Equal(t, true, result["remote"])
}
