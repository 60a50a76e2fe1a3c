package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

func TestPing_AlwaysSucceeds(t *testing.T) {
	h := newTestHost(t)
	result, hErr := Dispatch(context.Background(), h, "ping", nil)
	require.Nil(t, hErr)
	assert.Equal(t, "ok", result["status"])
	assert.NotEmpty(t, result["timestamp"])
}

func TestInfo_ReportsUptimeAndTapeCount(t *testing.T) {
	h := newTestHost(t)
	result, hErr := Dispatch(context.Background(), h, "info", nil)
	require.Nil(t, hErr)
	assert.Equal(t, "tapehost", result["runtime"])
	assert.Equal(t, 0, result["tape_count"])
	assert.GreaterOrEqual(t, result["uptime_sec"].(float64), 0.0)
}

func TestEcho_ReturnsPayloadVerbatim(t *testing.T) {
	h := newTestHost(t)
	input := map[string]interface{}{"a": "b", "n": 3.0}
	result, hErr := Dispatch(context.Background(), h, "echo", input)
	require.Nil(t, hErr)
	assert.Equal(t, input, result["echoed"])
}

func TestStore_SetGetDeleteRoundTrip(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	_, hErr := Dispatch(ctx, h, "store", map[string]interface{}{"action": "set", "key": "k", "value": "v"})
	require.Nil(t, hErr)

	result, hErr := Dispatch(ctx, h, "store", map[string]interface{}{"action": "get", "key": "k"})
	require.Nil(t, hErr)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, "v", result["value"])

	_, hErr = Dispatch(ctx, h, "store", map[string]interface{}{"action": "delete", "key": "k"})
	require.Nil(t, hErr)

	result, hErr = Dispatch(ctx, h, "store", map[string]interface{}{"action": "get", "key": "k"})
	require.Nil(t, hErr)
	assert.Equal(t, false, result["ok"])
}

func TestStore_ListReturnsSortedKeys(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "store", map[string]interface{}{"action": "set", "key": "b", "value": 1.0})
	Dispatch(ctx, h, "store", map[string]interface{}{"action": "set", "key": "a", "value": 2.0})

	result, hErr := Dispatch(ctx, h, "store", map[string]interface{}{"action": "list"})
	require.Nil(t, hErr)
	assert.Equal(t, []interface{}{"a", "b"}, result["keys"])
}

func TestStore_ClearRemovesEverything(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "store", map[string]interface{}{"action": "set", "key": "a", "value": 1.0})
	_, hErr := Dispatch(ctx, h, "store", map[string]interface{}{"action": "clear"})
	require.Nil(t, hErr)

	result, _ := Dispatch(ctx, h, "store", map[string]interface{}{"action": "list"})
	assert.Empty(t, result["keys"])
}

func TestStore_UnknownActionIsBadRequest(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "store", map[string]interface{}{"action": "frobnicate"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrBadRequest, hErr.Kind)
}

func TestStore_SetWithoutKeyIsBadRequest(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "store", map[string]interface{}{"action": "set", "value": "v"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrBadRequest, hErr.Kind)
}
