package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

func TestKnown_RecognisesRegisteredHandlers(t *testing.T) {
	assert.True(t, Known("ping"))
	assert.True(t, Known("ghost_launch"))
	assert.False(t, Known("not-a-handler"))
}

func TestDispatch_UnknownHandlerReturnsHandlerUnknown(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "nope", nil)
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrHandlerUnknown, hErr.Kind)
}

func TestDispatch_NilInputIsReplacedWithEmptyMap(t *testing.T) {
	h := newTestHost(t)
	result, hErr := Dispatch(context.Background(), h, "echo", nil)
	require.Nil(t, hErr)
	assert.Equal(t, map[string]interface{}{}, result["echoed"])
}

func TestAsRouterLocal_DispatchesByEnvelopeProgramType(t *testing.T) {
	h := newTestHost(t)
	local := h.AsRouterLocal()
	env := core.Envelope{Program: core.Program{Type: "ping"}}
	result, hErr := local(context.Background(), env)
	require.Nil(t, hErr)
	assert.Equal(t, "ok", result["status"])
}

func TestAsLocalDispatcher_MatchesProxyContract(t *testing.T) {
	h := newTestHost(t)
	dispatch := h.AsLocalDispatcher()
	result, hErr := dispatch(context.Background(), "echo", map[string]interface{}{"x": 1.0})
	require.Nil(t, hErr)
	echoed := result["echoed"].(map[string]interface{})
	assert.Equal(t, 1.0, echoed["x"])
}
