package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

type fakeRegistry struct {
	entries map[string]core.Entry
	entered []string
	exited  []string
}

func (f *fakeRegistry) Enter(id string) (core.Entry, *core.HostError) {
	f.entered = append(f.entered, id)
	e, ok := f.entries[id]
	if !ok {
		return core.Entry{}, core.NewError(core.ErrTapeNotFound, "tape not found", nil)
	}
	return e, nil
}

func (f *fakeRegistry) Exit(id string) {
	f.exited = append(f.exited, id)
}

func mountedEntry(api *core.APIEndpoint, network core.NetworkPermission) core.Entry {
	return core.Entry{
		State: core.StateMounted,
		Descriptor: core.Descriptor{
			API:         api,
			Permissions: core.Permissions{Network: network},
		},
	}
}

func TestCall_DispatchesToLocalHandler(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]core.Entry{
		"tape-a": mountedEntry(&core.APIEndpoint{Kind: core.EndpointLocalHandler, Value: "echo"}, core.NetLoopback),
	}}
	var gotHandler string
	dispatch := func(ctx context.Context, handlerName string, payload map[string]interface{}) (map[string]interface{}, *core.HostError) {
		gotHandler = handlerName
		return map[string]interface{}{"echoed": payload["msg"]}, nil
	}
	p := New(reg, dispatch, nil)

	result, hErr := p.Call(context.Background(), "tape-a", Request{Payload: map[string]interface{}{"msg": "hi"}}, 0)
	require.Nil(t, hErr)
	assert.Equal(t, "echo", gotHandler)
	assert.Equal(t, "hi", result["echoed"])
	assert.Equal(t, []string{"tape-a"}, reg.entered)
	assert.Equal(t, []string{"tape-a"}, reg.exited)
}

func TestCall_DispatchesToRemoteHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := &fakeRegistry{entries: map[string]core.Entry{
		"tape-b": mountedEntry(&core.APIEndpoint{Kind: core.EndpointRemoteHTTP, Value: srv.URL}, core.NetAny),
	}}
	p := New(reg, nil, nil)

	result, hErr := p.Call(context.Background(), "tape-b", Request{Payload: map[string]interface{}{}}, 0)
	require.Nil(t, hErr)
	assert.Equal(t, true, result["ok"])
}

func TestCall_RefusesTapeWithNoNetworkPermission(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]core.Entry{
		"tape-c": mountedEntry(&core.APIEndpoint{Kind: core.EndpointLocalHandler, Value: "echo"}, core.NetNone),
	}}
	p := New(reg, nil, nil)

	_, hErr := p.Call(context.Background(), "tape-c", Request{}, 0)
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrTapePermission, hErr.Kind)
}

func TestCall_UnmountedTapeReturnsBusy(t *testing.T) {
	entry := mountedEntry(&core.APIEndpoint{Kind: core.EndpointLocalHandler, Value: "echo"}, core.NetLoopback)
	entry.State = core.StateUnmounted
	reg := &fakeRegistry{entries: map[string]core.Entry{"tape-d": entry}}
	p := New(reg, nil, nil)

	_, hErr := p.Call(context.Background(), "tape-d", Request{}, 0)
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrTapeBusy, hErr.Kind)
}

func TestCall_UnknownTapeReturnsNotFound(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]core.Entry{}}
	p := New(reg, nil, nil)

	_, hErr := p.Call(context.Background(), "nope", Request{}, 0)
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrTapeNotFound, hErr.Kind)
}

func TestCall_HopLimitExceeded(t *testing.T) {
	reg := &fakeRegistry{entries: map[string]core.Entry{
		"tape-a": mountedEntry(&core.APIEndpoint{Kind: core.EndpointLocalHandler, Value: "echo"}, core.NetLoopback),
	}}
	p := New(reg, nil, nil, WithMaxHops(3))

	_, hErr := p.Call(context.Background(), "tape-a", Request{}, 3)
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrHopLimitExceeded, hErr.Kind)
	assert.Empty(t, reg.entered, "registry should not be entered once the hop limit is already exceeded")
}

func TestCallExternal_JoinsPathOntoBaseURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := New(&fakeRegistry{}, nil, map[string]string{"weather": srv.URL})

	_, hErr := p.CallExternal(context.Background(), "weather", Request{Path: "/forecast", Payload: map[string]interface{}{}})
	require.Nil(t, hErr)
	assert.Equal(t, "/forecast", gotPath)
}

func TestCallExternal_UnknownServiceReturnsBadRequest(t *testing.T) {
	p := New(&fakeRegistry{}, nil, map[string]string{})

	_, hErr := p.CallExternal(context.Background(), "nope", Request{})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrBadRequest, hErr.Kind)
}
