// Package proxy implements C8: routing a request to another tape, either
// through its declared local handler (via the in-process handler set) or
// by issuing an HTTP call against its declared remote endpoint. Grounded
// on the teacher's internal/api/proxy.go "capture, consult, forward"
// shape, replacing its governance-verdict enforcement step with a
// permission-declaration gate (network == none refuses the call outright).
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ghostkernel/tapehost/internal/core"
)

// Request is the payload a caller wants delivered to a tape or external
// service.
type Request struct {
	Path    string
	Method  string
	Payload map[string]interface{}
}

// LocalDispatcher invokes a named handler from the C4 handler set with the
// given payload. Implemented by the handler set's dispatch entry point.
type LocalDispatcher func(ctx context.Context, handlerName string, payload map[string]interface{}) (map[string]interface{}, *core.HostError)

// RegistryLookup is the subset of the tape registry the proxy needs.
type RegistryLookup interface {
	Enter(id string) (core.Entry, *core.HostError)
	Exit(id string)
}

// Proxy dispatches inter-tape and external-service calls.
type Proxy struct {
	registry RegistryLookup
	dispatch LocalDispatcher
	client   *http.Client
	maxHops  int
	deadline time.Duration
	external map[string]string
}

// Option configures a Proxy at construction time.
type Option func(*Proxy)

// WithMaxHops overrides the default hop limit (8).
func WithMaxHops(n int) Option {
	return func(p *Proxy) { p.maxHops = n }
}

// WithDeadline overrides the default remote-call deadline (30s).
func WithDeadline(d time.Duration) Option {
	return func(p *Proxy) { p.deadline = d }
}

// New builds a Proxy. external maps a proxy-external service name to its
// base URL.
func New(registry RegistryLookup, dispatch LocalDispatcher, external map[string]string, opts ...Option) *Proxy {
	p := &Proxy{
		registry: registry,
		dispatch: dispatch,
		client:   &http.Client{},
		maxHops:  8,
		deadline: 30 * time.Second,
		external: external,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Call routes req to tapeID, through its local handler or remote endpoint.
// hops is the number of inter-tape hops already taken by the originating
// request; callers outside this package should pass 0.
func (p *Proxy) Call(ctx context.Context, tapeID string, req Request, hops int) (map[string]interface{}, *core.HostError) {
	if hops >= p.maxHops {
		return nil, core.NewError(core.ErrHopLimitExceeded,
			fmt.Sprintf("proxy chain exceeded %d hops", p.maxHops), nil)
	}

	entry, hErr := p.registry.Enter(tapeID)
	if hErr != nil {
		return nil, hErr
	}
	defer p.registry.Exit(tapeID)

	if entry.State != core.StateMounted {
		return nil, core.NewError(core.ErrTapeBusy,
			fmt.Sprintf("tape %q is %s, not mounted", tapeID, entry.State), map[string]interface{}{"state": string(entry.State)})
	}

	if entry.Descriptor.Permissions.Network == core.NetNone {
		return nil, core.NewError(core.ErrTapePermission,
			fmt.Sprintf("tape %q declares network permission \"none\"", tapeID), nil)
	}

	api := entry.Descriptor.API
	if api == nil {
		return nil, core.NewError(core.ErrManifestField,
			fmt.Sprintf("tape %q declares no api endpoint", tapeID), nil)
	}

	switch api.Kind {
	case core.EndpointLocalHandler:
		return p.dispatch(ctx, api.Value, req.Payload)
	case core.EndpointRemoteHTTP:
		return p.callRemote(ctx, api.Value, req)
	default:
		return nil, core.NewError(core.ErrManifestField,
			fmt.Sprintf("tape %q has an unrecognised api endpoint kind", tapeID), nil)
	}
}

// CallExternal dispatches req against a named external service from the
// proxy-external map (spec §4.8 supplement), joining req.Path onto the
// service's configured base URL.
func (p *Proxy) CallExternal(ctx context.Context, service string, req Request) (map[string]interface{}, *core.HostError) {
	base, ok := p.external[service]
	if !ok {
		return nil, core.NewError(core.ErrBadRequest, fmt.Sprintf("unknown external service %q", service), nil)
	}
	url := base
	if req.Path != "" {
		url = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(req.Path, "/")
	}
	return p.callRemote(ctx, url, req)
}

func (p *Proxy) callRemote(ctx context.Context, url string, req Request) (map[string]interface{}, *core.HostError) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewError(core.ErrBackendError,
			fmt.Sprintf("remote endpoint returned status %d", resp.StatusCode), nil)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, core.NewError(core.ErrBackendError, fmt.Sprintf("malformed response: %v", err), nil)
	}
	return payload, nil
}
