// Package router implements C5: priority-ordered backend selection with
// per-backend circuit breaking and transparent fallback to the in-process
// handler set. Grounded on the teacher's circuitbreaker.Manager for
// per-backend health tracking, adapted from "AOCS service name" keys to
// "backend name" keys.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ghostkernel/tapehost/internal/circuitbreaker"
	"github.com/ghostkernel/tapehost/internal/core"
)

// Backend is one entry in the router's priority-ordered list. The local
// backend (URL == "") is the always-available terminator.
type Backend struct {
	Name     string
	URL      string
	Priority int
	Deadline time.Duration
}

// LocalHandler is the in-process fallback: given an envelope, produce a
// result or a HostError. It never reports a connection failure.
type LocalHandler func(ctx context.Context, env core.Envelope) (map[string]interface{}, *core.HostError)

// Router selects the first reachable backend for each call, in descending
// priority order, falling back to the local handler set as the terminator.
type Router struct {
	backends []Backend
	breakers *circuitbreaker.Manager
	local    LocalHandler
	client   *http.Client
}

// New builds a Router. backends should already be sorted by descending
// priority; New does not re-sort so callers can express explicit ties.
func New(backends []Backend, local LocalHandler) *Router {
	return &Router{
		backends: backends,
		breakers: circuitbreaker.NewManager(circuitbreaker.DefaultConfig("")),
		local:    local,
		client:   &http.Client{},
	}
}

// Call dispatches env to the first reachable backend, returning the result
// envelope and the name of the backend that produced it.
func (r *Router) Call(ctx context.Context, env core.Envelope) core.ResultEnvelope {
	for _, b := range r.backends {
		if b.URL == "" {
			continue // local is tried last, as the terminator
		}
		breaker := r.breakers.Get(b.Name)

		var hErr *core.HostError
		outcome, execErr := breaker.Execute(func() (interface{}, error) {
			res, herr, connFailed := r.callRemote(ctx, b, env)
			if connFailed {
				return nil, fmt.Errorf("backend unreachable")
			}
			hErr = herr
			return res, nil
		})
		if execErr != nil {
			continue // breaker open, too-many-requests, or connection failure: try next backend
		}
		if hErr != nil {
			return core.Failure(b.Name, hErr)
		}
		return core.Success(b.Name, outcome.(map[string]interface{}))
	}

	result, hErr := r.local(ctx, env)
	if hErr != nil {
		return core.Failure("local", hErr)
	}
	return core.Success("local", result)
}

func (r *Router) callRemote(ctx context.Context, b Backend, env core.Envelope) (map[string]interface{}, *core.HostError, bool) {
	deadline := b.Deadline
	if deadline == 0 {
		deadline = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(env)
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), nil), false
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, b.URL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, true
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, true
	}

	var envelope core.ResultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, nil, true
	}
	if !envelope.OK {
		return nil, core.NewError(core.ErrorKind(envelope.Error), envelope.Message, nil), false
	}
	return envelope.Result, nil, false
}

// Backends returns the configured backend list, local included, for
// diagnostics (/health, /metrics).
func (r *Router) Backends() []Backend {
	return append([]Backend(nil), r.backends...)
}

// BreakerState reports the current circuit state for a named backend.
func (r *Router) BreakerState(name string) circuitbreaker.State {
	return r.breakers.Get(name).State()
}
