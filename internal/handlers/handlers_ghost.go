package handlers

import (
	"context"
	"sync"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/proxy"
)

func entrySummary(e core.Entry) map[string]interface{} {
	summary := map[string]interface{}{
		"id":           e.Descriptor.ID,
		"display_name": e.Descriptor.DisplayName,
		"version":      e.Descriptor.Version,
		"state":        string(e.State),
		"generation":   e.Generation,
		"last_access":  e.LastAccess,
		"capabilities": e.Descriptor.Capabilities,
	}
	if e.LastError != nil {
		summary["last_error"] = e.LastError.Error()
	}
	return summary
}

func handleGhostList(_ context.Context, h *Host, _ map[string]interface{}) (map[string]interface{}, *core.HostError) {
	entries := h.Registry.List()
	tapes := make([]interface{}, len(entries))
	for i, e := range entries {
		tapes[i] = entrySummary(e)
	}
	return map[string]interface{}{"tapes": tapes, "total": len(entries)}, nil
}

func handleGhostGet(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, core.NewError(core.ErrBadRequest, "id is required", nil)
	}
	entry, hErr := h.Registry.Get(id)
	if hErr != nil {
		return nil, hErr
	}
	return map[string]interface{}{"tape": entrySummary(entry)}, nil
}

func handleGhostLaunch(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, core.NewError(core.ErrBadRequest, "id is required", nil)
	}
	if hErr := h.Registry.Mount(id); hErr != nil {
		return nil, hErr
	}
	entry, hErr := h.Registry.Get(id)
	if hErr != nil {
		return nil, hErr
	}
	return map[string]interface{}{"ok": true, "state": string(entry.State)}, nil
}

func handleGhostRoute(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, core.NewError(core.ErrBadRequest, "id is required", nil)
	}
	path, _ := input["path"].(string)
	method, _ := input["method"].(string)
	payload, _ := input["payload"].(map[string]interface{})

	return h.Proxy.Call(ctx, id, proxy.Request{Path: path, Method: method, Payload: payload}, 0)
}

func handleGhostDiscover(_ context.Context, h *Host, _ map[string]interface{}) (map[string]interface{}, *core.HostError) {
	result, err := h.Registry.Scan()
	if err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	failed := make(map[string]interface{}, len(result.Failed))
	for name, hErr := range result.Failed {
		failed[name] = hErr.Error()
	}
	registered := make([]interface{}, len(result.Registered))
	for i, id := range result.Registered {
		registered[i] = id
	}
	return map[string]interface{}{"registered": registered, "failed": failed}, nil
}

// swarmResult is one tape's outcome from a ghost_swarm fan-out.
type swarmResult struct {
	id      string
	payload map[string]interface{}
	err     *core.HostError
}

// handleGhostSwarm dispatches payload to every named tape concurrently via
// the inter-tape proxy and collects all outcomes before returning.
func handleGhostSwarm(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	rawIDs, ok := input["ids"].([]interface{})
	if !ok || len(rawIDs) == 0 {
		return nil, core.NewError(core.ErrBadRequest, "ids must be a non-empty array", nil)
	}
	payload, _ := input["payload"].(map[string]interface{})

	results := make(chan swarmResult, len(rawIDs))
	var wg sync.WaitGroup
	for _, raw := range rawIDs {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			out, hErr := h.Proxy.Call(ctx, id, proxy.Request{Payload: payload}, 0)
			results <- swarmResult{id: id, payload: out, err: hErr}
		}(id)
	}
	wg.Wait()
	close(results)

	report := make(map[string]interface{}, len(rawIDs))
	for r := range results {
		if r.err != nil {
			report[r.id] = map[string]interface{}{"ok": false, "error": string(r.err.Kind), "message": r.err.Message}
			continue
		}
		report[r.id] = map[string]interface{}{"ok": true, "result": r.payload}
	}
	return map[string]interface{}{"tapes": report}, nil
}

func handleGhostStatus(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	id, _ := input["id"].(string)
	if id == "" {
		return nil, core.NewError(core.ErrBadRequest, "id is required", nil)
	}
	entry, hErr := h.Registry.Get(id)
	if hErr != nil {
		return nil, hErr
	}
	result := map[string]interface{}{
		"state":       string(entry.State),
		"generation":  entry.Generation,
		"last_access": entry.LastAccess,
	}
	if entry.LastError != nil {
		result["last_error"] = entry.LastError.Error()
	}
	return result, nil
}
