package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghostkernel/tapehost/internal/core"
)

func handlePing(_ context.Context, _ *Host, _ map[string]interface{}) (map[string]interface{}, *core.HostError) {
	return map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func handleInfo(_ context.Context, h *Host, _ map[string]interface{}) (map[string]interface{}, *core.HostError) {
	alloc, sys := memStats()
	result := map[string]interface{}{
		"runtime":     "tapehost",
		"uptime_sec":  h.Uptime().Seconds(),
		"mem_alloc":   alloc,
		"mem_sys":     sys,
		"tape_count":  len(h.Registry.List()),
		"judge_count": len(h.Judges),
	}
	if h.Pool != nil {
		result["sandbox_pool"] = h.Pool.Stats()
	}
	return result, nil
}

func handleEcho(_ context.Context, _ *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	return map[string]interface{}{"echoed": input}, nil
}

// handleStore implements the shared process-wide key/value map (spec §4.4:
// action ∈ {set, get, delete, list, clear}).
func handleStore(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	action, _ := input["action"].(string)
	key, _ := input["key"].(string)

	switch action {
	case "set":
		if key == "" {
			return nil, core.NewError(core.ErrBadRequest, "store set requires a key", nil)
		}
		encoded, err := json.Marshal(input["value"])
		if err != nil {
			return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
		}
		if err := h.Store.Set(ctx, key, string(encoded)); err != nil {
			return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
		}
		return map[string]interface{}{"ok": true, "key": key}, nil

	case "get":
		if key == "" {
			return nil, core.NewError(core.ErrBadRequest, "store get requires a key", nil)
		}
		raw, ok, err := h.Store.Get(ctx, key)
		if err != nil {
			return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
		}
		if !ok {
			return map[string]interface{}{"ok": false, "key": key}, nil
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		return map[string]interface{}{"ok": true, "key": key, "value": value}, nil

	case "delete":
		if key == "" {
			return nil, core.NewError(core.ErrBadRequest, "store delete requires a key", nil)
		}
		if err := h.Store.Delete(ctx, key); err != nil {
			return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
		}
		return map[string]interface{}{"ok": true, "key": key}, nil

	case "list":
		keys, err := h.Store.List(ctx)
		if err != nil {
			return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
		}
		keysIface := make([]interface{}, len(keys))
		for i, k := range keys {
			keysIface[i] = k
		}
		return map[string]interface{}{"ok": true, "keys": keysIface}, nil

	case "clear":
		if err := h.Store.Clear(ctx); err != nil {
			return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
		}
		return map[string]interface{}{"ok": true}, nil

	default:
		return nil, core.NewError(core.ErrBadRequest, fmt.Sprintf("unknown store action %q", action), map[string]interface{}{"action": action})
	}
}
