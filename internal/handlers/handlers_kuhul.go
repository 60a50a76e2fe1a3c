package handlers

import (
	"context"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/glyph"
	"github.com/ghostkernel/tapehost/internal/scheduler"
)

func jobFromInput(input map[string]interface{}) scheduler.Job {
	fingerprint, _ := input["fingerprint"].(string)
	shardID, _ := input["shard_id"].(string)
	policyID, _ := input["policy_id"].(string)
	priority, _ := input["priority"].(float64)
	hints, _ := input["hints"].(map[string]interface{})
	return scheduler.Job{
		Fingerprint: fingerprint,
		Priority:    priority,
		ShardID:     shardID,
		PolicyID:    policyID,
		Hints:       hints,
	}
}

func resultToPayload(r scheduler.Result) map[string]interface{} {
	return map[string]interface{}{
		"device":     r.Device,
		"engine":     r.Engine,
		"endpoint":   r.Endpoint,
		"result":     r.Payload,
		"latency_ms": r.LatencyMs,
	}
}

// handleKuhulProfile reports the shape of a job without scheduling it: a
// preview of what device the policy rules would pick next, so the caller
// sees the decision but not a committed engine call.
func handleKuhulProfile(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	job := jobFromInput(input)
	result, hErr := h.Scheduler.Preview(job)
	if hErr != nil {
		return nil, hErr
	}
	return map[string]interface{}{
		"device":   result.Device,
		"engine":   result.Engine,
		"endpoint": result.Endpoint,
	}, nil
}

// handleKuhulRoute and handleKuhulSchedule both delegate to the device
// scheduler and accept the same Job fields (fingerprint, shard_id,
// policy_id, priority, hints); the two names behave identically.
func handleKuhulRoute(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	job := jobFromInput(input)
	result, hErr := h.Scheduler.Schedule(ctx, job)
	if hErr != nil {
		return nil, hErr
	}
	return resultToPayload(result), nil
}

func handleKuhulSchedule(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	job := jobFromInput(input)
	result, hErr := h.Scheduler.Schedule(ctx, job)
	if hErr != nil {
		return nil, hErr
	}
	return resultToPayload(result), nil
}

func handleKuhulStatus(_ context.Context, h *Host, _ map[string]interface{}) (map[string]interface{}, *core.HostError) {
	return map[string]interface{}{"metrics": h.Scheduler.Stats()}, nil
}

// handleKuhulGlyph runs a glyph VM program against the host's shared
// evaluator (spec §4.3/§4.4, delegated to C3). Accepts either a
// token-stream "program" (array of {op,arg}) or a structured-front-end
// "structured" program (array of Nodes); at least one must be present, and
// "structured" is run when both are. A "reset" key resets the VM instead of
// running anything.
func handleKuhulGlyph(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	if _, ok := input["reset"]; ok {
		h.glyphMu.Lock()
		h.glyphVM.Reset()
		h.glyphMu.Unlock()
		return map[string]interface{}{"ok": true}, nil
	}

	if raw, ok := input["structured"].([]interface{}); ok {
		nodes, err := decodeNodes(raw)
		if err != nil {
			return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
		}
		top, hErr := h.withGlyph(func(e *glyph.Evaluator) (glyph.Value, *core.HostError) {
			return e.ExecuteStructured(nodes)
		})
		if hErr != nil {
			return nil, hErr
		}
		return map[string]interface{}{"result": valueToPayload(top)}, nil
	}

	raw, ok := input["program"].([]interface{})
	if !ok {
		return nil, core.NewError(core.ErrBadRequest, "program or structured is required", nil)
	}
	instructions, err := decodeInstructions(raw)
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
	}
	top, hErr := h.withGlyph(func(e *glyph.Evaluator) (glyph.Value, *core.HostError) {
		return e.Execute(instructions)
	})
	if hErr != nil {
		return nil, hErr
	}
	return map[string]interface{}{"result": valueToPayload(top)}, nil
}

func valueToPayload(v glyph.Value) interface{} {
	switch v.Kind {
	case glyph.KindNumber:
		return v.Num
	case glyph.KindBool:
		return v.Bool
	case glyph.KindString:
		return v.Str
	default:
		return nil
	}
}
