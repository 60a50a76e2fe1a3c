package handlers

import (
	"context"

	"github.com/ghostkernel/tapehost/internal/core"
)

// handleMicronautMarker builds a handler for one of the model-backed
// operations. No inference model is wired into this host: per spec §4.4,
// model absence is not a failure, so every call succeeds with a marker
// result a caller can recognise and branch on rather than an error.
func handleMicronautMarker(op string) HandlerFunc {
	return func(_ context.Context, _ *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
		prompt, _ := input["prompt"].(string)
		return map[string]interface{}{
			"status":    "model-unavailable",
			"marker":    true,
			"operation": op,
			"prompt":    prompt,
			"options":   input["options"],
		}, nil
	}
}

func handleMicronautStatus(_ context.Context, _ *Host, _ map[string]interface{}) (map[string]interface{}, *core.HostError) {
	return map[string]interface{}{
		"status":       "model-unavailable",
		"marker":       true,
		"model_loaded": false,
	}, nil
}
