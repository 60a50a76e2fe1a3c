package handlers

import (
	"context"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/sandbox"
)

// handleEvalExpr runs a restricted expression through the sandboxed
// evaluator (spec §4.10, delegated to C10); identifiers outside the
// allow-list and the supplied task context are rejected at compile time.
func handleEvalExpr(_ context.Context, _ *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	expression, ok := input["expression"].(string)
	if !ok || expression == "" {
		return nil, core.NewError(core.ErrBadRequest, "expression is required", nil)
	}
	taskContext, _ := input["context"].(map[string]interface{})

	out, hErr := sandbox.EvalExpression(expression, taskContext)
	if hErr != nil {
		return nil, hErr
	}
	return map[string]interface{}{"result": out}, nil
}
