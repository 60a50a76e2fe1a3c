package sandbox

import (
	"math"

	"github.com/expr-lang/expr"

	"github.com/ghostkernel/tapehost/internal/core"
)

// allowedConstants is the fixed set of identifiers eval_expr may resolve
// (spec §4.10: no identifiers resolve outside a small allow-list).
var allowedConstants = map[string]interface{}{
	"pi":  math.Pi,
	"e":   math.E,
	"inf": math.Inf(1),
}

// EvalExpression compiles and runs a restricted arithmetic/comparison/
// logical expression against the allow-listed math constants plus the
// caller-supplied task context. Compiling against a closed Env rejects any
// identifier or function call outside that environment at compile time, so
// there is no runtime code loading (spec §4.10).
func EvalExpression(expression string, taskContext map[string]interface{}) (interface{}, *core.HostError) {
	env := make(map[string]interface{}, len(allowedConstants)+len(taskContext))
	for k, v := range allowedConstants {
		env[k] = v
	}
	for k, v := range taskContext {
		if _, reserved := allowedConstants[k]; reserved {
			continue
		}
		env[k] = v
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, core.NewError(core.ErrExpressionReject, err.Error(), map[string]interface{}{"expression": expression})
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return nil, core.NewError(core.ErrExpressionReject, err.Error(), map[string]interface{}{"expression": expression})
	}
	return output, nil
}
