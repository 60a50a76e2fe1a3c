package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

func TestEvalExpr_Arithmetic(t *testing.T) {
	h := newTestHost(t)
	result, hErr := Dispatch(context.Background(), h, "eval_expr", map[string]interface{}{"expression": "1 + 2 * 3"})
	require.Nil(t, hErr)
	assert.Equal(t, 7, result["result"])
}

func TestEvalExpr_UsesTaskContext(t *testing.T) {
	h := newTestHost(t)
	result, hErr := Dispatch(context.Background(), h, "eval_expr", map[string]interface{}{
		"expression": "score >= 0.5",
		"context":    map[string]interface{}{"score": 0.75},
	})
	require.Nil(t, hErr)
	assert.Equal(t, true, result["result"])
}

func TestEvalExpr_RejectsUnknownIdentifier(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "eval_expr", map[string]interface{}{"expression": "os.Getenv(\"PATH\")"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrExpressionReject, hErr.Kind)
}

func TestEvalExpr_RequiresExpression(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "eval_expr", map[string]interface{}{})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrBadRequest, hErr.Kind)
}
