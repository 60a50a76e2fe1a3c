package glyph

import "github.com/ghostkernel/tapehost/internal/core"

// Node is one record of the structured ("extended") front end: either a
// primitive token opcode expressed as a record, or a control-flow wrapper
// node (@if/@while/@for). Both share the Evaluator used by the token front
// end.
type Node struct {
	Op string `json:"op"`

	// Primitive fields (mirror Instruction for push/store/load/op).
	Arg string `json:"arg,omitempty"`

	// @if
	Cond string `json:"cond,omitempty"`
	Then []Node `json:"then,omitempty"`
	Else []Node `json:"else,omitempty"`

	// @while
	Do []Node `json:"do,omitempty"`

	// @for
	Var  string  `json:"var,omitempty"`
	From float64 `json:"from,omitempty"`
	To   float64 `json:"to,omitempty"`
	Step float64 `json:"step,omitempty"`
}

// ExecuteStructured runs a structured-record program through the same
// evaluator state as Execute.
func (e *Evaluator) ExecuteStructured(program []Node) (Value, *core.HostError) {
	if err := e.execNodes(program, nil); err != nil {
		return Value{}, err
	}
	return e.Top(), nil
}

func (e *Evaluator) execNodes(nodes []Node, scope map[string]Value) *core.HostError {
	for _, n := range nodes {
		if err := e.execNode(n, scope); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) execNode(n Node, scope map[string]Value) *core.HostError {
	switch n.Op {
	case "@if":
		if e.evalCond(n.Cond, scope) {
			return e.execNodes(n.Then, scope)
		}
		return e.execNodes(n.Else, scope)

	case "@while":
		count := 0
		for e.evalCond(n.Cond, scope) {
			count++
			if count > e.loopLimit {
				return core.NewError(core.ErrLoopLimit, "loop limit exceeded", map[string]interface{}{"limit": e.loopLimit})
			}
			if err := e.execNodes(n.Do, scope); err != nil {
				return err
			}
		}
		return nil

	case "@for":
		local := cloneScope(scope)
		count := 0
		step := n.Step
		if step == 0 {
			step = 1
		}
		for i := n.From; (step > 0 && i < n.To) || (step < 0 && i > n.To); i += step {
			count++
			if count > e.loopLimit {
				return core.NewError(core.ErrLoopLimit, "loop limit exceeded", map[string]interface{}{"limit": e.loopLimit})
			}
			local[n.Var] = Number(i)
			if err := e.execNodes(n.Do, local); err != nil {
				return err
			}
		}
		return nil

	case "fn-begin":
		return e.step(Instruction{Op: "fn-begin", Arg: n.Arg})
	case "fn-end":
		return e.step(Instruction{Op: "fn-end"})
	case "push":
		return e.step(Instruction{Op: "push", Arg: e.interpolate(n.Arg, scope)})
	case "store":
		return e.step(Instruction{Op: "store", Arg: n.Arg})
	case "load":
		if v, ok := scope[n.Arg]; ok {
			e.push(v)
			return nil
		}
		return e.step(Instruction{Op: "load", Arg: n.Arg})
	case "op":
		return e.step(Instruction{Op: "op", Arg: n.Arg})
	default:
		return core.NewError(core.ErrUnknownOperation, "unknown structured op", map[string]interface{}{"op": n.Op})
	}
}

// evalCond interprets a @if/@while condition field: a literal (true/false/
// number/string) or a ${name} reference, following the same literal grammar
// as push (spec §4.3 variable substitution rule).
func (e *Evaluator) evalCond(raw string, scope map[string]Value) bool {
	expanded := e.interpolate(raw, scope)
	v, err := parseLiteral(expanded)
	if err != nil {
		return false
	}
	return v.Truthy()
}

func cloneScope(scope map[string]Value) map[string]Value {
	out := make(map[string]Value, len(scope)+1)
	for k, v := range scope {
		out[k] = v
	}
	return out
}
