// Package glyph implements C3: the stack-machine VM used as the extension
// language for tape logic. Two front ends — a bracketed-token stream and a
// structured-record control-flow wrapper — share one Evaluator so neither
// front end can observe stack/variable state the other hasn't made (spec
// §9 DESIGN NOTES: treat the token and structured engines as one subsystem).
package glyph

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/ghostkernel/tapehost/internal/core"
)

// DefaultLoopLimit bounds the iteration count of each structured @while and
// @for loop (spec §4.3: hard iteration cap 10^4).
const DefaultLoopLimit = 10000

// Instruction is one token-stream opcode: fn-begin, push, store, load, op,
// or fn-end.
type Instruction struct {
	Op  string
	Arg string
}

// Evaluator holds the VM's mutable state: the operand stack, variable
// bindings, and recorded function bodies. Reset clears the stack and
// variables but preserves function bodies (spec §4.3 Contract).
type Evaluator struct {
	stack     []Value
	vars      map[string]Value
	functions map[string][]Instruction
	recording string
	output    []string
	loopLimit int
	rng       *rand.Rand
}

// NewEvaluator builds an Evaluator with an empty stack and no variables.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		vars:      make(map[string]Value),
		functions: make(map[string][]Instruction),
		loopLimit: DefaultLoopLimit,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// SetLoopLimit overrides the default iteration cap (spec §4.3 Non-goals:
// configurable, default 10^4).
func (e *Evaluator) SetLoopLimit(n int) { e.loopLimit = n }

// Reset clears stack, variables and current-function tracking while keeping
// recorded function bodies (spec §8 reset invariant).
func (e *Evaluator) Reset() {
	e.stack = nil
	e.vars = make(map[string]Value)
	e.recording = ""
	e.output = nil
}

// Top returns the current top-of-stack, or Null if the stack is empty.
func (e *Evaluator) Top() Value {
	if len(e.stack) == 0 {
		return Null()
	}
	return e.stack[len(e.stack)-1]
}

// Variables returns a copy of the current variable bindings.
func (e *Evaluator) Variables() map[string]Value {
	out := make(map[string]Value, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Output returns accumulated print side effects since the last Reset.
func (e *Evaluator) Output() []string {
	return append([]string(nil), e.output...)
}

func (e *Evaluator) push(v Value) { e.stack = append(e.stack, v) }

func (e *Evaluator) pop() (Value, *core.HostError) {
	if len(e.stack) == 0 {
		return Value{}, core.NewError(core.ErrStackUnderflow, "stack underflow", nil)
	}
	v := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return v, nil
}

// Execute runs a token-stream program and returns the top-of-stack (Null if
// the stack ends empty), per the execute(program) → top-of-stack | nil
// contract.
func (e *Evaluator) Execute(program []Instruction) (Value, *core.HostError) {
	for _, instr := range program {
		if err := e.step(instr); err != nil {
			return Value{}, err
		}
	}
	return e.Top(), nil
}

func (e *Evaluator) step(instr Instruction) *core.HostError {
	if e.recording != "" && instr.Op != "fn-end" {
		e.functions[e.recording] = append(e.functions[e.recording], instr)
	}

	switch instr.Op {
	case "fn-begin":
		e.recording = instr.Arg
		return nil
	case "fn-end":
		e.recording = ""
		return nil
	case "push":
		v, err := parseLiteral(instr.Arg)
		if err != nil {
			return err
		}
		e.push(v)
		return nil
	case "store":
		v, err := e.pop()
		if err != nil {
			return err
		}
		e.vars[instr.Arg] = v
		return nil
	case "load":
		v, ok := e.vars[instr.Arg]
		if !ok {
			return core.NewError(core.ErrUndefinedVariable, "undefined variable", map[string]interface{}{"name": instr.Arg})
		}
		e.push(v)
		return nil
	case "op":
		return e.applyOp(instr.Arg)
	default:
		return core.NewError(core.ErrUnknownOperation, "unknown opcode", map[string]interface{}{"opcode": instr.Op})
	}
}

// CallFunction replays a previously recorded function body against the
// current stack/variable state.
func (e *Evaluator) CallFunction(name string) (Value, *core.HostError) {
	body, ok := e.functions[name]
	if !ok {
		return Value{}, core.NewError(core.ErrUndefinedVariable, "no function body recorded", map[string]interface{}{"name": name})
	}
	return e.Execute(body)
}

func (e *Evaluator) applyOp(kind string) *core.HostError {
	switch kind {
	case "add", "sub", "mul", "div":
		return e.binaryArith(kind)
	case "gt", "lt", "gte", "lte":
		return e.binaryCompareNumeric(kind)
	case "eq", "neq":
		return e.binaryCompareEquality(kind)
	case "and", "or":
		return e.binaryBool(kind)
	case "not":
		return e.unaryNot()
	case "print":
		return e.doPrint()
	case "rand":
		e.push(Number(e.rng.Float64()))
		return nil
	default:
		return core.NewError(core.ErrUnknownOperation, "unknown operation", map[string]interface{}{"operation": kind})
	}
}

func (e *Evaluator) binaryArith(kind string) *core.HostError {
	b, err := e.pop()
	if err != nil {
		return err
	}
	a, err := e.pop()
	if err != nil {
		return err
	}
	an, aok := a.asNumber()
	bn, bok := b.asNumber()
	if !aok || !bok {
		return core.NewError(core.ErrUnknownOperation, "operands not numeric", map[string]interface{}{"op": kind})
	}
	var result float64
	switch kind {
	case "add":
		result = an + bn
	case "sub":
		result = an - bn
	case "mul":
		result = an * bn
	case "div":
		if bn == 0 {
			return core.NewError(core.ErrDivisionByZero, "division by zero", nil)
		}
		result = an / bn
	}
	e.push(Number(result))
	return nil
}

func (e *Evaluator) binaryCompareNumeric(kind string) *core.HostError {
	b, err := e.pop()
	if err != nil {
		return err
	}
	a, err := e.pop()
	if err != nil {
		return err
	}
	an, aok := a.asNumber()
	bn, bok := b.asNumber()
	if !aok || !bok {
		return core.NewError(core.ErrUnknownOperation, "operands not comparable", map[string]interface{}{"op": kind})
	}
	var result bool
	switch kind {
	case "gt":
		result = an > bn
	case "lt":
		result = an < bn
	case "gte":
		result = an >= bn
	case "lte":
		result = an <= bn
	}
	e.push(Boolean(result))
	return nil
}

func (e *Evaluator) binaryCompareEquality(kind string) *core.HostError {
	b, err := e.pop()
	if err != nil {
		return err
	}
	a, err := e.pop()
	if err != nil {
		return err
	}
	eq := a.Equal(b)
	if kind == "neq" {
		eq = !eq
	}
	e.push(Boolean(eq))
	return nil
}

func (e *Evaluator) binaryBool(kind string) *core.HostError {
	b, err := e.pop()
	if err != nil {
		return err
	}
	a, err := e.pop()
	if err != nil {
		return err
	}
	var result bool
	switch kind {
	case "and":
		result = a.Truthy() && b.Truthy()
	case "or":
		result = a.Truthy() || b.Truthy()
	}
	e.push(Boolean(result))
	return nil
}

func (e *Evaluator) unaryNot() *core.HostError {
	a, err := e.pop()
	if err != nil {
		return err
	}
	e.push(Boolean(!a.Truthy()))
	return nil
}

func (e *Evaluator) doPrint() *core.HostError {
	v, err := e.pop()
	if err != nil {
		return err
	}
	e.output = append(e.output, v.String())
	return nil
}

// parseLiteral parses a push argument: quoted string, true/false, number, or
// bareword string (spec §4.3 push row).
func parseLiteral(raw string) (Value, *core.HostError) {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return String(raw[1 : len(raw)-1]), nil
	}
	switch raw {
	case "true":
		return Boolean(true), nil
	case "false":
		return Boolean(false), nil
	case "null":
		return Null(), nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return Number(n), nil
	}
	return String(raw), nil
}

// interpolate expands ${name} references inside s, looking the name up in
// scope first and then in the evaluator's variables (spec §4.3: values in
// local scope shadow VM state); an unknown name expands to nothing.
func (e *Evaluator) interpolate(s string, scope map[string]Value) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start
		b.WriteString(s[:start])
		name := s[start+2 : end]
		if v, ok := scope[name]; ok {
			b.WriteString(v.String())
		} else if v, ok := e.vars[name]; ok {
			b.WriteString(v.String())
		}
		s = s[end+1:]
	}
	return b.String()
}
