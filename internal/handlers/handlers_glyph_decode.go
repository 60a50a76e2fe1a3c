package handlers

import (
	"fmt"

	"github.com/ghostkernel/tapehost/internal/glyph"
)

// decodeInstructions converts the envelope's JSON-decoded program array
// (each entry a {"op":..., "arg":...} map) into token-stream Instructions.
func decodeInstructions(raw []interface{}) ([]glyph.Instruction, error) {
	out := make([]glyph.Instruction, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("program[%d] is not an object", i)
		}
		op, _ := m["op"].(string)
		if op == "" {
			return nil, fmt.Errorf("program[%d] is missing op", i)
		}
		arg, _ := m["arg"].(string)
		out = append(out, glyph.Instruction{Op: op, Arg: arg})
	}
	return out, nil
}

// decodeNodes converts the structured front end's JSON-decoded record tree
// into glyph.Node values, recursing through @if/@while/@for bodies.
func decodeNodes(raw []interface{}) ([]glyph.Node, error) {
	out := make([]glyph.Node, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("structured[%d] is not an object", i)
		}
		node, err := decodeNode(m)
		if err != nil {
			return nil, fmt.Errorf("structured[%d]: %w", i, err)
		}
		out = append(out, node)
	}
	return out, nil
}

func decodeNode(m map[string]interface{}) (glyph.Node, error) {
	op, _ := m["op"].(string)
	if op == "" {
		return glyph.Node{}, fmt.Errorf("missing op")
	}
	node := glyph.Node{Op: op}
	node.Arg, _ = m["arg"].(string)
	node.Cond, _ = m["cond"].(string)
	node.Var, _ = m["var"].(string)
	if from, ok := m["from"].(float64); ok {
		node.From = from
	}
	if to, ok := m["to"].(float64); ok {
		node.To = to
	}
	if step, ok := m["step"].(float64); ok {
		node.Step = step
	}

	var err error
	if thenRaw, ok := m["then"].([]interface{}); ok {
		if node.Then, err = decodeNodes(thenRaw); err != nil {
			return glyph.Node{}, err
		}
	}
	if elseRaw, ok := m["else"].([]interface{}); ok {
		if node.Else, err = decodeNodes(elseRaw); err != nil {
			return glyph.Node{}, err
		}
	}
	if doRaw, ok := m["do"].([]interface{}); ok {
		if node.Do, err = decodeNodes(doRaw); err != nil {
			return glyph.Node{}, err
		}
	}
	return node, nil
}
