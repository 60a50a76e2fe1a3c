// Package sandbox implements C10: path confinement for every filesystem
// handler, and the restricted expression grammar used by eval_expr. Grounded
// on the confinement style used across the GHOST handler set — every path
// operand is funneled through SafePath before it ever touches the
// filesystem.
package sandbox

import (
	"path/filepath"
	"strings"

	"github.com/ghostkernel/tapehost/internal/core"
)

// SafePath resolves candidate against root and rejects any path that would
// escape it once cleaned (spec §4.10: no handler bypasses this function).
func SafePath(root, candidate string) (string, *core.HostError) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", core.NewError(core.ErrPathEscape, err.Error(), nil)
	}
	joined := filepath.Join(absRoot, candidate)
	resolved := filepath.Clean(joined)

	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", core.NewError(core.ErrPathEscape, "path escapes sandbox root", map[string]interface{}{
			"root":      absRoot,
			"candidate": candidate,
		})
	}
	return resolved, nil
}
