package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/sandbox"
)

func pathArg(input map[string]interface{}, field string) (string, *core.HostError) {
	v, ok := input[field].(string)
	if !ok || v == "" {
		return "", core.NewError(core.ErrBadRequest, fmt.Sprintf("%s is required", field), nil)
	}
	return v, nil
}

func handleFSRead(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, hErr := pathArg(input, "path")
	if hErr != nil {
		return nil, hErr
	}
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fsError(err, path)
	}
	return map[string]interface{}{"content": string(data), "size": len(data)}, nil
}

func handleFSWrite(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, hErr := pathArg(input, "path")
	if hErr != nil {
		return nil, hErr
	}
	content, _ := input["content"].(string)
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	return map[string]interface{}{"ok": true, "bytes_written": len(content)}, nil
}

func handleFSList(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, _ := input["path"].(string)
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fsError(err, path)
	}
	entries := make([]interface{}, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		size := int64(0)
		if err == nil {
			size = info.Size()
		}
		entries = append(entries, map[string]interface{}{
			"name":   de.Name(),
			"is_dir": de.IsDir(),
			"size":   size,
		})
	}
	return map[string]interface{}{"entries": entries}, nil
}

func handleFSExists(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, hErr := pathArg(input, "path")
	if hErr != nil {
		return nil, hErr
	}
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	_, err := os.Stat(resolved)
	return map[string]interface{}{"exists": err == nil}, nil
}

func handleFSDelete(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, hErr := pathArg(input, "path")
	if hErr != nil {
		return nil, hErr
	}
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	if err := os.RemoveAll(resolved); err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	return map[string]interface{}{"ok": true}, nil
}

func handleFSCopy(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	from, hErr := pathArg(input, "from")
	if hErr != nil {
		return nil, hErr
	}
	to, hErr := pathArg(input, "to")
	if hErr != nil {
		return nil, hErr
	}
	srcPath, hErr := sandbox.SafePath(h.SandboxRoot, from)
	if hErr != nil {
		return nil, hErr
	}
	dstPath, hErr := sandbox.SafePath(h.SandboxRoot, to)
	if hErr != nil {
		return nil, hErr
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fsError(err, from)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	return map[string]interface{}{"ok": true, "bytes_copied": written}, nil
}

func handleFSJSONRead(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, hErr := pathArg(input, "path")
	if hErr != nil {
		return nil, hErr
	}
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fsError(err, path)
	}
	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), map[string]interface{}{"path": path})
	}
	return map[string]interface{}{"data": parsed}, nil
}

func handleFSJSONWrite(_ context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	path, hErr := pathArg(input, "path")
	if hErr != nil {
		return nil, hErr
	}
	resolved, hErr := sandbox.SafePath(h.SandboxRoot, path)
	if hErr != nil {
		return nil, hErr
	}
	encoded, err := json.MarshalIndent(input["data"], "", "  ")
	if err != nil {
		return nil, core.NewError(core.ErrBadRequest, err.Error(), nil)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	if err := os.WriteFile(resolved, encoded, 0o644); err != nil {
		return nil, core.NewError(core.ErrBackendError, err.Error(), nil)
	}
	return map[string]interface{}{"ok": true, "bytes_written": len(encoded)}, nil
}

func fsError(err error, path string) *core.HostError {
	if os.IsNotExist(err) {
		return core.NewError(core.ErrPathNotFound, "path not found", map[string]interface{}{"path": path})
	}
	return core.NewError(core.ErrBackendError, err.Error(), map[string]interface{}{"path": path})
}

