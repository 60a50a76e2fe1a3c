package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

func TestFS_WriteThenRead(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	_, hErr := Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "a/b.txt", "content": "hello"})
	require.Nil(t, hErr)

	result, hErr := Dispatch(ctx, h, "fs_read", map[string]interface{}{"path": "a/b.txt"})
	require.Nil(t, hErr)
	assert.Equal(t, "hello", result["content"])
}

func TestFS_ReadMissingFileIsPathNotFound(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "fs_read", map[string]interface{}{"path": "missing.txt"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrPathNotFound, hErr.Kind)
}

func TestFS_RejectsPathEscape(t *testing.T) {
	h := newTestHost(t)
	_, hErr := Dispatch(context.Background(), h, "fs_read", map[string]interface{}{"path": "../../etc/passwd"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrPathEscape, hErr.Kind)
}

func TestFS_Exists(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "f.txt", "content": "x"})

	result, hErr := Dispatch(ctx, h, "fs_exists", map[string]interface{}{"path": "f.txt"})
	require.Nil(t, hErr)
	assert.Equal(t, true, result["exists"])

	result, hErr = Dispatch(ctx, h, "fs_exists", map[string]interface{}{"path": "missing.txt"})
	require.Nil(t, hErr)
	assert.Equal(t, false, result["exists"])
}

func TestFS_List(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "dir/one.txt", "content": "1"})
	Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "dir/two.txt", "content": "22"})

	result, hErr := Dispatch(ctx, h, "fs_list", map[string]interface{}{"path": "dir"})
	require.Nil(t, hErr)
	entries := result["entries"].([]interface{})
	assert.Len(t, entries, 2)
}

func TestFS_Delete(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "gone.txt", "content": "x"})

	_, hErr := Dispatch(ctx, h, "fs_delete", map[string]interface{}{"path": "gone.txt"})
	require.Nil(t, hErr)

	result, _ := Dispatch(ctx, h, "fs_exists", map[string]interface{}{"path": "gone.txt"})
	assert.Equal(t, false, result["exists"])
}

func TestFS_Copy(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "src.txt", "content": "copy-me"})

	_, hErr := Dispatch(ctx, h, "fs_copy", map[string]interface{}{"from": "src.txt", "to": "nested/dst.txt"})
	require.Nil(t, hErr)

	result, hErr := Dispatch(ctx, h, "fs_read", map[string]interface{}{"path": "nested/dst.txt"})
	require.Nil(t, hErr)
	assert.Equal(t, "copy-me", result["content"])
}

func TestFS_JSONWriteThenRead(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	data := map[string]interface{}{"nested": map[string]interface{}{"n": 3.0}}

	_, hErr := Dispatch(ctx, h, "fs_json_write", map[string]interface{}{"path": "data.json", "data": data})
	require.Nil(t, hErr)

	result, hErr := Dispatch(ctx, h, "fs_json_read", map[string]interface{}{"path": "data.json"})
	require.Nil(t, hErr)
	assert.Equal(t, data, result["data"])
}

func TestFS_JSONReadRejectsMalformedJSON(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	Dispatch(ctx, h, "fs_write", map[string]interface{}{"path": "bad.json", "content": "{not json"})

	_, hErr := Dispatch(ctx, h, "fs_json_read", map[string]interface{}{"path": "bad.json"})
	require.NotNil(t, hErr)
	assert.Equal(t, core.ErrBadRequest, hErr.Kind)
}
