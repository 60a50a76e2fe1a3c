package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostkernel/tapehost/internal/core"
)

func writeTape(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644))
	body := "id: " + id + "\ndisplay_name: " + id + "\nversion: 1.0.0\nui_entry: index.html\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(body), 0o644))
}

func TestScan_RegistersAndOrders(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	writeTape(t, root, "beta")

	r := New(root)
	result, err := r.Scan()
	require.NoError(t, err)
	assert.Empty(t, result.Failed)
	assert.Len(t, result.Registered, 2)

	list := r.List()
	assert.Len(t, list, 2)
	assert.Equal(t, core.StateMounted, list[0].State)
}

func TestScan_RecordsFailureWithoutAborting(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "broken"), 0o755))

	r := New(root)
	result, err := r.Scan()
	require.NoError(t, err)
	assert.Len(t, result.Registered, 1)
	assert.Contains(t, result.Failed, "broken")
}

func TestScan_DuplicateIdentifier(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alpha-copy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha-copy", "index.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alpha-copy", "manifest.yaml"), []byte("id: alpha\ndisplay_name: dup\nversion: 1.0.0\nui_entry: index.html\n"), 0o644))

	r := New(root)
	result, err := r.Scan()
	require.NoError(t, err)
	assert.Len(t, result.Registered, 1)
	assert.Contains(t, result.Failed, "alpha-copy")
}

func TestGet_NotFound(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.Get("missing")
	require.NotNil(t, err)
	assert.Equal(t, core.ErrTapeNotFound, err.Kind)
}

func TestMount_IdempotentAndLifecycle(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	r := New(root, WithInitialState(core.StateUnmounted))
	_, err := r.Scan()
	require.NoError(t, err)

	e, hErr := r.Get("alpha")
	require.Nil(t, hErr)
	assert.Equal(t, core.StateUnmounted, e.State)

	require.Nil(t, r.Mount("alpha"))
	e, _ = r.Get("alpha")
	assert.Equal(t, core.StateMounted, e.State)

	// second mount is a no-op
	require.Nil(t, r.Mount("alpha"))
	e2, _ := r.Get("alpha")
	assert.Equal(t, e.Generation, e2.Generation)
}

func TestUnmount_WaitsForInflightThenForces(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	r := New(root, WithBusyWait(30*time.Millisecond))
	_, err := r.Scan()
	require.NoError(t, err)

	_, hErr := r.Enter("alpha")
	require.Nil(t, hErr)

	start := time.Now()
	require.Nil(t, r.Unmount("alpha"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	e, _ := r.Get("alpha")
	assert.Equal(t, core.StateUnmounted, e.State)
}

func TestEnterExit_NeverGoesNegative(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	r := New(root)
	_, err := r.Scan()
	require.NoError(t, err)

	r.Exit("alpha")
	r.Exit("alpha")
	_, hErr := r.Enter("alpha")
	require.Nil(t, hErr)
	r.Exit("alpha")
	r.Exit("alpha")
}

func TestReload_FailurePreservesFailedState(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	r := New(root)
	_, err := r.Scan()
	require.NoError(t, err)

	e, _ := r.Get("alpha")
	require.NoError(t, os.Remove(filepath.Join(e.Descriptor.Root, "manifest.yaml")))

	hErr := r.Reload("alpha")
	require.NotNil(t, hErr)
	e, _ = r.Get("alpha")
	assert.Equal(t, core.StateFailed, e.State)
	require.NotNil(t, e.LastError)
}

func TestRemove_DropsFromOrderAndMap(t *testing.T) {
	root := t.TempDir()
	writeTape(t, root, "alpha")
	writeTape(t, root, "beta")
	r := New(root)
	_, err := r.Scan()
	require.NoError(t, err)

	r.Remove("alpha")
	_, hErr := r.Get("alpha")
	require.NotNil(t, hErr)
	assert.Equal(t, []string{"beta"}, func() []string {
		var ids []string
		for _, e := range r.List() {
			ids = append(ids, e.Descriptor.ID)
		}
		return ids
	}())
}
