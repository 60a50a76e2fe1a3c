package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileNameYAML), []byte(body), 0o644))
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "public"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "public", "index.html"), []byte("<html></html>"), 0o644))

	writeManifest(t, dir, `
id: alpha
display_name: Alpha Tape
version: 1.0.0
ui_entry: public/index.html
permissions:
  filesystem: read-only
  network: none
  shell: false
`)

	d, err := Load(dir, nil)
	require.Nil(t, err)
	assert.Equal(t, "alpha", d.ID)
	assert.Equal(t, "1.0.0", d.Version)
	assert.Nil(t, d.API)
}

func TestLoad_MissingManifest(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, nil)
	require.NotNil(t, err)
	assert.Equal(t, "manifest-missing", string(err.Kind))
}

func TestLoad_UIEscape(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
id: alpha
display_name: Alpha
version: 1.0.0
ui_entry: ../../../etc/passwd
`)
	_, err := Load(dir, nil)
	require.NotNil(t, err)
	assert.Equal(t, "manifest-escape", string(err.Kind))
}

func TestLoad_BadIdentifier(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644))
	writeManifest(t, dir, `
id: Alpha_Tape
display_name: Alpha
version: 1.0.0
ui_entry: index.html
`)
	_, err := Load(dir, nil)
	require.NotNil(t, err)
	assert.Equal(t, "manifest-invalid-field", string(err.Kind))
}

func TestLoad_BadVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644))
	writeManifest(t, dir, `
id: alpha
display_name: Alpha
version: 1.0
ui_entry: index.html
`)
	_, err := Load(dir, nil)
	require.NotNil(t, err)
	assert.Equal(t, "manifest-invalid-field", string(err.Kind))
}

func TestLoad_AmbiguousEndpoint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644))
	writeManifest(t, dir, `
id: alpha
display_name: Alpha
version: 1.0.0
ui_entry: index.html
api: "http://not-a-handler"
`)
	_, err := Load(dir, func(name string) bool { return name == "http://not-a-handler" })
	require.NotNil(t, err)
	assert.Equal(t, "manifest-invalid-field", string(err.Kind))
}
