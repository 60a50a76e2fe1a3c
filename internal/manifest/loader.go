// Package manifest implements C1: parsing and validating a tape's manifest
// file into an immutable core.Descriptor. Grounded on the teacher's
// decode-then-validate config loading shape (internal/config/config.go),
// adapted from a process-wide YAML file to a per-tape manifest.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/ghostkernel/tapehost/internal/core"
)

const (
	fileNameYAML = "manifest.yaml"
	fileNameJSON = "manifest.json"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	versionPattern    = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)
)

// rawManifest mirrors the on-disk manifest shape before validation.
type rawManifest struct {
	ID           string            `yaml:"id"`
	DisplayName  string            `yaml:"display_name"`
	Version      string            `yaml:"version"`
	UIEntry      string            `yaml:"ui_entry"`
	API          string            `yaml:"api"`
	Agents       []core.AgentRef   `yaml:"agents"`
	Capabilities []core.Capability `yaml:"capabilities"`
	Permissions  core.Permissions  `yaml:"permissions"`
	Metadata     *core.Metadata    `yaml:"metadata"`
}

// HandlerLookup reports whether a name is a registered in-process handler;
// used to classify a manifest's API endpoint without the manifest package
// depending on the handlers package directly.
type HandlerLookup func(name string) bool

// Load reads and validates the manifest at root, returning a validated
// Descriptor or the first HostError encountered (spec §4.1).
func Load(root string, knownHandler HandlerLookup) (*core.Descriptor, *core.HostError) {
	data, path, err := readManifestFile(root)
	if err != nil {
		return nil, core.NewError(core.ErrManifestMissing, err.Error(), map[string]interface{}{"root": root})
	}

	var raw rawManifest
	if strings.HasSuffix(path, ".json") {
		if err := yaml.UnmarshalStrict(data, &raw); err != nil {
			return nil, core.NewError(core.ErrManifestParse, err.Error(), map[string]interface{}{"path": path})
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, core.NewError(core.ErrManifestParse, err.Error(), map[string]interface{}{"path": path})
		}
	}

	return validate(root, &raw, knownHandler)
}

func readManifestFile(root string) ([]byte, string, error) {
	for _, name := range []string{fileNameYAML, fileNameJSON} {
		p := filepath.Join(root, name)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p, nil
		}
	}
	return nil, "", fmt.Errorf("no manifest file found under %s", root)
}

func validate(root string, raw *rawManifest, knownHandler HandlerLookup) (*core.Descriptor, *core.HostError) {
	if raw.ID == "" || raw.DisplayName == "" || raw.Version == "" || raw.UIEntry == "" {
		return nil, core.NewError(core.ErrManifestField, "missing required field", map[string]interface{}{
			"id": raw.ID,
		})
	}
	if !identifierPattern.MatchString(raw.ID) {
		return nil, core.NewError(core.ErrManifestField, "identifier must be lowercase alphanumeric with dashes", map[string]interface{}{"id": raw.ID})
	}
	if !versionPattern.MatchString(raw.Version) {
		return nil, core.NewError(core.ErrManifestField, "version must be MAJOR.MINOR.PATCH", map[string]interface{}{"version": raw.Version})
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, core.NewError(core.ErrManifestField, err.Error(), nil)
	}
	resolvedUI := filepath.Clean(filepath.Join(absRoot, raw.UIEntry))
	if !withinRoot(absRoot, resolvedUI) {
		return nil, core.NewError(core.ErrManifestEscape, "ui_entry resolves outside tape root", map[string]interface{}{
			"ui_entry": raw.UIEntry,
		})
	}

	descriptor := &core.Descriptor{
		ID:           raw.ID,
		DisplayName:  raw.DisplayName,
		Version:      raw.Version,
		Root:         absRoot,
		UIEntry:      raw.UIEntry,
		Agents:       raw.Agents,
		Capabilities: raw.Capabilities,
		Permissions:  raw.Permissions,
		Metadata:     raw.Metadata,
	}

	if raw.API != "" {
		endpoint, hErr := classifyEndpoint(raw.API, knownHandler)
		if hErr != nil {
			return nil, hErr
		}
		descriptor.API = endpoint
		descriptor.APIRaw = raw.API
	}

	if brains, err := discoverBrains(absRoot); err == nil {
		descriptor.Brains = brains
	}

	return descriptor, nil
}

func classifyEndpoint(value string, knownHandler HandlerLookup) (*core.APIEndpoint, *core.HostError) {
	isURL := strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
	isHandler := knownHandler != nil && knownHandler(value)

	switch {
	case isURL && !isHandler:
		return &core.APIEndpoint{Kind: core.EndpointRemoteHTTP, Value: value}, nil
	case isHandler && !isURL:
		return &core.APIEndpoint{Kind: core.EndpointLocalHandler, Value: value}, nil
	case isURL && isHandler:
		return nil, core.NewError(core.ErrManifestField, "api endpoint is ambiguous: matches both a handler name and a URL", map[string]interface{}{"api": value})
	default:
		return nil, core.NewError(core.ErrManifestField, "api endpoint is neither a registered handler nor an absolute URL", map[string]interface{}{"api": value})
	}
}

func withinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// discoverBrains lists conventional brains/ contents, if present, for the
// optional Descriptor.Brains field. Absence of the directory is not an error.
func discoverBrains(root string) ([]string, error) {
	dir := filepath.Join(root, "brains")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
