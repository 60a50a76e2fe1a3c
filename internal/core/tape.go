package core

import "time"

// Capability is one of the capability flags a tape may declare (spec §3).
type Capability string

const (
	CapabilityUI      Capability = "ui"
	CapabilityAPI     Capability = "api"
	CapabilityAgents  Capability = "agents"
	CapabilityDataset Capability = "dataset"
)

// FilesystemPermission is the tape's declared filesystem access level.
type FilesystemPermission string

const (
	FSNone      FilesystemPermission = "none"
	FSReadOnly  FilesystemPermission = "read-only"
	FSReadWrite FilesystemPermission = "read-write"
)

// NetworkPermission is the tape's declared network access level.
type NetworkPermission string

const (
	NetNone     NetworkPermission = "none"
	NetLoopback NetworkPermission = "loopback"
	NetAny      NetworkPermission = "any"
)

// Permissions bundles the three permission axes a tape declares.
type Permissions struct {
	Filesystem FilesystemPermission `json:"filesystem" yaml:"filesystem"`
	Network    NetworkPermission    `json:"network" yaml:"network"`
	Shell      bool                 `json:"shell" yaml:"shell"`
}

// AgentRef names an agent a tape exposes, with its declared skills.
type AgentRef struct {
	ID     string   `json:"id" yaml:"id"`
	Skills []string `json:"skills" yaml:"skills"`
}

// Metadata is optional descriptive information about a tape.
type Metadata struct {
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// EndpointKind classifies how a tape's API endpoint is reached.
type EndpointKind string

const (
	EndpointNone        EndpointKind = ""
	EndpointLocalHandler EndpointKind = "local-handler"
	EndpointRemoteHTTP  EndpointKind = "remote-http"
)

// APIEndpoint is the tape's declared API surface: either the name of a
// registered in-process handler, or a remote HTTP URL.
type APIEndpoint struct {
	Kind  EndpointKind `json:"kind" yaml:"-"`
	Value string       `json:"value" yaml:"value"`
}

// Descriptor is the immutable, validated record of a tape's manifest
// (spec §3). Once constructed it never changes; a reload produces a new
// Descriptor value.
type Descriptor struct {
	ID           string       `json:"id" yaml:"id"`
	DisplayName  string       `json:"display_name" yaml:"display_name"`
	Version      string       `json:"version" yaml:"version"`
	Root         string       `json:"root" yaml:"-"`
	UIEntry      string       `json:"ui_entry" yaml:"ui_entry"`
	API          *APIEndpoint `json:"api,omitempty" yaml:"-"`
	APIRaw       string       `json:"-" yaml:"api"`
	Agents       []AgentRef   `json:"agents,omitempty" yaml:"agents,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Permissions  Permissions  `json:"permissions" yaml:"permissions"`
	Metadata     *Metadata    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Brains       []string     `json:"brains,omitempty" yaml:"-"`
}

// HasCapability reports whether the descriptor declares a capability.
func (d *Descriptor) HasCapability(c Capability) bool {
	for _, cap := range d.Capabilities {
		if cap == c {
			return true
		}
	}
	return false
}

// MountState is a registry entry's lifecycle state (spec §3/§4.2).
type MountState string

const (
	StateUnmounted  MountState = "unmounted"
	StateMounting   MountState = "mounting"
	StateMounted    MountState = "mounted"
	StateUnmounting MountState = "unmounting"
	StateFailed     MountState = "failed"
)

// Entry is a registry entry: a descriptor plus its runtime mount state.
type Entry struct {
	Descriptor   Descriptor
	State        MountState
	LastAccess   time.Time
	Generation   uint64
	LastError    *HostError
}
