// Package registry implements C2: the authoritative set of known tapes,
// their mount state, and the lifecycle state machine from spec §4.2. Grounded
// on the concurrency rules of spec §5 (exclusive lock on mutation, shared
// lock on reads, atomic inflight counter per entry) and the teacher's general
// mutex-guarded-map idiom used throughout its service layer.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/manifest"
)

// MountHook runs during a mount (WithMountHook) or unmount (WithUnmountHook)
// transition; an error moves the entry to failed.
type MountHook func(d *core.Descriptor) error

type entry struct {
	descriptor core.Descriptor
	state      core.MountState
	lastAccess time.Time
	generation uint64
	lastErr    *core.HostError
	inflight   int64
}

// Registry is the process-lifetime tape index.
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	order       []string
	root        string
	initial     core.MountState
	mountHook   MountHook
	unmountHook MountHook
	busyWait    time.Duration
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithInitialState overrides the mount state assigned to newly scanned
// tapes (default core.StateMounted, per spec §4.2).
func WithInitialState(s core.MountState) Option {
	return func(r *Registry) { r.initial = s }
}

// WithMountHook installs a hook run on mounting -> mounted transitions.
func WithMountHook(h MountHook) Option {
	return func(r *Registry) { r.mountHook = h }
}

// WithUnmountHook installs a hook run on unmounting -> unmounted transitions.
func WithUnmountHook(h MountHook) Option {
	return func(r *Registry) { r.unmountHook = h }
}

// WithBusyWait sets how long Unmount waits for inflight requests to drain
// before forcing the transition (spec §4.2 tape-busy policy).
func WithBusyWait(d time.Duration) Option {
	return func(r *Registry) { r.busyWait = d }
}

// New creates an empty registry rooted at the given tape directory.
func New(root string, opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[string]*entry),
		root:     root,
		initial:  core.StateMounted,
		busyWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ScanResult reports per-tape scan outcomes: failures do not abort the scan.
type ScanResult struct {
	Registered []string
	Failed     map[string]*core.HostError
}

// knownHandler is injected from outside (the handler set) to classify a
// manifest's API endpoint without a package cycle.
var knownHandler manifest.HandlerLookup

// SetHandlerLookup installs the function used to classify local-handler API
// endpoints during scan/reload.
func SetHandlerLookup(fn manifest.HandlerLookup) { knownHandler = fn }

// Scan lists immediate subdirectories of the tape root, validates each
// manifest, and inserts successful descriptors in read (directory listing)
// order (spec §4.2 Discovery).
func (r *Registry) Scan() (*ScanResult, error) {
	dirEntries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Failed: make(map[string]*core.HostError)}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		tapeRoot := filepath.Join(r.root, de.Name())
		descriptor, hErr := manifest.Load(tapeRoot, knownHandler)
		if hErr != nil {
			result.Failed[de.Name()] = hErr
			continue
		}
		if _, exists := r.entries[descriptor.ID]; exists {
			result.Failed[de.Name()] = core.NewError(core.ErrManifestField, "duplicate tape identifier", map[string]interface{}{"id": descriptor.ID})
			continue
		}
		r.entries[descriptor.ID] = &entry{
			descriptor: *descriptor,
			state:      r.initial,
			lastAccess: time.Now(),
			generation: 0,
		}
		r.order = append(r.order, descriptor.ID)
		result.Registered = append(result.Registered, descriptor.ID)
	}

	return result, nil
}

// Get returns a snapshot of the registry entry for id.
func (r *Registry) Get(id string) (core.Entry, *core.HostError) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return core.Entry{}, core.NewError(core.ErrTapeNotFound, "tape not found", map[string]interface{}{"id": id})
	}
	return snapshot(e), nil
}

// List returns all entries in insertion order (spec §3 reproducibility
// invariant).
func (r *Registry) List() []core.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, snapshot(r.entries[id]))
	}
	return out
}

func snapshot(e *entry) core.Entry {
	return core.Entry{
		Descriptor: e.descriptor,
		State:      e.state,
		LastAccess: e.lastAccess,
		Generation: e.generation,
		LastError:  e.lastErr,
	}
}

// Mount transitions a tape unmounted -> mounting -> mounted (or -> failed),
// idempotently returning success if already mounted (spec §8 idempotence
// law: mount(id); mount(id) is a no-op after the first).
func (r *Registry) Mount(id string) *core.HostError {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return core.NewError(core.ErrTapeNotFound, "tape not found", map[string]interface{}{"id": id})
	}
	if e.state == core.StateMounted {
		r.mu.Unlock()
		return nil
	}
	e.state = core.StateMounting
	e.generation++
	descriptor := e.descriptor
	r.mu.Unlock()

	var hookErr error
	if r.mountHook != nil {
		hookErr = r.mountHook(&descriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if hookErr != nil {
		e.state = core.StateFailed
		e.lastErr = core.NewError(core.ErrEngineError, hookErr.Error(), nil)
		return e.lastErr
	}
	e.state = core.StateMounted
	e.lastErr = nil
	return nil
}

// Unmount transitions mounted -> unmounting -> unmounted, waiting up to
// busyWait for inflight requests to drain before forcing completion.
func (r *Registry) Unmount(id string) *core.HostError {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return core.NewError(core.ErrTapeNotFound, "tape not found", map[string]interface{}{"id": id})
	}
	if e.state != core.StateMounted {
		r.mu.Unlock()
		return nil
	}
	e.state = core.StateUnmounting
	descriptor := e.descriptor
	r.mu.Unlock()

	deadline := time.Now().Add(r.busyWait)
	for {
		if atomic.LoadInt64(&e.inflight) == 0 {
			break
		}
		if time.Now().After(deadline) {
			break // forced: policy is wait-with-deadline-then-force
		}
		time.Sleep(10 * time.Millisecond)
	}

	var hookErr error
	if r.unmountHook != nil {
		hookErr = r.unmountHook(&descriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if hookErr != nil {
		e.state = core.StateFailed
		e.lastErr = core.NewError(core.ErrEngineError, hookErr.Error(), nil)
		return e.lastErr
	}
	e.state = core.StateUnmounted
	return nil
}

// Reload moves the tape to mounting, waits up to busyWait for inflight
// requests to drain, and re-reads the manifest. A manifest that fails to
// load leaves the entry failed; the mount hook is not run.
func (r *Registry) Reload(id string) *core.HostError {
	r.mu.RLock()
	e, ok := r.entries[id]
	var tapeRoot string
	if ok {
		tapeRoot = e.descriptor.Root
	}
	r.mu.RUnlock()
	if !ok {
		return core.NewError(core.ErrTapeNotFound, "tape not found", map[string]interface{}{"id": id})
	}

	r.mu.Lock()
	e.state = core.StateMounting
	r.mu.Unlock()
	deadline := time.Now().Add(r.busyWait)
	for atomic.LoadInt64(&e.inflight) != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	descriptor, hErr := manifest.Load(tapeRoot, knownHandler)
	if hErr != nil {
		r.mu.Lock()
		e.state = core.StateFailed
		e.lastErr = hErr
		r.mu.Unlock()
		return hErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e.generation++
	e.descriptor = *descriptor
	e.state = core.StateMounted
	e.lastErr = nil
	return nil
}

// Remove deletes a tape from the registry (terminal state, spec §4.2).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Enter increments the inflight counter for a proxied call and records the
// access time (spec §5 shared resource table). Must be paired with Exit.
func (r *Registry) Enter(id string) (core.Entry, *core.HostError) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return core.Entry{}, core.NewError(core.ErrTapeNotFound, "tape not found", map[string]interface{}{"id": id})
	}
	atomic.AddInt64(&e.inflight, 1)
	r.mu.Lock()
	e.lastAccess = time.Now()
	snap := snapshot(e)
	r.mu.Unlock()
	return snap, nil
}

// Exit decrements the inflight counter; it never goes below zero.
func (r *Registry) Exit(id string) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	for {
		cur := atomic.LoadInt64(&e.inflight)
		if cur <= 0 {
			return
		}
		if atomic.CompareAndSwapInt64(&e.inflight, cur, cur-1) {
			return
		}
	}
}

// Root returns the configured tape root directory.
func (r *Registry) Root() string { return r.root }

// SortedIDs is a small helper for deterministic test/debug output.
func (r *Registry) SortedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
