// Package handlers implements C4: the named callables addressed through the
// request envelope's program.type field. Grounded on the teacher's
// internal/handlers/*.go factory pattern (one function per concern, deps
// threaded in explicitly), adapted here to return (map[string]interface{},
// *core.HostError) pairs instead of writing straight to an
// http.ResponseWriter, since the handler set sits behind the envelope
// boundary rather than behind individual HTTP routes.
package handlers

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/ghostkernel/tapehost/internal/config"
	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/dockerpool"
	"github.com/ghostkernel/tapehost/internal/glyph"
	"github.com/ghostkernel/tapehost/internal/kvstore"
	"github.com/ghostkernel/tapehost/internal/proxy"
	"github.com/ghostkernel/tapehost/internal/registry"
	"github.com/ghostkernel/tapehost/internal/scheduler"
	"github.com/ghostkernel/tapehost/internal/tribunal"
)

// HandlerFunc is the shape every named handler implements: input in, result
// payload or HostError out. No handler ever panics across this boundary
// (spec §4.4 uniform error shape).
type HandlerFunc func(ctx context.Context, h *Host, input map[string]interface{}) (map[string]interface{}, *core.HostError)

// Host bundles every component a handler may delegate to. One Host is built
// at boot and passed to every handler call; there is no global mutable
// state (spec §9 DESIGN NOTES) — the handler table itself is built once in
// NewHost and owned by the Host, not populated by import-time side effects.
type Host struct {
	Registry  *registry.Registry
	Store     kvstore.Store
	Scheduler *scheduler.Scheduler
	Tribunal  *tribunal.Tribunal
	Judges    []tribunal.Judge
	Proxy     *proxy.Proxy
	Pool      *dockerpool.PoolManager
	Swarm     config.SwarmConfig

	SandboxRoot string

	startedAt time.Time

	glyphMu sync.Mutex
	glyphVM *glyph.Evaluator

	handlers map[string]HandlerFunc
}

// NewHost wires a Host from already-constructed components and builds its
// handler table. Pool may be nil when shell-capable sandboxing is disabled.
func NewHost(reg *registry.Registry, store kvstore.Store, sched *scheduler.Scheduler, trib *tribunal.Tribunal, judges []tribunal.Judge, prox *proxy.Proxy, pool *dockerpool.PoolManager, swarm config.SwarmConfig, sandboxRoot string) *Host {
	h := &Host{
		Registry:    reg,
		Store:       store,
		Scheduler:   sched,
		Tribunal:    trib,
		Judges:      judges,
		Proxy:       prox,
		Pool:        pool,
		Swarm:       swarm,
		SandboxRoot: sandboxRoot,
		startedAt:   time.Now(),
		glyphVM:     glyph.NewEvaluator(),
	}
	h.handlers = BuildHandlerTable()
	return h
}

// BuildHandlerTable returns the name -> implementation map for every handler
// in the set, assembled explicitly from a known component list rather than
// by init()-time self-registration (spec §9 DESIGN NOTES).
func BuildHandlerTable() map[string]HandlerFunc {
	table := make(map[string]HandlerFunc, 32)

	table["ping"] = handlePing
	table["info"] = handleInfo
	table["echo"] = handleEcho
	table["store"] = handleStore

	table["ghost_list"] = handleGhostList
	table["ghost_get"] = handleGhostGet
	table["ghost_launch"] = handleGhostLaunch
	table["ghost_route"] = handleGhostRoute
	table["ghost_discover"] = handleGhostDiscover
	table["ghost_swarm"] = handleGhostSwarm
	table["ghost_status"] = handleGhostStatus

	table["agents_list"] = handleAgentsList
	table["agents_call"] = handleAgentsCall
	table["agents_tribunal"] = handleAgentsTribunal
	table["agents_swarm"] = handleAgentsSwarm

	table["kuhul_profile"] = handleKuhulProfile
	table["kuhul_route"] = handleKuhulRoute
	table["kuhul_schedule"] = handleKuhulSchedule
	table["kuhul_status"] = handleKuhulStatus
	table["kuhul_glyph"] = handleKuhulGlyph

	table["micronaut_infer"] = handleMicronautMarker("infer")
	table["micronaut_intent"] = handleMicronautMarker("intent")
	table["micronaut_complete"] = handleMicronautMarker("complete")
	table["micronaut_chat"] = handleMicronautMarker("chat")
	table["micronaut_train"] = handleMicronautMarker("train")
	table["micronaut_status"] = handleMicronautStatus

	table["fs_read"] = handleFSRead
	table["fs_write"] = handleFSWrite
	table["fs_list"] = handleFSList
	table["fs_exists"] = handleFSExists
	table["fs_delete"] = handleFSDelete
	table["fs_copy"] = handleFSCopy
	table["fs_json_read"] = handleFSJSONRead
	table["fs_json_write"] = handleFSJSONWrite

	table["scxq2_encode"] = handleSCXQ2Encode
	table["scxq2_decode"] = handleSCXQ2Decode
	table["scxq2_stats"] = handleSCXQ2Stats

	table["eval_expr"] = handleEvalExpr

	return table
}

// Known reports whether name is a registered handler; it satisfies
// manifest.HandlerLookup so a tape's declared api: field can be classified
// as a local handler without the manifest package importing this one. It
// consults a throwaway table built the same way a Host's is, since the
// manifest loader classifies handler names before any Host exists.
func Known(name string) bool {
	_, ok := BuildHandlerTable()[name]
	return ok
}

// Dispatch runs the named handler against input, translating an unknown
// name into handler-unknown (spec §4.4).
func Dispatch(ctx context.Context, h *Host, name string, input map[string]interface{}) (map[string]interface{}, *core.HostError) {
	fn, ok := h.handlers[name]
	if !ok {
		return nil, core.NewError(core.ErrHandlerUnknown, "no handler registered under this name", map[string]interface{}{"name": name})
	}
	if input == nil {
		input = map[string]interface{}{}
	}
	return fn(ctx, h, input)
}

// Names returns every registered handler name, for the health route and
// diagnostics.
func (h *Host) Names() []string {
	names := make([]string, 0, len(h.handlers))
	for name := range h.handlers {
		names = append(names, name)
	}
	return names
}

// AsLocalDispatcher adapts Dispatch to proxy.LocalDispatcher, so the C8
// inter-tape proxy can reach a tape's declared local-handler endpoint.
func (h *Host) AsLocalDispatcher() proxy.LocalDispatcher {
	return func(ctx context.Context, handlerName string, payload map[string]interface{}) (map[string]interface{}, *core.HostError) {
		return Dispatch(ctx, h, handlerName, payload)
	}
}

// AsRouterLocal adapts Dispatch to router.LocalHandler, the always-available
// terminator backend the C5 router falls back to.
func (h *Host) AsRouterLocal() func(ctx context.Context, env core.Envelope) (map[string]interface{}, *core.HostError) {
	return func(ctx context.Context, env core.Envelope) (map[string]interface{}, *core.HostError) {
		return Dispatch(ctx, h, env.Program.Type, env.Program.Input)
	}
}

// Uptime reports how long this Host has been running, for the info handler.
func (h *Host) Uptime() time.Duration {
	return time.Since(h.startedAt)
}

// withGlyph runs fn against the Host's single shared glyph evaluator under
// a mutex, since the VM's function bodies and variables are meant to
// persist across calls within one host lifetime (spec §4.3 Contract).
func (h *Host) withGlyph(fn func(*glyph.Evaluator) (glyph.Value, *core.HostError)) (glyph.Value, *core.HostError) {
	h.glyphMu.Lock()
	defer h.glyphMu.Unlock()
	return fn(h.glyphVM)
}

func memStats() (uint64, uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc, m.Sys
}
