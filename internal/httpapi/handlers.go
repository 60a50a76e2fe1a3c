package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ghostkernel/tapehost/internal/core"
	"github.com/ghostkernel/tapehost/internal/events"
	"github.com/ghostkernel/tapehost/internal/handlers"
	"github.com/ghostkernel/tapehost/internal/proxy"
)

// handleRun is the single execution route (spec §6): decode an envelope,
// run it through the backend router, and write back the resulting
// ResultEnvelope verbatim. The router produces the full wire shape for a
// routed call; this handler builds a core.Failure itself only when the body
// cannot be decoded or names no program type.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var env core.Envelope
	if hErr := decodeBody(r, &env); hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("http", hErr))
		return
	}
	if env.Program.Type == "" {
		writeJSON(w, http.StatusOK, core.Failure("http", core.NewError(core.ErrBadRequest, "program.type is required", nil)))
		return
	}

	result := s.router.Call(r.Context(), env)

	if s.metrics != nil {
		s.metrics.RecordRun(env.Program.Type, result.OK, time.Since(start).Seconds())
	}
	if s.hub != nil {
		s.hub.Broadcast(events.Event{
			Type:    "run",
			Payload: eventPayload{Handler: env.Program.Type, OK: result.OK},
		})
	}

	writeJSON(w, http.StatusOK, result)
}

// handleHealth reports process liveness plus the registered handler names,
// for operators probing before wiring a tape's manifest.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"handlers":      s.host.Names(),
	})
}

func (s *Server) handleTapeList(w http.ResponseWriter, r *http.Request) {
	result, hErr := handlers.Dispatch(r.Context(), s.host, "ghost_list", nil)
	s.writeHandlerResult(w, "ghost_list", result, hErr)
}

func (s *Server) handleTapeGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	result, hErr := handlers.Dispatch(r.Context(), s.host, "ghost_get", map[string]interface{}{"id": id})
	s.writeHandlerResult(w, "ghost_get", result, hErr)
}

func (s *Server) handleTapeMount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	hErr := s.registry.Mount(id)
	s.recordMountOp("mount", hErr)
	s.writeLifecycleResult(w, id, hErr)
}

func (s *Server) handleTapeUnmount(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	hErr := s.registry.Unmount(id)
	s.recordMountOp("unmount", hErr)
	s.writeLifecycleResult(w, id, hErr)
}

func (s *Server) handleTapeReload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	hErr := s.registry.Reload(id)
	s.recordMountOp("reload", hErr)
	s.writeLifecycleResult(w, id, hErr)
}

func (s *Server) recordMountOp(op string, hErr *core.HostError) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	if hErr != nil {
		result = "error"
	}
	s.metrics.RecordMountOp(op, result)
	if entries := s.registry.List(); entries != nil {
		mounted := 0
		for _, e := range entries {
			if e.State == core.StateMounted {
				mounted++
			}
		}
		s.metrics.SetMountedCount(mounted)
	}
}

func (s *Server) writeLifecycleResult(w http.ResponseWriter, id string, hErr *core.HostError) {
	if hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("registry", hErr))
		return
	}
	entry, getErr := s.registry.Get(id)
	if getErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("registry", getErr))
		return
	}
	writeJSON(w, http.StatusOK, core.Success("registry", map[string]interface{}{
		"id":    id,
		"state": string(entry.State),
	}))
}

type proxyRequestBody struct {
	Path    string                 `json:"path"`
	Method  string                 `json:"method"`
	Payload map[string]interface{} `json:"payload"`
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body proxyRequestBody
	if hErr := decodeBody(r, &body); hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("proxy", hErr))
		return
	}
	result, hErr := s.proxy.Call(r.Context(), id, proxy.Request{
		Path:    body.Path,
		Method:  body.Method,
		Payload: body.Payload,
	}, 0)
	if hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("proxy", hErr))
		return
	}
	writeJSON(w, http.StatusOK, core.Success("proxy", result))
}

func (s *Server) handleProxyExternal(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]
	var body proxyRequestBody
	if hErr := decodeBody(r, &body); hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("proxy-external", hErr))
		return
	}
	result, hErr := s.proxy.CallExternal(r.Context(), service, proxy.Request{
		Path:    body.Path,
		Method:  body.Method,
		Payload: body.Payload,
	})
	if hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("proxy-external", hErr))
		return
	}
	writeJSON(w, http.StatusOK, core.Success("proxy-external", result))
}

func (s *Server) handleSwarmRoute(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if hErr := decodeBody(r, &body); hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure("swarm", hErr))
		return
	}
	result, hErr := handlers.Dispatch(r.Context(), s.host, "agents_swarm", body)
	s.writeHandlerResult(w, "agents_swarm", result, hErr)
}

func (s *Server) writeHandlerResult(w http.ResponseWriter, name string, result map[string]interface{}, hErr *core.HostError) {
	if hErr != nil {
		writeJSON(w, http.StatusOK, core.Failure(name, hErr))
		return
	}
	writeJSON(w, http.StatusOK, core.Success(name, result))
}

// eventPayload adapts a run outcome into the events.Event.Payload field; kept
// local to httpapi so the events package stays free of handler-layer types.
type eventPayload struct {
	Handler string `json:"handler"`
	OK      bool   `json:"ok"`
}
