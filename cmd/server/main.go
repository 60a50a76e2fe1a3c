// Command server boots the tape host process: it loads configuration,
// wires every component (registry, router, scheduler, tribunal, proxy,
// sandbox pool, handler set), mounts the HTTP surface, and serves until a
// shutdown signal arrives. Grounded on the teacher's cmd/api/main.go
// wiring-then-serve shape: config.Get() first, component constructors in
// dependency order, mux routes, then signal.Notify-driven graceful
// shutdown.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghostkernel/tapehost/internal/config"
	"github.com/ghostkernel/tapehost/internal/dockerpool"
	"github.com/ghostkernel/tapehost/internal/events"
	"github.com/ghostkernel/tapehost/internal/handlers"
	"github.com/ghostkernel/tapehost/internal/httpapi"
	"github.com/ghostkernel/tapehost/internal/kvstore"
	"github.com/ghostkernel/tapehost/internal/metrics"
	"github.com/ghostkernel/tapehost/internal/middleware"
	"github.com/ghostkernel/tapehost/internal/proxy"
	"github.com/ghostkernel/tapehost/internal/registry"
	"github.com/ghostkernel/tapehost/internal/router"
	"github.com/ghostkernel/tapehost/internal/scheduler"
	"github.com/ghostkernel/tapehost/internal/tribunal"
)

func main() {
	cfg := config.Get()

	store := buildStore(cfg)

	registry.SetHandlerLookup(handlers.Known)
	reg := registry.New(cfg.Registry.Root,
		registry.WithBusyWait(time.Duration(cfg.Registry.UnmountBusyWait)*time.Millisecond))
	if scanResult, err := reg.Scan(); err != nil {
		slog.Warn("registry: initial scan failed", "root", cfg.Registry.Root, "error", err)
	} else {
		slog.Info("registry: scan complete", "registered", len(scanResult.Registered), "failed", len(scanResult.Failed))
	}

	sched := buildScheduler(cfg)

	trib := tribunal.New(tribunal.NewRoutingJudgeClient(), cfg.Tribunal.DisagreementLimit)
	judges := buildJudges(cfg)

	var pool *dockerpool.PoolManager
	if cfg.Sandbox.PoolMaxCap > 0 {
		pool = dockerpool.NewPoolManager(cfg.Sandbox.PoolMinIdle, cfg.Sandbox.PoolMaxCap, cfg.Sandbox.DockerImage,
			dockerpool.NewDockerBackend(cfg.Sandbox.DockerRuntime))
	}

	host := handlers.NewHost(reg, store, sched, trib, judges, nil, pool, cfg.Swarm, cfg.Sandbox.FilesystemRoot)
	prox := proxy.New(reg, host.AsLocalDispatcher(), cfg.Proxy.ExternalServices, proxy.WithMaxHops(cfg.Proxy.MaxHops))
	host.Proxy = prox

	backends := buildBackends(cfg)
	rtr := router.New(backends, host.AsRouterLocal())

	m := metrics.New()
	hub := events.NewHub()
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{})

	srv := httpapi.New(httpapi.Config{
		Host:         host,
		Router:       rtr,
		Registry:     reg,
		Proxy:        prox,
		Hub:          hub,
		Metrics:      m,
		RateLimiter:  rateLimiter,
		CORSOrigins:  cfg.Server.CORSAllowOrigins,
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, draining in-flight requests")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if pool != nil {
			pool.Stop()
		}
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("tapehost starting", "addr", cfg.Server.Host+":"+cfg.Server.Port, "tape_root", cfg.Registry.Root)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("tapehost stopped")
}

func buildStore(cfg *config.Config) kvstore.Store {
	if cfg.Store.Backend == "redis" {
		redisStore, err := kvstore.NewRedisStore(cfg.Store.RedisAddr, "", cfg.Store.RedisDB, cfg.Store.Namespace)
		if err != nil {
			slog.Warn("kvstore: redis unavailable, falling back to in-memory store", "error", err)
		} else {
			return redisStore
		}
	}
	return kvstore.NewMemoryStore()
}

func buildScheduler(cfg *config.Config) *scheduler.Scheduler {
	shards := make([]scheduler.Shard, 0, len(cfg.Scheduler.Shards))
	hasDedicatedGPU, hasIntegratedGPU := false, false
	for _, profile := range cfg.Scheduler.Shards {
		shards = append(shards, scheduler.Shard{
			ID:            profile.Name,
			Engine:        profile.Tier,
			CPUCompatible: profile.Tier == "cpu",
		})
		switch profile.Tier {
		case "gpu":
			hasDedicatedGPU = true
		case "integrated-gpu":
			hasIntegratedGPU = true
		}
	}

	policies := []scheduler.Policy{scheduler.DefaultPolicy}
	observer := scheduler.NewProcObserver(hasDedicatedGPU, hasIntegratedGPU)

	return scheduler.New(shards, policies, observer, httpEngineCaller,
		scheduler.WithMaxRetries(cfg.Scheduler.MaxRetries),
		scheduler.WithQueueDelay(time.Duration(cfg.Scheduler.QueueDelayMs)*time.Millisecond))
}

// httpEngineCaller executes a scheduled job against its shard's declared
// endpoint, or echoes the job's hints back when the shard has no remote
// endpoint configured (a local, engine-less device tier). Grounded on the
// same POST-JSON-and-decode idiom the inter-tape proxy uses for remote
// tapes.
func httpEngineCaller(ctx context.Context, shard scheduler.Shard, job scheduler.Job) (map[string]interface{}, error) {
	if shard.Endpoint == "" {
		return job.Hints, nil
	}

	body, err := json.Marshal(map[string]interface{}{"fingerprint": job.Fingerprint, "hints": job.Hints, "args": shard.Args})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, shard.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("engine endpoint returned status %d", resp.StatusCode)
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func buildJudges(cfg *config.Config) []tribunal.Judge {
	judges := make([]tribunal.Judge, 0, len(cfg.Tribunal.Judges))
	for _, j := range cfg.Tribunal.Judges {
		judges = append(judges, tribunal.Judge{
			Name:      j.Name,
			Transport: j.Transport,
			Address:   j.Address,
			Timeout:   time.Duration(j.TimeoutMs) * time.Millisecond,
		})
	}
	return judges
}

func buildBackends(cfg *config.Config) []router.Backend {
	backends := make([]router.Backend, 0, len(cfg.Router.Backends)+1)
	for i, b := range cfg.Router.Backends {
		backends = append(backends, router.Backend{
			Name:     b.Name,
			URL:      b.URL,
			Priority: len(cfg.Router.Backends) - i,
			Deadline: time.Duration(b.DeadlineMs) * time.Millisecond,
		})
	}
	backends = append(backends, router.Backend{Name: "local", URL: ""})
	return backends
}
