package handlers

import (
	"context"
	"testing"

	"github.com/ghostkernel/tapehost/internal/config"
	"github.com/ghostkernel/tapehost/internal/kvstore"
	"github.com/ghostkernel/tapehost/internal/proxy"
	"github.com/ghostkernel/tapehost/internal/registry"
	"github.com/ghostkernel/tapehost/internal/scheduler"
	"github.com/ghostkernel/tapehost/internal/tribunal"
)

type stubObserver struct {
	cpuLoad float64
}

func (s stubObserver) CPULoad() float64              { return s.cpuLoad }
func (s stubObserver) DedicatedGPUAvailable() bool   { return false }
func (s stubObserver) IntegratedGPUAvailable() bool  { return false }
func (s stubObserver) IntegratedGPULoad() float64    { return 0 }

type stubJudgeClient struct{}

func (stubJudgeClient) Evaluate(_ context.Context, judge tribunal.Judge, _ string, _ tribunal.Task) (tribunal.Vote, error) {
	return tribunal.Vote{Verdict: "approve", Confidence: 0.9, Reasoning: "stub"}, nil
}

func newTestHost(t *testing.T) *Host {
	t.Helper()
	tapeRoot := t.TempDir()
	sandboxRoot := t.TempDir()

	reg := registry.New(tapeRoot)
	store := kvstore.NewMemoryStore()

	shards := []scheduler.Shard{{ID: "cpu-0", Engine: "stub", CPUCompatible: true}}
	caller := func(_ context.Context, shard scheduler.Shard, job scheduler.Job) (map[string]interface{}, error) {
		return map[string]interface{}{"echo": job.Fingerprint}, nil
	}
	sched := scheduler.New(shards, nil, stubObserver{cpuLoad: 0.1}, caller)

	judges := []tribunal.Judge{{Name: "judge-a", Transport: "http"}}
	trib := tribunal.New(stubJudgeClient{}, 10)

	swarm := config.SwarmConfig{FallbackAgent: "agent:c", Keywords: []config.KeywordRoute{{Keyword: "deploy", Agent: "agent:a"}}}

	h := NewHost(reg, store, sched, trib, judges, nil, nil, swarm, sandboxRoot)
	prox := proxy.New(reg, h.AsLocalDispatcher(), map[string]string{})
	h.Proxy = prox
	return h
}

var _ proxy.RegistryLookup = (*registry.Registry)(nil)
