// Package scheduler implements C6: assigning inference jobs to a device
// (cpu, dedicated gpu, integrated gpu, or a delayed queue) under policy
// rules, with shard fallback and online metrics. Grounded on the teacher's
// internal/ghostpool pool manager's channel-plus-background-maintainer idiom
// (adapted here from "container pool" to "job queue"/retry loop) and on
// the teacher's circuitbreaker-style single-mutex-per-update metrics shape.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghostkernel/tapehost/internal/core"
)

// Shard is a named routing target: an engine tag, its endpoint/argument
// set, and the id of the shard to try if this one fails at the engine
// level.
type Shard struct {
	ID            string
	Engine        string
	Endpoint      string
	Args          map[string]interface{}
	Fallback      string
	CPUCompatible bool
}

// Policy governs the device-routing decision for jobs scheduled under it.
type Policy struct {
	ID                   string
	CPUThresholdLoad     float64
	PreferGPUForPriority float64
}

// DefaultPolicy is used when a job names a policy id the scheduler has not
// been configured with, so a misconfigured policy reference degrades to a
// conservative default instead of becoming a new error kind.
var DefaultPolicy = Policy{ID: "default", CPUThresholdLoad: 0.75, PreferGPUForPriority: 0.6}

// Job is one unit of scheduled work.
type Job struct {
	Fingerprint string
	Priority    float64
	ShardID     string
	PolicyID    string
	Hints       map[string]interface{}
}

// Result is what a successful schedule-and-execute cycle produces.
type Result struct {
	Device    string
	Engine    string
	Endpoint  string
	Args      map[string]interface{}
	Payload   map[string]interface{}
	LatencyMs float64
}

// DeviceObserver reports live device load so the scheduler can evaluate
// policy rules against current conditions rather than static profile data.
type DeviceObserver interface {
	CPULoad() float64
	DedicatedGPUAvailable() bool
	IntegratedGPUAvailable() bool
	IntegratedGPULoad() float64
}

// EngineCaller invokes the resolved shard's engine with the job and returns
// its payload, or an error if the engine itself failed.
type EngineCaller func(ctx context.Context, shard Shard, job Job) (map[string]interface{}, error)

// Scheduler routes and executes jobs against shards under policy rules.
type Scheduler struct {
	mu         sync.RWMutex
	shards     map[string]Shard
	policies   map[string]Policy
	observer   DeviceObserver
	caller     EngineCaller
	maxRetries int
	queueDelay time.Duration
	metrics    *Metrics
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithMaxRetries overrides the default bounded retry count (8) before a
// queued job becomes schedule-exhausted.
func WithMaxRetries(n int) Option {
	return func(s *Scheduler) { s.maxRetries = n }
}

// WithQueueDelay overrides the default queued-retry delay hint (500ms).
func WithQueueDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.queueDelay = d }
}

// New builds a Scheduler over the given shards and policies.
func New(shards []Shard, policies []Policy, observer DeviceObserver, caller EngineCaller, opts ...Option) *Scheduler {
	s := &Scheduler{
		shards:     make(map[string]Shard, len(shards)),
		policies:   make(map[string]Policy, len(policies)),
		observer:   observer,
		caller:     caller,
		maxRetries: 8,
		queueDelay: 500 * time.Millisecond,
		metrics:    newMetrics(),
	}
	for _, shard := range shards {
		s.shards[shard.ID] = shard
	}
	for _, policy := range policies {
		s.policies[policy.ID] = policy
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule routes job to a device and runs it, following fallback and
// queued-retry rules until it completes, fails, or is exhausted.
func (s *Scheduler) Schedule(ctx context.Context, job Job) (Result, *core.HostError) {
	shard, ok := s.getShard(job.ShardID)
	if !ok {
		return Result{}, core.NewError(core.ErrShardNotFound, fmt.Sprintf("no shard named %q", job.ShardID), nil)
	}
	policy := s.getPolicy(job.PolicyID)

	seen := map[string]bool{shard.ID: true}
	priority := job.Priority
	retries := 0

	for {
		device := s.routeDevice(shard, policy, priority)

		if device == deviceQueued {
			retries++
			if retries > s.maxRetries {
				s.metrics.recordFailure()
				return Result{}, core.NewError(core.ErrScheduleExhausted,
					fmt.Sprintf("shard %q exhausted %d retries while queued", shard.ID, s.maxRetries), nil)
			}
			select {
			case <-time.After(s.queueDelay):
			case <-ctx.Done():
				s.metrics.recordFailure()
				return Result{}, core.NewError(core.ErrDeadlineExceeded, "context cancelled while queued", nil)
			}
			continue
		}

		start := time.Now()
		payload, err := s.caller(ctx, shard, job)
		elapsed := time.Since(start)

		if err != nil {
			if fb, ok := s.getShard(shard.Fallback); ok && !seen[fb.ID] {
				seen[fb.ID] = true
				shard = fb
				priority *= 0.8
				continue
			}
			s.metrics.recordFailure()
			return Result{}, core.NewError(core.ErrEngineError, err.Error(), map[string]interface{}{"shard": shard.ID})
		}

		s.metrics.recordSuccess(elapsed)
		return Result{
			Device:    device,
			Engine:    shard.Engine,
			Endpoint:  shard.Endpoint,
			Args:      shard.Args,
			Payload:   payload,
			LatencyMs: float64(elapsed.Microseconds()) / 1000.0,
		}, nil
	}
}

const (
	deviceCPU           = "cpu"
	deviceGPUDedicated  = "dedicated-gpu"
	deviceGPUIntegrated = "integrated-gpu"
	deviceQueued        = "queued"
)

// routeDevice evaluates the policy rules in order; first match wins.
func (s *Scheduler) routeDevice(shard Shard, policy Policy, priority float64) string {
	if shard.CPUCompatible && s.observer.CPULoad() < policy.CPUThresholdLoad {
		return deviceCPU
	}
	if s.observer.DedicatedGPUAvailable() && priority > policy.PreferGPUForPriority {
		return deviceGPUDedicated
	}
	if s.observer.IntegratedGPUAvailable() && s.observer.IntegratedGPULoad() < 0.8 {
		return deviceGPUIntegrated
	}
	return deviceQueued
}

// Preview evaluates the policy rules for job against live device conditions
// and reports which device would be picked next, without scheduling,
// retrying, or calling any engine.
func (s *Scheduler) Preview(job Job) (Result, *core.HostError) {
	shard, ok := s.getShard(job.ShardID)
	if !ok {
		return Result{}, core.NewError(core.ErrShardNotFound, fmt.Sprintf("no shard named %q", job.ShardID), nil)
	}
	policy := s.getPolicy(job.PolicyID)
	device := s.routeDevice(shard, policy, job.Priority)
	return Result{Device: device, Engine: shard.Engine, Endpoint: shard.Endpoint, Args: shard.Args}, nil
}

func (s *Scheduler) getShard(id string) (Shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	shard, ok := s.shards[id]
	return shard, ok
}

func (s *Scheduler) getPolicy(id string) Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[id]; ok {
		return p
	}
	return DefaultPolicy
}

// Stats returns the scheduler's online metrics snapshot.
func (s *Scheduler) Stats() map[string]interface{} {
	return s.metrics.snapshot()
}
