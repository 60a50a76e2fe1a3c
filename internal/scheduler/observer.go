package scheduler

import (
	"math"
	"runtime"
	"sync/atomic"

	"github.com/prometheus/procfs"
)

// ProcObserver reports CPU load from /proc/loadavg via procfs, normalized
// by core count into a 0..1 fraction. GPU availability is declared at
// construction (hardware presence doesn't change at runtime); integrated
// GPU load is a settable gauge since this host has no GPU telemetry source
// in the pack to read it from.
type ProcObserver struct {
	fs                procfs.FS
	dedicatedGPU      bool
	integratedGPU     bool
	integratedGPULoad atomic.Uint64 // math.Float64bits
}

// NewProcObserver builds an observer that reads live CPU load from procfs.
// If procfs is unavailable (non-Linux host, restricted /proc), CPULoad
// reports 0 rather than failing the scheduler.
func NewProcObserver(dedicatedGPU, integratedGPU bool) *ProcObserver {
	fs, _ := procfs.NewDefaultFS()
	o := &ProcObserver{fs: fs, dedicatedGPU: dedicatedGPU, integratedGPU: integratedGPU}
	o.integratedGPULoad.Store(math.Float64bits(0.3))
	return o
}

func (o *ProcObserver) CPULoad() float64 {
	avg, err := o.fs.LoadAvg()
	if err != nil || avg == nil {
		return 0
	}
	cores := float64(runtime.NumCPU())
	if cores < 1 {
		cores = 1
	}
	load := avg.Load1 / cores
	if load > 1 {
		load = 1
	}
	return load
}

func (o *ProcObserver) DedicatedGPUAvailable() bool { return o.dedicatedGPU }

func (o *ProcObserver) IntegratedGPUAvailable() bool { return o.integratedGPU }

func (o *ProcObserver) IntegratedGPULoad() float64 {
	return math.Float64frombits(o.integratedGPULoad.Load())
}

// SetIntegratedGPULoad updates the integrated GPU load gauge.
func (o *ProcObserver) SetIntegratedGPULoad(v float64) {
	o.integratedGPULoad.Store(math.Float64bits(v))
}

// StaticObserver is a deterministic DeviceObserver for tests and for hosts
// where live procfs readings aren't meaningful (e.g. a container without
// host /proc visibility). All fields are safe for concurrent reads; use
// the Set* methods to mutate from a single goroutine or under an external
// lock.
type StaticObserver struct {
	cpuLoad           atomic.Uint64
	dedicatedGPU      atomic.Bool
	integratedGPU     atomic.Bool
	integratedGPULoad atomic.Uint64
}

// NewStaticObserver builds a StaticObserver with the given initial values.
func NewStaticObserver(cpuLoad float64, dedicatedGPU, integratedGPU bool, integratedGPULoad float64) *StaticObserver {
	o := &StaticObserver{}
	o.cpuLoad.Store(math.Float64bits(cpuLoad))
	o.dedicatedGPU.Store(dedicatedGPU)
	o.integratedGPU.Store(integratedGPU)
	o.integratedGPULoad.Store(math.Float64bits(integratedGPULoad))
	return o
}

func (o *StaticObserver) CPULoad() float64 { return math.Float64frombits(o.cpuLoad.Load()) }

func (o *StaticObserver) SetCPULoad(v float64) { o.cpuLoad.Store(math.Float64bits(v)) }

func (o *StaticObserver) DedicatedGPUAvailable() bool { return o.dedicatedGPU.Load() }

func (o *StaticObserver) IntegratedGPUAvailable() bool { return o.integratedGPU.Load() }

func (o *StaticObserver) IntegratedGPULoad() float64 {
	return math.Float64frombits(o.integratedGPULoad.Load())
}

func (o *StaticObserver) SetIntegratedGPULoad(v float64) {
	o.integratedGPULoad.Store(math.Float64bits(v))
}
