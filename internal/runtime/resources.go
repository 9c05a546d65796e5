package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// minResourceSampleInterval bounds how often ReadMemStats runs; handlers on
// a busy mailbox reuse the previous reading in between.
const minResourceSampleInterval = 250 * time.Millisecond

// resourceTracker samples coarse process CPU and memory usage for handler stats.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	last           ResourceUsage
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: "/sched/cpu:seconds"}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if !r.lastSample.IsZero() && now.Sub(r.lastSample) < minResourceSampleInterval {
		return r.last
	}

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: "/sched/cpu:seconds"}}
	}
	metrics.Read(r.samples)
	sample := r.samples[0]
	haveCPU := sample.Value.Kind() == metrics.KindFloat64

	var cpuPercent float64
	if haveCPU {
		cpuSeconds := sample.Value.Float64()
		if !r.lastSample.IsZero() {
			deltaWall := now.Sub(r.lastSample).Seconds()
			if deltaWall > 0 && r.numCPU > 0 {
				cpuPercent = ((cpuSeconds - r.lastCPUSeconds) / deltaWall) / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	r.last = ResourceUsage{
		CPUPercent:  cpuPercent,
		MemoryBytes: mem.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
	return r.last
}
