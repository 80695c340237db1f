package memory

import (
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool sizing constants, carried over verbatim from the reference
// implementation's arena-pool.c.
const (
	poolSize          = 1024
	preallocatedCount = 32
	lowWatermark      = 8  // grow when available <= this
	highWatermark     = 64 // shrink when available >= this
	growBatch         = 8
)

// PreallocEnvVar is the environment variable that overrides the pool's
// startup preallocation count, mirroring ECEWO_ARENA_PREALLOC.
const PreallocEnvVar = "FLUX_REGION_PREALLOC"

// Stats reports RegionPool counters: available, in-use, peak, grow-count,
// shrink-count.
type Stats struct {
	Available      int
	InUse          int
	TotalAllocated int
	Peak           int
	GrowCount      int
	ShrinkCount    int
}

// RegionPool is a process-global, mutex-guarded freelist of Regions with
// low/high watermark grow and shrink behavior. It is the only mutex-guarded
// shared structure in the core.
type RegionPool struct {
	mu             sync.Mutex
	free           []*Region
	totalAllocated int
	peak           int
	growCount      int
	shrinkCount    int
	initialized    bool

	registry *prometheus.Registry
	gets     prometheus.Counter
	releases prometheus.Counter
	exhausts prometheus.Counter
	gauge    prometheus.GaugeFunc
}

// Registry exposes the pool's private Prometheus registry so callers can
// mount it under their own /metrics handler (e.g. via promhttp). Each
// RegionPool owns an independent registry so that multiple pools (as in
// cluster-worker mode) never collide on metric names.
func (p *RegionPool) Registry() *prometheus.Registry {
	return p.registry
}

// NewRegionPool constructs an uninitialized pool; call Init before use.
func NewRegionPool() *RegionPool {
	return &RegionPool{}
}

// Init preallocates the pool. The preallocation count is read from
// FLUX_REGION_PREALLOC if set (validated and capped to poolSize), falling
// back to preallocatedCount. Init is idempotent.
func (p *RegionPool) Init() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return
	}

	preallocate := preallocatedCount
	if raw := os.Getenv(PreallocEnvVar); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			if v > poolSize {
				v = poolSize
			}
			preallocate = v
		}
	}

	for i := 0; i < preallocate; i++ {
		p.free = append(p.free, NewRegion())
		p.totalAllocated++
	}

	p.registry = prometheus.NewRegistry()
	factory := promauto.With(p.registry)

	p.gets = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flux",
		Subsystem: "region_pool",
		Name:      "acquire_total",
		Help:      "Total number of RegionPool.Acquire calls.",
	})
	p.releases = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flux",
		Subsystem: "region_pool",
		Name:      "release_total",
		Help:      "Total number of RegionPool.Release calls.",
	})
	p.exhausts = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flux",
		Subsystem: "region_pool",
		Name:      "exhausted_total",
		Help:      "Total number of Acquire calls that found the pool exhausted.",
	})
	p.gauge = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "flux",
		Subsystem: "region_pool",
		Name:      "available",
		Help:      "Regions currently sitting in the freelist.",
	}, func() float64 {
		p.mu.Lock()
		defer p.mu.Unlock()
		return float64(len(p.free))
	})

	p.initialized = true
}

// Destroy drops every pooled Region. Stats are left intact for inspection;
// a destroyed pool must not be reused without a fresh Init.
func (p *RegionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.free {
		r.Free()
	}
	p.free = nil
	p.initialized = false
}

// tryGrow eagerly allocates up to growBatch more regions when the freelist
// is running low. Caller must hold p.mu.
func (p *RegionPool) tryGrow() {
	if len(p.free) > lowWatermark {
		return
	}
	spaceAvailable := poolSize - p.totalAllocated
	if spaceAvailable <= 0 {
		return
	}
	toAllocate := growBatch
	if toAllocate > spaceAvailable {
		toAllocate = spaceAvailable
	}
	for i := 0; i < toAllocate; i++ {
		p.free = append(p.free, NewRegion())
		p.totalAllocated++
	}
	if toAllocate > 0 {
		p.growCount++
	}
}

// tryShrink frees half the freelist's excess over the reserve floor once the
// freelist grows past the high watermark. Caller must hold p.mu.
func (p *RegionPool) tryShrink() {
	if len(p.free) < highWatermark {
		return
	}
	target := preallocatedCount + growBatch
	if len(p.free) <= target {
		return
	}
	excess := len(p.free) - target
	toFree := excess / 2
	if toFree < growBatch {
		toFree = growBatch
	}

	freed := 0
	for toFree > 0 && len(p.free) > target {
		last := len(p.free) - 1
		p.free[last].Free()
		p.free = p.free[:last]
		p.totalAllocated--
		toFree--
		freed++
	}
	if freed > 0 {
		p.shrinkCount++
	}
}

// Acquire pops a Region from the freelist, allocating a new one if the
// freelist is empty and the pool has not hit poolSize, or returns nil if
// exhausted. The returned Region is reset and ready for use.
func (p *RegionPool) Acquire() *Region {
	p.mu.Lock()

	if !p.initialized {
		p.mu.Unlock()
		return NewRegion()
	}

	if p.gets != nil {
		p.gets.Inc()
	}

	var r *Region
	if n := len(p.free); n > 0 {
		r = p.free[n-1]
		p.free = p.free[:n-1]

		inUse := p.totalAllocated - len(p.free)
		if inUse > p.peak {
			p.peak = inUse
		}
		p.tryGrow()
		p.mu.Unlock()
		r.Reset()
		return r
	}

	if p.totalAllocated < poolSize {
		r = NewRegion()
		p.totalAllocated++
		inUse := p.totalAllocated - len(p.free)
		if inUse > p.peak {
			p.peak = inUse
		}
		p.mu.Unlock()
		return r
	}

	if p.exhausts != nil {
		p.exhausts.Inc()
	}
	p.mu.Unlock()
	return nil
}

// Release keeps only the Region's first backing buffer (freeing the rest),
// resets it, and returns it to the freelist — or frees it outright if the
// freelist is at capacity. May trigger tryShrink.
func (p *RegionPool) Release(r *Region) {
	if r == nil {
		return
	}

	if !p.initialized {
		r.Free()
		return
	}

	r.keepFirstBufferOnly()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.releases != nil {
		p.releases.Inc()
	}

	if len(p.free) < poolSize {
		p.free = append(p.free, r)
		p.tryShrink()
		return
	}
	r.Free()
	p.totalAllocated--
}

// Statistics returns a snapshot of the pool's counters.
func (p *RegionPool) Statistics() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Available:      len(p.free),
		InUse:          p.totalAllocated - len(p.free),
		TotalAllocated: p.totalAllocated,
		Peak:           p.peak,
		GrowCount:      p.growCount,
		ShrinkCount:    p.shrinkCount,
	}
}

// IsInitialized reports whether Init has run.
func (p *RegionPool) IsInitialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}
