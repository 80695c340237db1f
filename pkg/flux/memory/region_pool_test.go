package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionPoolAcquireReleaseIdempotent(t *testing.T) {
	p := NewRegionPool()
	p.Init()
	defer p.Destroy()

	before := p.Statistics().TotalAllocated

	r := p.Acquire()
	require.NotNil(t, r)
	p.Release(r)

	after := p.Statistics().TotalAllocated
	assert.Equal(t, before, after, "acquire+release below the high watermark must not change total allocated")
}

func TestRegionPoolPeakUsageMonotonic(t *testing.T) {
	p := NewRegionPool()
	p.Init()
	defer p.Destroy()

	var acquired []*Region
	lastPeak := 0
	for i := 0; i < 20; i++ {
		r := p.Acquire()
		require.NotNil(t, r)
		acquired = append(acquired, r)
		peak := p.Statistics().Peak
		assert.GreaterOrEqual(t, peak, lastPeak)
		lastPeak = peak
	}

	for _, r := range acquired {
		p.Release(r)
	}
}

func TestRegionPoolReleaseKeepsOnlyFirstBuffer(t *testing.T) {
	p := NewRegionPool()
	p.Init()
	defer p.Destroy()

	r := p.Acquire()
	require.NotNil(t, r)
	r.Alloc(DefaultRegionSize + 1024) // forces a second backing buffer
	require.NotNil(t, r.begin.next)

	p.Release(r)
	assert.Nil(t, r.begin.next)
}

func TestRegionPoolDestroyLeavesNoLeaks(t *testing.T) {
	p := NewRegionPool()
	p.Init()

	r := p.Acquire()
	require.NotNil(t, r)
	p.Release(r)

	p.Destroy()
	stats := p.Statistics()
	assert.Equal(t, 0, stats.Available)
}

func TestRegionPoolExhaustionReturnsNil(t *testing.T) {
	// Holds poolSize regions at once; the next Acquire finds the pool
	// exhausted and returns nil.
	p := NewRegionPool()
	p.Init()
	defer p.Destroy()

	held := make([]*Region, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		r := p.Acquire()
		require.NotNil(t, r)
		held = append(held, r)
	}
	assert.Nil(t, p.Acquire())

	for _, r := range held {
		p.Release(r)
	}
}
