package bufpool

import "sync"

// Size-class thresholds and pool limits, carried over unchanged from
// EnhancedAudioBufferPool.h's constants (comments there note these as
// "~85ms at 48kHz stereo" / "~680ms at 48kHz stereo" / "~4s at 48kHz
// stereo").
const (
	smallBufferThreshold  = 4096
	mediumBufferThreshold = 32768

	defaultMaxPooledBuffers    = 16
	defaultMaxSamplesPerBuffer = 192 * 1024
)

// PoolStats mirrors EnhancedAudioBufferPool::PoolStats.
type PoolStats struct {
	TotalBuffers      int
	LargestBufferSize int
	TotalSamples      int
	BufferHits        uint64
	BufferMisses      uint64
	MemoryPressure    Level
	ReuseCount        uint64
	HitRatio          float64
}

// SampleBufferPool recycles []int16 PCM sample buffers across three size
// classes (small/medium/large), shrinking how much it pools as the
// Accountant reports rising memory pressure. Unlike the pure BoundedQueue,
// a SampleBufferPool actively tries to satisfy Get with a reused buffer
// before falling back to a fresh allocation.
type SampleBufferPool struct {
	mu sync.Mutex

	small, medium, large [][]int16

	accountant *Accountant
	component  string

	hits, misses, reuse uint64
}

// NewSampleBufferPool returns a pool that reports its pooled bytes to
// accountant under component (e.g. "bufpool.sample").
func NewSampleBufferPool(accountant *Accountant, component string) *SampleBufferPool {
	return &SampleBufferPool{accountant: accountant, component: component}
}

func (p *SampleBufferPool) bucketFor(samples int) *[][]int16 {
	switch {
	case samples <= smallBufferThreshold:
		return &p.small
	case samples <= mediumBufferThreshold:
		return &p.medium
	default:
		return &p.large
	}
}

func (p *SampleBufferPool) maxPooledBuffers() int {
	switch p.accountant.CachedPressure() {
	case Critical:
		return defaultMaxPooledBuffers / 4
	case High:
		return defaultMaxPooledBuffers / 2
	default:
		return defaultMaxPooledBuffers
	}
}

func (p *SampleBufferPool) maxSamplesPerBuffer() int {
	switch p.accountant.CachedPressure() {
	case Critical:
		return defaultMaxSamplesPerBuffer / 4
	case High:
		return defaultMaxSamplesPerBuffer / 2
	default:
		return defaultMaxSamplesPerBuffer
	}
}

// Get returns a buffer with length minSamples, reusing a pooled buffer of
// sufficient capacity when one is available, or allocating a fresh one
// sized to preferredSamples (falling back to minSamples when
// preferredSamples is 0 or smaller than minSamples).
func (p *SampleBufferPool) Get(minSamples, preferredSamples int) []int16 {
	if preferredSamples < minSamples {
		preferredSamples = minSamples
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.bucketFor(minSamples)
	for i := len(*bucket) - 1; i >= 0; i-- {
		buf := (*bucket)[i]
		if cap(buf) >= minSamples {
			*bucket = append((*bucket)[:i], (*bucket)[i+1:]...)
			p.hits++
			p.reuse++
			if p.accountant != nil {
				p.accountant.Track(p.component, -int64(cap(buf))*2)
			}
			return buf[:minSamples]
		}
	}

	p.misses++
	return make([]int16, minSamples, preferredSamples)
}

// Put returns buf to the pool for future reuse, subject to the current
// pressure-scaled size and count limits. Buffers exceeding the limit are
// simply dropped for the garbage collector to reclaim.
func (p *SampleBufferPool) Put(buf []int16) {
	capN := cap(buf)
	if capN == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if capN > p.maxSamplesPerBuffer() {
		return
	}
	bucket := p.bucketFor(capN)
	if len(*bucket) >= p.maxPooledBuffers() {
		return
	}
	*bucket = append(*bucket, buf[:0])
	if p.accountant != nil {
		p.accountant.Track(p.component, int64(capN)*2)
	}
}

// Clear drops every pooled buffer and untracks their bytes.
func (p *SampleBufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accountant != nil {
		p.accountant.Track(p.component, -p.pooledBytesLocked())
	}
	p.small = nil
	p.medium = nil
	p.large = nil
}

func (p *SampleBufferPool) pooledBytesLocked() int64 {
	var total int64
	for _, bucket := range [][][]int16{p.small, p.medium, p.large} {
		for _, buf := range bucket {
			total += int64(cap(buf)) * 2
		}
	}
	return total
}

// Stats reports current pool composition and cumulative hit/miss/reuse
// counters.
func (p *SampleBufferPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stats PoolStats
	for _, bucket := range [][][]int16{p.small, p.medium, p.large} {
		for _, buf := range bucket {
			stats.TotalBuffers++
			stats.TotalSamples += cap(buf)
			if cap(buf) > stats.LargestBufferSize {
				stats.LargestBufferSize = cap(buf)
			}
		}
	}
	stats.BufferHits = p.hits
	stats.BufferMisses = p.misses
	stats.ReuseCount = p.reuse
	if total := p.hits + p.misses; total > 0 {
		stats.HitRatio = float64(p.hits) / float64(total)
	}
	if p.accountant != nil {
		stats.MemoryPressure = p.accountant.CachedPressure()
	}
	return stats
}
