package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSampleBufferPoolGetMissesWhenEmpty(t *testing.T) {
	p := NewSampleBufferPool(NewAccountant(), "test")
	buf := p.Get(1024, 0)
	require.Len(t, buf, 1024)
	require.Equal(t, uint64(1), p.Stats().BufferMisses)
}

func TestSampleBufferPoolReusesReturnedBuffer(t *testing.T) {
	p := NewSampleBufferPool(NewAccountant(), "test")
	buf := p.Get(1024, 2048)
	require.Equal(t, 2048, cap(buf))
	p.Put(buf)

	reused := p.Get(1000, 0)
	require.Equal(t, 1000, len(reused))
	require.GreaterOrEqual(t, cap(reused), 1000)
	stats := p.Stats()
	require.Equal(t, uint64(1), stats.BufferHits)
	require.Equal(t, uint64(1), stats.ReuseCount)
}

func TestSampleBufferPoolBucketsBySizeClass(t *testing.T) {
	p := NewSampleBufferPool(NewAccountant(), "test")
	small := p.Get(100, 0)
	large := p.Get(mediumBufferThreshold+1, 0)
	p.Put(small)
	p.Put(large)

	require.Len(t, p.small, 1)
	require.Len(t, p.large, 1)
	require.Len(t, p.medium, 0)
}

func TestSampleBufferPoolDropsOversizedBuffersUnderPressure(t *testing.T) {
	a := NewAccountant()
	a.cachedLevel.Store(int32(Critical))
	a.everComputed.Store(true)
	p := NewSampleBufferPool(a, "test")

	big := make([]int16, 0, defaultMaxSamplesPerBuffer) // exceeds the critical-pressure cap
	p.Put(big)
	require.Equal(t, 0, p.Stats().TotalBuffers)
}

func TestSampleBufferPoolClearDropsAllBucketsAndUntracks(t *testing.T) {
	acct := NewAccountant()
	p := NewSampleBufferPool(acct, "test")
	buf := p.Get(1024, 0)
	p.Put(buf)
	require.Greater(t, acct.Usage("test"), int64(0))

	p.Clear()
	require.Equal(t, 0, p.Stats().TotalBuffers)
	require.Equal(t, int64(0), acct.Usage("test"))
}

func TestSampleBufferPoolLimitsPooledBufferCount(t *testing.T) {
	p := NewSampleBufferPool(NewAccountant(), "test")
	for i := 0; i < defaultMaxPooledBuffers+5; i++ {
		p.Put(make([]int16, 0, 100))
	}
	require.Equal(t, defaultMaxPooledBuffers, p.Stats().TotalBuffers)
}
