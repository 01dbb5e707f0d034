package pipeline

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/olivier-w/mediastream/media"
	"github.com/stretchr/testify/require"
)

type fakeDemuxer struct {
	info   media.StreamInfo
	chunks []media.MediaChunk

	mu        sync.Mutex
	idx       int
	seekCalls []int64
}

func (f *fakeDemuxer) ParseContainer() error                 { return nil }
func (f *fakeDemuxer) Streams() []media.StreamInfo            { return []media.StreamInfo{f.info} }
func (f *fakeDemuxer) ReadChunk(streamID int) (*media.MediaChunk, error) { return f.ReadChunkAny() }

func (f *fakeDemuxer) ReadChunkAny() (*media.MediaChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.chunks) {
		return nil, io.EOF
	}
	c := f.chunks[f.idx]
	f.idx++
	return &c, nil
}

func (f *fakeDemuxer) SeekTo(targetMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seekCalls = append(f.seekCalls, targetMs)
	f.idx = 0
	return nil
}

func (f *fakeDemuxer) DurationMs() int64 { return 1000 }
func (f *fakeDemuxer) PositionMs() int64 { return 0 }
func (f *fakeDemuxer) IsEOF() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idx >= len(f.chunks)
}

type fakeCodec struct {
	samplesPerChunk int
	initCalled      atomic.Bool
	resetCalled     atomic.Bool
}

func (c *fakeCodec) Initialize() error { c.initCalled.Store(true); return nil }
func (c *fakeCodec) Decode(chunk *media.MediaChunk) (media.AudioFrame, error) {
	samples := make([]int16, c.samplesPerChunk)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	return media.AudioFrame{Samples: samples, SampleRate: 44100, Channels: 2}, nil
}
func (c *fakeCodec) Flush() (media.AudioFrame, error)       { return media.AudioFrame{}, nil }
func (c *fakeCodec) Reset()                                 { c.resetCalled.Store(true) }
func (c *fakeCodec) Name() string                           { return "fake" }
func (c *fakeCodec) CanDecode(info *media.StreamInfo) bool  { return true }

type fakeSink struct {
	reader     io.Reader
	playCalls  atomic.Int32
	pauseCalls atomic.Int32
	closeCalls atomic.Int32
}

func (s *fakeSink) Play()               { s.playCalls.Add(1) }
func (s *fakeSink) Pause()              { s.pauseCalls.Add(1) }
func (s *fakeSink) IsPlaying() bool     { return true }
func (s *fakeSink) SetVolume(v float64) {}
func (s *fakeSink) Close() error        { s.closeCalls.Add(1); return nil }

func newFakeSinkFactory(sink *fakeSink) SinkFactory {
	return func(sampleRate, channels int, pcm io.Reader) (AudioSink, error) {
		sink.reader = pcm
		return sink, nil
	}
}

func TestNewAppliesDefaultsForZeroConfig(t *testing.T) {
	pl := New(Config{})
	require.Equal(t, defaultRingBytes, pl.cfg.RingBufferBytes)
	require.Equal(t, defaultRingHighWater, pl.cfg.RingHighWaterBytes)
	require.Equal(t, defaultChunkQueueItems, pl.cfg.ChunkQueueMaxItems)
	require.NotNil(t, pl.sinkFactory)
}

func TestPlayInitializesCodecAndStartsSink(t *testing.T) {
	d := &fakeDemuxer{
		info:   media.StreamInfo{SampleRate: 44100, Channels: 2},
		chunks: []media.MediaChunk{{EndOfStream: true}},
	}
	c := &fakeCodec{samplesPerChunk: 4}
	sink := &fakeSink{}
	pl := New(Config{Sink: newFakeSinkFactory(sink)})

	require.NoError(t, pl.Play(d, c))
	require.True(t, c.initCalled.Load())
	require.Equal(t, int32(1), sink.playCalls.Load())

	require.Eventually(t, func() bool {
		buf := make([]byte, 8)
		n, err := sink.reader.Read(buf)
		return err == nil && n == 8
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, pl.Close())
}

func TestSeekToDelegatesToDemuxerAndResetsCodecAndQueue(t *testing.T) {
	d := &fakeDemuxer{
		info:   media.StreamInfo{SampleRate: 44100, Channels: 2},
		chunks: []media.MediaChunk{{}, {}, {EndOfStream: true}},
	}
	c := &fakeCodec{samplesPerChunk: 2}
	sink := &fakeSink{}
	pl := New(Config{Sink: newFakeSinkFactory(sink)})

	require.NoError(t, pl.Play(d, c))
	require.NoError(t, pl.SeekTo(500))

	d.mu.Lock()
	seeks := append([]int64(nil), d.seekCalls...)
	d.mu.Unlock()
	require.Equal(t, []int64{500}, seeks)
	require.True(t, c.resetCalled.Load())

	require.NoError(t, pl.Close())
}

func TestSeekToFailsWithoutAnActiveTrack(t *testing.T) {
	pl := New(Config{})
	require.Error(t, pl.SeekTo(100))
}

func TestCloseMarksInactiveAndClosesSink(t *testing.T) {
	d := &fakeDemuxer{
		info:   media.StreamInfo{SampleRate: 44100, Channels: 2},
		chunks: []media.MediaChunk{{EndOfStream: true}},
	}
	c := &fakeCodec{samplesPerChunk: 2}
	sink := &fakeSink{}
	pl := New(Config{Sink: newFakeSinkFactory(sink)})

	require.NoError(t, pl.Play(d, c))
	require.NoError(t, pl.Close())
	require.False(t, pl.active.Load())
	require.GreaterOrEqual(t, sink.closeCalls.Load(), int32(1))

	// Closing twice is a no-op, not an error.
	require.NoError(t, pl.Close())
}

func TestPlayNextRaisesGenerationCounter(t *testing.T) {
	d1 := &fakeDemuxer{info: media.StreamInfo{SampleRate: 44100, Channels: 2}, chunks: []media.MediaChunk{{EndOfStream: true}}}
	c1 := &fakeCodec{samplesPerChunk: 2}
	sink := &fakeSink{}
	pl := New(Config{Sink: newFakeSinkFactory(sink)})

	require.NoError(t, pl.Play(d1, c1))
	gen1 := pl.generation.Load()

	d2 := &fakeDemuxer{info: media.StreamInfo{SampleRate: 44100, Channels: 2}, chunks: []media.MediaChunk{{EndOfStream: true}}}
	c2 := &fakeCodec{samplesPerChunk: 2}
	require.NoError(t, pl.PlayNext(d2, c2))

	require.Greater(t, pl.generation.Load(), gen1)
	require.NoError(t, pl.Close())
}
