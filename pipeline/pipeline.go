// Package pipeline implements PlaybackPipeline: the producer/consumer
// machinery moving compressed chunks from a demux.Demuxer through an
// AudioCodec into PCM an AudioSink can pull.
//
// Grounded on the teacher's internal/player/player.go, which pulls PCM
// synchronously inside oto's own Read() call — there is no separate
// decoder thread there, since climp decodes small files fast enough that
// inline decode-on-pull never starves the audio callback. spec.md §5
// requires the fuller producer/consumer shape this package adds: a
// decoder worker goroutine filling a PCM ring with a high-water mark, fed
// by a reader goroutine staging compressed chunks through a bounded
// queue, so a slow network IoSource never blocks the audio callback
// thread. The teacher's oto-integration idiom survives unchanged one
// layer down in sink.go: the ring's Read side still implements io.Reader
// for an oto.Player to pull from, exactly like the teacher's
// countingReader/speedReader chain.
package pipeline

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olivier-w/mediastream/bufpool"
	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
)

const (
	defaultRingBytes       = 1 << 20 // 1 MiB of interleaved PCM
	defaultRingHighWater   = defaultRingBytes / 2
	defaultChunkQueueItems = 64
	defaultChunkQueueBytes = 4 << 20
	retryBackoff           = 2 * time.Millisecond
)

// Config tunes a Pipeline's buffering. Zero-value fields fall back to
// DefaultConfig's values via New.
type Config struct {
	RingBufferBytes    int
	RingHighWaterBytes int
	ChunkQueueMaxItems int
	ChunkQueueMaxBytes int64
	Sink               SinkFactory // nil => NewOtoSink
}

// DefaultConfig returns the buffering Pipeline uses when Config is the
// zero value.
func DefaultConfig() Config {
	return Config{
		RingBufferBytes:    defaultRingBytes,
		RingHighWaterBytes: defaultRingHighWater,
		ChunkQueueMaxItems: defaultChunkQueueItems,
		ChunkQueueMaxBytes: defaultChunkQueueBytes,
		Sink:               NewOtoSink,
	}
}

// Pipeline owns one track's decode/playback machinery at a time. Public
// methods acquire decoderMu and delegate to an unlocked worker per
// spec §5's lock discipline (every externally callable method on a shared
// object acquires its mutex and delegates to a private worker).
type Pipeline struct {
	decoderMu sync.Mutex

	demuxer demux.Demuxer
	codec   codec.AudioCodec

	ring       *PcmRing
	chunkQueue *bufpool.BoundedQueue[*media.MediaChunk]

	active     atomic.Bool
	generation atomic.Uint64

	sinkFactory SinkFactory
	sink        AudioSink
	volume      float64

	cfg Config
}

func chunkMemoryBytes(c *media.MediaChunk) int64 {
	if c == nil {
		return 0
	}
	return int64(len(c.Data))
}

// New constructs an idle Pipeline. Call Play to start a track.
func New(cfg Config) *Pipeline {
	def := DefaultConfig()
	if cfg.RingBufferBytes <= 0 {
		cfg.RingBufferBytes = def.RingBufferBytes
	}
	if cfg.RingHighWaterBytes <= 0 {
		cfg.RingHighWaterBytes = def.RingHighWaterBytes
	}
	if cfg.ChunkQueueMaxItems <= 0 {
		cfg.ChunkQueueMaxItems = def.ChunkQueueMaxItems
	}
	if cfg.ChunkQueueMaxBytes <= 0 {
		cfg.ChunkQueueMaxBytes = def.ChunkQueueMaxBytes
	}
	if cfg.Sink == nil {
		cfg.Sink = def.Sink
	}

	pl := &Pipeline{
		cfg:         cfg,
		sinkFactory: cfg.Sink,
		volume:      1.0,
	}
	pl.active.Store(true)
	return pl
}

// Play begins decoding and playing d/c, replacing any track already
// playing. d.ParseContainer and c.Initialize need not have been called
// yet for c; d must already be parsed so Streams() reports valid info.
func (pl *Pipeline) Play(d demux.Demuxer, c codec.AudioCodec) error {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	return pl.switchTrackLocked(d, c)
}

// PlayNext switches to the next track in a playlist/chain, raising the
// generation counter so goroutines still servicing the previous track
// notice the mismatch and exit instead of writing stale PCM into the new
// track's ring.
func (pl *Pipeline) PlayNext(d demux.Demuxer, c codec.AudioCodec) error {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	return pl.switchTrackLocked(d, c)
}

func (pl *Pipeline) switchTrackLocked(d demux.Demuxer, c codec.AudioCodec) error {
	if !pl.active.Load() {
		return mediaerr.New(mediaerr.Unsupported, "pipeline.switchTrackLocked", "pipeline is closed")
	}
	streams := d.Streams()
	if len(streams) == 0 {
		return mediaerr.New(mediaerr.Format, "pipeline.switchTrackLocked", "track exposes no streams")
	}
	info := streams[0]

	if pl.sink != nil {
		_ = pl.sink.Close()
		pl.sink = nil
	}
	if err := c.Initialize(); err != nil {
		return err
	}

	pl.demuxer = d
	pl.codec = c
	pl.ring = NewPcmRing(pl.cfg.RingBufferBytes, pl.cfg.RingHighWaterBytes, &pl.active)
	pl.chunkQueue = bufpool.NewBoundedQueue[*media.MediaChunk](pl.cfg.ChunkQueueMaxItems, pl.cfg.ChunkQueueMaxBytes, chunkMemoryBytes)

	gen := pl.generation.Add(1)

	sink, err := pl.sinkFactory(info.SampleRate, info.Channels, pl.ring)
	if err != nil {
		return err
	}
	sink.SetVolume(pl.volume)
	pl.sink = sink

	ring := pl.ring
	queue := pl.chunkQueue
	go pl.ioReaderLoop(gen, d, queue)
	go pl.decodeLoop(gen, c, queue, ring)

	sink.Play()
	return nil
}

// ioReaderLoop pulls compressed chunks off the demuxer (the only point
// that may block on network I/O) and stages them in the bounded chunk
// queue, retrying a full queue with a short backoff rather than blocking
// indefinitely, since BoundedQueue's TryPush is explicitly non-blocking.
func (pl *Pipeline) ioReaderLoop(gen uint64, d demux.Demuxer, queue *bufpool.BoundedQueue[*media.MediaChunk]) {
	for pl.active.Load() && pl.generation.Load() == gen {
		chunk, err := d.ReadChunkAny()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			return
		}
		for pl.active.Load() && pl.generation.Load() == gen {
			if queue.TryPush(chunk) {
				break
			}
			time.Sleep(retryBackoff)
		}
	}
}

// decodeLoop pops chunks, decodes them under decoderMu (serializing
// against track switches and seeks), and writes the resulting PCM into
// the ring. After decoding and flushing the chunk flagged EndOfStream it
// marks the ring's writer done, so Read can drain and signal io.EOF to
// the sink naturally at end of track. A demuxer that reaches io.EOF
// without ever flagging a chunk EndOfStream leaves the writer open.
func (pl *Pipeline) decodeLoop(gen uint64, c codec.AudioCodec, queue *bufpool.BoundedQueue[*media.MediaChunk], ring *PcmRing) {
	for pl.active.Load() && pl.generation.Load() == gen {
		chunk, ok := queue.TryPop()
		if !ok {
			if pl.generation.Load() != gen {
				return
			}
			time.Sleep(retryBackoff)
			continue
		}

		pl.decoderMu.Lock()
		frame, err := c.Decode(chunk)
		pl.decoderMu.Unlock()
		if err != nil {
			continue
		}
		if len(frame.Samples) > 0 {
			if _, werr := ring.Write(samplesToBytes(frame.Samples)); werr != nil {
				return
			}
		}
		if chunk.EndOfStream {
			pl.decoderMu.Lock()
			flushed, ferr := c.Flush()
			pl.decoderMu.Unlock()
			if ferr == nil && len(flushed.Samples) > 0 {
				if _, werr := ring.Write(samplesToBytes(flushed.Samples)); werr != nil {
					return
				}
			}
			ring.MarkWriterDone()
			return
		}
	}
}

func samplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// SeekTo delegates to the current demuxer and discards any PCM already
// staged for the pre-seek position.
func (pl *Pipeline) SeekTo(targetMs int64) error {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if pl.demuxer == nil {
		return mediaerr.New(mediaerr.Unsupported, "pipeline.SeekTo", "no track playing")
	}
	if err := pl.demuxer.SeekTo(targetMs); err != nil {
		return err
	}
	pl.codec.Reset()
	pl.chunkQueue.Clear()
	pl.ring.Reset()
	return nil
}

// Pause and Resume toggle the sink without disturbing the decode
// pipeline; the ring keeps filling (up to its high-water mark) while
// paused so playback resumes instantly.
func (pl *Pipeline) Pause() {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if pl.sink != nil {
		pl.sink.Pause()
	}
}

func (pl *Pipeline) Resume() {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if pl.sink != nil {
		pl.sink.Play()
	}
}

func (pl *Pipeline) SetVolume(v float64) {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	pl.volume = v
	if pl.sink != nil {
		pl.sink.SetVolume(v)
	}
}

func (pl *Pipeline) PositionMs() int64 {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if pl.demuxer == nil {
		return 0
	}
	return pl.demuxer.PositionMs()
}

func (pl *Pipeline) DurationMs() int64 {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if pl.demuxer == nil {
		return 0
	}
	return pl.demuxer.DurationMs()
}

// Close shuts the pipeline down per spec §5's global cancellation model:
// active flips false and both condition variables are broadcast, so the
// reader and decode loops' next wakeup observes the flag and returns. No
// in-flight decode is forcibly interrupted.
func (pl *Pipeline) Close() error {
	pl.decoderMu.Lock()
	defer pl.decoderMu.Unlock()
	if !pl.active.Load() {
		return nil
	}
	pl.active.Store(false)
	if pl.ring != nil {
		pl.ring.Shutdown()
	}
	if pl.sink != nil {
		return pl.sink.Close()
	}
	return nil
}
