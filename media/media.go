// Package media holds the data model shared by every demuxer and codec:
// StreamInfo describes an elementary stream, MediaChunk carries compressed
// bytes for one stream, and AudioFrame carries decoded interleaved PCM.
// Kept separate from demux/codec to avoid import cycles between them.
package media

// UnknownTimestamp marks a chunk or frame timestamp as not known, e.g. an
// Ogg continuation page before its packet's granule position is resolved.
const UnknownTimestamp int64 = -1

// StreamInfo describes one elementary stream inside a container. It is
// produced once by the demuxer's container parse and is immutable
// thereafter.
type StreamInfo struct {
	StreamID int // unique within the owning demuxer

	CodecName     string // "pcm", "flac", "vorbis", "opus", "mulaw", "alaw", "mp3", "aac", "alac", ...
	ContainerName string // "ogg", "mp4", "riff", "aiff", "flac", "raw"

	SampleRate     int // Hz, >= 1
	Channels       int // >= 1, <= 8
	BitsPerSample  int // legal set depends on codec, typically 4-32

	BitrateBps int // 0 if unknown

	// DurationSamples and DurationMs are 0 when unknown. A demuxer that
	// learns the duration only later (e.g. the Ogg tail-granule probe)
	// reports it through its own DurationMs method and leaves these 0.
	DurationSamples int64
	DurationMs      int64

	// CodecPrivate holds codec-specific out-of-band configuration: Opus ID
	// header, FLAC STREAMINFO bytes, the three concatenated Vorbis setup
	// packets, AudioSpecificConfig, and so on. Interpretation is codec
	// specific.
	CodecPrivate []byte
}

// Valid reports whether the StreamInfo satisfies the invariants from the
// data model: sample_rate >= 1, channels >= 1.
func (s *StreamInfo) Valid() bool {
	return s != nil && s.SampleRate >= 1 && s.Channels >= 1
}

// MediaChunk is a contiguous run of compressed bytes for one stream,
// tagged with the packet's timestamp. Chunks are produced, consumed once,
// and dropped; they are otherwise opaque to the demuxer layer, since only
// the codec interprets the framing within Data.
type MediaChunk struct {
	StreamID  int
	Data      []byte
	Timestamp int64 // granule/sample timestamp, or UnknownTimestamp
	EndOfStream bool
}

// AudioFrame is decoded PCM output: interleaved int16 samples at the
// stream's rate and channel count. len(Samples) must be a multiple of
// Channels; a zero-length Samples slice is permitted when the codec
// produced no output for the given input (e.g. a header-only packet).
type AudioFrame struct {
	Samples        []int16
	SampleRate     int
	Channels       int
	TimestampSamp  int64 // samples from stream origin
	TimestampMs    int64 // derived from TimestampSamp and SampleRate
}

// NumFrames returns the number of sample-frames (one value per channel)
// carried by the AudioFrame.
func (f *AudioFrame) NumFrames() int {
	if f == nil || f.Channels == 0 {
		return 0
	}
	return len(f.Samples) / f.Channels
}

// DeriveTimestampMs fills TimestampMs from TimestampSamp and SampleRate.
func (f *AudioFrame) DeriveTimestampMs() {
	if f.SampleRate <= 0 {
		f.TimestampMs = 0
		return
	}
	f.TimestampMs = f.TimestampSamp * 1000 / int64(f.SampleRate)
}
