// Package raw implements a demuxer for headerless PCM and companded
// audio: format is inferred from the file extension, or supplied
// explicitly by the caller via Config, and duration is synthesized as
// filesize / bytes-per-frame since there is no length field to read.
package raw

import (
	"io"

	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
)

// Config describes the layout of a headerless stream explicitly, for
// callers who already know it (e.g. a capture pipeline writing its own
// raw PCM) and don't want to rely on extension inference.
type Config struct {
	CodecName     string // "pcm_u8", "pcm_s16le", "pcm_s32", "mulaw", "alaw", ...
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// extensionDefaults maps a bare file extension to the Config this package
// assumes when no explicit Config is supplied. Sample rate and channel
// count can't be recovered from a headerless stream at all; 44100/stereo
// is the same fallback the teacher's player used for unidentified input.
var extensionDefaults = map[string]Config{
	"raw":   {CodecName: "pcm_s16le", SampleRate: 44100, Channels: 2, BitsPerSample: 16},
	"pcm":   {CodecName: "pcm_s16le", SampleRate: 44100, Channels: 2, BitsPerSample: 16},
	"s16le": {CodecName: "pcm_s16le", SampleRate: 44100, Channels: 2, BitsPerSample: 16},
	"s16be": {CodecName: "pcm_s16be", SampleRate: 44100, Channels: 2, BitsPerSample: 16},
	"s24le": {CodecName: "pcm_s24le", SampleRate: 44100, Channels: 2, BitsPerSample: 24},
	"s24be": {CodecName: "pcm_s24be", SampleRate: 44100, Channels: 2, BitsPerSample: 24},
	"s32le": {CodecName: "pcm_s32", SampleRate: 44100, Channels: 2, BitsPerSample: 32},
	"s32be": {CodecName: "pcm_s32be", SampleRate: 44100, Channels: 2, BitsPerSample: 32},
	"f32le": {CodecName: "pcm_f32", SampleRate: 44100, Channels: 2, BitsPerSample: 32},
	"u8":    {CodecName: "pcm_u8", SampleRate: 44100, Channels: 1, BitsPerSample: 8},
	"ulaw":  {CodecName: "mulaw", SampleRate: 8000, Channels: 1, BitsPerSample: 8},
	"ua":    {CodecName: "mulaw", SampleRate: 8000, Channels: 1, BitsPerSample: 8},
	"alaw":  {CodecName: "alaw", SampleRate: 8000, Channels: 1, BitsPerSample: 8},
	"al":    {CodecName: "alaw", SampleRate: 8000, Channels: 1, BitsPerSample: 8},
}

func init() {
	for ext, cfg := range extensionDefaults {
		ext, cfg := ext, cfg
		demux.Register(demux.Registration{
			Name:       "raw_" + ext,
			Extensions: []string{ext},
			New: func(src mediaio.Source) (demux.Demuxer, error) {
				return NewWithConfig(src, cfg), nil
			},
		})
	}
}

func bytesPerSample(bitsPerSample int) int {
	if bitsPerSample <= 0 {
		return 2
	}
	return (bitsPerSample + 7) / 8
}

// Demuxer implements demux.Demuxer over a headerless PCM/companded
// stream; every byte from offset zero is audio data.
type Demuxer struct {
	src mediaio.Source
	cfg Config

	frameSize int64 // bytes per sample-frame (bytesPerSample * channels)
	pos       int64
	eof       bool

	info media.StreamInfo
}

// NewWithConfig builds a raw demuxer with an explicit, caller-supplied
// layout, bypassing extension inference entirely.
func NewWithConfig(src mediaio.Source, cfg Config) *Demuxer {
	return &Demuxer{src: src, cfg: cfg}
}

// New builds a raw demuxer that infers its layout from ext (without the
// leading dot), falling back to 16-bit stereo PCM at 44100 Hz if ext is
// unrecognized.
func New(src mediaio.Source, ext string) *Demuxer {
	cfg, ok := extensionDefaults[ext]
	if !ok {
		cfg = extensionDefaults["raw"]
	}
	return NewWithConfig(src, cfg)
}

const readChunkSamples = 4096

func (d *Demuxer) ParseContainer() error {
	if d.cfg.CodecName == "" {
		return mediaerr.New(mediaerr.Unsupported, "raw.ParseContainer", "no codec configured")
	}
	channels := d.cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	d.frameSize = int64(bytesPerSample(d.cfg.BitsPerSample) * channels)
	if d.frameSize <= 0 {
		d.frameSize = 2
	}

	d.info = media.StreamInfo{
		StreamID:      0,
		CodecName:     d.cfg.CodecName,
		ContainerName: "raw",
		SampleRate:    d.cfg.SampleRate,
		Channels:      channels,
		BitsPerSample: d.cfg.BitsPerSample,
	}

	size := d.src.Size()
	if size != mediaio.SizeUnknown && d.frameSize > 0 {
		totalFrames := size / d.frameSize
		d.info.DurationSamples = totalFrames
		if d.info.SampleRate > 0 {
			d.info.DurationMs = totalFrames * 1000 / int64(d.info.SampleRate)
		}
	}
	return nil
}

func (d *Demuxer) Streams() []media.StreamInfo { return []media.StreamInfo{d.info} }

func (d *Demuxer) ReadChunkAny() (*media.MediaChunk, error) { return d.readChunk() }

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	if streamID != 0 {
		return nil, mediaerr.New(mediaerr.Format, "raw.ReadChunk", "stream id out of range")
	}
	return d.readChunk()
}

func (d *Demuxer) readChunk() (*media.MediaChunk, error) {
	size := d.src.Size()
	if size != mediaio.SizeUnknown && d.pos >= size {
		d.eof = true
		return nil, io.EOF
	}

	wantBytes := readChunkSamples * d.frameSize
	buf := make([]byte, wantBytes)
	n, err := d.src.Read(buf)
	if n == 0 {
		if err == io.EOF || err == nil {
			d.eof = true
			return nil, io.EOF
		}
		return nil, err
	}
	// Trim to a whole number of sample-frames; a short final read that
	// splits a frame discards the partial tail rather than feeding a
	// codec converter a truncated sample.
	n -= int(int64(n) % d.frameSize)
	if n == 0 {
		d.eof = true
		return nil, io.EOF
	}

	frameOffset := d.pos / d.frameSize
	d.pos += int64(n)

	endOfStream := size != mediaio.SizeUnknown && size-d.pos < d.frameSize
	return &media.MediaChunk{
		StreamID:    0,
		Data:        buf[:n],
		Timestamp:   frameOffset,
		EndOfStream: endOfStream,
	}, nil
}

func (d *Demuxer) SeekTo(targetMs int64) error {
	if d.info.SampleRate == 0 {
		return mediaerr.New(mediaerr.Unsupported, "raw.SeekTo", "unknown sample rate")
	}
	targetFrame := targetMs * int64(d.info.SampleRate) / 1000
	byteOffset := targetFrame * d.frameSize
	if _, err := d.src.Seek(byteOffset, io.SeekStart); err != nil {
		return err
	}
	d.pos = byteOffset
	d.eof = false
	return nil
}

func (d *Demuxer) DurationMs() int64 { return d.info.DurationMs }

func (d *Demuxer) PositionMs() int64 {
	if d.info.SampleRate == 0 || d.frameSize == 0 {
		return 0
	}
	frame := d.pos / d.frameSize
	return frame * 1000 / int64(d.info.SampleRate)
}

func (d *Demuxer) IsEOF() bool { return d.eof }
