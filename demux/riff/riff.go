// Package riff implements a demuxer for RIFF/WAVE containers using
// go-audio/riff's chunk walker for the low-level chunk framing, with our
// own StreamInfo/MediaChunk production layered on top (rather than
// go-audio/wav's full decoder, since that owns its own PCM type).
package riff

import (
	"encoding/binary"
	"io"

	"github.com/go-audio/riff"

	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
	"github.com/olivier-w/mediastream/tag"
)

func init() {
	demux.Register(demux.Registration{
		Name:       "riff",
		Extensions: []string{"wav", "wave"},
		New: func(src mediaio.Source) (demux.Demuxer, error) {
			return New(src), nil
		},
	})
}

// wave format tags this demuxer maps to a codec name (see spec §4.4.3).
const (
	fmtPCM       = 1
	fmtIEEEFloat = 3
	fmtALaw      = 6
	fmtMuLaw     = 7
	fmtExtensible = 0xFFFE
)

type fmtChunk struct {
	tag           uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// Demuxer implements demux.Demuxer for RIFF/WAVE.
type Demuxer struct {
	src mediaio.Source

	info       media.StreamInfo
	dataOffset int64
	dataSize   int64
	bytesRead  int64
	tags       *tag.TagSet

	eof bool
}

func New(src mediaio.Source) *Demuxer {
	return &Demuxer{src: src}
}

func (d *Demuxer) ParseContainer() error {
	parser := riff.New(toReader(d.src))
	if err := parser.ParseHeaders(); err != nil {
		return mediaerr.Wrap(mediaerr.Format, "riff.ParseContainer", err)
	}
	if parser.Format != "WAVE" {
		return mediaerr.New(mediaerr.Format, "riff.ParseContainer", "not a WAVE file")
	}

	var fc *fmtChunk
	for {
		chunk, err := parser.NextChunk()
		if err == io.EOF {
			break
		}
		if err != nil {
			return mediaerr.Wrap(mediaerr.Format, "riff.ParseContainer", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			parsed, err := parseFmtChunk(chunk)
			if err != nil {
				return err
			}
			fc = parsed
		case "data":
			if fc == nil {
				return mediaerr.New(mediaerr.Format, "riff.ParseContainer", "data chunk before fmt chunk")
			}
			offset, err := d.src.Tell()
			if err != nil {
				return err
			}
			d.dataOffset = offset
			d.dataSize = int64(chunk.Size)
			chunk.Drain()
		case "LIST":
			d.parseListInfo(chunk)
		default:
			chunk.Drain()
		}
	}

	if fc == nil || d.dataOffset == 0 {
		return mediaerr.New(mediaerr.Format, "riff.ParseContainer", "missing fmt or data chunk")
	}

	codecName, err := codecNameFor(fc)
	if err != nil {
		return err
	}

	bytesPerFrame := int64(fc.channels) * int64(fc.bitsPerSample) / 8
	var durationSamples int64
	if bytesPerFrame > 0 {
		durationSamples = d.dataSize / bytesPerFrame
	}

	d.info = media.StreamInfo{
		StreamID:        0,
		CodecName:       codecName,
		ContainerName:   "riff",
		SampleRate:      int(fc.sampleRate),
		Channels:        int(fc.channels),
		BitsPerSample:   int(fc.bitsPerSample),
		DurationSamples: durationSamples,
	}
	if fc.sampleRate > 0 {
		d.info.DurationMs = durationSamples * 1000 / int64(fc.sampleRate)
	}

	if _, err := d.src.Seek(d.dataOffset, io.SeekStart); err != nil {
		return err
	}
	return nil
}

func parseFmtChunk(chunk *riff.Chunk) (*fmtChunk, error) {
	buf := make([]byte, chunk.Size)
	if _, err := io.ReadFull(chunk, buf); err != nil {
		return nil, mediaerr.Wrap(mediaerr.Truncated, "riff.parseFmtChunk", err)
	}
	if len(buf) < 16 {
		return nil, mediaerr.New(mediaerr.Format, "riff.parseFmtChunk", "fmt chunk too short")
	}
	return &fmtChunk{
		tag:           binary.LittleEndian.Uint16(buf[0:2]),
		channels:      binary.LittleEndian.Uint16(buf[2:4]),
		sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
		bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
	}, nil
}

func codecNameFor(fc *fmtChunk) (string, error) {
	switch fc.tag {
	case fmtPCM, fmtExtensible:
		switch fc.bitsPerSample {
		case 8:
			return "pcm_u8", nil
		case 16:
			return "pcm_s16le", nil
		case 24:
			return "pcm_s24le", nil
		case 32:
			return "pcm_s32", nil
		default:
			return "", mediaerr.New(mediaerr.Unsupported, "riff.codecNameFor", "unsupported PCM bit depth")
		}
	case fmtIEEEFloat:
		return "pcm_f32", nil
	case fmtALaw:
		return "alaw", nil
	case fmtMuLaw:
		return "mulaw", nil
	default:
		return "", mediaerr.New(mediaerr.Unsupported, "riff.codecNameFor", "unsupported wave format tag")
	}
}

func (d *Demuxer) parseListInfo(chunk *riff.Chunk) {
	buf := make([]byte, chunk.Size)
	if _, err := io.ReadFull(chunk, buf); err != nil {
		return
	}
	if len(buf) < 4 || string(buf[0:4]) != "INFO" {
		return
	}
	if d.tags == nil {
		d.tags = tag.NewEmptyTagSet()
	}
	pos := 4
	for pos+8 <= len(buf) {
		id := string(buf[pos : pos+4])
		size := binary.LittleEndian.Uint32(buf[pos+4 : pos+8])
		pos += 8
		if pos+int(size) > len(buf) {
			break
		}
		value := nullTerminated(buf[pos : pos+int(size)])
		d.tags.AddInfoField(id, value)
		pos += int(size)
		if size%2 == 1 {
			pos++ // RIFF chunks pad odd-length payloads to a word boundary
		}
	}
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// Tags returns any RIFF LIST INFO metadata found during ParseContainer, or
// nil if none was present.
func (d *Demuxer) Tags() *tag.TagSet { return d.tags }

func (d *Demuxer) Streams() []media.StreamInfo { return []media.StreamInfo{d.info} }

const readChunkSize = 32 * 1024

func (d *Demuxer) ReadChunkAny() (*media.MediaChunk, error) { return d.readChunk() }

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	if streamID != 0 {
		return nil, mediaerr.New(mediaerr.Format, "riff.ReadChunk", "stream id out of range")
	}
	return d.readChunk()
}

func (d *Demuxer) readChunk() (*media.MediaChunk, error) {
	remaining := d.dataSize - d.bytesRead
	if remaining <= 0 {
		d.eof = true
		return nil, io.EOF
	}
	n := int64(readChunkSize)
	if remaining < n {
		n = remaining
	}
	buf := make([]byte, n)
	if err := mediaio.ReadFull(d.src, buf); err != nil {
		return nil, err
	}
	d.bytesRead += n

	bytesPerFrame := int64(d.info.Channels) * int64(d.info.BitsPerSample) / 8
	var ts int64 = media.UnknownTimestamp
	if bytesPerFrame > 0 {
		ts = (d.bytesRead - n) / bytesPerFrame
	}
	return &media.MediaChunk{
		StreamID:    0,
		Data:        buf,
		Timestamp:   ts,
		EndOfStream: d.bytesRead >= d.dataSize,
	}, nil
}

func (d *Demuxer) SeekTo(targetMs int64) error {
	bytesPerFrame := int64(d.info.Channels) * int64(d.info.BitsPerSample) / 8
	if bytesPerFrame == 0 || d.info.SampleRate == 0 {
		return mediaerr.New(mediaerr.Unsupported, "riff.SeekTo", "unknown frame layout")
	}
	targetSample := targetMs * int64(d.info.SampleRate) / 1000
	byteOffset := targetSample * bytesPerFrame
	if byteOffset > d.dataSize {
		byteOffset = d.dataSize
	}
	if _, err := d.src.Seek(d.dataOffset+byteOffset, io.SeekStart); err != nil {
		return err
	}
	d.bytesRead = byteOffset
	d.eof = false
	return nil
}

func (d *Demuxer) DurationMs() int64 { return d.info.DurationMs }

func (d *Demuxer) PositionMs() int64 {
	bytesPerFrame := int64(d.info.Channels) * int64(d.info.BitsPerSample) / 8
	if bytesPerFrame == 0 || d.info.SampleRate == 0 {
		return 0
	}
	return (d.bytesRead / bytesPerFrame) * 1000 / int64(d.info.SampleRate)
}

func (d *Demuxer) IsEOF() bool { return d.eof }

// toReader adapts mediaio.Source to io.Reader for riff.New, which only
// needs sequential reads during the chunk walk.
func toReader(src mediaio.Source) io.Reader {
	return readerFunc(src.Read)
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
