// Package aiff implements a demuxer for AIFF/AIFF-C containers: the
// big-endian mirror of demux/riff's chunk walk. No pack example wires an
// AIFF library (go-audio's own AIFF reader isn't part of this corpus), so
// this package hand-rolls the chunk walk directly on encoding/binary,
// following the same structure demux/riff uses for its RIFF walk.
package aiff

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
)

func init() {
	demux.Register(demux.Registration{
		Name:       "aiff",
		Extensions: []string{"aiff", "aif", "aifc"},
		New: func(src mediaio.Source) (demux.Demuxer, error) {
			return New(src), nil
		},
	})
}

// Demuxer implements demux.Demuxer for AIFF/AIFF-C.
type Demuxer struct {
	src mediaio.Source

	info       media.StreamInfo
	compressed bool // AIFF-C with a non-"NONE" compression type
	dataOffset int64
	dataSize   int64
	bytesRead  int64
	eof        bool
}

func New(src mediaio.Source) *Demuxer {
	return &Demuxer{src: src}
}

func (d *Demuxer) ParseContainer() error {
	header := make([]byte, 12)
	if err := mediaio.ReadFull(d.src, header); err != nil {
		return err
	}
	if string(header[0:4]) != "FORM" {
		return mediaerr.New(mediaerr.Format, "aiff.ParseContainer", "missing FORM chunk")
	}
	formType := string(header[8:12])
	aifc := formType == "AIFC"
	if !aifc && formType != "AIFF" {
		return mediaerr.New(mediaerr.Format, "aiff.ParseContainer", "unrecognized FORM type")
	}

	var channels uint16
	var sampleFrames uint32
	var bitsPerSample uint16
	var sampleRate int
	var compressionType string
	var haveCOMM, haveSSND bool

	for {
		var chunkHeader [8]byte
		if err := mediaio.ReadFull(d.src, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		id := string(chunkHeader[0:4])
		size := int64(binary.BigEndian.Uint32(chunkHeader[4:8]))
		paddedSize := size
		if paddedSize%2 == 1 {
			paddedSize++ // IFF chunks pad odd-length payloads to a word boundary
		}

		switch id {
		case "COMM":
			buf := make([]byte, size)
			if err := mediaio.ReadFull(d.src, buf); err != nil {
				return err
			}
			if len(buf) < 18 {
				return mediaerr.New(mediaerr.Format, "aiff.ParseContainer", "COMM chunk too short")
			}
			channels = binary.BigEndian.Uint16(buf[0:2])
			sampleFrames = binary.BigEndian.Uint32(buf[2:6])
			bitsPerSample = binary.BigEndian.Uint16(buf[6:8])
			sampleRate = int(decodeIEEE80ExtendedBE(buf[8:18]))
			if aifc && len(buf) >= 22 {
				compressionType = string(buf[18:22])
			}
			haveCOMM = true
			if err := skipPadding(d.src, paddedSize-size); err != nil {
				return err
			}
		case "SSND":
			if size < 8 {
				return mediaerr.New(mediaerr.Format, "aiff.ParseContainer", "SSND chunk too short")
			}
			var ssndHeader [8]byte
			if err := mediaio.ReadFull(d.src, ssndHeader[:]); err != nil {
				return err
			}
			offsetInChunk := int64(binary.BigEndian.Uint32(ssndHeader[4:8]))
			pos, err := d.src.Tell()
			if err != nil {
				return err
			}
			d.dataOffset = pos + offsetInChunk
			d.dataSize = size - 8 - offsetInChunk
			haveSSND = true
			if _, err := d.src.Seek(paddedSize-8, io.SeekCurrent); err != nil {
				return err
			}
		default:
			if _, err := d.src.Seek(paddedSize, io.SeekCurrent); err != nil {
				return err
			}
		}
	}

	if !haveCOMM || !haveSSND {
		return mediaerr.New(mediaerr.Format, "aiff.ParseContainer", "missing COMM or SSND chunk")
	}

	codecName, err := codecNameFor(bitsPerSample, compressionType)
	if err != nil {
		return err
	}

	d.info = media.StreamInfo{
		StreamID:        0,
		CodecName:       codecName,
		ContainerName:   "aiff",
		SampleRate:      sampleRate,
		Channels:        int(channels),
		BitsPerSample:   int(bitsPerSample),
		DurationSamples: int64(sampleFrames),
	}
	if sampleRate > 0 {
		d.info.DurationMs = int64(sampleFrames) * 1000 / int64(sampleRate)
	}

	if _, err := d.src.Seek(d.dataOffset, io.SeekStart); err != nil {
		return err
	}
	return nil
}

func skipPadding(src mediaio.Source, n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := src.Seek(n, io.SeekCurrent)
	return err
}

func codecNameFor(bitsPerSample uint16, compressionType string) (string, error) {
	if compressionType != "" && compressionType != "NONE" {
		switch compressionType {
		case "ulaw", "ULAW":
			return "mulaw", nil
		case "alaw", "ALAW":
			return "alaw", nil
		default:
			return "", mediaerr.New(mediaerr.Unsupported, "aiff.codecNameFor", "unsupported AIFF-C compression type "+compressionType)
		}
	}
	switch bitsPerSample {
	case 8:
		return "pcm_u8", nil
	case 16:
		return "pcm_s16be", nil
	case 24:
		return "pcm_s24be", nil
	case 32:
		return "pcm_s32be", nil
	default:
		return "", mediaerr.New(mediaerr.Unsupported, "aiff.codecNameFor", "unsupported AIFF bit depth")
	}
}

// decodeIEEE80ExtendedBE decodes the 80-bit big-endian extended-precision
// float AIFF uses for its sample rate field: 1 sign bit + 15 exponent bits
// + a 64-bit mantissa with an explicit leading integer bit.
func decodeIEEE80ExtendedBE(b []byte) float64 {
	sign := 1.0
	if b[0]&0x80 != 0 {
		sign = -1.0
	}
	exponent := int(binary.BigEndian.Uint16(b[0:2])&0x7FFF) - 16383
	mantissa := binary.BigEndian.Uint64(b[2:10])
	if exponent == 0 && mantissa == 0 {
		return 0
	}
	return sign * float64(mantissa) * math.Pow(2, float64(exponent-63))
}

func (d *Demuxer) Streams() []media.StreamInfo { return []media.StreamInfo{d.info} }

const readChunkSize = 32 * 1024

func (d *Demuxer) ReadChunkAny() (*media.MediaChunk, error) { return d.readChunk() }

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	if streamID != 0 {
		return nil, mediaerr.New(mediaerr.Format, "aiff.ReadChunk", "stream id out of range")
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
	ts := media.UnknownTimestamp
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
		return mediaerr.New(mediaerr.Unsupported, "aiff.SeekTo", "unknown frame layout")
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
