// Package mp3 is a thin driver over hajimehoshi/go-mp3, which decodes a
// continuous MPEG audio bitstream rather than discrete packets. This
// package bridges that by appending each incoming MediaChunk to an internal
// buffer and re-reading from go-mp3's decoder as bytes become available.
package mp3

import (
	"bytes"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
)

func init() {
	codec.Register("mp3", func(info media.StreamInfo) (codec.AudioCodec, error) {
		d := NewDecoder(info)
		return d, d.Initialize()
	})
}

// Decoder adapts go-mp3's stream-oriented Decoder to per-chunk decode.
type Decoder struct {
	info media.StreamInfo

	pending  bytes.Buffer // MPEG bytes not yet consumed by dec
	dec      *gomp3.Decoder
	eof      bool
	readback *pendingReader
}

// pendingReader lets go-mp3 read from Decoder.pending without the buffer's
// Read semantics destructively truncating bytes the decoder hasn't asked
// for yet; go-mp3 itself only ever reads forward, so a plain bytes.Buffer
// read is safe here and this type exists to report a recoverable "need
// more" condition instead of io.EOF mid-stream.
type pendingReader struct {
	buf *bytes.Buffer
	eof *bool
}

func (p *pendingReader) Read(b []byte) (int, error) {
	n, err := p.buf.Read(b)
	if err == io.EOF && !*p.eof {
		// More chunks may still arrive; go-mp3 treats a zero-read, nil-error
		// response as "try again later" rather than end of stream.
		return 0, nil
	}
	return n, err
}

// NewDecoder constructs an MP3 decoder bound to info.
func NewDecoder(info media.StreamInfo) *Decoder {
	return &Decoder{info: info}
}

func (d *Decoder) Initialize() error {
	d.pending.Reset()
	d.eof = false
	d.dec = nil
	return nil
}

func (d *Decoder) Reset() {
	d.pending.Reset()
	d.eof = false
	d.dec = nil
}

func (d *Decoder) Name() string { return "mp3" }

func (d *Decoder) CanDecode(info *media.StreamInfo) bool {
	return info != nil && info.CodecName == "mp3"
}

func (d *Decoder) Flush() (media.AudioFrame, error) {
	d.eof = true
	return d.drain()
}

func (d *Decoder) Decode(chunk *media.MediaChunk) (media.AudioFrame, error) {
	if chunk != nil {
		d.pending.Write(chunk.Data)
		if chunk.EndOfStream {
			d.eof = true
		}
	}
	return d.drain()
}

func (d *Decoder) drain() (media.AudioFrame, error) {
	empty := media.AudioFrame{SampleRate: d.info.SampleRate, Channels: d.info.Channels}

	if d.dec == nil {
		if d.readback == nil {
			d.readback = &pendingReader{buf: &d.pending, eof: &d.eof}
		}
		dec, err := gomp3.NewDecoder(d.readback)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return empty, nil // not enough header bytes buffered yet
			}
			return empty, mediaerr.Wrap(mediaerr.Format, "mp3.drain", err)
		}
		d.dec = dec
	}

	buf := make([]byte, 4*4608) // a few MPEG frames' worth of stereo PCM
	n, err := d.dec.Read(buf)
	if n == 0 {
		if err != nil && err != io.EOF {
			return empty, mediaerr.Wrap(mediaerr.Format, "mp3.drain", err)
		}
		return empty, nil
	}

	samples := bytesToInt16LE(buf[:n])
	frame := media.AudioFrame{
		Samples:    samples,
		SampleRate: d.dec.SampleRate(),
		Channels:   2, // go-mp3 always outputs interleaved stereo
	}
	frame.DeriveTimestampMs()
	return frame, nil
}

func bytesToInt16LE(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return out
}
