// Package vorbis is a thin driver over jfreymuth/vorbis's packet-level
// decoder. Unlike jfreymuth/oggvorbis (which owns container framing),
// jfreymuth/vorbis decodes one raw Vorbis packet at a time, which is the
// shape this pipeline's AudioCodec contract needs: the Ogg demuxer already
// extracted packets and captured the three identification/comment/setup
// header packets into StreamInfo.CodecPrivate.
package vorbis

import (
	"encoding/binary"

	jfvorbis "github.com/jfreymuth/vorbis"
	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
)

func init() {
	codec.Register("vorbis", func(info media.StreamInfo) (codec.AudioCodec, error) {
		d := NewDecoder(info)
		return d, d.Initialize()
	})
}

// Decoder adapts jfreymuth/vorbis's packet decoder to the codec.AudioCodec
// interface.
type Decoder struct {
	info    media.StreamInfo
	dec     *jfvorbis.Decoder
	headers [][]byte
}

// NewDecoder constructs a Vorbis decoder bound to info.CodecPrivate, which
// must contain the three length-prefixed header packets (identification,
// comment, setup) captured by the Ogg demuxer during parse_container.
func NewDecoder(info media.StreamInfo) *Decoder {
	return &Decoder{info: info}
}

func (d *Decoder) Initialize() error {
	headers, err := splitCodecPrivatePackets(d.info.CodecPrivate)
	if err != nil {
		return err
	}
	if len(headers) != 3 {
		return mediaerr.New(mediaerr.Format, "vorbis.Initialize", "expected 3 Vorbis header packets")
	}
	d.headers = headers

	dec := &jfvorbis.Decoder{}
	if err := dec.ReadHeaders(headers[0], headers[1], headers[2]); err != nil {
		return mediaerr.Wrap(mediaerr.Format, "vorbis.Initialize", err)
	}
	d.dec = dec
	return nil
}

func (d *Decoder) Reset() {
	dec := &jfvorbis.Decoder{}
	_ = dec.ReadHeaders(d.headers[0], d.headers[1], d.headers[2])
	d.dec = dec
}

func (d *Decoder) Name() string { return "vorbis" }

func (d *Decoder) CanDecode(info *media.StreamInfo) bool {
	return info != nil && info.CodecName == "vorbis"
}

func (d *Decoder) Flush() (media.AudioFrame, error) {
	return media.AudioFrame{SampleRate: d.info.SampleRate, Channels: d.info.Channels}, nil
}

func (d *Decoder) Decode(chunk *media.MediaChunk) (media.AudioFrame, error) {
	empty := media.AudioFrame{SampleRate: d.info.SampleRate, Channels: d.info.Channels}
	if chunk == nil || len(chunk.Data) == 0 {
		return empty, nil
	}

	pcm, err := d.dec.DecodePacket(chunk.Data)
	if err != nil {
		return empty, mediaerr.Wrap(mediaerr.Format, "vorbis.Decode", err)
	}
	if len(pcm) == 0 {
		return empty, nil
	}

	samples := floatToInt16Interleaved(pcm)
	frame := media.AudioFrame{
		Samples:       samples,
		SampleRate:    d.info.SampleRate,
		Channels:      d.info.Channels,
		TimestampSamp: chunk.Timestamp,
	}
	frame.DeriveTimestampMs()
	return frame, nil
}

// floatToInt16Interleaved converts per-channel float32 PCM in [-1, 1] into
// interleaved int16, clipping any excursion past full scale.
func floatToInt16Interleaved(channels [][]float32) []int16 {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	out := make([]int16, n*len(channels))
	idx := 0
	for i := 0; i < n; i++ {
		for _, ch := range channels {
			out[idx] = clipFloatToInt16(ch[i])
			idx++
		}
	}
	return out
}

func clipFloatToInt16(f float32) int16 {
	if f > 1.0 {
		f = 1.0
	} else if f < -1.0 {
		f = -1.0
	}
	return int16(f * 32767)
}

// splitCodecPrivatePackets decodes the Ogg demuxer's codec-private
// encoding: a sequence of LE32 length-prefixed raw packets.
func splitCodecPrivatePackets(data []byte) ([][]byte, error) {
	var packets [][]byte
	pos := 0
	for pos < len(data) {
		if pos+4 > len(data) {
			return nil, mediaerr.New(mediaerr.Truncated, "vorbis.splitCodecPrivatePackets", "truncated length prefix")
		}
		length := binary.LittleEndian.Uint32(data[pos:])
		pos += 4
		if int(length) > len(data)-pos {
			return nil, mediaerr.New(mediaerr.Format, "vorbis.splitCodecPrivatePackets", "packet length overflow")
		}
		packets = append(packets, data[pos:pos+int(length)])
		pos += int(length)
	}
	return packets, nil
}
