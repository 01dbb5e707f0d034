package pcm

import (
	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/media"
)

func init() {
	for name, fn := range converters {
		name, fn := name, fn
		codec.Register(name, func(info media.StreamInfo) (codec.AudioCodec, error) {
			return &Decoder{info: info, convert: fn}, nil
		})
	}
}

var converters = map[string]func([]byte) []int16{
	"pcm_u8":    DecodeU8,
	"pcm_s16le": DecodeS16LE,
	"pcm_s24le": DecodeS24LE,
	"pcm_s32":   DecodeS32,
	"pcm_f32":   DecodeF32,
	"pcm_s16be": DecodeS16BE,
	"pcm_s24be": DecodeS24BE,
	"pcm_s32be": DecodeS32BE,
	"alaw":      DecodeALaw,
	"mulaw":     DecodeMuLaw,
}

// Decoder wraps one of this package's stateless byte-to-int16 converters
// as a codec.AudioCodec; every PCM variant needs nothing but the converter
// function, since none carry cross-chunk state.
type Decoder struct {
	info    media.StreamInfo
	convert func([]byte) []int16
}

func (d *Decoder) Initialize() error { return nil }
func (d *Decoder) Reset()            {}
func (d *Decoder) Name() string      { return d.info.CodecName }

func (d *Decoder) CanDecode(info *media.StreamInfo) bool {
	if info == nil {
		return false
	}
	_, ok := converters[info.CodecName]
	return ok && info.CodecName == d.info.CodecName
}

func (d *Decoder) Flush() (media.AudioFrame, error) {
	return media.AudioFrame{SampleRate: d.info.SampleRate, Channels: d.info.Channels}, nil
}

func (d *Decoder) Decode(chunk *media.MediaChunk) (media.AudioFrame, error) {
	empty := media.AudioFrame{SampleRate: d.info.SampleRate, Channels: d.info.Channels}
	if chunk == nil || len(chunk.Data) == 0 {
		return empty, nil
	}
	samples := d.convert(chunk.Data)
	frame := media.AudioFrame{
		Samples:       samples,
		SampleRate:    d.info.SampleRate,
		Channels:      d.info.Channels,
		TimestampSamp: chunk.Timestamp,
	}
	frame.DeriveTimestampMs()
	return frame, nil
}
