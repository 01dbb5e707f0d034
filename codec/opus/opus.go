// Package opus declares the Opus codec's presence in the registry without
// decoding it. No library in this module's dependency pack binds libopus
// or provides a pure-Go Opus decoder, so this is a documented passthrough:
// CanDecode reports true (the demuxer can still identify and route Opus
// streams) but Decode always fails with Unsupported, matching the
// "surfaced; no fallback" recovery contract for that error kind.
package opus

import (
	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
)

func init() {
	codec.Register("opus", func(info media.StreamInfo) (codec.AudioCodec, error) {
		return &Decoder{info: info}, nil
	})
}

// Decoder is a passthrough stand-in; Initialize/Reset succeed trivially so
// callers can still probe stream info, but Decode is Unsupported.
type Decoder struct{ info media.StreamInfo }

func (d *Decoder) Initialize() error { return nil }
func (d *Decoder) Reset()            {}
func (d *Decoder) Name() string      { return "opus" }

func (d *Decoder) CanDecode(info *media.StreamInfo) bool {
	return info != nil && info.CodecName == "opus"
}

func (d *Decoder) Flush() (media.AudioFrame, error) {
	return media.AudioFrame{}, nil
}

func (d *Decoder) Decode(chunk *media.MediaChunk) (media.AudioFrame, error) {
	return media.AudioFrame{}, mediaerr.New(mediaerr.Unsupported, "opus.Decode", "Opus decoding requires libopus, not available in this build")
}
