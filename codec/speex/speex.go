// Package speex declares the Speex codec's presence in the registry
// without decoding it, for the same reason as codec/opus: no library in
// this module's dependency pack binds libspeex or implements Speex in pure
// Go.
package speex

import (
	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
)

func init() {
	codec.Register("speex", func(info media.StreamInfo) (codec.AudioCodec, error) {
		return &Decoder{info: info}, nil
	})
}

// Decoder is a passthrough stand-in; see package doc.
type Decoder struct{ info media.StreamInfo }

func (d *Decoder) Initialize() error { return nil }
func (d *Decoder) Reset()            {}
func (d *Decoder) Name() string      { return "speex" }

func (d *Decoder) CanDecode(info *media.StreamInfo) bool {
	return info != nil && info.CodecName == "speex"
}

func (d *Decoder) Flush() (media.AudioFrame, error) {
	return media.AudioFrame{}, nil
}

func (d *Decoder) Decode(chunk *media.MediaChunk) (media.AudioFrame, error) {
	return media.AudioFrame{}, mediaerr.New(mediaerr.Unsupported, "speex.Decode", "Speex decoding requires libspeex, not available in this build")
}
