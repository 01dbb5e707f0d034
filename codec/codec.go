// Package codec defines the AudioCodec contract every codec implementation
// (FLAC, Vorbis, Opus, Speex, MP3, PCM family) satisfies, plus a process-
// wide registry mapping codec names to factories.
package codec

import "github.com/olivier-w/mediastream/media"

// AudioCodec decodes one elementary stream's compressed chunks into PCM.
// Initialize is idempotent; Decode may return a zero-length frame when a
// chunk produces no output (e.g. a header packet); Flush returns any
// residual samples buffered internally once the chunk supply is exhausted;
// Reset restores the codec to its just-initialized state after a seek.
type AudioCodec interface {
	Initialize() error
	Decode(chunk *media.MediaChunk) (media.AudioFrame, error)
	Flush() (media.AudioFrame, error)
	Reset()
	Name() string
	CanDecode(info *media.StreamInfo) bool
}

// Factory constructs a codec instance bound to a specific stream's info.
type Factory func(info media.StreamInfo) (AudioCodec, error)

var registry = make(map[string]Factory)

// Register associates a codec name (StreamInfo.CodecName) with a factory.
// Called once per codec at process start from each codec package's init,
// or explicitly by a test that wants to inject an alternate.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Lookup returns the factory registered for name, if any.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// New instantiates the codec registered for info.CodecName.
func New(info media.StreamInfo) (AudioCodec, error) {
	factory, ok := Lookup(info.CodecName)
	if !ok {
		return nil, &UnsupportedCodecError{Name: info.CodecName}
	}
	return factory(info)
}

// UnsupportedCodecError is returned by New when no factory is registered
// for the requested codec name.
type UnsupportedCodecError struct{ Name string }

func (e *UnsupportedCodecError) Error() string {
	return "codec: unsupported codec " + e.Name
}
