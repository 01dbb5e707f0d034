// Package demux defines the Demuxer contract every container parser (Ogg,
// ISO-BMFF, RIFF/AIFF, FLAC-native, raw) satisfies, plus a process-wide
// registry mapping format names and file extensions to factories.
package demux

import (
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaio"
)

// Demuxer parses one container format. ParseContainer must be called
// exactly once before any other method; it indexes headers, metadata
// blocks, or sample tables as needed but must not otherwise advance the
// source position relative to where parsing leaves it.
type Demuxer interface {
	ParseContainer() error
	Streams() []media.StreamInfo
	ReadChunkAny() (*media.MediaChunk, error)
	ReadChunk(streamID int) (*media.MediaChunk, error)
	SeekTo(targetMs int64) error
	DurationMs() int64
	PositionMs() int64
	IsEOF() bool
}

// Factory constructs a Demuxer bound to an already-open Source.
type Factory func(src mediaio.Source) (Demuxer, error)

// Registration associates a format name with its factory and the file
// extensions that hint at it during MediaFactory content detection.
type Registration struct {
	Name       string
	Extensions []string
	New        Factory
}

var registry []Registration

// Register adds a format to the process-wide DemuxerRegistry. Called once
// per demuxer package's init.
func Register(r Registration) {
	registry = append(registry, r)
}

// ByName returns the factory registered under name, if any.
func ByName(name string) (Factory, bool) {
	for _, r := range registry {
		if r.Name == name {
			return r.New, true
		}
	}
	return nil, false
}

// ByExtension returns the factory whose Extensions list contains ext
// (case-sensitive, without the leading dot), if any.
func ByExtension(ext string) (Factory, bool) {
	for _, r := range registry {
		for _, e := range r.Extensions {
			if e == ext {
				return r.New, true
			}
		}
	}
	return nil, false
}

// All returns every registered format, for structural-probe fallback scans.
func All() []Registration {
	return registry
}
