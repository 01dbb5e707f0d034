// Package mediafactory implements MediaFactory: given a URI it picks an
// IoSource backing (file vs HTTP), detects the container format, and
// returns an owning Handle coupling the resulting Demuxer, a per-stream
// codec factory, and the IoSource's lifetime.
//
// Detection follows spec §4.6's order — MIME (when the backing already
// knows it, e.g. an HTTP HEAD response), filename extension, then a
// magic-byte probe over the first 64 KiB — each carrying a confidence
// score so a later, less specific signal never overrides an earlier,
// more specific one. The inner structural probe that tells Vorbis from
// Opus from Speex from FLAC-in-Ogg lives inside demux/ogg itself, since
// that decision is about the packet stream, not the container.
package mediafactory

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/olivier-w/mediastream/codec"
	"github.com/olivier-w/mediastream/debug"
	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
)

// probeWindowBytes bounds the magic-byte probe read, per spec §4.6's
// "read first 4-64 KiB" allowance.
const probeWindowBytes = 64 * 1024

// Confidence scores for each detection signal, most specific first.
const (
	confidenceMIME      = 1.0
	confidenceExtension = 0.8
	confidenceMagic     = 0.6
)

// Handle owns one opened media resource: the demuxer, the IoSource
// backing it, and the format MediaFactory resolved it to. Close releases
// the underlying IoSource; it does not close the demuxer separately,
// since every demuxer in this pack is a thin view over its Source.
type Handle struct {
	Demuxer    demux.Demuxer
	Format     string
	Confidence float64

	src mediaio.Source
}

// Streams is a convenience forward to Demuxer.Streams.
func (h *Handle) Streams() []media.StreamInfo { return h.Demuxer.Streams() }

// CodecFor instantiates the codec registered for streamID's StreamInfo,
// completing the "codec factory per stream" half of the owning handle's
// contract. Callers still call Initialize themselves (Pipeline.Play does
// this), since a Handle may expose several streams decoded independently.
func (h *Handle) CodecFor(streamID int) (codec.AudioCodec, error) {
	for _, info := range h.Demuxer.Streams() {
		if info.StreamID == streamID {
			return codec.New(info)
		}
	}
	return nil, mediaerr.New(mediaerr.Format, "mediafactory.CodecFor", fmt.Sprintf("no stream with id %d", streamID))
}

// Close releases the IoSource. Safe to call once; the underlying Source
// implementations tolerate it being the last operation performed.
func (h *Handle) Close() error {
	return h.src.Close()
}

// Open dispatches uri's scheme to an IoSource backing, detects its
// container format, and returns a ready, parsed Handle.
//
// A bare path or a "file://" URI opens a mediaio.FileSource; "http://"
// and "https://" open a mediaio.HTTPSource, which performs its own HEAD
// probe and so hands MediaFactory a MIME hint for free.
func Open(uri string) (*Handle, error) {
	scheme, rest := splitScheme(uri)

	var (
		src      mediaio.Source
		mimeHint string
		path     string
		err      error
	)
	switch scheme {
	case "":
		path = uri
		src, err = mediaio.OpenFile(path)
	case "file":
		path = rest
		src, err = mediaio.OpenFile(path)
	case "http", "https":
		var hs *mediaio.HTTPSource
		hs, err = mediaio.OpenHTTP(uri)
		if err == nil {
			mimeHint = hs.MIME()
			path = httpPath(rest)
			src = hs
		}
	default:
		return nil, mediaerr.New(mediaerr.Unsupported, "mediafactory.Open", "unsupported URI scheme "+scheme)
	}
	if err != nil {
		return nil, err
	}

	h, err := OpenSource(src, extractExt(path), mimeHint)
	if err != nil {
		src.Close()
		return nil, err
	}
	debug.Log("mediafactory", "opened %q as %s (confidence %.2f)", uri, h.Format, h.Confidence)
	return h, nil
}

// OpenSource runs detection and container parsing against an
// already-open Source, for callers that built their own backing (tests,
// or a caller-supplied in-memory buffer via mediaio.NewBytesSource). ext
// and mimeHint may both be empty, in which case detection falls back
// entirely to the magic-byte probe.
func OpenSource(src mediaio.Source, ext, mimeHint string) (*Handle, error) {
	reg, confidence, err := detect(src, ext, mimeHint)
	if err != nil {
		return nil, err
	}
	d, err := reg.New(src)
	if err != nil {
		return nil, err
	}
	if err := d.ParseContainer(); err != nil {
		return nil, err
	}
	return &Handle{Demuxer: d, Format: reg.Name, Confidence: confidence, src: src}, nil
}

// Detect exposes the format-resolution step on its own, for callers (and
// tests) that want to know what MediaFactory would pick without opening
// a demuxer.
func Detect(src mediaio.Source, ext, mimeHint string) (demux.Registration, float64, error) {
	return detect(src, ext, mimeHint)
}

func detect(src mediaio.Source, ext, mimeHint string) (demux.Registration, float64, error) {
	if mimeHint != "" {
		if reg, ok := registrationByMIME(mimeHint); ok {
			return reg, confidenceMIME, nil
		}
	}
	if ext != "" {
		if reg, ok := registrationByExtension(ext); ok {
			return reg, confidenceExtension, nil
		}
	}
	buf, err := readProbe(src)
	if err == nil {
		for _, sig := range magicSignatures {
			if sig.match(buf) {
				if reg, ok := registrationByName(sig.name); ok {
					return reg, confidenceMagic, nil
				}
			}
		}
	}
	return demux.Registration{}, 0, mediaerr.New(mediaerr.Format, "mediafactory.detect", "unrecognized container format")
}

// magicSignatures lists the per-format byte signatures the probe checks,
// in spec §4.6's "magic-byte probe" order. raw has no signature of its
// own: a headerless stream is only ever reached through its extension.
var magicSignatures = []struct {
	name  string
	match func([]byte) bool
}{
	{"ogg", func(b []byte) bool { return bytes.HasPrefix(b, []byte("OggS")) }},
	{"flac", func(b []byte) bool { return bytes.HasPrefix(b, []byte("fLaC")) }},
	{"riff", func(b []byte) bool {
		return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
	}},
	{"aiff", func(b []byte) bool {
		return len(b) >= 12 && bytes.Equal(b[0:4], []byte("FORM")) &&
			(bytes.Equal(b[8:12], []byte("AIFF")) || bytes.Equal(b[8:12], []byte("AIFC")))
	}},
	{"isobmff", func(b []byte) bool { return len(b) >= 8 && bytes.Equal(b[4:8], []byte("ftyp")) }},
}

// mimeToFormat maps a (normalized, parameter-stripped) Content-Type to
// the demux.Registration name it implies.
var mimeToFormat = map[string]string{
	"audio/ogg":       "ogg",
	"application/ogg": "ogg",
	"video/ogg":       "ogg",
	"audio/flac":      "flac",
	"audio/x-flac":    "flac",
	"audio/wav":       "riff",
	"audio/wave":      "riff",
	"audio/x-wav":     "riff",
	"audio/vnd.wave":  "riff",
	"audio/aiff":      "aiff",
	"audio/x-aiff":    "aiff",
	"audio/mp4":       "isobmff",
	"audio/x-m4a":     "isobmff",
	"audio/m4a":       "isobmff",
	"video/mp4":       "isobmff",
}

func registrationByMIME(mime string) (demux.Registration, bool) {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.ToLower(strings.TrimSpace(mime))
	name, ok := mimeToFormat[mime]
	if !ok {
		return demux.Registration{}, false
	}
	return registrationByName(name)
}

func registrationByExtension(ext string) (demux.Registration, bool) {
	for _, r := range demux.All() {
		for _, e := range r.Extensions {
			if e == ext {
				return r, true
			}
		}
	}
	return demux.Registration{}, false
}

func registrationByName(name string) (demux.Registration, bool) {
	for _, r := range demux.All() {
		if r.Name == name {
			return r, true
		}
	}
	return demux.Registration{}, false
}

// readProbe reads up to probeWindowBytes from src's current position and
// always rewinds to the start afterward, since a successful magic match
// still needs the demuxer to parse from byte zero.
func readProbe(src mediaio.Source) ([]byte, error) {
	buf := make([]byte, probeWindowBytes)
	total := 0
	for total < len(buf) {
		n, err := src.Read(buf[total:])
		total += n
		if err != nil || n == 0 {
			break
		}
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return buf[:total], err
	}
	return buf[:total], nil
}

// splitScheme returns the lowercased scheme and the remainder after
// "://", or ("", uri) if uri has no scheme. This is deliberately not
// net/url.Parse: a bare Windows path like "C:\song.wav" must not be
// misread as a one-letter scheme.
func splitScheme(uri string) (scheme, rest string) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", uri
	}
	return strings.ToLower(uri[:idx]), uri[idx+3:]
}

// httpPath strips an http(s) URI's host and query/fragment, leaving just
// the path portion extractExt needs.
func httpPath(rest string) string {
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		return rest[i:]
	}
	return ""
}

// extractExt returns path's file extension, lowercased and without the
// leading dot, or "" if it has none.
func extractExt(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		path = path[i+1:]
	}
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || dot == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[dot+1:])
}
