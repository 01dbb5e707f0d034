// Package mediaio provides IoSource, an abstract random-access byte source
// with file, HTTP, and in-memory backings, matching the contract demuxers
// need: read, seek, tell, size, eof.
package mediaio

import (
	"io"

	"github.com/olivier-w/mediastream/mediaerr"
)

// SizeUnknown is returned by Size when the resource's length cannot be
// determined (e.g. a non-seekable HTTP response without Content-Length).
const SizeUnknown int64 = -1

// Source is the abstract byte source every demuxer reads through.
type Source interface {
	// Read reads into buf, returning the number of bytes read. Like
	// io.Reader, a short read with a nil error is legal.
	Read(buf []byte) (int, error)
	// Seek repositions the logical read offset; whence matches io.Seek*.
	Seek(offset int64, whence int) (int64, error)
	// Tell returns the current logical offset.
	Tell() (int64, error)
	// Size returns the total byte length, or SizeUnknown.
	Size() int64
	// Eof reports whether the last Read reached the end of the resource.
	Eof() bool
	// Close releases any underlying resource (file descriptor, socket).
	Close() error
}

// ReadFull reads exactly len(buf) bytes from src, or returns an error
// wrapping io.ErrUnexpectedEOF via mediaerr.Truncated if the source is
// exhausted first.
func ReadFull(src Source, buf []byte) error {
	n, err := io.ReadFull(readerFunc(src.Read), buf)
	if err != nil {
		if n > 0 && n < len(buf) {
			return mediaerr.Wrapf(mediaerr.Truncated, "mediaio.ReadFull", err, "read %d of %d bytes", n, len(buf))
		}
		return mediaerr.Wrap(mediaerr.Io, "mediaio.ReadFull", err)
	}
	return nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
