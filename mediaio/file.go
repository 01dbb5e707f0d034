package mediaio

import (
	"io"
	"os"

	"github.com/olivier-w/mediastream/mediaerr"
)

// FileSource is an IoSource backed by an os.File. All calls translate
// directly to the underlying file descriptor's I/O; errors propagate as a
// mediaerr.Io failure with the original error preserved as cause.
type FileSource struct {
	f    *os.File
	size int64
	eof  bool
}

// OpenFile opens path and wraps it as a Source.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.Io, "mediaio.OpenFile", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mediaerr.Wrap(mediaerr.Io, "mediaio.OpenFile", err)
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

func (s *FileSource) Read(buf []byte) (int, error) {
	n, err := s.f.Read(buf)
	if err == io.EOF {
		s.eof = true
		return n, io.EOF
	}
	if err != nil {
		return n, mediaerr.Wrap(mediaerr.Io, "FileSource.Read", err)
	}
	if n > 0 {
		s.eof = false
	}
	return n, nil
}

func (s *FileSource) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return pos, mediaerr.Wrap(mediaerr.Io, "FileSource.Seek", err)
	}
	s.eof = false
	return pos, nil
}

func (s *FileSource) Tell() (int64, error) {
	return s.f.Seek(0, io.SeekCurrent)
}

func (s *FileSource) Size() int64 { return s.size }
func (s *FileSource) Eof() bool   { return s.eof }
func (s *FileSource) Close() error {
	return s.f.Close()
}
