package mediaio

import (
	"bytes"
	"io"
)

// BytesSource is an in-memory Source over a caller-supplied buffer. It
// backs unit tests and the raw demuxer's caller-supplied-buffer mode, and
// is the in-memory analogue of aacfile's io.ReaderAt-based containerSource.
type BytesSource struct {
	data []byte
	pos  int64
	eof  bool
}

// NewBytesSource wraps data without copying it.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

func (s *BytesSource) Read(buf []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		s.eof = true
		return 0, io.EOF
	}
	n := copy(buf, s.data[s.pos:])
	s.pos += int64(n)
	s.eof = s.pos >= int64(len(s.data))
	return n, nil
}

func (s *BytesSource) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		next = int64(len(s.data)) + offset
	}
	if next < 0 {
		next = 0
	}
	s.pos = next
	s.eof = s.pos >= int64(len(s.data))
	return s.pos, nil
}

func (s *BytesSource) Tell() (int64, error) { return s.pos, nil }
func (s *BytesSource) Size() int64          { return int64(len(s.data)) }
func (s *BytesSource) Eof() bool            { return s.eof }
func (s *BytesSource) Close() error         { return nil }

// Reader returns a bytes.Reader view of the remaining unread data, useful
// for handing the rest of the buffer to a reference decoder library.
func (s *BytesSource) Reader() *bytes.Reader {
	return bytes.NewReader(s.data[s.pos:])
}
