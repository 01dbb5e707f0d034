package mediaio

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/olivier-w/mediastream/mediaerr"
)

// defaultWindowSize is the rolling read-ahead cache size for ranged HTTP
// reads; resized down under memory pressure via SetWindowSize.
const defaultWindowSize = 64 * 1024

// maxWholeResourceFetch bounds the one-shot GET fallback used when the
// server does not honor range requests.
const maxWholeResourceFetch = 64 * 1024 * 1024

// sharedTransport pools at most one idle connection per host with a 30s
// idle timeout, matching spec's connection-pooling contract. The
// per-connection request cap is enforced by wrapping RoundTrip below.
var sharedTransport = &http.Transport{
	MaxIdleConnsPerHost: 1,
	IdleConnTimeout:     30 * time.Second,
}

const maxRequestsPerConnection = 100

// requestCappedTransport forces a fresh connection after N requests by
// disabling keep-alive on every Nth request through a given transport,
// approximating the 100-request-per-connection cap without tracking actual
// TCP connections.
type requestCappedTransport struct {
	base  http.RoundTripper
	count int
}

func (t *requestCappedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.count++
	if t.count%maxRequestsPerConnection == 0 {
		req.Close = true
	}
	return t.base.RoundTrip(req)
}

var sharedClient = &http.Client{
	Transport: &requestCappedTransport{base: sharedTransport},
	Timeout:   0, // per-request timeouts are the caller's responsibility via context
}

// HTTPSource is an IoSource backed by an HTTP(S) resource. On first use it
// issues a HEAD request to learn content length, MIME type, and whether the
// server honors Accept-Ranges: bytes. If ranges are supported, reads are
// served from a single rolling window cache, refilled with a ranged GET
// whenever the logical offset falls outside it. If ranges are not
// supported, the whole resource is fetched once (bounded by
// maxWholeResourceFetch) and all subsequent reads/seeks operate on that
// buffer.
type HTTPSource struct {
	url    string
	client *http.Client

	size         int64
	mime         string
	rangesOK     bool
	windowSize   int

	pos int64
	eof bool

	window       []byte
	windowStart  int64 // absolute offset of window[0]

	whole []byte // populated only in the no-ranges fallback
}

// OpenHTTP performs the initial HEAD probe against url and returns a ready
// Source.
func OpenHTTP(url string) (*HTTPSource, error) {
	s := &HTTPSource{url: url, client: sharedClient, windowSize: defaultWindowSize}
	if err := s.probe(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HTTPSource) probe() error {
	req, err := http.NewRequest(http.MethodHead, s.url, nil)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Io, "HTTPSource.probe", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Io, "HTTPSource.probe", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength >= 0 {
		s.size = resp.ContentLength
	} else {
		s.size = SizeUnknown
	}
	s.mime = resp.Header.Get("Content-Type")
	s.rangesOK = resp.Header.Get("Accept-Ranges") == "bytes"
	return nil
}

// SetWindowSize resizes the rolling read-ahead window, e.g. in response to
// memory pressure. It takes effect on the next refill.
func (s *HTTPSource) SetWindowSize(n int) {
	if n < 1024 {
		n = 1024
	}
	s.windowSize = n
}

// MIME returns the Content-Type reported by the HEAD probe.
func (s *HTTPSource) MIME() string { return s.mime }

func (s *HTTPSource) Read(buf []byte) (int, error) {
	if !s.rangesOK {
		return s.readWhole(buf)
	}
	return s.readWindowed(buf)
}

func (s *HTTPSource) readWhole(buf []byte) (int, error) {
	if s.whole == nil {
		if s.size != SizeUnknown && s.size > maxWholeResourceFetch {
			return 0, mediaerr.New(mediaerr.Unsupported, "HTTPSource.readWhole",
				"server does not support ranges and resource exceeds buffering limit")
		}
		data, err := s.fetchWhole()
		if err != nil {
			return 0, err
		}
		s.whole = data
		if s.size == SizeUnknown {
			s.size = int64(len(data))
		}
	}
	if s.pos >= int64(len(s.whole)) {
		s.eof = true
		return 0, io.EOF
	}
	n := copy(buf, s.whole[s.pos:])
	s.pos += int64(n)
	s.eof = s.pos >= int64(len(s.whole))
	return n, nil
}

func (s *HTTPSource) fetchWhole() ([]byte, error) {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.Io, "HTTPSource.fetchWhole", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxWholeResourceFetch+1))
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.Io, "HTTPSource.fetchWhole", err)
	}
	if len(data) > maxWholeResourceFetch {
		return nil, mediaerr.New(mediaerr.Unsupported, "HTTPSource.fetchWhole", "resource exceeds buffering limit")
	}
	return data, nil
}

func (s *HTTPSource) readWindowed(buf []byte) (int, error) {
	if s.size != SizeUnknown && s.pos >= s.size {
		s.eof = true
		return 0, io.EOF
	}
	if !s.inWindow(s.pos) {
		if err := s.refill(s.pos); err != nil {
			return 0, err
		}
	}
	offsetInWindow := int(s.pos - s.windowStart)
	n := copy(buf, s.window[offsetInWindow:])
	s.pos += int64(n)
	if n == 0 {
		s.eof = true
		return 0, io.EOF
	}
	s.eof = s.size != SizeUnknown && s.pos >= s.size
	return n, nil
}

func (s *HTTPSource) inWindow(pos int64) bool {
	if s.window == nil {
		return false
	}
	end := s.windowStart + int64(len(s.window))
	return pos >= s.windowStart && pos < end
}

func (s *HTTPSource) refill(pos int64) error {
	end := pos + int64(s.windowSize) - 1
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Io, "HTTPSource.refill", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", pos, end))

	resp, err := s.client.Do(req)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Io, "HTTPSource.refill", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return mediaerr.New(mediaerr.Io, "HTTPSource.refill", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	// A server that closes mid-response is retried once from the last
	// confirmed offset before the failure is surfaced; this is the
	// documented resolution for the "partial read on mid-response close"
	// open question.
	if err != nil {
		retryReq, rerr := http.NewRequest(http.MethodGet, s.url, nil)
		if rerr != nil {
			return mediaerr.Wrap(mediaerr.Io, "HTTPSource.refill", err)
		}
		retryReq.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", pos+int64(len(data)), end))
		retryResp, rerr := s.client.Do(retryReq)
		if rerr != nil {
			return mediaerr.Wrap(mediaerr.Io, "HTTPSource.refill", err)
		}
		defer retryResp.Body.Close()
		rest, rerr := io.ReadAll(retryResp.Body)
		if rerr != nil {
			return mediaerr.Wrap(mediaerr.Io, "HTTPSource.refill", rerr)
		}
		data = append(data, rest...)
	}

	s.window = data
	s.windowStart = pos
	return nil
}

func (s *HTTPSource) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		if s.size == SizeUnknown {
			return s.pos, mediaerr.New(mediaerr.Unsupported, "HTTPSource.Seek", "size unknown")
		}
		next = s.size + offset
	}
	if next < 0 {
		next = 0
	}
	s.pos = next
	s.eof = false
	// The window is invalidated lazily: we don't refetch here, only on the
	// next Read that misses it.
	return s.pos, nil
}

func (s *HTTPSource) Tell() (int64, error) { return s.pos, nil }
func (s *HTTPSource) Size() int64          { return s.size }
func (s *HTTPSource) Eof() bool            { return s.eof }
func (s *HTTPSource) Close() error         { return nil }
