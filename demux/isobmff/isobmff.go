// Package isobmff implements a demuxer for ISO base media file format
// containers (MP4, M4A, M4B, and similar): a recursive box walker builds a
// sample table per audio track exactly as aacfile's MP4 container parser
// does for AAC. Only mp4a sample entries (with their esds config) are
// decoded; any other stsd entry leaves the track's codec "unknown" with no
// sample rate, channel count or codec-private data. The whole box tree is
// walked eagerly at parse time, fragmented files included: trun entries
// from every moof are collected during the walk and appended to their
// track's sample table afterwards.
package isobmff

import (
	"io"

	"github.com/abema/go-mp4"

	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
)

func init() {
	demux.Register(demux.Registration{
		Name:       "isobmff",
		Extensions: []string{"mp4", "m4a", "m4b", "m4v", "mov"},
		New: func(src mediaio.Source) (demux.Demuxer, error) {
			return New(src), nil
		},
	})
}

// maxBoxDepth bounds the recursive box walk against a crafted container
// with a deep, cyclic, or absurdly nested box tree.
const maxBoxDepth = 64

// sample is one access unit in a track's sample table.
type sample struct {
	offset      int64
	size        uint32
	durationPts int64 // running presentation time in track timescale units
	sync        bool
}

// track holds one audio track's immutable sample table plus the codec
// identity recovered from its sample description box.
type track struct {
	trackID    uint32
	timescale  uint32
	codecName  string
	sampleRate int
	channels   int
	bitDepth   int
	codecData  []byte // esds DecoderSpecificInfo; nil for other sample entries
	samples    []sample
	totalDur   int64 // in timescale units
}

// Demuxer implements demux.Demuxer for ISO-BMFF containers.
type Demuxer struct {
	src mediaio.Source

	tracks      []*track
	streamInfos []media.StreamInfo
	primary     int // index into tracks/streamInfos

	fragmented bool
	cursor     []int // next unread sample index per track

	position int64
	eof      bool
}

func New(src mediaio.Source) *Demuxer {
	return &Demuxer{src: src}
}

func (d *Demuxer) ParseContainer() error {
	size := d.src.Size()
	if size == mediaio.SizeUnknown {
		return mediaerr.New(mediaerr.Unsupported, "isobmff.ParseContainer", "requires a known-size source")
	}
	reader := &sourceReaderAt{src: d.src}

	collector := &boxCollector{depth: 0}
	_, err := mp4.ReadBoxStructure(io.NewSectionReader(reader, 0, size), collector.handle)
	if err != nil {
		return mediaerr.Wrap(mediaerr.Format, "isobmff.ParseContainer", err)
	}

	collector.applyFragments()

	if len(collector.tracks) == 0 {
		return mediaerr.New(mediaerr.Format, "isobmff.ParseContainer", "no audio track found")
	}

	d.tracks = collector.tracks
	d.fragmented = collector.fragmented
	d.cursor = make([]int, len(d.tracks))

	for i, tr := range d.tracks {
		info := media.StreamInfo{
			StreamID:        i,
			CodecName:       tr.codecName,
			ContainerName:   "isobmff",
			SampleRate:      tr.sampleRate,
			Channels:        tr.channels,
			BitsPerSample:   tr.bitDepth,
			CodecPrivate:    tr.codecData,
			DurationSamples: tr.totalDur,
		}
		if tr.timescale > 0 {
			info.DurationMs = tr.totalDur * 1000 / int64(tr.timescale)
		}
		d.streamInfos = append(d.streamInfos, info)
	}
	d.primary = 0
	return nil
}

func (d *Demuxer) Streams() []media.StreamInfo { return d.streamInfos }

func (d *Demuxer) ReadChunkAny() (*media.MediaChunk, error) {
	return d.readChunk(d.primary)
}

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	if streamID < 0 || streamID >= len(d.tracks) {
		return nil, mediaerr.New(mediaerr.Format, "isobmff.ReadChunk", "stream id out of range")
	}
	return d.readChunk(streamID)
}

func (d *Demuxer) readChunk(streamID int) (*media.MediaChunk, error) {
	tr := d.tracks[streamID]
	idx := d.cursor[streamID]
	if idx >= len(tr.samples) {
		d.eof = true
		return nil, io.EOF
	}
	s := tr.samples[idx]

	buf := make([]byte, s.size)
	if _, err := d.src.Seek(s.offset, io.SeekStart); err != nil {
		return nil, err
	}
	if err := mediaio.ReadFull(d.src, buf); err != nil {
		return nil, err
	}

	d.cursor[streamID]++
	isLast := d.cursor[streamID] >= len(tr.samples)

	ts := media.UnknownTimestamp
	if tr.timescale > 0 {
		ts = s.durationPts
	}
	return &media.MediaChunk{
		StreamID:    streamID,
		Data:        buf,
		Timestamp:   ts,
		EndOfStream: isLast,
	}, nil
}

// SeekTo finds the nearest preceding sync sample at or before targetMs and
// repositions the primary track's read cursor there. Non-primary tracks are
// not re-synced; callers juggling multiple tracks reset each explicitly.
func (d *Demuxer) SeekTo(targetMs int64) error {
	tr := d.tracks[d.primary]
	if tr.timescale == 0 {
		return mediaerr.New(mediaerr.Unsupported, "isobmff.SeekTo", "track has no timescale")
	}
	targetPts := targetMs * int64(tr.timescale) / 1000

	best := -1
	for i, s := range tr.samples {
		if s.durationPts > targetPts {
			break
		}
		if s.sync {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	d.cursor[d.primary] = best
	d.eof = false
	return nil
}

func (d *Demuxer) DurationMs() int64 {
	if d.primary >= len(d.streamInfos) {
		return 0
	}
	return d.streamInfos[d.primary].DurationMs
}

func (d *Demuxer) PositionMs() int64 {
	tr := d.tracks[d.primary]
	idx := d.cursor[d.primary]
	if idx >= len(tr.samples) || tr.timescale == 0 {
		return d.DurationMs()
	}
	return tr.samples[idx].durationPts * 1000 / int64(tr.timescale)
}

func (d *Demuxer) IsEOF() bool { return d.eof }

// sourceReaderAt adapts mediaio.Source (a sequential Read+Seek source) to
// io.ReaderAt, which go-mp4's box reader requires for random access into
// mdat without disturbing this demuxer's own read cursor semantics.
type sourceReaderAt struct {
	src mediaio.Source
}

func (r *sourceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, err := r.src.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(readerFunc(r.src.Read), p)
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
