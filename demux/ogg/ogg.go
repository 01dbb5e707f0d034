// Package ogg implements an Ogg container demuxer (RFC 3533): page
// framing with CRC-32 validation, per-serial logical stream tracking,
// primary-stream selection, granule-position bisection seeking, and a
// tail-scan duration probe run on the first DurationMs call. Packet
// payloads are handed to whichever
// codec the structural probe identified (Vorbis, Opus, Speex, or FLAC-in-
// Ogg) without this package decoding audio itself.
package ogg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/olivier-w/mediastream/debug"
	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
)

func init() {
	demux.Register(demux.Registration{
		Name:       "ogg",
		Extensions: []string{"ogg", "oga", "ogv", "opus", "spx"},
		New: func(src mediaio.Source) (demux.Demuxer, error) {
			return New(src), nil
		},
	})
}

const maxBisectIterations = 64

// logicalStream tracks one serial number's accumulated state.
type logicalStream struct {
	serial        uint32
	codecName     string
	headerPackets [][]byte
	headerTarget  int // number of header packets expected before audio
	lastGranule   int64
	sampleRate    int
	channels      int
	eos           bool
	pending       []byte // partial packet carried across page boundaries
	headerSkip    int    // header packets still to discard during the audio replay pass
}

// Demuxer implements demux.Demuxer for Ogg containers.
type Demuxer struct {
	src mediaio.Source

	streams       map[uint32]*logicalStream
	order         []uint32 // first-seen serial order
	primarySerial uint32

	streamInfos []media.StreamInfo
	serialToID  map[uint32]int

	position int64 // absolute byte offset of the next unread page
	duration int64 // cached duration_ms, 0 until known
	lastPos  int64 // last returned chunk's timestamp in ms
	eof      bool
}

// New constructs an Ogg demuxer over src. ParseContainer must be called
// before any other method.
func New(src mediaio.Source) *Demuxer {
	return &Demuxer{
		src:        src,
		streams:    make(map[uint32]*logicalStream),
		serialToID: make(map[uint32]int),
	}
}

func (d *Demuxer) ParseContainer() error {
	startPos, err := d.src.Tell()
	if err != nil {
		return err
	}

	// Scan pages until every live BOS stream has captured its full header
	// packet set (Vorbis: 3, Opus: 2, FLAC-in-Ogg: signature+STREAMINFO as
	// one packet, Speex: 2), then stop: the rest streams lazily via
	// ReadChunk.
	for {
		pg, err := d.nextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		d.ingestHeaderPage(pg)
		if d.headersComplete() {
			break
		}
	}

	for _, serial := range d.order {
		ls := d.streams[serial]
		info := media.StreamInfo{
			StreamID:      len(d.streamInfos),
			CodecName:     ls.codecName,
			ContainerName: "ogg",
			SampleRate:    ls.sampleRate,
			Channels:      ls.channels,
			BitsPerSample: 16,
			CodecPrivate:  encodeHeaderPackets(ls.headerPackets),
		}
		if ls.codecName == "flac" && len(ls.headerPackets) > 0 && len(ls.headerPackets[0]) >= 51 {
			// codec/flac reads CodecPrivate as the bare 34-byte STREAMINFO
			// block, which follows the 9-byte mapping header, "fLaC" and the
			// 4-byte metadata block header.
			info.CodecPrivate = ls.headerPackets[0][17:51]
		}
		d.serialToID[serial] = info.StreamID
		d.streamInfos = append(d.streamInfos, info)
		if d.primarySerial == 0 {
			d.primarySerial = serial
		}
	}

	// The header-capture scan above already consumed whatever pages
	// contained header packets (and possibly leading audio packets
	// multiplexed into the same pages). Rather than tracking a separate
	// replay cursor, rewind to the start and let ReadChunk re-walk the
	// same pages, skipping exactly headerTarget packets per stream before
	// it starts handing packets out as audio chunks.
	if _, err := d.src.Seek(startPos, io.SeekStart); err != nil {
		return err
	}
	d.position = startPos
	for serial, ls := range d.streams {
		ls.pending = nil
		ls.headerSkip = ls.headerTarget
		_ = serial
	}
	return nil
}

func (d *Demuxer) headersComplete() bool {
	if len(d.streams) == 0 {
		return false
	}
	for _, ls := range d.streams {
		if ls.headerTarget == 0 || len(ls.headerPackets) < ls.headerTarget {
			return false
		}
	}
	return true
}

// consumePackets stitches a carried-over partial packet onto this page's
// first segment run, returns every packet the page completes, and stores
// any trailing partial segment run as the new pending tail.
func (ls *logicalStream) consumePackets(pg *page) [][]byte {
	complete, tail := pg.packets()
	if ls.pending != nil {
		if len(complete) > 0 {
			complete[0] = append(append([]byte{}, ls.pending...), complete[0]...)
		} else {
			tail = append(append([]byte{}, ls.pending...), tail...)
		}
		ls.pending = nil
	}
	if tail != nil {
		ls.pending = tail
	}
	ls.lastGranule = pg.granule
	if pg.eos {
		ls.eos = true
	}
	return complete
}

func (d *Demuxer) ingestHeaderPage(pg *page) {
	ls, ok := d.streams[pg.serial]
	if !ok {
		ls = &logicalStream{serial: pg.serial}
		d.streams[pg.serial] = ls
		d.order = append(d.order, pg.serial)
	}
	complete := ls.consumePackets(pg)
	for _, pkt := range complete {
		if ls.headerTarget == 0 {
			identifyCodec(ls, pkt)
		}
		if len(ls.headerPackets) < ls.headerTarget {
			ls.headerPackets = append(ls.headerPackets, pkt)
		}
	}
}

// identifyCodec performs the structural probe described in spec §4.6: the
// first packet's leading bytes distinguish Vorbis/Opus/Speex/FLAC-in-Ogg.
func identifyCodec(ls *logicalStream, first []byte) {
	switch {
	case bytes.HasPrefix(first, []byte{0x01, 'v', 'o', 'r', 'b', 'i', 's'}):
		ls.codecName = "vorbis"
		ls.headerTarget = 3
		if len(first) >= 16 {
			ls.channels = int(first[11])
			ls.sampleRate = int(binary.LittleEndian.Uint32(first[12:16]))
		}
	case bytes.HasPrefix(first, []byte("OpusHead")):
		ls.codecName = "opus"
		ls.headerTarget = 2
		ls.sampleRate = 48000
		if len(first) >= 10 {
			ls.channels = int(first[9])
		}
	case bytes.HasPrefix(first, []byte("Speex   ")):
		ls.codecName = "speex"
		ls.headerTarget = 2
	case len(first) >= 5 && first[0] == 0x7F && string(first[1:5]) == "FLAC":
		ls.codecName = "flac"
		ls.headerTarget = 1
		if len(first) >= 51 {
			// Ogg FLAC's mapping packet embeds the STREAMINFO block at a
			// fixed offset after a 9-byte mapping header + 4-byte "fLaC" +
			// 4-byte metadata block header.
			si := first[17:]
			if len(si) >= 18 {
				ls.sampleRate = int(uint32(si[10])<<12 | uint32(si[11])<<4 | uint32(si[12])>>4)
				ls.channels = int((si[12]>>1)&0x07) + 1
			}
		}
	default:
		ls.codecName = "unknown"
		ls.headerTarget = 1
	}
}

func encodeHeaderPackets(packets [][]byte) []byte {
	var buf []byte
	for _, p := range packets {
		var lenBytes [4]byte
		binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(p)))
		buf = append(buf, lenBytes[:]...)
		buf = append(buf, p...)
	}
	return buf
}

func (d *Demuxer) Streams() []media.StreamInfo { return d.streamInfos }

// nextPage reads and parses the next page at the source's current
// position, skipping (and logging) pages that fail CRC validation.
func (d *Demuxer) nextPage() (*page, error) {
	for {
		header := make([]byte, 27)
		if err := mediaio.ReadFull(d.src, header); err != nil {
			return nil, err
		}
		if string(header[0:4]) != capturePattern {
			// Resynchronize by scanning forward one byte at a time for the
			// next capture pattern; bounded by maxPageSize*4 to avoid an
			// unbounded scan on a file with no more valid pages.
			if err := d.resync(); err != nil {
				return nil, err
			}
			continue
		}
		segCount := int(header[26])
		rest := make([]byte, segCount)
		if err := mediaio.ReadFull(d.src, rest); err != nil {
			return nil, err
		}
		bodySize := 0
		for _, s := range rest {
			bodySize += int(s)
		}
		body := make([]byte, bodySize)
		if err := mediaio.ReadFull(d.src, body); err != nil {
			return nil, err
		}

		full := append(append(append([]byte{}, header...), rest...), body...)
		pg, _, ok, err := parsePage(full)
		if err != nil {
			return nil, err
		}
		if !ok {
			debug.Log("ogg:page", "dropping page with bad CRC at serial scan")
			continue
		}
		d.position += int64(len(full))
		return pg, nil
	}
}

func (d *Demuxer) resync() error {
	window := make([]byte, 1)
	scanned := 0
	for scanned < maxPageSize*4 {
		if _, err := d.src.Read(window); err != nil {
			return err
		}
		scanned++
		if window[0] != 'O' {
			continue
		}
		rest := make([]byte, 3)
		if err := mediaio.ReadFull(d.src, rest); err != nil {
			return err
		}
		if string(rest) == "ggS" {
			// Rewind so the caller's header re-read sees the full pattern.
			if _, err := d.src.Seek(-4, io.SeekCurrent); err != nil {
				return err
			}
			return nil
		}
	}
	return mediaerr.New(mediaerr.Format, "ogg.resync", "no valid page found within resync window")
}

func (d *Demuxer) ReadChunkAny() (*media.MediaChunk, error) {
	return d.readChunk(-1)
}

func (d *Demuxer) ReadChunk(streamID int) (*media.MediaChunk, error) {
	return d.readChunk(streamID)
}

func (d *Demuxer) readChunk(wantStreamID int) (*media.MediaChunk, error) {
	for {
		pg, err := d.nextPage()
		if errors.Is(err, io.EOF) {
			d.eof = true
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}

		ls, ok := d.streams[pg.serial]
		if !ok {
			ls = &logicalStream{serial: pg.serial}
			d.streams[pg.serial] = ls
		}
		sid, known := d.serialToID[pg.serial]
		if !known {
			continue // page for a serial not enumerated during parse
		}

		complete := ls.consumePackets(pg)
		pageIsLast := ls.pending == nil

		var lastChunk *media.MediaChunk
		for i, pkt := range complete {
			if ls.headerSkip > 0 {
				ls.headerSkip--
				continue
			}
			isLast := i == len(complete)-1 && pageIsLast
			ts := media.UnknownTimestamp
			if isLast && pg.granule >= 0 {
				ts = pg.granule
			}
			chunk := &media.MediaChunk{
				StreamID:    sid,
				Data:        pkt,
				Timestamp:   ts,
				EndOfStream: isLast && pg.eos,
			}
			lastChunk = chunk
		}

		if lastChunk == nil {
			continue
		}
		if wantStreamID >= 0 && lastChunk.StreamID != wantStreamID {
			continue
		}
		if lastChunk.Timestamp != media.UnknownTimestamp && sid == d.serialToID[d.primarySerial] {
			d.lastPos = granuleToMs(lastChunk.Timestamp, d.streamInfos[sid].SampleRate)
		}
		return lastChunk, nil
	}
}

func granuleToMs(granule int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return granule * 1000 / int64(sampleRate)
}

// SeekTo performs bisection on the physical byte range, searching for the
// greatest page belonging to the primary serial whose granule position is
// at or before the target. Codec state reset is the caller's
// responsibility (pipeline resets the codec after a successful seek).
func (d *Demuxer) SeekTo(targetMs int64) error {
	size := d.src.Size()
	if size == mediaio.SizeUnknown {
		return mediaerr.New(mediaerr.Unsupported, "ogg.SeekTo", "seek requires a known-size source")
	}
	primaryInfo := d.streamInfos[d.serialToID[d.primarySerial]]
	if primaryInfo.SampleRate <= 0 {
		return mediaerr.New(mediaerr.Unsupported, "ogg.SeekTo", "primary stream has no known sample rate")
	}
	targetGranule := targetMs * int64(primaryInfo.SampleRate) / 1000

	lo, hi := int64(0), size
	var bestOffset int64 = 0
	for iter := 0; iter < maxBisectIterations && lo < hi; iter++ {
		mid := lo + (hi-lo)/2
		pageOffset, granule, found := d.scanForwardForPrimaryPage(mid, size)
		if !found {
			hi = mid
			continue
		}
		if grainCmp(granule, targetGranule) <= 0 {
			bestOffset = pageOffset
			lo = pageOffset + 1
		} else {
			hi = mid
		}
	}

	if _, err := d.src.Seek(bestOffset, io.SeekStart); err != nil {
		return err
	}
	d.position = bestOffset
	d.eof = false
	for _, ls := range d.streams {
		ls.pending = nil
	}
	return nil
}

// scanForwardForPrimaryPage scans forward from offset (bounded by limit)
// for the next page belonging to the primary serial, returning its byte
// offset and granule.
func (d *Demuxer) scanForwardForPrimaryPage(offset, limit int64) (pageOffset int64, granule int64, found bool) {
	if _, err := d.src.Seek(offset, io.SeekStart); err != nil {
		return 0, 0, false
	}
	d.position = offset
	for d.position-offset < limit-offset {
		pg, err := d.nextPage()
		if err != nil {
			return 0, 0, false
		}
		if pg.serial == d.primarySerial {
			return d.position - int64(pg.totalSize), pg.granule, true
		}
	}
	return 0, 0, false
}

// grainCmp treats granules as possibly-unknown (-1): an unknown granule is
// always considered "not yet at the target".
func grainCmp(a, b int64) int {
	if a < 0 {
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (d *Demuxer) DurationMs() int64 {
	if d.duration != 0 {
		return d.duration
	}
	d.probeDuration()
	return d.duration
}

// probeDuration scans backward from the end of the source for the last
// page belonging to the primary serial with a non-negative granule. It
// runs synchronously inside DurationMs, on the caller's goroutine; there is
// no background probe, so on a high-latency HTTP source the first call
// blocks for the tail read. A nonzero result is cached; a 0 result means
// "not known" and the scan is repeated on the next DurationMs call. The
// source's read position is restored afterwards.
func (d *Demuxer) probeDuration() {
	if saved, err := d.src.Tell(); err == nil {
		defer d.src.Seek(saved, io.SeekStart)
	}
	size := d.src.Size()
	if size == mediaio.SizeUnknown || size == 0 {
		return
	}
	primaryInfo := d.streamInfos[d.serialToID[d.primarySerial]]
	if primaryInfo.SampleRate <= 0 {
		return
	}

	const tailWindow = 128 * 1024
	start := size - tailWindow
	if start < 0 {
		start = 0
	}
	if _, err := d.src.Seek(start, io.SeekStart); err != nil {
		return
	}
	buf := make([]byte, size-start)
	if err := mediaio.ReadFull(d.src, buf); err != nil && !errors.Is(err, io.EOF) {
		return
	}

	lastGranule := int64(-1)
	for i := 0; i+27 <= len(buf); i++ {
		if string(buf[i:i+4]) != capturePattern {
			continue
		}
		pg, consumed, ok, err := parsePage(buf[i:])
		if err != nil || !ok || consumed == 0 {
			continue
		}
		if pg.serial == d.primarySerial && pg.granule >= 0 {
			lastGranule = pg.granule
		}
		i += consumed - 1
	}
	if lastGranule >= 0 {
		d.duration = granuleToMs(lastGranule, primaryInfo.SampleRate)
	}
}

func (d *Demuxer) PositionMs() int64 { return d.lastPos }
func (d *Demuxer) IsEOF() bool       { return d.eof }
