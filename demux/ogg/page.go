package ogg

import (
	"encoding/binary"

	"github.com/olivier-w/mediastream/mediaerr"
)

const capturePattern = "OggS"
const maxPageSize = 65307 // 27-byte header + 255-byte segment table + 255 segments * 255 bytes

// page is one physical Ogg page (RFC 3533 §6).
type page struct {
	continued    bool
	bos          bool
	eos          bool
	granule      int64
	serial       uint32
	sequence     uint32
	segmentTable []byte
	body         []byte
	totalSize    int // header + body, for seek bookkeeping
}

// parsePage reads one page starting at the beginning of data (which must
// begin with the capture pattern). It returns the page and the number of
// bytes consumed. CRC mismatches are reported via ok=false so the caller
// can skip the page and resynchronize rather than aborting the stream.
func parsePage(data []byte) (p *page, consumed int, ok bool, err error) {
	const headerFixedSize = 27
	if len(data) < headerFixedSize {
		return nil, 0, false, mediaerr.New(mediaerr.NeedMore, "ogg.parsePage", "need more buffered bytes")
	}
	if string(data[0:4]) != capturePattern {
		return nil, 0, false, mediaerr.New(mediaerr.Format, "ogg.parsePage", "missing OggS capture pattern")
	}
	version := data[4]
	if version != 0 {
		return nil, 0, false, mediaerr.New(mediaerr.Format, "ogg.parsePage", "unsupported Ogg stream version")
	}

	headerType := data[5]
	granule := int64(binary.LittleEndian.Uint64(data[6:14]))
	serial := binary.LittleEndian.Uint32(data[14:18])
	sequence := binary.LittleEndian.Uint32(data[18:22])
	storedCRC := binary.LittleEndian.Uint32(data[22:26])
	segCount := int(data[26])

	if len(data) < headerFixedSize+segCount {
		return nil, 0, false, mediaerr.New(mediaerr.NeedMore, "ogg.parsePage", "need more buffered bytes")
	}
	segTable := data[headerFixedSize : headerFixedSize+segCount]

	bodySize := 0
	for _, s := range segTable {
		bodySize += int(s)
	}

	totalSize := headerFixedSize + segCount + bodySize
	if len(data) < totalSize {
		return nil, 0, false, mediaerr.New(mediaerr.NeedMore, "ogg.parsePage", "need more buffered bytes")
	}

	header := make([]byte, totalSize)
	copy(header, data[:totalSize])
	// CRC is computed over the whole page with the CRC field zeroed.
	header[22], header[23], header[24], header[25] = 0, 0, 0, 0
	computed := oggCRC32(header)
	if computed != storedCRC {
		return nil, totalSize, false, nil
	}

	body := data[headerFixedSize+segCount : totalSize]

	return &page{
		continued:    headerType&0x01 != 0,
		bos:          headerType&0x02 != 0,
		eos:          headerType&0x04 != 0,
		granule:      granule,
		serial:       serial,
		sequence:     sequence,
		segmentTable: append([]byte(nil), segTable...),
		body:         append([]byte(nil), body...),
		totalSize:    totalSize,
	}, totalSize, true, nil
}

// packets splits the page body into packets using the segment table: a
// packet ends at the first segment of length < 255. A packet that doesn't
// terminate within this page continues into the next page's first packet
// (the caller carries it over in logicalStream.pending).
func (p *page) packets() (complete [][]byte, incompleteTail []byte) {
	offset := 0
	var current []byte
	for _, segLen := range p.segmentTable {
		current = append(current, p.body[offset:offset+int(segLen)]...)
		offset += int(segLen)
		if segLen < 255 {
			complete = append(complete, current)
			current = nil
		}
	}
	if current != nil {
		incompleteTail = current
	}
	return complete, incompleteTail
}
