package flac

import (
	"github.com/olivier-w/mediastream/bitio"
	"github.com/olivier-w/mediastream/mediaerr"
)

const syncCode = 0x3FFE // 14-bit 0b11111111111110

// blockSizeFromCode implements RFC 9639 Table 14. A return of 0 means the
// actual size follows as an 8-bit (code 6) or 16-bit (code 7) literal.
func blockSizeFromCode(code uint32) (size uint32, literalBits int) {
	switch {
	case code == 0:
		return 0, -1 // reserved
	case code == 1:
		return 192, 0
	case code >= 2 && code <= 5:
		return 576 << (code - 2), 0
	case code == 6:
		return 0, 8
	case code == 7:
		return 0, 16
	default: // 8-15
		return 256 << (code - 8), 0
	}
}

// sampleRateFromCode implements RFC 9639 Table 15.
func sampleRateFromCode(code uint32) (rate uint32, literalBits int, fromStreaminfo bool) {
	standard := [12]uint32{
		0, 88200, 176400, 192000, 8000, 16000, 22050, 24000, 32000, 44100, 48000, 96000,
	}
	switch {
	case code == 0:
		return 0, 0, true
	case code >= 1 && code <= 11:
		return standard[code], 0, false
	case code == 12:
		return 0, 8, false // kHz, 8-bit literal
	case code == 13:
		return 0, 16, false // Hz, 16-bit literal
	case code == 14:
		return 0, 16, false // tens of Hz, 16-bit literal
	default: // 15
		return 0, -1, false // forbidden
	}
}

// bitsPerSampleFromCode implements RFC 9639 Table 17.
func bitsPerSampleFromCode(code uint32) (depth int, fromStreaminfo bool) {
	table := [8]int{0, 8, 12, -1, 16, 20, 24, 32}
	if code == 0 {
		return 0, true
	}
	return table[code], false
}

type channelLayout int

const (
	layoutIndependent channelLayout = iota
	layoutLeftSide
	layoutRightSide
	layoutMidSide
)

type frameHeader struct {
	blockSize     uint32
	sampleRate    uint32
	channels      int
	layout        channelLayout
	bitsPerSample int
	frameOrSample uint64
	headerBytes   []byte
}

// parseFrameHeader reads one FLAC frame header starting at the sync code.
// streaminfoRate/Depth supply the values used when the header's own code
// defers to STREAMINFO (rate code 0, depth code 0).
func parseFrameHeader(r *bitio.Reader, streaminfoRate uint32, streaminfoDepth int) (*frameHeader, error) {
	startBitPos := r.BitPos()

	sync, err := r.ReadBits(14)
	if err != nil {
		return nil, err
	}
	if sync != syncCode {
		return nil, mediaerr.New(mediaerr.Format, "flac.parseFrameHeader", "bad sync code")
	}
	reserved1, err := r.ReadBits(1)
	if err != nil {
		return nil, err
	}
	if reserved1 != 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.parseFrameHeader", "reserved bit set")
	}
	if _, err := r.ReadBits(1); err != nil { // blocking strategy: unused by this decoder
		return nil, err
	}

	blockSizeCode, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	blockSize, blockLiteralBits := blockSizeFromCode(blockSizeCode)
	if blockLiteralBits < 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.parseFrameHeader", "reserved block size code")
	}

	sampleRateCode, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	rate, rateLiteralBits, rateFromStreaminfo := sampleRateFromCode(sampleRateCode)
	if rateLiteralBits < 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.parseFrameHeader", "forbidden sample rate code")
	}
	if rateFromStreaminfo {
		rate = streaminfoRate
	}

	channelCode, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	channels, layout, err := decodeChannelAssignment(channelCode)
	if err != nil {
		return nil, err
	}

	depthCode, err := r.ReadBits(3)
	if err != nil {
		return nil, err
	}
	depth, depthFromStreaminfo := bitsPerSampleFromCode(depthCode)
	if depth < 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.parseFrameHeader", "reserved bit depth code")
	}
	if depthFromStreaminfo {
		depth = streaminfoDepth
	}

	reserved2, err := r.ReadBits(1)
	if err != nil {
		return nil, err
	}
	if reserved2 != 0 {
		return nil, mediaerr.New(mediaerr.Format, "flac.parseFrameHeader", "reserved bit set")
	}

	frameOrSample, err := readUTF8Coded(r)
	if err != nil {
		return nil, err
	}

	if blockLiteralBits > 0 {
		v, err := r.ReadBits(blockLiteralBits)
		if err != nil {
			return nil, err
		}
		blockSize = v + 1
	}
	if rateLiteralBits > 0 {
		v, err := r.ReadBits(rateLiteralBits)
		if err != nil {
			return nil, err
		}
		switch sampleRateCode {
		case 12:
			rate = v * 1000
		case 13:
			rate = v
		case 14:
			rate = v * 10
		}
	}

	endBitPos := r.BitPos()

	headerCRC, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}

	headerLen := (endBitPos - startBitPos) / 8
	start := startBitPos / 8
	headerBytes := append([]byte(nil), r.BytesAt(start, headerLen)...)
	if crc8(headerBytes) != byte(headerCRC) {
		return nil, mediaerr.New(mediaerr.CrcMismatch, "flac.parseFrameHeader", "header CRC-8 mismatch")
	}

	return &frameHeader{
		blockSize:     blockSize,
		sampleRate:    rate,
		channels:      channels,
		layout:        layout,
		bitsPerSample: depth,
		frameOrSample: frameOrSample,
		headerBytes:   headerBytes,
	}, nil
}

func decodeChannelAssignment(code uint32) (channels int, layout channelLayout, err error) {
	switch {
	case code <= 7:
		return int(code) + 1, layoutIndependent, nil
	case code == 8:
		return 2, layoutLeftSide, nil
	case code == 9:
		return 2, layoutRightSide, nil
	case code == 10:
		return 2, layoutMidSide, nil
	default:
		return 0, 0, mediaerr.New(mediaerr.Format, "flac.decodeChannelAssignment", "reserved channel assignment code")
	}
}

// readUTF8Coded decodes FLAC's UTF-8-like variable-length encoding of the
// frame/sample number (up to 36 bits of payload across up to 7 bytes).
func readUTF8Coded(r *bitio.Reader) (uint64, error) {
	first, err := r.ReadBits(8)
	if err != nil {
		return 0, err
	}
	b0 := byte(first)

	var extraBytes int
	var value uint64
	switch {
	case b0&0x80 == 0:
		return uint64(b0), nil
	case b0&0xE0 == 0xC0:
		extraBytes, value = 1, uint64(b0&0x1F)
	case b0&0xF0 == 0xE0:
		extraBytes, value = 2, uint64(b0&0x0F)
	case b0&0xF8 == 0xF0:
		extraBytes, value = 3, uint64(b0&0x07)
	case b0&0xFC == 0xF8:
		extraBytes, value = 4, uint64(b0&0x03)
	case b0&0xFE == 0xFC:
		extraBytes, value = 5, uint64(b0&0x01)
	case b0 == 0xFE:
		extraBytes, value = 6, 0
	default:
		return 0, mediaerr.New(mediaerr.Format, "flac.readUTF8Coded", "invalid UTF-8 coded number lead byte")
	}

	for i := 0; i < extraBytes; i++ {
		cont, err := r.ReadBits(8)
		if err != nil {
			return 0, err
		}
		if cont&0xC0 != 0x80 {
			return 0, mediaerr.New(mediaerr.Format, "flac.readUTF8Coded", "invalid UTF-8 coded number continuation byte")
		}
		value = (value << 6) | uint64(cont&0x3F)
	}
	return value, nil
}
