package flac

import (
	"github.com/olivier-w/mediastream/bitio"
	"github.com/olivier-w/mediastream/mediaerr"
)

// streamInfo mirrors FLAC's mandatory STREAMINFO metadata block (RFC 9639
// §8.2), 34 bytes: two 16-bit block-size bounds, two 24-bit frame-size
// bounds, a packed 20-bit rate / 3-bit channels-1 / 5-bit depth-1 / 36-bit
// total-samples run, then a 128-bit MD5 of the decoded samples.
type streamInfo struct {
	MinBlockSize  uint32
	MaxBlockSize  uint32
	MinFrameSize  uint32
	MaxFrameSize  uint32
	SampleRate    uint32
	Channels      int
	BitsPerSample int
	TotalSamples  uint64
	MD5           [16]byte
}

func parseStreamInfo(data []byte) (*streamInfo, error) {
	if len(data) < 34 {
		return nil, mediaerr.New(mediaerr.Truncated, "flac.parseStreamInfo", "STREAMINFO block shorter than 34 bytes")
	}
	r := bitio.NewReader(data)

	minBlock, _ := r.ReadBits(16)
	maxBlock, _ := r.ReadBits(16)
	minFrame, _ := r.ReadBits(24)
	maxFrame, _ := r.ReadBits(24)
	rate, _ := r.ReadBits(20)
	channelsMinusOne, _ := r.ReadBits(3)
	depthMinusOne, _ := r.ReadBits(5)

	hi, err := r.ReadBits(32)
	if err != nil {
		return nil, err
	}
	lo, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	totalSamples := (uint64(hi) << 4) | uint64(lo)

	var md5 [16]byte
	copy(md5[:], data[18:34])

	return &streamInfo{
		MinBlockSize:  minBlock,
		MaxBlockSize:  maxBlock,
		MinFrameSize:  minFrame,
		MaxFrameSize:  maxFrame,
		SampleRate:    rate,
		Channels:      int(channelsMinusOne) + 1,
		BitsPerSample: int(depthMinusOne) + 1,
		TotalSamples:  totalSamples,
		MD5:           md5,
	}, nil
}

// StreamInfoSummary is what demux/flacnative needs from a STREAMINFO block
// without depending on this package's internal frame-decoding types.
type StreamInfoSummary struct {
	SampleRate    uint32
	Channels      int
	BitsPerSample int
	TotalSamples  uint64
	MD5           [16]byte
}

// ParseStreamInfoBytes decodes a raw 34-byte STREAMINFO block, letting a
// demuxer populate StreamInfo.SampleRate/Channels/BitsPerSample/
// DurationSamples without re-implementing RFC 9639 §8.2's bit layout.
func ParseStreamInfoBytes(data []byte) (StreamInfoSummary, error) {
	si, err := parseStreamInfo(data)
	if err != nil {
		return StreamInfoSummary{}, err
	}
	return StreamInfoSummary{
		SampleRate:    si.SampleRate,
		Channels:      si.Channels,
		BitsPerSample: si.BitsPerSample,
		TotalSamples:  si.TotalSamples,
		MD5:           si.MD5,
	}, nil
}
