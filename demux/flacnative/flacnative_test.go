package flacnative

import (
	"crypto/md5"
	"io"
	"testing"

	"github.com/olivier-w/mediastream/mediaio"
	"github.com/stretchr/testify/require"
)

func putU16BE(buf []byte, v uint16) {
	buf[0] = byte(v >> 8)
	buf[1] = byte(v)
}

func putU24BE(buf []byte, v uint32) {
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

// buildStreamInfoBlock packs a 34-byte STREAMINFO payload matching RFC
// 9639 §8.2's bit layout: two 16-bit block-size bounds, two 24-bit
// frame-size bounds, then a packed 20/3/5/36-bit run, then a 128-bit MD5.
func buildStreamInfoBlock(sampleRate uint32, channels, bitsPerSample int, totalSamples uint64) []byte {
	buf := make([]byte, 34)
	putU16BE(buf[0:2], 4096)
	putU16BE(buf[2:4], 4096)
	putU24BE(buf[4:7], 0)
	putU24BE(buf[7:10], 0)

	packed := uint64(sampleRate&0xFFFFF)<<44 |
		uint64((channels-1)&0x07)<<41 |
		uint64((bitsPerSample-1)&0x1F)<<36 |
		(totalSamples & 0xFFFFFFFFF)
	for i := 0; i < 8; i++ {
		buf[10+i] = byte(packed >> (56 - 8*i))
	}
	sum := md5.Sum([]byte("ignored"))
	copy(buf[18:34], sum[:])
	return buf
}

func metadataBlockHeader(blockType byte, length int, last bool) []byte {
	h := make([]byte, 4)
	h[0] = blockType
	if last {
		h[0] |= 0x80
	}
	h[1] = byte(length >> 16)
	h[2] = byte(length >> 8)
	h[3] = byte(length)
	return h
}

func buildFlacFile(t *testing.T, si []byte, frames [][]byte) []byte {
	t.Helper()
	var out []byte
	out = append(out, []byte("fLaC")...)
	out = append(out, metadataBlockHeader(blockStreamInfo, len(si), true)...)
	out = append(out, si...)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}

// syntheticFrame builds a minimal byte sequence beginning with a FLAC
// frame sync code, enough for the byte-offset seek scan to recognize a
// frame boundary without a full frame decode.
func syntheticFrame(payload byte) []byte {
	frame := make([]byte, 32)
	frame[0] = 0xFF
	frame[1] = 0xF8
	for i := 2; i < len(frame); i++ {
		frame[i] = payload
	}
	return frame
}

func TestParseContainerRejectsMissingMagic(t *testing.T) {
	src := mediaio.NewBytesSource([]byte("NOPE0000"))
	d := New(src)
	require.Error(t, d.ParseContainer())
}

func TestParseContainerReadsStreamInfo(t *testing.T) {
	si := buildStreamInfoBlock(44100, 2, 16, 88200)
	data := buildFlacFile(t, si, nil)
	src := mediaio.NewBytesSource(data)
	d := New(src)
	require.NoError(t, d.ParseContainer())

	streams := d.Streams()
	require.Len(t, streams, 1)
	require.Equal(t, "flac", streams[0].CodecName)
	require.Equal(t, 44100, streams[0].SampleRate)
	require.Equal(t, 2, streams[0].Channels)
	require.Equal(t, 16, streams[0].BitsPerSample)
	require.Equal(t, int64(88200), streams[0].DurationSamples)
	require.Equal(t, int64(2000), streams[0].DurationMs)
}

func TestParseContainerSkipsUnknownMetadataBlock(t *testing.T) {
	si := buildStreamInfoBlock(44100, 2, 16, 0)
	var out []byte
	out = append(out, []byte("fLaC")...)
	out = append(out, metadataBlockHeader(blockStreamInfo, len(si), false)...)
	out = append(out, si...)
	unknown := []byte{1, 2, 3, 4}
	out = append(out, metadataBlockHeader(120, len(unknown), true)...)
	out = append(out, unknown...)

	src := mediaio.NewBytesSource(out)
	d := New(src)
	require.NoError(t, d.ParseContainer())
	require.Equal(t, 44100, d.Streams()[0].SampleRate)
}

func TestReadChunkDeliversRawBytesAfterMetadata(t *testing.T) {
	si := buildStreamInfoBlock(44100, 1, 16, 0)
	frame := syntheticFrame(0xAB)
	data := buildFlacFile(t, si, [][]byte{frame})

	src := mediaio.NewBytesSource(data)
	d := New(src)
	require.NoError(t, d.ParseContainer())

	chunk, err := d.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, frame, chunk.Data)

	_, err = d.ReadChunkAny()
	require.ErrorIs(t, err, io.EOF)
}

func TestSeekToFallsBackToFirstFrameWithoutSeekTable(t *testing.T) {
	si := buildStreamInfoBlock(44100, 1, 16, 0)
	frame := syntheticFrame(0xCD)
	data := buildFlacFile(t, si, [][]byte{frame})

	src := mediaio.NewBytesSource(data)
	d := New(src)
	require.NoError(t, d.ParseContainer())

	require.NoError(t, d.SeekTo(500))
	chunk, err := d.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, frame, chunk.Data)
}

func TestParseSeekTableIgnoresPlaceholderEntries(t *testing.T) {
	d := &Demuxer{}
	entry := make([]byte, 18)
	for i := 0; i < 8; i++ {
		entry[i] = 0xFF // placeholder sample number, all-ones
	}
	d.parseSeekTable(entry)
	require.Empty(t, d.seekPoints)
}
