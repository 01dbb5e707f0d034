package riff

import (
	"io"
	"testing"

	"github.com/olivier-w/mediastream/media"
	"github.com/olivier-w/mediastream/mediaio"
	"github.com/stretchr/testify/require"
)

func TestCodecNameForPCMBitDepths(t *testing.T) {
	cases := map[uint16]string{8: "pcm_u8", 16: "pcm_s16le", 24: "pcm_s24le", 32: "pcm_s32"}
	for depth, want := range cases {
		got, err := codecNameFor(&fmtChunk{tag: fmtPCM, bitsPerSample: depth})
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCodecNameForExtensibleFollowsBitDepthLikePCM(t *testing.T) {
	got, err := codecNameFor(&fmtChunk{tag: fmtExtensible, bitsPerSample: 16})
	require.NoError(t, err)
	require.Equal(t, "pcm_s16le", got)
}

func TestCodecNameForCompandedFormats(t *testing.T) {
	got, err := codecNameFor(&fmtChunk{tag: fmtALaw})
	require.NoError(t, err)
	require.Equal(t, "alaw", got)

	got, err = codecNameFor(&fmtChunk{tag: fmtMuLaw})
	require.NoError(t, err)
	require.Equal(t, "mulaw", got)
}

func TestCodecNameForFloat(t *testing.T) {
	got, err := codecNameFor(&fmtChunk{tag: fmtIEEEFloat})
	require.NoError(t, err)
	require.Equal(t, "pcm_f32", got)
}

func TestCodecNameForRejectsUnknownTag(t *testing.T) {
	_, err := codecNameFor(&fmtChunk{tag: 0x1234})
	require.Error(t, err)
}

func TestCodecNameForRejectsUnsupportedPCMDepth(t *testing.T) {
	_, err := codecNameFor(&fmtChunk{tag: fmtPCM, bitsPerSample: 12})
	require.Error(t, err)
}

func TestNullTerminatedStopsAtFirstZeroByte(t *testing.T) {
	require.Equal(t, "hello", nullTerminated([]byte("hello\x00garbage")))
	require.Equal(t, "noterm", nullTerminated([]byte("noterm")))
}

// buildDemuxerWithData configures a Demuxer as if ParseContainer had just
// run, skipping the go-audio/riff chunk walk so readChunk/SeekTo/
// PositionMs can be tested against fixed data-chunk geometry directly.
func buildDemuxerWithData(dataOffset, dataSize int64, sampleRate, channels, bitsPerSample int, payload []byte) *Demuxer {
	d := &Demuxer{
		src:        mediaio.NewBytesSource(payload),
		dataOffset: dataOffset,
		dataSize:   dataSize,
	}
	d.info = media.StreamInfo{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
	}
	return d
}

func TestReadChunkTimestampTracksFrameCount(t *testing.T) {
	// 4 frames of 16-bit mono = 8 bytes, small enough for one readChunk call.
	payload := make([]byte, 8)
	d := buildDemuxerWithData(0, 8, 8000, 1, 16, payload)

	chunk, err := d.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, int64(0), chunk.Timestamp)
	require.True(t, chunk.EndOfStream)

	_, err = d.ReadChunkAny()
	require.ErrorIs(t, err, io.EOF)
}

func TestSeekToClampsToDataSize(t *testing.T) {
	payload := make([]byte, 40)
	d := buildDemuxerWithData(0, 40, 1000, 1, 16, payload)

	require.NoError(t, d.SeekTo(1_000_000)) // far beyond the 20-frame data chunk
	require.Equal(t, int64(40), d.bytesRead)
	require.False(t, d.IsEOF())
}

func TestPositionMsDerivesFromBytesReadAndFrameLayout(t *testing.T) {
	payload := make([]byte, 40)
	d := buildDemuxerWithData(0, 40, 2, 2, 16, payload) // 2 Hz, stereo 16-bit -> 4 bytes/frame
	d.bytesRead = 20                                    // 5 frames in
	require.Equal(t, int64(2500), d.PositionMs())        // 5 frames / 2 Hz * 1000
}
