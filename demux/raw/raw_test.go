package raw

import (
	"io"
	"testing"

	"github.com/olivier-w/mediastream/mediaio"
	"github.com/stretchr/testify/require"
)

func TestParseContainerComputesDurationFromFileSize(t *testing.T) {
	// 4 frames of 16-bit stereo = 4 * 2 * 2 = 16 bytes.
	data := make([]byte, 16)
	src := mediaio.NewBytesSource(data)
	d := NewWithConfig(src, Config{CodecName: "pcm_s16le", SampleRate: 8000, Channels: 2, BitsPerSample: 16})
	require.NoError(t, d.ParseContainer())

	streams := d.Streams()
	require.Len(t, streams, 1)
	require.Equal(t, int64(4), streams[0].DurationSamples)
	require.Equal(t, int64(4*1000/8000), streams[0].DurationMs)
}

func TestReadChunkTrimsPartialTrailingFrame(t *testing.T) {
	// 2 full frames (8 bytes) plus 1 stray byte that can't form a third.
	data := make([]byte, 9)
	for i := range data {
		data[i] = byte(i + 1)
	}
	src := mediaio.NewBytesSource(data)
	d := NewWithConfig(src, Config{CodecName: "pcm_s16le", SampleRate: 8000, Channels: 2, BitsPerSample: 16})
	require.NoError(t, d.ParseContainer())

	chunk, err := d.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, 8, len(chunk.Data))
	require.True(t, chunk.EndOfStream)

	_, err = d.ReadChunkAny()
	require.ErrorIs(t, err, io.EOF)
}

func TestSeekToAdvancesByFrameAlignedByteOffset(t *testing.T) {
	data := make([]byte, 40) // 10 frames at 16-bit stereo
	src := mediaio.NewBytesSource(data)
	d := NewWithConfig(src, Config{CodecName: "pcm_s16le", SampleRate: 2, Channels: 2, BitsPerSample: 16})
	require.NoError(t, d.ParseContainer())

	require.NoError(t, d.SeekTo(2500)) // frame 5 at 2 Hz: 5 * 1000 / 2 = 2500ms
	require.Equal(t, int64(2500), d.PositionMs())

	chunk, err := d.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, int64(5), chunk.Timestamp)
}

func TestNewInfersConfigFromExtension(t *testing.T) {
	src := mediaio.NewBytesSource(make([]byte, 8))
	d := New(src, "ulaw")
	require.NoError(t, d.ParseContainer())
	require.Equal(t, "mulaw", d.Streams()[0].CodecName)
	require.Equal(t, 8000, d.Streams()[0].SampleRate)
}

func TestNewFallsBackToDefaultForUnknownExtension(t *testing.T) {
	src := mediaio.NewBytesSource(make([]byte, 8))
	d := New(src, "xyz")
	require.NoError(t, d.ParseContainer())
	require.Equal(t, "pcm_s16le", d.Streams()[0].CodecName)
}
