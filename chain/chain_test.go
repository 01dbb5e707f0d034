package chain

import (
	"io"
	"testing"

	"github.com/olivier-w/mediastream/demux"
	"github.com/olivier-w/mediastream/media"
	"github.com/stretchr/testify/require"
)

// fakeTrack is a minimal demux.Demuxer test double: a fixed list of chunks
// played back in order, then io.EOF, with a seek that resets the cursor.
type fakeTrack struct {
	info   media.StreamInfo
	chunks []media.MediaChunk
	cursor int
	pos    int64
}

func newFakeTrack(sampleRate, channels int, durationMs, durationSamples int64, chunks []media.MediaChunk) *fakeTrack {
	return &fakeTrack{
		info: media.StreamInfo{
			SampleRate:      sampleRate,
			Channels:        channels,
			DurationMs:      durationMs,
			DurationSamples: durationSamples,
		},
		chunks: chunks,
	}
}

func (f *fakeTrack) ParseContainer() error                    { return nil }
func (f *fakeTrack) Streams() []media.StreamInfo              { return []media.StreamInfo{f.info} }
func (f *fakeTrack) ReadChunk(streamID int) (*media.MediaChunk, error) { return f.ReadChunkAny() }

func (f *fakeTrack) ReadChunkAny() (*media.MediaChunk, error) {
	if f.cursor >= len(f.chunks) {
		return nil, io.EOF
	}
	c := f.chunks[f.cursor]
	f.cursor++
	f.pos = c.Timestamp
	return &c, nil
}

func (f *fakeTrack) SeekTo(targetMs int64) error {
	f.cursor = 0
	f.pos = 0
	return nil
}

func (f *fakeTrack) DurationMs() int64 { return f.info.DurationMs }
func (f *fakeTrack) PositionMs() int64 { return f.pos }
func (f *fakeTrack) IsEOF() bool       { return f.cursor >= len(f.chunks) }

func twoTrackChain() (*Chain, *fakeTrack, *fakeTrack) {
	trackA := newFakeTrack(44100, 2, 1000, 44100, []media.MediaChunk{
		{Timestamp: 0},
		{Timestamp: 22050, EndOfStream: true},
	})
	trackB := newFakeTrack(44100, 2, 500, 22050, []media.MediaChunk{
		{Timestamp: 0, EndOfStream: true},
	})
	c, err := New([]demux.Demuxer{trackA, trackB})
	if err != nil {
		panic(err)
	}
	return c, trackA, trackB
}

func TestNewRejectsEmptyTrackList(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNewRejectsMismatchedRateOrChannels(t *testing.T) {
	trackA := newFakeTrack(44100, 2, 1000, 44100, nil)
	trackB := newFakeTrack(48000, 2, 500, 24000, nil)
	_, err := New([]demux.Demuxer{trackA, trackB})
	require.Error(t, err)
}

func TestNewAggregatesDuration(t *testing.T) {
	c, _, _ := twoTrackChain()
	require.Equal(t, int64(1500), c.DurationMs())
	require.Equal(t, int64(66150), c.Streams()[0].DurationSamples)
}

func TestReadChunkAdvancesAcrossTrackBoundaryAndOffsetsTimestamp(t *testing.T) {
	c, _, _ := twoTrackChain()

	chunk, err := c.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, int64(0), chunk.Timestamp)
	require.False(t, chunk.EndOfStream)

	chunk, err = c.ReadChunkAny()
	require.NoError(t, err)
	require.Equal(t, int64(22050), chunk.Timestamp)
	// Not the last chunk of the whole chain, even though it ends trackA.
	require.False(t, chunk.EndOfStream)

	chunk, err = c.ReadChunkAny()
	require.NoError(t, err)
	// trackB's own timestamp (0) offset by all of trackA's samples.
	require.Equal(t, int64(44100), chunk.Timestamp)
	require.True(t, chunk.EndOfStream)

	_, err = c.ReadChunkAny()
	require.ErrorIs(t, err, io.EOF)
	require.True(t, c.IsEOF())
}

func TestSeekToMapsToContainingSubTrackAndRewindsLaterTracks(t *testing.T) {
	c, trackA, trackB := twoTrackChain()

	// 1200ms falls within trackB (trackA spans [0,1000)).
	require.NoError(t, c.SeekTo(1200))
	require.Equal(t, 1, c.current)
	require.Equal(t, int64(1000), c.msInPrevious)

	// trackB's delegated seek ran: the fake rewinds its cursor on any SeekTo.
	require.Equal(t, 0, trackB.cursor)

	// Seeking within trackA rewinds trackB back to its start.
	trackB.cursor = 1
	require.NoError(t, c.SeekTo(100))
	require.Equal(t, 0, c.current)
	require.Equal(t, 0, trackA.cursor)
	require.Equal(t, 0, trackB.cursor)
}

func TestPositionMsCombinesPreviousTracksAndCurrentTrack(t *testing.T) {
	c, _, _ := twoTrackChain()
	_, err := c.ReadChunkAny()
	require.NoError(t, err)
	_, err = c.ReadChunkAny()
	require.NoError(t, err)
	_, err = c.ReadChunkAny() // moves into trackB
	require.NoError(t, err)

	// trackA's full 1000ms plus trackB's own position (0, its sole chunk
	// carries local timestamp 0).
	require.Equal(t, int64(1000), c.PositionMs())
}
