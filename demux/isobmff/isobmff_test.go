package isobmff

import (
	"testing"

	"github.com/abema/go-mp4"

	"github.com/olivier-w/mediastream/media"
	"github.com/stretchr/testify/require"
)

func TestBuildSampleTableSingleChunkUniformSize(t *testing.T) {
	rt := &rawTrack{
		stsz: &mp4.Stsz{SampleSize: 100, SampleCount: 3},
		stco: &mp4.Stco{ChunkOffset: []uint32{1000}},
		stsc: &mp4.Stsc{Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 3}}},
		stts: &mp4.Stts{Entries: []mp4.SttsEntry{{SampleCount: 3, SampleDelta: 1024}}},
	}

	samples, totalDur, err := buildSampleTable(rt)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	require.Equal(t, int64(1000), samples[0].offset)
	require.Equal(t, int64(1100), samples[1].offset)
	require.Equal(t, int64(1200), samples[2].offset)
	require.Equal(t, int64(0), samples[0].durationPts)
	require.Equal(t, int64(1024), samples[1].durationPts)
	require.Equal(t, int64(2048), samples[2].durationPts)
	require.Equal(t, int64(3072), totalDur)
	require.True(t, samples[0].sync) // stss absent -> every sample treated as sync
	require.True(t, samples[2].sync)
}

func TestBuildSampleTableMultipleChunksAcrossStscEntries(t *testing.T) {
	rt := &rawTrack{
		stsz: &mp4.Stsz{SampleSize: 0, SampleCount: 4, EntrySize: []uint32{10, 20, 30, 40}},
		stco: &mp4.Stco{ChunkOffset: []uint32{0, 500}},
		stsc: &mp4.Stsc{Entries: []mp4.StscEntry{
			{FirstChunk: 1, SamplesPerChunk: 1},
			{FirstChunk: 2, SamplesPerChunk: 3},
		}},
		stts: &mp4.Stts{Entries: []mp4.SttsEntry{{SampleCount: 4, SampleDelta: 512}}},
	}

	samples, _, err := buildSampleTable(rt)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	// Chunk 1 holds sample 0 only (10 bytes at offset 0).
	require.Equal(t, int64(0), samples[0].offset)
	require.Equal(t, uint32(10), samples[0].size)
	// Chunk 2 holds samples 1-3, back to back from offset 500.
	require.Equal(t, int64(500), samples[1].offset)
	require.Equal(t, int64(520), samples[2].offset)
	require.Equal(t, int64(550), samples[3].offset)
}

func TestBuildSampleTableUsesStssForSyncFlags(t *testing.T) {
	rt := &rawTrack{
		stsz: &mp4.Stsz{SampleSize: 10, SampleCount: 3},
		stco: &mp4.Stco{ChunkOffset: []uint32{0}},
		stsc: &mp4.Stsc{Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 3}}},
		stts: &mp4.Stts{Entries: []mp4.SttsEntry{{SampleCount: 3, SampleDelta: 1}}},
		stss: &mp4.Stss{SampleNumber: []uint32{1}},
	}

	samples, _, err := buildSampleTable(rt)
	require.NoError(t, err)
	require.True(t, samples[0].sync)
	require.False(t, samples[1].sync)
	require.False(t, samples[2].sync)
}

func TestBuildSampleTableFallsBackToCo64ChunkOffsets(t *testing.T) {
	rt := &rawTrack{
		stsz: &mp4.Stsz{SampleSize: 5, SampleCount: 1},
		co64: &mp4.Co64{ChunkOffset: []uint64{1 << 33}},
		stsc: &mp4.Stsc{Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1}}},
		stts: &mp4.Stts{Entries: []mp4.SttsEntry{{SampleCount: 1, SampleDelta: 1}}},
	}

	samples, _, err := buildSampleTable(rt)
	require.NoError(t, err)
	require.Equal(t, int64(1<<33), samples[0].offset)
}

func TestBuildSampleTableRejectsEmptySampleCount(t *testing.T) {
	rt := &rawTrack{stsz: &mp4.Stsz{SampleCount: 0}}
	_, _, err := buildSampleTable(rt)
	require.Error(t, err)
}

func TestBuildSampleTableRejectsMissingChunkOffsets(t *testing.T) {
	rt := &rawTrack{
		stsz: &mp4.Stsz{SampleSize: 10, SampleCount: 1},
		stsc: &mp4.Stsc{Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 1}}},
		stts: &mp4.Stts{Entries: []mp4.SttsEntry{{SampleCount: 1, SampleDelta: 1}}},
	}
	_, _, err := buildSampleTable(rt)
	require.Error(t, err)
}

func TestSeekToPicksNearestPrecedingSyncSample(t *testing.T) {
	d := &Demuxer{
		tracks: []*track{{
			timescale: 1000,
			samples: []sample{
				{durationPts: 0, sync: true},
				{durationPts: 500, sync: false},
				{durationPts: 1000, sync: true},
				{durationPts: 1500, sync: false},
			},
		}},
		cursor:      []int{0},
		streamInfos: []media.StreamInfo{{}},
	}
	require.NoError(t, d.SeekTo(1200))
	require.Equal(t, 2, d.cursor[0])
}
