package isobmff

import (
	"github.com/abema/go-mp4"

	"github.com/olivier-w/mediastream/mediaerr"
)

// boxCollector walks the box tree with mp4.ReadBoxStructure, accumulating
// per-track sample-table inputs exactly the way aacfile's MP4 parser reads
// stsc/stsz/stco/stts. Like that parser it reads only mp4a sample entries
// and their esds; other stsd entries are not expanded.
type boxCollector struct {
	depth int

	curTrack    *rawTrack
	tracks      []*track
	fragmented  bool
	movieTscale uint32

	// fragment state, applied once the box walk completes
	pendingFrags  []fragRun
	curMoofOffset int64
}

type rawTrack struct {
	trackID    uint32
	timescale  uint32
	handler    string
	codecName  string
	sampleRate int
	channels   int
	bitDepth   int
	codecData  []byte

	stsd *mp4.Stsd
	stsz *mp4.Stsz
	stsc *mp4.Stsc
	stco *mp4.Stco
	co64 *mp4.Co64
	stts *mp4.Stts
	stss *mp4.Stss
}

type fragRun struct {
	trackID  uint32
	baseTime int64
	baseData int64
	entries  []mp4.TrunEntry
	defDur   uint32
	defSize  uint32
}

func (c *boxCollector) handle(h *mp4.ReadHandle) (interface{}, error) {
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxBoxDepth {
		return nil, mediaerr.New(mediaerr.Overflow, "isobmff.boxCollector", "box nesting exceeds maximum depth")
	}

	switch h.BoxInfo.Type {
	case mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(),
		mp4.BoxTypeStbl(), mp4.BoxTypeMoof(), mp4.BoxTypeTraf(), mp4.BoxTypeEdts():
		if h.BoxInfo.Type == mp4.BoxTypeTrak() {
			c.curTrack = &rawTrack{}
		}
		if h.BoxInfo.Type == mp4.BoxTypeMoof() {
			c.fragmented = true
			c.curMoofOffset = h.BoxInfo.Offset
		}
		children, err := h.Expand()
		if err != nil {
			return nil, err
		}
		if h.BoxInfo.Type == mp4.BoxTypeTrak() {
			c.finishTrack()
		}
		return children, nil

	case mp4.BoxTypeMvhd():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		c.movieTscale = box.(*mp4.Mvhd).Timescale
		return nil, nil

	case mp4.BoxTypeTkhd():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.trackID = box.(*mp4.Tkhd).TrackID
		}
		return nil, nil

	case mp4.BoxTypeMdhd():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.timescale = box.(*mp4.Mdhd).Timescale
		}
		return nil, nil

	case mp4.BoxTypeHdlr():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.handler = string(box.(*mp4.Hdlr).HandlerType[:])
		}
		return nil, nil

	case mp4.BoxTypeStsd():
		children, err := h.Expand()
		if err != nil {
			return nil, err
		}
		return children, nil

	case mp4.BoxTypeMp4a():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		mp4a := box.(*mp4.AudioSampleEntry)
		if c.curTrack != nil {
			c.curTrack.channels = int(mp4a.ChannelCount)
			c.curTrack.bitDepth = int(mp4a.SampleSize)
			c.curTrack.sampleRate = int(mp4a.SampleRate >> 16)
		}
		children, err := h.Expand()
		if err != nil {
			return nil, err
		}
		return children, nil

	case mp4.BoxTypeEsds():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		esds := box.(*mp4.Esds)
		if c.curTrack != nil {
			c.curTrack.codecName = "aac"
			if esds.DecConfigDescriptor.DecSpecificInfo != nil {
				c.curTrack.codecData = append([]byte(nil), esds.DecConfigDescriptor.DecSpecificInfo.DecConfig...)
			}
		}
		return nil, nil

	case mp4.BoxTypeStsz():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.stsz = box.(*mp4.Stsz)
		}
		return nil, nil

	case mp4.BoxTypeStsc():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.stsc = box.(*mp4.Stsc)
		}
		return nil, nil

	case mp4.BoxTypeStco():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.stco = box.(*mp4.Stco)
		}
		return nil, nil

	case mp4.BoxTypeCo64():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.co64 = box.(*mp4.Co64)
		}
		return nil, nil

	case mp4.BoxTypeStts():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.stts = box.(*mp4.Stts)
		}
		return nil, nil

	case mp4.BoxTypeStss():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		if c.curTrack != nil {
			c.curTrack.stss = box.(*mp4.Stss)
		}
		return nil, nil

	case mp4.BoxTypeTfhd():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		tfhd := box.(*mp4.Tfhd)
		run := fragRun{trackID: tfhd.TrackID, defDur: tfhd.DefaultSampleDuration, defSize: tfhd.DefaultSampleSize}
		if tfhd.BaseDataOffset != 0 {
			run.baseData = int64(tfhd.BaseDataOffset)
		} else {
			// default-base-is-moof: most encoders omit base-data-offset and
			// mean "relative to this fragment's own moof start".
			run.baseData = c.curMoofOffset
		}
		c.pendingFrags = append(c.pendingFrags, run)
		return nil, nil

	case mp4.BoxTypeTfdt():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		tfdt := box.(*mp4.Tfdt)
		if len(c.pendingFrags) > 0 {
			c.pendingFrags[len(c.pendingFrags)-1].baseTime = int64(tfdt.BaseMediaDecodeTime)
		}
		return nil, nil

	case mp4.BoxTypeTrun():
		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}
		trun := box.(*mp4.Trun)
		if len(c.pendingFrags) > 0 {
			cur := &c.pendingFrags[len(c.pendingFrags)-1]
			if len(cur.entries) == 0 && trun.DataOffset != 0 {
				cur.baseData += int64(trun.DataOffset)
			}
			cur.entries = append(cur.entries, trun.Entries...)
		}
		return nil, nil

	default:
		return nil, nil
	}
}

// finishTrack converts the just-walked trak's raw boxes into an immutable
// sample table, mirroring aacfile's buildMP4AccessUnits. A track whose
// stsd held no mp4a+esds entry gets codec name "unknown".
func (c *boxCollector) finishTrack() {
	rt := c.curTrack
	c.curTrack = nil
	if rt == nil || rt.handler != "soun" {
		return
	}

	tr := &track{
		trackID:    rt.trackID,
		timescale:  rt.timescale,
		codecName:  rt.codecName,
		sampleRate: rt.sampleRate,
		channels:   rt.channels,
		bitDepth:   rt.bitDepth,
		codecData:  rt.codecData,
	}
	if tr.codecName == "" {
		tr.codecName = "unknown"
	}
	if tr.bitDepth == 0 {
		tr.bitDepth = 16
	}

	// A fragmented track has no stbl sample table of its own; its samples
	// arrive later via moof/traf and are attached by applyFragments once
	// the whole box tree has been walked.
	if rt.stsc != nil && rt.stsz != nil && rt.stts != nil {
		samples, totalDur, err := buildSampleTable(rt)
		if err == nil {
			tr.samples = samples
			tr.totalDur = totalDur
		}
	}
	c.tracks = append(c.tracks, tr)
}

// applyFragments attaches the samples implied by every moof/traf walked
// during the box tree traversal to their owning track, synthesizing a
// sample per trun entry from each fragRun's base offset and default
// duration/size. Called once after the whole tree has been walked, since
// a trak's moov box always precedes its fragments' moof boxes in a
// well-formed fragmented MP4.
//
// Every synthesized sample is marked as a sync point: fragmented audio
// tracks in this pack's supported codecs (PCM family, FLAC, Opus, Vorbis
// in MP4) carry no stss of their own and are independently decodable
// sample by sample, so there is no keyframe distinction to preserve.
func (c *boxCollector) applyFragments() {
	byTrack := make(map[uint32]*track, len(c.tracks))
	for _, tr := range c.tracks {
		byTrack[tr.trackID] = tr
	}

	for _, run := range c.pendingFrags {
		tr, ok := byTrack[run.trackID]
		if !ok {
			continue
		}
		offset := run.baseData
		pts := tr.totalDur
		for _, e := range run.entries {
			size := e.SampleSize
			if size == 0 {
				size = run.defSize
			}
			dur := e.SampleDuration
			if dur == 0 {
				dur = run.defDur
			}
			tr.samples = append(tr.samples, sample{
				offset:      offset,
				size:        size,
				durationPts: pts,
				sync:        true,
			})
			offset += int64(size)
			pts += int64(dur)
		}
		tr.totalDur = pts
	}
}

func buildSampleTable(rt *rawTrack) ([]sample, int64, error) {
	total := int(rt.stsz.SampleCount)
	if total == 0 {
		return nil, 0, mediaerr.New(mediaerr.Format, "isobmff.buildSampleTable", "empty sample table")
	}

	sizes := make([]uint32, total)
	if rt.stsz.SampleSize != 0 {
		for i := range sizes {
			sizes[i] = rt.stsz.SampleSize
		}
	} else {
		if len(rt.stsz.EntrySize) != total {
			return nil, 0, mediaerr.New(mediaerr.Format, "isobmff.buildSampleTable", "sample size table mismatch")
		}
		copy(sizes, rt.stsz.EntrySize)
	}

	var offsets []int64
	switch {
	case rt.stco != nil:
		offsets = make([]int64, len(rt.stco.ChunkOffset))
		for i, o := range rt.stco.ChunkOffset {
			offsets[i] = int64(o)
		}
	case rt.co64 != nil:
		offsets = make([]int64, len(rt.co64.ChunkOffset))
		for i, o := range rt.co64.ChunkOffset {
			offsets[i] = int64(o)
		}
	default:
		return nil, 0, mediaerr.New(mediaerr.Format, "isobmff.buildSampleTable", "missing chunk offsets")
	}

	if len(rt.stsc.Entries) == 0 {
		return nil, 0, mediaerr.New(mediaerr.Format, "isobmff.buildSampleTable", "empty chunk map")
	}

	syncSet := map[uint32]bool{}
	if rt.stss != nil {
		for _, n := range rt.stss.SampleNumber {
			syncSet[n] = true
		}
	}
	allSync := rt.stss == nil

	samples := make([]sample, total)
	sampleIndex := 0
	entryIndex := 0
	entry := rt.stsc.Entries[0]
	var pts int64

	deltaIdx, deltaLeft := 0, 0
	nextDelta := func() uint32 {
		for deltaLeft == 0 {
			if deltaIdx >= len(rt.stts.Entries) {
				return 0
			}
			deltaLeft = int(rt.stts.Entries[deltaIdx].SampleCount)
			deltaIdx++
		}
		deltaLeft--
		return rt.stts.Entries[deltaIdx-1].SampleDelta
	}

	for chunkIndex := 0; chunkIndex < len(offsets) && sampleIndex < total; chunkIndex++ {
		chunkNr := uint32(chunkIndex + 1)
		for entryIndex+1 < len(rt.stsc.Entries) && chunkNr >= rt.stsc.Entries[entryIndex+1].FirstChunk {
			entryIndex++
			entry = rt.stsc.Entries[entryIndex]
		}
		offset := offsets[chunkIndex]
		for i := 0; i < int(entry.SamplesPerChunk) && sampleIndex < total; i++ {
			sampleNum := uint32(sampleIndex + 1)
			samples[sampleIndex] = sample{
				offset:      offset,
				size:        sizes[sampleIndex],
				durationPts: pts,
				sync:        allSync || syncSet[sampleNum],
			}
			offset += int64(sizes[sampleIndex])
			pts += int64(nextDelta())
			sampleIndex++
		}
	}

	if sampleIndex != total {
		return nil, 0, mediaerr.New(mediaerr.Format, "isobmff.buildSampleTable", "chunk map does not cover every sample")
	}
	return samples, pts, nil
}
