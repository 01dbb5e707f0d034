package tag

import (
	"bytes"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// ParseID3v2 parses an ID3v2.2/2.3/2.4 tag from the start of data via
// bogem/id3v2, which already implements the per-version frame-id widths,
// synchsafe size decoding, and text-encoding markers this format requires.
// Any parse failure (bad header, truncated frame, garbage) yields an empty,
// non-nil TagSet rather than an error, per this package's tolerance
// contract.
func ParseID3v2(data []byte) *TagSet {
	t := newTagSet()
	if len(data) < 10 || string(data[0:3]) != "ID3" {
		return t
	}
	if len(data) > maxParseSize {
		data = data[:maxParseSize]
	}

	parsed, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
	if err != nil || parsed == nil {
		return t
	}
	defer parsed.Close()

	if v := strings.TrimSpace(parsed.Title()); v != "" {
		t.addField("title", v)
	}
	if v := strings.TrimSpace(parsed.Artist()); v != "" {
		t.addField("artist", v)
	}
	if v := strings.TrimSpace(parsed.Album()); v != "" {
		t.addField("album", v)
	}
	if v := strings.TrimSpace(parsed.Year()); v != "" {
		t.addField("date", v)
	}
	if v := strings.TrimSpace(parsed.Genre()); v != "" {
		t.addField("genre", v)
	}

	for _, id := range []string{"APIC", "PIC"} {
		for _, f := range parsed.GetFrames(id) {
			pf, ok := f.(id3v2.PictureFrame)
			if !ok {
				continue
			}
			if len(pf.Picture) == 0 {
				continue
			}
			t.Pictures = append(t.Pictures, Picture{
				Type:        byte(pf.PictureType),
				MIME:        pf.MimeType,
				Description: pf.Description,
				Data:        pf.Picture,
			})
		}
	}
	return t
}
