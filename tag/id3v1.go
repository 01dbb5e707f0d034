package tag

import "strings"

const id3v1Size = 128

// id3v1Genres is the fixed 80-entry ID3v1 genre table; the Winamp
// extensions are not included. An out-of-range byte is tolerated and
// simply yields an empty genre string.
var id3v1Genres = []string{
	"Blues", "Classic Rock", "Country", "Dance", "Disco", "Funk", "Grunge",
	"Hip-Hop", "Jazz", "Metal", "New Age", "Oldies", "Other", "Pop", "R&B",
	"Rap", "Reggae", "Rock", "Techno", "Industrial", "Alternative", "Ska",
	"Death Metal", "Pranks", "Soundtrack", "Euro-Techno", "Ambient",
	"Trip-Hop", "Vocal", "Jazz+Funk", "Fusion", "Trance", "Classical",
	"Instrumental", "Acid", "House", "Game", "Sound Clip", "Gospel",
	"Noise", "AlternRock", "Bass", "Soul", "Punk", "Space", "Meditative",
	"Instrumental Pop", "Instrumental Rock", "Ethnic", "Gothic",
	"Darkwave", "Techno-Industrial", "Electronic", "Pop-Folk",
	"Eurodance", "Dream", "Southern Rock", "Comedy", "Cult", "Gangsta",
	"Top 40", "Christian Rap", "Pop/Funk", "Jungle", "Native American",
	"Cabaret", "New Wave", "Psychedelic", "Rave", "Showtunes", "Trailer",
	"Lo-Fi", "Tribal", "Acid Punk", "Acid Jazz", "Polka", "Retro",
	"Musical", "Rock & Roll", "Hard Rock",
}

// ParseID3v1 reads the trailing 128-byte ID3v1 block. It returns nil,
// without error, for input that is not exactly that size or lacks the
// "TAG" magic — both are routine, not exceptional, for arbitrary media
// files.
func ParseID3v1(data []byte) *TagSet {
	if len(data) != id3v1Size {
		return nil
	}
	if string(data[0:3]) != "TAG" {
		return nil
	}

	t := newTagSet()
	title := trimID3v1(data[3:33])
	artist := trimID3v1(data[33:63])
	album := trimID3v1(data[63:93])
	year := trimID3v1(data[93:97])
	comment := data[97:127]
	genreByte := data[127]

	if title != "" {
		t.addField("title", title)
	}
	if artist != "" {
		t.addField("artist", artist)
	}
	if album != "" {
		t.addField("album", album)
	}
	if year != "" {
		t.addField("date", year)
	}
	if c := trimID3v1(comment); c != "" {
		t.addField("comment", c)
	}
	if int(genreByte) < len(id3v1Genres) {
		t.addField("genre", id3v1Genres[genreByte])
	}
	return t
}

func trimID3v1(b []byte) string {
	// ID3v1 fields are null-padded (or sometimes space-padded) fixed-width
	// Latin-1; truncate at the first NUL before trimming whitespace.
	if i := indexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
