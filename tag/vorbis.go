package tag

import "encoding/binary"

const maxVorbisComments = 1 << 16

// ParseVorbisComment decodes a raw Vorbis comment block: an LE32
// length-prefixed vendor string followed by an LE32 comment count and that
// many LE32 length-prefixed "KEY=VALUE" fields. Any length field that would
// read past the end of data aborts the parse and returns whatever fields
// were already collected, rather than allocating on a forged size.
func ParseVorbisComment(data []byte) *TagSet {
	t := newTagSet()
	if len(data) > maxParseSize {
		data = data[:maxParseSize]
	}

	r := &byteCursor{data: data}
	vendorLen, ok := r.readU32LE()
	if !ok {
		return t
	}
	if _, ok := r.skip(int(vendorLen)); !ok {
		return t
	}

	count, ok := r.readU32LE()
	if !ok {
		return t
	}
	if count > maxVorbisComments {
		count = maxVorbisComments
	}

	for i := uint32(0); i < count; i++ {
		fieldLen, ok := r.readU32LE()
		if !ok {
			break
		}
		field, ok := r.take(int(fieldLen))
		if !ok {
			break
		}
		key, value, ok := splitVorbisField(field)
		if !ok {
			continue
		}
		t.addField(key, value)
	}
	return t
}

func splitVorbisField(field []byte) (key, value string, ok bool) {
	idx := -1
	for i, b := range field {
		if b == '=' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", "", false
	}
	return string(field[:idx]), string(field[idx+1:]), true
}

// byteCursor is a minimal bounds-checked reader used by parsers that must
// never panic on truncated or adversarial length fields.
type byteCursor struct {
	data []byte
	pos  int
}

func (c *byteCursor) readU32LE() (uint32, bool) {
	b, ok := c.take(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (c *byteCursor) readU32BE() (uint32, bool) {
	b, ok := c.take(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

func (c *byteCursor) take(n int) ([]byte, bool) {
	if n < 0 || n > len(c.data)-c.pos {
		return nil, false
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, true
}

func (c *byteCursor) skip(n int) (int, bool) {
	_, ok := c.take(n)
	return n, ok
}
