package tag

const maxPictureDataSize = 32 * 1024 * 1024

// ParsePicture decodes a METADATA_BLOCK_PICTURE payload (FLAC / Ogg
// Vorbis comment "metadata_block_picture" field): all multi-byte integers
// are big-endian, and string fields are length-prefixed rather than
// NUL-terminated. A length field large enough to run past the end of data,
// or past maxPictureDataSize for the image payload, aborts the parse and
// returns nil rather than truncating silently.
func ParsePicture(data []byte) *Picture {
	c := &byteCursor{data: data}

	pictureType, ok := c.readU32BE()
	if !ok {
		return nil
	}
	mimeLen, ok := c.readU32BE()
	if !ok {
		return nil
	}
	mime, ok := c.take(int(mimeLen))
	if !ok {
		return nil
	}
	descLen, ok := c.readU32BE()
	if !ok {
		return nil
	}
	desc, ok := c.take(int(descLen))
	if !ok {
		return nil
	}
	width, ok := c.readU32BE()
	if !ok {
		return nil
	}
	height, ok := c.readU32BE()
	if !ok {
		return nil
	}
	depth, ok := c.readU32BE()
	if !ok {
		return nil
	}
	colors, ok := c.readU32BE()
	if !ok {
		return nil
	}
	dataLen, ok := c.readU32BE()
	if !ok || dataLen > maxPictureDataSize {
		return nil
	}
	imgData, ok := c.take(int(dataLen))
	if !ok {
		return nil
	}

	return &Picture{
		Type:        byte(pictureType),
		MIME:        string(mime),
		Description: string(desc),
		Width:       width,
		Height:      height,
		Depth:       depth,
		Colors:      colors,
		Data:        imgData,
	}
}
