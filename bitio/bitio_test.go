package bitio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadBitsAcrossBytes(t *testing.T) {
	// 0b10110010 0b11110000
	r := NewReader([]byte{0xB2, 0xF0})

	v, err := r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0b1011), v)

	v, err = r.ReadBits(8)
	require.NoError(t, err)
	require.Equal(t, uint32(0b00101111), v)

	v, err = r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0b0000), v)
}

func TestReadSignedExtends(t *testing.T) {
	// 5-bit value 0b11111 == -1 sign-extended
	r := NewReader([]byte{0xF8})
	v, err := r.ReadSigned(5)
	require.NoError(t, err)
	require.Equal(t, int32(-1), v)
}

func TestReadUnary(t *testing.T) {
	// 0b00001xxx -> 4 leading zeros then a 1
	r := NewReader([]byte{0x08})
	v, err := r.ReadUnary()
	require.NoError(t, err)
	require.Equal(t, uint32(4), v)
}

func TestReadUnaryOverflowFails(t *testing.T) {
	r := NewReader(make([]byte, 200)) // all zero bits, no terminator
	_, err := r.ReadUnary()
	require.Error(t, err)
}

func TestNeedMoreThenFeed(t *testing.T) {
	r := NewReader([]byte{0xFF})
	_, err := r.ReadBits(16)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNeedMore))

	r.Feed([]byte{0xFF})
	v, err := r.ReadBits(16)
	require.NoError(t, err)
	require.Equal(t, uint32(0xFFFF), v)
}

func TestRewindRetriesFromMark(t *testing.T) {
	r := NewReader([]byte{0xB2, 0xF0})
	mark := r.BitPos()

	v, err := r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0b1011), v)

	_, err = r.ReadBits(32) // more bits than buffered
	require.True(t, errors.Is(err, ErrNeedMore))

	r.Rewind(mark)
	require.Equal(t, mark, r.BitPos())

	v, err = r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint32(0b1011), v)
}

func TestAlignToByte(t *testing.T) {
	r := NewReader([]byte{0xFF, 0xAB})
	_, _ = r.ReadBits(3)
	r.AlignToByte()
	require.Equal(t, 8, r.BitPos())
	b, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), b)
}
