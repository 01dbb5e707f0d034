package pcm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeALawExactVectors(t *testing.T) {
	require.Equal(t, []int16{-8}, DecodeALaw([]byte{0x55}))
	require.Equal(t, []int16{-5504}, DecodeALaw([]byte{0x00}))
	require.Equal(t, []int16{5504}, DecodeALaw([]byte{0x80}))
}

func TestDecodeALawTotalOverAllBytes(t *testing.T) {
	for b := 0; b < 256; b++ {
		out := DecodeALaw([]byte{byte(b)})
		require.Len(t, out, 1)
	}
}

func TestDecodeMuLawTotalOverAllBytes(t *testing.T) {
	for b := 0; b < 256; b++ {
		out := DecodeMuLaw([]byte{byte(b)})
		require.Len(t, out, 1)
	}
	// Full-scale negative and positive codes sit near the format's extremes.
	require.Less(t, DecodeMuLaw([]byte{0x00})[0], int16(-7000))
	require.Greater(t, DecodeMuLaw([]byte{0x80})[0], int16(7000))
}

func TestDecodeU8Midpoint(t *testing.T) {
	out := DecodeU8([]byte{128, 0, 255})
	require.Equal(t, []int16{0, -32768, 32512}, out)
}

func TestDecodeS16LERoundTrip(t *testing.T) {
	out := DecodeS16LE([]byte{0x34, 0x12, 0xCE, 0xFF})
	require.Equal(t, []int16{0x1234, -50}, out)
}

func TestDecodeS24LESignExtends(t *testing.T) {
	// 0xFFFFFF -> -1 at 24-bit, shifted right 8 stays -1 at 16-bit.
	out := DecodeS24LE([]byte{0xFF, 0xFF, 0xFF})
	require.Equal(t, []int16{-1}, out)

	// 0x000001 -> +1 at 24-bit, shifted right 8 truncates to 0.
	out = DecodeS24LE([]byte{0x01, 0x00, 0x00})
	require.Equal(t, []int16{0}, out)
}

func TestDecodeS32ShiftsDown(t *testing.T) {
	buf := make([]byte, 4)
	buf[3] = 0x7F // top byte of a positive max value
	buf[2] = 0xFF
	out := DecodeS32(buf)
	require.Equal(t, []int16{32767}, out)
}

func TestDecodeF32ClipsOutOfRange(t *testing.T) {
	buf := make([]byte, 8)
	putFloat32LE(buf[0:4], 2.0) // out of range, clips to 1.0
	putFloat32LE(buf[4:8], -2.0)
	out := DecodeF32(buf)
	require.Equal(t, []int16{32767, -32767}, out)
}

func TestDecodeF32TotalOnNaNAndInf(t *testing.T) {
	buf := make([]byte, 4)
	putFloat32LE(buf, float32(math.NaN()))
	require.NotPanics(t, func() { DecodeF32(buf) })

	putFloat32LE(buf, float32(math.Inf(1)))
	out := DecodeF32(buf)
	require.Equal(t, []int16{32767}, out)
}

func TestDecodeS16BEMatchesLEByteSwap(t *testing.T) {
	out := DecodeS16BE([]byte{0x12, 0x34, 0xFF, 0xCE})
	require.Equal(t, []int16{0x1234, -50}, out)
}

func TestDecodeS24BESignExtends(t *testing.T) {
	out := DecodeS24BE([]byte{0xFF, 0xFF, 0xFF})
	require.Equal(t, []int16{-1}, out)

	out = DecodeS24BE([]byte{0x00, 0x00, 0x01})
	require.Equal(t, []int16{0}, out)
}

func TestDecodeS32BEShiftsDown(t *testing.T) {
	buf := []byte{0x7F, 0xFF, 0x00, 0x00}
	out := DecodeS32BE(buf)
	require.Equal(t, []int16{32767}, out)
}

func putFloat32LE(buf []byte, f float32) {
	bits := math.Float32bits(f)
	buf[0] = byte(bits)
	buf[1] = byte(bits >> 8)
	buf[2] = byte(bits >> 16)
	buf[3] = byte(bits >> 24)
}
