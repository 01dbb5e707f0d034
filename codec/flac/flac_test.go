package flac

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecorrelateMidSideInvertible(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		m := int32(rng.Intn(1<<20) - 1<<19)
		s := int32(rng.Intn(1<<20) - 1<<19)
		mid := []int32{m}
		side := []int32{s}
		decorrelateMidSide(mid, side)
		l, rr := mid[0], side[0]

		mPrime := (l + rr) >> 1
		sPrime := l - rr
		require.Equal(t, m, mPrime)
		require.Equal(t, s, sPrime)
	}
}

func TestDecorrelateLeftSideRightSideRoundTrip(t *testing.T) {
	left := []int32{100, -50, 32000}
	side := []int32{10, -5, 1}
	right := make([]int32, len(left))
	for i := range left {
		right[i] = left[i] - side[i]
	}

	gotSide := append([]int32(nil), side...)
	decorrelateLeftSide(left, gotSide)
	require.Equal(t, right, gotSide)

	gotLeft := append([]int32(nil), side...)
	decorrelateRightSide(gotLeft, right)
	require.Equal(t, left, gotLeft)
}

func textbookFixedPredict(samples []int32, order uint32, n int) int64 {
	switch order {
	case 0:
		return 0
	case 1:
		return int64(samples[n-1])
	case 2:
		return 2*int64(samples[n-1]) - int64(samples[n-2])
	case 3:
		return 3*int64(samples[n-1]) - 3*int64(samples[n-2]) + int64(samples[n-3])
	case 4:
		return 4*int64(samples[n-1]) - 6*int64(samples[n-2]) + 4*int64(samples[n-3]) - int64(samples[n-4])
	}
	return 0
}

func TestApplyFixedPredictorMatchesTextbookFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for order := uint32(0); order <= 4; order++ {
		warmup := make([]int32, order)
		for i := range warmup {
			warmup[i] = rng.Int31()
		}
		residuals := []int64{0, 1, -1, math.MinInt32, math.MaxInt32}

		for _, residual := range residuals {
			predicted := textbookFixedPredict(warmup, order, int(order))
			expected := int32(predicted + residual)

			buf := append([]int32(nil), warmup...)
			buf = append(buf, int32(residual))
			applyFixedPredictor(buf, order)
			require.Equal(t, expected, buf[len(buf)-1])
		}
	}
}

func TestUnfoldSignedZigzag(t *testing.T) {
	require.Equal(t, int32(0), unfoldSigned(0))
	require.Equal(t, int32(-1), unfoldSigned(1))
	require.Equal(t, int32(1), unfoldSigned(2))
	require.Equal(t, int32(-2), unfoldSigned(3))
	require.Equal(t, int32(2), unfoldSigned(4))
}

func TestCRC8KnownVector(t *testing.T) {
	// CRC-8 of an empty input with this polynomial and initial 0 is 0.
	require.Equal(t, byte(0), crc8(nil))
}

func TestCRC16KnownVector(t *testing.T) {
	require.Equal(t, uint16(0), crc16(nil))
}

func TestConvertTo16BitPassthroughAndClip(t *testing.T) {
	require.Equal(t, int16(1234), convertTo16Bit(1234, 16))
	require.Equal(t, int16(32767), convertTo16Bit(math.MaxInt32, 32))
	require.Equal(t, int16(-32768), convertTo16Bit(math.MinInt32, 32))
	require.Equal(t, int16(256), convertTo16Bit(1, 8))
}

func TestBlockSizeFromCodeTable(t *testing.T) {
	size, literal := blockSizeFromCode(1)
	require.Equal(t, uint32(192), size)
	require.Equal(t, 0, literal)

	size, literal = blockSizeFromCode(8)
	require.Equal(t, uint32(256), size)
	require.Equal(t, 0, literal)

	_, literal = blockSizeFromCode(6)
	require.Equal(t, 8, literal)
}

func TestSampleRateFromCodeForbidden(t *testing.T) {
	_, literalBits, _ := sampleRateFromCode(15)
	require.Equal(t, -1, literalBits)
}
