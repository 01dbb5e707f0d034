package bufpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountantTrackAndUsage(t *testing.T) {
	a := NewAccountant()
	a.Track("decoder", 1000)
	a.Track("decoder", 500)
	require.Equal(t, int64(1500), a.Usage("decoder"))
}

func TestAccountantTrackClampsNegativeToZero(t *testing.T) {
	a := NewAccountant()
	a.Track("decoder", 100)
	a.Track("decoder", -500)
	require.Equal(t, int64(0), a.Usage("decoder"))
}

func TestAccountantTotalUsageSumsComponents(t *testing.T) {
	a := NewAccountant()
	a.Track("decoder", 100)
	a.Track("io", 200)
	require.Equal(t, int64(300), a.TotalUsage())
}

func TestClassifyThresholds(t *testing.T) {
	require.Equal(t, Normal, classify(0.0))
	require.Equal(t, Normal, classify(0.69))
	require.Equal(t, High, classify(0.70))
	require.Equal(t, High, classify(0.84))
	require.Equal(t, Critical, classify(0.85))
	require.Equal(t, Critical, classify(1.0))
}

func TestCachedPressureDefaultsNormalBeforeFirstComputation(t *testing.T) {
	a := NewAccountant()
	require.Equal(t, Normal, a.CachedPressure())
}

func TestParseKBLineParsesValue(t *testing.T) {
	kb, err := parseKBLine("VmRSS:	  123456 kB")
	require.NoError(t, err)
	require.Equal(t, int64(123456*1024), kb)
}

func TestPressureReadsRealProcFilesOnLinux(t *testing.T) {
	a := NewAccountant()
	level, err := a.Pressure()
	require.NoError(t, err)
	require.Contains(t, []Level{Normal, High, Critical}, level)
	require.Equal(t, level, a.CachedPressure())
}
