package mediafactory

import (
	"testing"

	"github.com/olivier-w/mediastream/mediaerr"
	"github.com/olivier-w/mediastream/mediaio"
	"github.com/stretchr/testify/require"

	_ "github.com/olivier-w/mediastream/demux/aiff"
	_ "github.com/olivier-w/mediastream/demux/flacnative"
	_ "github.com/olivier-w/mediastream/demux/isobmff"
	_ "github.com/olivier-w/mediastream/demux/ogg"
	_ "github.com/olivier-w/mediastream/demux/raw"
	_ "github.com/olivier-w/mediastream/demux/riff"
)

func TestDetectPrefersMIMEOverExtensionAndMagic(t *testing.T) {
	src := mediaio.NewBytesSource([]byte("OggS\x00\x00\x00\x00"))
	reg, confidence, err := Detect(src, "wav", "audio/flac")
	require.NoError(t, err)
	require.Equal(t, "flac", reg.Name)
	require.Equal(t, confidenceMIME, confidence)
}

func TestDetectFallsBackToExtensionWhenNoMIMEHint(t *testing.T) {
	src := mediaio.NewBytesSource([]byte("OggS\x00\x00\x00\x00"))
	reg, confidence, err := Detect(src, "flac", "")
	require.NoError(t, err)
	require.Equal(t, "flac", reg.Name)
	require.Equal(t, confidenceExtension, confidence)
}

func TestDetectFallsBackToMagicProbeWithoutMIMEOrExtension(t *testing.T) {
	src := mediaio.NewBytesSource([]byte("OggS\x00\x00\x00\x00garbage-payload"))
	reg, confidence, err := Detect(src, "", "")
	require.NoError(t, err)
	require.Equal(t, "ogg", reg.Name)
	require.Equal(t, confidenceMagic, confidence)

	pos, err := src.Tell()
	require.NoError(t, err)
	require.Zero(t, pos, "detect must rewind the source to byte zero after probing")
}

func TestDetectMagicSignatureRIFF(t *testing.T) {
	data := append([]byte("RIFF"), []byte{0, 0, 0, 0}...)
	data = append(data, []byte("WAVEfmt ")...)
	src := mediaio.NewBytesSource(data)
	reg, _, err := Detect(src, "", "")
	require.NoError(t, err)
	require.Equal(t, "riff", reg.Name)
}

func TestDetectMagicSignatureAIFF(t *testing.T) {
	data := append([]byte("FORM"), []byte{0, 0, 0, 0}...)
	data = append(data, []byte("AIFCCOMM")...)
	src := mediaio.NewBytesSource(data)
	reg, _, err := Detect(src, "", "")
	require.NoError(t, err)
	require.Equal(t, "aiff", reg.Name)
}

func TestDetectMagicSignatureISOBMFF(t *testing.T) {
	data := append([]byte{0, 0, 0, 24}, []byte("ftypM4A ")...)
	src := mediaio.NewBytesSource(data)
	reg, _, err := Detect(src, "", "")
	require.NoError(t, err)
	require.Equal(t, "isobmff", reg.Name)
}

func TestDetectReturnsFormatErrorForUnrecognizedContent(t *testing.T) {
	src := mediaio.NewBytesSource([]byte("not a media file at all"))
	_, _, err := Detect(src, "", "")
	require.Error(t, err)
	var merr *mediaerr.Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, mediaerr.Format, merr.Kind)
}

func TestRegistrationByExtensionMatchesRawVariant(t *testing.T) {
	reg, ok := registrationByExtension("u8")
	require.True(t, ok)
	require.Equal(t, "raw_u8", reg.Name)
}

func TestRegistrationByMIMENormalizesParametersAndCase(t *testing.T) {
	reg, ok := registrationByMIME("Audio/OGG; codecs=opus")
	require.True(t, ok)
	require.Equal(t, "ogg", reg.Name)
}

func TestOpenRejectsUnsupportedScheme(t *testing.T) {
	_, err := Open("ftp://example.com/song.mp3")
	require.Error(t, err)
}

func TestSplitScheme(t *testing.T) {
	scheme, rest := splitScheme(`C:\music\song.wav`)
	require.Equal(t, "", scheme)
	require.Equal(t, `C:\music\song.wav`, rest)

	scheme, rest = splitScheme("https://example.com/a.flac")
	require.Equal(t, "https", scheme)
	require.Equal(t, "example.com/a.flac", rest)
}

func TestExtractExt(t *testing.T) {
	require.Equal(t, "flac", extractExt("/music/song.FLAC"))
	require.Equal(t, "wav", extractExt(`C:\music\song.wav`))
	require.Equal(t, "", extractExt("/music/song"))
	require.Equal(t, "", extractExt("/music/song."))
}

func TestHttpPathStripsHostAndQuery(t *testing.T) {
	require.Equal(t, "/a/b.mp3", httpPath("example.com/a/b.mp3?token=1"))
	require.Equal(t, "", httpPath("example.com"))
}
