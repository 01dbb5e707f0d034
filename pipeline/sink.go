package pipeline

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// AudioSink is the pull side of a Pipeline: something that drains PCM
// from an io.Reader at the stream's own pace. The default implementation
// wraps ebitengine/oto/v3 exactly as the teacher's Player does, but kept
// behind this interface so the pipeline itself never imports oto
// directly — the teacher's direct-to-oto wiring moves one layer down.
type AudioSink interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(float64)
	Close() error
}

// SinkFactory constructs a sink bound to pcm, an io.Reader yielding
// interleaved signed 16-bit little-endian samples at sampleRate/channels.
type SinkFactory func(sampleRate, channels int, pcm io.Reader) (AudioSink, error)

var (
	globalOtoCtx *oto.Context
	otoOnce      sync.Once
	otoInitErr   error
)

// initOto lazily creates the single process-wide oto.Context, mirroring
// the teacher's player.initOto: oto only allows one context per process,
// so every Pipeline in a process shares it regardless of which track's
// sample rate/channel count triggered its creation.
func initOto(sampleRate, channelCount int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
		}
		var ready chan struct{}
		globalOtoCtx, ready, otoInitErr = oto.NewContext(op)
		if otoInitErr == nil {
			<-ready
			if globalOtoCtx != nil {
				if ctxErr := globalOtoCtx.Err(); ctxErr != nil {
					otoInitErr = friendlyAudioInitError(ctxErr)
				}
			}
		} else {
			otoInitErr = friendlyAudioInitError(otoInitErr)
		}
	})
	return globalOtoCtx, otoInitErr
}

// friendlyAudioInitError rewrites the common headless-Linux ALSA failure
// into an actionable message, exactly as the teacher's player package
// does for the same symptom.
func friendlyAudioInitError(err error) error {
	if err == nil {
		return nil
	}
	if runtime.GOOS != "linux" {
		return err
	}
	msg := strings.ToLower(err.Error())
	isNoDevice := strings.Contains(msg, "alsa error at snd_pcm_open") ||
		strings.Contains(msg, "unknown pcm default") ||
		strings.Contains(msg, "cannot find card '0'")
	if !isNoDevice {
		return err
	}
	return fmt.Errorf("no Linux audio output device found (ALSA default device unavailable); configure ALSA/PipeWire/PulseAudio or use a machine with audio")
}

type otoSink struct {
	player *oto.Player
}

func (s *otoSink) Play()                 { s.player.Play() }
func (s *otoSink) Pause()                { s.player.Pause() }
func (s *otoSink) IsPlaying() bool       { return s.player.IsPlaying() }
func (s *otoSink) SetVolume(v float64)   { s.player.SetVolume(v) }
func (s *otoSink) Close() error {
	s.player.Pause()
	return s.player.Close()
}

// NewOtoSink is the default SinkFactory, wiring the shared oto.Context to
// a fresh oto.Player pulling from pcm.
func NewOtoSink(sampleRate, channels int, pcm io.Reader) (AudioSink, error) {
	ctx, err := initOto(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	player := ctx.NewPlayer(pcm)
	return &otoSink{player: player}, nil
}
