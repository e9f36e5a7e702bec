// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/noise"
)

// Slots is the size of the slot array.
const Slots = 16

const (
	DefaultSampleRate   = 48000
	DefaultChannels     = 2
	DefaultPeriodFrames = 480
	DefaultRingSeconds  = 1.0
)

// Opener opens clips as frames in the engine format. *decode.Prober is the
// usual implementation.
type Opener interface {
	Open(ctx context.Context, path string, rate, channels int) (decode.Adapter, error)
}

// Config fixes the engine's operating format and collaborators. Zero
// values take the defaults.
type Config struct {
	SampleRate      int
	Channels        int
	CaptureChannels int // channels requested from the capture endpoint, 1 by default
	PeriodFrames    int
	RingSeconds     float64 // decode-ahead per slot and device
	RecordBitDepth  int     // 16, 24 or 32

	Opener     Opener           // decode.NewProber(Resampler, Library, FFmpegPath) when nil
	Resampler  string           // decode.ResamplerCubic or decode.ResamplerSinc
	Library    decode.OpenFunc  // in-process fallback decoder, such as libav.Opener
	FFmpegPath string           // "" disables the ffmpeg binary fallback
	Suppressor noise.Suppressor // noise.NewGate when nil

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	if c.CaptureChannels == 0 {
		c.CaptureChannels = 1
	}
	if c.PeriodFrames == 0 {
		c.PeriodFrames = DefaultPeriodFrames
	}
	if c.RingSeconds == 0 {
		c.RingSeconds = DefaultRingSeconds
	}
	if c.RecordBitDepth == 0 {
		c.RecordBitDepth = 16
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Opener == nil {
		c.Opener = decode.NewProber(decode.Options{
			Library:    c.Library,
			FFmpegPath: c.FFmpegPath,
			Resampler:  c.Resampler,
			Logger:     c.Logger,
		})
	}
	if c.Suppressor == nil {
		c.Suppressor = noise.NewGate(noise.GateConfig{SampleRate: c.SampleRate})
	}
	return c
}

func (c Config) validate() error {
	if c.SampleRate <= 0 || c.Channels <= 0 || c.CaptureChannels <= 0 || c.PeriodFrames <= 0 {
		return fmt.Errorf("invalid engine format: rate %d, channels %d, capture channels %d, period %d",
			c.SampleRate, c.Channels, c.CaptureChannels, c.PeriodFrames)
	}
	if ringFrames := int(c.RingSeconds * float64(c.SampleRate)); ringFrames < c.PeriodFrames {
		return fmt.Errorf("ring of %v s is shorter than one %d frame period", c.RingSeconds, c.PeriodFrames)
	}
	return nil
}
