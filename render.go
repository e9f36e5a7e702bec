// SPDX-License-Identifier: EPL-2.0

package padmixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ik5/padmixer/audio"
	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/formats/wav"
	"github.com/ik5/padmixer/utils"
)

// RenderOptions pick the output format and the decoders used. Zero values
// take the engine defaults: 48 kHz stereo, cubic resampling, native decoders
// only, 16-bit output.
type RenderOptions struct {
	SampleRate int
	Channels   int
	Resampler  string
	Library    decode.OpenFunc
	FFmpegPath string
	BitDepth   int
	Logger     *slog.Logger
}

func (o RenderOptions) withDefaults() RenderOptions {
	if o.SampleRate == 0 {
		o.SampleRate = 48000
	}
	if o.Channels == 0 {
		o.Channels = 2
	}
	if o.BitDepth == 0 {
		o.BitDepth = 16
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Rendered is a fully decoded clip.
type Rendered struct {
	Samples []float32 // interleaved
	Format  decode.Format
	Source  decode.Format
	Backend string
}

// Frames in r.
func (r Rendered) Frames() int {
	if r.Format.Channels == 0 {
		return 0
	}
	return len(r.Samples) / r.Format.Channels
}

// ReadAll drains an adapter into memory, chunk frames at a time.
func ReadAll(a decode.Adapter, chunk int) ([]float32, error) {
	channels := a.Format().Channels
	if chunk <= 0 {
		chunk = 4096
	}
	buf := make([]float32, chunk*channels)
	out := make([]float32, 0, a.Format().SampleRate*channels)

	for {
		n, err := a.ReadFrames(buf)
		out = append(out, buf[:n*channels]...)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("%w", err)
		}
	}
}

// RenderFile decodes path through the same adapter chain the engine's
// slots use and returns every frame.
func RenderFile(ctx context.Context, path string, opts RenderOptions) (Rendered, error) {
	opts = opts.withDefaults()

	p := decode.NewProber(decode.Options{
		Library:    opts.Library,
		FFmpegPath: opts.FFmpegPath,
		Resampler:  opts.Resampler,
		Logger:     opts.Logger,
	})
	a, err := p.Open(ctx, path, opts.SampleRate, opts.Channels)
	if err != nil {
		return Rendered{}, err
	}
	defer a.Close()

	samples, err := ReadAll(a, 4096)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Samples: samples,
		Format:  a.Format(),
		Source:  a.SourceFormat(),
		Backend: a.Backend(),
	}, nil
}

// ConvertFile renders in and writes it to out as integer PCM WAV.
func ConvertFile(ctx context.Context, in, out string, opts RenderOptions) (Rendered, error) {
	opts = opts.withDefaults()
	if !wav.ValidBitDepth(opts.BitDepth) {
		return Rendered{}, fmt.Errorf("%w: %d", wav.ErrUnsupportedBitDepth, opts.BitDepth)
	}

	r, err := RenderFile(ctx, in, opts)
	if err != nil {
		return Rendered{}, err
	}

	w, err := wav.Create(out, r.Format.SampleRate, r.Format.Channels, opts.BitDepth)
	if err != nil {
		return Rendered{}, err
	}
	if err := w.WriteFloat32(r.Samples); err != nil {
		return Rendered{}, errors.Join(err, w.Close())
	}
	if err := w.Close(); err != nil {
		return Rendered{}, err
	}

	opts.Logger.Info("converted clip", "in", in, "out", out, "backend", r.Backend,
		"frames", r.Frames(), "duration", r.Format.FrameDuration(int64(r.Frames())))
	return r, nil
}

// ResampleToInt16 resamples src to targetRate and maps it to channels,
// collecting everything as 16-bit PCM. It works on any audio.Source, so
// callers with their own decoder can skip the file probing of RenderFile.
func ResampleToInt16(src audio.Source, targetRate, channels, bufferSize int) ([]int16, error) {
	var chain audio.Source = src
	if src.SampleRate() != targetRate {
		chain = audio.NewResampler(chain, targetRate)
	}
	if src.Channels() != channels {
		m, err := audio.NewChannelMapper(chain, channels)
		if err != nil {
			return nil, err
		}
		chain = m
	}

	bufferSize -= bufferSize % channels
	if bufferSize <= 0 {
		bufferSize = 4096 * channels
	}
	buf := make([]float32, bufferSize)
	pcm16 := make([]int16, 0, targetRate*channels)

	for {
		n, err := chain.ReadSamples(buf)
		for _, s := range buf[:n] {
			pcm16 = append(pcm16, utils.Float32ToInt16(s))
		}
		if errors.Is(err, io.EOF) {
			return pcm16, nil
		}
		if err != nil {
			return pcm16, fmt.Errorf("%w", err)
		}
	}
}
