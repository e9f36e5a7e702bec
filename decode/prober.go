// SPDX-License-Identifier: EPL-2.0

package decode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/ik5/padmixer/audio"
)

// OpenFunc opens path as frames at rate and channels.
type OpenFunc func(ctx context.Context, path string, rate, channels int) (Adapter, error)

// Options configure a Prober. Zero values pick the defaults.
type Options struct {
	Registry   *audio.Registry // DefaultRegistry when nil
	Library    OpenFunc        // in-process decoder tried after the native ones; nil skips it
	FFmpegPath string          // ffmpeg binary tried last; "" skips it
	Resampler  string          // ResamplerCubic or ResamplerSinc
	Logger     *slog.Logger
}

// Prober picks a backend per file.
type Prober struct {
	registry   *audio.Registry
	library    OpenFunc
	ffmpegPath string
	resampler  string
	logger     *slog.Logger
}

func NewProber(opts Options) *Prober {
	p := &Prober{
		registry:   opts.Registry,
		library:    opts.Library,
		ffmpegPath: opts.FFmpegPath,
		resampler:  opts.Resampler,
		logger:     opts.Logger,
	}
	if p.registry == nil {
		p.registry = DefaultRegistry()
	}
	if p.resampler != ResamplerSinc {
		p.resampler = ResamplerCubic
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Open returns an Adapter producing frames at rate and channels.
//
// A file that cannot be opened at all fails immediately. Any other native
// failure (unknown container, unsupported layout, codec error in the
// header) is retried with the library decoder and then the ffmpeg binary,
// whichever are configured.
func (p *Prober) Open(ctx context.Context, path string, rate, channels int) (Adapter, error) {
	native, err := OpenNative(p.registry, path, rate, channels, p.resampler)
	if err == nil {
		p.logger.Debug("opened clip", "path", path, "backend", native.Backend(),
			"rate", native.SourceFormat().SampleRate, "channels", native.SourceFormat().Channels)
		return native, nil
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, ErrInvalidTargetFormat) {
		return nil, err
	}
	errs := []error{err}

	if p.library != nil {
		p.logger.Debug("native decode failed, trying library decoder", "path", path, "error", err)
		a, libErr := p.library(ctx, path, rate, channels)
		if libErr == nil {
			return a, nil
		}
		errs = append(errs, libErr)
	}

	if p.ffmpegPath != "" {
		p.logger.Debug("trying ffmpeg binary", "path", path, "error", errors.Join(errs...))
		ff, ffErr := OpenFFmpeg(ctx, p.ffmpegPath, path, rate, channels, p.logger)
		if ffErr == nil {
			return ff, nil
		}
		errs = append(errs, ffErr)
	}

	return nil, fmt.Errorf("%w: %w", ErrUnsupported, errors.Join(errs...))
}
