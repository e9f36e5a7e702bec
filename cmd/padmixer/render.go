// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ik5/padmixer"
)

func runRender(ctx context.Context, args []string, stdout io.Writer) error {
	fs, configPath := newFlagSet("render")
	rate := fs.Int("rate", 0, "output sample rate; 0 uses the configured engine rate")
	channels := fs.Int("channels", 0, "output channels; 0 uses the configured engine channels")
	bits := fs.Int("bits", 0, "output bit depth (16, 24 or 32); 0 uses recording.bitdepth")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: render needs an input and an output path", errUsage)
	}

	cfg, closeLog, err := setup(*configPath)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := padmixer.RenderOptions{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Resampler:  cfg.Resampler,
		Library:    library(cfg),
		FFmpegPath: cfg.FFmpegPath,
		BitDepth:   cfg.Recording.BitDepth,
		Logger:     slog.Default(),
	}
	if *rate > 0 {
		opts.SampleRate = *rate
	}
	if *channels > 0 {
		opts.Channels = *channels
	}
	if *bits > 0 {
		opts.BitDepth = *bits
	}

	r, err := padmixer.ConvertFile(ctx, fs.Arg(0), fs.Arg(1), opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d frames, %d Hz x %d (%s), %v\n",
		fs.Arg(1), r.Frames(), r.Format.SampleRate, r.Format.Channels, r.Backend,
		r.Format.FrameDuration(int64(r.Frames())))
	return nil
}
