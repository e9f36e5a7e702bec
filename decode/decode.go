// SPDX-License-Identifier: EPL-2.0

// Package decode turns an audio file into interleaved float32 frames at a
// fixed sample rate and channel count.
//
// Native runs the in-process decoders from formats/ through the audio
// package resamplers. When a file cannot be handled natively, Prober.Open
// tries the library decoder from Options.Library (decode/libav links the
// FFmpeg libraries) and then FFmpeg, which runs an ffmpeg child process and
// reads raw f32le from its stdout.
//
//	p := decode.NewProber(decode.Options{Library: libav.Opener(logger), FFmpegPath: "ffmpeg"})
//	a, err := p.Open(ctx, "clip.flac", 48000, 2)
//	n, err := a.ReadFrames(buf) // io.EOF at the end
//	err = a.SeekFrame(0)        // loop
package decode

import (
	"io"
	"time"
)

// Format of the frames an Adapter produces.
type Format struct {
	SampleRate int
	Channels   int
}

// FrameDuration converts a frame count to wall time.
func (f Format) FrameDuration(frames int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Adapter is an opened clip. It is used from one goroutine at a time.
type Adapter interface {
	io.Closer

	// ReadFrames fills dst with whole frames and returns the frame count.
	// At the end of the clip it returns io.EOF, possibly with the final
	// frames. Any other error is a decode failure after a successful open.
	ReadFrames(dst []float32) (int, error)

	// SeekFrame moves to a frame counted at the output rate.
	SeekFrame(frame int64) error

	// Format of the output frames.
	Format() Format

	// SourceFormat is the clip's own rate and channel count when known,
	// otherwise the output format.
	SourceFormat() Format

	// Backend names what decodes the clip, e.g. "native/mp3", "libav/flac" or "ffmpeg".
	Backend() string
}

// Resampler kinds accepted by Options.
const (
	ResamplerCubic = "cubic"
	ResamplerSinc  = "sinc"
)
