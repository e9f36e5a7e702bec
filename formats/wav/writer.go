// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/padmixer/utils"
)

// Writer streams float32 samples into an integer PCM WAV container. The
// header sizes are patched on Close, so the target must be seekable.
type Writer struct {
	enc      *gowav.Encoder
	closer   io.Closer
	buf      *goaudio.IntBuffer
	channels int
	bitDepth int
	frames   int64
	closed   bool
}

// ValidBitDepth reports whether Writer can produce the depth.
func ValidBitDepth(bitDepth int) bool {
	switch bitDepth {
	case 16, 24, 32:
		return true
	}
	return false
}

// Create opens path for writing, truncating it.
func Create(path string, sampleRate, channels, bitDepth int) (*Writer, error) {
	if !ValidBitDepth(bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w, err := NewWriter(f, sampleRate, channels, bitDepth)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	w.closer = f
	return w, nil
}

func NewWriter(ws io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	if !ValidBitDepth(bitDepth) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if channels <= 0 || sampleRate <= 0 {
		return nil, ErrUnsupportedWavLayout
	}

	w := &Writer{
		enc:      gowav.NewEncoder(ws, sampleRate, bitDepth, channels, pcmFormat),
		channels: channels,
		bitDepth: bitDepth,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:           make([]int, 0, 4096),
			SourceBitDepth: bitDepth,
		},
	}

	// an empty write puts the header down, so an empty recording is still a
	// valid file
	if err := w.enc.Write(w.buf); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	return w, nil
}

// WriteFloat32 appends interleaved samples, clipping to [-1, 1].
func (w *Writer) WriteFloat32(samples []float32) error {
	if w.closed {
		return ErrWriterClosed
	}
	if len(samples)%w.channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrUnsupportedWavLayout, len(samples), w.channels)
	}

	for len(samples) > 0 {
		n := min(len(samples), cap(w.buf.Data))
		n -= n % w.channels
		w.buf.Data = w.buf.Data[:n]
		for i, s := range samples[:n] {
			w.buf.Data[i] = utils.Float32ToInt(s, w.bitDepth)
		}
		if err := w.enc.Write(w.buf); err != nil {
			return fmt.Errorf("%w", err)
		}
		w.frames += int64(n / w.channels)
		samples = samples[n:]
	}
	return nil
}

// Frames written so far.
func (w *Writer) Frames() int64 { return w.frames }

func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.enc.Close()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
