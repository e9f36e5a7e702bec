// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"

	"github.com/ik5/padmixer/audio"
	"github.com/ik5/padmixer/utils"
)

// aiffReader is an interface for aiff.Decoder to allow testing
type aiffReader interface {
	Format() *goaudio.Format
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

// source wraps go-audio aiff.Decoder to implement audio.Source
type source struct {
	dec        aiffReader
	reopen     func() (aiffReader, error)
	sampleRate int
	channels   int
	bitDepth   int
	intBuf     *goaudio.IntBuffer
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int {
	if s.intBuf != nil {
		return cap(s.intBuf.Data)
	}
	return 4096
}

func (s *source) read(n int) (int, error) {
	if s.intBuf == nil || cap(s.intBuf.Data) < n {
		s.intBuf = &goaudio.IntBuffer{
			Data:           make([]int, n),
			Format:         s.dec.Format(),
			SourceBitDepth: s.bitDepth,
		}
	} else {
		s.intBuf.Data = s.intBuf.Data[:n]
	}

	got, err := s.dec.PCMBuffer(s.intBuf)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w", err)
	}
	return got, err
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.read(len(dst))
	if n == 0 {
		if err != nil {
			return 0, err
		}
		return 0, io.EOF
	}

	// AIFF samples are signed at every depth
	for i, v := range s.intBuf.Data[:n] {
		dst[i] = utils.IntToFloat32(v, s.bitDepth)
	}

	// If we got fewer samples than requested and no error, we're at EOF
	if n < len(dst) && err == nil {
		return n, io.EOF
	}

	return n, err
}

// SeekFrame restarts the decoder on the underlying reader and skips forward.
func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		return audio.ErrNegativeSeekOffset
	}
	if s.reopen == nil {
		return audio.ErrNotSeekable
	}

	dec, err := s.reopen()
	if err != nil {
		return err
	}
	s.dec = dec
	s.intBuf = nil

	remaining := frame * int64(s.channels)
	chunk := int64(4096 - 4096%s.channels)
	for remaining > 0 {
		n, err := s.read(int(min(remaining, chunk)))
		if n == 0 || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		remaining -= int64(n)
	}
	return nil
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	// go-audio requires io.ReadSeeker
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading aiff data: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	open := func() (*aiff.Decoder, error) {
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return nil, fmt.Errorf("%w", err)
		}
		dec := aiff.NewDecoder(rs)
		if !dec.IsValidFile() {
			return nil, ErrNotAiffFile
		}
		dec.ReadInfo()
		return dec, nil
	}

	dec, err := open()
	if err != nil {
		return nil, err
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	format := dec.Format()
	if format == nil || format.NumChannels <= 0 || format.SampleRate <= 0 {
		return nil, ErrUnsupportedAiffLayout
	}

	return &source{
		dec: dec,
		reopen: func() (aiffReader, error) {
			return open()
		},
		sampleRate: format.SampleRate,
		channels:   format.NumChannels,
		bitDepth:   bitDepth,
	}, nil
}
