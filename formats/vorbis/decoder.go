// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/ik5/padmixer/audio"
)

// oggReader is an interface for oggvorbis.Reader to allow testing
type oggReader interface {
	SampleRate() int
	Channels() int
	// Read returns the number of float32 values decoded, always a whole
	// number of frames.
	Read([]float32) (int, error)
	SetPosition(frame int64) error
	Length() int64
}

type source struct {
	dec        oggReader
	sampleRate int
	channels   int
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return 4096 }

// Frames reports the stream length in frames, 0 when the reader cannot seek.
func (s *source) Frames() int64 { return s.dec.Length() }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.dec.Read(dst)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w", err)
	}
	return n, err
}

func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		return audio.ErrNegativeSeekOffset
	}
	if err := s.dec.SetPosition(frame); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

type Decoder struct{}

// Decode wraps r. Seeking works only when r is an io.Seeker.
func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}
	if dec.Channels() <= 0 {
		return nil, audio.ErrInvalidChannels
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
	}, nil
}
