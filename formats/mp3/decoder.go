// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"

	"github.com/ik5/padmixer/audio"
	"github.com/ik5/padmixer/utils"
)

// go-mp3 always produces 16-bit little-endian stereo
const (
	channels      = 2
	bytesPerFrame = channels * 2
)

// mp3Reader is an interface for gomp3.Decoder to allow testing
type mp3Reader interface {
	io.ReadSeeker
	SampleRate() int
	Length() int64
}

type source struct {
	dec        mp3Reader
	sampleRate int
	buf        []byte
	carry      int // bytes of a partial frame kept at the start of buf
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return cap(s.buf) / 2 } // sample capacity, not bytes

// Frames reports the decoded length in frames, or -1 when unknown.
func (s *source) Frames() int64 {
	n := s.dec.Length()
	if n < 0 {
		return -1
	}
	return n / bytesPerFrame
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst)%channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}
	if len(dst) == 0 {
		return 0, nil
	}

	bytesNeeded := len(dst) * 2
	if cap(s.buf) < bytesNeeded {
		grown := make([]byte, bytesNeeded)
		copy(grown, s.buf[:s.carry])
		s.buf = grown
	}
	s.buf = s.buf[:bytesNeeded]

	n, err := io.ReadAtLeast(s.dec, s.buf[s.carry:], 1)
	n += s.carry
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w", err)
	}

	whole := n - n%bytesPerFrame
	samples := whole / 2
	for i := range samples {
		dst[i] = utils.Int16ToFloat32(int16(binary.LittleEndian.Uint16(s.buf[2*i:])))
	}

	s.carry = copy(s.buf, s.buf[whole:n])
	if err == io.EOF {
		s.carry = 0
	}

	if samples == 0 && err == io.EOF {
		return 0, io.EOF
	}
	return samples, err
}

// SeekFrame moves to a PCM frame. go-mp3 seeks on decoded bytes, so the
// position is exact.
func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		return audio.ErrNegativeSeekOffset
	}
	if _, err := s.dec.Seek(frame*bytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("%w", err)
	}
	s.carry = 0
	return nil
}

type Decoder struct{}

// Decode wraps r. Seeking works only when r is an io.Seeker.
func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		buf:        make([]byte, 8192),
	}, nil
}
