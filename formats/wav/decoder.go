// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/ik5/padmixer/audio"
	"github.com/ik5/padmixer/utils"
)

const pcmFormat = 1

// wavReader is the part of gowav.Decoder the source uses, to allow testing
type wavReader interface {
	Format() *goaudio.Format
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
	Rewind() error
}

type source struct {
	dec        wavReader
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

func (s *source) normalize(v int) float32 {
	if s.bitDepth == 8 {
		// 8-bit WAV is unsigned
		return float32(v-128) / 128.0
	}
	return utils.IntToFloat32(v, s.bitDepth)
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
		return got, fmt.Errorf("%w", err)
	}
	return got, nil
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}

	n, err := s.read(len(dst))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i, v := range s.intBuf.Data[:n] {
		dst[i] = s.normalize(v)
	}

	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

// SeekFrame rewinds to the start of the PCM data and skips forward.
func (s *source) SeekFrame(frame int64) error {
	if frame < 0 {
		return audio.ErrNegativeSeekOffset
	}
	if err := s.dec.Rewind(); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}

	remaining := frame * int64(s.channels)
	chunk := int64(4096 - 4096%s.channels)
	for remaining > 0 {
		n, err := s.read(int(min(remaining, chunk)))
		if err != nil {
			return err
		}
		if n == 0 {
			// past the end, the next read reports EOF
			return nil
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
			return nil, fmt.Errorf("reading wav data: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := gowav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, ErrNotWavFile
	}
	dec.ReadInfo()

	if dec.WavAudioFormat != pcmFormat {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWavLayout, dec.WavAudioFormat)
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, ErrUnsupportedWavLayout
	}

	return &source{
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   bitDepth,
	}, nil
}
