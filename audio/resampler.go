// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"

	"github.com/ik5/padmixer/utils"
)

const resamplerChunkFrames = 1024

// Resampler streams from src to a target sample rate using cubic
// interpolation. Works on interleaved samples; preserves channel count.
// A one-pole low-pass runs on the input when downsampling.
//
// Output frame k is taken at source position k*ratio, so a source of N
// frames yields ceil(N*dstRate/srcRate) frames.
type Resampler struct {
	src      Source
	srcRate  int64
	dstRate  int
	ratio    float64 // source frames per output frame
	channels int

	// hist[k] holds source frame base-1+k
	hist [4][]float32
	base int64

	primed  bool
	eof     bool
	read    int64 // real source frames consumed so far
	emitted int64 // output frames produced since the last reset

	chunk    []float32
	chunkPos int // consumed samples in chunk
	chunkLen int

	useFilter   bool
	filterAlpha float32
	filterState []float32
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()
	ratio := float64(src.SampleRate()) / float64(dstRate)

	r := &Resampler{
		src:         src,
		srcRate:     int64(src.SampleRate()),
		dstRate:     dstRate,
		ratio:       ratio,
		channels:    channels,
		chunk:       make([]float32, resamplerChunkFrames*channels),
		useFilter:   ratio > 1.0,
		filterAlpha: 0.5,
		filterState: make([]float32, channels),
	}
	for i := range r.hist {
		r.hist[i] = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

// Ratio reports source frames per output frame.
func (r *Resampler) Ratio() float64 { return r.ratio }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// SeekFrame repositions to output frame, seeking the source to the matching
// source frame and discarding interpolation history.
func (r *Resampler) SeekFrame(frame int64) error {
	dst := int64(r.dstRate)
	srcFrame := (frame*r.srcRate + dst/2) / dst
	if err := SeekFrame(r.src, srcFrame); err != nil {
		return err
	}
	r.reset()
	return nil
}

func (r *Resampler) reset() {
	r.primed = false
	r.eof = false
	r.read = 0
	r.emitted = 0
	r.base = 0
	r.chunkPos = 0
	r.chunkLen = 0
	for i := range r.filterState {
		r.filterState[i] = 0
	}
}

// nextFrame copies the next source frame into dst. It returns false once
// the source is exhausted.
func (r *Resampler) nextFrame(dst []float32) (bool, error) {
	if r.eof {
		return false, nil
	}
	for r.chunkPos >= r.chunkLen {
		n, err := r.src.ReadSamples(r.chunk)
		n -= n % r.channels
		r.chunkPos = 0
		r.chunkLen = n
		if err == io.EOF {
			if n == 0 {
				r.eof = true
				return false, nil
			}
		} else if err != nil {
			return false, fmt.Errorf("%w", err)
		} else if n == 0 {
			// a source returning nothing without an error is treated as exhausted
			r.eof = true
			return false, nil
		}
	}

	frame := r.chunk[r.chunkPos : r.chunkPos+r.channels]
	r.chunkPos += r.channels

	if r.useFilter {
		if r.read == 0 {
			copy(r.filterState, frame)
		}
		for c := range r.channels {
			v := r.filterAlpha*frame[c] + (1-r.filterAlpha)*r.filterState[c]
			r.filterState[c] = v
			dst[c] = v
		}
	} else {
		copy(dst, frame)
	}
	r.read++
	return true, nil
}

// fill loads hist[i] with the next source frame, or a copy of hist[i-1]
// when the source has run out.
func (r *Resampler) fill(i int) error {
	ok, err := r.nextFrame(r.hist[i])
	if err != nil {
		return err
	}
	if !ok {
		copy(r.hist[i], r.hist[i-1])
	}
	return nil
}

func (r *Resampler) prime() (bool, error) {
	ok, err := r.nextFrame(r.hist[1])
	if err != nil || !ok {
		return false, err
	}
	copy(r.hist[0], r.hist[1])
	if err := r.fill(2); err != nil {
		return false, err
	}
	if err := r.fill(3); err != nil {
		return false, err
	}
	r.base = 0
	r.primed = true
	return true, nil
}

func (r *Resampler) advance() error {
	first := r.hist[0]
	r.hist[0], r.hist[1], r.hist[2] = r.hist[1], r.hist[2], r.hist[3]
	r.hist[3] = first
	r.base++
	return r.fill(3)
}

// ReadSamples produces dst samples at the target rate.
// dst length should be a multiple of r.channels.
func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if r.ratio == 1 {
		return r.src.ReadSamples(dst)
	}

	if !r.primed {
		ok, err := r.prime()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
	}

	framesNeeded := len(dst) / r.channels
	written := 0
	dst64 := int64(r.dstRate)

	for written < framesNeeded {
		// source position emitted*srcRate/dstRate, kept exact as a fraction
		num := r.emitted * r.srcRate
		if r.eof && num >= r.read*dst64 {
			if written == 0 {
				return 0, io.EOF
			}
			return written * r.channels, io.EOF
		}

		idx := num / dst64
		for r.base < idx {
			if err := r.advance(); err != nil {
				return written * r.channels, err
			}
		}
		// advancing may have discovered the end of the source
		if r.eof && num >= r.read*dst64 {
			continue
		}

		alpha := float32(num%dst64) / float32(dst64)
		out := dst[written*r.channels : (written+1)*r.channels]
		for c := range r.channels {
			out[c] = utils.CubicInterpolate(r.hist[0][c], r.hist[1][c], r.hist[2][c], r.hist[3][c], alpha)
		}

		written++
		r.emitted++
	}

	return written * r.channels, nil
}
