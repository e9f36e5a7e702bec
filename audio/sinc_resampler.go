// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
	"math"

	"github.com/oov/audio/resampler"
)

// SincQuality is the filter quality handed to the windowed-sinc resampler
// (0 fastest, 10 best).
const SincQuality = 10

const sincChunkFrames = 1024

// SincResampler converts sample rate with a windowed-sinc filter. It costs
// more than Resampler and has less aliasing; both produce the same number
// of frames for the same input.
type SincResampler struct {
	src      Source
	dstRate  int
	channels int
	quality  int

	rs *resampler.Resampler

	chunk   []float32
	planIn  [][]float32
	planOut [][]float32

	pending    []float32 // interleaved output not yet handed out
	pendingPos int

	read     int64 // source frames consumed
	emitted  int64 // frames produced by the filter
	returned int64 // frames handed to callers
	eof      bool
	flushed  bool
}

func NewSincResampler(src Source, dstRate int) *SincResampler {
	channels := src.Channels()
	s := &SincResampler{
		src:      src,
		dstRate:  dstRate,
		channels: channels,
		quality:  SincQuality,
		chunk:    make([]float32, sincChunkFrames*channels),
		planIn:   make([][]float32, channels),
		planOut:  make([][]float32, channels),
	}

	outLen := int(math.Ceil(float64(sincChunkFrames)*float64(dstRate)/float64(src.SampleRate()))) + 64
	for c := range channels {
		s.planIn[c] = make([]float32, sincChunkFrames)
		s.planOut[c] = make([]float32, outLen)
	}
	s.rs = resampler.New(channels, src.SampleRate(), dstRate, s.quality)

	return s
}

func (s *SincResampler) SampleRate() int { return s.dstRate }
func (s *SincResampler) Channels() int   { return s.channels }
func (s *SincResampler) BufSize() int    { return s.src.BufSize() }

func (s *SincResampler) Close() error {
	if err := s.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// expected is the frame count a source of s.read frames yields.
func (s *SincResampler) expected() int64 {
	src := int64(s.src.SampleRate())
	return (s.read*int64(s.dstRate) + src - 1) / src
}

// SeekFrame repositions to an output frame and restarts the filter.
func (s *SincResampler) SeekFrame(frame int64) error {
	dst := int64(s.dstRate)
	srcFrame := (frame*int64(s.src.SampleRate()) + dst/2) / dst
	if err := SeekFrame(s.src, srcFrame); err != nil {
		return err
	}
	s.rs = resampler.New(s.channels, s.src.SampleRate(), s.dstRate, s.quality)
	s.pending = s.pending[:0]
	s.pendingPos = 0
	s.read = 0
	s.emitted = 0
	s.returned = 0
	s.eof = false
	s.flushed = false
	return nil
}

// process runs frames interleaved samples of in through the filter and
// appends the result to pending.
func (s *SincResampler) process(in []float32, frames int) {
	for c := range s.channels {
		plane := s.planIn[c][:frames]
		for f := range frames {
			plane[f] = in[f*s.channels+c]
		}
	}

	consumed := 0
	for consumed < frames {
		var read, written int
		for c := range s.channels {
			read, written = s.rs.ProcessFloat32(c, s.planIn[c][consumed:frames], s.planOut[c])
		}
		for f := range written {
			for c := range s.channels {
				s.pending = append(s.pending, s.planOut[c][f])
			}
		}
		s.emitted += int64(written)
		if read == 0 && written == 0 {
			break
		}
		consumed += read
	}
}

func (s *SincResampler) fill() error {
	if s.eof {
		if !s.flushed {
			// push the filter tail out with silence
			clear(s.chunk)
			for s.emitted < s.expected() {
				before := s.emitted
				s.process(s.chunk, sincChunkFrames)
				if s.emitted == before {
					break
				}
			}
			s.flushed = true
		}
		return nil
	}

	n, err := s.src.ReadSamples(s.chunk)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w", err)
	}
	frames := n / s.channels
	if frames > 0 {
		s.read += int64(frames)
		s.process(s.chunk, frames)
	}
	if err == io.EOF || n == 0 {
		s.eof = true
	}
	return nil
}

func (s *SincResampler) ReadSamples(dst []float32) (int, error) {
	if len(dst)%s.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	written := 0
	for written < len(dst) {
		limit := s.expected() - s.returned
		if s.pendingPos >= len(s.pending) || (s.eof && limit <= 0) {
			if s.eof && s.flushed {
				break
			}
			s.pending = s.pending[:0]
			s.pendingPos = 0
			if err := s.fill(); err != nil {
				return written, err
			}
			continue
		}

		avail := (len(s.pending) - s.pendingPos) / s.channels
		want := (len(dst) - written) / s.channels
		frames := min(avail, want)
		if s.eof {
			frames = int(min(int64(frames), limit))
			if frames <= 0 {
				break
			}
		}

		copy(dst[written:], s.pending[s.pendingPos:s.pendingPos+frames*s.channels])
		s.pendingPos += frames * s.channels
		written += frames * s.channels
		s.returned += int64(frames)
	}

	if written == 0 && s.eof && s.flushed {
		return 0, io.EOF
	}
	return written, nil
}
