// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
)

// ChannelMapper converts a source to a different channel count.
//
// Downmixing averages every source channel that folds onto an output channel
// (source channel c lands on c mod N). Upmixing repeats source channels
// round-robin, so mono fills every output and stereo fills L,R,L,R...
// Equal counts pass through untouched.
type ChannelMapper struct {
	src      Source
	channels int
	buf      []float32
	weights  []float32
}

func NewChannelMapper(src Source, channels int) (*ChannelMapper, error) {
	if channels <= 0 {
		return nil, ErrInvalidChannels
	}

	m := &ChannelMapper{
		src:      src,
		channels: channels,
	}

	in := src.Channels()
	if in > channels {
		m.weights = make([]float32, channels)
		for c := range in {
			m.weights[c%channels]++
		}
		for i, w := range m.weights {
			m.weights[i] = 1 / w
		}
	}

	return m, nil
}

func (m *ChannelMapper) SampleRate() int { return m.src.SampleRate() }
func (m *ChannelMapper) Channels() int   { return m.channels }
func (m *ChannelMapper) BufSize() int    { return m.src.BufSize() }

func (m *ChannelMapper) Close() error {
	if err := m.src.Close(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}

// SeekFrame forwards to the source; frame counts are unchanged by mapping.
func (m *ChannelMapper) SeekFrame(frame int64) error {
	return SeekFrame(m.src, frame)
}

func (m *ChannelMapper) ReadSamples(dst []float32) (int, error) {
	if len(dst)%m.channels != 0 {
		return 0, ErrInvalidDstSize
	}

	in := m.src.Channels()
	if in == m.channels {
		return m.src.ReadSamples(dst)
	}

	frames := len(dst) / m.channels
	need := frames * in
	if cap(m.buf) < need {
		m.buf = make([]float32, need)
	}
	buf := m.buf[:need]

	n, err := m.src.ReadSamples(buf)
	got := n / in
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w", err)
	}

	if in > m.channels {
		for f := range got {
			out := dst[f*m.channels : (f+1)*m.channels]
			clear(out)
			frame := buf[f*in : (f+1)*in]
			for c, v := range frame {
				out[c%m.channels] += v
			}
			for c := range out {
				out[c] *= m.weights[c]
			}
		}
	} else {
		for f := range got {
			frame := buf[f*in : (f+1)*in]
			out := dst[f*m.channels : (f+1)*m.channels]
			for c := range out {
				out[c] = frame[c%in]
			}
		}
	}

	return got * m.channels, err
}
