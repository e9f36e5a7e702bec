// SPDX-License-Identifier: EPL-2.0

package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ik5/padmixer/audio"
	"github.com/ik5/padmixer/formats/aiff"
	"github.com/ik5/padmixer/formats/mp3"
	"github.com/ik5/padmixer/formats/vorbis"
	"github.com/ik5/padmixer/formats/wav"
)

// DefaultRegistry knows every in-process decoder.
func DefaultRegistry() *audio.Registry {
	r := audio.NewRegistry()
	r.Register("wav", wav.Decoder{})
	r.Register("mp3", mp3.Decoder{})
	r.Register("ogg", vorbis.Decoder{})
	r.Register("aiff", aiff.Decoder{})
	return r
}

// Native decodes in process: format decoder, then resampler, then channel
// mapper.
type Native struct {
	file     *os.File
	src      audio.Source
	format   Format
	native   Format
	codec    string
	channels int
	closed   bool
}

// OpenNative opens path with the registry's decoders. resampler is
// ResamplerCubic or ResamplerSinc.
func OpenNative(reg *audio.Registry, path string, rate, channels int, resampler string) (*Native, error) {
	if rate <= 0 || channels <= 0 {
		return nil, ErrInvalidTargetFormat
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	n, err := open(reg, f, rate, channels, resampler)
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	return n, nil
}

func open(reg *audio.Registry, f *os.File, rate, channels int, resampler string) (*Native, error) {
	header := make([]byte, audio.SniffLen)
	hn, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w", err)
	}

	dec, codec, err := reg.Lookup(f.Name(), header[:hn])
	if err != nil {
		return nil, err
	}

	src, err := dec.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", codec, err)
	}
	if src.SampleRate() <= 0 || src.Channels() <= 0 {
		return nil, fmt.Errorf("%s: %w", codec, audio.ErrInvalidSampleRate)
	}

	native := Format{SampleRate: src.SampleRate(), Channels: src.Channels()}

	var chain audio.Source = src
	if native.SampleRate != rate {
		if resampler == ResamplerSinc {
			chain = audio.NewSincResampler(chain, rate)
		} else {
			chain = audio.NewResampler(chain, rate)
		}
	}
	if native.Channels != channels {
		mapper, err := audio.NewChannelMapper(chain, channels)
		if err != nil {
			return nil, err
		}
		chain = mapper
	}

	return &Native{
		file:     f,
		src:      chain,
		format:   Format{SampleRate: rate, Channels: channels},
		native:   native,
		codec:    codec,
		channels: channels,
	}, nil
}

func (n *Native) Format() Format       { return n.format }
func (n *Native) SourceFormat() Format { return n.native }
func (n *Native) Backend() string      { return "native/" + n.codec }

func (n *Native) ReadFrames(dst []float32) (int, error) {
	if n.closed {
		return 0, ErrClosed
	}
	samples := len(dst) - len(dst)%n.channels
	if samples == 0 {
		return 0, nil
	}

	got, err := n.src.ReadSamples(dst[:samples])
	frames := got / n.channels
	if errors.Is(err, io.EOF) {
		return frames, io.EOF
	}
	if err != nil {
		return frames, fmt.Errorf("%s: %w", n.Backend(), err)
	}
	return frames, nil
}

func (n *Native) SeekFrame(frame int64) error {
	if n.closed {
		return ErrClosed
	}
	return audio.SeekFrame(n.src, frame)
}

func (n *Native) Close() error {
	if n.closed {
		return nil
	}
	n.closed = true
	return errors.Join(n.src.Close(), n.file.Close())
}
