// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"

	goaudio "github.com/go-audio/audio"

	"github.com/ik5/padmixer/audio"
	"github.com/ik5/padmixer/internal/audiotest"
)

// mockWavReader simulates the gowav.Decoder for testing
type mockWavReader struct {
	samples []int
	offset  int
	rewinds int
	failErr error
}

func (m *mockWavReader) Format() *goaudio.Format {
	return &goaudio.Format{NumChannels: 1, SampleRate: 8000}
}

func (m *mockWavReader) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	if m.failErr != nil {
		return 0, m.failErr
	}
	n := copy(buf.Data, m.samples[m.offset:])
	m.offset += n
	return n, nil
}

func (m *mockWavReader) Rewind() error {
	m.rewinds++
	m.offset = 0
	return nil
}

func readAll(t *testing.T, src audio.Source) []float32 {
	t.Helper()

	var out []float32
	buf := make([]float32, 64*src.Channels())
	for {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadSamples() error = %v", err)
		}
	}
}

func TestDecoder_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rate     int
		channels int
		samples  []int16
	}{
		{name: "mono", rate: 8000, channels: 1, samples: []int16{0, 100, 200, -100, -200, 0}},
		{name: "stereo", rate: 44100, channels: 2, samples: []int16{100, 200, 300, 400, 500, 600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := audiotest.WAV16(tt.rate, tt.channels, tt.samples)
			src, err := Decoder{}.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}

			if src.SampleRate() != tt.rate {
				t.Errorf("SampleRate() = %d, want %d", src.SampleRate(), tt.rate)
			}
			if src.Channels() != tt.channels {
				t.Errorf("Channels() = %d, want %d", src.Channels(), tt.channels)
			}

			got := readAll(t, src)
			if len(got) != len(tt.samples) {
				t.Fatalf("read %d samples, want %d", len(got), len(tt.samples))
			}
			for i, s := range tt.samples {
				if want := float32(s) / 32768; got[i] != want {
					t.Errorf("sample %d = %v, want %v", i, got[i], want)
				}
			}
		})
	}
}

func TestDecoder_NonSeekableReader(t *testing.T) {
	t.Parallel()

	data := audiotest.ConstantWAV16(16000, 1, 100, 16384)
	src, err := Decoder{}.Decode(io.MultiReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := readAll(t, src); len(got) != 100 || got[0] != 0.5 {
		t.Errorf("read %d samples, first %v", len(got), got[0])
	}
}

func TestDecoder_Rejects(t *testing.T) {
	t.Parallel()

	float32WAV := audiotest.WAV16(8000, 1, []int16{1, 2})
	float32WAV[20] = 3 // IEEE float format tag

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "not riff", data: []byte("NOT A WAV FILE DATA AT ALL, SORRY"), want: ErrNotWavFile},
		{name: "truncated", data: []byte("RIFF\x00"), want: ErrNotWavFile},
		{name: "float format", data: float32WAV, want: ErrUnsupportedWavLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decoder{}.Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSource_SeekFrame(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 2000)
	for i := range samples {
		samples[i] = int16(i)
	}
	src, err := Decoder{}.Decode(bytes.NewReader(audiotest.WAV16(8000, 2, samples)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	seeker := src.(audio.Seeker)

	_ = readAll(t, src)

	if err := seeker.SeekFrame(0); err != nil {
		t.Fatalf("SeekFrame(0) error = %v", err)
	}
	if got := readAll(t, src); len(got) != 2000 {
		t.Fatalf("after rewind read %d samples, want 2000", len(got))
	}

	if err := seeker.SeekFrame(250); err != nil {
		t.Fatalf("SeekFrame(250) error = %v", err)
	}
	buf := make([]float32, 2)
	if _, err := src.ReadSamples(buf); err != nil {
		t.Fatalf("ReadSamples() error = %v", err)
	}
	if want := float32(500) / 32768; buf[0] != want {
		t.Errorf("first sample after seek = %v, want %v", buf[0], want)
	}

	if err := seeker.SeekFrame(5000); err != nil {
		t.Fatalf("SeekFrame past end error = %v", err)
	}
	if n, err := src.ReadSamples(buf); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("read past end = %d, %v, want 0, EOF", n, err)
	}
}

func TestSource_Mock(t *testing.T) {
	t.Parallel()

	t.Run("unsigned 8-bit", func(t *testing.T) {
		t.Parallel()

		src := &source{dec: &mockWavReader{samples: []int{0, 128, 255}}, sampleRate: 8000, channels: 1, bitDepth: 8}
		got := readAll(t, src)
		want := []float32{-1, 0, 127.0 / 128}
		for i := range want {
			if math.Abs(float64(got[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
			}
		}
	})

	t.Run("24-bit", func(t *testing.T) {
		t.Parallel()

		src := &source{dec: &mockWavReader{samples: []int{-8388608, 4194304}}, sampleRate: 8000, channels: 1, bitDepth: 24}
		got := readAll(t, src)
		if got[0] != -1 || got[1] != 0.5 {
			t.Errorf("samples = %v, want [-1 0.5]", got)
		}
	})

	t.Run("decoder error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		src := &source{dec: &mockWavReader{failErr: boom}, sampleRate: 8000, channels: 1, bitDepth: 16}
		if _, err := src.ReadSamples(make([]float32, 4)); !errors.Is(err, boom) {
			t.Errorf("ReadSamples() error = %v, want boom", err)
		}
	})

	t.Run("seek rewinds", func(t *testing.T) {
		t.Parallel()

		m := &mockWavReader{samples: make([]int, 100)}
		src := &source{dec: m, sampleRate: 8000, channels: 1, bitDepth: 16}
		if err := src.SeekFrame(10); err != nil {
			t.Fatalf("SeekFrame() error = %v", err)
		}
		if m.rewinds != 1 || m.offset != 10 {
			t.Errorf("rewinds = %d offset = %d, want 1 and 10", m.rewinds, m.offset)
		}
		if err := src.SeekFrame(-1); !errors.Is(err, audio.ErrNegativeSeekOffset) {
			t.Errorf("SeekFrame(-1) error = %v", err)
		}
	})
}

func BenchmarkSource_ReadSamples(b *testing.B) {
	data := audiotest.ConstantWAV16(48000, 2, 48000, 1000)
	buf := make([]float32, 960)

	b.ReportAllocs()
	for range b.N {
		src, err := Decoder{}.Decode(bytes.NewReader(data))
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := src.ReadSamples(buf); err != nil {
				break
			}
		}
	}
}
