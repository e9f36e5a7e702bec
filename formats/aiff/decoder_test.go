// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/bits"
	"testing"

	goaudio "github.com/go-audio/audio"

	"github.com/ik5/padmixer/audio"
)

// mockAiffReader simulates the aiff.Decoder for testing
type mockAiffReader struct {
	sampleRate   int
	channels     int
	samples      []int
	offset       int
	returnErrors bool
}

func (m *mockAiffReader) Format() *goaudio.Format {
	return &goaudio.Format{
		SampleRate:  m.sampleRate,
		NumChannels: m.channels,
	}
}

func (m *mockAiffReader) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	if m.returnErrors {
		return 0, io.ErrUnexpectedEOF
	}
	if m.offset >= len(m.samples) {
		return 0, io.EOF
	}

	n := copy(buf.Data, m.samples[m.offset:])
	m.offset += n
	return n, nil
}

// extended encodes an integer rate as an IEEE 754 80-bit extended float.
func extended(rate int) []byte {
	out := make([]byte, 10)
	e := 63 - bits.LeadingZeros64(uint64(rate))
	binary.BigEndian.PutUint16(out[0:2], uint16(16383+e))
	binary.BigEndian.PutUint64(out[2:10], uint64(rate)<<(63-e))
	return out
}

// aiffFile builds a minimal 16-bit AIFF with COMM and SSND chunks.
func aiffFile(sampleRate, channels int, samples []int16) []byte {
	comm := new(bytes.Buffer)
	_ = binary.Write(comm, binary.BigEndian, int16(channels))
	_ = binary.Write(comm, binary.BigEndian, uint32(len(samples)/channels))
	_ = binary.Write(comm, binary.BigEndian, int16(16))
	comm.Write(extended(sampleRate))

	ssnd := new(bytes.Buffer)
	_ = binary.Write(ssnd, binary.BigEndian, uint32(0)) // offset
	_ = binary.Write(ssnd, binary.BigEndian, uint32(0)) // block size
	_ = binary.Write(ssnd, binary.BigEndian, samples)

	body := new(bytes.Buffer)
	body.WriteString("AIFF")
	body.WriteString("COMM")
	_ = binary.Write(body, binary.BigEndian, uint32(comm.Len()))
	body.Write(comm.Bytes())
	body.WriteString("SSND")
	_ = binary.Write(body, binary.BigEndian, uint32(ssnd.Len()))
	body.Write(ssnd.Bytes())

	out := new(bytes.Buffer)
	out.WriteString("FORM")
	_ = binary.Write(out, binary.BigEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestExtended(t *testing.T) {
	t.Parallel()

	// 44100 Hz, as written by every AIFF encoder
	want := []byte{0x40, 0x0E, 0xAC, 0x44, 0, 0, 0, 0, 0, 0}
	if got := extended(44100); !bytes.Equal(got, want) {
		t.Errorf("extended(44100) = % x, want % x", got, want)
	}
}

func TestDecoder_InvalidInput(t *testing.T) {
	t.Parallel()

	for name, data := range map[string][]byte{
		"text":  []byte("This is not AIFF data"),
		"empty": {},
	} {
		if _, err := (Decoder{}).Decode(bytes.NewReader(data)); err == nil {
			t.Errorf("%s: Decode() error = nil, want error", name)
		}
	}
}

func TestDecoder_File(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 200)
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	data := aiffFile(22050, 2, samples)

	src, err := Decoder{}.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if src.SampleRate() != 22050 || src.Channels() != 2 {
		t.Fatalf("format = %d Hz %d ch, want 22050 Hz 2 ch", src.SampleRate(), src.Channels())
	}

	buf := make([]float32, 64)
	var got []float32
	for {
		n, err := src.ReadSamples(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadSamples() error = %v", err)
		}
	}
	if len(got) != len(samples) {
		t.Fatalf("read %d samples, want %d", len(got), len(samples))
	}
	if want := float32(199*100) / 32768; got[199] != want {
		t.Errorf("last sample = %v, want %v", got[199], want)
	}

	if err := audio.SeekFrame(src, 50); err != nil {
		t.Fatalf("SeekFrame() error = %v", err)
	}
	if _, err := src.ReadSamples(buf[:2]); err != nil {
		t.Fatal(err)
	}
	if want := float32(100*100) / 32768; buf[0] != want {
		t.Errorf("sample after seek = %v, want %v", buf[0], want)
	}
}

func TestSource_ReadSamples(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bitDepth int
		in       []int
		want     []float32
	}{
		{name: "8-bit", bitDepth: 8, in: []int{-128, 64}, want: []float32{-1, 0.5}},
		{name: "16-bit", bitDepth: 16, in: []int{-32768, 16384}, want: []float32{-1, 0.5}},
		{name: "24-bit", bitDepth: 24, in: []int{-8388608, 4194304}, want: []float32{-1, 0.5}},
		{name: "32-bit", bitDepth: 32, in: []int{-2147483648, 1073741824}, want: []float32{-1, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := &source{
				dec:        &mockAiffReader{sampleRate: 8000, channels: 1, samples: tt.in},
				sampleRate: 8000,
				channels:   1,
				bitDepth:   tt.bitDepth,
			}
			dst := make([]float32, 4)
			n, err := src.ReadSamples(dst)
			if err != io.EOF {
				t.Errorf("short read error = %v, want io.EOF", err)
			}
			if n != len(tt.want) {
				t.Fatalf("n = %d, want %d", n, len(tt.want))
			}
			for i, w := range tt.want {
				if dst[i] != w {
					t.Errorf("dst[%d] = %v, want %v", i, dst[i], w)
				}
			}
		})
	}
}

func TestSource_Errors(t *testing.T) {
	t.Parallel()

	src := &source{
		dec:        &mockAiffReader{sampleRate: 8000, channels: 1, returnErrors: true},
		sampleRate: 8000,
		channels:   1,
		bitDepth:   16,
	}
	if _, err := src.ReadSamples(make([]float32, 4)); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadSamples() error = %v, want ErrUnexpectedEOF", err)
	}
	if err := src.SeekFrame(0); !errors.Is(err, audio.ErrNotSeekable) {
		t.Errorf("SeekFrame() without reopen error = %v, want ErrNotSeekable", err)
	}
	if n, err := src.ReadSamples(nil); n != 0 || err != nil {
		t.Errorf("empty dst = %d, %v", n, err)
	}
}
