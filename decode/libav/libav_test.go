// SPDX-License-Identifier: EPL-2.0

package libav

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/internal/audiotest"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func constant(frames int, v float32) []float32 {
	out := make([]float32, frames)
	for i := range out {
		out[i] = v
	}
	return out
}

func readAll(t *testing.T, a decode.Adapter, chunk int) []float32 {
	t.Helper()

	var out []float32
	buf := make([]float32, chunk*a.Format().Channels)
	for range 1 << 20 {
		n, err := a.ReadFrames(buf)
		out = append(out, buf[:n*a.Format().Channels]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadFrames() error = %v", err)
		}
	}
	t.Fatal("decoder never reached EOF")
	return nil
}

func TestOpen_FloatWAV(t *testing.T) {
	t.Parallel()

	path := audiotest.WriteFile(t, "float.wav", audiotest.FloatWAV(8000, 1, constant(8000, 0.5)))
	d, err := Open(context.Background(), path, 8000, 2, quiet())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if !strings.HasPrefix(d.Backend(), "libav/") {
		t.Errorf("Backend() = %q", d.Backend())
	}
	if src := d.SourceFormat(); src.SampleRate != 8000 || src.Channels != 1 {
		t.Errorf("SourceFormat() = %+v", src)
	}
	if f := d.Format(); f.SampleRate != 8000 || f.Channels != 2 {
		t.Errorf("Format() = %+v", f)
	}

	out := readAll(t, d, 333)
	if frames := len(out) / 2; frames != 8000 {
		t.Errorf("frames = %d, want 8000", frames)
	}
	for _, i := range []int{0, 1, 100, len(out) - 1} {
		if math.Abs(float64(out[i]-0.5)) > 1e-5 {
			t.Errorf("sample %d = %v, want 0.5", i, out[i])
		}
	}

	// EOF is sticky
	if n, err := d.ReadFrames(make([]float32, 64)); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrames() after EOF = %d, %v", n, err)
	}
}

func TestDecoder_Seek(t *testing.T) {
	t.Parallel()

	samples := make([]float32, 8000)
	for i := range samples {
		samples[i] = float32(i) / 8000
	}
	path := audiotest.WriteFile(t, "ramp.wav", audiotest.FloatWAV(8000, 1, samples))
	d, err := Open(context.Background(), path, 8000, 1, quiet())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	tests := []struct {
		name  string
		frame int64
	}{
		{name: "middle", frame: 4000},
		{name: "start", frame: 0},
		{name: "near end", frame: 7000},
	}
	for _, tt := range tests {
		if err := d.SeekFrame(tt.frame); err != nil {
			t.Fatalf("%s: SeekFrame(%d) error = %v", tt.name, tt.frame, err)
		}
		rest := readAll(t, d, 256)
		if want := 8000 - int(tt.frame); math.Abs(float64(len(rest)-want)) > 32 {
			t.Errorf("%s: frames after seek = %d, want about %d", tt.name, len(rest), want)
		}
		if len(rest) > 0 && math.Abs(float64(rest[0])-float64(tt.frame)/8000) > 0.005 {
			t.Errorf("%s: first sample = %v, want about %v", tt.name, rest[0], float64(tt.frame)/8000)
		}
	}

	if err := d.SeekFrame(-1); err == nil {
		t.Error("SeekFrame(-1) succeeded")
	}
}

func TestDecoder_Resample(t *testing.T) {
	t.Parallel()

	path := audiotest.WriteFile(t, "float.wav", audiotest.FloatWAV(8000, 2, constant(16000, 0.25)))
	d, err := Open(context.Background(), path, 16000, 1, quiet())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	out := readAll(t, d, 1000)
	if math.Abs(float64(len(out)-16000)) > 64 {
		t.Errorf("frames = %d, want about 16000", len(out))
	}
	if v := out[len(out)/2]; math.Abs(float64(v-0.25)) > 0.01 {
		t.Errorf("mid sample = %v, want about 0.25", v)
	}
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	junk := audiotest.WriteFile(t, "junk.bin", bytes.Repeat([]byte{0x13, 0x37}, 512))
	ok := audiotest.WriteFile(t, "ok.wav", audiotest.FloatWAV(8000, 1, constant(80, 0)))
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		path string
		rate int
		want error
	}{
		{name: "missing", ctx: context.Background(), path: filepath.Join(t.TempDir(), "nope.flac"), rate: 48000, want: fs.ErrNotExist},
		{name: "junk", ctx: context.Background(), path: junk, rate: 48000, want: ErrOpen},
		{name: "bad target", ctx: context.Background(), path: ok, rate: 0, want: decode.ErrInvalidTargetFormat},
		{name: "canceled", ctx: canceled, path: ok, rate: 48000, want: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Open(tt.ctx, tt.path, tt.rate, 2, quiet())
			if err == nil {
				_ = d.Close()
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecoder_Closed(t *testing.T) {
	t.Parallel()

	path := audiotest.WriteFile(t, "float.wav", audiotest.FloatWAV(8000, 1, constant(80, 0)))
	d, err := Open(context.Background(), path, 8000, 1, quiet())
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := d.ReadFrames(make([]float32, 4)); !errors.Is(err, decode.ErrClosed) {
		t.Errorf("ReadFrames() after Close error = %v", err)
	}
	if err := d.SeekFrame(0); !errors.Is(err, decode.ErrClosed) {
		t.Errorf("SeekFrame() after Close error = %v", err)
	}
}

func TestNativeThenLibrary(t *testing.T) {
	t.Parallel()

	float := audiotest.WriteFile(t, "float.wav", audiotest.FloatWAV(8000, 1, constant(800, 0.5)))
	pcm := audiotest.WriteFile(t, "pcm.wav", audiotest.ConstantWAV16(8000, 1, 800, 0))
	p := decode.NewProber(decode.Options{Library: Opener(quiet()), Logger: quiet()})

	tests := []struct {
		path   string
		prefix string
	}{
		{path: pcm, prefix: "native/"},
		{path: float, prefix: "libav/"},
	}
	for _, tt := range tests {
		a, err := p.Open(context.Background(), tt.path, 48000, 2)
		if err != nil {
			t.Fatalf("Open(%s) error = %v", filepath.Base(tt.path), err)
		}
		if !strings.HasPrefix(a.Backend(), tt.prefix) {
			t.Errorf("Open(%s) backend = %q, want %s*", filepath.Base(tt.path), a.Backend(), tt.prefix)
		}
		_ = a.Close()
	}
}

func BenchmarkDecoder_ReadFrames(b *testing.B) {
	path := audiotest.WriteFile(b, "float.wav", audiotest.FloatWAV(48000, 2, constant(96000, 0.1)))
	d, err := Open(context.Background(), path, 48000, 2, quiet())
	if err != nil {
		b.Fatal(err)
	}
	defer d.Close()

	buf := make([]float32, 1024*2)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := d.ReadFrames(buf); errors.Is(err, io.EOF) {
			if err := d.SeekFrame(0); err != nil {
				b.Fatal(err)
			}
		} else if err != nil {
			b.Fatal(err)
		}
	}
}
