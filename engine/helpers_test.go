// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/device"
	"github.com/ik5/padmixer/internal/audiotest"
)

const period = 480

var errInjected = errors.New("injected decode failure")

type rig struct {
	t  *testing.T
	e  *Engine
	vb *device.VirtualBackend
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()

	vb := device.NewVirtualBackend([]string{"Speakers", "Headphones"}, []string{"Mic"})
	cfg.Logger = discardLogger()
	e, err := New(cfg, vb)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := e.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return &rig{t: t, e: e, vb: vb}
}

// clip writes a stereo 48 kHz constant clip and returns its path.
func (r *rig) clip(name string, frames int, value int16) string {
	r.t.Helper()
	return audiotest.WriteFile(r.t, name, audiotest.ConstantWAV16(48000, 2, frames, value))
}

func (r *rig) load(i int, path string) {
	r.t.Helper()
	if err := r.e.LoadClip(i, path); err != nil {
		r.t.Fatalf("LoadClip(%d) error = %v", i, err)
	}
}

func (r *rig) start() *device.VirtualStream {
	r.t.Helper()
	if err := r.e.StartAudioDevice(); err != nil {
		r.t.Fatalf("StartAudioDevice() error = %v", err)
	}
	vs := r.vb.Stream("Speakers")
	if vs == nil {
		r.t.Fatal("no stream on Speakers")
	}
	return vs
}

// buffered waits until slot i's current stream holds frames, or has
// decoded everything it will.
func (r *rig) buffered(i, frames int) {
	r.t.Helper()
	waitFor(r.t, func() bool {
		st := r.e.slots[i].stream.Load()
		return st != nil && (st.toMain.Available() >= frames || st.drained.Load())
	})
}

// process runs one main period with a constant mono microphone signal.
func process(t *testing.T, vs *device.VirtualStream, frames int, mic float32) []float32 {
	t.Helper()

	out := make([]float32, frames*2)
	in := make([]float32, frames)
	for i := range in {
		in[i] = mic
	}
	if !vs.Process(out, in) {
		t.Fatal("stream is not running")
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(time.Millisecond)
	}
}

// events counts engine callbacks.
type events struct {
	finished atomic.Int32
	errors   atomic.Int32
	lastErr  atomic.Pointer[error]
}

func (r *rig) watch() *events {
	ev := &events{}
	r.e.SetClipFinishedCallback(func(int) { ev.finished.Add(1) })
	r.e.SetClipErrorCallback(func(_ int, err error) {
		ev.lastErr.Store(&err)
		ev.errors.Add(1)
	})
	return ev
}

// fakeAdapter produces a constant signal and can fail or block on demand.
type fakeAdapter struct {
	frames int
	failAt int // -1 never
	value  float32
	gate   chan struct{}

	pos    int
	closed atomic.Bool
}

func (f *fakeAdapter) ReadFrames(dst []float32) (int, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.failAt >= 0 && f.pos >= f.failAt {
		return 0, errInjected
	}
	n := min(len(dst)/2, f.frames-f.pos)
	if f.failAt >= 0 {
		n = min(n, f.failAt-f.pos)
	}
	for i := range dst[:n*2] {
		dst[i] = f.value
	}
	f.pos += n
	if f.pos >= f.frames {
		return n, io.EOF
	}
	return n, nil
}

func (f *fakeAdapter) SeekFrame(frame int64) error {
	f.pos = int(frame)
	return nil
}

func (f *fakeAdapter) Format() decode.Format       { return decode.Format{SampleRate: 48000, Channels: 2} }
func (f *fakeAdapter) SourceFormat() decode.Format { return decode.Format{SampleRate: 44100, Channels: 1} }
func (f *fakeAdapter) Backend() string             { return "fake" }

func (f *fakeAdapter) Close() error {
	f.closed.Store(true)
	return nil
}

// closeHook runs onClose before closing the wrapped adapter.
type closeHook struct {
	decode.Adapter
	onClose func()
}

func (c closeHook) Close() error {
	c.onClose()
	return c.Adapter.Close()
}

// fakeOpener hands out one shared adapter; factoryOpener makes one per
// load.
type fakeOpener struct{ a decode.Adapter }

func (o fakeOpener) Open(context.Context, string, int, int) (decode.Adapter, error) {
	return o.a, nil
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type factoryOpener func() decode.Adapter

func (f factoryOpener) Open(context.Context, string, int, int) (decode.Adapter, error) {
	return f(), nil
}
