// SPDX-License-Identifier: EPL-2.0

package device

import (
	"errors"
	"testing"
)

func TestCatalog_Enumerate(t *testing.T) {
	t.Parallel()

	b := NewVirtualBackend([]string{"Speakers", "Headset"}, []string{"Mic"})
	c := NewCatalog(b)

	infos, err := c.Enumerate(Playback)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d devices, want 2", len(infos))
	}
	for i, want := range []Info{
		{ID: "0", Name: "Speakers", IsDefault: true},
		{ID: "1", Name: "Headset"},
	} {
		if infos[i] != want {
			t.Errorf("device %d = %+v, want %+v", i, infos[i], want)
		}
	}
}

func TestCatalog_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		before  []string
		after   []string
		id      string
		want    string
		wantErr error
	}{
		{name: "default", before: []string{"A"}, after: []string{"A"}, id: ""},
		{name: "same list", before: []string{"A", "B"}, after: []string{"A", "B"}, id: "1", want: "B"},
		{name: "unplugged", before: []string{"A", "B"}, after: []string{"A"}, id: "1", wantErr: ErrStaleSelection},
		{name: "reordered", before: []string{"A", "B"}, after: []string{"B", "A"}, id: "0", wantErr: ErrStaleSelection},
		{name: "plugged in later", before: []string{"A"}, after: []string{"A", "B"}, id: "1", want: "B"},
		{name: "out of range", before: []string{"A"}, after: []string{"A"}, id: "7", wantErr: ErrUnknownDevice},
		{name: "not a number", before: []string{"A"}, after: []string{"A"}, id: "speakers", wantErr: ErrUnknownDevice},
		{name: "negative", before: []string{"A"}, after: []string{"A"}, id: "-1", wantErr: ErrUnknownDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := NewVirtualBackend(tt.before, nil)
			c := NewCatalog(b)
			if _, err := c.Enumerate(Playback); err != nil {
				t.Fatal(err)
			}
			b.SetDevices(Playback, tt.after)

			got, err := c.Resolve(Playback, tt.id)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.id, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("Resolve(%q) = %+v, want nil for the default", tt.id, got)
				}
				return
			}
			if got == nil || got.Name != tt.want || got.ID != tt.id {
				t.Errorf("Resolve(%q) = %+v, want %s", tt.id, got, tt.want)
			}
		})
	}
}

func TestCatalog_ResolveName(t *testing.T) {
	t.Parallel()

	c := NewCatalog(NewVirtualBackend(nil, []string{"Built-in", "USB Mic"}))

	info, err := c.ResolveName(Capture, "USB Mic")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != "1" {
		t.Errorf("ID = %q, want 1", info.ID)
	}
	if _, err := c.ResolveName(Capture, "Missing"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("ResolveName(missing) error = %v", err)
	}
}

func TestVirtual_OpenAndProcess(t *testing.T) {
	t.Parallel()

	b := NewVirtualBackend([]string{"Out", "Monitor"}, []string{"Mic"})
	c := NewCatalog(b)
	if _, err := c.Enumerate(Playback); err != nil {
		t.Fatal(err)
	}
	monitor, err := c.Resolve(Playback, "1")
	if err != nil {
		t.Fatal(err)
	}

	var calls, lastFrames int
	var lastIn []float32
	st, err := b.Open(StreamConfig{SampleRate: 48000, Channels: 2, CaptureChannels: 1, Playback: monitor},
		func(out, in []float32, frames int) {
			calls++
			lastFrames = frames
			lastIn = in
			for i := range out {
				out[i] = 0.5
			}
		})
	if err != nil {
		t.Fatal(err)
	}

	vs := b.Stream("Monitor")
	if vs == nil || vs.CaptureName() != "Mic" {
		t.Fatalf("Stream(Monitor) = %+v", vs)
	}

	out := make([]float32, 2*64)
	if vs.Process(out, make([]float32, 64)) {
		t.Error("Process ran before Start")
	}

	if err := st.Start(); err != nil {
		t.Fatal(err)
	}
	if !vs.Process(out, make([]float32, 64)) {
		t.Fatal("Process did not run after Start")
	}
	if calls != 1 || lastFrames != 64 || len(lastIn) != 64 || out[127] != 0.5 {
		t.Errorf("calls=%d frames=%d in=%d out=%v", calls, lastFrames, len(lastIn), out[127])
	}

	if err := st.Stop(); err != nil {
		t.Fatal(err)
	}
	if vs.Process(out, nil) {
		t.Error("Process ran after Stop")
	}
	_ = st.Start()
	if vs.Starts() != 2 {
		t.Errorf("Starts() = %d, want 2", vs.Starts())
	}

	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v", err)
	}
	if b.Stream("Monitor") != nil {
		t.Error("closed stream still returned")
	}
}

func TestVirtual_OpenErrors(t *testing.T) {
	t.Parallel()

	cb := func(out, in []float32, frames int) {}

	b := NewVirtualBackend([]string{"Out"}, nil)
	if _, err := b.Open(StreamConfig{SampleRate: 48000, Channels: 2, CaptureChannels: 1}, cb); !errors.Is(err, ErrNoCapture) {
		t.Errorf("duplex without capture error = %v, want ErrNoCapture", err)
	}
	if _, err := b.Open(StreamConfig{SampleRate: 0, Channels: 2}, cb); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("zero rate error = %v, want ErrInvalidConfig", err)
	}

	gone := &Info{ID: "3", Name: "Gone", handle: "Gone"}
	if _, err := b.Open(StreamConfig{SampleRate: 48000, Channels: 2, Playback: gone}, cb); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("missing endpoint error = %v, want ErrUnknownDevice", err)
	}

	injected := errors.New("boom")
	b.FailOpen(injected)
	if _, err := b.Open(StreamConfig{SampleRate: 48000, Channels: 2}, cb); !errors.Is(err, injected) {
		t.Errorf("FailOpen error = %v", err)
	}
	b.FailOpen(nil)
	if _, err := b.Open(StreamConfig{SampleRate: 48000, Channels: 2}, cb); err != nil {
		t.Errorf("Open after clearing failure: %v", err)
	}

	_ = b.Close()
	if _, err := b.Devices(Playback); !errors.Is(err, ErrClosed) {
		t.Errorf("Devices() after Close error = %v", err)
	}
}

func TestDirection_String(t *testing.T) {
	t.Parallel()

	if Playback.String() != "playback" || Capture.String() != "capture" || Direction(9).String() != "direction(9)" {
		t.Error("unexpected Direction names")
	}
}
