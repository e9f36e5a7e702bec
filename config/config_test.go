// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ik5/padmixer/device"
	"github.com/ik5/padmixer/engine"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "padmixer.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.SampleRate != 48000 || cfg.Channels != 2 || cfg.PeriodFrames != 480 {
		t.Errorf("format defaults = %d/%d/%d", cfg.SampleRate, cfg.Channels, cfg.PeriodFrames)
	}
	if cfg.Balance != 0.5 || !cfg.Mic.Enabled || !cfg.Mic.Passthrough || cfg.Mic.NoiseSuppression {
		t.Errorf("mix defaults = %+v %+v", cfg.Balance, cfg.Mic)
	}
	if cfg.Recording.BitDepth != 16 || cfg.Backend != BackendMalgo || cfg.Resampler != "cubic" || !cfg.LibAV {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
loglevel: debug
backend: virtual
samplerate: 44100
ringseconds: 0.5
resampler: sinc
libav: false
devices:
  playback: Headphones
  monitor: "1"
gains:
  mic: -6
  master: -1.5
balance: 0.25
mic:
  passthrough: false
  noisesuppression: true
recording:
  bitdepth: 24
history:
  database: /tmp/padmixer.db
`)

	cfg, err := Load(path, quiet())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Backend != BackendVirtual || cfg.SampleRate != 44100 {
		t.Errorf("top level = %+v", cfg)
	}
	if cfg.LibAV || cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("decoder fallbacks = %v %q", cfg.LibAV, cfg.FFmpegPath)
	}
	if cfg.Channels != 2 || cfg.PeriodFrames != 480 {
		t.Errorf("unset keys lost their defaults: %+v", cfg)
	}
	if cfg.Devices.Playback != "Headphones" || cfg.Devices.Monitor != "1" || cfg.Devices.Capture != "" {
		t.Errorf("Devices = %+v", cfg.Devices)
	}
	if cfg.Gains.Mic != -6 || cfg.Gains.Master != -1.5 || cfg.Gains.Monitor != 0 {
		t.Errorf("Gains = %+v", cfg.Gains)
	}
	if cfg.Balance != 0.25 || !cfg.Mic.Enabled || cfg.Mic.Passthrough || !cfg.Mic.NoiseSuppression {
		t.Errorf("mix = %v %+v", cfg.Balance, cfg.Mic)
	}
	if cfg.Recording.BitDepth != 24 || cfg.History.Database != "/tmp/padmixer.db" {
		t.Errorf("recording/history = %+v %+v", cfg.Recording, cfg.History)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), quiet())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(missing) = %+v, want defaults", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "broken yaml", body: "samplerate: [48000\n"},
		{name: "bad balance", body: "balance: 1.5\n"},
		{name: "bad bit depth", body: "recording:\n  bitdepth: 8\n"},
		{name: "short ring", body: "ringseconds: 0.001\n"},
		{name: "bad backend", body: "backend: jack\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Load(writeConfig(t, tt.body), quiet()); err == nil {
				t.Error("Load() succeeded")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "rate", mutate: func(c *Config) { c.SampleRate = 0 }},
		{name: "channels", mutate: func(c *Config) { c.Channels = -1 }},
		{name: "capture channels", mutate: func(c *Config) { c.CaptureChannels = 0 }},
		{name: "period", mutate: func(c *Config) { c.PeriodFrames = 0 }},
		{name: "negative balance", mutate: func(c *Config) { c.Balance = -0.1 }},
		{name: "resampler", mutate: func(c *Config) { c.Resampler = "linear" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Recording.BitDepth = 32
	cfg.FFmpegPath = ""
	ec := cfg.Engine(quiet())
	if ec.SampleRate != 48000 || ec.Channels != 2 || ec.CaptureChannels != 1 ||
		ec.RecordBitDepth != 32 || ec.FFmpegPath != "" || ec.Resampler != "cubic" {
		t.Errorf("Engine() = %+v", ec)
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	vb := device.NewVirtualBackend([]string{"Speakers", "Headphones"}, []string{"Mic", "Line In"})
	e, err := engine.New(engine.Config{Logger: quiet()}, vb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })

	cfg := Default()
	cfg.Gains = Gains{Mic: -6, Master: -3, Monitor: -12}
	cfg.Balance = 0.8
	cfg.Mic = Mic{Enabled: true, Passthrough: false, NoiseSuppression: true}
	cfg.Devices = Devices{Playback: "Headphones", Capture: "1", Monitor: "Speakers"}

	if err := cfg.Apply(e); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if e.MicGainDb() != -6 || e.MasterGainDb() != -3 || e.MonitorGainDb() != -12 || e.Balance() != 0.8 {
		t.Errorf("gains = %v %v %v %v", e.MicGainDb(), e.MasterGainDb(), e.MonitorGainDb(), e.Balance())
	}
	if e.MicPassthrough() || !e.NoiseSuppression() {
		t.Error("mic switches were not applied")
	}

	if err := e.StartAudioDevice(); err != nil {
		t.Fatal(err)
	}
	vs := vb.Stream("Headphones")
	if vs == nil || vs.CaptureName() != "Line In" {
		t.Fatalf("main stream = %+v, want Headphones with Line In", vs)
	}
	if err := e.StartMonitorDevice(); err != nil {
		t.Fatal(err)
	}
	if vb.Stream("Speakers") == nil {
		t.Error("monitor did not open Speakers")
	}
}

func TestApply_UnknownDevice(t *testing.T) {
	t.Parallel()

	vb := device.NewVirtualBackend([]string{"Speakers"}, []string{"Mic"})
	e, err := engine.New(engine.Config{Logger: quiet()}, vb)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Close() })

	cfg := Default()
	cfg.Devices.Playback = "Studio Monitors"
	if err := cfg.Apply(e); !errors.Is(err, device.ErrUnknownDevice) {
		t.Errorf("Apply() error = %v, want ErrUnknownDevice", err)
	}

	cfg.Devices.Playback = "7"
	if err := cfg.Apply(e); !errors.Is(err, engine.ErrDeviceSelection) {
		t.Errorf("Apply() error = %v, want ErrDeviceSelection", err)
	}
}
