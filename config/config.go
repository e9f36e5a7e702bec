// SPDX-License-Identifier: EPL-2.0

// Package config loads padmixer settings from a YAML file on top of
// built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/viper"

	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/device"
	"github.com/ik5/padmixer/engine"
	"github.com/ik5/padmixer/formats/wav"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	BackendMalgo   = "malgo"
	BackendVirtual = "virtual"
)

// Devices name the endpoints to select. Each value is a catalog id or a
// device name; empty keeps the system default.
type Devices struct {
	Playback string `mapstructure:"playback"`
	Capture  string `mapstructure:"capture"`
	Monitor  string `mapstructure:"monitor"`
}

// Gains in dB.
type Gains struct {
	Mic     float32 `mapstructure:"mic"`
	Master  float32 `mapstructure:"master"`
	Monitor float32 `mapstructure:"monitor"`
}

type Mic struct {
	Enabled          bool `mapstructure:"enabled"`
	Passthrough      bool `mapstructure:"passthrough"`
	NoiseSuppression bool `mapstructure:"noisesuppression"`
}

type Recording struct {
	BitDepth int `mapstructure:"bitdepth"`
}

type History struct {
	Database string `mapstructure:"database"` // "" disables the history index
}

type Config struct {
	LogLevel        string    `mapstructure:"loglevel"`
	LogFile         string    `mapstructure:"logfile"`
	Backend         string    `mapstructure:"backend"`
	SampleRate      int       `mapstructure:"samplerate"`
	Channels        int       `mapstructure:"channels"`
	CaptureChannels int       `mapstructure:"capturechannels"`
	PeriodFrames    int       `mapstructure:"periodframes"`
	RingSeconds     float64   `mapstructure:"ringseconds"`
	Resampler       string    `mapstructure:"resampler"`
	LibAV           bool      `mapstructure:"libav"` // decode through the FFmpeg libraries when native decoders fail
	FFmpegPath      string    `mapstructure:"ffmpegpath"`
	Devices         Devices   `mapstructure:"devices"`
	Gains           Gains     `mapstructure:"gains"`
	Balance         float32   `mapstructure:"balance"`
	Mic             Mic       `mapstructure:"mic"`
	Recording       Recording `mapstructure:"recording"`
	History         History   `mapstructure:"history"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "info")
	v.SetDefault("logfile", "")
	v.SetDefault("backend", BackendMalgo)
	v.SetDefault("samplerate", engine.DefaultSampleRate)
	v.SetDefault("channels", engine.DefaultChannels)
	v.SetDefault("capturechannels", 1)
	v.SetDefault("periodframes", engine.DefaultPeriodFrames)
	v.SetDefault("ringseconds", engine.DefaultRingSeconds)
	v.SetDefault("resampler", decode.ResamplerCubic)
	v.SetDefault("libav", true)
	v.SetDefault("ffmpegpath", "ffmpeg")
	v.SetDefault("devices.playback", "")
	v.SetDefault("devices.capture", "")
	v.SetDefault("devices.monitor", "")
	v.SetDefault("gains.mic", 0)
	v.SetDefault("gains.master", 0)
	v.SetDefault("gains.monitor", 0)
	v.SetDefault("balance", 0.5)
	v.SetDefault("mic.enabled", true)
	v.SetDefault("mic.passthrough", true)
	v.SetDefault("mic.noisesuppression", false)
	v.SetDefault("recording.bitdepth", 16)
	v.SetDefault("history.database", "")
}

// Default returns the built-in settings.
func Default() Config {
	cfg, err := decodeViper(newViper())
	if err != nil {
		// the defaults are constants of this package
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func decodeViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return cfg, nil
}

// Load reads path over the defaults. A path that does not exist yields the
// defaults; any other read or parse failure is an error. An empty path
// skips the file.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := newViper()
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			logger.Info("no config file found", "configFilePath", path)
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			logger.Debug("loaded config", "configFilePath", v.ConfigFileUsed())
		}
	}

	cfg, err := decodeViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: samplerate %d", ErrInvalid, c.SampleRate)
	case c.Channels <= 0:
		return fmt.Errorf("%w: channels %d", ErrInvalid, c.Channels)
	case c.CaptureChannels <= 0:
		return fmt.Errorf("%w: capturechannels %d", ErrInvalid, c.CaptureChannels)
	case c.PeriodFrames <= 0:
		return fmt.Errorf("%w: periodframes %d", ErrInvalid, c.PeriodFrames)
	case int(c.RingSeconds*float64(c.SampleRate)) < c.PeriodFrames:
		return fmt.Errorf("%w: ringseconds %v is shorter than one period", ErrInvalid, c.RingSeconds)
	case c.Balance < 0 || c.Balance > 1:
		return fmt.Errorf("%w: balance %v outside [0, 1]", ErrInvalid, c.Balance)
	case !wav.ValidBitDepth(c.Recording.BitDepth):
		return fmt.Errorf("%w: recording.bitdepth %d", ErrInvalid, c.Recording.BitDepth)
	case c.Resampler != decode.ResamplerCubic && c.Resampler != decode.ResamplerSinc:
		return fmt.Errorf("%w: resampler %q", ErrInvalid, c.Resampler)
	case c.Backend != BackendMalgo && c.Backend != BackendVirtual:
		return fmt.Errorf("%w: backend %q", ErrInvalid, c.Backend)
	}
	return nil
}

// Engine returns the engine settings carried by c.
func (c Config) Engine(logger *slog.Logger) engine.Config {
	return engine.Config{
		SampleRate:      c.SampleRate,
		Channels:        c.Channels,
		CaptureChannels: c.CaptureChannels,
		PeriodFrames:    c.PeriodFrames,
		RingSeconds:     c.RingSeconds,
		RecordBitDepth:  c.Recording.BitDepth,
		Resampler:       c.Resampler,
		FFmpegPath:      c.FFmpegPath,
		Logger:          logger,
	}
}

// Apply pushes the runtime settings (gains, balance, mic switches and device
// selections) into e.
func (c Config) Apply(e *engine.Engine) error {
	e.SetMicGainDb(c.Gains.Mic)
	e.SetMasterGainDb(c.Gains.Master)
	e.SetMonitorGainDb(c.Gains.Monitor)
	e.SetBalance(c.Balance)
	e.SetMicEnabled(c.Mic.Enabled)
	e.SetMicPassthrough(c.Mic.Passthrough)
	e.SetNoiseSuppression(c.Mic.NoiseSuppression)

	selections := []struct {
		key    string
		value  string
		dir    device.Direction
		choose func(string) error
	}{
		{"devices.playback", c.Devices.Playback, device.Playback, e.SetPlaybackDevice},
		{"devices.capture", c.Devices.Capture, device.Capture, e.SetCaptureDevice},
		{"devices.monitor", c.Devices.Monitor, device.Playback, e.SetMonitorDevice},
	}
	for _, sel := range selections {
		if sel.value == "" {
			continue
		}
		id, err := deviceID(e, sel.dir, sel.value)
		if err != nil {
			return fmt.Errorf("%s: %w", sel.key, err)
		}
		if err := sel.choose(id); err != nil {
			return fmt.Errorf("%s: %w", sel.key, err)
		}
	}
	return nil
}

// deviceID turns a configured name into a catalog id. Numeric values are
// taken as ids already.
func deviceID(e *engine.Engine, dir device.Direction, value string) (string, error) {
	var (
		infos []device.Info
		err   error
	)
	if dir == device.Capture {
		infos, err = e.EnumerateCaptureDevices()
	} else {
		infos, err = e.EnumeratePlaybackDevices()
	}
	if err != nil {
		return "", err
	}

	if _, err := strconv.Atoi(value); err == nil {
		return value, nil
	}
	for _, info := range infos {
		if info.Name == value {
			return info.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", device.ErrUnknownDevice, value)
}
