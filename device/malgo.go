// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// MalgoBackend talks to the platform audio API through miniaudio.
type MalgoBackend struct {
	logger *slog.Logger

	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initialises a miniaudio context with realtime callback
// threads.
func NewMalgoBackend(logger *slog.Logger) (*MalgoBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", "malgo")

	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, cfg, func(message string) {
		logger.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}
	return &MalgoBackend{logger: logger, ctx: ctx}, nil
}

func (b *MalgoBackend) Name() string { return "malgo" }

func (b *MalgoBackend) Devices(dir Direction) ([]Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, ErrClosed
	}

	typ := malgo.Playback
	if dir == Capture {
		typ = malgo.Capture
	}
	found, err := b.ctx.Devices(typ)
	if err != nil {
		return nil, err
	}

	infos := make([]Info, len(found))
	for i := range found {
		infos[i] = Info{
			ID:        strconv.Itoa(i),
			Name:      found[i].Name(),
			IsDefault: found[i].IsDefault != 0,
			handle:    found[i].ID,
		}
	}
	return infos, nil
}

func (b *MalgoBackend) Open(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil, ErrClosed
	}

	typ, kind := malgo.Playback, "playback"
	if cfg.Duplex() {
		typ, kind = malgo.Duplex, "duplex"
	}

	dc := malgo.DefaultDeviceConfig(typ)
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	dc.Playback.Format = malgo.FormatF32
	dc.Playback.Channels = uint32(cfg.Channels)

	s := &malgoStream{}
	if id, ok := deviceID(cfg.Playback); ok {
		s.playbackID = id
		dc.Playback.DeviceID = s.playbackID.Pointer()
	}
	if cfg.Duplex() {
		dc.Capture.Format = malgo.FormatF32
		dc.Capture.Channels = uint32(cfg.CaptureChannels)
		if id, ok := deviceID(cfg.Capture); ok {
			s.captureID = id
			dc.Capture.DeviceID = s.captureID.Pointer()
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frames uint32) {
			cb(float32View(out), float32View(in), int(frames))
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, dc, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init %s device: %w", kind, err)
	}
	s.dev = dev

	b.logger.Debug("opened stream", "duplex", cfg.Duplex(), "rate", cfg.SampleRate,
		"channels", cfg.Channels, "capture_channels", cfg.CaptureChannels, "period", cfg.PeriodFrames)
	return s, nil
}

func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

func deviceID(info *Info) (malgo.DeviceID, bool) {
	if info == nil {
		return malgo.DeviceID{}, false
	}
	id, ok := info.handle.(malgo.DeviceID)
	return id, ok
}

// float32View reinterprets a FormatF32 device buffer in place.
func float32View(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

type malgoStream struct {
	dev        *malgo.Device
	playbackID malgo.DeviceID
	captureID  malgo.DeviceID
	closed     bool
}

func (s *malgoStream) Start() error {
	if s.closed {
		return ErrClosed
	}
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	if s.closed {
		return nil
	}
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("stop device: %w", err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.dev.Uninit()
	return nil
}
