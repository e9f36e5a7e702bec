// SPDX-License-Identifier: EPL-2.0

package device

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// VirtualBackend is an in-memory audio subsystem. Nothing calls its
// streams' callbacks on its own: the owner drives them with
// VirtualStream.Process, which makes mixing deterministic and testable
// without hardware.
type VirtualBackend struct {
	mu       sync.Mutex
	devices  map[Direction][]string
	streams  []*VirtualStream
	failOpen error
	closed   bool
}

// NewVirtualBackend creates a backend with the named endpoints. The first
// name in each list is the default.
func NewVirtualBackend(playback, capture []string) *VirtualBackend {
	return &VirtualBackend{
		devices: map[Direction][]string{
			Playback: slices.Clone(playback),
			Capture:  slices.Clone(capture),
		},
	}
}

func (b *VirtualBackend) Name() string { return "virtual" }

// SetDevices replaces the endpoint list, as if devices were plugged in or
// removed.
func (b *VirtualBackend) SetDevices(dir Direction, names []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[dir] = slices.Clone(names)
}

// FailOpen makes every following Open return err. nil clears it.
func (b *VirtualBackend) FailOpen(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOpen = err
}

func (b *VirtualBackend) Devices(dir Direction) ([]Info, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	names := b.devices[dir]
	infos := make([]Info, len(names))
	for i, name := range names {
		infos[i] = Info{ID: strconv.Itoa(i), Name: name, IsDefault: i == 0, handle: name}
	}
	return infos, nil
}

func (b *VirtualBackend) endpoint(dir Direction, info *Info) (string, error) {
	names := b.devices[dir]
	if info == nil {
		if len(names) == 0 {
			if dir == Capture {
				return "", ErrNoCapture
			}
			return "", fmt.Errorf("%w: no %s devices", ErrUnknownDevice, dir)
		}
		return names[0], nil
	}
	name, _ := info.handle.(string)
	if !slices.Contains(names, name) {
		return "", fmt.Errorf("%w: %s device %q", ErrUnknownDevice, dir, name)
	}
	return name, nil
}

func (b *VirtualBackend) Open(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.failOpen != nil {
		return nil, b.failOpen
	}

	playback, err := b.endpoint(Playback, cfg.Playback)
	if err != nil {
		return nil, err
	}
	var capture string
	if cfg.Duplex() {
		if capture, err = b.endpoint(Capture, cfg.Capture); err != nil {
			return nil, err
		}
	}

	s := &VirtualStream{cfg: cfg, playback: playback, capture: capture, cb: cb}
	b.streams = append(b.streams, s)
	return s, nil
}

// Streams returns every stream opened so far, oldest first.
func (b *VirtualBackend) Streams() []*VirtualStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.streams)
}

// Stream returns the newest open stream playing to the named endpoint, or
// nil.
func (b *VirtualBackend) Stream(playback string) *VirtualStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range slices.Backward(b.streams) {
		if s.playback == playback && !s.Closed() {
			return s
		}
	}
	return nil
}

func (b *VirtualBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// VirtualStream is a stream opened on a VirtualBackend.
type VirtualStream struct {
	cfg      StreamConfig
	playback string
	capture  string
	cb       Callback

	mu      sync.Mutex
	running bool
	closed  bool
	starts  int
}

func (s *VirtualStream) Config() StreamConfig { return s.cfg }
func (s *VirtualStream) PlaybackName() string { return s.playback }

// CaptureName is empty for playback-only streams.
func (s *VirtualStream) CaptureName() string { return s.capture }

func (s *VirtualStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *VirtualStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Starts counts successful Start calls.
func (s *VirtualStream) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Process runs one period through the callback if the stream is running.
// out holds the frames to render; in, when the stream is duplex, holds
// len(out)/Channels frames of capture. A nil in on a duplex stream is
// passed through as is. Stop waits for a Process in flight, as a hardware
// stop waits for its callback.
func (s *VirtualStream) Process(out, in []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	if !s.cfg.Duplex() {
		in = nil
	}
	s.cb(out, in, len(out)/s.cfg.Channels)
	return true
}

func (s *VirtualStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.running {
		s.running = true
		s.starts++
	}
	return nil
}

func (s *VirtualStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

func (s *VirtualStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.closed = true
	return nil
}
