// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ik5/padmixer/device"
)

// output is one of the engine's two devices. running is read by callbacks
// and decoders; the rest is guarded by Engine.mu.
type output struct {
	name    string
	running atomic.Bool

	stream   device.Stream
	playback *device.Info
	capture  *device.Info
	duplex   bool
}

func (e *Engine) EnumeratePlaybackDevices() ([]device.Info, error) {
	return e.catalog.Enumerate(device.Playback)
}

func (e *Engine) EnumerateCaptureDevices() ([]device.Info, error) {
	return e.catalog.Enumerate(device.Capture)
}

// SetPlaybackDevice selects the main output by id from the last
// enumeration. "" selects the system default. A running main device is
// restarted on the new endpoint.
func (e *Engine) SetPlaybackDevice(id string) error {
	info, err := e.catalog.Resolve(device.Playback, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceSelection, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.main.playback = info
	return e.restart(&e.main, e.startMain)
}

// SetCaptureDevice selects the microphone by id. A running main device is
// restarted.
func (e *Engine) SetCaptureDevice(id string) error {
	info, err := e.catalog.Resolve(device.Capture, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceSelection, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.main.capture = info
	return e.restart(&e.main, e.startMain)
}

// SetMonitorDevice selects the monitor output by id. A running monitor is
// restarted; the main device is not touched.
func (e *Engine) SetMonitorDevice(id string) error {
	info, err := e.catalog.Resolve(device.Playback, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceSelection, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.monitor.playback = info
	return e.restart(&e.monitor, e.startMonitor)
}

func (e *Engine) StartAudioDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.startMain()
}

func (e *Engine) StopAudioDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopOutput(&e.main)
}

func (e *Engine) AudioDeviceRunning() bool { return e.main.running.Load() }

// AudioDeviceDuplex reports whether the running main device captures the
// microphone. It is false after a playback-only fallback.
func (e *Engine) AudioDeviceDuplex() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.main.stream != nil && e.main.duplex
}

func (e *Engine) StartMonitorDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.startMonitor()
}

func (e *Engine) StopMonitorDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopOutput(&e.monitor)
}

func (e *Engine) MonitorDeviceRunning() bool { return e.monitor.running.Load() }

func (e *Engine) streamConfig(o *output, duplex bool) device.StreamConfig {
	cfg := device.StreamConfig{
		SampleRate:   e.cfg.SampleRate,
		Channels:     e.cfg.Channels,
		PeriodFrames: e.cfg.PeriodFrames,
		Playback:     o.playback,
	}
	if duplex {
		cfg.CaptureChannels = e.cfg.CaptureChannels
		cfg.Capture = o.capture
	}
	return cfg
}

func (e *Engine) startMain() error {
	if e.main.stream != nil {
		return nil
	}

	st, err := e.backend.Open(e.streamConfig(&e.main, true), e.processMain)
	if err == nil {
		return e.startOutput(&e.main, st, true)
	}

	e.logger.Warn("cannot open main device as duplex, continuing without microphone", "error", err)
	st, perr := e.backend.Open(e.streamConfig(&e.main, false), e.processMain)
	if perr != nil {
		return fmt.Errorf("%w: main: %w", ErrDevice, errors.Join(err, perr))
	}
	return e.startOutput(&e.main, st, false)
}

func (e *Engine) startMonitor() error {
	if e.monitor.stream != nil {
		return nil
	}

	st, err := e.backend.Open(e.streamConfig(&e.monitor, false), e.processMonitor)
	if err != nil {
		return fmt.Errorf("%w: monitor: %w", ErrDevice, err)
	}

	// a clip already playing has queued frames nobody listened to
	for _, s := range e.slots {
		if ss := s.stream.Load(); ss != nil && s.State() == Playing {
			ss.toMonitor.Discard(ss.toMonitor.Available())
		}
	}
	return e.startOutput(&e.monitor, st, false)
}

func (e *Engine) startOutput(o *output, st device.Stream, duplex bool) error {
	o.running.Store(true)
	if err := st.Start(); err != nil {
		o.running.Store(false)
		return fmt.Errorf("%w: %s: %w", ErrDevice, o.name, errors.Join(err, st.Close()))
	}
	o.stream = st
	o.duplex = duplex

	e.logger.Info("device started", "device", o.name, "duplex", duplex,
		"playback", deviceName(o.playback), "capture", deviceName(o.capture))
	return nil
}

func (e *Engine) stopOutput(o *output) error {
	if o.stream == nil {
		return nil
	}
	err := o.stream.Stop()
	o.running.Store(false)
	err = errors.Join(err, o.stream.Close())
	o.stream = nil

	e.logger.Info("device stopped", "device", o.name)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDevice, o.name, err)
	}
	return nil
}

// restart cycles a running device so it picks up a new selection. When the
// restart fails the device is left stopped.
func (e *Engine) restart(o *output, start func() error) error {
	if o.stream == nil {
		return nil
	}
	if err := e.stopOutput(o); err != nil {
		return err
	}
	return start()
}

func deviceName(info *device.Info) string {
	if info == nil {
		return "default"
	}
	return info.Name
}
