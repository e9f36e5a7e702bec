// SPDX-License-Identifier: EPL-2.0

// Package engine is the realtime mixer: a fixed array of clip slots, the
// live microphone path, and two output devices.
//
// # Threads
//
// Control methods may be called from any goroutine; they serialize on one
// mutex that the device callbacks never touch. Each loaded slot has a
// decoder goroutine that fills two rings, one drained by the main device
// callback and one by the monitor callback. Callbacks read only atomics and
// rings, and never block or allocate.
//
// # Main mix
//
// Per block the main callback computes
//
//	out = clip((mic*micGain*(1-balance) + sum(slot*slotGain)*balance) * master)
//
// where the mic term is present only when the microphone is enabled, passed
// through and the device is duplex. The recorder receives out exactly as
// the device does. The monitor callback plays sum(slot*slotGain)*monitor,
// clipped, and never the microphone.
//
// # Events
//
// Finished and error notifications are delivered by a dedicated goroutine,
// never from a device callback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ik5/padmixer/device"
	"github.com/ik5/padmixer/noise"
	"github.com/ik5/padmixer/recorder"
)

const minBlockFrames = 1024

// Engine owns its slots and devices. Several engines may coexist.
type Engine struct {
	cfg         Config
	logger      *slog.Logger
	backend     device.Backend
	catalog     *device.Catalog
	suppressor  noise.Suppressor
	recorder    *recorder.Recorder
	ringFrames  int
	blockFrames int

	ctx    context.Context // cancels fallback decoders on Close
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	slots   [Slots]*slot
	main    output
	monitor output

	micGain     *gain
	masterGain  *gain
	monitorGain *gain
	balance     atomicFloat

	micEnabled       atomic.Bool
	micPassthrough   atomic.Bool
	noiseSuppression atomic.Bool

	micPeak    atomicFloat
	masterPeak atomicFloat

	mainBuf    *mixBuffers
	monitorBuf *mixBuffers

	mainCallbacks    atomic.Uint64
	monitorCallbacks atomic.Uint64
	mainUnderruns    atomic.Uint64
	monitorUnderruns atomic.Uint64
	decodeErrors     atomic.Uint64

	onFinished   atomic.Pointer[func(int)]
	onError      atomic.Pointer[func(int, error)]
	errs         chan clipError
	quit         chan struct{}
	dispatchDone chan struct{}
}

// New builds an engine on backend. The caller keeps ownership of backend
// and closes it after the engine.
func New(cfg Config, backend device.Backend) (*Engine, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no backend", ErrDevice)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rec, err := recorder.New(recorder.Config{
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		BitDepth:    cfg.RecordBitDepth,
		RingSeconds: cfg.RingSeconds,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:          cfg,
		logger:       cfg.Logger.With("component", "engine"),
		backend:      backend,
		catalog:      device.NewCatalog(backend),
		suppressor:   cfg.Suppressor,
		recorder:     rec,
		ringFrames:   max(int(cfg.RingSeconds*float64(cfg.SampleRate)), cfg.PeriodFrames),
		blockFrames:  max(cfg.PeriodFrames, minBlockFrames),
		ctx:          ctx,
		cancel:       cancel,
		main:         output{name: "main"},
		monitor:      output{name: "monitor"},
		micGain:      newGain(0),
		masterGain:   newGain(0),
		monitorGain:  newGain(0),
		errs:         make(chan clipError, 2*Slots),
		quit:         make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	e.mainBuf = newMixBuffers(e.blockFrames, cfg.Channels)
	e.monitorBuf = newMixBuffers(e.blockFrames, cfg.Channels)
	e.balance.Store(0.5)
	e.micEnabled.Store(true)
	e.micPassthrough.Store(true)
	for i := range e.slots {
		e.slots[i] = &slot{index: i, gain: newGain(0)}
	}

	go e.dispatch()

	e.logger.Info("engine ready", "backend", backend.Name(), "rate", cfg.SampleRate,
		"channels", cfg.Channels, "period", cfg.PeriodFrames, "ring_frames", e.ringFrames)
	return e, nil
}

// Close stops any recording, joins every decoder and unloads its clip, then
// stops both devices. Callbacks still running see ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancel()

	var err error
	if e.recorder.Active() {
		if _, rerr := e.recorder.Stop(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}
	for _, s := range e.slots {
		if s.loaded() {
			err = errors.Join(err, e.unload(s))
		}
	}
	err = errors.Join(err, e.stopOutput(&e.main), e.stopOutput(&e.monitor))
	e.mu.Unlock()

	close(e.quit)
	<-e.dispatchDone
	e.logger.Info("engine closed")
	return err
}

func (e *Engine) slot(i int) (*slot, error) {
	if i < 0 || i >= Slots {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, i)
	}
	return e.slots[i], nil
}

// LoadClip opens path into slot i, replacing what was there, and starts
// decoding ahead. An open failure is returned and also reported to the
// error callback.
func (e *Engine) LoadClip(i int, path string) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if s.loaded() {
		if err := e.unload(s); err != nil {
			e.logger.Warn("closing previous clip", "slot", i, "error", err)
		}
	}

	a, err := e.cfg.Opener.Open(e.ctx, path, e.cfg.SampleRate, e.cfg.Channels)
	if err != nil {
		err = fmt.Errorf("%w: slot %d: %w", ErrDecodeOpen, i, err)
		e.logger.Warn("load failed", "slot", i, "path", path, "error", err)
		e.reportError(i, err)
		return err
	}

	s.adapter = a
	s.path = path
	s.runs = 0
	s.underruns.Store(0)
	e.arm(s)

	e.logger.Info("clip loaded", "slot", i, "path", path, "backend", a.Backend())
	return nil
}

// UnloadClip stops slot i and releases its decoder. Unloading an empty slot
// does nothing.
func (e *Engine) UnloadClip(i int) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.loaded() {
		return nil
	}
	return e.unload(s)
}

func (e *Engine) unload(s *slot) error {
	s.state.Store(int32(Stopping))
	halt(s.stream.Swap(nil))
	err := s.adapter.Close()

	s.adapter = nil
	s.path = ""
	s.finished.Store(false)
	s.sampleRate.Store(0)
	s.channels.Store(0)
	s.state.Store(int32(Stopped))

	e.logger.Debug("clip unloaded", "slot", s.index)
	return err
}

// PlayClip starts slot i from the beginning, restarting it if it is already
// playing.
func (e *Engine) PlayClip(i int) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !s.loaded() {
		return fmt.Errorf("%w: %d", ErrNotLoaded, i)
	}

	st := s.stream.Load()
	if st == nil || st.played.Load() {
		s.state.Store(int32(Stopping))
		halt(st)
		st = e.arm(s)
	}
	st.played.Store(true)
	s.state.Store(int32(Playing))
	return nil
}

// StopClip silences slot i and queues a fresh decode from the start.
// Frames already buffered are discarded. A clip whose decoder failed is not
// decoded again until the next PlayClip.
func (e *Engine) StopClip(i int) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !s.loaded() {
		return fmt.Errorf("%w: %d", ErrNotLoaded, i)
	}

	s.state.Store(int32(Stopping))
	st := s.stream.Load()
	halt(st)
	switch {
	case st != nil && st.failed.Load():
		s.stream.Store(nil)
	case !e.closed:
		e.arm(s)
	}
	s.state.Store(int32(Stopped))
	return nil
}

func (e *Engine) SetLoop(i int, loop bool) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}
	s.loop.Store(loop)
	return nil
}

func (e *Engine) SetClipGainDb(i int, db float32) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}
	s.gain.setDb(db)
	return nil
}

func (e *Engine) SetClipGain(i int, linear float32) error {
	s, err := e.slot(i)
	if err != nil {
		return err
	}
	s.gain.setLinear(linear)
	return nil
}

func (e *Engine) ClipGainDb(i int) (float32, error) {
	s, err := e.slot(i)
	if err != nil {
		return 0, err
	}
	return s.gain.Db(), nil
}

func (e *Engine) ClipState(i int) (State, error) {
	s, err := e.slot(i)
	if err != nil {
		return Stopped, err
	}
	return s.State(), nil
}

// ClipInfo describes a slot.
type ClipInfo struct {
	Slot       int
	Loaded     bool
	Path       string
	Backend    string
	State      State
	Loop       bool
	GainDb     float32
	SampleRate int // native format of the clip, once decoding started
	Channels   int
	Underruns  uint64 // frames of silence substituted
}

func (e *Engine) ClipInfo(i int) (ClipInfo, error) {
	s, err := e.slot(i)
	if err != nil {
		return ClipInfo{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	info := ClipInfo{
		Slot:       i,
		Loaded:     s.loaded(),
		Path:       s.path,
		State:      s.State(),
		Loop:       s.loop.Load(),
		GainDb:     s.gain.Db(),
		SampleRate: int(s.sampleRate.Load()),
		Channels:   int(s.channels.Load()),
		Underruns:  s.underruns.Load(),
	}
	if s.adapter != nil {
		info.Backend = s.adapter.Backend()
	}
	return info, nil
}

func (e *Engine) SetMicGainDb(db float32)     { e.micGain.setDb(db) }
func (e *Engine) SetMicGain(linear float32)   { e.micGain.setLinear(linear) }
func (e *Engine) MicGainDb() float32          { return e.micGain.Db() }
func (e *Engine) MicGain() float32            { return e.micGain.Linear() }
func (e *Engine) SetMasterGainDb(db float32)  { e.masterGain.setDb(db) }
func (e *Engine) SetMasterGain(lin float32)   { e.masterGain.setLinear(lin) }
func (e *Engine) MasterGainDb() float32       { return e.masterGain.Db() }
func (e *Engine) MasterGain() float32         { return e.masterGain.Linear() }
func (e *Engine) SetMonitorGainDb(db float32) { e.monitorGain.setDb(db) }
func (e *Engine) SetMonitorGain(lin float32)  { e.monitorGain.setLinear(lin) }
func (e *Engine) MonitorGainDb() float32      { return e.monitorGain.Db() }
func (e *Engine) MonitorGain() float32        { return e.monitorGain.Linear() }

// SetBalance weights the main mix: 0 is all microphone, 1 is all clips.
func (e *Engine) SetBalance(b float32) {
	if math.IsNaN(float64(b)) {
		b = 0.5
	}
	e.balance.Store(min(max(b, 0), 1))
}

func (e *Engine) Balance() float32 { return e.balance.Load() }

// SetMicEnabled turns microphone capture on or off. A disabled microphone
// is neither metered nor mixed.
func (e *Engine) SetMicEnabled(on bool) { e.micEnabled.Store(on) }
func (e *Engine) MicEnabled() bool      { return e.micEnabled.Load() }

// SetMicPassthrough selects whether the enabled microphone is mixed into
// the main output or only metered.
func (e *Engine) SetMicPassthrough(on bool) { e.micPassthrough.Store(on) }
func (e *Engine) MicPassthrough() bool      { return e.micPassthrough.Load() }

func (e *Engine) SetNoiseSuppression(on bool) { e.noiseSuppression.Store(on) }
func (e *Engine) NoiseSuppression() bool      { return e.noiseSuppression.Load() }

// StartRecording records the main output to a WAV file at path.
func (e *Engine) StartRecording(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.recorder.Start(path)
}

// StopRecording finishes the recording and writes the file.
func (e *Engine) StopRecording() (recorder.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder.Stop()
}

func (e *Engine) IsRecording() bool { return e.recorder.Active() }

// PeakLevels returns the highest absolute sample seen since the last reset
// on the microphone (after mic gain) and on the main output (after master
// gain, before clipping).
func (e *Engine) PeakLevels() (mic, master float32) {
	return e.micPeak.Load(), e.masterPeak.Load()
}

func (e *Engine) ResetPeakLevels() {
	e.micPeak.Store(0)
	e.masterPeak.Store(0)
}

// Stats are running counters since the engine was created.
type Stats struct {
	MainCallbacks    uint64
	MonitorCallbacks uint64
	MainUnderruns    uint64 // frames, summed over slots
	MonitorUnderruns uint64
	SlotUnderruns    [Slots]uint64
	DecodeErrors     uint64
	RecorderDropped  int64 // in the open recording
}

func (e *Engine) Stats() Stats {
	st := Stats{
		MainCallbacks:    e.mainCallbacks.Load(),
		MonitorCallbacks: e.monitorCallbacks.Load(),
		MainUnderruns:    e.mainUnderruns.Load(),
		MonitorUnderruns: e.monitorUnderruns.Load(),
		DecodeErrors:     e.decodeErrors.Load(),
		RecorderDropped:  e.recorder.Dropped(),
	}
	for i, s := range e.slots {
		st.SlotUnderruns[i] = s.underruns.Load()
	}
	return st
}
