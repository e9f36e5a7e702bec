// SPDX-License-Identifier: EPL-2.0

// Package recorder captures the engine's main output to a WAV file.
//
// The device callback hands each rendered block to Append, which only
// copies it into a ring. A background goroutine moves the ring's contents
// into a growable in-memory buffer, and Stop serializes that buffer to the
// container opened by Start. Blocks that do not fit in the ring are counted
// as dropped, never waited for.
package recorder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/padmixer/formats/wav"
	"github.com/ik5/padmixer/ring"
)

const (
	drainInterval = 10 * time.Millisecond
	drainChunk    = 4096 // frames
)

var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrInvalidFormat    = errors.New("invalid recording format")
)

// Config fixes the format of every recording.
type Config struct {
	SampleRate  int
	Channels    int
	BitDepth    int     // 16, 24 or 32; 0 means 16
	RingSeconds float64 // hand-off capacity; 0 means one second
	Logger      *slog.Logger
}

// Info describes a finished recording.
type Info struct {
	ID         string
	Path       string
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int64
	Dropped    int64
	Started    time.Time
	Duration   time.Duration
}

type session struct {
	id      string
	path    string
	started time.Time
	out     *wav.Writer
	ring    *ring.Ring
	dropped atomic.Int64

	// owned by the drain goroutine until done closes
	samples []float32
	stop    chan struct{}
	done    chan struct{}
}

// Recorder records at most one session at a time.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex // serializes Start and Stop
	current atomic.Pointer[session]
}

func New(cfg Config) (*Recorder, error) {
	if cfg.BitDepth == 0 {
		cfg.BitDepth = 16
	}
	if cfg.RingSeconds <= 0 {
		cfg.RingSeconds = 1
	}
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 || !wav.ValidBitDepth(cfg.BitDepth) {
		return nil, fmt.Errorf("%w: rate %d, channels %d, bit depth %d",
			ErrInvalidFormat, cfg.SampleRate, cfg.Channels, cfg.BitDepth)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{cfg: cfg, logger: logger}, nil
}

// Active reports whether a session is open.
func (r *Recorder) Active() bool { return r.current.Load() != nil }

// Dropped reports frames lost so far in the open session.
func (r *Recorder) Dropped() int64 {
	if s := r.current.Load(); s != nil {
		return s.dropped.Load()
	}
	return 0
}

// Start opens path and begins accepting blocks.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current.Load() != nil {
		return ErrAlreadyRecording
	}

	out, err := wav.Create(path, r.cfg.SampleRate, r.cfg.Channels, r.cfg.BitDepth)
	if err != nil {
		return err
	}

	capacity := int(float64(r.cfg.SampleRate) * r.cfg.RingSeconds)
	s := &session{
		id:      uuid.NewString(),
		path:    path,
		started: time.Now(),
		out:     out,
		ring:    ring.New(capacity, r.cfg.Channels),
		samples: make([]float32, 0, capacity*r.cfg.Channels*4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go r.drain(s)
	r.current.Store(s)

	r.logger.Info("recording started", "recording", s.id, "path", path,
		"rate", r.cfg.SampleRate, "channels", r.cfg.Channels, "bit_depth", r.cfg.BitDepth)
	return nil
}

// Append queues one interleaved block. It is safe to call from a device
// callback and does nothing while no session is open.
func (r *Recorder) Append(block []float32) {
	s := r.current.Load()
	if s == nil {
		return
	}
	frames := len(block) / r.cfg.Channels
	if n := s.ring.Write(block); n < frames {
		s.dropped.Add(int64(frames - n))
	}
}

func (r *Recorder) drain(s *session) {
	defer close(s.done)

	chunk := make([]float32, drainChunk*r.cfg.Channels)
	collect := func() {
		for {
			n := s.ring.Read(chunk)
			if n == 0 {
				return
			}
			s.samples = append(s.samples, chunk[:n*r.cfg.Channels]...)
		}
	}

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			collect()
		case <-s.stop:
			collect()
			return
		}
	}
}

// Stop closes the session and writes the file.
func (r *Recorder) Stop() (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.current.Swap(nil)
	if s == nil {
		return Info{}, ErrNotRecording
	}
	close(s.stop)
	<-s.done

	info := Info{
		ID:         s.id,
		Path:       s.path,
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
		BitDepth:   r.cfg.BitDepth,
		Frames:     int64(len(s.samples) / r.cfg.Channels),
		Dropped:    s.dropped.Load(),
		Started:    s.started,
	}
	info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)

	err := s.out.WriteFloat32(s.samples)
	err = errors.Join(err, s.out.Close())
	s.samples = nil
	if err != nil {
		return info, fmt.Errorf("write recording %s: %w", s.path, err)
	}

	r.logger.Info("recording stopped", "recording", s.id, "path", s.path,
		"frames", info.Frames, "duration", info.Duration, "dropped", info.Dropped)
	return info, nil
}
