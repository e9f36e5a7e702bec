// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ik5/padmixer/decode"
	"github.com/ik5/padmixer/ring"
)

const (
	decodeChunkFrames = 1024
	decodeBackoff     = 5 * time.Millisecond
)

// State is a slot's playback state.
type State int32

const (
	Stopped State = iota
	Playing
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// stream is one decoder run: a worker goroutine filling two rings from the
// slot's adapter. A slot gets a fresh stream every time playback restarts.
type stream struct {
	id        string
	toMain    *ring.Ring
	toMonitor *ring.Ring

	drained atomic.Bool // the worker will write nothing more
	failed  atomic.Bool // drained because of a decode error
	played  atomic.Bool // PlayClip has started this stream

	stop chan struct{}
	done chan struct{}
}

// slot fields follow the engine's ownership rules: state, loop and gain are
// set by control calls, stream is published through an atomic pointer, and
// the rest is only touched with Engine.mu held.
type slot struct {
	index int

	state     atomic.Int32
	loop      atomic.Bool
	gain      *gain
	stream    atomic.Pointer[stream]
	finished  atomic.Bool // raised by a callback, consumed by the dispatcher
	underruns atomic.Uint64

	sampleRate atomic.Int32 // clip's native format, written by the decoder
	channels   atomic.Int32

	path    string
	adapter decode.Adapter
	runs    int
}

func (s *slot) State() State { return State(s.state.Load()) }

func (s *slot) loaded() bool { return s.adapter != nil }

// arm starts a new decoder run. Engine.mu must be held and no other run may
// be active on the adapter.
func (e *Engine) arm(s *slot) *stream {
	st := &stream{
		id:        uuid.NewString(),
		toMain:    ring.New(e.ringFrames, e.cfg.Channels),
		toMonitor: ring.New(e.ringFrames, e.cfg.Channels),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	rewind := s.runs > 0
	s.runs++

	logger := e.logger.With("slot", s.index, "stream", st.id)
	go e.decodeLoop(s, st, s.adapter, rewind, logger)
	s.stream.Store(st)
	return st
}

func (st *stream) halted() bool {
	select {
	case <-st.stop:
		return true
	default:
		return false
	}
}

// halt cancels a run and waits for its worker. Engine.mu must be held.
func halt(st *stream) {
	if st == nil {
		return
	}
	select {
	case <-st.stop:
	default:
		close(st.stop)
	}
	<-st.done
}

func (e *Engine) decodeLoop(s *slot, st *stream, a decode.Adapter, rewind bool, logger *slog.Logger) {
	defer close(st.done)

	fail := func(err error) {
		if st.halted() || e.ctx.Err() != nil {
			// shutting down; the error comes from the cancellation
			logger.Debug("decoder stopped", "error", err)
			return
		}
		logger.Warn("decode failed", "error", err)
		e.decodeErrors.Add(1)
		st.failed.Store(true)
		st.drained.Store(true)
		e.reportError(s.index, fmt.Errorf("%w: slot %d: %w", ErrDecodeStream, s.index, err))
	}

	if rewind {
		if err := a.SeekFrame(0); err != nil {
			fail(err)
			return
		}
	}

	src := a.SourceFormat()
	s.sampleRate.Store(int32(src.SampleRate))
	s.channels.Store(int32(src.Channels))
	logger.Debug("decoder started", "backend", a.Backend(), "rewind", rewind)

	ch := e.cfg.Channels
	buf := make([]float32, min(decodeChunkFrames, e.ringFrames)*ch)
	timer := time.NewTimer(decodeBackoff)
	defer timer.Stop()

	var (
		frames    int  // frames in buf
		mainOff   int  // frames of buf already in toMain
		monOff    int  // frames of buf already in toMonitor
		eof       bool // buf holds the last frames of a pass
		passTotal int  // frames produced since the last rewind
	)

	for {
		select {
		case <-st.stop:
			return
		default:
		}

		if frames == 0 {
			n, err := a.ReadFrames(buf)
			switch {
			case errors.Is(err, io.EOF):
				eof = true
			case err != nil:
				fail(err)
				return
			}
			frames, mainOff, monOff = n, 0, 0
			passTotal += n
		}

		if frames > 0 {
			mainOff += st.toMain.Write(buf[mainOff*ch : frames*ch])
			monOff += st.toMonitor.Write(buf[monOff*ch : frames*ch])

			// only rings with a running consumer are worth waiting for;
			// the main ring stands in when nothing runs
			monitorLive := e.monitor.running.Load()
			mainLive := e.main.running.Load() || !monitorLive
			if !mainLive {
				mainOff = frames
			}
			if !monitorLive {
				monOff = frames
			}

			if mainOff < frames || monOff < frames {
				timer.Reset(decodeBackoff)
				select {
				case <-st.stop:
					return
				case <-timer.C:
				}
				continue
			}
			frames = 0
		}

		if !eof {
			continue
		}

		if s.loop.Load() && passTotal > 0 {
			if err := a.SeekFrame(0); err != nil {
				fail(err)
				return
			}
			eof, passTotal = false, 0
			continue
		}

		st.drained.Store(true)
		logger.Debug("decoder drained")
		return
	}
}
