// SPDX-License-Identifier: EPL-2.0

package engine

import "time"

const eventPoll = 5 * time.Millisecond

type clipError struct {
	slot int
	err  error
}

// SetClipFinishedCallback sets the function called after a non-looping clip
// plays out. Callbacks run on the engine's event goroutine, one at a time;
// they may call any engine method except Close.
func (e *Engine) SetClipFinishedCallback(fn func(slot int)) {
	if fn == nil {
		e.onFinished.Store(nil)
		return
	}
	e.onFinished.Store(&fn)
}

// SetClipErrorCallback sets the function called when a clip fails to open
// or fails while decoding. It runs like the finished callback.
func (e *Engine) SetClipErrorCallback(fn func(slot int, err error)) {
	if fn == nil {
		e.onError.Store(nil)
		return
	}
	e.onError.Store(&fn)
}

func (e *Engine) reportError(slot int, err error) {
	select {
	case e.errs <- clipError{slot: slot, err: err}:
	default:
		e.logger.Warn("clip error queue full, dropping event", "slot", slot, "error", err)
	}
}

// dispatch turns flags raised by callbacks and errors sent by decoders into
// user callbacks, off the realtime path.
func (e *Engine) dispatch() {
	defer close(e.dispatchDone)

	ticker := time.NewTicker(eventPoll)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case ev := <-e.errs:
			if fn := e.onError.Load(); fn != nil {
				(*fn)(ev.slot, ev.err)
			}
		case <-ticker.C:
			for _, s := range e.slots {
				if !s.finished.Swap(false) {
					continue
				}
				e.logger.Debug("clip finished", "slot", s.index)
				e.rearm(s)
				if fn := e.onFinished.Load(); fn != nil {
					(*fn)(s.index)
				}
			}
		}
	}
}

// rearm queues a fresh decoder run behind a finished clip so the next play
// starts without waiting for the decoder.
func (e *Engine) rearm(s *slot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || !s.loaded() || s.State() != Stopped {
		return
	}
	st := s.stream.Load()
	if st == nil || !st.played.Load() || st.failed.Load() {
		return
	}
	halt(st)
	e.arm(s)
}
