// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"github.com/ik5/padmixer/utils"
)

// mixBuffers is scratch owned by one device callback.
type mixBuffers struct {
	mic  []float32 // mono capture
	clip []float32 // sum of slots
	read []float32 // one slot's frames
}

func newMixBuffers(blockFrames, channels int) *mixBuffers {
	return &mixBuffers{
		mic:  make([]float32, blockFrames),
		clip: make([]float32, blockFrames*channels),
		read: make([]float32, blockFrames*channels),
	}
}

// processMain is the main device callback.
func (e *Engine) processMain(out, in []float32, frames int) {
	e.mainCallbacks.Add(1)

	ch, cch := e.cfg.Channels, e.cfg.CaptureChannels
	frames = min(frames, len(out)/ch)
	if len(in) < frames*cch {
		in = nil
	}
	for off := 0; off < frames; {
		n := min(frames-off, e.blockFrames)
		var capture []float32
		if in != nil {
			capture = in[off*cch : (off+n)*cch]
		}
		e.mixMain(out[off*ch:(off+n)*ch], capture, n)
		off += n
	}
}

// mixMain renders n frames: mic, then clips, then master gain and clip,
// then the recorder tap.
func (e *Engine) mixMain(out, capture []float32, n int) {
	ch := e.cfg.Channels
	buf := e.mainBuf
	clear(out)

	if capture != nil && e.micEnabled.Load() {
		mic := buf.mic[:n]
		cch := e.cfg.CaptureChannels
		if cch == 1 {
			copy(mic, capture)
		} else {
			inv := 1 / float32(cch)
			for i := range mic {
				var sum float32
				for c := range cch {
					sum += capture[i*cch+c]
				}
				mic[i] = sum * inv
			}
		}

		if e.noiseSuppression.Load() {
			e.suppressor.Process(mic)
		}

		g := e.micGain.Linear()
		var peak float32
		for i, v := range mic {
			v *= g
			mic[i] = v
			peak = max(peak, abs(v))
		}
		e.micPeak.raise(peak)

		if e.micPassthrough.Load() {
			w := 1 - e.balance.Load()
			for i, v := range mic {
				v *= w
				for c := range ch {
					out[i*ch+c] = v
				}
			}
		}
	}

	clipMix := buf.clip[:n*ch]
	if e.mixSlots(clipMix, buf.read[:n*ch], n, true) {
		bal := e.balance.Load()
		for i, v := range clipMix {
			out[i] += v * bal
		}
	}

	master := e.masterGain.Linear()
	var peak float32
	for i, v := range out {
		v *= master
		peak = max(peak, abs(v))
		out[i] = utils.HardClip(v)
	}
	e.masterPeak.raise(peak)

	e.recorder.Append(out)
}

// processMonitor is the monitor device callback: clips only.
func (e *Engine) processMonitor(out, _ []float32, frames int) {
	e.monitorCallbacks.Add(1)

	ch := e.cfg.Channels
	frames = min(frames, len(out)/ch)
	buf := e.monitorBuf
	for off := 0; off < frames; {
		n := min(frames-off, e.blockFrames)
		block := out[off*ch : (off+n)*ch]
		e.mixSlots(block, buf.read[:n*ch], n, false)

		g := e.monitorGain.Linear()
		for i, v := range block {
			block[i] = utils.HardClip(v * g)
		}
		off += n
	}
}

// mixSlots adds every playing slot into dst in slot order and reports
// whether any slot was playing. main selects which ring to drain.
func (e *Engine) mixSlots(dst, tmp []float32, n int, main bool) bool {
	clear(dst)
	ch := e.cfg.Channels
	playing := false

	for _, s := range e.slots {
		if State(s.state.Load()) != Playing {
			continue
		}
		st := s.stream.Load()
		if st == nil {
			continue
		}
		playing = true

		r := st.toMonitor
		if main {
			r = st.toMain
		}
		got := r.Read(tmp)
		g := s.gain.Linear()
		for i, v := range tmp[:got*ch] {
			dst[i] += v * g
		}

		if got < n && !st.drained.Load() {
			short := uint64(n - got)
			s.underruns.Add(short)
			if main {
				e.mainUnderruns.Add(short)
			} else {
				e.monitorUnderruns.Add(short)
			}
		}

		e.checkFinished(s, st)
	}
	return playing
}

// checkFinished stops a slot whose decoder is done once every running
// consumer has played out its ring. Only one callback wins the transition.
func (e *Engine) checkFinished(s *slot, st *stream) {
	if !st.drained.Load() {
		return
	}
	if e.main.running.Load() && st.toMain.Available() > 0 {
		return
	}
	if e.monitor.running.Load() && st.toMonitor.Available() > 0 {
		return
	}
	if s.state.CompareAndSwap(int32(Playing), int32(Stopped)) && !st.failed.Load() {
		s.finished.Store(true)
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
