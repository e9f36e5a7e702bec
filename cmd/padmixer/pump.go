// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"time"

	"github.com/ik5/padmixer/device"
)

// pump drives the virtual backend's running streams in real time, one
// period per tick, with a silent capture input.
func pump(ctx context.Context, vb *device.VirtualBackend, periodFrames, sampleRate int) {
	if periodFrames <= 0 {
		periodFrames = 480
	}
	tick := time.NewTicker(time.Duration(periodFrames) * time.Second / time.Duration(sampleRate))
	defer tick.Stop()

	type buffers struct{ out, in []float32 }
	bufs := make(map[*device.VirtualStream]buffers)

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		for _, vs := range vb.Streams() {
			if vs.Closed() {
				delete(bufs, vs)
				continue
			}
			b, ok := bufs[vs]
			if !ok {
				cfg := vs.Config()
				b = buffers{
					out: make([]float32, periodFrames*cfg.Channels),
					in:  make([]float32, periodFrames*cfg.CaptureChannels),
				}
				bufs[vs] = b
			}
			vs.Process(b.out, b.in)
		}
	}
}
