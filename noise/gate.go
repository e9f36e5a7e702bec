// SPDX-License-Identifier: EPL-2.0

package noise

import (
	"math"

	"github.com/ik5/padmixer/utils"
)

// GateConfig tunes an adaptive noise gate. Zero fields take the defaults
// listed next to them.
type GateConfig struct {
	SampleRate  int     // 48000
	ThresholdDb float32 // 6: how far above the noise floor a block must be to open
	ReductionDb float32 // -30: gain applied while closed
	AttackMs    float32 // 5
	ReleaseMs   float32 // 120
	HoldMs      float32 // 60: time the gate stays open after the signal drops
	RiseDbPerS  float32 // 3: how fast the floor estimate may climb
	MinFloor    float32 // 1e-5: lowest floor estimate, about -100 dBFS
}

func (c GateConfig) withDefaults() GateConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.ThresholdDb <= 0 {
		c.ThresholdDb = 6
	}
	if c.ReductionDb >= 0 {
		c.ReductionDb = -30
	}
	if c.AttackMs <= 0 {
		c.AttackMs = 5
	}
	if c.ReleaseMs <= 0 {
		c.ReleaseMs = 120
	}
	if c.HoldMs < 0 {
		c.HoldMs = 0
	} else if c.HoldMs == 0 {
		c.HoldMs = 60
	}
	if c.RiseDbPerS <= 0 {
		c.RiseDbPerS = 3
	}
	if c.MinFloor <= 0 {
		c.MinFloor = 1e-5
	}
	return c
}

// Gate attenuates the signal while its level stays near a tracked noise
// floor. The floor follows quiet blocks down immediately and climbs slowly,
// so steady background noise is learnt while speech is not.
type Gate struct {
	threshold float32
	closed    float32
	attack    float32 // per-sample smoothing coefficients
	release   float32
	riseDb    float64 // floor rise per sample, dB
	minFloor  float32
	holdLen   int

	floor float32
	gain  float32
	hold  int
	init  bool
}

func NewGate(cfg GateConfig) *Gate {
	cfg = cfg.withDefaults()
	rate := float64(cfg.SampleRate)
	return &Gate{
		threshold: utils.DbToLinear(cfg.ThresholdDb),
		closed:    utils.DbToLinear(cfg.ReductionDb),
		attack:    smoothing(cfg.AttackMs, rate),
		release:   smoothing(cfg.ReleaseMs, rate),
		riseDb:    float64(cfg.RiseDbPerS) / rate,
		minFloor:  cfg.MinFloor,
		holdLen:   int(float64(cfg.HoldMs) * rate / 1000),
		gain:      1,
	}
}

// smoothing returns the one-pole coefficient reaching 63% of a step in ms.
func smoothing(ms float32, rate float64) float32 {
	return float32(1 - math.Exp(-1000/(float64(ms)*rate)))
}

// Process gates one block in place.
func (g *Gate) Process(buf []float32) {
	if len(buf) == 0 {
		return
	}

	var sum float64
	for _, s := range buf {
		sum += float64(s) * float64(s)
	}
	level := float32(math.Sqrt(sum / float64(len(buf))))

	switch {
	case !g.init:
		g.floor = max(level, g.minFloor)
		g.init = true
	case level < g.floor:
		g.floor = max(level, g.minFloor)
	default:
		rise := float32(math.Pow(10, g.riseDb*float64(len(buf))/20))
		g.floor = min(g.floor*rise, max(level, g.minFloor))
	}

	if level > g.floor*g.threshold {
		g.hold = g.holdLen
	}

	for i, s := range buf {
		target := g.closed
		coef := g.release
		if g.hold > 0 {
			target = 1
			coef = g.attack
			g.hold--
		}
		g.gain += (target - g.gain) * coef
		buf[i] = s * g.gain
	}
}

// NoiseFloor reports the current floor estimate as a linear RMS level.
func (g *Gate) NoiseFloor() float32 { return g.floor }

// Gain reports the gain applied to the last sample.
func (g *Gate) Gain() float32 { return g.gain }
