// SPDX-License-Identifier: EPL-2.0

package engine

import (
	"math"
	"sync/atomic"

	"github.com/ik5/padmixer/utils"
)

// atomicFloat is a float32 readable from any goroutine without locks.
type atomicFloat struct{ bits atomic.Uint32 }

func (f *atomicFloat) Load() float32   { return math.Float32frombits(f.bits.Load()) }
func (f *atomicFloat) Store(v float32) { f.bits.Store(math.Float32bits(v)) }

// raise stores v if it is above the held value.
func (f *atomicFloat) raise(v float32) {
	for {
		old := f.bits.Load()
		if v <= math.Float32frombits(old) {
			return
		}
		if f.bits.CompareAndSwap(old, math.Float32bits(v)) {
			return
		}
	}
}

// gain keeps a dB value for display and the matching linear factor for
// the callbacks. Both change on every set.
type gain struct {
	db  atomicFloat
	lin atomicFloat
}

func newGain(db float32) *gain {
	g := &gain{}
	g.setDb(db)
	return g
}

// setDb clamps db to [SilenceDb, MaxGainDb]. NaN means silence.
func (g *gain) setDb(db float32) {
	if math.IsNaN(float64(db)) {
		db = utils.SilenceDb
	}
	db = utils.Clamp(db, utils.SilenceDb, utils.MaxGainDb)
	g.db.Store(db)
	g.lin.Store(utils.DbToLinear(db))
}

// setLinear clamps lin to [0, MaxGainLinear]. NaN means silence.
func (g *gain) setLinear(lin float32) {
	if math.IsNaN(float64(lin)) {
		lin = 0
	}
	lin = utils.Clamp(lin, 0, utils.MaxGainLinear)
	g.lin.Store(lin)
	g.db.Store(utils.LinearToDb(lin))
}

func (g *gain) Db() float32     { return g.db.Load() }
func (g *gain) Linear() float32 { return g.lin.Load() }
