// SPDX-License-Identifier: EPL-2.0

package utils

import "math"

// SilenceDb is the level reported for a linear gain of zero (or below).
// DbToLinear maps it, and anything lower, back to exactly zero.
const SilenceDb float32 = -96

// MaxGainDb is the highest gain any control accepts. DbToLinear clamps to it.
const MaxGainDb float32 = 24

// MaxGainLinear is DbToLinear(MaxGainDb).
var MaxGainLinear = float32(math.Pow(10, float64(MaxGainDb)/20))

// DbToLinear converts a gain in decibels to a linear amplitude factor.
// NaN counts as silence.
func DbToLinear(db float32) float32 {
	if db <= SilenceDb || math.IsNaN(float64(db)) {
		return 0
	}
	if db >= MaxGainDb {
		return MaxGainLinear
	}
	return float32(math.Pow(10, float64(db)/20))
}

// LinearToDb converts a linear amplitude factor to decibels.
// Non-positive factors report SilenceDb.
func LinearToDb(linear float32) float32 {
	if linear <= 0 {
		return SilenceDb
	}
	db := float32(20 * math.Log10(float64(linear)))
	if db < SilenceDb {
		return SilenceDb
	}
	return db
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// HardClip limits a sample to the valid range [-1, 1]. NaN becomes 0.
func HardClip(x float32) float32 {
	if math.IsNaN(float64(x)) {
		return 0
	}
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}
