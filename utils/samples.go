// SPDX-License-Identifier: EPL-2.0

package utils

// Float32ToInt16 converts a normalized sample to 16-bit PCM, clamping first.
// It is the inverse of Int16ToFloat32 for every int16 value.
func Float32ToInt16(x float32) int16 {
	v := HardClip(x) * 32768.0
	if v > 32767 {
		return 32767
	}
	return int16(v)
}

// Int16ToFloat32 converts a 16-bit PCM sample to [-1, 1).
func Int16ToFloat32(v int16) float32 {
	return float32(v) / 32768.0
}

// FullScale returns the magnitude of the most negative value of a signed
// integer sample with the given bit depth. Unknown depths fall back to 16 bits.
func FullScale(bitDepth int) float32 {
	switch bitDepth {
	case 8:
		return 128.0
	case 24:
		return 8388608.0
	case 32:
		return 2147483648.0
	default:
		return 32768.0
	}
}

// IntToFloat32 normalizes a signed integer sample of bitDepth bits.
func IntToFloat32(v int, bitDepth int) float32 {
	return float32(v) / FullScale(bitDepth)
}

// Float32ToInt scales a normalized sample to a signed integer of bitDepth bits.
func Float32ToInt(x float32, bitDepth int) int {
	scale := float64(FullScale(bitDepth))
	v := float64(HardClip(x)) * scale
	if v > scale-1 {
		return int(scale - 1)
	}
	return int(v)
}
