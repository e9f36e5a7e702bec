// SPDX-License-Identifier: EPL-2.0

package utils

import (
	"math"
	"testing"
)

func TestCubicInterpolate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		y0, y1, y2, y3 float32
		x              float32
		want           float32
		tolerance      float32
	}{
		{name: "start returns y1", y0: 0, y1: 1, y2: 2, y3: 3, x: 0, want: 1, tolerance: 1e-6},
		{name: "end returns y2", y0: 0, y1: 1, y2: 2, y3: 3, x: 1, want: 2, tolerance: 1e-5},
		{name: "linear data stays linear", y0: 1, y1: 2, y2: 3, y3: 4, x: 0.25, want: 2.25, tolerance: 1e-5},
		{name: "antisymmetric midpoint", y0: -1, y1: -0.5, y2: 0.5, y3: 1, x: 0.5, want: 0, tolerance: 1e-6},
		{name: "flat", y0: 0.3, y1: 0.3, y2: 0.3, y3: 0.3, x: 0.7, want: 0.3, tolerance: 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := CubicInterpolate(tt.y0, tt.y1, tt.y2, tt.y3, tt.x)
			if diff := math.Abs(float64(got - tt.want)); diff > float64(tt.tolerance) {
				t.Errorf("CubicInterpolate() = %v, want %v (diff %v)", got, tt.want, diff)
			}
		})
	}
}

func BenchmarkCubicInterpolate(b *testing.B) {
	var result float32

	b.ReportAllocs()
	for i := range b.N {
		result = CubicInterpolate(0.5, 1.0, 0.8, 0.3, float32(i%100)/100)
	}
	_ = result
}
