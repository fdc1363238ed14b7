package amp

import (
	"math"
	"testing"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnyNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name string
		xs   []float32
		want bool
	}{
		{"empty", nil, false},
		{"finite", []float32{1, -2, 0, 3.5}, false},
		{"nan", []float32{1, nan, 3}, true},
		{"positive inf", []float32{inf}, true},
		{"negative inf", []float32{0, float32(math.Inf(-1))}, true},
		{"large but finite", []float32{math.MaxFloat32, -math.MaxFloat32}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnyNonFinite(tt.xs))
		})
	}
}

// TestAnyNonFiniteTail places the bad value at every index of a buffer
// longer than one vector, so both the full-block path and the masked tail
// are exercised regardless of the SIMD width.
func TestAnyNonFiniteTail(t *testing.T) {
	const n = 67 // deliberately not a multiple of any lane count
	for bad := 0; bad < n; bad++ {
		xs := make([]float32, n)
		for i := range xs {
			xs[i] = float32(i)
		}
		xs[bad] = float32(math.NaN())
		require.True(t, AnyNonFinite(xs), "NaN at index %d not detected", bad)
	}
}

func TestDetectorSequentialFallback(t *testing.T) {
	var d *Detector // nil detector scans sequentially

	clean := make([]float32, 100)
	dirty := make([]float32, 100)
	dirty[99] = float32(math.Inf(1))

	assert.False(t, d.Detect(clean, clean))
	assert.True(t, d.Detect(clean, dirty))
}

func TestDetectorParallel(t *testing.T) {
	pool := workerpool.New(4)
	defer pool.Close()
	d := NewDetector(pool)

	// Large enough to cross the parallel threshold.
	grads := make([][]float32, 8)
	for i := range grads {
		grads[i] = make([]float32, 1<<14)
	}
	assert.False(t, d.Detect(grads...))

	grads[5][1234] = float32(math.NaN())
	assert.True(t, d.Detect(grads...))
}
