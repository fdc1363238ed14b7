package amp

import (
	"sync/atomic"

	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
)

// AnyNonFinite reports whether xs contains an Inf or NaN value. The scan
// is vectorized and exits on the first block containing a non-finite lane.
func AnyNonFinite(xs []float32) bool {
	lanes := hwy.MaxLanes[float32]()

	i := 0
	for ; i+lanes <= len(xs); i += lanes {
		v := hwy.Load(xs[i:])
		if !hwy.IsFinite(v).AllTrue() {
			return true
		}
	}

	if i < len(xs) {
		// Inactive tail lanes load as zero, which is finite.
		mask := hwy.TailMask[float32](len(xs) - i)
		v := hwy.MaskLoad(mask, xs[i:])
		if !hwy.IsFinite(v).AllTrue() {
			return true
		}
	}
	return false
}

// parallelThreshold is the total element count below which Detect scans
// sequentially. Fanning out to the pool costs more than the scan itself
// for small gradients.
const parallelThreshold = 1 << 16

// Detector scans sets of gradient slices for overflow. With a worker pool
// it splits the slices across workers; without one, or below the size
// threshold, it scans sequentially. A nil *Detector is valid and scans
// sequentially.
type Detector struct {
	pool *workerpool.Pool
}

// NewDetector creates a detector backed by the given pool. The pool may be
// nil, in which case every scan is sequential. The detector does not own
// the pool; closing it remains the caller's responsibility.
func NewDetector(pool *workerpool.Pool) *Detector {
	return &Detector{pool: pool}
}

// Detect reports whether any of the gradient slices contains an Inf or
// NaN value.
func (d *Detector) Detect(grads ...[]float32) bool {
	if d == nil || d.pool == nil || len(grads) < 2 {
		return detectSequential(grads)
	}

	total := 0
	for _, g := range grads {
		total += len(g)
	}
	if total < parallelThreshold {
		return detectSequential(grads)
	}

	var found atomic.Bool
	d.pool.ParallelFor(len(grads), func(start, end int) {
		for _, g := range grads[start:end] {
			if found.Load() {
				return
			}
			if AnyNonFinite(g) {
				found.Store(true)
				return
			}
		}
	})
	return found.Load()
}

func detectSequential(grads [][]float32) bool {
	for _, g := range grads {
		if AnyNonFinite(g) {
			return true
		}
	}
	return false
}
