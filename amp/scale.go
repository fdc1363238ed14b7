package amp

import "github.com/ajroetker/go-highway/hwy"

// Scale multiplies xs in place by factor.
func Scale(xs []float32, factor float32) {
	f := hwy.Set(factor)
	hwy.ProcessWithTail[float32](len(xs),
		func(offset int) {
			v := hwy.Load(xs[offset:])
			hwy.Store(hwy.Mul(v, f), xs[offset:])
		},
		func(offset, count int) {
			mask := hwy.TailMask[float32](count)
			v := hwy.MaskLoad(mask, xs[offset:])
			hwy.MaskStore(mask, hwy.Mul(v, f), xs[offset:])
		},
	)
}

// Unscale divides xs in place by scale, undoing the loss scaling applied
// before the backward pass. Call it only after overflow detection: an
// Inf or NaN gradient stays non-finite through the division and would
// otherwise be masked.
func Unscale(xs []float32, scale float32) {
	Scale(xs, 1/scale)
}
