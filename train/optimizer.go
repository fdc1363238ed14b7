package train

import (
	"math"

	"github.com/ajroetker/go-highway/hwy"
)

// Param is a flat trainable parameter: the float32 master copy of the
// weights plus the gradient buffer the backward pass fills each step.
type Param struct {
	Name string
	Data []float32
	Grad []float32
}

// NewParam allocates a parameter of the given size with a zeroed gradient
// buffer.
func NewParam(name string, size int) *Param {
	return &Param{
		Name: name,
		Data: make([]float32, size),
		Grad: make([]float32, size),
	}
}

// Optimizer applies gradients to parameters.
type Optimizer interface {
	// Step performs a single optimization step, updating every parameter
	// from its gradient.
	Step(params []*Param, lr float32)

	// ZeroGrad clears all gradient buffers.
	ZeroGrad(params []*Param)
}

// SGD implements stochastic gradient descent with momentum and weight
// decay:
//
//	v = momentum*v + grad + weightDecay*param
//	param -= lr * v
//
// Velocity buffers are allocated lazily per parameter name on the first
// Step.
type SGD struct {
	momentum    float32
	weightDecay float32
	velocity    map[string][]float32
}

// NewSGD creates an SGD optimizer. A momentum of 0 gives plain SGD.
func NewSGD(momentum, weightDecay float32) *SGD {
	return &SGD{
		momentum:    momentum,
		weightDecay: weightDecay,
		velocity:    make(map[string][]float32),
	}
}

// Step updates parameters using the momentum SGD rule.
func (o *SGD) Step(params []*Param, lr float32) {
	wd := hwy.Set(o.weightDecay)
	mom := hwy.Set(o.momentum)
	negLR := hwy.Set(-lr)

	for _, p := range params {
		vel := o.velocity[p.Name]
		if len(vel) != len(p.Data) {
			vel = make([]float32, len(p.Data))
			o.velocity[p.Name] = vel
		}

		hwy.ProcessWithTail[float32](len(p.Data),
			func(offset int) {
				d := hwy.Load(p.Data[offset:])
				g := hwy.Load(p.Grad[offset:])
				v := hwy.Load(vel[offset:])

				g = hwy.FMA(wd, d, g)    // grad + weightDecay*param
				v = hwy.FMA(mom, v, g)   // momentum*v + g
				d = hwy.FMA(negLR, v, d) // param - lr*v

				hwy.Store(v, vel[offset:])
				hwy.Store(d, p.Data[offset:])
			},
			func(offset, count int) {
				mask := hwy.TailMask[float32](count)
				d := hwy.MaskLoad(mask, p.Data[offset:])
				g := hwy.MaskLoad(mask, p.Grad[offset:])
				v := hwy.MaskLoad(mask, vel[offset:])

				g = hwy.FMA(wd, d, g)
				v = hwy.FMA(mom, v, g)
				d = hwy.FMA(negLR, v, d)

				hwy.MaskStore(mask, v, vel[offset:])
				hwy.MaskStore(mask, d, p.Data[offset:])
			},
		)
	}
}

// ZeroGrad clears all gradient buffers.
func (o *SGD) ZeroGrad(params []*Param) {
	for _, p := range params {
		clear(p.Grad)
	}
}

// ClipByGlobalNorm rescales all gradients so their global L2 norm does not
// exceed maxNorm, and returns the pre-clip norm. A maxNorm <= 0 disables
// clipping.
func ClipByGlobalNorm(params []*Param, maxNorm float32) float32 {
	sumSq := 0.0
	for _, p := range params {
		acc := hwy.Zero[float32]()
		hwy.ProcessWithTail[float32](len(p.Grad),
			func(offset int) {
				g := hwy.Load(p.Grad[offset:])
				acc = hwy.FMA(g, g, acc)
			},
			func(offset, count int) {
				mask := hwy.TailMask[float32](count)
				g := hwy.MaskLoad(mask, p.Grad[offset:])
				acc = hwy.FMA(g, g, acc)
			},
		)
		sumSq += float64(hwy.ReduceSum(acc))
	}

	norm := float32(math.Sqrt(sumSq))
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}

	scale := hwy.Set(maxNorm / norm)
	for _, p := range params {
		hwy.ProcessWithTail[float32](len(p.Grad),
			func(offset int) {
				g := hwy.Load(p.Grad[offset:])
				hwy.Store(hwy.Mul(g, scale), p.Grad[offset:])
			},
			func(offset, count int) {
				mask := hwy.TailMask[float32](count)
				g := hwy.MaskLoad(mask, p.Grad[offset:])
				hwy.MaskStore(mask, hwy.Mul(g, scale), p.Grad[offset:])
			},
		)
	}
	return norm
}
