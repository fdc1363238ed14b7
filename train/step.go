// Package train executes mixed-precision training steps: it wires a
// loss-scale controller and an optimizer together, detecting gradient
// overflow and gating the parameter update according to the controller's
// policy.
//
// The package consumes gradients an external backward pass has already
// produced; it performs no gradient computation or graph compilation.
package train

import (
	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/LaiYongqiang/mindspore/amp"
	"github.com/LaiYongqiang/mindspore/lossscale"
)

// StepResult reports what happened during a single training step.
type StepResult struct {
	// Step is the 1-based index of the completed step.
	Step uint64

	// Scale is the loss scale after the controller processed the step.
	Scale float64

	// Overflow reports whether the step's gradients contained Inf or NaN.
	Overflow bool

	// Skipped reports whether the optimizer update was dropped because of
	// the overflow.
	Skipped bool
}

// Runner drives one training step at a time: overflow detection, gradient
// unscaling, optional clipping, the optimizer update, and the loss-scale
// update, in that order.
//
// A Runner is single-threaded by contract: exactly one logical step must
// drive it at a time, the same ownership rule the controller itself has.
type Runner struct {
	ctrl     lossscale.Controller
	opt      Optimizer
	detector *amp.Detector
	log      logr.Logger
	session  string
	clipNorm float32
	step     uint64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger for step events. Default: logr.Discard().
func WithLogger(log logr.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// WithPool provides a worker pool for parallel overflow scans over large
// gradient sets. The Runner does not own the pool.
func WithPool(pool *workerpool.Pool) RunnerOption {
	return func(r *Runner) {
		r.detector = amp.NewDetector(pool)
	}
}

// WithGradientClip enables global-norm gradient clipping before the
// optimizer step. A maxNorm <= 0 disables it (the default).
func WithGradientClip(maxNorm float32) RunnerOption {
	return func(r *Runner) {
		r.clipNorm = maxNorm
	}
}

// NewRunner creates a step runner for the given controller and optimizer.
func NewRunner(ctrl lossscale.Controller, opt Optimizer, opts ...RunnerOption) *Runner {
	r := &Runner{
		ctrl:    ctrl,
		opt:     opt,
		log:     logr.Discard(),
		session: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LossScale returns the current loss scale, the factor the caller must
// multiply the loss by before the backward pass.
func (r *Runner) LossScale() float64 {
	return r.ctrl.Scale()
}

// ScaleLoss multiplies a loss value by the current scale.
func (r *Runner) ScaleLoss(loss float32) float32 {
	return loss * float32(r.ctrl.Scale())
}

// Step completes one training step. The gradients in params were computed
// under the scaled loss; Step scans them for overflow, and unless the
// controller's policy drops overflowing updates, unscales them, clips
// them, and applies the optimizer. The controller is then updated exactly
// once with the overflow outcome.
//
// A *lossscale.PersistentOverflowError return is fatal: the run must be
// aborted.
func (r *Runner) Step(params []*Param, lr float32) (StepResult, error) {
	r.step++
	scale := float32(r.ctrl.Scale())

	grads := make([][]float32, len(params))
	for i, p := range params {
		grads[i] = p.Grad
	}
	overflow := r.detector.Detect(grads...)

	skip := overflow && r.gateOnOverflow()
	if !skip {
		for _, p := range params {
			amp.Unscale(p.Grad, scale)
		}
		if r.clipNorm > 0 {
			ClipByGlobalNorm(params, r.clipNorm)
		}
		r.opt.Step(params, lr)
	}

	res := StepResult{
		Step:     r.step,
		Overflow: overflow,
		Skipped:  skip,
	}
	err := r.ctrl.UpdateScale(overflow)
	res.Scale = r.ctrl.Scale()
	if err != nil {
		r.log.Error(err, "aborting training run",
			"session", r.session, "step", r.step)
		return res, errors.Wrapf(err, "step %d", r.step)
	}

	if overflow {
		r.log.V(1).Info("gradient overflow",
			"session", r.session, "step", r.step,
			"scale", res.Scale, "skipped", skip)
	}
	return res, nil
}

// gateOnOverflow interprets the controller's update policy: a nil
// descriptor means the caller manages the scale inside the optimizer and
// the update is never dropped.
func (r *Runner) gateOnOverflow() bool {
	if r.ctrl.UpdatePolicy() == nil {
		return false
	}
	return r.ctrl.DropOverflowUpdate()
}
