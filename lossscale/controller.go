package lossscale

// Default configuration values. They match the defaults the training
// wrappers assume when no options are given.
const (
	// DefaultFixedScale is the scale used by NewFixed when WithScale is not
	// given.
	DefaultFixedScale = 128.0

	// DefaultInitialScale is the starting scale for NewDynamic. 2^24 leaves
	// room for aggressive backoff before the scale reaches its floor of 1.
	DefaultInitialScale = float64(1 << 24)

	// DefaultScaleFactor is the multiplicative step used both to grow the
	// scale and (inverted) to shrink it.
	DefaultScaleFactor = 2.0

	// DefaultScaleWindow is the number of consecutive clean steps required
	// before the dynamic controller grows the scale.
	DefaultScaleWindow = 2000

	// DefaultMaxConsecutiveOverflow is the ceiling on consecutive
	// overflowing steps before the dynamic controller reports the run as
	// numerically unstable.
	DefaultMaxConsecutiveOverflow = 1000
)

// Controller is the per-step loss-scale contract shared by the fixed and
// dynamic variants.
//
// Scale feeds the scalar used to multiply the loss before backpropagation
// and to divide gradients before the optimizer step. UpdateScale is called
// exactly once per completed training step with the step's overflow
// indicator. UpdatePolicy describes, for the training-step executor, how
// the scale update and the overflow gating should be applied; the
// controller never executes that policy itself.
type Controller interface {
	// Scale returns the current loss scale. It never fails and has no side
	// effects. The returned value is always >= 1.
	Scale() float64

	// UpdateScale records the overflow outcome of the step that just
	// completed and adjusts the scale. It returns a *PersistentOverflowError
	// once the consecutive-overflow ceiling is exceeded; all state has
	// already been updated for the call when the error is returned.
	UpdateScale(overflow bool) error

	// UpdatePolicy returns the descriptor the training-step executor uses
	// to gate the optimizer update on overflow and to fuse the scale-update
	// arithmetic into its own step. A nil descriptor means the executor
	// should never skip the optimizer update; the caller is then
	// responsible for matching the optimizer's own scale.
	UpdatePolicy() *UpdateDescriptor

	// DropOverflowUpdate reports whether the optimizer's parameter update
	// must be skipped on steps whose gradients overflowed.
	DropOverflowUpdate() bool
}

// UpdateDescriptor describes a controller's scale-update behavior to the
// training-step executor. The controller only produces it; interpretation
// belongs entirely to the executor.
//
// For a fixed controller, Scale carries the constant scale and the other
// fields are zero. For a dynamic controller, Dynamic is true and
// ScaleFactor/ScaleWindow carry the adaptation parameters.
type UpdateDescriptor struct {
	Scale       float64
	ScaleFactor float64
	ScaleWindow int
	Dynamic     bool
}

// Compile-time checks:
var (
	_ Controller = (*FixedScaleController)(nil)
	_ Controller = (*DynamicLossScaleController)(nil)
)
