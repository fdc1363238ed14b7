package lossscale

import "github.com/pkg/errors"

// FixedScaleController supplies a constant loss scale with no adaptive
// behavior, for users who manage the scale manually.
//
// Note that when drop-overflow-update is disabled, the loss scale
// configured in the optimizer must match the value here, since the
// executor will then apply every update regardless of overflow.
type FixedScaleController struct {
	scale              float64
	dropOverflowUpdate bool
}

// FixedOption configures a FixedScaleController.
type FixedOption func(*FixedScaleController)

// WithScale sets the constant loss scale. Default: 128.
func WithScale(scale float64) FixedOption {
	return func(c *FixedScaleController) {
		c.scale = scale
	}
}

// WithDropOverflowUpdate controls whether the optimizer update is skipped
// on overflowing steps. Default: true.
func WithDropOverflowUpdate(drop bool) FixedOption {
	return func(c *FixedScaleController) {
		c.dropOverflowUpdate = drop
	}
}

// NewFixed creates a fixed-scale controller with the given options.
func NewFixed(opts ...FixedOption) (*FixedScaleController, error) {
	c := &FixedScaleController{
		scale:              DefaultFixedScale,
		dropOverflowUpdate: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scale < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "scale must be >= 1, got %v", c.scale)
	}
	return c, nil
}

// Scale returns the configured loss scale.
func (c *FixedScaleController) Scale() float64 { return c.scale }

// UpdateScale is a no-op: fixed scaling never adapts.
func (c *FixedScaleController) UpdateScale(overflow bool) error { return nil }

// DropOverflowUpdate reports the configured flag.
func (c *FixedScaleController) DropOverflowUpdate() bool { return c.dropOverflowUpdate }

// UpdatePolicy returns a descriptor carrying the fixed scale when updates
// are dropped on overflow, and nil otherwise.
func (c *FixedScaleController) UpdatePolicy() *UpdateDescriptor {
	if !c.dropOverflowUpdate {
		return nil
	}
	return &UpdateDescriptor{Scale: c.scale}
}
