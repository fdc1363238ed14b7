package lossscale

import (
	"math"

	"github.com/pkg/errors"
)

// DynamicLossScaleController adjusts the loss scale once per training
// step. On an overflowing step the scale is divided by the scale factor,
// floored at 1. After scaleWindow consecutive clean steps since the last
// overflow the scale is multiplied by the factor again.
//
// The controller tracks the length of the current overflow streak; a
// streak longer than the configured maximum means the scale has collapsed
// repeatedly and UpdateScale reports the run as unstable.
type DynamicLossScaleController struct {
	scale       float64
	scaleFactor float64
	scaleWindow int

	// currentStep starts at 1; lastOverflowStep at 0, so the growth window
	// is initially anchored at step 0.
	currentStep      int
	lastOverflowStep int

	consecutiveOverflow    int
	maxConsecutiveOverflow int
}

// DynamicOption configures a DynamicLossScaleController.
type DynamicOption func(*DynamicLossScaleController)

// WithInitialScale sets the starting loss scale. Default: 2^24.
func WithInitialScale(scale float64) DynamicOption {
	return func(c *DynamicLossScaleController) {
		c.scale = scale
	}
}

// WithScaleFactor sets the multiplicative step used to grow the scale and,
// inverted, to shrink it. Default: 2.
func WithScaleFactor(factor float64) DynamicOption {
	return func(c *DynamicLossScaleController) {
		c.scaleFactor = factor
	}
}

// WithScaleWindow sets the number of consecutive clean steps required
// before the scale grows. Default: 2000.
func WithScaleWindow(window int) DynamicOption {
	return func(c *DynamicLossScaleController) {
		c.scaleWindow = window
	}
}

// WithMaxConsecutiveOverflow sets the ceiling on the overflow streak
// before UpdateScale returns a *PersistentOverflowError. Default: 1000.
func WithMaxConsecutiveOverflow(limit int) DynamicOption {
	return func(c *DynamicLossScaleController) {
		c.maxConsecutiveOverflow = limit
	}
}

// NewDynamic creates a dynamic loss-scale controller with the given
// options.
func NewDynamic(opts ...DynamicOption) (*DynamicLossScaleController, error) {
	c := &DynamicLossScaleController{
		scale:                  DefaultInitialScale,
		scaleFactor:            DefaultScaleFactor,
		scaleWindow:            DefaultScaleWindow,
		currentStep:            1,
		lastOverflowStep:       0,
		maxConsecutiveOverflow: DefaultMaxConsecutiveOverflow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scale < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "initial scale must be >= 1, got %v", c.scale)
	}
	if c.scaleFactor <= 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "scale factor must be > 0, got %v", c.scaleFactor)
	}
	if c.scaleWindow < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "scale window must be >= 1, got %d", c.scaleWindow)
	}
	if c.maxConsecutiveOverflow < 1 {
		return nil, errors.Wrapf(ErrInvalidConfig, "max consecutive overflow must be >= 1, got %d", c.maxConsecutiveOverflow)
	}
	return c, nil
}

// Scale returns the current loss scale.
func (c *DynamicLossScaleController) Scale() float64 { return c.scale }

// UpdateScale records the overflow outcome of the completed step.
//
// On overflow the scale is divided by the scale factor (floored at 1), the
// growth window is re-anchored at the current step, and the overflow
// streak grows. On a clean step the streak resets, and the scale is
// multiplied by the factor if the step count since the last recorded
// overflow is a multiple of the scale window. The window test compares
// against the previously recorded overflow step, so growth can fire on the
// very first clean step when the window divides the initial gap from step
// 0.
//
// Once the streak exceeds the configured maximum, a
// *PersistentOverflowError is returned. The check runs after the state has
// been mutated, and the step counter advances regardless of the outcome.
func (c *DynamicLossScaleController) UpdateScale(overflow bool) error {
	if overflow {
		c.scale = math.Max(c.scale/c.scaleFactor, 1)
		c.lastOverflowStep = c.currentStep
		c.consecutiveOverflow++
	} else {
		if (c.currentStep-c.lastOverflowStep)%c.scaleWindow == 0 {
			c.scale *= c.scaleFactor
		}
		c.consecutiveOverflow = 0
	}

	var err error
	if c.consecutiveOverflow > c.maxConsecutiveOverflow {
		err = &PersistentOverflowError{
			Count: c.consecutiveOverflow,
			Limit: c.maxConsecutiveOverflow,
		}
	}
	c.currentStep++
	return err
}

// DropOverflowUpdate always reports true: with dynamic scaling the
// gradients of an overflowing step are invalid and must not reach the
// optimizer.
func (c *DynamicLossScaleController) DropOverflowUpdate() bool { return true }

// UpdatePolicy returns a descriptor carrying the current scale and the
// adaptation parameters.
func (c *DynamicLossScaleController) UpdatePolicy() *UpdateDescriptor {
	return &UpdateDescriptor{
		Scale:       c.scale,
		ScaleFactor: c.scaleFactor,
		ScaleWindow: c.scaleWindow,
		Dynamic:     true,
	}
}
