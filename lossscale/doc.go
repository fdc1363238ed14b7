// Package lossscale manages the loss-scale value used in mixed-precision
// training.
//
// The loss is multiplied by the scale before backpropagation so that small
// gradients survive float16, and the gradients are divided by the same
// scale before the optimizer step. Two controllers are provided:
//
//   - FixedScaleController holds a constant scale for users who manage the
//     scale manually.
//   - DynamicLossScaleController adapts the scale each step: it backs off
//     when a step's gradients overflow and grows again after a window of
//     clean steps.
//
// A controller is constructed once per training session and its
// UpdateScale method is called exactly once per completed training step,
// after the step's backward pass has reported whether any gradient
// overflowed:
//
//	ctrl, err := lossscale.NewDynamic(
//	    lossscale.WithInitialScale(65536),
//	    lossscale.WithScaleWindow(1000),
//	)
//	if err != nil { ... }
//
//	loss *= ctrl.Scale()
//	// ... backward pass, overflow detection ...
//	if err := ctrl.UpdateScale(overflow); err != nil {
//	    // persistent overflow: training is numerically unstable, abort
//	}
//
// Controllers are not safe for concurrent use; a single training loop must
// own each one.
package lossscale
