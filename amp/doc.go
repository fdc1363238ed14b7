// Package amp provides the vectorized numeric support for mixed-precision
// training: gradient overflow detection, loss/gradient scaling, and
// float16 conversions for forward-pass working copies.
//
// The loss-scale controllers in package lossscale are pure state machines;
// this package supplies the arithmetic the training-step executor runs
// around them.
package amp
