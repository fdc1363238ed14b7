// Package mindspore provides building blocks for mixed-precision neural
// network training in Go.
//
// Mixed-precision training runs the forward pass in float16 and keeps
// gradients and master weights in float32. Small gradients underflow in
// float16, so the loss is multiplied by a scale factor before
// backpropagation and the gradients are divided by the same factor before
// the optimizer step. Picking that factor is the job of the loss-scale
// controller.
//
// # Architecture
//
// The module is organized into several sub-packages:
//
//   - lossscale: fixed and dynamic loss-scale controllers, the per-step
//     state machine that decides when to raise, lower, or hold the scale
//   - amp: vectorized numeric support for gradient overflow detection,
//     scaling/unscaling, and float16 conversions
//   - train: the training-step executor that wires a controller and an
//     optimizer together, plus checkpointing of master weights
//
// # Usage
//
// A training loop owns one controller for the life of the session and
// drives it once per step:
//
//	ctrl, err := lossscale.NewDynamic()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	runner := train.NewRunner(ctrl, train.NewSGD(0.9, 0))
//
//	for step := 0; step < maxSteps; step++ {
//	    loss := forward(batch)
//	    backward(runner.ScaleLoss(loss)) // gradients land in params[i].Grad
//	    if _, err := runner.Step(params, 1e-3); err != nil {
//	        log.Fatal(err) // persistent overflow, training is unstable
//	    }
//	}
//
// Gradient computation, tensor sharding, and dataset loading are outside
// this module; the executor only needs the gradients a backward pass has
// already produced.
package mindspore
