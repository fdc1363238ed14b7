package train

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LaiYongqiang/mindspore/lossscale"
)

func dynamicCtrl(t *testing.T, opts ...lossscale.DynamicOption) *lossscale.DynamicLossScaleController {
	t.Helper()
	c, err := lossscale.NewDynamic(opts...)
	require.NoError(t, err)
	return c
}

func TestRunnerCleanStepAppliesUpdate(t *testing.T) {
	ctrl := dynamicCtrl(t,
		lossscale.WithInitialScale(4),
		lossscale.WithScaleWindow(1000),
	)
	r := NewRunner(ctrl, NewSGD(0, 0))

	p := NewParam("w", 1)
	p.Data[0] = 1
	p.Grad[0] = 8 // gradient computed under a 4x-scaled loss

	res, err := r.Step([]*Param{p}, 0.5)
	require.NoError(t, err)

	assert.False(t, res.Overflow)
	assert.False(t, res.Skipped)
	assert.Equal(t, uint64(1), res.Step)
	// Unscaled gradient is 2, so param = 1 - 0.5*2 = 0.
	assert.InDelta(t, 0, float64(p.Data[0]), 1e-6)
}

func TestRunnerOverflowSkipsUpdateAndBacksOff(t *testing.T) {
	ctrl := dynamicCtrl(t,
		lossscale.WithInitialScale(1024),
		lossscale.WithScaleFactor(2),
	)
	r := NewRunner(ctrl, NewSGD(0, 0))

	p := NewParam("w", 2)
	p.Data[0] = 1
	p.Grad[0] = float32(math.Inf(1))

	res, err := r.Step([]*Param{p}, 0.5)
	require.NoError(t, err)

	assert.True(t, res.Overflow)
	assert.True(t, res.Skipped)
	assert.Equal(t, float64(512), res.Scale)
	// The optimizer never ran.
	assert.Equal(t, float32(1), p.Data[0])
}

// TestRunnerFixedWithoutDropAppliesOverflowingUpdate checks the nil-policy
// path: a fixed controller that does not drop overflow updates never gates
// the optimizer, even on an overflowing step.
func TestRunnerFixedWithoutDropAppliesOverflowingUpdate(t *testing.T) {
	ctrl, err := lossscale.NewFixed(
		lossscale.WithScale(2),
		lossscale.WithDropOverflowUpdate(false),
	)
	require.NoError(t, err)
	r := NewRunner(ctrl, NewSGD(0, 0))

	p := NewParam("w", 2)
	p.Data[0] = 1
	p.Grad[0] = float32(math.NaN())
	p.Grad[1] = 4

	res, err := r.Step([]*Param{p}, 0.5)
	require.NoError(t, err)

	assert.True(t, res.Overflow)
	assert.False(t, res.Skipped)
	assert.Equal(t, float64(2), res.Scale)
	// The update ran: the NaN propagated into the weights and the clean
	// lane was updated with the unscaled gradient (4/2 = 2).
	assert.True(t, math.IsNaN(float64(p.Data[0])))
	assert.InDelta(t, -1, float64(p.Data[1]), 1e-6)
}

func TestRunnerFixedWithDropSkips(t *testing.T) {
	ctrl, err := lossscale.NewFixed(lossscale.WithScale(128))
	require.NoError(t, err)
	r := NewRunner(ctrl, NewSGD(0, 0))

	p := NewParam("w", 1)
	p.Data[0] = 1
	p.Grad[0] = float32(math.NaN())

	res, err := r.Step([]*Param{p}, 0.5)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, float32(1), p.Data[0])
	assert.Equal(t, float64(128), res.Scale)
}

func TestRunnerPersistentOverflowIsFatal(t *testing.T) {
	ctrl := dynamicCtrl(t, lossscale.WithMaxConsecutiveOverflow(2))
	r := NewRunner(ctrl, NewSGD(0, 0))

	p := NewParam("w", 1)
	p.Grad[0] = float32(math.Inf(1))

	for i := 0; i < 2; i++ {
		_, err := r.Step([]*Param{p}, 0.1)
		require.NoError(t, err, "step %d", i+1)
	}

	_, err := r.Step([]*Param{p}, 0.1)
	require.Error(t, err)

	var perr *lossscale.PersistentOverflowError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 3, perr.Count)
	assert.Equal(t, 2, perr.Limit)
}

func TestRunnerScaleLoss(t *testing.T) {
	ctrl := dynamicCtrl(t, lossscale.WithInitialScale(1024))
	r := NewRunner(ctrl, NewSGD(0, 0))

	assert.Equal(t, float64(1024), r.LossScale())
	assert.Equal(t, float32(2048), r.ScaleLoss(2))
}

// TestRunnerGrowthAcrossSteps drives clean steps through the runner and
// checks the controller's growth cadence is observed end to end.
func TestRunnerGrowthAcrossSteps(t *testing.T) {
	ctrl := dynamicCtrl(t,
		lossscale.WithInitialScale(1024),
		lossscale.WithScaleFactor(2),
		lossscale.WithScaleWindow(3),
	)
	r := NewRunner(ctrl, NewSGD(0, 0))

	p := NewParam("w", 4)
	var last StepResult
	for i := 0; i < 3; i++ {
		p.Grad[0] = 1
		res, err := r.Step([]*Param{p}, 0.01)
		require.NoError(t, err)
		last = res
	}
	assert.Equal(t, float64(2048), last.Scale)
}
