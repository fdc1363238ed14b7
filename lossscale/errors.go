package lossscale

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidConfig is wrapped by every construction-time validation
// failure. Use errors.Is to detect it.
var ErrInvalidConfig = errors.New("invalid loss scale configuration")

// PersistentOverflowError is returned by UpdateScale once the number of
// consecutive overflowing steps exceeds the configured ceiling. The scale
// has collapsed repeatedly by then and the training run must be aborted:
// the instability is a property of the model or data, and the controller
// has no recovery path.
type PersistentOverflowError struct {
	// Count is the length of the current overflow streak, including the
	// call that reported the error.
	Count int

	// Limit is the configured ceiling the streak exceeded.
	Limit int
}

func (e *PersistentOverflowError) Error() string {
	return fmt.Sprintf("loss scale overflowed on %d consecutive steps, exceeding the maximum of %d", e.Count, e.Limit)
}
