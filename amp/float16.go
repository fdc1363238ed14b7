package amp

import (
	"fmt"

	"github.com/ajroetker/go-highway/hwy"
)

// DemoteFloat16 converts src to float16 into dst, for refreshing the
// forward-pass working copy after a master-weight update. Values beyond
// the float16 range saturate to Inf per IEEE 754 rules.
func DemoteFloat16(dst []hwy.Float16, src []float32) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("amp: length mismatch: dst %d, src %d", len(dst), len(src)))
	}
	for i, v := range src {
		dst[i] = hwy.Float32ToFloat16(v)
	}
}

// PromoteFloat16 converts src back to float32 into dst, for computations
// that need full precision.
func PromoteFloat16(dst []float32, src []hwy.Float16) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("amp: length mismatch: dst %d, src %d", len(dst), len(src)))
	}
	for i, h := range src {
		dst[i] = h.Float32()
	}
}
