package resource

import (
	"math"
	"sync/atomic"
)

func storeFloat(bits *atomic.Uint64, v float64) {
	bits.Store(math.Float64bits(v))
}

func loadFloat(bits *atomic.Uint64) float64 {
	return math.Float64frombits(bits.Load())
}
