package pricing

import (
	"math"
	"time"
)

// LateShift is how far the start moves into the run when the run gets
// cheaper toward its end: the unused part of the spare slot, 1 - frac(hours).
// The fraction is taken in hundredths of an hour so that 1.4 gives exactly
// 36 minutes. A run of one slot, or one whose first price is strictly below
// its last, is not shifted.
func LateShift(run []PricePoint, hours float64) time.Duration {
	if len(run) < 2 || run[0].Price < run[len(run)-1].Price {
		return 0
	}
	hundredths := int64(math.Round(hours * 100))
	frac := hundredths % 100
	return time.Duration(100-frac) * 36 * time.Second
}
