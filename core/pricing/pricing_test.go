package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/smartcharge/core/clock"
)

var helsinki = time.FixedZone("EET", 2*3600)

func series(start time.Time, prices ...float64) []PricePoint {
	out := make([]PricePoint, len(prices))
	for i, p := range prices {
		out[i] = PricePoint{Timestamp: start.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return out
}

func TestLateShift(t *testing.T) {
	start := time.Date(2024, 1, 10, 23, 0, 0, 0, helsinki)

	// last cheaper than first: 1 - 0.4 = 0.6h
	assert.Equal(t, 36*time.Minute, LateShift(series(start, 10, 8, 5), 1.4))
	// equal prices also shift
	assert.Equal(t, 21*time.Minute, LateShift(series(start, 5, 9, 5), 2.65))
	// whole hours leave a full spare slot
	assert.Equal(t, time.Hour, LateShift(series(start, 5, 4, 3, 2), 3.0))
	// first strictly cheaper: no shift whatever the fraction
	for _, h := range []float64{1.01, 1.4, 2.99} {
		assert.Zero(t, LateShift(series(start, 4, 8, 5), h))
	}
	// single slot never shifts
	assert.Zero(t, LateShift(series(start, 9), 0))
}

func TestLateShift_NoFloatDrift(t *testing.T) {
	start := time.Date(2024, 1, 10, 23, 0, 0, 0, helsinki)
	run := series(start, 3, 2, 1)
	// 1.15 * 100 is 114.999... in binary floating point
	assert.Equal(t, 51*time.Minute, LateShift(run, 1.15))
	assert.Equal(t, 42*time.Minute, LateShift(run, 2.3))
}

func TestCheapestRun(t *testing.T) {
	start := time.Date(2024, 1, 10, 22, 0, 0, 0, helsinki)
	pts := series(start, 9, 7, 3, 2, 4, 8, 1, 9, 9)

	run, err := CheapestRun(pts, 3)
	require.NoError(t, err)
	require.Len(t, run, 3)
	assert.Equal(t, start.Add(2*time.Hour), run[0].Timestamp)
	assert.Equal(t, []float64{3, 2, 4}, pricesOf(run))

	// input order does not matter
	shuffled := []PricePoint{pts[4], pts[0], pts[8], pts[2], pts[6], pts[1], pts[3], pts[5], pts[7]}
	run2, err := CheapestRun(shuffled, 3)
	require.NoError(t, err)
	assert.Equal(t, run, run2)

	all, err := CheapestRun(pts[:2], 5)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = CheapestRun(nil, 3)
	assert.ErrorIs(t, err, ErrNoPrices)
	_, err = CheapestRun(pts, 0)
	assert.Error(t, err)
}

func TestCheapestRun_TiesPickEarliest(t *testing.T) {
	start := time.Date(2024, 1, 10, 22, 0, 0, 0, helsinki)
	run, err := CheapestRun(series(start, 1, 1, 5, 1, 1), 2)
	require.NoError(t, err)
	assert.Equal(t, start, run[0].Timestamp)
}

func TestSummarize(t *testing.T) {
	start := time.Date(2024, 1, 10, 22, 0, 0, 0, helsinki)
	s := Summarize(series(start, 2, 4, 9))
	assert.Equal(t, Stats{Min: 2, Mean: 5, Max: 9}, s)
	assert.Equal(t, Stats{}, Summarize(nil))
}

func TestWindowBounds(t *testing.T) {
	w := DefaultWindow()
	now := time.Date(2024, 1, 10, 20, 0, 0, 0, helsinki)
	from, to := w.Bounds(now)
	assert.Equal(t, time.Date(2024, 1, 10, 22, 0, 0, 0, helsinki), from)
	assert.Equal(t, time.Date(2024, 1, 11, 7, 0, 0, 0, helsinki), to)
	assert.Equal(t, 9, Query{From: from, To: to}.Hours())

	// early morning still targets the coming night
	from, to = w.Bounds(time.Date(2024, 1, 10, 3, 0, 0, 0, helsinki))
	assert.Equal(t, time.Date(2024, 1, 10, 22, 0, 0, 0, helsinki), from)
	assert.Equal(t, time.Date(2024, 1, 11, 7, 0, 0, 0, helsinki), to)
}

func TestWindowBounds_AfterMidnight(t *testing.T) {
	w := Window{Start: clock.Time{Hour: 1}, End: clock.Time{Hour: 7}}

	from, to := w.Bounds(time.Date(2024, 1, 10, 20, 0, 0, 0, helsinki))
	assert.Equal(t, time.Date(2024, 1, 11, 1, 0, 0, 0, helsinki), from)
	assert.Equal(t, time.Date(2024, 1, 11, 7, 0, 0, 0, helsinki), to)
	assert.Equal(t, 6, Query{From: from, To: to}.Hours())

	// before the window opens the same day is kept
	from, to = w.Bounds(time.Date(2024, 1, 10, 0, 30, 0, 0, helsinki))
	assert.Equal(t, time.Date(2024, 1, 10, 1, 0, 0, 0, helsinki), from)
	assert.Equal(t, time.Date(2024, 1, 10, 7, 0, 0, 0, helsinki), to)

	// the end instant belongs to the next occurrence
	from, _ = w.Bounds(time.Date(2024, 1, 10, 7, 0, 0, 0, helsinki))
	assert.Equal(t, time.Date(2024, 1, 11, 1, 0, 0, 0, helsinki), from)
}
