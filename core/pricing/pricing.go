// Package pricing chooses the charging start time from a day-ahead price
// curve.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/smartcharge/core/clock"
)

// ErrNoPrices is returned when a price source has nothing for the window.
var ErrNoPrices = errors.New("no price points in window")

// PricePoint is the price of one hourly slot starting at Timestamp.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Query asks for the Slots cheapest contiguous points in [From, To).
type Query struct {
	Slots int
	From  time.Time
	To    time.Time
}

// Hours is the number of whole hourly slots in [From, To).
func (q Query) Hours() int {
	return int(q.To.Sub(q.From) / time.Hour)
}

// Oracle returns a chronologically ordered contiguous run of price points.
type Oracle interface {
	CheapestRun(ctx context.Context, q Query) ([]PricePoint, error)
}

// Window is the nightly search range as times of day. End is on the next day
// whenever it is not after Start.
type Window struct {
	Start clock.Time `json:"start"`
	End   clock.Time `json:"end"`
}

// DefaultWindow is the 22:00 to 07:00 range.
func DefaultWindow() Window {
	return Window{Start: clock.Time{Hour: 22}, End: clock.Time{Hour: 7}}
}

// Bounds anchors the window on the calendar day of now, in now's location.
// A window that has already closed by now moves to the next day.
func (w Window) Bounds(now time.Time) (time.Time, time.Time) {
	from := w.Start.On(now)
	to := w.End.On(now)
	if !to.After(from) {
		to = to.AddDate(0, 0, 1)
	}
	if !now.Before(to) {
		from = from.AddDate(0, 0, 1)
		to = to.AddDate(0, 0, 1)
	}
	return from, to
}

// SortByTime orders points chronologically in place.
func SortByTime(points []PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}

// CheapestRun returns the n consecutive points with the lowest total price.
// Ties go to the earliest run. When fewer than n points exist the whole
// series is returned.
func CheapestRun(points []PricePoint, n int) ([]PricePoint, error) {
	if len(points) == 0 {
		return nil, ErrNoPrices
	}
	if n <= 0 {
		return nil, fmt.Errorf("run length must be positive, got %d", n)
	}
	sorted := append([]PricePoint(nil), points...)
	SortByTime(sorted)
	if n >= len(sorted) {
		return sorted, nil
	}
	prices := pricesOf(sorted)
	best, bestSum := 0, floats.Sum(prices[:n])
	for i := 1; i+n <= len(prices); i++ {
		if s := floats.Sum(prices[i : i+n]); s < bestSum {
			best, bestSum = i, s
		}
	}
	return sorted[best : best+n], nil
}

// Stats summarises a run of prices.
type Stats struct {
	Min  float64
	Mean float64
	Max  float64
}

// Summarize computes min, mean and max over points.
func Summarize(points []PricePoint) Stats {
	if len(points) == 0 {
		return Stats{}
	}
	p := pricesOf(points)
	return Stats{Min: floats.Min(p), Mean: stat.Mean(p, nil), Max: floats.Max(p)}
}

func pricesOf(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}
