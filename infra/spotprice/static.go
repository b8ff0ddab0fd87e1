package spotprice

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/smartcharge/core/pricing"
)

// Static serves a fixed hourly price curve starting at the window start. It
// backs dry runs without network access.
type Static struct {
	Prices []float64 `json:"prices"`
}

// CheapestRun implements pricing.Oracle.
func (s Static) CheapestRun(_ context.Context, q pricing.Query) ([]pricing.PricePoint, error) {
	if len(s.Prices) == 0 {
		return nil, errors.New("static oracle has no prices")
	}
	pts := make([]pricing.PricePoint, 0, len(s.Prices))
	for i, p := range s.Prices {
		ts := q.From.Add(time.Duration(i) * time.Hour)
		if !q.To.IsZero() && !ts.Before(q.To) {
			break
		}
		pts = append(pts, pricing.PricePoint{Timestamp: ts, Price: p})
	}
	return pricing.CheapestRun(pts, q.Slots)
}
