package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/smartcharge/core/charge"
	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/core/retry"
)

// Decision is the start time chosen for one night.
type Decision struct {
	Start clock.Time
	// Base is the first slot of the run before any shift.
	Base     clock.Time
	Shift    time.Duration
	Run      []PricePoint
	Stats    Stats
	Fallback bool
	// Reason explains a fallback.
	Reason string
}

// Optimizer turns a charge duration into a start time using an Oracle.
type Optimizer struct {
	Oracle   Oracle
	Window   Window
	Location *time.Location
	// Default is used whenever no price run could be obtained.
	Default   clock.Time
	Budget    retry.Budget
	Retrier   *retry.Retrier
	Log       logger.Logger
	Metrics   metrics.PriceWindowRecorder
	VehicleID string
	Now       func() time.Time
}

func (o *Optimizer) now() time.Time {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

// Decide picks the start time for a charge of the given length. It only
// fails when ctx is cancelled; an unreachable oracle yields the configured
// default with Fallback set.
func (o *Optimizer) Decide(ctx context.Context, hours float64) (Decision, error) {
	log := logger.FromContext(ctx, o.Log)
	slots := charge.SlotCount(hours)
	from, to := o.Window.Bounds(o.now())
	q := Query{Slots: slots, From: from, To: to}
	log.Infof("looking up %d cheapest contiguous slots between %s and %s",
		slots, from.Format("2006-01-02T15:04"), to.Format("2006-01-02T15:04"))

	run, err := retry.Do(ctx, o.Retrier, "price lookup", o.Budget, func(ctx context.Context) ([]PricePoint, error) {
		pts, err := o.Oracle.CheapestRun(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(pts) == 0 {
			return nil, ErrNoPrices
		}
		return pts, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		log.Errorf("price lookup unavailable, using default start %s: %v", o.Default, err)
		return Decision{Start: o.Default, Base: o.Default, Fallback: true, Reason: err.Error()}, nil
	}

	SortByTime(run)
	if len(run) != slots {
		log.Warnf("oracle returned %d slots, expected %d", len(run), slots)
	}
	base := clock.Of(run[0].Timestamp.In(from.Location()))
	shift := LateShift(run, hours)
	d := Decision{
		Start: base.Add(shift),
		Base:  base,
		Shift: shift,
		Run:   run,
		Stats: Summarize(run),
	}
	log.Infow("start time decided", map[string]any{
		"base":       base.String(),
		"shift":      shift.String(),
		"start":      d.Start.String(),
		"first":      run[0].Price,
		"last":       run[len(run)-1].Price,
		"mean_price": d.Stats.Mean,
	})
	o.record(d)
	return d, nil
}

func (o *Optimizer) record(d Decision) {
	if o.Metrics == nil {
		return
	}
	ev := metrics.PriceWindowEvent{
		VehicleID: o.VehicleID,
		Points:    len(d.Run),
		MinPrice:  d.Stats.Min,
		MeanPrice: d.Stats.Mean,
		MaxPrice:  d.Stats.Max,
		Start:     d.Run[0].Timestamp.Add(d.Shift).Truncate(time.Minute),
		Time:      o.now(),
	}
	if err := o.Metrics.RecordPriceWindow(ev); err != nil {
		logger.OrNop(o.Log).Debugf("record price window: %v", err)
	}
}

// NewOptimizer checks that the collaborators needed at run time are set.
func NewOptimizer(o Optimizer) (*Optimizer, error) {
	if o.Oracle == nil {
		return nil, fmt.Errorf("price oracle is required")
	}
	if err := o.Budget.Validate(); err != nil {
		return nil, fmt.Errorf("price budget: %w", err)
	}
	return &o, nil
}
