// Package job runs one scheduling cycle: estimate the charge duration, pick
// the start time from prices, then commit and verify it on the vehicle.
package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/smartcharge/core/charge"
	"github.com/kilianp07/smartcharge/core/clock"
	"github.com/kilianp07/smartcharge/core/commit"
	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/core/pricing"
)

var (
	// ErrEstimationUnavailable stops a run before anything is sent.
	ErrEstimationUnavailable = errors.New("charge duration could not be estimated")
	// ErrPriceLookupUnavailable is recovered by using the default start time.
	ErrPriceLookupUnavailable = errors.New("price lookup unavailable")
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeSuccess               Outcome = "success"
	OutcomeEstimationUnavailable Outcome = "estimation_unavailable"
	OutcomePriceFallback         Outcome = "price_fallback"
	OutcomeVerificationFailed    Outcome = "verification_failed"
	OutcomePlanned               Outcome = "planned"
	OutcomeCancelled             Outcome = "cancelled"
)

// Estimator is the duration stage.
type Estimator interface {
	Estimate(ctx context.Context) (charge.Estimate, error)
}

// Planner is the price stage.
type Planner interface {
	Decide(ctx context.Context, hours float64) (pricing.Decision, error)
}

// Committer is the commit and verify stage.
type Committer interface {
	Commit(ctx context.Context, start clock.Time) (commit.Result, error)
}

// Report is the result of one run. Nothing in it is reused by later runs.
type Report struct {
	RunID         string
	VehicleID     string
	Outcome       Outcome
	LevelPercent  int
	RequiredHours float64
	SlotCount     int
	Start         clock.Time
	HasStart      bool
	PriceFallback bool
	Verified      bool
	// Err holds the failure behind a non-success outcome, or the price
	// lookup failure that caused a fallback.
	Err      error
	Started  time.Time
	Finished time.Time
}

// Driver runs the stages strictly in order.
type Driver struct {
	Estimator Estimator
	Planner   Planner
	Committer Committer
	VehicleID string
	// Pacing is waited between stages.
	Pacing  time.Duration
	Sleep   commit.Sleeper
	Log     logger.Logger
	Metrics metrics.MetricsSink
	Now     func() time.Time
	NewID   func() string
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) pause(ctx context.Context) error {
	sleep := d.Sleep
	if sleep == nil {
		sleep = commit.Sleep
	}
	return sleep(ctx, d.Pacing)
}

func (d *Driver) begin(ctx context.Context) (context.Context, logger.Logger, *Report) {
	newID := d.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	rep := &Report{RunID: newID(), VehicleID: d.VehicleID, Started: d.now()}
	log := logger.OrNop(d.Log).With("run_id", rep.RunID)
	return logger.NewContext(ctx, log), log, rep
}

func stageCtx(ctx context.Context, log logger.Logger, stage string) context.Context {
	return logger.NewContext(ctx, log.With("stage", stage))
}

// Run executes a full cycle. It never returns an error: every failure ends
// up as the report outcome.
func (d *Driver) Run(ctx context.Context) Report {
	ctx, log, rep := d.begin(ctx)
	log.Infof("charge scheduling run started for %s", d.VehicleID)
	d.run(ctx, log, rep)
	d.finish(log, rep)
	return *rep
}

func (d *Driver) run(ctx context.Context, log logger.Logger, rep *Report) {
	if !d.plan(ctx, log, rep) {
		return
	}
	if err := d.pause(ctx); err != nil {
		d.cancelled(rep, err)
		return
	}

	res, err := d.Committer.Commit(stageCtx(ctx, log, "commit"), rep.Start)
	switch {
	case ctx.Err() != nil:
		d.cancelled(rep, ctx.Err())
	case err != nil:
		rep.Outcome = OutcomeVerificationFailed
		rep.Err = err
		log.Errorf("start time %s not confirmed, giving up until next run: %v", rep.Start, err)
	default:
		rep.Verified = true
		rep.Outcome = OutcomeSuccess
		if rep.PriceFallback {
			rep.Outcome = OutcomePriceFallback
		}
		log.Infof("charging start %s set and confirmed (read back %q)", res.Start, res.ReadBack)
	}
}

// Plan runs the estimate and price stages only. Nothing is sent.
func (d *Driver) Plan(ctx context.Context) Report {
	ctx, log, rep := d.begin(ctx)
	log.Infof("dry run for %s", d.VehicleID)
	if d.plan(ctx, log, rep) {
		rep.Outcome = OutcomePlanned
	}
	d.finish(log, rep)
	return *rep
}

// plan fills the estimate and the start time. It returns false when the run
// must stop.
func (d *Driver) plan(ctx context.Context, log logger.Logger, rep *Report) bool {
	est, err := d.Estimator.Estimate(stageCtx(ctx, log, "estimate"))
	if err != nil {
		if ctx.Err() != nil {
			d.cancelled(rep, ctx.Err())
			return false
		}
		rep.Outcome = OutcomeEstimationUnavailable
		rep.Err = errors.Join(ErrEstimationUnavailable, err)
		log.Errorf("battery level unavailable, no charge command sent this cycle: %v", err)
		return false
	}
	rep.LevelPercent = est.LevelPercent
	rep.RequiredHours = est.Hours
	rep.SlotCount = est.Slots

	if err := d.pause(ctx); err != nil {
		d.cancelled(rep, err)
		return false
	}

	dec, err := d.Planner.Decide(stageCtx(ctx, log, "price"), est.Hours)
	if err != nil {
		d.cancelled(rep, err)
		return false
	}
	rep.Start = dec.Start
	rep.HasStart = true
	if dec.Fallback {
		rep.PriceFallback = true
		rep.Err = errors.Join(ErrPriceLookupUnavailable, errors.New(dec.Reason))
		log.Warnf("using default start time %s", dec.Start)
	}
	return true
}

func (d *Driver) cancelled(rep *Report, err error) {
	rep.Outcome = OutcomeCancelled
	rep.Err = err
}

func (d *Driver) finish(log logger.Logger, rep *Report) {
	rep.Finished = d.now()
	log.Infow("charge scheduling run finished", map[string]any{
		"outcome":        string(rep.Outcome),
		"required_hours": rep.RequiredHours,
		"start":          startLabel(rep),
		"price_fallback": rep.PriceFallback,
		"verified":       rep.Verified,
		"duration":       rep.Finished.Sub(rep.Started).String(),
	})
	if d.Metrics == nil {
		return
	}
	ev := metrics.JobEvent{
		RunID:         rep.RunID,
		VehicleID:     rep.VehicleID,
		Outcome:       string(rep.Outcome),
		RequiredHours: rep.RequiredHours,
		SlotCount:     rep.SlotCount,
		StartMinute:   -1,
		PriceFallback: rep.PriceFallback,
		Verified:      rep.Verified,
		Duration:      rep.Finished.Sub(rep.Started),
		Time:          rep.Finished,
	}
	if rep.HasStart {
		ev.StartMinute = rep.Start.Minutes()
	}
	if err := d.Metrics.RecordJob(ev); err != nil {
		log.Warnf("record job metrics: %v", err)
	}
}

func startLabel(rep *Report) string {
	if !rep.HasStart {
		return ""
	}
	return rep.Start.String()
}
