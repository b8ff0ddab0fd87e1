package charge

import (
	"context"
	"fmt"

	"github.com/kilianp07/smartcharge/core/logger"
	"github.com/kilianp07/smartcharge/core/retry"
)

// LevelReader returns the current battery level in percent.
type LevelReader interface {
	BatteryLevel(ctx context.Context) (int, error)
}

// Estimate is the outcome of a successful estimation.
type Estimate struct {
	LevelPercent int
	Hours        float64
	Slots        int
}

// Estimator reads the battery level and derives the charge duration.
type Estimator struct {
	Profile Profile
	Reader  LevelReader
	Budget  retry.Budget
	Retrier *retry.Retrier
	Log     logger.Logger
}

// NewEstimator validates the profile before building the estimator.
func NewEstimator(p Profile, r LevelReader, b retry.Budget, rt *retry.Retrier, log logger.Logger) (*Estimator, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("charging profile: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("level reader is required")
	}
	return &Estimator{Profile: p, Reader: r, Budget: b, Retrier: rt, Log: log}, nil
}

// Estimate reads telemetry under the retry budget. An error means no level
// could be read and the caller must not continue.
func (e *Estimator) Estimate(ctx context.Context) (Estimate, error) {
	level, err := retry.Do(ctx, e.Retrier, "read battery level", e.Budget, e.Reader.BatteryLevel)
	if err != nil {
		return Estimate{}, err
	}
	h := e.Profile.RequiredHours(level)
	est := Estimate{LevelPercent: level, Hours: h, Slots: SlotCount(h)}
	logger.FromContext(ctx, e.Log).Infow("charge estimate", map[string]any{
		"level_percent":  level,
		"required_hours": h,
		"slots":          est.Slots,
		"power_kw":       Round2(e.Profile.PowerKW()),
	})
	return est, nil
}
