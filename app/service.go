package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/kilianp07/smartcharge/config"
	"github.com/kilianp07/smartcharge/core/charge"
	"github.com/kilianp07/smartcharge/core/commit"
	"github.com/kilianp07/smartcharge/core/job"
	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/core/pricing"
	"github.com/kilianp07/smartcharge/core/retry"
	"github.com/kilianp07/smartcharge/core/vehicle"
	"github.com/kilianp07/smartcharge/infra/logger"
	"github.com/kilianp07/smartcharge/infra/metrics"
	_ "github.com/kilianp07/smartcharge/infra/mqtt"
	"github.com/kilianp07/smartcharge/infra/psa"
	_ "github.com/kilianp07/smartcharge/infra/spotprice"
)

// Runner executes scheduling runs.
type Runner interface {
	Run(ctx context.Context) job.Report
	Plan(ctx context.Context) job.Report
}

// Service triggers the charge scheduling job on a cron schedule, once a day
// by default.
type Service struct {
	Driver   Runner
	Schedule cron.Schedule
	Location *time.Location
	// MetricsListen exposes /metrics when set.
	MetricsListen string

	log     logger.Logger
	closers []io.Closer
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	if !logger.SetLevel(cfg.Logging.Level) {
		logg.Warnf("unknown log level %q, keeping default", cfg.Logging.Level)
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}
	sched, err := cfg.Schedule.Parse()
	if err != nil {
		return nil, err
	}

	car, err := psa.New(cfg.Vehicle, logger.New("psa"))
	if err != nil {
		return nil, fmt.Errorf("vehicle: %w", err)
	}
	oracle, err := pricing.NewOracle(cfg.Oracle)
	if err != nil {
		return nil, fmt.Errorf("price oracle: %w", err)
	}
	sink, err := vehicle.NewCommandSink(cfg.Sink)
	if err != nil {
		return nil, fmt.Errorf("command sink: %w", err)
	}
	ms, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	s := &Service{
		Schedule:      sched,
		Location:      loc,
		MetricsListen: cfg.Metrics.Listen,
		log:           logg,
	}
	for _, v := range []any{sink, ms} {
		if c, ok := v.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}

	retrier := &retry.Retrier{Log: logger.New("retry")}
	if ar, ok := ms.(coremetrics.AttemptRecorder); ok {
		retrier.Metrics = ar
	}
	est, err := charge.NewEstimator(cfg.Charging, car, cfg.Retry.Read, retrier, logger.New("estimator"))
	if err != nil {
		return nil, err
	}
	opt := pricing.Optimizer{
		Oracle:    oracle,
		Window:    cfg.Window,
		Location:  loc,
		Default:   cfg.DefaultStart,
		Budget:    cfg.Retry.Price,
		Retrier:   retrier,
		Log:       logger.New("optimizer"),
		VehicleID: cfg.Vehicle.VIN,
	}
	if pr, ok := ms.(coremetrics.PriceWindowRecorder); ok {
		opt.Metrics = pr
	}
	planner, err := pricing.NewOptimizer(opt)
	if err != nil {
		return nil, err
	}
	committer := &commit.Controller{
		Sink:      sink,
		Telemetry: car,
		VIN:       cfg.Vehicle.VIN,
		Rounds:    cfg.Retry.Verify,
		Settle:    cfg.Retry.Settle,
		Retrier:   retrier,
		Log:       logger.New("commit"),
	}
	s.Driver = &job.Driver{
		Estimator: est,
		Planner:   planner,
		Committer: committer,
		VehicleID: cfg.Vehicle.VIN,
		Pacing:    cfg.Schedule.Pacing,
		Log:       logger.New("job"),
		Metrics:   ms,
	}
	return s, nil
}

func (s *Service) logg() logger.Logger {
	if s.log == nil {
		s.log = logger.New("service")
	}
	return s.log
}

// cronLogger routes the scheduler's own messages to the service logger.
type cronLogger struct{ log logger.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.log.Debugw("cron: "+msg, fields(kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Errorf("cron: %s: %v %v", msg, err, fields(kv))
}

func fields(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}

// Run starts the trigger and blocks until the context is cancelled. A run
// still in progress when the next one is due causes that trigger to be
// skipped.
func (s *Service) Run(ctx context.Context) error {
	log := s.logg()
	if s.Schedule == nil {
		return errors.New("no schedule configured")
	}
	if s.MetricsListen != "" {
		go func() {
			if err := metrics.Serve(ctx, s.MetricsListen, prometheus.DefaultGatherer); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.Schedule, cron.FuncJob(func() {
		rep := s.Driver.Run(ctx)
		if rep.Outcome != job.OutcomeCancelled {
			log.Infof("next charge scheduling run at %s", s.Schedule.Next(time.Now()).Format(time.RFC3339))
		}
	}))
	log.Infof("next charge scheduling run at %s", s.Schedule.Next(time.Now().In(loc)).Format(time.RFC3339))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce executes a single full run now.
func (s *Service) RunOnce(ctx context.Context) job.Report {
	return s.Driver.Run(ctx)
}

// Plan computes the start time without commanding the vehicle.
func (s *Service) Plan(ctx context.Context) job.Report {
	return s.Driver.Plan(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
