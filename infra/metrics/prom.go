package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
)

// PromSink records scheduling runs in Prometheus metrics.
type PromSink struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	attempts      *prometheus.CounterVec
	requiredHours *prometheus.GaugeVec
	startMinute   *prometheus.GaugeVec
	windowPrice   *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register returns the collector already registered under the same
// descriptor, if any, so that sinks can be built more than once.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcharge_runs_total",
		Help: "Scheduling runs by outcome",
	}, []string{"vehicle_id", "outcome"})); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "smartcharge_run_duration_seconds",
		Help:    "Wall time of a scheduling run including retry waits",
		Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
	})); err != nil {
		return nil, err
	}
	if s.attempts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smartcharge_call_attempts_total",
		Help: "Attempts of remote calls by operation and result",
	}, []string{"operation", "success"})); err != nil {
		return nil, err
	}
	if s.requiredHours, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcharge_required_hours",
		Help: "Charge duration estimated by the last run",
	}, []string{"vehicle_id"})); err != nil {
		return nil, err
	}
	if s.startMinute, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcharge_start_minute",
		Help: "Committed charging start as minutes after midnight",
	}, []string{"vehicle_id"})); err != nil {
		return nil, err
	}
	if s.windowPrice, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smartcharge_window_price",
		Help: "Price statistics of the selected charging run",
	}, []string{"vehicle_id", "stat"})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordJob counts the run and updates the last-run gauges.
func (s *PromSink) RecordJob(ev coremetrics.JobEvent) error {
	s.runs.WithLabelValues(ev.VehicleID, ev.Outcome).Inc()
	s.runDuration.Observe(ev.Duration.Seconds())
	s.requiredHours.WithLabelValues(ev.VehicleID).Set(ev.RequiredHours)
	if ev.StartMinute >= 0 {
		s.startMinute.WithLabelValues(ev.VehicleID).Set(float64(ev.StartMinute))
	}
	return nil
}

// RecordAttempt counts a remote call attempt.
func (s *PromSink) RecordAttempt(ev coremetrics.AttemptEvent) error {
	s.attempts.WithLabelValues(ev.Operation, strconv.FormatBool(ev.Success)).Inc()
	return nil
}

// RecordPriceWindow exposes min, mean and max of the chosen run.
func (s *PromSink) RecordPriceWindow(ev coremetrics.PriceWindowEvent) error {
	s.windowPrice.WithLabelValues(ev.VehicleID, "min").Set(ev.MinPrice)
	s.windowPrice.WithLabelValues(ev.VehicleID, "mean").Set(ev.MeanPrice)
	s.windowPrice.WithLabelValues(ev.VehicleID, "max").Set(ev.MaxPrice)
	return nil
}
