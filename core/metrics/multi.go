package metrics

import "errors"

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordJob forwards the record to all sinks and joins their errors.
func (m *MultiSink) RecordJob(ev JobEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordJob(ev))
	}
	return errors.Join(errs...)
}

// RecordAttempt forwards attempts to sinks that record them.
func (m *MultiSink) RecordAttempt(ev AttemptEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(AttemptRecorder); ok {
			errs = append(errs, rec.RecordAttempt(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordPriceWindow forwards price windows to sinks that record them.
func (m *MultiSink) RecordPriceWindow(ev PriceWindowEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(PriceWindowRecorder); ok {
			errs = append(errs, rec.RecordPriceWindow(ev))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink holding resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
