package metrics

import (
	"errors"
	"time"

	"github.com/mtkallio/spotcharge/core/market"
	"github.com/mtkallio/spotcharge/core/plan"
)

// Config selects the metric backends for a run.
type Config struct {
	InfluxEnabled bool   `json:"influx_enabled"`
	InfluxURL     string `json:"influx_url"`
	InfluxToken   string `json:"influx_token"`
	InfluxOrg     string `json:"influx_org"`
	InfluxBucket  string `json:"influx_bucket"`

	PushgatewayEnabled bool   `json:"pushgateway_enabled"`
	PushgatewayURL     string `json:"pushgateway_url"`
	PushJob            string `json:"push_job"`
}

// RunRecord is the per-invocation outcome handed to metric sinks.
type RunRecord struct {
	Zone            string
	Day             time.Time
	Series          *market.PriceSeries
	Schedule        plan.Schedule
	CommandFailures int
}

// Sink persists run outcomes to a metrics backend.
type Sink interface {
	RecordRun(rec RunRecord) error
	Close() error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordRun(RunRecord) error { return nil }
func (NopSink) Close() error              { return nil }

// MultiSink fans records out to several sinks and aggregates their errors.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines the given sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordRun(rec RunRecord) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.RecordRun(rec))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
