package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mtkallio/spotcharge/core/market"
	coremetrics "github.com/mtkallio/spotcharge/core/metrics"
	"github.com/mtkallio/spotcharge/infra/logger"
)

// PushSink pushes a run summary to a Prometheus Pushgateway. The process is a
// short-lived batch job, so the push model replaces the usual scrape server.
type PushSink struct {
	url string
	job string
	log logger.Logger
}

// NewPushSink creates a Pushgateway sink.
func NewPushSink(cfg coremetrics.Config) *PushSink {
	job := cfg.PushJob
	if job == "" {
		job = "spotcharge"
	}
	return &PushSink{url: cfg.PushgatewayURL, job: job, log: logger.New("push-sink")}
}

// RecordRun pushes summary gauges for the run, grouped by zone.
func (s *PushSink) RecordRun(rec coremetrics.RunRecord) error {
	reg := prometheus.NewRegistry()

	selected := newGauge(reg, "spotcharge_selected_hours", "Charging duration selected for the day")
	required := newGauge(reg, "spotcharge_required_hours", "Charging duration required by the constraints")
	cost := newGauge(reg, "spotcharge_total_cost", "Price-weighted cost of the selection")
	shortfall := newGauge(reg, "spotcharge_shortfall_hours", "Unmet charging duration")
	failures := newGauge(reg, "spotcharge_command_failures", "Charger commands rejected during the run")
	avgSel := newGauge(reg, "spotcharge_avg_selected_price", "Average price of selected intervals")
	avgDay := newGauge(reg, "spotcharge_avg_day_price", "Average price of the whole market day")

	selected.Set(rec.Schedule.TotalDuration.Hours())
	required.Set(rec.Schedule.Required.Hours())
	cost.Set(rec.Schedule.TotalCost)
	shortfall.Set(rec.Schedule.Shortfall.Hours())
	failures.Set(float64(rec.CommandFailures))
	avgSel.Set(meanPrice(rec.Schedule.Intervals))
	avgDay.Set(meanPrice(rec.Series.Intervals()))

	return push.New(s.url, s.job).
		Grouping("zone", rec.Zone).
		Gatherer(reg).
		Push()
}

// Close is a no-op; every push is self-contained.
func (s *PushSink) Close() error { return nil }

func newGauge(reg *prometheus.Registry, name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	reg.MustRegister(g)
	return g
}

// meanPrice is duration-weighted to stay comparable across resolutions.
func meanPrice(intervals []market.PriceInterval) float64 {
	var cost, hours float64
	for _, ivl := range intervals {
		cost += ivl.Price * ivl.Duration.Hours()
		hours += ivl.Duration.Hours()
	}
	if hours == 0 {
		return 0
	}
	return cost / hours
}
