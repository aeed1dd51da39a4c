package metrics

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/mtkallio/spotcharge/core/metrics"
	"github.com/mtkallio/spotcharge/infra/logger"
)

// InfluxSink writes run outcomes to an InfluxDB instance using the official
// client. Each price interval becomes a point, so the day's curve and the
// selection are graphable side by side.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the configured InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails, so a down metrics backend never blocks a run.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordRun writes one point per price interval plus a run summary point.
func (s *InfluxSink) RecordRun(rec coremetrics.RunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	selected := make(map[time.Time]bool, len(rec.Schedule.Intervals))
	for _, ivl := range rec.Schedule.Intervals {
		selected[ivl.Start] = true
	}

	for _, ivl := range rec.Series.Intervals() {
		p := write.NewPointWithMeasurement("spot_price").
			AddTag("zone", rec.Zone).
			AddTag("selected", strconv.FormatBool(selected[ivl.Start])).
			AddField("price", ivl.Price).
			SetTime(ivl.Start)
		if err := s.writeAPI.WritePoint(ctx, p); err != nil {
			return err
		}
	}

	summary := write.NewPointWithMeasurement("charge_plan").
		AddTag("zone", rec.Zone).
		AddTag("underfunded", strconv.FormatBool(rec.Schedule.Underfunded)).
		AddField("selected_hours", rec.Schedule.TotalDuration.Hours()).
		AddField("required_hours", rec.Schedule.Required.Hours()).
		AddField("total_cost", rec.Schedule.TotalCost).
		AddField("shortfall_hours", rec.Schedule.Shortfall.Hours()).
		AddField("command_failures", rec.CommandFailures).
		SetTime(rec.Day)
	return s.writeAPI.WritePoint(ctx, summary)
}

// Close flushes and closes the underlying client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
