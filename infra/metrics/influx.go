package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/smartcharge/core/metrics"
	"github.com/kilianp07/smartcharge/infra/logger"
)

// InfluxSink writes run events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
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

// RecordJob writes one point per scheduling run.
func (s *InfluxSink) RecordJob(ev coremetrics.JobEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("charge_schedule_run").
		AddTag("vehicle_id", ev.VehicleID).
		AddTag("outcome", ev.Outcome).
		AddTag("run_id", ev.RunID).
		AddField("required_hours", round3(ev.RequiredHours)).
		AddField("slots", ev.SlotCount).
		AddField("start_minute", ev.StartMinute).
		AddField("price_fallback", ev.PriceFallback).
		AddField("verified", ev.Verified).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAttempt writes one point per remote call attempt.
func (s *InfluxSink) RecordAttempt(ev coremetrics.AttemptEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("call_attempt").
		AddTag("operation", ev.Operation).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("attempt", ev.Attempt).
		AddField("max_attempts", ev.MaxAttempts).
		SetTime(ev.Time)
	if ev.Error != "" {
		p.AddField("error", ev.Error)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPriceWindow writes the statistics of the chosen price run.
func (s *InfluxSink) RecordPriceWindow(ev coremetrics.PriceWindowEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("price_window").
		AddTag("vehicle_id", ev.VehicleID).
		AddField("points", ev.Points).
		AddField("min_price", round3(ev.MinPrice)).
		AddField("mean_price", round3(ev.MeanPrice)).
		AddField("max_price", round3(ev.MaxPrice)).
		AddField("start", ev.Start.Format(time.RFC3339)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying HTTP resources.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
