package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/levenlabs/go-lflag"
	"github.com/sigenflux/sigenflux/pkg/log"
	"github.com/sigenflux/sigenflux/pkg/types"
	"github.com/sigenflux/sigenflux/pkg/weather"
)

// InfluxSink writes telemetry points to an InfluxDB 2.x bucket using the
// blocking write API. Writes happen at most once per minute so batching is
// unnecessary.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

var _ Sink = (*InfluxSink)(nil)

// Configured sets up the InfluxDB sink from flags.
func Configured() *InfluxSink {
	url := lflag.String("influx-url", "http://localhost:8086", "URL of the InfluxDB server")
	token := lflag.RequiredString("influx-token", "InfluxDB API token")
	org := lflag.RequiredString("influx-org", "InfluxDB organization")
	bucket := lflag.RequiredString("influx-bucket", "InfluxDB bucket for telemetry")

	s := &InfluxSink{}
	lflag.Do(func() {
		s.client = influxdb2.NewClient(*url, *token)
		s.writeAPI = s.client.WriteAPIBlocking(*org, *bucket)
	})
	return s
}

func (s *InfluxSink) write(ctx context.Context, pts ...*write.Point) error {
	if len(pts) == 0 {
		log.Ctx(ctx).DebugContext(ctx, "no points to write")
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, pts...); err != nil {
		return fmt.Errorf("influx write failed: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "wrote points", slog.Int("count", len(pts)))
	return nil
}

// WriteEnergyFlow writes one energy_metrics point at ts.
func (s *InfluxSink) WriteEnergyFlow(ctx context.Context, stationID string, flow *types.EnergyFlow, ts time.Time) error {
	pt := energyFlowPoint(stationID, flow, ts)
	if pt == nil {
		log.Ctx(ctx).InfoContext(ctx, "energy flow snapshot had no usable fields")
		return nil
	}
	return s.write(ctx, pt)
}

// WriteDailySummary writes one sigen_daily_summary point stamped at the local
// midnight of day, converted to UTC.
func (s *InfluxSink) WriteDailySummary(ctx context.Context, stationID string, sum *types.DailySummary, day time.Time) error {
	pt := dailySummaryPoint(stationID, sum, day)
	if pt == nil {
		log.Ctx(ctx).InfoContext(ctx, "daily summary had no usable fields")
		return nil
	}
	return s.write(ctx, pt)
}

// WriteConsumption writes the daily total plus hourly base-load points.
func (s *InfluxSink) WriteConsumption(ctx context.Context, stationID string, stats *types.ConsumptionStats, day time.Time) error {
	return s.write(ctx, consumptionPoints(ctx, stationID, stats, day)...)
}

// WriteSunTimes writes sunrise and sunset solar_events points for day.
func (s *InfluxSink) WriteSunTimes(ctx context.Context, stationID string, sun *types.SunTimes, day time.Time) error {
	return s.write(ctx, sunTimesPoints(ctx, stationID, sun, day)...)
}

// WriteWeather writes the current conditions point and one point per
// forecast hour.
func (s *InfluxSink) WriteWeather(ctx context.Context, stationID string, data *weather.Data) error {
	return s.write(ctx, weatherPoints(ctx, stationID, data)...)
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
