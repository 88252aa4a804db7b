// Package sink persists collected telemetry. The only implementation writes
// to InfluxDB; the interface exists so the collector can be tested without a
// database.
package sink

import (
	"context"
	"time"

	"github.com/sigenflux/sigenflux/pkg/types"
	"github.com/sigenflux/sigenflux/pkg/weather"
)

// Sink receives collected telemetry. Day arguments are midnight in the
// station's local timezone; implementations convert to UTC before storing.
type Sink interface {
	WriteEnergyFlow(ctx context.Context, stationID string, flow *types.EnergyFlow, ts time.Time) error
	WriteDailySummary(ctx context.Context, stationID string, sum *types.DailySummary, day time.Time) error
	WriteConsumption(ctx context.Context, stationID string, stats *types.ConsumptionStats, day time.Time) error
	WriteSunTimes(ctx context.Context, stationID string, sun *types.SunTimes, day time.Time) error
	WriteWeather(ctx context.Context, stationID string, data *weather.Data) error
	Close() error
}
