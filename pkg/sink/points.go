package sink

import (
	"context"
	"log/slog"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sigenflux/sigenflux/pkg/log"
	"github.com/sigenflux/sigenflux/pkg/types"
	"github.com/sigenflux/sigenflux/pkg/weather"
)

// setFloat adds a field only when the source value was present. Absent vendor
// fields are dropped rather than written as zeros.
func setFloat(fields map[string]interface{}, name string, v *float64) {
	if v != nil {
		fields[name] = *v
	}
}

func energyFlowPoint(stationID string, flow *types.EnergyFlow, ts time.Time) *write.Point {
	fields := map[string]interface{}{}
	setFloat(fields, "pv_day_nrg", flow.PVDayEnergy)
	setFloat(fields, "pv_power", flow.PVPower)
	setFloat(fields, "load_power", flow.LoadPower)
	setFloat(fields, "battery_soc", flow.BatterySOC)
	setFloat(fields, "grid_flow_power", flow.BuySellPower)
	setFloat(fields, "battery_power", flow.BatteryPower)
	setFloat(fields, "station_status", flow.StationStatus)
	setFloat(fields, "on_off_grid_status", flow.OnOffGrid)
	setFloat(fields, "ac_power", flow.ACPower)
	setFloat(fields, "ev_power", flow.EVPower)
	setFloat(fields, "generator_power", flow.GeneratorPower)
	setFloat(fields, "heat_pump_power", flow.HeatPumpPower)
	setFloat(fields, "third_pv_power", flow.ThirdPVPower)
	if flow.OnGrid != nil {
		onGrid := 0.0
		if *flow.OnGrid {
			onGrid = 1.0
		}
		fields["on_grid"] = onGrid
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint("energy_metrics",
		map[string]string{"station_id": stationID},
		fields, ts.UTC())
}

func dailySummaryPoint(stationID string, sum *types.DailySummary, day time.Time) *write.Point {
	fields := map[string]interface{}{}
	setFloat(fields, "total_home_consumption_kwh", sum.HomeConsumption)
	setFloat(fields, "grid_import_kwh", sum.GridImport)
	setFloat(fields, "grid_export_kwh", sum.GridExport)
	setFloat(fields, "pv_generation_kwh", sum.PVGeneration)
	setFloat(fields, "battery_charge_kwh", sum.BatteryCharge)
	setFloat(fields, "battery_discharge_kwh", sum.BatteryDischarge)
	setFloat(fields, "pv_self_consumption_kwh", sum.PVSelfConsumption)
	setFloat(fields, "load_self_sufficiency_kwh", sum.LoadSelfSufficiency)
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint("sigen_daily_summary",
		map[string]string{"station_id": stationID, "source": "sigen_api_stats_energy"},
		fields, day.UTC())
}

// consumptionPoints builds the daily total plus one point per distinct hour.
// The vendor repeats hours in the detail list sometimes; only the first
// occurrence is kept.
func consumptionPoints(ctx context.Context, stationID string, stats *types.ConsumptionStats, day time.Time) []*write.Point {
	var pts []*write.Point
	if stats.BaseLoad != nil {
		pts = append(pts, write.NewPoint("daily_consumption_summary",
			map[string]string{"station_id": stationID, "source": "sigen_api_stats"},
			map[string]interface{}{"total_base_load_kwh": *stats.BaseLoad},
			day.UTC()))
	}

	seen := map[string]bool{}
	for _, item := range stats.Details {
		if item.DataTime == "" || item.BaseLoad == nil || seen[item.DataTime] {
			continue
		}
		seen[item.DataTime] = true
		ts, err := time.ParseInLocation("20060102 15:04", item.DataTime, day.Location())
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping unparseable consumption hour",
				slog.String("data_time", item.DataTime), slog.Any("error", err))
			continue
		}
		pts = append(pts, write.NewPoint("hourly_consumption",
			map[string]string{"station_id": stationID, "source": "sigen_api_stats"},
			map[string]interface{}{"base_load_kwh": *item.BaseLoad},
			ts.UTC()))
	}
	return pts
}

// parseClock handles the vendor returning clock times with or without
// seconds.
func parseClock(day time.Time, clock string) (time.Time, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.ParseInLocation(layout, clock, day.Location())
		if err != nil {
			continue
		}
		return time.Date(day.Year(), day.Month(), day.Day(),
			t.Hour(), t.Minute(), t.Second(), 0, day.Location()), nil
	}
	return time.Time{}, &time.ParseError{Layout: "15:04:05", Value: clock}
}

func sunTimesPoints(ctx context.Context, stationID string, sun *types.SunTimes, day time.Time) []*write.Point {
	if sun.Sunrise == "" || sun.Sunset == "" {
		return nil
	}
	dateLocal := day.Format("2006-01-02")

	var pts []*write.Point
	for _, ev := range []struct {
		kind  string
		clock string
	}{{"sunrise", sun.Sunrise}, {"sunset", sun.Sunset}} {
		ts, err := parseClock(day, ev.clock)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping unparseable solar event",
				slog.String("event_type", ev.kind), slog.String("clock", ev.clock))
			continue
		}
		pts = append(pts, write.NewPoint("solar_events",
			map[string]string{
				"station_id": stationID,
				"event_type": ev.kind,
				"date_local": dateLocal,
			},
			map[string]interface{}{"time_str_local": ev.clock},
			ts.UTC()))
	}
	return pts
}

// weatherLocation resolves the timezone the response's naive timestamps are
// expressed in, falling back to UTC when the name is unknown.
func weatherLocation(ctx context.Context, name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "unknown weather timezone, assuming UTC",
			slog.String("timezone", name))
		return time.UTC
	}
	return loc
}

func weatherPoints(ctx context.Context, stationID string, data *weather.Data) []*write.Point {
	loc := weatherLocation(ctx, data.Timezone)
	tags := map[string]string{"station_id": stationID}

	var pts []*write.Point
	if cw := data.CurrentWeather; cw != nil && cw.Time != "" {
		ts, err := time.ParseInLocation("2006-01-02T15:04", cw.Time, loc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping current weather with bad timestamp",
				slog.String("time", cw.Time))
		} else {
			fields := map[string]interface{}{}
			setFloat(fields, "temperature", cw.Temperature)
			setFloat(fields, "windspeed", cw.WindSpeed)
			setFloat(fields, "winddirection", cw.WindDirection)
			setFloat(fields, "weathercode", cw.WeatherCode)
			setFloat(fields, "is_day", cw.IsDay)
			if len(fields) > 0 {
				pts = append(pts, write.NewPoint("weather_current", tags, fields, ts.UTC()))
			}
		}
	}

	h := data.Hourly
	if h == nil {
		return pts
	}
	vars := []struct {
		name   string
		values []*float64
	}{
		{"temperature_2m", h.Temperature2m},
		{"relative_humidity_2m", h.RelativeHumidity2m},
		{"apparent_temperature", h.ApparentTemperature},
		{"precipitation_probability", h.PrecipitationProbability},
		{"precipitation", h.Precipitation},
		{"weather_code", h.WeatherCode},
		{"cloud_cover", h.CloudCover},
		{"shortwave_radiation", h.ShortwaveRadiation},
		{"direct_radiation", h.DirectRadiation},
		{"diffuse_radiation", h.DiffuseRadiation},
		{"wind_speed_10m", h.WindSpeed10m},
		{"wind_direction_10m", h.WindDirection10m},
	}
	for i, timestamp := range h.Time {
		ts, err := time.ParseInLocation("2006-01-02T15:04", timestamp, loc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping forecast hour with bad timestamp",
				slog.String("time", timestamp))
			continue
		}
		fields := map[string]interface{}{}
		for _, v := range vars {
			if i < len(v.values) {
				setFloat(fields, v.name, v.values[i])
			}
		}
		if len(fields) > 0 {
			pts = append(pts, write.NewPoint("weather_forecast_hourly", tags, fields, ts.UTC()))
		}
	}
	return pts
}
