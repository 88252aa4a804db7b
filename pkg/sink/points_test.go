package sink

import (
	"context"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sigenflux/sigenflux/pkg/types"
	"github.com/sigenflux/sigenflux/pkg/weather"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func fieldMap(pt *write.Point) map[string]interface{} {
	m := map[string]interface{}{}
	for _, fld := range pt.FieldList() {
		m[fld.Key] = fld.Value
	}
	return m
}

func tagMap(pt *write.Point) map[string]string {
	m := map[string]string{}
	for _, tag := range pt.TagList() {
		m[tag.Key] = tag.Value
	}
	return m
}

func TestEnergyFlowPoint(t *testing.T) {
	onGrid := true
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	pt := energyFlowPoint("12345", &types.EnergyFlow{
		PVPower:      f(3.2),
		LoadPower:    f(1.1),
		BatterySOC:   f(85.5),
		BuySellPower: f(-0.4),
		OnGrid:       &onGrid,
	}, ts)
	require.NotNil(t, pt)

	assert.Equal(t, "energy_metrics", pt.Name())
	assert.Equal(t, map[string]string{"station_id": "12345"}, tagMap(pt))
	assert.Equal(t, ts, pt.Time())

	fields := fieldMap(pt)
	assert.Equal(t, 3.2, fields["pv_power"])
	assert.Equal(t, -0.4, fields["grid_flow_power"])
	assert.Equal(t, 1.0, fields["on_grid"])
	assert.NotContains(t, fields, "ev_power", "absent readings produce no field")
}

func TestEnergyFlowPointOffGrid(t *testing.T) {
	onGrid := false
	pt := energyFlowPoint("12345", &types.EnergyFlow{OnGrid: &onGrid}, time.Now())
	require.NotNil(t, pt)
	assert.Equal(t, 0.0, fieldMap(pt)["on_grid"])
}

func TestEnergyFlowPointEmpty(t *testing.T) {
	assert.Nil(t, energyFlowPoint("12345", &types.EnergyFlow{}, time.Now()))
}

func TestDailySummaryPoint(t *testing.T) {
	loc := time.FixedZone("IST", 3600)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)

	pt := dailySummaryPoint("12345", &types.DailySummary{
		HomeConsumption: f(12.5),
		GridImport:      f(3.0),
		PVGeneration:    f(20.1),
	}, day)
	require.NotNil(t, pt)

	assert.Equal(t, "sigen_daily_summary", pt.Name())
	assert.Equal(t, "sigen_api_stats_energy", tagMap(pt)["source"])
	// local midnight converted to UTC
	assert.Equal(t, time.Date(2024, 5, 31, 23, 0, 0, 0, time.UTC), pt.Time())

	fields := fieldMap(pt)
	assert.Equal(t, 12.5, fields["total_home_consumption_kwh"])
	assert.Equal(t, 20.1, fields["pv_generation_kwh"])
	assert.NotContains(t, fields, "grid_export_kwh")
}

func TestConsumptionPoints(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("IST", 3600)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)

	pts := consumptionPoints(ctx, "12345", &types.ConsumptionStats{
		BaseLoad: f(8.4),
		Details: []types.ConsumptionDetail{
			{DataTime: "20240601 14:00", BaseLoad: f(0.35)},
			{DataTime: "20240601 14:00", BaseLoad: f(0.99)},
			{DataTime: "garbage", BaseLoad: f(0.5)},
			{DataTime: "20240601 15:00"},
		},
	}, day)

	// daily total plus the one valid distinct hour
	require.Len(t, pts, 2)

	assert.Equal(t, "daily_consumption_summary", pts[0].Name())
	assert.Equal(t, 8.4, fieldMap(pts[0])["total_base_load_kwh"])
	assert.Equal(t, day.UTC(), pts[0].Time())

	assert.Equal(t, "hourly_consumption", pts[1].Name())
	assert.Equal(t, 0.35, fieldMap(pts[1])["base_load_kwh"], "first occurrence of a repeated hour wins")
	assert.Equal(t, time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), pts[1].Time())
}

func TestSunTimesPoints(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("IST", 3600)
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, loc)

	pts := sunTimesPoints(ctx, "12345", &types.SunTimes{
		Sunrise: "05:45",
		Sunset:  "21:52:30",
	}, day)
	require.Len(t, pts, 2)

	sunrise := pts[0]
	assert.Equal(t, "solar_events", sunrise.Name())
	tags := tagMap(sunrise)
	assert.Equal(t, "sunrise", tags["event_type"])
	assert.Equal(t, "2024-06-01", tags["date_local"])
	assert.Equal(t, "05:45", fieldMap(sunrise)["time_str_local"])
	assert.Equal(t, time.Date(2024, 6, 1, 4, 45, 0, 0, time.UTC), sunrise.Time())

	sunset := pts[1]
	assert.Equal(t, "sunset", tagMap(sunset)["event_type"])
	assert.Equal(t, time.Date(2024, 6, 1, 20, 52, 30, 0, time.UTC), sunset.Time())
}

func TestSunTimesPointsMissingData(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Nil(t, sunTimesPoints(ctx, "12345", &types.SunTimes{Sunrise: "05:45"}, day))
}

func TestWeatherPoints(t *testing.T) {
	ctx := context.Background()

	data := &weather.Data{
		Timezone: "UTC",
		CurrentWeather: &weather.CurrentWeather{
			Time:        "2024-06-01T14:30",
			Temperature: f(18.4),
			WeatherCode: f(3),
		},
		Hourly: &weather.Hourly{
			Time:          []string{"2024-06-01T14:00", "2024-06-01T15:00", "2024-06-01T16:00"},
			Temperature2m: []*float64{f(18.0), nil, nil},
			CloudCover:    []*float64{f(40), f(55), nil},
		},
	}

	pts := weatherPoints(ctx, "12345", data)
	// current + two forecast hours with at least one reading
	require.Len(t, pts, 3)

	current := pts[0]
	assert.Equal(t, "weather_current", current.Name())
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC), current.Time())
	fields := fieldMap(current)
	assert.Equal(t, 18.4, fields["temperature"])
	assert.NotContains(t, fields, "windspeed")

	first := pts[1]
	assert.Equal(t, "weather_forecast_hourly", first.Name())
	assert.Equal(t, 18.0, fieldMap(first)["temperature_2m"])
	assert.Equal(t, 40.0, fieldMap(first)["cloud_cover"])

	second := pts[2]
	fields = fieldMap(second)
	assert.NotContains(t, fields, "temperature_2m", "null readings produce no field")
	assert.Equal(t, 55.0, fields["cloud_cover"])
}

func TestWeatherPointsUnknownTimezone(t *testing.T) {
	ctx := context.Background()
	data := &weather.Data{
		Timezone: "Not/AZone",
		CurrentWeather: &weather.CurrentWeather{
			Time:        "2024-06-01T14:30",
			Temperature: f(10),
		},
	}
	pts := weatherPoints(ctx, "12345", data)
	require.Len(t, pts, 1)
	// naive timestamp interpreted as UTC when the zone is unknown
	assert.Equal(t, time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC), pts[0].Time())
}
