// Package weather fetches current conditions and a short hourly forecast
// from Open-Meteo for the station's location.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sigenflux/sigenflux/pkg/common"
	"github.com/sigenflux/sigenflux/pkg/log"
)

const (
	freeURL     = "https://api.open-meteo.com/v1/forecast"
	customerURL = "https://customer-api.open-meteo.com/v1/forecast"

	hourlyVars = "temperature_2m,relative_humidity_2m,apparent_temperature," +
		"precipitation_probability,precipitation,weather_code,cloud_cover," +
		"shortwave_radiation,direct_radiation,diffuse_radiation," +
		"wind_speed_10m,wind_direction_10m"
)

// CurrentWeather is the current_weather block of an Open-Meteo response.
// Time is a naive local timestamp in the response's timezone.
type CurrentWeather struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature"`
	WindSpeed     *float64 `json:"windspeed"`
	WindDirection *float64 `json:"winddirection"`
	WeatherCode   *float64 `json:"weathercode"`
	IsDay         *float64 `json:"is_day"`
}

// Hourly holds parallel arrays keyed by the Time array. A nil entry means the
// value was null for that hour.
type Hourly struct {
	Time                     []string   `json:"time"`
	Temperature2m            []*float64 `json:"temperature_2m"`
	RelativeHumidity2m       []*float64 `json:"relative_humidity_2m"`
	ApparentTemperature      []*float64 `json:"apparent_temperature"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	Precipitation            []*float64 `json:"precipitation"`
	WeatherCode              []*float64 `json:"weather_code"`
	CloudCover               []*float64 `json:"cloud_cover"`
	ShortwaveRadiation       []*float64 `json:"shortwave_radiation"`
	DirectRadiation          []*float64 `json:"direct_radiation"`
	DiffuseRadiation         []*float64 `json:"diffuse_radiation"`
	WindSpeed10m             []*float64 `json:"wind_speed_10m"`
	WindDirection10m         []*float64 `json:"wind_direction_10m"`
}

// Data is a parsed Open-Meteo forecast response. Timezone is the IANA name
// the naive timestamps are expressed in.
type Data struct {
	Timezone       string          `json:"timezone"`
	CurrentWeather *CurrentWeather `json:"current_weather"`
	Hourly         *Hourly         `json:"hourly"`
}

// Client fetches forecasts for a fixed location.
type Client struct {
	client    *http.Client
	baseURL   string
	latitude  string
	longitude string
	timezone  string
	apiKey    string
}

// Configured sets up an Open-Meteo client from flags. The client is disabled
// when no coordinates are configured.
func Configured() *Client {
	latitude := lflag.String("weather-latitude", "", "Latitude for weather fetches (empty disables weather)")
	longitude := lflag.String("weather-longitude", "", "Longitude for weather fetches (empty disables weather)")
	timezone := lflag.String("weather-timezone", "Europe/Dublin", "IANA timezone for weather timestamps")
	apiKey := lflag.String("open-meteo-api-key", "", "Open-Meteo API key (optional, enables the customer endpoint)")

	c := &Client{}
	lflag.Do(func() {
		c.client = common.HTTPClient(15 * time.Second)
		c.latitude = *latitude
		c.longitude = *longitude
		c.timezone = *timezone
		c.apiKey = *apiKey
		c.baseURL = freeURL
		if c.apiKey != "" {
			c.baseURL = customerURL
		}
	})
	return c
}

// Enabled reports whether the client has coordinates to fetch for.
func (c *Client) Enabled() bool {
	return c.latitude != "" && c.longitude != "" && c.timezone != ""
}

// Fetch retrieves current conditions plus two days of hourly forecast.
func (c *Client) Fetch(ctx context.Context) (*Data, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("weather client is not configured")
	}

	params := url.Values{}
	params.Set("latitude", c.latitude)
	params.Set("longitude", c.longitude)
	params.Set("current_weather", "true")
	params.Set("hourly", hourlyVars)
	params.Set("timezone", c.timezone)
	params.Set("forecast_days", "2")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading weather response failed: %w", err)
	}
	var data Data
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decoding weather response failed: %w", err)
	}

	log.Ctx(ctx).DebugContext(ctx, "fetched weather data",
		slog.String("timezone", data.Timezone))
	return &data, nil
}
