// Package collector runs the fixed-interval scheduling loop: a real-time
// energy snapshot every cycle, daily statistics and solar events at fixed
// local clock times, and weather on a minute modulo.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/sigenflux/sigenflux/pkg/breaker"
	"github.com/sigenflux/sigenflux/pkg/log"
	"github.com/sigenflux/sigenflux/pkg/sigen"
	"github.com/sigenflux/sigenflux/pkg/sink"
	"github.com/sigenflux/sigenflux/pkg/types"
	"github.com/sigenflux/sigenflux/pkg/weather"
)

// TokenSource provides a usable bearer token for vendor calls.
type TokenSource interface {
	Active(ctx context.Context) (string, error)
}

// VendorAPI is the slice of the Sigen client the collector uses.
type VendorAPI interface {
	StationID() string
	EnergyFlow(ctx context.Context, token string) (*types.EnergyFlow, error)
	DailySummary(ctx context.Context, token string, date time.Time) (*types.DailySummary, error)
	ConsumptionStats(ctx context.Context, token string, date time.Time) (*types.ConsumptionStats, error)
	SunTimes(ctx context.Context, token string, date time.Time) (*types.SunTimes, error)
}

// WeatherAPI is the slice of the Open-Meteo client the collector uses.
type WeatherAPI interface {
	Enabled() bool
	Fetch(ctx context.Context) (*weather.Data, error)
}

// Collector owns the scheduling loop. It is not safe for concurrent use;
// Run drives everything from a single goroutine.
type Collector struct {
	tokens  TokenSource
	api     VendorAPI
	weather WeatherAPI
	sink    sink.Sink
	brk     *breaker.Breaker

	loc            *time.Location
	interval       time.Duration
	dailyTrigger   string
	sunTrigger     string
	weatherModulo  int
	weatherOffset  int
	backfill       bool
	now            func() time.Time
	lastWeatherKey string
}

// Configured sets up the collector loop from flags, wired to the given
// clients.
func Configured(api *sigen.Client, w *weather.Client, s sink.Sink) *Collector {
	interval := lflag.Duration("cycle-interval", time.Minute, "Sleep between scheduling cycles (clock triggers assume at most 1m)")
	timezone := lflag.String("timezone", "Europe/Dublin", "IANA timezone for daily trigger calculations")
	dailyTrigger := lflag.String("daily-summary-trigger", "00:10", "Local HH:MM to fetch yesterday's daily summary")
	sunTrigger := lflag.String("sun-times-trigger", "00:03", "Local HH:MM to fetch today's sunrise/sunset")
	weatherModulo := lflag.String("weather-fetch-modulo", "15", "Fetch weather when the minute modulo this value equals the offset")
	weatherOffset := lflag.String("weather-fetch-offset", "2", "Minute offset within the weather modulo window")
	threshold := lflag.String("breaker-failure-threshold", "5", "Consecutive failures before the breaker opens")
	timeout := lflag.Duration("breaker-timeout", 15*time.Minute, "How long the breaker stays open before probing")
	backfill := lflag.Bool("backfill-yesterday-summary", false, "Fetch yesterday's daily summary once at startup")

	c := &Collector{now: time.Now}
	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Sprintf("unknown timezone %q: %s", *timezone, err))
		}
		for _, trigger := range []string{*dailyTrigger, *sunTrigger} {
			if _, err := time.Parse("15:04", trigger); err != nil {
				panic(fmt.Sprintf("invalid trigger time %q: %s", trigger, err))
			}
		}
		c.loc = loc
		c.interval = *interval
		c.dailyTrigger = *dailyTrigger
		c.sunTrigger = *sunTrigger
		c.weatherModulo = mustAtoi("weather-fetch-modulo", *weatherModulo)
		c.weatherOffset = mustAtoi("weather-fetch-offset", *weatherOffset)
		c.backfill = *backfill
		c.api = api
		c.tokens = api.Auth()
		c.weather = w
		c.sink = s
		c.brk = breaker.New("sigen-api", uint32(mustAtoi("breaker-failure-threshold", *threshold)), *timeout)
	})
	return c
}

func mustAtoi(name, s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		panic(fmt.Sprintf("invalid value for %s: %q", name, s))
	}
	return n
}

// Run executes cycles until the context is cancelled. It always returns
// ctx.Err().
func (c *Collector) Run(ctx context.Context) error {
	log.Ctx(ctx).InfoContext(ctx, "collector started",
		slog.String("station_id", c.api.StationID()),
		slog.Duration("interval", c.interval))

	if c.backfill {
		c.runBackfill(ctx)
	}

	for {
		c.cycle(ctx)
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "collector stopping")
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
}

// runBackfill fetches yesterday's daily summary once at startup, for
// recovering after downtime across a day boundary.
func (c *Collector) runBackfill(ctx context.Context) {
	token, err := c.tokens.Active(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "skipping backfill, no active token", slog.Any("error", err))
		return
	}
	yesterday := c.localMidnight(c.localNow().AddDate(0, 0, -1))
	log.Ctx(ctx).InfoContext(ctx, "backfilling daily summary",
		slog.String("date", yesterday.Format("2006-01-02")))
	c.runDailyStats(ctx, token, yesterday)
}

// cycle runs one pass of scheduled tasks. A panic in any task is contained
// here: it is logged and the loop pauses briefly before the next cycle.
func (c *Collector) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "cycle panicked", slog.Any("panic", r))
			select {
			case <-ctx.Done():
			case <-time.After(30 * time.Second):
			}
		}
	}()

	token, err := c.tokens.Active(ctx)
	if err != nil {
		if errors.Is(err, sigen.ErrNoCredentials) {
			log.Ctx(ctx).WarnContext(ctx, "no token and no credentials configured, skipping vendor tasks")
		} else {
			log.Ctx(ctx).WarnContext(ctx, "failed to get active token, skipping vendor tasks",
				slog.Any("error", err))
		}
		token = ""
	}

	now := c.localNow()
	if token != "" {
		c.runRealtime(ctx, token)
		if now.Format("15:04") == c.dailyTrigger {
			c.runDailyStats(ctx, token, c.localMidnight(now.AddDate(0, 0, -1)))
		}
		if now.Format("15:04") == c.sunTrigger {
			c.runSunTimes(ctx, token, c.localMidnight(now))
		}
	}
	c.runWeather(ctx, now)
}

// runRealtime fetches and persists the real-time snapshot, gated by the
// circuit breaker. Only fetch outcomes are reported to the breaker; a
// persist failure is logged but does not count against the vendor API.
func (c *Collector) runRealtime(ctx context.Context, token string) {
	if !c.brk.ShouldAttempt() {
		log.Ctx(ctx).InfoContext(ctx, "skipping real-time fetch, circuit breaker open",
			slog.String("state", c.brk.State()))
		return
	}

	flow, err := c.api.EnergyFlow(ctx, token)
	if err != nil {
		c.brk.RecordFailure()
		log.Ctx(ctx).WarnContext(ctx, "real-time energy flow fetch failed", slog.Any("error", err))
		return
	}
	c.brk.RecordSuccess()

	if err := c.sink.WriteEnergyFlow(ctx, c.api.StationID(), flow, c.now().UTC()); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist energy flow", slog.Any("error", err))
	}
}

// runDailyStats fetches and persists the daily energy summary and the
// consumption statistics for one local day. The two fetches are independent;
// one failing does not stop the other.
func (c *Collector) runDailyStats(ctx context.Context, token string, day time.Time) {
	sum, err := c.api.DailySummary(ctx, token, day)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "daily summary fetch failed",
			slog.String("date", day.Format("2006-01-02")), slog.Any("error", err))
	} else if err := c.sink.WriteDailySummary(ctx, c.api.StationID(), sum, day); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist daily summary", slog.Any("error", err))
	}

	stats, err := c.api.ConsumptionStats(ctx, token, day)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "consumption stats fetch failed",
			slog.String("date", day.Format("2006-01-02")), slog.Any("error", err))
	} else if err := c.sink.WriteConsumption(ctx, c.api.StationID(), stats, day); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist consumption stats", slog.Any("error", err))
	}
}

func (c *Collector) runSunTimes(ctx context.Context, token string, day time.Time) {
	sun, err := c.api.SunTimes(ctx, token, day)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "sunrise/sunset fetch failed", slog.Any("error", err))
		return
	}
	if err := c.sink.WriteSunTimes(ctx, c.api.StationID(), sun, day); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist sunrise/sunset", slog.Any("error", err))
	}
}

// runWeather fetches weather when the minute lands in the configured window,
// at most once per wall-clock minute. The dedup key is set after a fetch
// succeeds even if persisting fails, so a bad sink does not re-fetch.
func (c *Collector) runWeather(ctx context.Context, now time.Time) {
	if c.weather == nil || !c.weather.Enabled() {
		return
	}
	if now.Minute()%c.weatherModulo != c.weatherOffset {
		return
	}
	key := now.Format("15:04")
	if key == c.lastWeatherKey {
		return
	}

	data, err := c.weather.Fetch(ctx)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "weather fetch failed", slog.Any("error", err))
		return
	}
	c.lastWeatherKey = key

	if err := c.sink.WriteWeather(ctx, c.api.StationID(), data); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist weather", slog.Any("error", err))
	}
}

func (c *Collector) localNow() time.Time {
	return c.now().In(c.loc)
}

func (c *Collector) localMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}
