package sigen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sigenflux/sigenflux/pkg/log"
	"github.com/sigenflux/sigenflux/pkg/types"
)

// ErrMalformed indicates a response body that was empty, not JSON, or missing
// expected fields. Malformed responses are never retried.
var ErrMalformed = errors.New("malformed response")

// APIError is a response the vendor API rejected with a non-zero code. It is
// never retried; the provider's code and message are surfaced for logging.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sigen api error %d: %s", e.Code, e.Msg)
}

// flowAttempts caps the bounded retry loop around the real-time fetch.
const flowAttempts = 3

// Client talks to the Sigen cloud API for a single station. All authenticated
// calls take the bearer token explicitly; the caller resolves it through the
// Authenticator once per cycle.
type Client struct {
	client      *http.Client
	statsClient *http.Client
	baseURL     string
	stationID   string
	auth        *Authenticator

	// base delay between real-time fetch retries, scaled by attempt
	flowBackoff time.Duration
}

// Auth returns the token lifecycle manager for this client's base URL.
func (c *Client) Auth() *Authenticator {
	return c.auth
}

// StationID returns the configured station identifier.
func (c *Client) StationID() string {
	return c.stationID
}

// headers sets the request headers the vendor app sends. The app origin is
// the api host with its prefix swapped.
func (c *Client) headers(req *http.Request, token string) {
	referer := strings.Replace(c.baseURL, "api-", "app-", 1)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("lang", "en_US")
	req.Header.Set("auth-client-id", "sigen")
	req.Header.Set("origin", referer)
	req.Header.Set("referer", referer)
}

func (c *Client) newGetRequest(ctx context.Context, token, path string, params url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.headers(req, token)
	return req, nil
}

func (c *Client) newPutJSONRequest(ctx context.Context, token, path string, payload interface{}) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.headers(req, token)
	return req, nil
}

// doEnvelope performs the request and decodes the {code, msg, data} envelope
// into dest. A non-zero code returns *APIError; an empty or non-JSON body
// returns ErrMalformed; transport and HTTP-status failures return plain
// errors and are the only kind the real-time path retries.
func doEnvelope(client *http.Client, req *http.Request, dest interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body failed: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}

	var env struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if env.Code != 0 {
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return fmt.Errorf("%w: %s", ErrMalformed, err)
		}
	}
	return nil
}

// retryable reports whether an error is a transient transport failure rather
// than an explicit rejection or a garbled body.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	return !errors.Is(err, ErrMalformed)
}

// EnergyFlow fetches the real-time power snapshot. Transport failures are
// retried with a short backoff up to flowAttempts total tries; rejections and
// malformed bodies fail immediately.
func (c *Client) EnergyFlow(ctx context.Context, token string) (*types.EnergyFlow, error) {
	params := url.Values{}
	params.Set("id", c.stationID)
	params.Set("refreshFlag", "true")

	var lastErr error
	for attempt := 0; attempt < flowAttempts; attempt++ {
		if attempt > 0 {
			log.Ctx(ctx).WarnContext(ctx, "retrying energy flow fetch",
				slog.Int("attempt", attempt+1), slog.Any("error", lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.flowBackoff):
			}
		}

		req, err := c.newGetRequest(ctx, token, "/device/sigen/station/energyflow", params)
		if err != nil {
			return nil, err
		}
		var flow types.EnergyFlow
		if err := doEnvelope(c.client, req, &flow); err != nil {
			lastErr = err
			if !retryable(err) {
				return nil, err
			}
			continue
		}
		return &flow, nil
	}
	return nil, fmt.Errorf("energy flow fetch failed after %d attempts: %w", flowAttempts, lastErr)
}

// DailySummary fetches the energy totals for one local calendar day.
func (c *Client) DailySummary(ctx context.Context, token string, date time.Time) (*types.DailySummary, error) {
	params := url.Values{}
	params.Set("stationId", c.stationID)
	params.Set("date", date.Format("20060102"))

	req, err := c.newGetRequest(ctx, token, "/data-process/sigen/station/statistics/energy", params)
	if err != nil {
		return nil, err
	}
	var sum types.DailySummary
	if err := doEnvelope(c.statsClient, req, &sum); err != nil {
		return nil, fmt.Errorf("daily summary fetch failed: %w", err)
	}
	return &sum, nil
}

// ConsumptionStats fetches the daily total plus hourly base-load consumption
// for one local calendar day.
func (c *Client) ConsumptionStats(ctx context.Context, token string, date time.Time) (*types.ConsumptionStats, error) {
	day := date.Format("20060102")
	params := url.Values{}
	params.Set("dateFlag", "1")
	params.Set("startDate", day)
	params.Set("endDate", day)
	params.Set("stationId", c.stationID)

	req, err := c.newGetRequest(ctx, token, "/data-process/sigen/station/statistics/station-consumption", params)
	if err != nil {
		return nil, err
	}
	var stats types.ConsumptionStats
	if err := doEnvelope(c.statsClient, req, &stats); err != nil {
		return nil, fmt.Errorf("consumption stats fetch failed: %w", err)
	}
	return &stats, nil
}

// SunTimes fetches the station's sunrise and sunset clock times for one local
// calendar day.
func (c *Client) SunTimes(ctx context.Context, token string, date time.Time) (*types.SunTimes, error) {
	params := url.Values{}
	params.Set("stationId", c.stationID)
	params.Set("date", date.Format("20060102"))

	req, err := c.newGetRequest(ctx, token, "/device/sigen/device/weather/sun", params)
	if err != nil {
		return nil, err
	}
	var sun types.SunTimes
	if err := doEnvelope(c.client, req, &sun); err != nil {
		return nil, fmt.Errorf("sunrise/sunset fetch failed: %w", err)
	}
	return &sun, nil
}

// StationInfo fetches the station metadata for the account.
func (c *Client) StationInfo(ctx context.Context, token string) (*types.StationInfo, error) {
	req, err := c.newGetRequest(ctx, token, "/device/owner/station/home", nil)
	if err != nil {
		return nil, err
	}
	var info types.StationInfo
	if err := doEnvelope(c.client, req, &info); err != nil {
		return nil, fmt.Errorf("station info fetch failed: %w", err)
	}
	return &info, nil
}

// OperationalMode reads the station's current operational mode.
func (c *Client) OperationalMode(ctx context.Context, token string) (int, error) {
	req, err := c.newGetRequest(ctx, token, "/device/setting/operational/mode/"+c.stationID, nil)
	if err != nil {
		return 0, err
	}
	var mode int
	if err := doEnvelope(c.client, req, &mode); err != nil {
		return 0, fmt.Errorf("operational mode query failed: %w", err)
	}
	return mode, nil
}

// SetOperationalMode writes the station's operational mode.
func (c *Client) SetOperationalMode(ctx context.Context, token string, mode int) error {
	stationID, err := strconv.Atoi(c.stationID)
	if err != nil {
		return fmt.Errorf("station id %q is not numeric: %w", c.stationID, err)
	}

	req, err := c.newPutJSONRequest(ctx, token, "/device/setting/operational/mode", map[string]interface{}{
		"operationMode": mode,
		"stationId":     stationID,
	})
	if err != nil {
		return err
	}
	if err := doEnvelope(c.client, req, nil); err != nil {
		return fmt.Errorf("setting operational mode failed: %w", err)
	}
	log.Ctx(ctx).InfoContext(ctx, "operational mode updated", slog.Int("mode", mode))
	return nil
}
