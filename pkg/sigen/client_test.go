package sigen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	return &Client{
		client:      ts.Client(),
		statsClient: ts.Client(),
		baseURL:     ts.URL,
		stationID:   "12345",
		flowBackoff: time.Millisecond,
	}
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("EnergyFlow", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/device/sigen/station/energyflow", r.URL.Path)
			assert.Equal(t, "12345", r.URL.Query().Get("id"))
			assert.Equal(t, "true", r.URL.Query().Get("refreshFlag"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.Equal(t, "en_US", r.Header.Get("lang"))
			assert.Equal(t, "sigen", r.Header.Get("auth-client-id"))

			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0,
				"msg":  "success",
				"data": map[string]interface{}{
					"pvPower":    3.2,
					"loadPower":  1.1,
					"batterySoc": 85.5,
					"onGrid":     true,
				},
			})
		}))
		defer ts.Close()

		flow, err := newTestClient(ts).EnergyFlow(ctx, "tok")
		require.NoError(t, err)
		require.NotNil(t, flow.PVPower)
		assert.Equal(t, 3.2, *flow.PVPower)
		require.NotNil(t, flow.BatterySOC)
		assert.Equal(t, 85.5, *flow.BatterySOC)
		require.NotNil(t, flow.OnGrid)
		assert.True(t, *flow.OnGrid)
		assert.Nil(t, flow.EVPower, "absent fields stay nil")
	})

	t.Run("EnergyFlowRetriesTransportErrors", func(t *testing.T) {
		var hits int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			if hits == 1 {
				http.Error(w, "bad gateway", http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "msg": "", "data": map[string]interface{}{"pvPower": 1.0},
			})
		}))
		defer ts.Close()

		flow, err := newTestClient(ts).EnergyFlow(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, 2, hits)
		require.NotNil(t, flow.PVPower)
	})

	t.Run("EnergyFlowNoRetryOnRejection", func(t *testing.T) {
		var hits int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 1001, "msg": "station offline",
			})
		}))
		defer ts.Close()

		_, err := newTestClient(ts).EnergyFlow(ctx, "tok")
		require.Error(t, err)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 1001, apiErr.Code)
		assert.Equal(t, 1, hits, "rejections should not be retried")
	})

	t.Run("EnergyFlowNoRetryOnMalformed", func(t *testing.T) {
		var hits int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.Write([]byte("<html>not json</html>"))
		}))
		defer ts.Close()

		_, err := newTestClient(ts).EnergyFlow(ctx, "tok")
		require.ErrorIs(t, err, ErrMalformed)
		assert.Equal(t, 1, hits)
	})

	t.Run("EnergyFlowGivesUpAfterAttempts", func(t *testing.T) {
		var hits int
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			http.Error(w, "down", http.StatusInternalServerError)
		}))
		defer ts.Close()

		_, err := newTestClient(ts).EnergyFlow(ctx, "tok")
		require.Error(t, err)
		assert.Equal(t, flowAttempts, hits)
	})

	t.Run("EmptyBodyIsMalformed", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		_, err := newTestClient(ts).SunTimes(ctx, "tok", time.Now())
		require.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("DailySummary", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/data-process/sigen/station/statistics/energy", r.URL.Path)
			assert.Equal(t, "12345", r.URL.Query().Get("stationId"))
			assert.Equal(t, "20240601", r.URL.Query().Get("date"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "msg": "",
				"data": map[string]interface{}{
					"powerUse":      12.5,
					"powerFromGrid": 3.0,
				},
			})
		}))
		defer ts.Close()

		day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		sum, err := newTestClient(ts).DailySummary(ctx, "tok", day)
		require.NoError(t, err)
		require.NotNil(t, sum.HomeConsumption)
		assert.Equal(t, 12.5, *sum.HomeConsumption)
		assert.Nil(t, sum.GridExport)
	})

	t.Run("ConsumptionStats", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/data-process/sigen/station/statistics/station-consumption", r.URL.Path)
			assert.Equal(t, "1", r.URL.Query().Get("dateFlag"))
			assert.Equal(t, "20240601", r.URL.Query().Get("startDate"))
			assert.Equal(t, "20240601", r.URL.Query().Get("endDate"))
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "msg": "",
				"data": map[string]interface{}{
					"baseLoadConsumption": 8.4,
					"consumptionDetailList": []map[string]interface{}{
						{"dataTime": "20240601 14:00", "baseLoadConsumption": 0.35},
					},
				},
			})
		}))
		defer ts.Close()

		day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		stats, err := newTestClient(ts).ConsumptionStats(ctx, "tok", day)
		require.NoError(t, err)
		require.NotNil(t, stats.BaseLoad)
		assert.Equal(t, 8.4, *stats.BaseLoad)
		require.Len(t, stats.Details, 1)
		assert.Equal(t, "20240601 14:00", stats.Details[0].DataTime)
	})

	t.Run("StationInfo", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/device/owner/station/home", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "msg": "",
				"data": map[string]interface{}{
					"stationId":   12345,
					"stationName": "Home",
					"pvCapacity":  10.5,
					"timeZone":    "Europe/Dublin",
				},
			})
		}))
		defer ts.Close()

		info, err := newTestClient(ts).StationInfo(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, "Home", info.StationName)
		require.NotNil(t, info.StationID)
		assert.Equal(t, int64(12345), *info.StationID)
	})

	t.Run("OperationalMode", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/device/setting/operational/mode/12345", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": 0, "msg": "", "data": 2,
			})
		}))
		defer ts.Close()

		mode, err := newTestClient(ts).OperationalMode(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, 2, mode)
	})

	t.Run("SetOperationalMode", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPut, r.Method)
			require.Equal(t, "/device/setting/operational/mode", r.URL.Path)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(0), body["operationMode"])
			assert.Equal(t, float64(12345), body["stationId"])

			json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "msg": "success"})
		}))
		defer ts.Close()

		require.NoError(t, newTestClient(ts).SetOperationalMode(ctx, "tok", 0))
	})
}
