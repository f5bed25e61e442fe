package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/insightfulhq/insightful-orders/internal/analytics"
	"github.com/insightfulhq/insightful-orders/internal/config"
	"github.com/insightfulhq/insightful-orders/internal/storage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, rps float64) (*Server, *storage.DB) {
	t.Helper()

	dbCfg := &config.Config{
		DatabaseDriver:   "sqlite",
		DatabaseDSN:      filepath.Join(t.TempDir(), "orders.db"),
		DatabaseMaxConns: 2,
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := storage.New(dbCfg, log)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	engine := analytics.NewEngine(db, log)
	srv := New(engine, &config.Config{
		AnalyticsRPS:  rps,
		DefaultWindow: "30d",
	}, log)
	return srv, db
}

func doRequest(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAOVEndpoint(t *testing.T) {
	srv, db := newTestServer(t, 100)

	now := time.Now().UTC().Truncate(time.Second)
	for _, amount := range []float64{100, 50} {
		require.NoError(t, db.CreateOrder(context.Background(), &storage.Order{
			MerchantID:  1,
			CustomerID:  1,
			TotalAmount: amount,
			CreatedAt:   now.Add(-time.Hour),
		}))
	}

	rec := doRequest(t, srv, "/metrics/aov?merchant_id=1&window=7d")
	require.Equal(t, http.StatusOK, rec.Code)

	var body analytics.AOVResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "7d", body.Window)
	require.Equal(t, int64(2), body.Orders)
	require.Equal(t, 75.0, body.AOV)
}

func TestAOVEndpointDefaultWindow(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rec := doRequest(t, srv, "/metrics/aov?merchant_id=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body analytics.AOVResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "30d", body.Window)
	require.Equal(t, int64(0), body.Orders)
}

func TestAOVEndpointInvalidWindow(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rec := doRequest(t, srv, "/metrics/aov?merchant_id=1&window=bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["message"], "invalid window")
}

func TestMissingMerchantID(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	for _, path := range []string{"/metrics/aov", "/metrics/rfm", "/metrics/cohorts"} {
		rec := doRequest(t, srv, path)
		require.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "missing merchant_id", body["message"])
	}
}

func TestInvalidMerchantID(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	for _, id := range []string{"abc", "-1", "0"} {
		rec := doRequest(t, srv, "/metrics/rfm?merchant_id="+id)
		require.Equal(t, http.StatusBadRequest, rec.Code, "merchant_id %q", id)
	}
}

func TestRFMEndpointEmpty(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rec := doRequest(t, srv, "/metrics/rfm?merchant_id=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestCohortsEndpointBounds(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	rec := doRequest(t, srv, "/metrics/cohorts?merchant_id=1&from=2024-02&to=2024-04-15")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Start   *string           `json:"start"`
		End     *string           `json:"end"`
		Cohorts []json.RawMessage `json:"cohorts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Start)
	require.NotNil(t, body.End)
	require.Equal(t, "2024-02", *body.Start)
	require.Equal(t, "2024-04", *body.End)
	require.Empty(t, body.Cohorts)
}

func TestCohortsEndpointIgnoresBadBounds(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	// Unparseable bounds are treated as absent, not rejected.
	rec := doRequest(t, srv, "/metrics/cohorts?merchant_id=1&from=notamonth")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Start *string `json:"start"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Nil(t, body.Start)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, 100)

	for _, path := range []string{"/health", "/ready"} {
		rec := doRequest(t, srv, path)
		require.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestPerMerchantRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	rec := doRequest(t, srv, "/metrics/rfm?merchant_id=1")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, "/metrics/rfm?merchant_id=1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another merchant has its own bucket.
	rec = doRequest(t, srv, "/metrics/rfm?merchant_id=2")
	require.Equal(t, http.StatusOK, rec.Code)
}
