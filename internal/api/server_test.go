package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetlight_monitor/internal/engine"
	"streetlight_monitor/internal/model"
	"streetlight_monitor/internal/provider"
	"streetlight_monitor/internal/store"
	"streetlight_monitor/internal/switchtime"
)

// fakeProvider serves hourly active power of 10 W at minute 10 for every
// hour it is asked about.
type fakeProvider struct{}

func (fakeProvider) Entity(ctx context.Context, q provider.EntityQuery) []model.Sample {
	var out []model.Sample
	ts := q.From.Truncate(time.Hour).Add(10 * time.Minute)
	for ; !ts.After(q.To); ts = ts.Add(time.Hour) {
		if ts.Before(q.From) {
			continue
		}
		out = append(out, model.Sample{Time: ts, Values: model.Attributes{model.AttrActivePower: model.Scalar(10)}})
	}
	return out
}

func (fakeProvider) Types(ctx context.Context, q provider.TypeQuery) map[string][]model.Sample {
	return nil
}

func (fakeProvider) Illuminance(ctx context.Context, service model.Service, device string, day model.TimeRange) []switchtime.Reading {
	return nil
}

var testAreas = []model.Area{
	{Name: "viinikka-1", Service: model.ServiceViinikka, Entities: []string{"KV-0125-C01"}},
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Date(2019, time.July, 12, 0, 0, 0, 0, time.UTC)
	eng := engine.New(fakeProvider{}, store.NewMemory(), engine.WithClock(func() time.Time { return now }))
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	srv := httptest.NewServer(NewServer(eng, testAreas).Handler(Options{WS: ws, CORSOrigins: []string{"http://localhost:5173"}}))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]any
	status := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Day(t *testing.T) {
	srv := newTestServer(t)

	var body struct {
		Service  string                                 `json:"service"`
		Date     string                                 `json:"date"`
		Buckets  map[string]map[string]model.Confidence `json:"buckets"`
		Warnings model.DateWarning                      `json:"warnings"`
	}
	status := getJSON(t, srv.URL+"/api/entities/viinikka/KV-0125-C01/days/2019-07-10", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2019-07-10", body.Date)
	assert.Len(t, body.Buckets, model.HoursInDay)
	assert.Contains(t, body.Buckets, "21:00:00")
	assert.False(t, body.Warnings.NotConnected)
	assert.False(t, body.Warnings.MissingDataOne)
}

func TestServer_Energy(t *testing.T) {
	srv := newTestServer(t)

	var body EnergyResponse
	status := getJSON(t, srv.URL+"/api/entities/viinikka/KV-0125-C01/days/2019-07-10/energy", &body)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 240.0, body.Total, 0.001)
	assert.Equal(t, "240 Wh", body.TotalText)
	assert.InDelta(t, 0.0, body.EstimatedHours, 0.001)
}

func TestServer_ErrorCodes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown service", "/api/entities/helsinki/KV-1/days/2019-07-10", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad date", "/api/entities/viinikka/KV-1/days/yesterday-ish", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown area", "/api/areas/nowhere/days/2019-07-10", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorResponse
			status := getJSON(t, srv.URL+tt.path, &body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_AreaReport(t *testing.T) {
	srv := newTestServer(t)

	var body engine.AreaReport
	status := getJSON(t, srv.URL+"/api/areas/viinikka-1/days/2019-07-10", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "viinikka-1", body.Area)
	require.Len(t, body.Reports, 1)
	assert.Equal(t, "KV-0125-C01", body.Reports[0].Entity)
	assert.Empty(t, body.Reports[0].Error)
	assert.InDelta(t, 240.0, body.Energy, 0.001)
}

func TestServer_SwitchTimes(t *testing.T) {
	srv := newTestServer(t)

	var body SwitchTimesResponse
	status := getJSON(t, srv.URL+"/api/areas/viinikka-1/days/2019-07-10/switch-times", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2019-07-10", body.Date)
	assert.Contains(t, body.Entities, "KV-0125-C01")
}

func TestServer_Areas(t *testing.T) {
	srv := newTestServer(t)

	var body []model.Area
	status := getJSON(t, srv.URL+"/api/areas", &body)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body, 1)
	assert.Equal(t, "viinikka-1", body[0].Name)
}

func TestServer_WSMounted(t *testing.T) {
	srv := newTestServer(t)

	status := getJSON(t, srv.URL+"/ws", nil)
	assert.Equal(t, http.StatusTeapot, status)
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}
