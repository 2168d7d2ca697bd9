package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/flowviz/flowviz/internal/auth"
	"github.com/flowviz/flowviz/internal/middleware"
	"github.com/flowviz/flowviz/internal/pipeline"
	"github.com/flowviz/flowviz/internal/telemetry"
)

type fakePipeline struct {
	tuning  *pipeline.Tuning
	running bool
	snap    pipeline.Snapshot
}

func (f *fakePipeline) Snapshot() pipeline.Snapshot { return f.snap }
func (f *fakePipeline) Tuning() *pipeline.Tuning    { return f.tuning }
func (f *fakePipeline) Running() bool               { return f.running }

var testTimestamp = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newFakePipeline(t *testing.T) *fakePipeline {
	t.Helper()
	tun, err := pipeline.NewTuning(32, 0)
	require.NoError(t, err)
	return &fakePipeline{
		tuning:  tun,
		running: true,
		snap: pipeline.Snapshot{
			Timestamp:       testTimestamp,
			Producers:       []float64{1000, 2000},
			Layer1:          []float64{1500},
			Layer2:          []float64{40},
			IntakeOccupancy: 55,
			BatchOccupancy:  100,
			BatchSize:       32,
			Running:         true,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTest builds a router over a fake pipeline. authEnabled wires a real
// JWT service with admin/admin.
func setupTest(t *testing.T, authEnabled bool) (http.Handler, *fakePipeline) {
	t.Helper()
	p := newFakePipeline(t)

	history := telemetry.NewHistory(p, 10, time.Second, testLogger())
	history.Record(p.snap)

	deps := Dependencies{
		Pipeline: p,
		History:  history,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
		Logger: testLogger(),
	}
	if authEnabled {
		svc, err := auth.NewService("12345678901234567890123456789012", "admin", "admin", time.Hour)
		require.NoError(t, err)
		deps.Auth = svc
	}
	return NewRouter(deps), p
}

func do(h http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) middleware.ErrorDetail {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthHandler(t *testing.T) {
	h, p := setupTest(t, false)

	t.Run("Health", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/health", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
	})

	t.Run("Ready", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/ready", nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("NotReady", func(t *testing.T) {
		p.running = false
		defer func() { p.running = true }()

		rr := do(h, http.MethodGet, "/ready", nil, nil)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)

		var resp ReadinessResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "not_ready", resp.Status)
		assert.Equal(t, "stopped", resp.Checks["pipeline"])
	})
}

func TestTelemetryHandler_Snapshot(t *testing.T) {
	h, _ := setupTest(t, false)

	t.Run("json", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/v1/telemetry", nil, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var snap pipeline.Snapshot
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
		assert.Equal(t, []float64{1000, 2000}, snap.Producers)
		assert.Equal(t, 55, snap.IntakeOccupancy)
		assert.Equal(t, 100, snap.BatchOccupancy)
	})

	t.Run("msgpack", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/api/v1/telemetry", nil, map[string]string{
			"Accept": "application/msgpack;q=1.0, application/json;q=0.5",
		})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/msgpack", rr.Header().Get("Content-Type"))

		var snap pipeline.Snapshot
		require.NoError(t, msgpack.Unmarshal(rr.Body.Bytes(), &snap))
		assert.Equal(t, []float64{1500}, snap.Layer1)
		assert.Equal(t, 32, snap.BatchSize)
		assert.True(t, snap.Timestamp.Equal(testTimestamp))
	})
}

func TestTelemetryHandler_History(t *testing.T) {
	h, _ := setupTest(t, false)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantSeries int
		wantCode   string
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantSeries: 6},
		{name: "one worker", query: "?series=producer&worker=1", wantStatus: http.StatusOK, wantSeries: 1},
		{name: "occupancy", query: "?series=batches", wantStatus: http.StatusOK, wantSeries: 1},
		{name: "unknown series", query: "?series=layer9", wantStatus: http.StatusBadRequest, wantCode: "INVALID_SERIES"},
		{name: "bad worker", query: "?series=layer1&worker=x", wantStatus: http.StatusBadRequest, wantCode: "INVALID_WORKER"},
		{name: "missing worker", query: "?series=layer1&worker=7", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, http.MethodGet, "/api/v1/telemetry/history"+tt.query, nil, nil)
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)
				return
			}
			var resp HistoryResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Len(t, resp.Series, tt.wantSeries)
			for _, s := range resp.Series {
				assert.Len(t, s.Points, 1)
			}
		})
	}
}

func TestTuningHandler(t *testing.T) {
	h, p := setupTest(t, false)

	rr := do(h, http.MethodGet, "/api/v1/tuning", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"batch_size":32,"processing_delay_ms":0}`, rr.Body.String())

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantBody   string
	}{
		{"set both", map[string]int{"batch_size": 64, "processing_delay_ms": 250}, http.StatusOK, `{"batch_size":64,"processing_delay_ms":250}`},
		{"batch only", map[string]int{"batch_size": 1}, http.StatusOK, `{"batch_size":1,"processing_delay_ms":250}`},
		{"zero batch", map[string]int{"batch_size": 0}, http.StatusBadRequest, ""},
		{"negative delay", map[string]int{"processing_delay_ms": -5}, http.StatusBadRequest, ""},
		{"oversized batch", map[string]int{"batch_size": 1000001}, http.StatusBadRequest, ""},
		{"delay over an hour", map[string]int64{"processing_delay_ms": 3600001}, http.StatusBadRequest, ""},
		{"delay that would overflow", map[string]int64{"processing_delay_ms": 20000000000000}, http.StatusBadRequest, ""},
		{"empty", map[string]int{}, http.StatusBadRequest, ""},
		{"unknown field", map[string]int{"batch": 5}, http.StatusBadRequest, ""},
		{"malformed", "{", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(h, http.MethodPut, "/api/v1/tuning", tt.body, nil)
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rr.Body.String())
			}
		})
	}

	// rejected requests leave the last good values in place
	assert.Equal(t, 1, p.tuning.BatchSize())
	assert.Equal(t, 250*time.Millisecond, p.tuning.ProcessingDelay())
}

func TestTuningHandler_ValidationDetails(t *testing.T) {
	h, _ := setupTest(t, false)

	rr := do(h, http.MethodPut, "/api/v1/tuning", map[string]int{"batch_size": 0}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	detail := decodeError(t, rr)
	assert.Equal(t, "VALIDATION_ERROR", detail.Code)
	assert.Contains(t, rr.Body.String(), `"field":"batch_size"`)
	assert.Contains(t, rr.Body.String(), "batch_size must be at least 1")
}

func TestTuningHandler_RejectsOversizedValues(t *testing.T) {
	h, p := setupTest(t, false)

	rr := do(h, http.MethodPut, "/api/v1/tuning", map[string]int64{"processing_delay_ms": 9300000000000}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rr).Code)
	assert.Contains(t, rr.Body.String(), "processing_delay_ms must be at most 3600000")

	rr = do(h, http.MethodPut, "/api/v1/tuning", map[string]int{"batch_size": 5000000}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "batch_size must be at most 1000000")

	rr = do(h, http.MethodPut, "/api/v1/tuning", map[string]int64{"batch_size": 1000000, "processing_delay_ms": 3600000}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, pipeline.MaxBatchSize, p.tuning.BatchSize())
	assert.Equal(t, pipeline.MaxProcessingDelay, p.tuning.ProcessingDelay())
}

func TestTuningHandler_Steps(t *testing.T) {
	h, p := setupTest(t, false)

	steps := []struct {
		path      string
		wantBatch int
		wantDelay time.Duration
	}{
		{"/api/v1/tuning/batch-size/increase", 64, 0},
		{"/api/v1/tuning/batch-size/decrease", 32, 0},
		{"/api/v1/tuning/batch-size/decrease", 32, 0},
		{"/api/v1/tuning/delay/increase", 32, 100 * time.Millisecond},
		{"/api/v1/tuning/delay/decrease", 32, 0},
		{"/api/v1/tuning/delay/decrease", 32, 0},
	}
	for _, s := range steps {
		rr := do(h, http.MethodPost, s.path, nil, nil)
		require.Equal(t, http.StatusOK, rr.Code, s.path)
		assert.Equal(t, s.wantBatch, p.tuning.BatchSize(), s.path)
		assert.Equal(t, s.wantDelay, p.tuning.ProcessingDelay(), s.path)
	}
}

func TestAuth_ProtectsTuningWrites(t *testing.T) {
	h, p := setupTest(t, true)

	rr := do(h, http.MethodPost, "/api/v1/tuning/batch-size/increase", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 32, p.tuning.BatchSize())

	// reads stay public
	rr = do(h, http.MethodGet, "/api/v1/tuning", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(h, http.MethodPost, "/api/v1/login", auth.LoginRequest{Username: "admin", Password: "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(h, http.MethodPost, "/api/v1/login", map[string]string{"username": "admin"}, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rr).Code)

	rr = do(h, http.MethodPost, "/api/v1/login", auth.LoginRequest{Username: "admin", Password: "admin"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var login auth.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	rr = do(h, http.MethodPost, "/api/v1/tuning/batch-size/increase", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 64, p.tuning.BatchSize())
}

func TestRouter_Misc(t *testing.T) {
	h, _ := setupTest(t, false)

	t.Run("login disabled without auth", func(t *testing.T) {
		rr := do(h, http.MethodPost, "/api/v1/login", auth.LoginRequest{Username: "a", Password: "b"}, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/metrics", nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), "# metrics")
	})

	t.Run("not found has request id", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/nope", nil, nil)
		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, rr.Header().Get(middleware.RequestIDHeader), decodeError(t, rr).RequestID)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rr := do(h, http.MethodDelete, "/api/v1/tuning", nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}
