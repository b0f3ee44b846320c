package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"crunchcli/internal/config"
	apierrors "crunchcli/internal/errors"
	"crunchcli/internal/infrastructure"
	"crunchcli/internal/shared/testutil"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(GetRequestID(r.Context())))
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "generated"},
		{name: "from client", header: "client-id-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var traceID string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				traceID = infrastructure.GetTraceID(r.Context())
				okHandler(w, r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			id := rec.Header().Get(RequestIDHeader)
			require.NotEmpty(t, id)
			if tt.header != "" {
				assert.Equal(t, tt.header, id)
			}
			assert.Equal(t, id, rec.Body.String())
			assert.Equal(t, id, traceID)
		})
	}
}

func TestStructuredLogger(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	h := RequestID(StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	testutil.AssertLogContains(t, handler, slog.LevelWarn, "request completed")
	testutil.AssertLogAttr(t, handler, "request_id", "req-7")
	testutil.AssertLogAttr(t, handler, "status", int64(http.StatusNotFound))
}

func TestRateLimiter(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	rl := NewRateLimiter(config.RateLimitConfig{RPS: 0.001, Burst: 2}, apierrors.NewErrorHandler(logger, false), logger)
	h := rl.Handler(http.HandlerFunc(okHandler))

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rec.Code
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.True(t, handler.ContainsMessage("rate limit exceeded"))
}

func TestTelemetry(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	var traceID string
	r := chi.NewRouter()
	r.Use(Telemetry(tp.Tracer("test"), nil))
	r.Get("/batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		traceID = infrastructure.GetTraceID(r.Context())
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/batches/abc", nil))

	ended := spans.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "GET /batches/{id}", ended[0].Name())
	assert.Equal(t, ended[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, "Error", ended[0].Status().Code.String())
}

type createBody struct {
	InputDir string            `json:"input_dir" validate:"required"`
	Format   string            `json:"format" validate:"omitempty,oneof=csv json"`
	Unit     string            `json:"unit" validate:"unit"`
	Select   map[string]string `json:"select" validate:"omitempty,dive,keys,required,endkeys,label"`
}

func TestRequestValidator_Decode(t *testing.T) {
	v := NewRequestValidator(nil)

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantField   string
	}{
		{name: "valid", body: `{"input_dir":"/data","format":"json","unit":"mV","select":{"a.txt":"Voltage"}}`},
		{name: "missing dir", body: `{"format":"csv"}`, wantStatus: http.StatusBadRequest, wantField: "input_dir"},
		{name: "bad format", body: `{"input_dir":"/d","format":"xml"}`, wantStatus: http.StatusBadRequest, wantField: "format"},
		{name: "bad unit", body: `{"input_dir":"/d","unit":"furlong"}`, wantStatus: http.StatusBadRequest, wantField: "unit"},
		{name: "bad label", body: `{"input_dir":"/d","select":{"a.txt":"Volt 1"}}`, wantStatus: http.StatusBadRequest, wantField: "select[a.txt]"},
		{name: "malformed", body: `{"input_dir":`, wantStatus: http.StatusBadRequest},
		{name: "wrong content type", body: `x`, contentType: "text/plain", wantStatus: http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			ct := tt.contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)

			var body createBody
			err := v.Decode(httptest.NewRecorder(), req, &body)
			if tt.wantStatus == 0 {
				require.NoError(t, err)
				assert.Equal(t, "/data", body.InputDir)
				return
			}

			var apiErr *apierrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			if tt.wantField != "" {
				raw, _ := json.Marshal(apiErr.Details)
				assert.Contains(t, string(raw), `"field":"`+tt.wantField+`"`)
			}
		})
	}
}

func TestQueryParamValidator(t *testing.T) {
	q := NewQueryParamValidator(apierrors.NewErrorHandler(nil, false))

	rec := httptest.NewRecorder()
	n, ok := q.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?limit=5", nil), "limit", 1, 100, 20)
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	n, ok = q.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/", nil), "limit", 1, 100, 20)
	assert.True(t, ok)
	assert.Equal(t, 20, n)

	rec = httptest.NewRecorder()
	_, ok = q.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 1, 100, 20)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	_, ok = q.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?status=odd", nil), "status", []string{"running"}, "")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
