package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"expense-ledger/src/logger"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestDemoKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{name: "matching key", secret: "s3cret", header: "s3cret", want: http.StatusOK},
		{name: "missing key", secret: "s3cret", header: "", want: http.StatusUnauthorized},
		{name: "wrong key", secret: "s3cret", header: "s3cre", want: http.StatusUnauthorized},
		{name: "case differs", secret: "s3cret", header: "S3CRET", want: http.StatusUnauthorized},
		{name: "server secret unset", secret: "", header: "", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := DemoKeyMiddleware(tt.secret)(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/create_link_token", nil)
			if tt.header != "" {
				req.Header.Set(DemoKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.want == http.StatusOK, called)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthorized - missing or invalid demo key"}`, rec.Body.String())
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	called := false
	open := CORSMiddleware(nil)(okHandler(&called))

	req := httptest.NewRequest(http.MethodOptions, "/exchange_public_token", nil)
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called, "preflight stops at the middleware")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), DemoKeyHeader)

	restricted := CORSMiddleware([]string{"https://app.example"})(okHandler(&called))
	for origin, want := range map[string]string{"https://app.example": "https://app.example", "https://evil.example": ""} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		restricted.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug")

	var fromCtx zerolog.Logger
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = logger.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))
	require.NotEqual(t, zerolog.Disabled, fromCtx.GetLevel())
	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-abc"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/health"`)
}

func TestWriteError_OmitsEmptyDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "missing public_token in body", nil)
	assert.JSONEq(t, `{"error":"missing public_token in body"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteError(rec, http.StatusBadGateway, "transactions sync failed", map[string]string{"error_code": "X"})
	assert.JSONEq(t, `{"error":"transactions sync failed","details":{"error_code":"X"}}`, rec.Body.String())
}
