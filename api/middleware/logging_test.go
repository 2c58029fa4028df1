package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

func serveLogged(t *testing.T, path string, status int) string {
	t.Helper()
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "api-test", Format: logger.FormatJSON, Output: &buf})
	handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	return buf.String()
}

func TestLoggingRecordsStatusAndSize(t *testing.T) {
	out := serveLogged(t, "/api/v1/products", http.StatusCreated)
	assert.Contains(t, out, "request.complete")
	assert.Contains(t, out, `"status":201`)
	assert.Contains(t, out, `"bytes":2`)
	assert.Contains(t, out, `"path":"/api/v1/products"`)
}

func TestLoggingFlagsServerErrors(t *testing.T) {
	out := serveLogged(t, "/api/v1/checkout", http.StatusServiceUnavailable)
	assert.Contains(t, out, "request.failed")
	assert.Contains(t, out, `"level":"warn"`)
}

func TestLoggingSkipsHealthyProbes(t *testing.T) {
	assert.Empty(t, serveLogged(t, "/health/live", http.StatusOK))
	assert.Contains(t, serveLogged(t, "/health/ready", http.StatusServiceUnavailable), "request.failed")
}
