package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitializeLevel(t *testing.T) {
	assert.NoError(t, Initialize("debug", ""))
	assert.NoError(t, Initialize("INFO", ""))
	assert.Error(t, Initialize("loud", ""))
}

func TestWithLoggingPassesThrough(t *testing.T) {
	h := WithLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
