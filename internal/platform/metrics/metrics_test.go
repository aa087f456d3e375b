package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesBuildInfo(t *testing.T) {
	reg := New("v1.2.3")
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `labelcheck_build_info{version="v1.2.3"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
