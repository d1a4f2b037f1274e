package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakePool struct {
	size    int
	leadErr error
}

func (f *fakePool) Size() int                        { return f.size }
func (f *fakePool) GetLeastLoaded() (string, error)   { return "worker-0", f.leadErr }

type fakeBus struct{ err error }

func (f *fakeBus) Ping(context.Context) error { return f.err }

func TestLiveness_AlwaysHealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/healthz", nil)

	h.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadiness_HealthyWithLiveWorkersAndNoBus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&fakePool{size: 2}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/readyz", nil)

	h.Readiness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	assert.NotContains(t, w.Body.String(), "\"bus\"")
}

func TestReadiness_UnavailableWithEmptyPool(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&fakePool{size: 0}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/readyz", nil)

	h.Readiness(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadiness_UnavailableWhenBusUnreachable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&fakePool{size: 1}, &fakeBus{err: assertError{}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/readyz", nil)

	h.Readiness(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "bus")
}

type assertError struct{}

func (assertError) Error() string { return "unreachable" }
