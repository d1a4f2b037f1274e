package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOrigin_AllowsMatchingOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	assert.NoError(t, validateOrigin(req, []string{"http://localhost:3000"}))
}

func TestValidateOrigin_RejectsUnlistedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	assert.Error(t, validateOrigin(req, []string{"http://localhost:3000"}))
}

func TestValidateOrigin_AllowsMissingOriginHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.NoError(t, validateOrigin(req, []string{"http://localhost:3000"}))
}
